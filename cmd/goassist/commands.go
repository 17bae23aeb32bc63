package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	goAssist "github.com/MrEthical07/goAssist"
	"github.com/MrEthical07/goAssist/jwt"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var errUsage = errors.New("usage")

var (
	bold  = color.New(color.Bold)
	dim   = color.New(color.FgHiBlack)
	green = color.New(color.FgGreen)
	cyan  = color.New(color.FgCyan, color.Bold)
)

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("goassist "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

/*
====================================
AUTH
====================================
*/

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	pw := fs.String("password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fmt.Fprintln(a.stderr, "login: -email is required")
		return errUsage
	}

	secret, err := a.password(*pw)
	if err != nil {
		return err
	}
	sess, err := a.client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}

	green.Fprint(a.stdout, "signed in ")
	fmt.Fprintf(a.stdout, "as %s ", sess.Identity.Email)
	dim.Fprintf(a.stdout, "(until %s)\n", sess.Expiry().Format(time.RFC1123))
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := a.flags("register")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name (optional)")
	pw := fs.String("password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fmt.Fprintln(a.stderr, "register: -email is required")
		return errUsage
	}

	secret, err := a.password(*pw)
	if err != nil {
		return err
	}
	var displayName *string
	if *name != "" {
		displayName = name
	}
	sess, err := a.client.Register(ctx, *email, secret, displayName)
	if err != nil {
		return err
	}

	green.Fprint(a.stdout, "account created ")
	fmt.Fprintf(a.stdout, "for %s\n", sess.Identity.Email)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "signed out")
	return nil
}

func (a *app) whoami() error {
	if err := a.client.Gate().Check(); err != nil {
		return err
	}
	sess := a.client.Current()
	if sess == nil {
		return goAssist.ErrGateDenied
	}

	bold.Fprintln(a.stdout, sess.Identity.Email)
	if sess.Identity.DisplayName != nil {
		fmt.Fprintf(a.stdout, "name:    %s\n", *sess.Identity.DisplayName)
	}
	fmt.Fprintf(a.stdout, "expires: %s\n", sess.Expiry().Format(time.RFC1123))

	if claims, err := jwt.Inspect(sess.Credential); err == nil {
		dim.Fprintf(a.stdout, "token:   issuer=%q id=%s\n", claims.Issuer, claims.ID)
	}
	return nil
}

// password returns flagValue, or reads one line from stdin. A terminal
// gets a prompt without echo.
func (a *app) password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("GOASSIST_PASSWORD"); env != "" {
		return env, nil
	}

	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, "password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

/*
====================================
ANALYSIS AND HISTORY
====================================
*/

func (a *app) analyze(ctx context.Context, args []string) error {
	fs := a.flags("analyze")
	file := fs.String("file", "", "read the stack trace from this file")
	save := fs.Bool("save", false, "save the analysis to history when signed in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	trace, err := a.readTrace(*file, fs.Args())
	if err != nil {
		return err
	}

	resp, err := a.client.Analyze(ctx, trace)
	if err != nil {
		return err
	}
	a.printAnalysis(resp)

	if *save {
		if a.client.Gate().Check() != nil {
			dim.Fprintln(a.stdout, "not signed in; analysis not saved")
			return nil
		}
		searchURL := ""
		if len(resp.Results) > 0 {
			searchURL = resp.Results[0].URL
		}
		entry, err := a.client.SaveHistory(ctx, goAssist.SaveHistoryRequest{
			StackTraceSnippet: trace,
			Language:          resp.Language,
			ExceptionType:     resp.ExceptionType,
			SearchURL:         searchURL,
		})
		if err != nil {
			return err
		}
		dim.Fprintf(a.stdout, "saved as %s\n", entry.ID)
	}
	return nil
}

func (a *app) readTrace(file string, args []string) (string, error) {
	switch {
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
}

func (a *app) printAnalysis(resp *goAssist.AnalyzeResponse) {
	cyan.Fprintf(a.stdout, "%s", resp.ExceptionType)
	dim.Fprintf(a.stdout, " [%s]\n", resp.Language)
	if resp.Message != "" {
		fmt.Fprintln(a.stdout, resp.Message)
	}
	if resp.RootCause != nil {
		fmt.Fprintf(a.stdout, "root cause: %s\n", *resp.RootCause)
	}
	if len(resp.Keywords) > 0 {
		dim.Fprintf(a.stdout, "keywords: %s\n", strings.Join(resp.Keywords, ", "))
	}

	fmt.Fprintln(a.stdout)
	for i, r := range resp.Results {
		score := "  -  "
		if r.Score != nil {
			score = fmt.Sprintf("%.3f", *r.Score)
		}
		fmt.Fprintf(a.stdout, "%2d. ", i+1)
		green.Fprint(a.stdout, score)
		fmt.Fprintf(a.stdout, "  %s ", r.Title)
		dim.Fprintf(a.stdout, "(%s)\n", r.Source)
		fmt.Fprintf(a.stdout, "    %s\n", r.URL)
	}
}

func (a *app) history(ctx context.Context) error {
	if err := a.client.Gate().Check(); err != nil {
		return err
	}

	entries, err := a.client.History(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		dim.Fprintln(a.stdout, "no saved analyses")
		return nil
	}
	for _, e := range entries {
		dim.Fprintf(a.stdout, "%s  ", e.SearchedAt.Local().Format("2006-01-02 15:04"))
		bold.Fprint(a.stdout, e.ExceptionType)
		fmt.Fprintf(a.stdout, "  %s\n", firstLine(e.StackTraceSnippet))
	}
	return nil
}

func (a *app) save(ctx context.Context, args []string) error {
	fs := a.flags("save")
	snippet := fs.String("snippet", "", "stack trace snippet")
	language := fs.String("language", "", "language of the trace")
	exception := fs.String("exception", "", "exception type")
	searchURL := fs.String("url", "", "search URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.client.Gate().Check(); err != nil {
		return err
	}

	entry, err := a.client.SaveHistory(ctx, goAssist.SaveHistoryRequest{
		StackTraceSnippet: *snippet,
		Language:          *language,
		ExceptionType:     *exception,
		SearchURL:         *searchURL,
	})
	if err != nil {
		return err
	}
	green.Fprint(a.stdout, "saved ")
	fmt.Fprintln(a.stdout, entry.ID)
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
