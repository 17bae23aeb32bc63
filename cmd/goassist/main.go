// Command goassist is a terminal client for the debugging assistant. The
// session is kept in a SQLite file so it survives between invocations.
//
// Usage:
//
//	goassist [global flags] <command> [flags]
//
// Commands: login, register, logout, whoami, analyze, history, save.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	goAssist "github.com/MrEthical07/goAssist"
	"github.com/fatih/color"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type app struct {
	client *goAssist.Client
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("goassist", flag.ContinueOnError)
	global.SetOutput(stderr)
	var (
		envFile = global.String("env", "", "load configuration from this env file instead of ./.env")
		baseURL = global.String("url", "", "analysis service base URL (overrides GOASSIST_GATEWAY_BASE_URL)")
		dbPath  = global.String("db", "", "session database path (default ~/.goassist/session.db)")
		verbose = global.Bool("v", false, "enable debug logging")
	)
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		usage(global)
		return exitUsage
	}

	cfg, err := loadConfig(*envFile, *baseURL, *dbPath, *verbose)
	if err != nil {
		printError(stderr, err)
		return exitError
	}

	client, err := goAssist.New().WithConfig(cfg).BuildContext(ctx)
	if err != nil {
		printError(stderr, err)
		return exitError
	}
	defer client.Close()

	a := &app{client: client, stdin: stdin, stdout: stdout, stderr: stderr}

	cmd, rest := global.Arg(0), global.Args()[1:]
	var cmdErr error
	switch cmd {
	case "login":
		cmdErr = a.login(ctx, rest)
	case "register":
		cmdErr = a.register(ctx, rest)
	case "logout":
		cmdErr = a.logout(ctx)
	case "whoami":
		cmdErr = a.whoami()
	case "analyze":
		cmdErr = a.analyze(ctx, rest)
	case "history":
		cmdErr = a.history(ctx)
	case "save":
		cmdErr = a.save(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(global)
		return exitUsage
	}

	switch {
	case cmdErr == nil:
		return exitOK
	case errors.Is(cmdErr, flag.ErrHelp), errors.Is(cmdErr, errUsage):
		return exitUsage
	default:
		printError(stderr, cmdErr)
		return exitError
	}
}

func loadConfig(envFile, baseURL, dbPath string, verbose bool) (goAssist.Config, error) {
	var (
		cfg goAssist.Config
		err error
	)
	if envFile != "" {
		cfg, err = goAssist.LoadConfig(envFile)
	} else {
		cfg, err = goAssist.LoadConfig()
	}
	if err != nil {
		return cfg, err
	}

	if baseURL != "" {
		cfg.Gateway.BaseURL = baseURL
	}
	if _, set := os.LookupEnv(goAssist.EnvPrefix + "STORE_BACKEND"); !set {
		cfg.Store.Backend = goAssist.StoreSQLite
	}
	if cfg.Store.Backend == goAssist.StoreSQLite {
		if dbPath != "" {
			cfg.Store.SQLitePath = dbPath
		}
		if cfg.Store.SQLitePath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return cfg, fmt.Errorf("locate home directory: %w", err)
			}
			cfg.Store.SQLitePath = filepath.Join(home, ".goassist", "session.db")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o700); err != nil {
			return cfg, fmt.Errorf("create session directory: %w", err)
		}
	}
	if verbose {
		cfg.Logging.Level = "debug"
	} else if _, set := os.LookupEnv(goAssist.EnvPrefix + "LOG_LEVEL"); !set {
		cfg.Logging.Level = "error"
	}
	return cfg, cfg.Validate()
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: goassist [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  login      sign in with email and password")
	fmt.Fprintln(w, "  register   create an account and sign in")
	fmt.Fprintln(w, "  logout     forget the stored session")
	fmt.Fprintln(w, "  whoami     show the signed-in identity")
	fmt.Fprintln(w, "  analyze    analyze a stack trace from a file, arguments or stdin")
	fmt.Fprintln(w, "  history    list saved analyses (requires sign-in)")
	fmt.Fprintln(w, "  save       save an analysis to history (requires sign-in)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global flags:")
	fs.PrintDefaults()
}

func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	if apiErr, ok := goAssist.AsError(err); ok && apiErr.StatusCode != 0 {
		red.Fprint(w, "error: ")
		fmt.Fprintf(w, "%s ", apiErr.Message)
		color.New(color.FgHiBlack).Fprintf(w, "(HTTP %d)\n", apiErr.StatusCode)
		return
	}
	red.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}
