package fakeapi

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

var (
	errEmptyTrace          = errors.New("Stack trace cannot be empty")
	errUnsupportedLanguage = errors.New("Language 'unknown' is not supported yet.")
)

const maxKeywords = 5

var (
	javaExceptionLine   = regexp.MustCompile(`^([a-zA-Z0-9.$_]+)(?::\s*(.*))?$`)
	pythonErrorLine     = regexp.MustCompile(`^([a-zA-Z0-9_.]+):\s*(.*)$`)
	pythonRootCauseLine = regexp.MustCompile(`^[A-Za-z0-9_]+(?:Error|Exception):.*`)
	tokenSeparators     = regexp.MustCompile(`[\s:/,()\[\]{}]+`)
	digitsOnly          = regexp.MustCompile(`^[0-9]+$`)
	hexRun              = regexp.MustCompile(`^[0-9a-f]{6,}$`)
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "to": {}, "of": {}, "a": {}, "is": {}, "in": {},
	"for": {}, "on": {}, "at": {}, "by": {}, "from": {}, "with": {}, "this": {},
	"that": {}, "exception": {}, "error": {}, "failed": {}, "cause": {},
	"stack": {}, "trace": {}, "null": {}, "line": {}, "java": {}, "python": {},
}

type parsedError struct {
	language      string
	exceptionType string
	message       string
	rootCause     string
	keywords      []string
}

func detectLanguage(trace string) string {
	if strings.Contains(trace, "at ") &&
		(strings.Contains(trace, ".java:") || strings.Contains(trace, "Exception")) {
		return "java"
	}
	if strings.Contains(trace, "Traceback") ||
		(strings.Contains(trace, `File "`) && strings.Contains(trace, ", line ")) {
		return "python"
	}
	return "unknown"
}

func parseTrace(trace string) (*parsedError, error) {
	if strings.TrimSpace(trace) == "" {
		return nil, errEmptyTrace
	}

	var p *parsedError
	switch detectLanguage(trace) {
	case "java":
		p = parseJava(trace)
	case "python":
		p = parsePython(trace)
	default:
		return nil, errUnsupportedLanguage
	}

	p.rootCause = rootCause(trace)
	p.keywords = extractKeywords(p)
	return p, nil
}

// parseJava reads "Type: message" from the first line.
func parseJava(trace string) *parsedError {
	first, _, _ := strings.Cut(trace, "\n")
	first = strings.TrimSpace(first)

	p := &parsedError{language: "java", exceptionType: first}
	if m := javaExceptionLine.FindStringSubmatch(first); m != nil {
		p.exceptionType = m[1]
		p.message = strings.TrimSpace(m[2])
	}
	return p
}

// parsePython reads "Type: message" from the last non-blank line.
func parsePython(trace string) *parsedError {
	var last string
	for _, line := range strings.Split(trace, "\n") {
		if strings.TrimSpace(line) != "" {
			last = strings.TrimSpace(line)
		}
	}

	p := &parsedError{language: "python", exceptionType: "UnknownPythonError", message: last}
	if m := pythonErrorLine.FindStringSubmatch(last); m != nil {
		p.exceptionType = m[1]
		p.message = m[2]
	}
	return p
}

// rootCause returns the deepest "Caused by" / nested cause, or "" when the
// trace has none.
func rootCause(trace string) string {
	var cause string
	expectPythonRoot := false

	for _, raw := range strings.Split(trace, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "Caused by:"):
			cause = strings.TrimSpace(strings.TrimPrefix(line, "Caused by:"))
		case strings.Contains(line, "nested exception is"):
			_, after, _ := strings.Cut(line, "nested exception is")
			cause = strings.TrimSpace(after)
		case strings.HasPrefix(line, "During handling of the above exception"):
			expectPythonRoot = true
		case expectPythonRoot && pythonRootCauseLine.MatchString(line):
			cause = line
			expectPythonRoot = false
		}
	}
	return cause
}

func extractKeywords(p *parsedError) []string {
	scores := make(map[string]float64)
	addTokens(scores, p.exceptionType, 3)
	addTokens(scores, p.rootCause, 2)
	addTokens(scores, p.message, 1)

	keywords := make([]string, 0, len(scores))
	for word := range scores {
		keywords = append(keywords, word)
	}
	slices.SortFunc(keywords, func(a, b string) int {
		if scores[a] != scores[b] {
			if scores[a] > scores[b] {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

func addTokens(scores map[string]float64, text string, base float64) {
	for _, raw := range tokenSeparators.Split(text, -1) {
		word := strings.ToLower(strings.TrimSpace(raw))
		if len(word) < 3 {
			continue
		}
		if _, stop := stopwords[word]; stop || isDynamicStopword(word) {
			continue
		}
		score := base
		if len(word) >= 6 {
			score += 0.5
		}
		scores[word] += score
	}
}

func isDynamicStopword(word string) bool {
	return digitsOnly.MatchString(word) ||
		hexRun.MatchString(word) ||
		strings.Contains(word, `\`) ||
		strings.HasSuffix(word, ".java") ||
		strings.HasSuffix(word, ".py")
}

func simpleName(exceptionType string) string {
	if i := strings.LastIndex(exceptionType, "."); i >= 0 {
		return exceptionType[i+1:]
	}
	return exceptionType
}

// searchQuery builds the issue search query for p.
func searchQuery(p *parsedError) string {
	parts := []string{simpleName(p.exceptionType)}
	for _, k := range p.keywords {
		if len(parts) == 4 {
			break
		}
		if !slices.Contains(parts, k) {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ") + " in:title,body"
}

/*
====================================
RANKING
====================================
*/

const (
	reactionsWeight = 0.4
	keywordWeight   = 0.3
	recencyWeight   = 0.15
	sourceWeight    = 0.15
)

func keywordOverlap(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	text = strings.ToLower(text)
	matches := 0
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

func recencyScore(created, now time.Time) float64 {
	days := now.Sub(created).Hours() / 24
	switch {
	case days <= 0:
		return 1
	case days > 730:
		return 0
	default:
		return 1 - days/730
	}
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// anchors keeps only keywords specific enough to match a question title.
func anchors(keywords []string) []string {
	var out []string
	for _, k := range keywords {
		k = strings.ToLower(k)
		if strings.HasSuffix(k, "exception") || strings.HasSuffix(k, "error") || strings.Contains(k, ".") {
			out = append(out, k)
		}
	}
	return out
}

// results synthesizes the external matches for p. They are returned in
// source order; ranking is left to the caller.
func results(p *parsedError, now time.Time) []searchResult {
	query := searchQuery(p)
	simple := simpleName(p.exceptionType)

	issueTitle := simple
	if p.message != "" {
		issueTitle += ": " + p.message
	}
	issueCreated := now.Add(-30 * 24 * time.Hour)
	issueReactions := 4 * len(p.keywords)
	issueScore := round(
		reactionsWeight*math.Min(1, float64(issueReactions)/20) +
			keywordWeight*keywordOverlap(issueTitle+" "+p.rootCause, p.keywords) +
			recencyWeight*recencyScore(issueCreated, now) +
			sourceWeight*0.5,
	)

	questionTitle := fmt.Sprintf("How do I fix %s?", p.exceptionType)
	questionCreated := now.Add(-400 * 24 * time.Hour)
	questionVotes := 12
	var questionScore *float64
	if a := anchors(append([]string{strings.ToLower(p.exceptionType)}, p.keywords...)); len(a) > 0 {
		if overlap := keywordOverlap(questionTitle, a); overlap > 0 {
			s := round(
				reactionsWeight*math.Min(1, float64(questionVotes)/25) +
					keywordWeight*overlap +
					recencyWeight*recencyScore(questionCreated, now) +
					sourceWeight*1.0,
			)
			questionScore = &s
		}
	}

	out := []searchResult{
		{
			Source:    "stackoverflow",
			Title:     questionTitle,
			URL:       "https://stackoverflow.com/search?q=" + url.QueryEscape(p.exceptionType),
			Snippet:   p.message,
			CreatedAt: &questionCreated,
			Reactions: &questionVotes,
			Score:     questionScore,
		},
		{
			Source:    "github",
			Title:     issueTitle,
			URL:       "https://github.com/search?type=issues&q=" + url.QueryEscape(query),
			Reactions: &issueReactions,
			Snippet:   p.rootCause,
			CreatedAt: &issueCreated,
			Score:     &issueScore,
		},
	}

	if len(p.keywords) > 0 {
		out = append(out, searchResult{
			Source: "github",
			Title:  "Discussion: " + strings.Join(p.keywords, " "),
			URL:    "https://github.com/search?type=discussions&q=" + url.QueryEscape(strings.Join(p.keywords, " ")),
		})
	}
	return out
}

func analyze(trace string, now time.Time) (*analyzeResponse, error) {
	p, err := parseTrace(trace)
	if err != nil {
		return nil, err
	}

	resp := &analyzeResponse{
		Language:      p.language,
		ExceptionType: p.exceptionType,
		Message:       p.message,
		Keywords:      p.keywords,
		Score:         len(p.message),
		Results:       results(p, now),
		Timestamp:     now,
	}
	if resp.Keywords == nil {
		resp.Keywords = []string{}
	}
	if p.rootCause != "" {
		rc := p.rootCause
		resp.RootCause = &rc
	}
	return resp, nil
}
