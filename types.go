package goAssist

import (
	"slices"
	"time"
)

// Stack trace length bounds accepted by Analyze, in characters.
const (
	MinStackTraceLength = 10
	MaxStackTraceLength = 50000
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	StackTrace string `json:"stackTrace"`
}

// SearchResult is one external solution returned by the analysis service.
// Score is nil when the service could not rank the result.
type SearchResult struct {
	Source    string     `json:"source"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Reactions *int       `json:"reactions,omitempty"`
	Snippet   string     `json:"snippet,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Score     *float64   `json:"score"`
}

// AnalyzeResponse is the parsed analysis of a stack trace.
type AnalyzeResponse struct {
	Language      string         `json:"language"`
	ExceptionType string         `json:"exceptionType"`
	Message       string         `json:"message"`
	Keywords      []string       `json:"keywords"`
	RootCause     *string        `json:"rootCause"`
	Score         int            `json:"score"`
	Results       []SearchResult `json:"results"`
	Timestamp     time.Time      `json:"timestamp"`
}

// SaveHistoryRequest is the body of POST /history.
type SaveHistoryRequest struct {
	StackTraceSnippet string `json:"stackTraceSnippet"`
	Language          string `json:"language,omitempty"`
	ExceptionType     string `json:"exceptionType,omitempty"`
	SearchURL         string `json:"searchUrl,omitempty"`
}

// HistoryEntry is one saved analysis.
type HistoryEntry struct {
	ID                string    `json:"id"`
	StackTraceSnippet string    `json:"stackTraceSnippet"`
	Language          string    `json:"language,omitempty"`
	ExceptionType     string    `json:"exceptionType,omitempty"`
	SearchURL         string    `json:"searchUrl,omitempty"`
	SearchedAt        time.Time `json:"searchedAt"`
}

// SortResults orders results by score, highest first. Unscored results go
// last; ties keep their order.
func SortResults(results []SearchResult) {
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score == nil && b.Score == nil:
			return 0
		case a.Score == nil:
			return 1
		case b.Score == nil:
			return -1
		case *a.Score > *b.Score:
			return -1
		case *a.Score < *b.Score:
			return 1
		default:
			return 0
		}
	})
}
