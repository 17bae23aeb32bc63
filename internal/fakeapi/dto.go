package fakeapi

import "time"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"displayName"`
}

type authResponse struct {
	Credential      string  `json:"credential"`
	TTLMilliseconds int64   `json:"ttlMilliseconds"`
	Email           string  `json:"email"`
	DisplayName     *string `json:"displayName"`
}

type analyzeRequest struct {
	StackTrace string `json:"stackTrace"`
}

type searchResult struct {
	Source    string     `json:"source"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Reactions *int       `json:"reactions,omitempty"`
	Snippet   string     `json:"snippet,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Score     *float64   `json:"score"`
}

type analyzeResponse struct {
	Language      string         `json:"language"`
	ExceptionType string         `json:"exceptionType"`
	Message       string         `json:"message"`
	Keywords      []string       `json:"keywords"`
	RootCause     *string        `json:"rootCause"`
	Score         int            `json:"score"`
	Results       []searchResult `json:"results"`
	Timestamp     time.Time      `json:"timestamp"`
}

type saveHistoryRequest struct {
	StackTraceSnippet string `json:"stackTraceSnippet"`
	Language          string `json:"language"`
	ExceptionType     string `json:"exceptionType"`
	SearchURL         string `json:"searchUrl"`
}

type historyEntry struct {
	ID                string    `json:"id"`
	StackTraceSnippet string    `json:"stackTraceSnippet"`
	Language          string    `json:"language,omitempty"`
	ExceptionType     string    `json:"exceptionType,omitempty"`
	SearchURL         string    `json:"searchUrl,omitempty"`
	SearchedAt        time.Time `json:"searchedAt"`
}

type errorResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
