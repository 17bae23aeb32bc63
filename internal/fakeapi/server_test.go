package fakeapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goAssist/internal/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func fastPassword() *password.Config {
	return &password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
}

func newTestServer(t *testing.T, now func() time.Time) *Server {
	t.Helper()
	s, err := New(Config{TTL: time.Hour, Secret: []byte("test-secret-test-secret"), Now: now, Password: fastPassword()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func register(t *testing.T, s *Server, email, pw string) authResponse {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/auth/register", "", map[string]any{"email": email, "password": pw})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decodeBody[authResponse](t, rec)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	name := "Ada"
	rec := do(t, s, http.MethodPost, "/auth/register", "", registerRequest{Email: "ada@example.com", Password: "secret-pw", DisplayName: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	reg := decodeBody[authResponse](t, rec)
	if reg.Credential == "" || reg.TTLMilliseconds != time.Hour.Milliseconds() || reg.Email != "ada@example.com" {
		t.Fatalf("unexpected register response: %+v", reg)
	}
	if reg.DisplayName == nil || *reg.DisplayName != "Ada" {
		t.Fatalf("expected display name, got %v", reg.DisplayName)
	}

	rec = do(t, s, http.MethodPost, "/auth/login", "", loginRequest{Email: "ada@example.com", Password: "secret-pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rec.Code, rec.Body.String())
	}
	login := decodeBody[authResponse](t, rec)
	if login.Credential == "" || login.Credential == reg.Credential {
		t.Fatal("expected a fresh credential on login")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t, nil)
	if err := s.AddUser("bob@example.com", "correct-pw", nil); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	for _, req := range []loginRequest{
		{Email: "bob@example.com", Password: "wrong-pw"},
		{Email: "nobody@example.com", Password: "correct-pw"},
	} {
		rec := do(t, s, http.MethodPost, "/auth/login", "", req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeBody[errorResponse](t, rec); body.Message != invalidCredentialsMessage || body.Timestamp.IsZero() {
			t.Fatalf("unexpected error body: %+v", body)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, nil)
	register(t, s, "taken@example.com", "secret-pw")

	long := strings.Repeat("n", maxDisplayName+1)
	cases := []struct {
		name   string
		req    registerRequest
		status int
	}{
		{"bad email", registerRequest{Email: "not-an-email", Password: "secret-pw"}, http.StatusBadRequest},
		{"short password", registerRequest{Email: "a@example.com", Password: "abc"}, http.StatusBadRequest},
		{"long name", registerRequest{Email: "b@example.com", Password: "secret-pw", DisplayName: &long}, http.StatusBadRequest},
		{"duplicate", registerRequest{Email: "TAKEN@example.com", Password: "secret-pw"}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/auth/register", "", tc.req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryRequiresCredential(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/history", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credential, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/history", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage credential, got %d", rec.Code)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	auth := register(t, s, "hist@example.com", "secret-pw")

	for _, snippet := range []string{"first trace", strings.Repeat("x", maxSnippet+20)} {
		rec := do(t, s, http.MethodPost, "/history", auth.Credential, saveHistoryRequest{StackTraceSnippet: snippet, Language: "java"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("save status=%d body=%s", rec.Code, rec.Body.String())
		}
		if entry := decodeBody[historyEntry](t, rec); entry.ID == "" {
			t.Fatal("expected entry ID")
		}
	}

	rec := do(t, s, http.MethodGet, "/history", auth.Credential, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	entries := decodeBody[[]historyEntry](t, rec)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if len(entries[0].StackTraceSnippet) != maxSnippet {
		t.Fatalf("expected newest entry first and truncated, got %d chars", len(entries[0].StackTraceSnippet))
	}
	if s.HistoryLen("HIST@example.com") != 2 {
		t.Fatal("expected HistoryLen to count saved entries")
	}

	rec = do(t, s, http.MethodPost, "/history", auth.Credential, saveHistoryRequest{StackTraceSnippet: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank snippet, got %d", rec.Code)
	}
}

func TestRevokeRejectsCredential(t *testing.T) {
	s := newTestServer(t, nil)
	auth := register(t, s, "rev@example.com", "secret-pw")

	if rec := do(t, s, http.MethodGet, "/history", auth.Credential, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before revoke, got %d", rec.Code)
	}
	if !s.Revoke(auth.Credential) {
		t.Fatal("expected Revoke to recognise the credential")
	}
	rec := do(t, s, http.MethodGet, "/history", auth.Credential, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", rec.Code)
	}
	if body := decodeBody[errorResponse](t, rec); body.Message != unauthorizedMessage {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if s.Revoke("opaque") {
		t.Fatal("expected Revoke to ignore non-JWT input")
	}
}

func TestExpiredCredentialRejected(t *testing.T) {
	now := time.Now()
	s := newTestServer(t, func() time.Time { return now })
	auth := register(t, s, "exp@example.com", "secret-pw")

	now = now.Add(2 * time.Hour)
	if rec := do(t, s, http.MethodGet, "/history", auth.Credential, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired credential, got %d", rec.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	trace := "java.lang.IllegalStateException: connection pool exhausted\n\tat com.acme.Pool.get(Pool.java:42)"

	rec := do(t, s, http.MethodPost, "/analyze", "", analyzeRequest{StackTrace: trace})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status=%d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[analyzeResponse](t, rec)
	if resp.Language != "java" || resp.ExceptionType != "java.lang.IllegalStateException" {
		t.Fatalf("unexpected analysis: %+v", resp)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}

	rec = do(t, s, http.MethodPost, "/analyze", "", analyzeRequest{StackTrace: "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short trace, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodPost, "/analyze", "", analyzeRequest{StackTrace: "something went wrong somewhere"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown language, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeBody[errorResponse](t, rec); body.Message == "" {
		t.Fatal("expected JSON error body")
	}
}

func TestLoginThrottle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := New(Config{
		Secret:           []byte("test-secret-test-secret"),
		Password:         fastPassword(),
		Redis:            rdb,
		MaxLoginAttempts: 2,
		LoginCooldown:    time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddUser("eve@example.com", "correct-pw", nil); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	wrong := loginRequest{Email: "eve@example.com", Password: "wrong-pw"}
	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodPost, "/auth/login", "", wrong); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	right := loginRequest{Email: "eve@example.com", Password: "correct-pw"}
	rec := do(t, s, http.MethodPost, "/auth/login", "", right)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while throttled, got %d", rec.Code)
	}
	if body := decodeBody[errorResponse](t, rec); body.Message != throttledMessage {
		t.Fatalf("unexpected message %q", body.Message)
	}

	mr.FastForward(2 * time.Minute)
	if rec := do(t, s, http.MethodPost, "/auth/login", "", right); rec.Code != http.StatusOK {
		t.Fatalf("expected login after cooldown, got %d", rec.Code)
	}
}
