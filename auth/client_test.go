package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/goAssist/gateway"
	"github.com/MrEthical07/goAssist/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *session.Manager) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	mgr := session.NewManager(session.NewCredentialStore(nil, "auth"), nil, session.Config{DiscardSupersededLogins: true})
	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL}, mgr)
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	c := New(gw)
	mgr.SetAuthenticator(c)
	mgr.Restore(context.Background())
	return c, mgr
}

func TestLoginSendsCredentialsWithoutBearer(t *testing.T) {
	var (
		body Credentials
		hdr  string
		path string
	)
	_, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		hdr = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(Response{Credential: "tok", TTLMilliseconds: 60_000, Email: "a@b.com"})
	})

	before := time.Now()
	sess, err := mgr.Login(context.Background(), "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if path != loginPath || hdr != "" {
		t.Fatalf("unexpected request: path=%s auth=%q", path, hdr)
	}
	if body.Email != "a@b.com" || body.Password != "pw" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if sess.Credential != "tok" || sess.Identity.Email != "a@b.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	lo := before.Add(time.Minute).UnixMilli()
	hi := time.Now().Add(time.Minute).UnixMilli()
	if sess.ExpiresAt < lo || sess.ExpiresAt > hi {
		t.Fatalf("expected expiry near now+60s, got %d", sess.ExpiresAt)
	}
}

func TestRegisterSendsDisplayName(t *testing.T) {
	var body map[string]any
	_, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		name := "Neo"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Response{Credential: "tok", TTLMilliseconds: 1000, Email: "n@b.com", DisplayName: &name})
	})

	name := "Neo"
	sess, err := mgr.Register(context.Background(), "n@b.com", "pw", &name)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if body["displayName"] != "Neo" {
		t.Fatalf("expected displayName in body, got %v", body)
	}
	if sess.Identity.DisplayName == nil || *sess.Identity.DisplayName != "Neo" {
		t.Fatalf("unexpected identity: %+v", sess.Identity)
	}
}

func TestRegisterOmitsAbsentDisplayName(t *testing.T) {
	var body map[string]any
	_, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(Response{Credential: "tok", TTLMilliseconds: 1000})
	})

	sess, err := mgr.Register(context.Background(), "n@b.com", "pw", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := body["displayName"]; ok {
		t.Fatalf("expected displayName omitted, got %v", body)
	}
	if sess.Identity.Email != "n@b.com" {
		t.Fatalf("expected submitted email, got %q", sess.Identity.Email)
	}
}

func TestInvalidResponseIsRejected(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{name: "missing credential", resp: Response{TTLMilliseconds: 1000, Email: "a@b.com"}},
		{name: "zero ttl", resp: Response{Credential: "tok", Email: "a@b.com"}},
		{name: "negative ttl", resp: Response{Credential: "tok", TTLMilliseconds: -1, Email: "a@b.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.resp)
			})

			_, err := mgr.Login(context.Background(), "a@b.com", "pw")
			ge, ok := gateway.AsError(err)
			if !ok {
				t.Fatalf("expected *gateway.Error, got %v", err)
			}
			if ge.Message != InvalidResponseMessage || ge.StatusCode != http.StatusOK {
				t.Fatalf("unexpected error: %+v", ge)
			}
			if mgr.State() != session.StateAnonymous {
				t.Fatalf("expected anonymous, got %s", mgr.State())
			}
		})
	}
}

func TestLoginFailurePropagatesVerbatim(t *testing.T) {
	_, mgr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid email or password"}`))
	})

	_, err := mgr.Login(context.Background(), "a@b.com", "wrong")
	ge, ok := gateway.AsError(err)
	if !ok || ge.StatusCode != http.StatusUnauthorized || ge.Message != "Invalid email or password" {
		t.Fatalf("unexpected error: %v", err)
	}
	if mgr.Current() != nil {
		t.Fatal("expected no session")
	}
}
