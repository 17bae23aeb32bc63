package fakeapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goAssist/internal/password"
	"github.com/MrEthical07/goAssist/internal/rate"
	"github.com/MrEthical07/goAssist/jwt"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minStackTrace      = 10
	maxStackTrace      = 50000
	maxSnippet         = 500
	maxDisplayName     = 50
	maxRequestBodySize = 1 << 20

	invalidCredentialsMessage = "Invalid email or password"
	unauthorizedMessage       = "Invalid or expired token"
	throttledMessage          = "Too many login attempts, try again later"
)

// Config configures a Server.
type Config struct {
	// TTL is the credential lifetime. Defaults to one hour.
	TTL time.Duration
	// Secret is the HS256 signing key. A random key is used when empty.
	Secret []byte
	// Now overrides time.Now.
	Now func() time.Time
	// Logger defaults to zap.NewNop.
	Logger *zap.Logger
	// Password overrides the hashing parameters.
	Password *password.Config

	// Redis enables failed-login throttling when set.
	Redis redis.UniversalClient
	// MaxLoginAttempts and LoginCooldown tune the throttle.
	MaxLoginAttempts int
	LoginCooldown    time.Duration
}

type user struct {
	email       string
	displayName *string
	hash        string
}

// Server implements the analysis service. It is safe for concurrent use.
type Server struct {
	router chi.Router
	tokens *jwt.Manager
	hasher *password.Argon2
	limit  *rate.Limiter
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	users   map[string]*user
	history map[string][]historyEntry
	revoked map[string]struct{}
}

type claimsContextKey struct{}

// New returns a Server with no users.
func New(cfg Config) (*Server, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return nil, err
		}
	}

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.TTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        "goassist-fake",
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	pwCfg := password.DefaultConfig()
	if cfg.Password != nil {
		pwCfg = *cfg.Password
	}
	hasher, err := password.NewArgon2(pwCfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		tokens:  tokens,
		hasher:  hasher,
		logger:  cfg.Logger,
		now:     cfg.Now,
		users:   make(map[string]*user),
		history: make(map[string][]historyEntry),
		revoked: make(map[string]struct{}),
	}
	if cfg.Redis != nil {
		s.limit = rate.New(cfg.Redis, rate.Config{
			Prefix:      "goassist-fake",
			MaxAttempts: cfg.MaxLoginAttempts,
			Cooldown:    cfg.LoginCooldown,
		})
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/login", s.handleLogin)
		auth.Post("/register", s.handleRegister)
	})
	r.Post("/analyze", s.handleAnalyze)

	r.Group(func(private chi.Router) {
		private.Use(s.requireCredential)
		private.Get("/history", s.handleListHistory)
		private.Post("/history", s.handleSaveHistory)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser creates an account directly, bypassing registration.
func (s *Server) AddUser(email, pw string, displayName *string) error {
	_, err := s.createUser(email, pw, displayName)
	return err
}

// Revoke makes the server reject credential from now on. It reports whether
// credential was a token this server issued.
func (s *Server) Revoke(credential string) bool {
	claims, err := jwt.Inspect(credential)
	if err != nil || claims.ID == "" {
		return false
	}
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
	return true
}

// HistoryLen returns the number of saved entries for email.
func (s *Server) HistoryLen(email string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[normalizeEmail(email)])
}

/*
====================================
AUTH
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	if s.limit != nil {
		if err := s.limit.Check(ctx, req.Email); errors.Is(err, rate.ErrRateLimited) {
			s.writeError(w, http.StatusTooManyRequests, throttledMessage)
			return
		} else if err != nil {
			s.logger.Warn("login throttle unavailable", zap.Error(err))
		}
	}

	s.mu.RLock()
	u := s.users[normalizeEmail(req.Email)]
	s.mu.RUnlock()

	ok := false
	if u != nil {
		var err error
		ok, err = s.hasher.Verify(req.Password, u.hash)
		ok = ok && err == nil
	}
	if !ok {
		s.logger.Info("login rejected", zap.String("email", req.Email))
		s.loginFailed(ctx, req.Email)
		s.writeError(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}

	if s.limit != nil {
		if err := s.limit.Reset(ctx, req.Email); err != nil {
			s.logger.Warn("login throttle reset", zap.Error(err))
		}
	}
	s.issue(w, u)
}

func (s *Server) loginFailed(ctx context.Context, email string) {
	if s.limit == nil {
		return
	}
	if err := s.limit.Fail(ctx, email); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		s.logger.Warn("login throttle unavailable", zap.Error(err))
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	u, err := s.createUser(req.Email, req.Password, req.DisplayName)
	switch {
	case errors.Is(err, errEmailTaken):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.issue(w, u)
}

var (
	errInvalidEmail    = errors.New("Invalid email format")
	errInvalidPassword = errors.New("Password must be between 6 and 72 characters")
	errNameTooLong     = errors.New("Name must be at most 50 characters")
	errEmailTaken      = errors.New("Email already registered")
)

func (s *Server) createUser(email, pw string, displayName *string) (*user, error) {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, errInvalidEmail
	}
	if displayName != nil && utf8.RuneCountInString(*displayName) > maxDisplayName {
		return nil, errNameTooLong
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, errInvalidPassword
	}

	u := &user{email: email, displayName: displayName, hash: hash}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(email)
	if _, exists := s.users[key]; exists {
		return nil, errEmailTaken
	}
	s.users[key] = u
	return u, nil
}

func (s *Server) issue(w http.ResponseWriter, u *user) {
	name := ""
	if u.displayName != nil {
		name = *u.displayName
	}
	token, _, err := s.tokens.Issue(u.email, name)
	if err != nil {
		s.logger.Error("issue credential", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Could not issue credential")
		return
	}

	s.logger.Info("credential issued", zap.String("email", u.email))
	s.writeJSON(w, http.StatusOK, authResponse{
		Credential:      token,
		TTLMilliseconds: s.tokens.TTL().Milliseconds(),
		Email:           u.email,
		DisplayName:     u.displayName,
	})
}

func (s *Server) requireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := s.tokens.Parse(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}
		s.mu.RLock()
		_, revoked := s.revoked[claims.ID]
		s.mu.RUnlock()
		if revoked {
			s.writeError(w, http.StatusUnauthorized, unauthorizedMessage)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *jwt.Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return c
}

/*
====================================
ANALYSIS AND HISTORY
====================================
*/

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	trace := strings.TrimSpace(req.StackTrace)
	if n := utf8.RuneCountInString(trace); n < minStackTrace || n > maxStackTrace {
		s.writeError(w, http.StatusBadRequest, "Stack trace must be between 10 and 50000 characters")
		return
	}

	resp, err := analyze(trace, s.now())
	switch {
	case errors.Is(err, errUnsupportedLanguage):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	key := normalizeEmail(claimsFrom(r.Context()).Email)

	s.mu.RLock()
	entries := slices.Clone(s.history[key])
	s.mu.RUnlock()

	slices.Reverse(entries)
	if entries == nil {
		entries = []historyEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	var req saveHistoryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.StackTraceSnippet) == "" {
		s.writeError(w, http.StatusBadRequest, "Stack trace snippet is required")
		return
	}

	snippet := req.StackTraceSnippet
	if utf8.RuneCountInString(snippet) > maxSnippet {
		snippet = string([]rune(snippet)[:maxSnippet])
	}
	entry := historyEntry{
		ID:                uuid.NewString(),
		StackTraceSnippet: snippet,
		Language:          req.Language,
		ExceptionType:     req.ExceptionType,
		SearchURL:         req.SearchURL,
		SearchedAt:        s.now().UTC(),
	}

	key := normalizeEmail(claimsFrom(r.Context()).Email)
	s.mu.Lock()
	s.history[key] = append(s.history[key], entry)
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, entry)
}

/*
====================================
HELPERS
====================================
*/

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := io.LimitReader(r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Message: message, Timestamp: s.now().UTC()})
}
