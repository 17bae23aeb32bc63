package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxResponseBytes bounds how much of a response body is read.
	DefaultMaxResponseBytes int64 = 4 << 20
	// DefaultTimeout is the per-request timeout of the default HTTP client.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "goassist-go"

	// HeaderRequestID carries the per-call correlation id.
	HeaderRequestID = "X-Request-ID"
)

// SessionSource is the view of the session the Gateway needs. It is
// implemented by session.Manager.
type SessionSource interface {
	// Credential returns the credential to attach and the generation it
	// belongs to; ok is false when no unexpired session is held.
	Credential() (token string, generation uint64, ok bool)
	// InvalidateGeneration tears the session down unless it changed since
	// generation was observed.
	InvalidateGeneration(ctx context.Context, generation uint64) bool
}

// Config holds Gateway connection settings.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	UserAgent        string
	MaxResponseBytes int64
}

// Outcome describes one finished call. Err is nil on success.
type Outcome struct {
	Method      string
	Path        string
	RequestID   string
	StatusCode  int
	Duration    time.Duration
	Credential  bool
	Invalidated bool
	Err         *Error
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithHTTPClient replaces the default HTTP client. Config.Timeout is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithLogger sets the Gateway logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver registers fn to receive the [Outcome] of every call.
func WithObserver(fn func(Outcome)) Option {
	return func(g *Gateway) {
		g.observe = fn
	}
}

// WithRequestIDGenerator overrides the X-Request-ID generator.
func WithRequestIDGenerator(fn func() string) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// Gateway performs JSON calls against the analysis service.
type Gateway struct {
	cfg     Config
	base    string
	client  *http.Client
	session SessionSource
	logger  *zap.Logger
	observe func(Outcome)
	newID   func() string
}

// New creates a Gateway. session may be nil for a credential-less Gateway.
func New(cfg Config, session SessionSource, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("gateway: base url must be http or https")
	}
	if u.Host == "" {
		return nil, errors.New("gateway: base url host is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	g := &Gateway{
		cfg:     cfg,
		base:    strings.TrimRight(u.String(), "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		session: session,
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type requestOptions struct {
	anonymous bool
	header    http.Header
	status    *int
}

// RequestOption configures a single call.
type RequestOption func(*requestOptions)

// WithoutCredential sends the request without an Authorization header even
// when a session is held. Used for login and registration.
//
// A 401 on such a request never invalidates the session: a rejected login
// or registration leaves the held session and state unchanged, and that
// rule takes precedence over 401 invalidation.
func WithoutCredential() RequestOption {
	return func(o *requestOptions) {
		o.anonymous = true
	}
}

// WithHeader adds a header to the request.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Add(key, value)
	}
}

// CaptureStatus stores the response status code in dst once a response
// arrives.
func CaptureStatus(dst *int) RequestOption {
	return func(o *requestOptions) {
		o.status = dst
	}
}

// Get performs a GET and decodes the response into out.
func (g *Gateway) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return g.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post performs a POST of body as JSON and decodes the response into out.
func (g *Gateway) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return g.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Do performs one call. body is encoded as JSON when non-nil; a 2xx
// response is decoded into out when out is non-nil and the body is
// non-empty. Every failure is a *Error.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	oc := Outcome{Method: method, Path: path, RequestID: g.newID()}
	start := time.Now()
	finish := func(e *Error) error {
		oc.Duration = time.Since(start)
		if e != nil {
			e.RequestID = oc.RequestID
			oc.Err = e
			oc.StatusCode = e.StatusCode
		}
		g.report(oc)
		if e == nil {
			return nil
		}
		return e
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return finish(&Error{Message: "encode request: " + err.Error()})
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.resolve(path), payload)
	if err != nil {
		return finish(&Error{Message: err.Error()})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set(HeaderRequestID, oc.RequestID)
	for k, vs := range ro.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// Read at dispatch so a session change just before the call is honoured.
	var generation uint64
	if !ro.anonymous && g.session != nil {
		if token, gen, ok := g.session.Credential(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
			generation = gen
			oc.Credential = true
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return finish(&Error{Message: transportMessage(err)})
	}
	defer resp.Body.Close()
	oc.StatusCode = resp.StatusCode
	if ro.status != nil {
		*ro.status = resp.StatusCode
	}

	if resp.StatusCode == http.StatusUnauthorized && oc.Credential {
		oc.Invalidated = g.session.InvalidateGeneration(context.WithoutCancel(ctx), generation)
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxResponseBytes+1))
	tooLarge := int64(len(raw)) > g.cfg.MaxResponseBytes
	if tooLarge {
		raw = raw[:g.cfg.MaxResponseBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		failure := ""
		if readErr != nil {
			failure = transportMessage(readErr)
		}
		return finish(&Error{
			Message:    errorMessage(raw, failure, resp.StatusCode),
			StatusCode: resp.StatusCode,
		})
	}

	if readErr != nil {
		return finish(&Error{Message: transportMessage(readErr), StatusCode: resp.StatusCode})
	}
	if tooLarge {
		return finish(&Error{Message: "response body too large", StatusCode: resp.StatusCode})
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return finish(&Error{Message: "invalid response body: " + err.Error(), StatusCode: resp.StatusCode})
		}
	}
	return finish(nil)
}

func (g *Gateway) resolve(path string) string {
	if path == "" {
		return g.base
	}
	return g.base + "/" + strings.TrimLeft(path, "/")
}

func (g *Gateway) report(oc Outcome) {
	if oc.Err != nil {
		g.logger.Debug("gateway call failed",
			zap.String("method", oc.Method),
			zap.String("path", oc.Path),
			zap.Int("status", oc.StatusCode),
			zap.String("request_id", oc.RequestID),
			zap.Bool("invalidated", oc.Invalidated),
			zap.String("message", oc.Err.Message),
		)
	}
	if g.observe != nil {
		g.observe(oc)
	}
}

// errorMessage applies the message precedence: a structured message field,
// the raw textual body, the transport failure, the status text, then
// DefaultMessage.
func errorMessage(body []byte, failure string, status int) string {
	var structured struct {
		Message any `json:"message"`
	}
	if json.Unmarshal(body, &structured) == nil {
		if s, ok := structured.Message.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && utf8.Valid(body) {
		return text
	}
	if failure != "" {
		return failure
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return DefaultMessage
}

func transportMessage(err error) string {
	if err == nil {
		return DefaultMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultMessage
}
