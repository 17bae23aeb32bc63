package goAssist

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goAssist/gate"
	"github.com/MrEthical07/goAssist/gateway"
	"github.com/MrEthical07/goAssist/session"
	"go.uber.org/zap"
)

// Client is the entry point of the library. It owns the Session Manager,
// the Gateway and the Session Gate, and exposes the analysis service calls.
//
// All methods are safe for concurrent use.
type Client struct {
	config  Config
	logger  *zap.Logger
	session *session.Manager
	gateway *gateway.Gateway
	gate    *gate.Gate
	metrics *Metrics
	events  *eventDispatcher
	now     func() time.Time

	unsubscribe func()
	closers     []func() error
	restored    atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// Session returns the Session Manager.
func (c *Client) Session() *session.Manager {
	return c.session
}

// Gate returns the Session Gate.
func (c *Client) Gate() *gate.Gate {
	return c.gate
}

// Gateway returns the Gateway used for every remote call.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gateway
}

// Config returns a copy of the configuration the Client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// State returns the session lifecycle state.
func (c *Client) State() session.State {
	return c.session.State()
}

// Current returns a copy of the present, unexpired session or nil.
func (c *Client) Current() *session.Session {
	return c.session.Current()
}

/*
====================================
AUTHENTICATION
====================================
*/

// Login exchanges email and password for a session. Server failures are
// returned as *Error; a result overtaken by a newer transition returns
// ErrSuperseded.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	if c.closed.Load() {
		return nil, ErrNotReady
	}
	sess, err := c.session.Login(ctx, email, password)
	if err != nil {
		c.authFailed(ctx, MetricLoginFailure, EventLoginFailed, email, err)
		return nil, err
	}
	return sess, nil
}

// Register creates an account and establishes its session. displayName may
// be nil.
func (c *Client) Register(ctx context.Context, email, password string, displayName *string) (*session.Session, error) {
	if c.closed.Load() {
		return nil, ErrNotReady
	}
	sess, err := c.session.Register(ctx, email, password, displayName)
	if err != nil {
		c.authFailed(ctx, MetricRegisterFailure, EventRegisterFailed, email, err)
		return nil, err
	}
	return sess, nil
}

// Logout ends the session locally. It performs no network call and always
// leaves the client anonymous.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrNotReady
	}
	c.session.Logout(ctx)
	return nil
}

// Sweep tears down an expired session and reports whether it did.
func (c *Client) Sweep(ctx context.Context) bool {
	if c.closed.Load() {
		return false
	}
	return c.session.Sweep(ctx)
}

func (c *Client) authFailed(ctx context.Context, failure MetricID, eventType, email string, err error) {
	if errors.Is(err, ErrSuperseded) {
		c.metrics.Inc(MetricLoginSuperseded)
		c.events.Emit(ctx, SessionEvent{
			Timestamp:  c.now(),
			EventType:  EventLoginSuperseded,
			State:      c.session.State().String(),
			Email:      email,
			Generation: c.session.Generation(),
			Error:      err.Error(),
		})
		return
	}

	c.metrics.Inc(failure)
	event := SessionEvent{
		Timestamp:  c.now(),
		EventType:  eventType,
		State:      c.session.State().String(),
		Email:      email,
		Generation: c.session.Generation(),
		Error:      err.Error(),
	}
	if status := gateway.StatusCode(err); status != 0 {
		event.Metadata = map[string]string{"status": strconv.Itoa(status)}
	}
	c.events.Emit(ctx, event)
}

/*
====================================
ANALYSIS AND HISTORY
====================================
*/

// Analyze submits a stack trace for analysis. The trace is trimmed and must
// hold between MinStackTraceLength and MaxStackTraceLength characters.
// Results are returned highest score first.
func (c *Client) Analyze(ctx context.Context, stackTrace string) (*AnalyzeResponse, error) {
	if c.closed.Load() {
		return nil, ErrNotReady
	}

	trace := strings.TrimSpace(stackTrace)
	if n := utf8.RuneCountInString(trace); n < MinStackTraceLength || n > MaxStackTraceLength {
		return nil, ErrStackTraceInvalid
	}

	var resp AnalyzeResponse
	if err := c.gateway.Post(ctx, "/analyze", AnalyzeRequest{StackTrace: trace}, &resp); err != nil {
		return nil, err
	}
	SortResults(resp.Results)

	c.metrics.Inc(MetricAnalyze)
	return &resp, nil
}

// SaveHistory records an analysis in the signed-in user's history.
func (c *Client) SaveHistory(ctx context.Context, req SaveHistoryRequest) (*HistoryEntry, error) {
	if c.closed.Load() {
		return nil, ErrNotReady
	}
	if strings.TrimSpace(req.StackTraceSnippet) == "" {
		return nil, ErrHistorySnippetRequired
	}

	var entry HistoryEntry
	if err := c.gateway.Post(ctx, "/history", req, &entry); err != nil {
		return nil, err
	}

	c.metrics.Inc(MetricHistorySaved)
	return &entry, nil
}

// History lists the signed-in user's saved analyses, newest first.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	if c.closed.Load() {
		return nil, ErrNotReady
	}

	var entries []HistoryEntry
	if err := c.gateway.Get(ctx, "/history", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

/*
====================================
OBSERVABILITY
====================================
*/

// MetricsSnapshot returns the current counter values.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped returns the number of session events dropped because the
// dispatcher buffer was full.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

func (c *Client) onSessionChange(ch session.Change) {
	first := c.restored.CompareAndSwap(false, true)

	var eventType string
	switch ch.Reason {
	case session.ReasonRestored:
		eventType = EventSessionRestored
		if ch.State == session.StateAuthenticated {
			c.metrics.Inc(MetricRestoreAuthenticated)
		} else {
			c.metrics.Inc(MetricRestoreAnonymous)
		}
	case session.ReasonExpired:
		if first {
			eventType = EventSessionRestored
			c.metrics.Inc(MetricRestoreExpired)
		} else {
			eventType = EventExpired
			c.metrics.Inc(MetricSessionExpired)
		}
	case session.ReasonLogin:
		eventType = EventLogin
		c.metrics.Inc(MetricLoginSuccess)
	case session.ReasonRegister:
		eventType = EventRegister
		c.metrics.Inc(MetricRegisterSuccess)
	case session.ReasonLogout:
		eventType = EventLogout
		c.metrics.Inc(MetricLogout)
	case session.ReasonInvalidated:
		eventType = EventInvalidated
		c.metrics.Inc(MetricSessionInvalidated)
	default:
		return
	}

	event := SessionEvent{
		Timestamp:  c.now(),
		EventType:  eventType,
		State:      ch.State.String(),
		Generation: ch.Generation,
		Success:    true,
	}
	if ch.Identity != nil {
		event.Email = ch.Identity.Email
	}
	if first && ch.Reason == session.ReasonExpired {
		event.Metadata = map[string]string{"discarded": "expired"}
	}
	c.events.Emit(context.Background(), event)
}

func (c *Client) observeGateway(oc gateway.Outcome) {
	c.metrics.Inc(MetricGatewayRequest)
	c.metrics.Observe(MetricGatewayLatency, oc.Duration)
	if oc.Err == nil {
		return
	}

	c.metrics.Inc(MetricGatewayFailure)
	switch {
	case oc.Err.Unauthorized():
		c.metrics.Inc(MetricGatewayUnauthorized)
	case oc.Err.Transport():
		c.metrics.Inc(MetricGatewayTransportFailure)
	}
}

/*
====================================
SHUTDOWN
====================================
*/

// Close releases the store backend, the expiry timer and the event
// dispatcher. It is idempotent; later calls on the Client return ErrNotReady.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		if c.gate != nil {
			c.gate.Close()
		}
		if c.session != nil {
			c.session.Close()
		}
		c.closeErr = c.closeResources()
		_ = c.logger.Sync()
	})
	return c.closeErr
}

func (c *Client) closeResources() error {
	c.events.Close()

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
