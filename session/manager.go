package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned by Login and Register when another transition
	// committed while the exchange was outstanding. The late result is discarded.
	ErrSuperseded = errors.New("session superseded while authenticating")
	// ErrInvalidGrant is returned when an Authenticator yields an incomplete grant.
	ErrInvalidGrant = errors.New("invalid authentication grant")
	// ErrNoAuthenticator is returned by Login and Register on a Manager built without one.
	ErrNoAuthenticator = errors.New("no authenticator configured")
)

// Authenticator performs the remote login and registration exchanges.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*Grant, error)
	Register(ctx context.Context, email, password string, displayName *string) (*Grant, error)
}

// Reason explains why a transition happened.
type Reason uint8

const (
	ReasonRestored Reason = iota + 1
	ReasonLogin
	ReasonRegister
	ReasonLogout
	ReasonInvalidated
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonRestored:
		return "restored"
	case ReasonLogin:
		return "login"
	case ReasonRegister:
		return "register"
	case ReasonLogout:
		return "logout"
	case ReasonInvalidated:
		return "invalidated"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Change describes a committed transition. Identity is nil unless State is
// StateAuthenticated.
type Change struct {
	State      State
	Reason     Reason
	Identity   *Identity
	Generation uint64
}

// Config controls Manager policy.
type Config struct {
	// DiscardSupersededLogins drops a login/register result when another
	// transition committed while it was outstanding.
	DiscardSupersededLogins bool
	// AutoExpire schedules a teardown at the session's expiry instant.
	AutoExpire bool
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithLogger sets the Manager logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

type observer struct {
	id uint64
	fn func(Change)
}

// Manager is the single authoritative owner of session state and the only
// writer of its [CredentialStore].
//
// Transitions are serialized and atomic with respect to [Manager.Current].
// No lock is held while an Authenticator exchange is outstanding. Observers
// are notified after the lock is released, in commit order; they must not
// call mutating Manager methods synchronously.
type Manager struct {
	cfg    Config
	store  *CredentialStore
	auth   Authenticator
	logger *zap.Logger
	now    func() time.Time

	// transitionMu serializes commit+notify so observers see commit order.
	transitionMu sync.Mutex

	mu         sync.RWMutex
	state      State
	current    *Session
	generation uint64
	expiry     *time.Timer

	obsMu     sync.RWMutex
	observers []observer
	nextObsID uint64
}

// NewManager creates a Manager in StateInitializing. Call Restore once at start.
func NewManager(store *CredentialStore, auth Authenticator, cfg Config, opts ...ManagerOption) *Manager {
	if store == nil {
		store = NewCredentialStore(nil, "")
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		auth:   auth,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  StateInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetAuthenticator wires the exchange used by Login and Register. It exists
// to break the construction cycle between the Manager and a gateway-backed
// authenticator; call it before the Manager is shared.
func (m *Manager) SetAuthenticator(auth Authenticator) {
	m.mu.Lock()
	m.auth = auth
	m.mu.Unlock()
}

// Restore reads the Credential Store and leaves StateInitializing. Only the
// first call has an effect; later calls return the current state.
//
// Corrupt or expired mirrors are cleared and yield StateAnonymous; Restore
// never fails.
func (m *Manager) Restore(ctx context.Context) State {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if m.state != StateInitializing {
		state := m.readState()
		m.mu.Unlock()
		return state
	}

	reason := ReasonRestored
	sess := m.store.Read(ctx)
	switch {
	case sess == nil:
		m.commitLocked(nil)
	case sess.ExpiredAt(m.now()):
		m.store.Clear(ctx)
		reason = ReasonExpired
		m.commitLocked(nil)
	default:
		m.commitLocked(sess)
	}
	change := m.changeLocked(reason)
	m.mu.Unlock()

	m.logger.Debug("session restored",
		zap.Stringer("state", change.State),
		zap.Stringer("reason", reason),
	)
	m.notify(change)
	return change.State
}

// Login exchanges email and password for a session.
//
// On failure the state is unchanged and the Authenticator error is returned
// verbatim.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	return m.authenticate(ctx, ReasonLogin, func(ctx context.Context, auth Authenticator) (*Grant, error) {
		return auth.Login(ctx, email, password)
	})
}

// Register creates an account and establishes its session.
func (m *Manager) Register(ctx context.Context, email, password string, displayName *string) (*Session, error) {
	return m.authenticate(ctx, ReasonRegister, func(ctx context.Context, auth Authenticator) (*Grant, error) {
		return auth.Register(ctx, email, password, displayName)
	})
}

func (m *Manager) authenticate(
	ctx context.Context,
	reason Reason,
	exchange func(context.Context, Authenticator) (*Grant, error),
) (*Session, error) {
	m.mu.RLock()
	auth := m.auth
	startGen := m.generation
	m.mu.RUnlock()

	if auth == nil {
		return nil, ErrNoAuthenticator
	}

	grant, err := exchange(ctx, auth)
	if err != nil {
		return nil, err
	}
	if grant == nil || grant.Credential == "" || grant.Identity.Email == "" || grant.TTL <= 0 {
		return nil, ErrInvalidGrant
	}

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if m.cfg.DiscardSupersededLogins && m.generation != startGen {
		m.mu.Unlock()
		m.logger.Info("discarding superseded authentication", zap.Stringer("reason", reason))
		return nil, ErrSuperseded
	}

	sess := &Session{
		Identity:   grant.Identity,
		Credential: grant.Credential,
		ExpiresAt:  m.now().Add(grant.TTL).UnixMilli(),
	}
	m.store.Write(context.WithoutCancel(ctx), sess)
	m.commitLocked(sess)
	change := m.changeLocked(reason)
	m.mu.Unlock()

	m.logger.Info("session established",
		zap.Stringer("reason", reason),
		zap.String("email", sess.Identity.Email),
		zap.Time("expires_at", sess.Expiry()),
	)
	m.notify(change)
	return sess.Clone(), nil
}

// Logout clears the store and resets to StateAnonymous, even when no
// session is held. It performs no network call.
func (m *Manager) Logout(ctx context.Context) {
	m.teardown(ctx, ReasonLogout, nil)
}

// Invalidate is the forced counterpart of Logout, used when the server
// rejects the credential.
func (m *Manager) Invalidate(ctx context.Context) {
	m.teardown(ctx, ReasonInvalidated, nil)
}

// InvalidateGeneration invalidates only if no transition committed since
// generation was observed. It reports whether a teardown happened.
func (m *Manager) InvalidateGeneration(ctx context.Context, generation uint64) bool {
	return m.teardown(ctx, ReasonInvalidated, &generation)
}

// Sweep tears the session down if it has expired. It reports whether a
// teardown happened.
func (m *Manager) Sweep(ctx context.Context) bool {
	m.mu.RLock()
	expired := m.state == StateAuthenticated && m.current.ExpiredAt(m.now())
	gen := m.generation
	m.mu.RUnlock()
	if !expired {
		return false
	}
	return m.teardown(ctx, ReasonExpired, &gen)
}

func (m *Manager) teardown(ctx context.Context, reason Reason, generation *uint64) bool {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.mu.Lock()
	if generation != nil && *generation != m.generation {
		m.mu.Unlock()
		return false
	}
	m.store.Clear(context.WithoutCancel(ctx))
	m.commitLocked(nil)
	change := m.changeLocked(reason)
	m.mu.Unlock()

	m.logger.Info("session cleared", zap.Stringer("reason", reason))
	m.notify(change)
	return true
}

// Current returns a copy of the present, unexpired session or nil.
// It has no side effects.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.ExpiredAt(m.now()) {
		return nil
	}
	return m.current.Clone()
}

// State returns the lifecycle state. An authenticated session whose expiry
// has passed reads as StateAnonymous.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readState()
}

// Generation returns the number of committed transitions.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Credential returns the bearer credential to attach at dispatch time along
// with the generation it belongs to. ok is false when no unexpired session
// is held.
func (m *Manager) Credential() (token string, generation uint64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.ExpiredAt(m.now()) {
		return "", m.generation, false
	}
	return m.current.Credential, m.generation, true
}

// Subscribe registers fn to be called after every committed transition.
// The returned func removes the subscription.
func (m *Manager) Subscribe(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}

	m.obsMu.Lock()
	m.nextObsID++
	id := m.nextObsID
	m.observers = append(m.observers, observer{id: id, fn: fn})
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			defer m.obsMu.Unlock()
			for i, o := range m.observers {
				if o.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close stops the expiry timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
}

func (m *Manager) readState() State {
	if m.state == StateAuthenticated && m.current.ExpiredAt(m.now()) {
		return StateAnonymous
	}
	return m.state
}

// commitLocked installs sess (nil for anonymous) and bumps the generation.
func (m *Manager) commitLocked(sess *Session) {
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}

	m.generation++
	if sess == nil {
		m.current = nil
		m.state = StateAnonymous
		return
	}

	m.current = sess
	m.state = StateAuthenticated

	if m.cfg.AutoExpire {
		gen := m.generation
		wait := sess.Expiry().Sub(m.now())
		m.expiry = time.AfterFunc(wait, func() {
			m.teardown(context.Background(), ReasonExpired, &gen)
		})
	}
}

func (m *Manager) changeLocked(reason Reason) Change {
	c := Change{
		State:      m.state,
		Reason:     reason,
		Generation: m.generation,
	}
	if m.current != nil {
		id := m.current.Clone().Identity
		c.Identity = &id
	}
	return c
}

func (m *Manager) notify(c Change) {
	m.obsMu.RLock()
	observers := make([]observer, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.RUnlock()

	for _, o := range observers {
		o.fn(c)
	}
}
