package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrBackendUnavailable wraps failures reported by a [Backend].
var ErrBackendUnavailable = errors.New("credential backend unavailable")

// Backend is the durable key/value medium behind a [CredentialStore].
//
// Implementations must treat a missing key as found == false with a nil
// error, and DeleteAll of missing keys as success.
type Backend interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	SetAll(ctx context.Context, entries map[string]string, ttl time.Duration) error
	DeleteAll(ctx context.Context, keys ...string) error
}

// CredentialStore is the durable mirror of a [Session].
//
// The store has no policy: it does not look at expiry. Write failures are
// swallowed, Read never fails, and Clear is idempotent.
type CredentialStore struct {
	backend Backend
	keys    Keys
	logger  *zap.Logger
	now     func() time.Time
}

// StoreOption configures a [CredentialStore].
type StoreOption func(*CredentialStore)

// WithStoreLogger sets the logger used for swallowed backend failures.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *CredentialStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStoreClock overrides the clock used to derive backend key TTLs.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCredentialStore creates a store over backend with entries named after prefix.
func NewCredentialStore(backend Backend, prefix string, opts ...StoreOption) *CredentialStore {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &CredentialStore{
		backend: backend,
		keys:    NewKeys(prefix),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys returns the entry names used by the store.
func (s *CredentialStore) Keys() Keys {
	return s.keys
}

// Write persists all three entries of sess in one batch.
func (s *CredentialStore) Write(ctx context.Context, sess *Session) {
	entries, err := Encode(s.keys, sess)
	if err != nil {
		s.logger.Warn("credential store: refusing to write incomplete session", zap.Error(err))
		return
	}

	ttl := sess.Expiry().Sub(s.now())
	if ttl < 0 {
		ttl = 0
	}

	if err := s.backend.SetAll(ctx, entries, ttl); err != nil {
		s.logger.Warn("credential store: write failed", zap.Error(err))
	}
}

// Read returns the persisted session candidate, or nil when any entry is
// missing or unparsable. In the latter case the store is cleared.
func (s *CredentialStore) Read(ctx context.Context) *Session {
	credential, okCred, err := s.backend.Get(ctx, s.keys.Credential)
	if err != nil {
		return s.heal(ctx, err)
	}
	identity, okID, err := s.backend.Get(ctx, s.keys.Identity)
	if err != nil {
		return s.heal(ctx, err)
	}
	expiresAt, okExp, err := s.backend.Get(ctx, s.keys.ExpiresAt)
	if err != nil {
		return s.heal(ctx, err)
	}

	if !okCred && !okID && !okExp {
		return nil
	}
	if !okCred || !okID || !okExp {
		return s.heal(ctx, ErrCorrupt)
	}

	sess, err := Decode(credential, identity, expiresAt)
	if err != nil {
		return s.heal(ctx, err)
	}
	return sess
}

// Clear removes all three entries.
func (s *CredentialStore) Clear(ctx context.Context) {
	if err := s.backend.DeleteAll(ctx, s.keys.All()...); err != nil {
		s.logger.Warn("credential store: clear failed", zap.Error(err))
	}
}

func (s *CredentialStore) heal(ctx context.Context, cause error) *Session {
	s.logger.Debug("credential store: discarding unreadable mirror", zap.Error(cause))
	s.Clear(ctx)
	return nil
}
