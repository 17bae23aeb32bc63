package session

import (
	"context"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAuth struct {
	grant   *Grant
	err     error
	calls   int
	release chan struct{}
	entered chan struct{}
	mu      sync.Mutex
}

func (f *fakeAuth) Login(ctx context.Context, email, _ string) (*Grant, error) {
	return f.exchange(email)
}

func (f *fakeAuth) Register(ctx context.Context, email, _ string, name *string) (*Grant, error) {
	g, err := f.exchange(email)
	if g != nil {
		g.Identity.DisplayName = name
	}
	return g, err
}

func (f *fakeAuth) exchange(email string) (*Grant, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	g := *f.grant
	if g.Identity.Email == "" {
		g.Identity.Email = email
	}
	return &g, nil
}

func newTestManager(auth Authenticator, cfg Config) (*Manager, *MemoryBackend, *fakeClock) {
	backend := NewMemoryBackend()
	clock := newFakeClock()
	store := NewCredentialStore(backend, "test", WithStoreClock(clock.Now))
	mgr := NewManager(store, auth, cfg, WithClock(clock.Now))
	return mgr, backend, clock
}

func strPtr(s string) *string { return &s }
