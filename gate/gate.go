// Package gate derives a three-valued access decision from the session
// lifecycle and adapts it to CLI commands and HTTP handlers.
//
// # Architecture boundaries
//
// The Gate holds no session state of its own. Every decision is read from
// the [SessionView] at the moment it is asked for.
//
// # What this package must NOT do
//
//   - Mutate the session.
//   - Perform network calls.
package gate

import (
	"errors"
	"slices"
	"sync"

	"github.com/MrEthical07/goAssist/session"
)

var (
	// ErrLoading is returned by Check while the session is being restored.
	ErrLoading = errors.New("session is still loading")
	// ErrDenied is returned by Check when no session is held.
	ErrDenied = errors.New("authentication required")
)

// Status is the Gate decision.
type Status uint8

const (
	StatusLoading Status = iota
	StatusDenied
	StatusAllowed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusDenied:
		return "denied"
	case StatusAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// SessionView is the read side of session.Manager.
type SessionView interface {
	State() session.State
	Current() *session.Session
	Subscribe(fn func(session.Change)) func()
}

// Gate guards protected operations.
type Gate struct {
	view  SessionView
	unsub func()

	mu        sync.Mutex
	last      Status
	observers map[uint64]func(Status)
	nextID    uint64
}

// New creates a Gate over view and starts following its transitions.
func New(view SessionView) *Gate {
	g := &Gate{
		view:      view,
		observers: make(map[uint64]func(Status)),
	}
	g.last = g.Status()
	g.unsub = view.Subscribe(g.onChange)
	return g
}

// Status evaluates the decision from the current session state.
func (g *Gate) Status() Status {
	return FromState(g.view.State())
}

// FromState maps a session state to a Gate decision.
func FromState(s session.State) Status {
	switch s {
	case session.StateAuthenticated:
		return StatusAllowed
	case session.StateAnonymous:
		return StatusDenied
	default:
		return StatusLoading
	}
}

// Check returns nil when allowed, ErrLoading or ErrDenied otherwise.
func (g *Gate) Check() error {
	switch g.Status() {
	case StatusAllowed:
		return nil
	case StatusDenied:
		return ErrDenied
	default:
		return ErrLoading
	}
}

// Identity returns the identity of the held session, if any.
func (g *Gate) Identity() (session.Identity, bool) {
	cur := g.view.Current()
	if cur == nil {
		return session.Identity{}, false
	}
	return cur.Identity, true
}

// Subscribe registers fn to be called when the decision changes. The
// returned func removes the subscription.
func (g *Gate) Subscribe(fn func(Status)) func() {
	if fn == nil {
		return func() {}
	}
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.observers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.observers, id)
		g.mu.Unlock()
	}
}

// Close stops following the session.
func (g *Gate) Close() {
	if g.unsub != nil {
		g.unsub()
	}
}

func (g *Gate) onChange(c session.Change) {
	next := FromState(c.State)

	g.mu.Lock()
	if next == g.last {
		g.mu.Unlock()
		return
	}
	g.last = next
	ids := make([]uint64, 0, len(g.observers))
	for id := range g.observers {
		ids = append(ids, id)
	}
	fns := make([]func(Status), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, g.observers[id])
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
