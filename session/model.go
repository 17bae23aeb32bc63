package session

import "time"

// Identity is the user the session was issued for.
type Identity struct {
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
}

// Session is the authenticated state recognized by the client.
//
// Identity, Credential, and ExpiresAt are populated together; the zero value
// is the absent session.
type Session struct {
	Identity   Identity
	Credential string
	// ExpiresAt is an absolute instant in epoch milliseconds.
	ExpiresAt int64
}

// Present reports whether all three fields are populated.
func (s *Session) Present() bool {
	return s != nil && s.Credential != "" && s.Identity.Email != "" && s.ExpiresAt > 0
}

// ExpiredAt reports whether the session is expired at now.
// A session whose expiry equals now is already expired.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s == nil || s.ExpiresAt <= now.UnixMilli()
}

// Expiry returns ExpiresAt as a time.Time.
func (s *Session) Expiry() time.Time {
	if s == nil {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpiresAt)
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Identity.DisplayName != nil {
		name := *s.Identity.DisplayName
		out.Identity.DisplayName = &name
	}
	return &out
}

// Grant is the result of a successful login or registration exchange.
type Grant struct {
	Credential string
	Identity   Identity
	TTL        time.Duration
}

// State is the lifecycle state of a [Manager].
type State uint8

const (
	// StateInitializing is held from construction until Restore commits.
	StateInitializing State = iota
	// StateAnonymous means no valid session is held.
	StateAnonymous
	// StateAuthenticated means a valid session is held.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}
