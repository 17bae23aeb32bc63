package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrCorrupt is returned by Decode when an entry cannot be parsed or the
// entries disagree with the session invariants.
var ErrCorrupt = errors.New("session mirror corrupt")

// Keys names the three entries of a persisted session.
type Keys struct {
	Credential string
	Identity   string
	ExpiresAt  string
}

// NewKeys derives the entry names for prefix.
func NewKeys(prefix string) Keys {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "goassist"
	}
	return Keys{
		Credential: prefix + ":credential",
		Identity:   prefix + ":identity",
		ExpiresAt:  prefix + ":expiresAt",
	}
}

// All returns the entry names in a stable order.
func (k Keys) All() []string {
	return []string{k.Credential, k.Identity, k.ExpiresAt}
}

// Encode serializes s into its three persisted entries.
func Encode(k Keys, s *Session) (map[string]string, error) {
	if !s.Present() {
		return nil, fmt.Errorf("%w: session is not fully populated", ErrCorrupt)
	}

	identity, err := json.Marshal(s.Identity)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		k.Credential: s.Credential,
		k.Identity:   string(identity),
		k.ExpiresAt:  strconv.FormatInt(s.ExpiresAt, 10),
	}, nil
}

// Decode rebuilds a session from its raw entries.
func Decode(credential, identity, expiresAt string) (*Session, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrCorrupt)
	}

	exp, err := strconv.ParseInt(strings.TrimSpace(expiresAt), 10, 64)
	if err != nil || exp <= 0 {
		return nil, fmt.Errorf("%w: invalid expiry %q", ErrCorrupt, expiresAt)
	}

	var id Identity
	if err := json.Unmarshal([]byte(identity), &id); err != nil {
		return nil, fmt.Errorf("%w: identity: %v", ErrCorrupt, err)
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: identity without email", ErrCorrupt)
	}

	return &Session{
		Identity:   id,
		Credential: credential,
		ExpiresAt:  exp,
	}, nil
}
