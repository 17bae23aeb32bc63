package gateway

import (
	"errors"
	"strconv"
)

// DefaultMessage is the message of last resort.
const DefaultMessage = "An error occurred"

// Error is the single failure type returned by [Gateway] calls.
//
// StatusCode is zero when no response was received.
type Error struct {
	Message    string
	StatusCode int
	RequestID  string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return strconv.Itoa(e.StatusCode) + ": " + e.Message
}

// Unauthorized reports whether the server rejected the credential.
func (e *Error) Unauthorized() bool {
	return e.StatusCode == 401
}

// Transport reports whether the call failed before a response arrived.
func (e *Error) Transport() bool {
	return e.StatusCode == 0
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// StatusCode returns the status carried by err, or 0.
func StatusCode(err error) int {
	if ge, ok := AsError(err); ok {
		return ge.StatusCode
	}
	return 0
}
