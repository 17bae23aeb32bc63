package goAssist

import (
	"errors"

	"github.com/MrEthical07/goAssist/gate"
	"github.com/MrEthical07/goAssist/gateway"
	"github.com/MrEthical07/goAssist/session"
)

var (
	// ErrSuperseded is returned by Login and Register when another session
	// transition committed while the call was in flight.
	ErrSuperseded = session.ErrSuperseded
	// ErrNotReady is returned by Client methods after Close.
	ErrNotReady = errors.New("client is closed")
	// ErrGateLoading is returned by gated calls while the session is restoring.
	ErrGateLoading = gate.ErrLoading
	// ErrGateDenied is returned by gated calls without a session.
	ErrGateDenied = gate.ErrDenied
	// ErrStackTraceInvalid is returned by Analyze for out-of-range input.
	ErrStackTraceInvalid = errors.New("stack trace must be between 10 and 50000 characters")
	// ErrHistorySnippetRequired is returned by SaveHistory without a snippet.
	ErrHistorySnippetRequired = errors.New("stack trace snippet is required")
	// ErrBuilderUsed is returned by a second Build call.
	ErrBuilderUsed = errors.New("builder already used")
)

// Error is the failure type of every remote call.
type Error = gateway.Error

// AsError extracts the remote call failure from err.
func AsError(err error) (*Error, bool) {
	return gateway.AsError(err)
}

// StatusCode returns the HTTP status carried by err, or 0 for transport
// failures and non-remote errors.
func StatusCode(err error) int {
	return gateway.StatusCode(err)
}
