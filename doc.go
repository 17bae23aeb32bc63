// Package goAssist is a client for a stack-trace analysis service: submit a
// stack trace, receive ranked external solutions, and keep a history of past
// analyses behind an authenticated session.
//
// The package is built around a single session owner. [Client] wires a
// session.Manager (state, persistence, expiry), a gateway.Gateway (credential
// attachment and failure normalization) and a gate.Gate (access decisions)
// through [Builder.Build]. Client methods are safe to call from multiple
// goroutines.
//
// # Architecture boundaries
//
// goAssist is the public surface. It exposes [Client], [Builder], [Config],
// the domain value types and the metrics and event types. Session state
// lives in session/, HTTP in gateway/, and access decisions in gate/.
//
// # What this package must NOT do
//
//   - Write the credential store (session.Manager is its only writer).
//   - Retry remote calls.
//   - Log or emit credentials.
package goAssist
