// Package session owns the client-side authentication state: the [Session]
// model, the [CredentialStore] that mirrors it durably, and the [Manager]
// that is the single authoritative writer of both.
//
// # Persistence layout
//
// A session is persisted as three independent entries (credential, identity,
// expiry) so that a partially written or hand-edited mirror is detectable.
// Any missing or unparsable entry makes the whole mirror absent, and the
// store clears itself on read.
//
// # Architecture boundaries
//
// This package does NOT perform HTTP. Login and registration are delegated
// to an [Authenticator]; the gateway package depends on [Manager] through a
// narrow interface, never the other way around.
//
// # What this package must NOT do
//
//   - Import goAssist, gateway, or gate (no upward imports).
//   - Log credentials.
//   - Surface corrupt persisted state as an error.
package session
