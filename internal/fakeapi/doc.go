// Package fakeapi is an in-process implementation of the remote analysis
// service. It serves the auth, analysis and history endpoints the client
// talks to and is used by tests and by cmd/goassist-fake.
//
// Users live in memory with Argon2id password hashes. Credentials are
// HS256 JWTs with a fixed lifetime and can be revoked to simulate a server
// that stops honouring a session.
package fakeapi
