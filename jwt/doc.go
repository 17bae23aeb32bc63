// Package jwt issues and verifies the bearer credentials handed out by the
// local analysis service, and lets clients inspect a credential's claims
// without verifying it.
//
// The client library never verifies credentials itself: the server is the
// only authority, and a rejected credential surfaces as a 401. [Inspect] is
// for display only.
package jwt
