// Package gateway wraps every outbound call to the analysis service.
//
// # Request policy
//
// The bearer credential is read from the [SessionSource] at dispatch time,
// never when the call is constructed. Requests marked [WithoutCredential]
// never carry one. Every request carries a fresh X-Request-ID.
//
// # Response policy
//
// Any non-2xx status or transport failure is returned as a [*Error]. A 401
// on a request that carried a credential invalidates the session for the
// generation observed at dispatch before the error is returned.
//
// # What this package must NOT do
//
//   - Retry requests.
//   - Write the credential store (session.Manager owns it).
//   - Log credentials or request bodies.
package gateway
