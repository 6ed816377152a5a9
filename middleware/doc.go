// Package middleware carries access tokens across HTTP boundaries.
//
// # Outbound
//
//   - [Bearer] wraps an http.RoundTripper and attaches the active session's access
//     token to every request that does not already carry an Authorization header.
//
// # Inbound
//
//   - [Guard] rejects requests whose bearer token a [Verifier] does not accept and
//     injects the verified claims into the request context.
//
// This package does not decide whether a session is active. The outbound side asks a
// [TokenSource] (the session manager) and the inbound side asks a [Verifier].
package middleware
