// Package authsession manages the client side of an authenticated session: it logs a
// user in against a remote API, persists the returned session record, restores it on
// the next start, and logs the user out automatically when the bearer credential
// expires.
//
// # Architecture boundaries
//
// authsession is the public surface. It exposes [Manager], [Builder], [Config],
// [SessionSubject] and the value types (State, Record, User). Storage backends live in
// session, token decoding in jwt, timers in scheduler, HTTP transport in client.
//
// # Concurrency
//
// Manager methods are safe to call from multiple goroutines. Every session-changing
// operation runs under one lock, so observers of the [SessionSubject] see state changes
// in the order the manager applied them. HTTP calls are made outside the lock; each
// operation records an epoch so that a login response arriving after a later logout can
// be recognised (see [SessionConfig.DiscardStaleLogins]).
//
// # What this package must NOT do
//
//   - Validate token signatures; the client never holds the issuer's key.
//   - Retry API calls; callers decide whether to try again.
//   - Log access tokens.
package authsession
