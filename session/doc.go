// Package session provides persistence for the client-side session record: the user
// profile and bearer credential returned by the remote API after a successful login.
//
// # Storage contract
//
// Every backend stores exactly one record under the fixed key [Key]. Absence is a normal
// outcome: [Store.Load] reports it through its boolean result, never as an error. Blobs
// that fail to decode are treated as absent and removed on a best-effort basis.
//
// # Architecture boundaries
//
// This package owns the [Record] model, its JSON encoding and the [Store] backends
// (memory and Redis here, BBolt in the boltstore sub-package). It does NOT interpret
// bearer tokens or decide when a session is expired; the manager injects that knowledge
// through [WithTTL] where a backend can use it.
//
// # What this package must NOT do
//
//   - Import authsession or jwt (no upward imports).
//   - Log or otherwise expose access tokens.
package session
