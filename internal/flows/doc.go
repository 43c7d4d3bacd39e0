// Package flows contains the token orchestrators behind Engine.Refresh, Engine.Authenticate and
// Engine.Logout.
//
// Each Run function accepts a typed dependency struct and returns a classified result. The
// engine owns the JWT manager, revocation store and user provider and maps results onto its
// public errors, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through the dependency structs.
package flows
