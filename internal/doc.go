// Package internal contains helpers that are private to lovelace, chiefly single-use token
// generation and hashing.
//
// # Sub-packages
//
//   - dispatch: buffered single-consumer queue behind audit and notification delivery
//   - flows: refresh, validate and logout orchestrators
//   - rate: fixed-window rate limiter with a local fallback
//   - httperr: JSON error bodies for the HTTP layer
//
// # What this package must NOT do
//
//   - Export types that appear in the public lovelace API.
//   - Be imported by any package outside the lovelace module.
package internal
