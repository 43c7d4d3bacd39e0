// Package revocation provides the Redis-backed token revocation (blacklist) store.
//
// # Failure policy
//
// Reads fail closed: when Redis cannot answer, [Store.IsRevoked] reports the token as revoked
// together with [ErrUnavailable]. Writes that cannot reach Redis are kept in a process-local
// degraded-mode set so this instance keeps honouring them until the token expires.
//
// # Key layout
//
//	blacklist:token:<sha256 hex of token>  ->  "1"  (TTL = remaining token lifetime)
//
// # What this package must NOT do
//
//   - Decode or validate JWTs. Callers pass the raw token and its remaining lifetime.
//   - Store raw token strings as keys.
package revocation
