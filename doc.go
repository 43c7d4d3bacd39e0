// Package lovelace is an authentication core: account registration with email verification,
// password login, HMAC-signed access and refresh tokens, refresh rotation with reuse detection,
// a Redis-backed revocation list and fixed-window rate limiting.
//
// Engine methods are safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// lovelace is the public surface. It exposes [Engine], [Builder], [Config], the
// [UserProvider] and [Notifier] ports and the error taxonomy. Token encoding lives in jwt,
// hashing in password and revocation in revocation. Flow helpers, rate counters and the
// async dispatcher live under internal/ and are never exported.
//
// The engine never stores raw tokens. Revocation entries and single-use tokens are kept as
// SHA-256 digests, and revocation entries expire when the token would have.
//
// # Failure policy
//
// Revocation checks fail closed: if Redis cannot answer, refresh and authenticate return
// [ErrRevocationUnavailable]. Revoking writes fall back to an in-process list so logout
// still takes effect. Rate limiting fails open onto a per-process counter and reports the
// decision as degraded.
package lovelace
