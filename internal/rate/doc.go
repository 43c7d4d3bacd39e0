// Package rate provides the fixed-window request limiter used in front of the
// authentication endpoints.
//
// # Window semantics
//
// One Lua script does INCR, PEXPIRE on the first hit of a window and PTTL, so the
// counter and its expiry are created atomically. Bursts of up to twice the capacity
// across a window boundary are accepted. Key prefixes (after "ratelimit:"):
//   - login:ip:     login attempts per client IP
//   - refresh:user: refresh attempts per user id
//   - refresh:ip:   refresh attempts without a resolvable user
//   - global:ip:    everything else per client IP
//
// # Failure policy
//
// Redis errors fail open to the injected [LocalCounter]. Availability of the public API
// wins over exact limiting; this is the opposite of the revocation store.
//
// # What this package must NOT do
//
//   - Decide which bucket a request belongs to (the middleware does that).
//   - Be imported outside the lovelace module.
package rate
