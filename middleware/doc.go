// Package middleware exposes net/http middleware built on lovelace.Engine.
//
// # Middleware
//
//   - [RequestLogger]: request id, client IP and request-scoped logger in the context, one log
//     line per request.
//   - [Recover]: converts panics into 500 responses and reports them to Sentry.
//   - [RateLimit]: fixed-window throttling per bucket with X-RateLimit-* headers.
//   - [Guard]: bearer access token authentication via Engine.Authenticate.
//   - [RequireRole]: role check on the identity stored by Guard.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse JWTs or talk to
// Redis; every decision is delegated to the Engine. Errors are written with the shared JSON
// error body.
package middleware
