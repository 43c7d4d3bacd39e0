// Package observability holds the process-level logging and error reporting setup: a JSON slog
// logger carried through request contexts, Sentry initialization, and an audit sink that
// escalates critical security events to Sentry.
package observability
