// Package otel publishes lovelace engine metrics through OpenTelemetry observable instruments.
//
// One callback reads [lovelace.Engine.MetricsSnapshot] per collection cycle. Callers own the
// MeterProvider and pass in a Meter.
package otel
