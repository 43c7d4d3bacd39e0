// Package prometheus renders lovelace engine metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] exposes an [http.Handler] for a /metrics route. Counter names are
// prefixed lovelace_*_total; the single histogram is lovelace_authenticate_latency_seconds.
// Nothing is registered in a global registry and no client library is required.
package prometheus
