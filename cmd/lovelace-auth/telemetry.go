package main

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/aloneinabyss/lovelace"
	otelexport "github.com/aloneinabyss/lovelace/metrics/export/otel"
)

const meterName = "github.com/aloneinabyss/lovelace"

// stdoutReader pushes a JSON encoding of every collection to w.
func stdoutReader(w io.Writer, interval time.Duration) func() (sdkmetric.Reader, error) {
	return func() (sdkmetric.Reader, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)), nil
	}
}

// startOTelMetrics installs an SDK meter provider as the global one and registers the engine's
// instruments on it. The returned function flushes the provider, then unregisters them.
func startOTelMetrics(engine *lovelace.Engine, newReader func() (sdkmetric.Reader, error)) (func(context.Context) error, error) {
	reader, err := newReader()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	exporter, err := otelexport.NewOTelExporter(provider.Meter(meterName), engine)
	if err != nil {
		return nil, errors.Join(err, provider.Shutdown(context.Background()))
	}
	return func(ctx context.Context) error {
		err := provider.Shutdown(ctx)
		return errors.Join(err, exporter.Close())
	}, nil
}
