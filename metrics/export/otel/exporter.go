package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is the read side of an engine. *lovelace.Engine satisfies it.
type MetricsSource interface {
	MetricsSnapshot() lovelace.MetricsSnapshot
	AuditDropped() uint64
	NotificationDropped() uint64
	RevocationDegradedEntries() int
}

// reading is everything one collection pass observes.
type reading struct {
	snapshot      lovelace.MetricsSnapshot
	auditDropped  uint64
	notifyDropped uint64
	degraded      int
}

type histogramInstruments struct {
	id      lovelace.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// OTelExporter publishes engine metrics as OTel observable instruments. Histograms are flattened
// into one cumulative gauge per bucket plus count and sum gauges, mirroring the Prometheus
// series names.
type OTelExporter struct {
	source       MetricsSource
	registration metric.Registration

	counters   map[lovelace.MetricID]metric.Int64ObservableCounter
	histograms []histogramInstruments

	auditDropped  metric.Int64ObservableCounter
	notifyDropped metric.Int64ObservableCounter
	degraded      metric.Int64ObservableGauge
}

// NewOTelExporter registers instruments on meter that read from engine on every collection.
func NewOTelExporter(meter metric.Meter, engine *lovelace.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is NewOTelExporter for any [MetricsSource].
func NewOTelExporterFromSource(meter metric.Meter, source MetricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[lovelace.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable
	track := func(o metric.Observable) { observables = append(observables, o) }

	counter := func(name, help string) (metric.Int64ObservableCounter, error) {
		c, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", name, err)
		}
		track(c)
		return c, nil
	}
	gauge := func(name, help string) (metric.Int64ObservableGauge, error) {
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", name, err)
		}
		track(g)
		return g, nil
	}

	var err error
	for _, def := range internaldefs.CounterDefs {
		if e.counters[def.ID], err = counter(def.Name, def.Help); err != nil {
			return nil, err
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramInstruments{id: def.ID, buckets: make([]metric.Int64ObservableGauge, 0, internaldefs.BucketCount)}
		for _, bucket := range internaldefs.Buckets {
			g, err := gauge(def.Name+"_bucket_le_"+bucket.Suffix, "Cumulative observations at or below "+bucket.LE+"s.")
			if err != nil {
				return nil, err
			}
			h.buckets = append(h.buckets, g)
		}
		if h.count, err = gauge(def.Name+"_count", def.Help+" Observation count."); err != nil {
			return nil, err
		}
		sumName := def.Name + "_sum"
		if h.sum, err = meter.Float64ObservableGauge(sumName, metric.WithDescription(def.Help+" Total seconds."), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", sumName, err)
		}
		track(h.sum)
		e.histograms = append(e.histograms, h)
	}

	if e.auditDropped, err = counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp); err != nil {
		return nil, err
	}
	if e.notifyDropped, err = counter(internaldefs.NotificationDroppedName, internaldefs.NotificationDroppedHelp); err != nil {
		return nil, err
	}
	if e.degraded, err = gauge(internaldefs.RevocationDegradedEntryName, internaldefs.RevocationDegradedEntryHelp); err != nil {
		return nil, err
	}

	e.registration, err = meter.RegisterCallback(e.collect, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) read() reading {
	return reading{
		snapshot:      e.source.MetricsSnapshot(),
		auditDropped:  e.source.AuditDropped(),
		notifyDropped: e.source.NotificationDropped(),
		degraded:      e.source.RevocationDegradedEntries(),
	}
}

func (e *OTelExporter) collect(_ context.Context, o metric.Observer) error {
	r := e.read()

	for id, c := range e.counters {
		o.ObserveInt64(c, int64(r.snapshot.Counters[id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.Cumulative(r.snapshot.Histograms[h.id])
		for i, g := range h.buckets {
			o.ObserveInt64(g, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(h.sum, r.snapshot.HistogramSums[h.id].Seconds())
	}
	o.ObserveInt64(e.auditDropped, int64(r.auditDropped))
	o.ObserveInt64(e.notifyDropped, int64(r.notifyDropped))
	o.ObserveInt64(e.degraded, int64(r.degraded))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
