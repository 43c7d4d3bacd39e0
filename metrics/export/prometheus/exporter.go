package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// MetricsSource is the read side of an engine. *lovelace.Engine satisfies it.
type MetricsSource interface {
	MetricsSnapshot() lovelace.MetricsSnapshot
	AuditDropped() uint64
	NotificationDropped() uint64
	RevocationDegradedEntries() int
}

// PrometheusExporter renders engine metrics in the Prometheus text exposition format.
type PrometheusExporter struct {
	source MetricsSource
}

// NewPrometheusExporter reads from engine.
func NewPrometheusExporter(engine *lovelace.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any [MetricsSource].
func NewPrometheusExporterFromSource(source MetricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves [PrometheusExporter.Render] for a scrape endpoint.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current exposition. It is empty when the engine has metrics disabled
// and no engine-level value is non-zero.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	auditDropped := p.source.AuditDropped()
	notifyDropped := p.source.NotificationDropped()
	degraded := p.source.RevocationDegradedEntries()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 &&
		auditDropped == 0 && notifyDropped == 0 && degraded == 0 {
		return ""
	}

	w := &writer{}
	w.Grow(8192)
	for _, def := range internaldefs.CounterDefs {
		w.header(def.Name, def.Help, "counter")
		w.sample(def.Name, "", strconv.FormatUint(snapshot.Counters[def.ID], 10))
	}
	for _, def := range internaldefs.HistogramDefs {
		w.histogram(def.Name, def.Help,
			internaldefs.Cumulative(snapshot.Histograms[def.ID]),
			snapshot.HistogramSums[def.ID].Seconds())
	}

	w.header(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	w.sample(internaldefs.AuditDroppedName, "", strconv.FormatUint(auditDropped, 10))
	w.header(internaldefs.NotificationDroppedName, internaldefs.NotificationDroppedHelp, "counter")
	w.sample(internaldefs.NotificationDroppedName, "", strconv.FormatUint(notifyDropped, 10))
	w.header(internaldefs.RevocationDegradedEntryName, internaldefs.RevocationDegradedEntryHelp, "gauge")
	w.sample(internaldefs.RevocationDegradedEntryName, "", strconv.Itoa(degraded))
	return w.String()
}

type writer struct {
	strings.Builder
}

func (w *writer) header(name, help, kind string) {
	help = strings.ReplaceAll(help, `\`, `\\`)
	help = strings.ReplaceAll(help, "\n", `\n`)
	w.WriteString("# HELP " + name + " " + help + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *writer) sample(name, labels, value string) {
	w.WriteString(name)
	if labels != "" {
		w.WriteString("{" + labels + "}")
	}
	w.WriteString(" " + value + "\n")
}

func (w *writer) histogram(name, help string, cumulative []uint64, sumSeconds float64) {
	w.header(name, help, "histogram")
	for i, bucket := range internaldefs.Buckets {
		w.sample(name+"_bucket", `le="`+bucket.LE+`"`, strconv.FormatUint(cumulative[i], 10))
	}
	w.sample(name+"_sum", "", strconv.FormatFloat(sumSeconds, 'g', -1, 64))
	w.sample(name+"_count", "", strconv.FormatUint(cumulative[len(cumulative)-1], 10))
}
