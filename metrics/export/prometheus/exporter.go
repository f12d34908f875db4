package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/credguard"
	"github.com/MrEthical07/credguard/metrics/export/internaldefs"
)

// MetricsSource is satisfied by *credguard.Engine.
type MetricsSource interface {
	MetricsSnapshot() credguard.MetricsSnapshot
	AuditDropped() uint64
	MailDropped() uint64
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source MetricsSource
}

// NewPrometheusExporter reads from engine on every scrape.
func NewPrometheusExporter(engine *credguard.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any [MetricsSource].
func NewPrometheusExporterFromSource(source MetricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render at any path.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Dispatcher drop counters live outside the metrics registry.
var (
	auditDroppedFamily = family{"credguard_audit_dropped_total", "Audit events dropped under backpressure.", "counter"}
	mailDroppedFamily  = family{"credguard_mail_dropped_total", "Notification emails dropped under backpressure.", "counter"}
)

// Render returns the current metrics, or "" when nothing has been recorded.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	auditDropped := p.source.AuditDropped()
	mailDropped := p.source.MailDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && auditDropped == 0 && mailDropped == 0 {
		return ""
	}

	e := newExposition()
	for _, def := range internaldefs.CounterDefs {
		e.counter(family{def.Name, def.Help, "counter"}, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		e.histogram(family{def.Name, def.Help, "histogram"}, buckets)
	}
	e.counter(auditDroppedFamily, auditDropped)
	e.counter(mailDroppedFamily, mailDropped)
	return e.String()
}

// family is one metric name with its HELP and TYPE metadata.
type family struct {
	name string
	help string
	kind string
}

// exposition accumulates text-format samples family by family.
type exposition struct {
	strings.Builder
}

func newExposition() *exposition {
	e := &exposition{}
	e.Grow(8192)
	return e
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func (e *exposition) header(f family) {
	e.WriteString("# HELP " + f.name + " ")
	_, _ = helpEscaper.WriteString(e, f.help)
	e.WriteString("\n# TYPE " + f.name + " " + f.kind + "\n")
}

func (e *exposition) sample(name, labels string, value uint64) {
	e.WriteString(name)
	e.WriteString(labels)
	e.WriteByte(' ')
	e.WriteString(strconv.FormatUint(value, 10))
	e.WriteByte('\n')
}

func (e *exposition) counter(f family, value uint64) {
	e.header(f)
	e.sample(f.name, "", value)
}

// histogram expects cumulative buckets whose last entry is +Inf. Snapshots
// carry no observation sum, so _sum is always 0.
func (e *exposition) histogram(f family, cumulative [8]uint64) {
	e.header(f)
	for i, le := range internaldefs.HistogramBounds {
		e.sample(f.name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	e.sample(f.name+"_count", "", cumulative[len(cumulative)-1])
	e.sample(f.name+"_sum", "", 0)
}
