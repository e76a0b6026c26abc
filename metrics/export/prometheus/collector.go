package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goIAM "github.com/MrEthical07/goIAM"
)

// metricsSource is the slice of the engine this collector reads.
type metricsSource interface {
	MetricsSnapshot() goIAM.MetricsSnapshot
	AuditDropped() uint64
}

// Collector reads engine counters on every scrape. It holds no state of its
// own, so one engine can feed any number of registries.
type Collector struct {
	source  metricsSource
	descs   map[goIAM.MetricID]*prometheus.Desc
	dropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector that reads from the given engine.
func NewCollector(engine *goIAM.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a collector from a custom source.
func NewCollectorFromSource(source metricsSource) *Collector {
	descs := make(map[goIAM.MetricID]*prometheus.Desc, len(goIAM.MetricNames))
	for id, name := range goIAM.MetricNames {
		descs[id] = prometheus.NewDesc(name, helpFor(name), nil, nil)
	}
	return &Collector{
		source: source,
		descs:  descs,
		dropped: prometheus.NewDesc("goiam_audit_dropped_total",
			"Audit events dropped by dispatcher backpressure.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
	ch <- c.dropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snapshot.Counters[id]))
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler registers the collector in a private registry and returns a scrape
// handler for it. Use Register directly to share a registry with other
// collectors.
func Handler(engine *goIAM.Engine) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(engine))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func helpFor(name string) string {
	switch name {
	case "goiam_login_success_total":
		return "Successful logins."
	case "goiam_login_failure_total":
		return "Failed logins, all causes."
	case "goiam_lockout_triggered_total":
		return "Accounts locked by the failed-attempt threshold."
	case "goiam_lockout_cleared_total":
		return "Locks cleared, lazily or manually."
	case "goiam_token_issued_total":
		return "Tokens minted, all kinds."
	case "goiam_token_rejected_total":
		return "Tokens rejected during validation."
	case "goiam_token_revoked_total":
		return "Tokens revoked individually or in bulk."
	case "goiam_password_changed_total":
		return "Password changes and resets."
	case "goiam_password_rejected_total":
		return "New passwords rejected by policy or reuse checks."
	case "goiam_group_mutation_total":
		return "Group tree and membership mutations."
	case "goiam_group_cycle_rejected_total":
		return "Group reparentings refused for creating a cycle."
	default:
		return "goIAM engine counter."
	}
}
