package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goIAM "github.com/MrEthical07/goIAM"
)

type fakeSource struct {
	snapshot goIAM.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goIAM.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                   { return f.dropped }

func newFakeSource() *fakeSource {
	counters := make(map[goIAM.MetricID]uint64)
	counters[goIAM.MetricLoginSuccess] = 7
	counters[goIAM.MetricLockoutTriggered] = 2
	return &fakeSource{snapshot: goIAM.MetricsSnapshot{Counters: counters}, dropped: 3}
}

func TestCollector_GatherValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollectorFromSource(newFakeSource()))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	values := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			values[fam.GetName()] = m.GetCounter().GetValue()
		}
	}

	if values["goiam_login_success_total"] != 7 {
		t.Fatalf("login success: expected 7, got %v", values["goiam_login_success_total"])
	}
	if values["goiam_lockout_triggered_total"] != 2 {
		t.Fatalf("lockout: expected 2, got %v", values["goiam_lockout_triggered_total"])
	}
	if values["goiam_audit_dropped_total"] != 3 {
		t.Fatalf("dropped: expected 3, got %v", values["goiam_audit_dropped_total"])
	}

	// Untouched counters are exposed at zero, not omitted.
	if _, ok := values["goiam_token_issued_total"]; !ok {
		t.Fatal("expected zero-valued counters to be present")
	}
}

func TestCollector_ScrapeEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollectorFromSource(newFakeSource()))
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "goiam_login_success_total 7") {
		t.Fatalf("scrape body missing counter:\n%s", body)
	}
}
