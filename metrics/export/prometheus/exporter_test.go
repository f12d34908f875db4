package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/credguard"
)

type fakeSource struct {
	snapshot    credguard.MetricsSnapshot
	dropped     uint64
	mailDropped uint64
}

func (f fakeSource) MetricsSnapshot() credguard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }
func (f fakeSource) MailDropped() uint64                        { return f.mailDropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credguard.MetricsSnapshot{
			Counters:   map[credguard.MetricID]uint64{},
			Histograms: map[credguard.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credguard.MetricsSnapshot{
			Counters: map[credguard.MetricID]uint64{
				credguard.MetricLoginSuccess:     7,
				credguard.MetricLockoutTriggered: 1,
			},
			Histograms: map[credguard.MetricID][]uint64{
				credguard.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped:     2,
		mailDropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"credguard_login_success_total 7",
		"credguard_lockout_triggered_total 1",
		"credguard_refresh_reuse_detected_total 0",
		"credguard_validate_latency_seconds_bucket{le=\"0.005\"} 1",
		"credguard_validate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"credguard_validate_latency_seconds_count 36",
		"credguard_audit_dropped_total 2",
		"credguard_mail_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderFromEngineSnapshot(t *testing.T) {
	m := credguard.NewMetrics(credguard.MetricsConfig{Enabled: true})
	m.Inc(credguard.MetricRefreshSuccess)
	m.Add(credguard.MetricSweepRemoved, 4)

	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: m.Snapshot()})
	out := exp.Render()
	if !strings.Contains(out, "credguard_refresh_success_total 1") || !strings.Contains(out, "credguard_sweep_removed_total 4") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credguard.MetricsSnapshot{
			Counters:   map[credguard.MetricID]uint64{credguard.MetricLoginSuccess: 1},
			Histograms: map[credguard.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExpositionEscapesHelpAndOrdersHistogram(t *testing.T) {
	e := newExposition()
	e.histogram(family{"x_seconds", "line one\nback\\slash", "histogram"}, [8]uint64{1, 1, 2, 2, 3, 3, 4, 5})

	lines := strings.Split(strings.TrimSuffix(e.String(), "\n"), "\n")
	want := []string{
		`# HELP x_seconds line one\nback\\slash`,
		"# TYPE x_seconds histogram",
		`x_seconds_bucket{le="0.005"} 1`,
	}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("line %d: expected %q, got %q", i, w, lines[i])
		}
	}
	if got := lines[len(lines)-3]; got != `x_seconds_bucket{le="+Inf"} 5` {
		t.Fatalf("expected +Inf bucket before count, got %q", got)
	}
	if got := lines[len(lines)-2]; got != "x_seconds_count 5" {
		t.Fatalf("expected count 5, got %q", got)
	}
	if got := lines[len(lines)-1]; got != "x_seconds_sum 0" {
		t.Fatalf("expected zero sum, got %q", got)
	}
	if len(lines) != 12 {
		t.Fatalf("expected %d lines, got %d:\n%s", 12, len(lines), e.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: credguard.MetricsSnapshot{
			Counters: map[credguard.MetricID]uint64{
				credguard.MetricLoginSuccess:   1000,
				credguard.MetricLoginFailure:   40,
				credguard.MetricRefreshSuccess: 800,
				credguard.MetricRefreshFailure: 10,
			},
			Histograms: map[credguard.MetricID][]uint64{
				credguard.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
