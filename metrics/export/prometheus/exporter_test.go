package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goAssist "github.com/MrEthical07/goAssist"
)

type fakeSource struct {
	snapshot goAssist.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goAssist.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAssist.MetricsSnapshot{
			Counters:   map[goAssist.MetricID]uint64{},
			Histograms: map[goAssist.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAssist.MetricsSnapshot{
			Counters: map[goAssist.MetricID]uint64{
				goAssist.MetricLoginSuccess:        7,
				goAssist.MetricGatewayUnauthorized: 2,
			},
			Histograms: map[goAssist.MetricID][]uint64{
				goAssist.MetricGatewayLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"goassist_login_success_total 7",
		"goassist_gateway_unauthorized_total 2",
		"goassist_logout_total 0",
		`goassist_gateway_latency_seconds_bucket{le="0.025"} 1`,
		`goassist_gateway_latency_seconds_bucket{le="+Inf"} 36`,
		"goassist_gateway_latency_seconds_count 36",
		"goassist_events_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderFromClient(t *testing.T) {
	cfg := goAssist.DefaultConfig()
	cfg.Metrics.Enabled = true
	client, err := goAssist.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()

	out := NewPrometheusExporter(client).Render()
	if !strings.Contains(out, "goassist_restore_anonymous_total 1") {
		t.Fatalf("expected restore counter from client, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAssist.MetricsSnapshot{
			Counters:   map[goAssist.MetricID]uint64{goAssist.MetricLoginSuccess: 1},
			Histograms: map[goAssist.MetricID][]uint64{},
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

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAssist.MetricsSnapshot{
			Counters: map[goAssist.MetricID]uint64{
				goAssist.MetricLoginSuccess:       1000,
				goAssist.MetricLoginFailure:       40,
				goAssist.MetricGatewayRequest:     8000,
				goAssist.MetricGatewayFailure:     10,
				goAssist.MetricSessionInvalidated: 20,
			},
			Histograms: map[goAssist.MetricID][]uint64{
				goAssist.MetricGatewayLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
