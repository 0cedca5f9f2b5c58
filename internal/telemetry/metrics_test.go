package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/target"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	return m
}

func TestObserveProbe(t *testing.T) {
	m := newTestMetrics(t)

	r := report.New("CORS Test", "https://app.example.com", time.Now())
	r.AddFinding(report.SeverityCritical, "a", "")
	r.AddFinding(report.SeverityHigh, "b", "")
	r.AddFinding(report.SeverityHigh, "c", "")
	r.Finalize(report.FourTier(report.StatusVulnerable, report.StatusWeak, report.StatusGood, report.StatusSecure))

	m.ObserveProbe("cors", r, 1500*time.Millisecond)
	m.ObserveProbe("cors", r, 500*time.Millisecond)

	if got := testutil.ToFloat64(m.probeRuns.WithLabelValues("cors", "vulnerable")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.findings.WithLabelValues("cors", "HIGH")); got != 4 {
		t.Fatalf("expected 4 HIGH findings, got %v", got)
	}
	if got := testutil.ToFloat64(m.findings.WithLabelValues("cors", "CRITICAL")); got != 2 {
		t.Fatalf("expected 2 CRITICAL findings, got %v", got)
	}
	if got := testutil.CollectAndCount(m.probeDuration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestInstrumentTransport(t *testing.T) {
	m := newTestMetrics(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := target.New(target.WithTransport(m.InstrumentTransport(target.DefaultTransport())))
	for i := 0; i < 3; i++ {
		resp := client.Send(context.Background(), target.Request{Method: http.MethodGet, URL: srv.URL})
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d (%v)", resp.StatusCode, resp.Err)
		}
	}

	if got := testutil.ToFloat64(m.targetRequests); got != 3 {
		t.Fatalf("expected 3 counted requests, got %v", got)
	}
	if got := testutil.CollectAndCount(m.targetDuration); got != 1 {
		t.Fatalf("expected one latency series, got %d", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := newTestMetrics(t)
	r := report.New("JWT Test", "", time.Now())
	r.Finalize(report.FourTier(report.StatusVulnerable, report.StatusWeak, report.StatusGood, report.StatusSecure))
	m.ObserveProbe("jwt", r, time.Second)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`secprobe_probe_runs_total{probe="jwt",status="secure"} 1`,
		"secprobe_probe_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition", want)
		}
	}
}

func TestNewMetricsUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	newTestMetrics(t)
	m := newTestMetrics(t)
	if m.Registry() == nil {
		t.Fatal("expected registry")
	}
}
