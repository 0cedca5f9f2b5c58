package probe

import (
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/target"
)

func TestTimingAttackVariance(t *testing.T) {
	elapsed := []time.Duration{10, 500, 12, 480, 15}
	s := &stubSender{respond: func(n int, _ target.Request) target.Response {
		return target.Response{StatusCode: http.StatusUnauthorized, Elapsed: elapsed[n] * time.Millisecond}
	}}
	p := NewTimingAttack(stubDeps(s))
	r := execute(t, p, Params{TargetURL: "https://app.example.com", Samples: 5})

	if !hasFinding(r, report.SeverityMedium, "Timing attack vulnerability") {
		t.Fatalf("expected timing finding, got %+v", r.Findings)
	}
	if r.Status != report.StatusVulnerable {
		t.Fatalf("expected vulnerable, got %s", r.Status)
	}
	want := []float64{10, 500, 12, 480, 15}
	if got, _ := r.Details["timings"].([]float64); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected timings %v, got %v", want, got)
	}
	if detailInt(t, r, "samples") != 5 {
		t.Fatalf("expected 5 samples, got %v", r.Details["samples"])
	}
	assertDerived(t, p, r)
}

func TestTimingAttackConstant(t *testing.T) {
	s := &stubSender{respond: fixedResponse(http.StatusUnauthorized, 100*time.Millisecond, "")}
	p := NewTimingAttack(stubDeps(s))
	r := execute(t, p, Params{TargetURL: "https://app.example.com"})

	if s.count() != 20 {
		t.Fatalf("expected 20 default samples, got %d", s.count())
	}
	if r.Status != report.StatusProtected {
		t.Fatalf("expected protected, got %s", r.Status)
	}
	if r.Details["averageResponseTime"] != "100.00ms" || r.Details["standardDeviation"] != "0.00ms" {
		t.Fatalf("unexpected stats %v / %v", r.Details["averageResponseTime"], r.Details["standardDeviation"])
	}
	if !reflect.DeepEqual(r.Recommendations, []string{"Use constant-time comparison"}) {
		t.Fatalf("unexpected recommendations %v", r.Recommendations)
	}
	body, _ := s.requests[3].JSON.(map[string]string)
	if body["username"] != "user3" || body["password"] != "pass3" {
		t.Fatalf("unexpected login body %v", body)
	}
	assertDerived(t, p, r)
}
