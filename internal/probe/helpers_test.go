package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/pacing"
	"github.com/khanhnv2901/secprobe/internal/target"
)

// stubSender answers requests without a network.
type stubSender struct {
	mu       sync.Mutex
	requests []target.Request
	respond  func(n int, req target.Request) target.Response
}

func (s *stubSender) Send(_ context.Context, req target.Request) target.Response {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.respond(n, req)
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func fixedResponse(status int, elapsed time.Duration, body string) func(int, target.Request) target.Response {
	return func(int, target.Request) target.Response {
		return target.Response{StatusCode: status, Body: []byte(body), Elapsed: elapsed}
	}
}

func stubDeps(s target.Sender) Deps {
	return Deps{Client: s, Pacing: pacing.None{}}
}

func httpDeps() Deps {
	return Deps{Client: target.New(), Pacing: pacing.None{}}
}

func execute(t *testing.T, p Probe, params Params) *report.Report {
	t.Helper()
	return NewEngine(zaptest.NewLogger(t)).Execute(context.Background(), p, params)
}

// assertDerived checks that the status follows from the findings alone.
func assertDerived(t *testing.T, p Probe, r *report.Report) {
	t.Helper()
	if r.Status == report.StatusError {
		t.Fatalf("unexpected error status: %s", r.Error)
	}
	want := labelsFor(p, p.Spec(), r).For(report.Classify(r.Findings))
	if r.Status != want {
		t.Fatalf("status %s does not follow from findings %+v (want %s)", r.Status, r.Findings, want)
	}
}

func hasFinding(r *report.Report, severity report.Severity, description string) bool {
	for _, f := range r.Findings {
		if f.Severity == severity && f.Description == description {
			return true
		}
	}
	return false
}

func detailInt(t *testing.T, r *report.Report, key string) int {
	t.Helper()
	v, ok := r.Details[key].(int)
	if !ok {
		t.Fatalf("detail %q is %T, want int", key, r.Details[key])
	}
	return v
}

func detailStrings(t *testing.T, r *report.Report, key string) []string {
	t.Helper()
	v, ok := r.Details[key].([]string)
	if !ok {
		t.Fatalf("detail %q is %T, want []string", key, r.Details[key])
	}
	return v
}

var errTimeout = errors.New("context deadline exceeded")
