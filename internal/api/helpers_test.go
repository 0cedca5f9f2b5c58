package api

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/secprobe/internal/application/orchestrator"
	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/pacing"
	"github.com/khanhnv2901/secprobe/internal/probe"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

// echoProbe reports a HIGH finding when the target mentions "vuln".
type echoProbe struct {
	name  string
	batch bool
}

func (e echoProbe) Spec() probe.Spec {
	return probe.Spec{
		Name:  e.name,
		Title: e.name + " test",
		Labels: report.Labels{
			Critical: report.StatusVulnerable,
			High:     report.StatusVulnerable,
			Medium:   report.StatusWeak,
			Low:      report.StatusWeak,
			Clean:    report.StatusProtected,
		},
		Batch: e.batch,
	}
}

func (e echoProbe) Validate(p probe.Params) error {
	if p.TargetURL == "" {
		return fmt.Errorf("%w: target URL", sharedErrors.ErrMissingRequired)
	}
	return nil
}

func (e echoProbe) Run(_ context.Context, p probe.Params, r *report.Report) error {
	if strings.Contains(p.TargetURL, "vuln") {
		r.AddFinding(report.SeverityHigh, "echo finding", p.TargetURL)
	}
	return nil
}

func (e echoProbe) Advise(report.Level, *report.Report) []string { return nil }

// blockingProbe runs until its context is cancelled.
type blockingProbe struct {
	started chan struct{}
}

func (b blockingProbe) Spec() probe.Spec {
	return probe.Spec{Name: "blocking", Title: "blocking", Labels: report.FourTier("a", "b", "c", "d")}
}

func (b blockingProbe) Validate(probe.Params) error { return nil }

func (b blockingProbe) Run(ctx context.Context, _ probe.Params, _ *report.Report) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func (b blockingProbe) Advise(report.Level, *report.Report) []string { return nil }

func newTestRunner(t *testing.T, extra ...probe.Probe) *orchestrator.Orchestrator {
	t.Helper()
	probes := []probe.Probe{
		echoProbe{name: "alpha", batch: true},
		echoProbe{name: "beta", batch: true},
		echoProbe{name: "gamma"},
	}
	probes = append(probes, extra...)
	logger := zaptest.NewLogger(t)
	return orchestrator.NewOrchestrator(
		probe.NewSuiteOf(probes...),
		probe.NewEngine(logger),
		logger,
		orchestrator.WithPacing(pacing.None{}),
	)
}

func waitForJob(t *testing.T, m *JobManager, id string, status string) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach %s", id, status)
	return nil
}
