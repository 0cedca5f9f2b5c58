package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/pacing"
	"github.com/khanhnv2901/secprobe/internal/probe"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
)

// ReportFunc is called after each probe of a batch finishes.
type ReportFunc func(index, total int, r *report.Report)

// Orchestrator coordinates probe execution for one or many probes
type Orchestrator struct {
	suite  *probe.Suite
	engine *probe.Engine
	pacing pacing.Policy
	logger *zap.Logger
	pause  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPacing replaces the policy used between batch probes.
func WithPacing(p pacing.Policy) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.pacing = p
		}
	}
}

// WithInterProbePause overrides the nominal pause between batch probes.
func WithInterProbePause(d time.Duration) Option {
	return func(o *Orchestrator) { o.pause = d }
}

// NewOrchestrator creates a new probe orchestrator
func NewOrchestrator(suite *probe.Suite, engine *probe.Engine, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		suite:  suite,
		engine: engine,
		pacing: pacing.Sleep{},
		logger: logger,
		pause:  consts.InterProbePause,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Suite returns the probes this orchestrator runs.
func (o *Orchestrator) Suite() *probe.Suite {
	return o.suite
}

// RunOne executes a single probe by name
func (o *Orchestrator) RunOne(ctx context.Context, name string, params probe.Params) (*report.Report, error) {
	p, err := o.suite.Lookup(name)
	if err != nil {
		return nil, err
	}
	return o.engine.Execute(ctx, p, params), nil
}

// RunAll executes every batch probe in declaration order. A failing probe is
// logged and the batch continues; the result holds one report per probe.
func (o *Orchestrator) RunAll(ctx context.Context, params probe.Params, onReport ReportFunc) []*report.Report {
	batch := o.suite.Batch()
	reports := make([]*report.Report, 0, len(batch))

	for i, p := range batch {
		if i > 0 {
			o.pacing.Pause(ctx, o.pause)
		}

		r := o.engine.Execute(ctx, p, params)
		if r.Status == report.StatusError {
			o.logger.Error("probe failed, continuing batch",
				zap.String("probe", p.Spec().Name),
				zap.String("error", r.Error),
			)
		}
		reports = append(reports, r)

		if onReport != nil {
			onReport(i+1, len(batch), r)
		}
	}

	o.logger.Info("batch completed",
		zap.Int("probes", len(reports)),
		zap.Int("failed", countStatus(reports, report.StatusError)),
	)
	return reports
}

// Summary counts the statuses of a batch.
type Summary struct {
	Total    int                   `json:"total"`
	ByStatus map[report.Status]int `json:"byStatus"`
	Findings int                   `json:"findings"`
}

// Summarize builds a Summary over reports.
func Summarize(reports []*report.Report) Summary {
	s := Summary{Total: len(reports), ByStatus: map[report.Status]int{}}
	for _, r := range reports {
		s.ByStatus[r.Status]++
		s.Findings += len(r.Findings)
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d probes, %d findings, %d errors", s.Total, s.Findings, s.ByStatus[report.StatusError])
}

func countStatus(reports []*report.Report, status report.Status) int {
	n := 0
	for _, r := range reports {
		if r.Status == status {
			n++
		}
	}
	return n
}
