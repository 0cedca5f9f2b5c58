package probe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
)

const tracerName = "github.com/khanhnv2901/secprobe/internal/probe"

// Recorder receives one observation per finished probe run.
type Recorder interface {
	ObserveProbe(name string, r *report.Report, elapsed time.Duration)
}

// Engine runs probes and finalizes their reports. It holds no per-run state
// and is safe for concurrent use.
type Engine struct {
	logger   *zap.Logger
	tracer   trace.Tracer
	recorder Recorder
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder sends run observations to rec.
func WithRecorder(rec Recorder) EngineOption {
	return func(e *Engine) { e.recorder = rec }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithClock sets the clock used for report timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. A nil logger discards logs.
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs p and always returns a finalized report.
func (e *Engine) Execute(ctx context.Context, p Probe, params Params) *report.Report {
	spec := p.Spec()
	params = params.prepare(spec)
	r := report.New(spec.Title, params.reportTarget(spec), e.now())

	ctx, span := e.tracer.Start(ctx, "probe."+spec.Name, trace.WithAttributes(
		attribute.String("probe.name", spec.Name),
		attribute.String("probe.target", r.Target),
	))
	defer span.End()

	start := time.Now()
	if err := p.Validate(params); err != nil {
		r.Fail(err)
	} else if err := e.run(ctx, p, params, r); err != nil {
		r.Fail(err)
	} else {
		level := r.Finalize(labelsFor(p, spec, r))
		r.Recommend(p.Advise(level, r)...)
		r.Recommend(spec.Hardening...)
	}
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("probe.status", string(r.Status)),
		attribute.Int("probe.findings", len(r.Findings)),
		attribute.Int("probe.attempts", len(r.Attempts)),
	)
	if r.Status == report.StatusError {
		span.SetStatus(codes.Error, r.Error)
	}
	if e.recorder != nil {
		e.recorder.ObserveProbe(spec.Name, r, elapsed)
	}

	fields := []zap.Field{
		zap.String("probe", spec.Name),
		zap.String("target", r.Target),
		zap.String("status", string(r.Status)),
		zap.Int("findings", len(r.Findings)),
		zap.Duration("duration", elapsed),
	}
	if r.Status == report.StatusError {
		e.logger.Warn("probe failed", append(fields, zap.String("error", r.Error))...)
	} else {
		e.logger.Info("probe completed", fields...)
	}
	return r
}

func (e *Engine) run(ctx context.Context, p Probe, params Params, r *report.Report) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("probe panicked",
				zap.String("probe", p.Spec().Name),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("probe %s failed unexpectedly: %v", p.Spec().Name, rec)
		}
	}()
	return p.Run(ctx, params, r)
}

func labelsFor(p Probe, spec Spec, r *report.Report) report.Labels {
	labels := spec.Labels
	if cl, ok := p.(CleanLabeler); ok {
		if status, ok := cl.CleanLabel(r); ok {
			labels.Clean = status
		}
	}
	return labels
}
