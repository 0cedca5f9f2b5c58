package probe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
	"github.com/khanhnv2901/secprobe/internal/timing"
)

// TimingAttack samples login latency for distinct random users and flags high
// relative variance.
type TimingAttack struct {
	deps Deps
}

func NewTimingAttack(deps Deps) *TimingAttack {
	return &TimingAttack{deps: deps.withDefaults()}
}

func (t *TimingAttack) Spec() Spec {
	return Spec{
		Name:            "timing-attacks",
		Title:           "Timing Attack Test",
		Labels:          binary(report.StatusVulnerable, report.StatusProtected),
		Hardening:       []string{"Use constant-time comparison"},
		Batch:           true,
		Endpoint:        true,
		DefaultEndpoint: "/login",
	}
}

func (t *TimingAttack) Validate(p Params) error {
	if err := validateTarget(p); err != nil {
		return err
	}
	return validateCounts(map[string]int{"samples": p.Samples})
}

func (t *TimingAttack) Run(ctx context.Context, p Params, r *report.Report) error {
	n := orDefault(p.Samples, consts.DefaultTimingSamples)
	url := p.URL()

	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("user%d", i)
		resp := t.deps.Client.Send(ctx, target.Request{
			Method:  http.MethodPost,
			URL:     url,
			JSON:    p.login(user, fmt.Sprintf("pass%d", i)),
			Timeout: consts.DefaultRequestTimeout,
		})
		samples = append(samples, resp.ElapsedMs())
		r.AddAttempt(report.Attempt{
			Index:        i + 1,
			Payload:      user,
			StatusCode:   resp.StatusCode,
			ResponseTime: resp.ElapsedMs(),
			Error:        resp.ErrorText(),
		})

		t.deps.pause(ctx, consts.LongPause)
	}

	stats := timing.Analyze(samples)
	for k, v := range stats.Details() {
		r.SetDetail(k, v)
	}
	r.SetDetail("samples", n)
	r.SetDetail("timings", samples)

	if stats.Suspected {
		r.AddFinding(report.SeverityMedium, "Timing attack vulnerability", "Response times vary significantly")
	}
	return nil
}

func (t *TimingAttack) Advise(report.Level, *report.Report) []string {
	return nil
}
