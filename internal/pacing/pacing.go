// Package pacing supplies the politeness delay probes insert between requests.
package pacing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Policy decides how long to wait between two requests. nominal is the delay the
// caller would use by default; a policy may honor, replace or ignore it.
type Policy interface {
	Pause(ctx context.Context, nominal time.Duration)
}

// Sleep waits for the nominal delay, or until ctx is done.
type Sleep struct{}

func (Sleep) Pause(ctx context.Context, nominal time.Duration) {
	wait(ctx, nominal)
}

// None never waits. Tests use it to avoid wall-clock delays.
type None struct{}

func (None) Pause(context.Context, time.Duration) {}

// Fixed waits for D regardless of the nominal delay.
type Fixed struct {
	D time.Duration
}

func (f Fixed) Pause(ctx context.Context, _ time.Duration) {
	wait(ctx, f.D)
}

// Rate spaces requests with a token bucket instead of a fixed sleep.
type Rate struct {
	limiter *rate.Limiter
}

// NewRate allows rps requests per second with a burst of one.
func NewRate(rps float64) *Rate {
	return &Rate{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (r *Rate) Pause(ctx context.Context, _ time.Duration) {
	_ = r.limiter.Wait(ctx)
}

// Parse builds a policy from its configured name. rps is only used by "rate"
// and delay only by "fixed".
func Parse(name string, rps float64, delay time.Duration) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sleep":
		return Sleep{}, nil
	case "none":
		return None{}, nil
	case "fixed":
		if delay <= 0 {
			return nil, fmt.Errorf("pacing fixed requires a positive delay, got %v", delay)
		}
		return Fixed{D: delay}, nil
	case "rate":
		if rps <= 0 {
			return nil, fmt.Errorf("pacing rate requires a positive rps, got %v", rps)
		}
		return NewRate(rps), nil
	default:
		return nil, fmt.Errorf("unknown pacing policy %q (want sleep, none, fixed or rate)", name)
	}
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
