package probe

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
	"github.com/khanhnv2901/secprobe/internal/timing"
)

// RateLimit fires a burst of concurrent requests and counts 429 responses.
// Attempts are recorded in completion order.
type RateLimit struct {
	deps Deps
}

func NewRateLimit(deps Deps) *RateLimit {
	return &RateLimit{deps: deps.withDefaults()}
}

func (rl *RateLimit) Spec() Spec {
	return Spec{
		Name:            "rate-limiting",
		Title:           "Rate Limiting Test",
		Labels:          tiered(report.StatusVulnerable, report.StatusWeak, report.StatusProtected),
		Batch:           true,
		Endpoint:        true,
		DefaultEndpoint: "/api",
	}
}

func (rl *RateLimit) Validate(p Params) error {
	if err := validateTarget(p); err != nil {
		return err
	}
	return validateCounts(map[string]int{
		"requestCount": p.RequestCount,
		"timeWindow":   p.TimeWindow,
		"concurrency":  p.Concurrency,
	})
}

func (rl *RateLimit) Run(ctx context.Context, p Params, r *report.Report) error {
	requests := orDefault(p.RequestCount, consts.DefaultRateLimitRequests)
	window := orDefault(p.TimeWindow, consts.DefaultRateLimitWindowMs)
	url := p.URL()

	var (
		mu        sync.Mutex
		limited   int
		succeeded int
		times     []float64
	)

	// Unbounded unless the caller caps it.
	tasks := pool.New()
	if p.Concurrency > 0 {
		tasks = tasks.WithMaxGoroutines(p.Concurrency)
	}

	start := time.Now()
	for i := 0; i < requests; i++ {
		index := i + 1
		tasks.Go(func() {
			resp := rl.deps.Client.Send(ctx, target.Request{
				Method:  http.MethodGet,
				URL:     url,
				Timeout: consts.DefaultRequestTimeout,
			})

			a := report.Attempt{Index: index, ResponseTime: resp.ElapsedMs()}
			if resp.Failed() {
				a.Error = resp.ErrorText()
			} else {
				a.StatusCode = resp.StatusCode
				a.Flags = map[string]bool{"rateLimited": resp.StatusCode == http.StatusTooManyRequests}
				if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
					a.Meta = map[string]string{
						"limit":     limit,
						"remaining": resp.Header.Get("X-RateLimit-Remaining"),
						"reset":     resp.Header.Get("X-RateLimit-Reset"),
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			r.AddAttempt(a)
			if resp.Failed() {
				return
			}
			times = append(times, resp.ElapsedMs())
			switch resp.StatusCode {
			case http.StatusTooManyRequests:
				limited++
			case http.StatusOK:
				succeeded++
			}
		})
	}
	tasks.Wait()
	total := time.Since(start).Milliseconds()

	r.SetDetail("totalRequests", requests)
	r.SetDetail("timeWindow", fmt.Sprintf("%dms", window))
	r.SetDetail("concurrency", p.Concurrency)
	r.SetDetail("successfulRequests", succeeded)
	r.SetDetail("rateLimitedRequests", limited)
	r.SetDetail("averageResponseTime", timing.Analyze(times).Mean)
	r.SetDetail("totalExecutionTime", fmt.Sprintf("%dms", total))

	switch {
	case limited == 0:
		r.AddFinding(report.SeverityHigh, "No rate limiting detected",
			fmt.Sprintf("%d requests were processed in %dms without any rate limiting", requests, total))
	case float64(limited) < float64(requests)*0.5:
		r.AddFinding(report.SeverityMedium, "Weak rate limiting",
			fmt.Sprintf("Only %d out of %d requests were rate limited", limited, requests))
	}
	return nil
}

func (rl *RateLimit) Advise(level report.Level, _ *report.Report) []string {
	switch {
	case level >= report.LevelHigh:
		return []string{
			"Implement rate limiting to prevent API abuse",
			"Consider using a rate limiting middleware or gateway in front of the API",
			"Set appropriate limits based on your API usage patterns",
		}
	case level > report.LevelClean:
		return []string{
			"Strengthen rate limiting rules",
			"Reduce the request threshold or time window",
		}
	default:
		return []string{
			"Rate limiting is working effectively",
			"Monitor rate limit metrics to adjust thresholds as needed",
		}
	}
}
