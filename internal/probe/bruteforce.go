package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
	"github.com/khanhnv2901/secprobe/internal/timing"
)

// BruteForce replays a password dictionary against a login endpoint and counts
// how many attempts the target blocks.
type BruteForce struct {
	deps Deps
}

func NewBruteForce(deps Deps) *BruteForce {
	return &BruteForce{deps: deps.withDefaults()}
}

func (b *BruteForce) Spec() Spec {
	return Spec{
		Name:            "brute-force",
		Title:           "Brute Force Protection Test",
		Labels:          tiered(report.StatusVulnerable, report.StatusWeak, report.StatusProtected),
		Batch:           true,
		Endpoint:        true,
		DefaultEndpoint: "/login",
	}
}

func (b *BruteForce) Validate(p Params) error {
	if err := validateTarget(p); err != nil {
		return err
	}
	return validateCounts(map[string]int{"attempts": p.Attempts})
}

func isBlocked(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusForbidden
}

func (b *BruteForce) Run(ctx context.Context, p Params, r *report.Report) error {
	passwords := b.deps.Corpus.BruteForcePasswords
	if len(passwords) == 0 {
		return errors.New("corpus has no brute force passwords")
	}

	attempts := orDefault(p.Attempts, consts.DefaultBruteForceAttempts)
	url := p.URL()

	var blocked, successful int
	var times []float64
	for i := 0; i < attempts; i++ {
		password := passwords[i%len(passwords)]
		resp := b.deps.Client.Send(ctx, target.Request{
			Method:  http.MethodPost,
			URL:     url,
			JSON:    p.login("testuser", password),
			Timeout: consts.DefaultRequestTimeout,
		})

		a := report.Attempt{Index: i + 1, Payload: password, ResponseTime: resp.ElapsedMs()}
		if resp.Failed() {
			a.Error = resp.ErrorText()
		} else {
			a.StatusCode = resp.StatusCode
			a.Flags = map[string]bool{"blocked": isBlocked(resp.StatusCode)}
			times = append(times, resp.ElapsedMs())
			switch {
			case isBlocked(resp.StatusCode):
				blocked++
			case resp.StatusCode == http.StatusOK:
				successful++
			}
		}
		r.AddAttempt(a)

		b.deps.pause(ctx, consts.LongPause)
	}

	r.SetDetail("totalAttempts", attempts)
	r.SetDetail("successfulAttempts", successful)
	r.SetDetail("blockedAttempts", blocked)
	r.SetDetail("averageResponseTime", timing.Analyze(times).Mean)

	switch {
	case blocked == 0:
		r.AddFinding(report.SeverityHigh, "No brute force protection detected",
			fmt.Sprintf("All %d attempts were processed without any blocking mechanism", attempts))
	case float64(blocked) < float64(attempts)*0.3:
		r.AddFinding(report.SeverityMedium, "Weak brute force protection",
			fmt.Sprintf("Only %d out of %d attempts were blocked", blocked, attempts))
	}
	return nil
}

func (b *BruteForce) Advise(level report.Level, _ *report.Report) []string {
	switch {
	case level >= report.LevelHigh:
		return []string{
			"Implement rate limiting on authentication endpoints",
			"Add account lockout after multiple failed attempts",
			"Implement CAPTCHA after several failed login attempts",
		}
	case level > report.LevelClean:
		return []string{
			"Strengthen rate limiting rules",
			"Reduce the threshold for account lockout",
		}
	default:
		return []string{
			"Brute force protection is working well",
			"Consider adding additional layers like CAPTCHA for enhanced security",
		}
	}
}
