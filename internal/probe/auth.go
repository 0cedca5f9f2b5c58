package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
	"github.com/khanhnv2901/secprobe/internal/timing"
)

const maxEchoedMessage = 500

// Authentication runs a series of login hygiene checks against one endpoint.
type Authentication struct {
	deps Deps
}

func NewAuthentication(deps Deps) *Authentication {
	return &Authentication{deps: deps.withDefaults()}
}

func (a *Authentication) Spec() Spec {
	return Spec{
		Name:   "authentication",
		Title:  "Authentication Security Test",
		Labels: report.FourTier(report.StatusVulnerable, report.StatusWeak, report.StatusGood, report.StatusSecure),
		Hardening: []string{
			"Implement strong password policies",
			"Use constant-time comparison for credentials",
			"Implement account lockout after failed attempts",
			"Use generic error messages that don't reveal user existence",
			"Implement multi-factor authentication (MFA)",
		},
		Batch:           true,
		Endpoint:        true,
		DefaultEndpoint: "/login",
	}
}

func (a *Authentication) Validate(p Params) error {
	return validateTarget(p)
}

// authRun carries the per-run state of one authentication probe.
type authRun struct {
	*Authentication
	ctx      context.Context
	params   Params
	url      string
	report   *report.Report
	attempts int
}

func (a *Authentication) Run(ctx context.Context, p Params, r *report.Report) error {
	run := &authRun{Authentication: a, ctx: ctx, params: p, url: p.URL(), report: r}

	run.emptyCredentials()
	run.weakPasswords()
	run.caseSensitivity()
	run.timingVariance()
	run.errorMessages()

	if target.IsPlainHTTP(p.TargetURL) {
		r.AddFinding(report.SeverityCritical, "Authentication over HTTP",
			"Credentials are transmitted in plain text without encryption")
		r.Recommend("URGENT: Use HTTPS for all authentication endpoints")
	}
	return nil
}

func (run *authRun) post(phase, payload string, body any) target.Response {
	resp := run.deps.Client.Send(run.ctx, target.Request{
		Method:  http.MethodPost,
		URL:     run.url,
		JSON:    body,
		Timeout: consts.DefaultRequestTimeout,
	})
	run.attempts++
	run.report.AddAttempt(report.Attempt{
		Index:        run.attempts,
		Phase:        phase,
		Payload:      payload,
		StatusCode:   resp.StatusCode,
		ResponseTime: resp.ElapsedMs(),
		Flags:        map[string]bool{"accepted": resp.StatusCode == http.StatusOK},
		Error:        resp.ErrorText(),
	})
	return resp
}

func (run *authRun) emptyCredentials() {
	resp := run.post("empty-credentials", "", map[string]string{})
	if resp.Failed() {
		run.report.SetDetail("emptyCredentials", map[string]any{"error": resp.ErrorText()})
		return
	}
	accepted := resp.StatusCode == http.StatusOK
	run.report.SetDetail("emptyCredentials", map[string]any{
		"statusCode": resp.StatusCode,
		"accepted":   accepted,
	})
	if accepted {
		run.report.AddFinding(report.SeverityCritical, "Empty credentials accepted",
			"Authentication endpoint accepts requests with no credentials")
	}
}

func (run *authRun) weakPasswords() {
	for _, password := range run.deps.Corpus.AuthWeakPasswords {
		resp := run.post("weak-password", password, run.params.login("admin", password))
		if resp.StatusCode == http.StatusOK {
			run.report.AddFinding(report.SeverityCritical, "Weak password accepted",
				fmt.Sprintf("Weak password %q was accepted", password))
			return
		}
		run.deps.pause(run.ctx, consts.LongPause)
	}
}

func (run *authRun) caseSensitivity() {
	creds := run.params.Credentials
	if creds.Username == "" || creds.Password == "" {
		return
	}
	upper := run.post("case-sensitivity", strings.ToUpper(creds.Username),
		run.params.login(strings.ToUpper(creds.Username), creds.Password))
	lower := run.post("case-sensitivity", strings.ToLower(creds.Username),
		run.params.login(strings.ToLower(creds.Username), creds.Password))

	if upper.Failed() || lower.Failed() {
		msg := upper.ErrorText()
		if msg == "" {
			msg = lower.ErrorText()
		}
		run.report.SetDetail("caseSensitivity", map[string]any{"error": msg})
		return
	}

	both := upper.StatusCode == http.StatusOK && lower.StatusCode == http.StatusOK
	run.report.SetDetail("caseSensitivity", map[string]any{
		"uppercase":    upper.StatusCode,
		"lowercase":    lower.StatusCode,
		"bothAccepted": both,
	})
	if both {
		run.report.AddFinding(report.SeverityMedium, "Username is not case-sensitive",
			"This could facilitate brute force attacks")
	}
}

func (run *authRun) timingVariance() {
	samples := make([]float64, 0, consts.AuthTimingSamples)
	for i := 0; i < consts.AuthTimingSamples; i++ {
		user := fmt.Sprintf("nonexistentuser%d", i)
		// Failed requests still count: their elapsed time is part of the signal.
		resp := run.post("timing", user, run.params.login(user, "wrongpassword"))
		samples = append(samples, resp.ElapsedMs())
		run.deps.pause(run.ctx, consts.LongPause)
	}

	stats := timing.Analyze(samples)
	analysis := stats.Details()
	analysis["samples"] = samples
	run.report.SetDetail("timingAnalysis", analysis)

	if stats.Suspected {
		run.report.AddFinding(report.SeverityMedium, "Possible timing attack vulnerability",
			"Response times vary significantly, which could leak information about valid usernames")
	}
}

func (run *authRun) errorMessages() {
	resp := run.post("error-message", "testuser", run.params.login("testuser", "wrongpassword"))
	if resp.Failed() {
		run.report.SetDetail("errorMessage", map[string]any{"error": resp.ErrorText()})
		return
	}

	body := strings.ToLower(resp.Text())
	for _, marker := range run.deps.Corpus.EnumerationMarkers {
		if strings.Contains(body, strings.ToLower(marker)) {
			run.report.AddFinding(report.SeverityMedium, "Information disclosure in error messages",
				"Error messages reveal whether username exists")
			break
		}
	}
	run.report.SetDetail("errorMessage", map[string]any{
		"statusCode": resp.StatusCode,
		"message":    truncate(resp.Text(), maxEchoedMessage),
	})
}

func (a *Authentication) Advise(level report.Level, _ *report.Report) []string {
	switch level {
	case report.LevelCritical:
		return []string{"URGENT: Critical authentication vulnerabilities detected"}
	case report.LevelHigh:
		return []string{"Important authentication security issues found"}
	case report.LevelMedium, report.LevelLow:
		return []string{"Minor authentication improvements recommended"}
	default:
		return []string{"Authentication appears to be secure"}
	}
}
