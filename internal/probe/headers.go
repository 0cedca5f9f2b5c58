package probe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
	"github.com/khanhnv2901/secprobe/internal/target"
)

// SecurityHeaders checks a single response against the header registry.
type SecurityHeaders struct {
	deps Deps
}

func NewSecurityHeaders(deps Deps) *SecurityHeaders {
	return &SecurityHeaders{deps: deps.withDefaults()}
}

func (h *SecurityHeaders) Spec() Spec {
	return Spec{
		Name:  "security-headers",
		Title: "Security Headers Test",
		Labels: report.Labels{
			Critical: report.StatusVulnerable,
			High:     report.StatusVulnerable,
			Medium:   report.StatusWeak,
			Low:      report.StatusGood,
			Clean:    report.StatusExcellent,
		},
		Hardening: []string{
			"Use security header testing tools regularly",
			"Review and update security headers as standards evolve",
		},
		Batch: true,
	}
}

func (h *SecurityHeaders) Validate(p Params) error {
	return validateTarget(p)
}

func (h *SecurityHeaders) Run(ctx context.Context, p Params, r *report.Report) error {
	resp := h.deps.Client.Send(ctx, target.Request{
		Method:  http.MethodGet,
		URL:     p.TargetURL,
		Timeout: consts.DefaultRequestTimeout,
	})
	r.AddAttempt(report.Attempt{
		Index:        1,
		StatusCode:   resp.StatusCode,
		ResponseTime: resp.ElapsedMs(),
		Error:        resp.ErrorText(),
	})
	if resp.Failed() {
		return fmt.Errorf("%w: %s", sharedErrors.ErrTargetUnreachable, resp.ErrorText())
	}

	present := []string{}
	missing := []string{}
	for _, spec := range h.deps.Corpus.SecurityHeaders {
		if value := resp.Header.Get(spec.Header); value != "" {
			present = append(present, spec.Name)
			r.SetDetail(spec.Name, map[string]any{
				"present": true,
				"value":   value,
				"status":  "OK",
			})
			continue
		}
		missing = append(missing, spec.Name)
		r.SetDetail(spec.Name, map[string]any{
			"present":        false,
			"severity":       spec.Severity,
			"recommendation": spec.Recommendation,
		})
		r.AddFinding(spec.Severity, "Missing "+spec.Name, spec.Description)
	}

	if server := resp.Header.Get("Server"); server != "" {
		r.SetDetail("Server Header", map[string]any{
			"present":        true,
			"value":          server,
			"warning":        "Server header exposes server information",
			"recommendation": "Consider removing or obfuscating the Server header",
		})
	}
	if poweredBy := resp.Header.Get("X-Powered-By"); poweredBy != "" {
		r.SetDetail("X-Powered-By Header", map[string]any{
			"present":        true,
			"value":          poweredBy,
			"warning":        "X-Powered-By header exposes technology stack",
			"recommendation": "Remove X-Powered-By header to avoid information disclosure",
		})
		r.AddFinding(report.SeverityLow, "Information disclosure via X-Powered-By header", "Exposes: "+poweredBy)
	}

	r.SetDetail("presentHeaders", present)
	r.SetDetail("missingHeaders", missing)
	return nil
}

func (h *SecurityHeaders) Advise(level report.Level, r *report.Report) []string {
	switch level {
	case report.LevelCritical, report.LevelHigh:
		serious := r.CountSeverity(report.SeverityCritical) + r.CountSeverity(report.SeverityHigh)
		return []string{fmt.Sprintf("URGENT: %d critical security headers are missing", serious)}
	case report.LevelMedium:
		return []string{fmt.Sprintf("%d important security headers are missing", r.CountSeverity(report.SeverityMedium))}
	case report.LevelLow:
		if missing, _ := r.Details["missingHeaders"].([]string); len(missing) > 0 {
			return []string{"Consider adding remaining security headers for defense in depth"}
		}
		return []string{"Remove headers that disclose the technology stack"}
	default:
		return []string{"All major security headers are present"}
	}
}
