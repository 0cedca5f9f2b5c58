package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
)

// SQLInjection sends every payload through every query parameter and looks for
// database error messages or suspiciously slow responses.
type SQLInjection struct {
	deps Deps
}

func NewSQLInjection(deps Deps) *SQLInjection {
	return &SQLInjection{deps: deps.withDefaults()}
}

func (s *SQLInjection) Spec() Spec {
	return Spec{
		Name:            "sql-injection",
		Title:           "SQL Injection Test",
		Labels:          binary(report.StatusVulnerable, report.StatusProtected),
		Batch:           true,
		Endpoint:        true,
		DefaultEndpoint: "/api/users",
	}
}

func (s *SQLInjection) Validate(p Params) error {
	return validateTarget(p)
}

func (s *SQLInjection) Run(ctx context.Context, p Params, r *report.Report) error {
	payloads := s.deps.Corpus.SQLInjectionPayloads
	if len(payloads) == 0 {
		return errors.New("corpus has no sql injection payloads")
	}
	params := listOrDefault(p.Parameters, s.deps.Corpus.SQLDefaultParameters)
	endpoint := p.URL()

	vulnerable := []string{}
	var delayed []string
	total := 0
	for _, param := range params {
		for _, payload := range payloads {
			total++
			resp := s.deps.Client.Send(ctx, target.Request{
				Method:  http.MethodGet,
				URL:     endpoint,
				Query:   url.Values{param: {payload}},
				Timeout: consts.InjectionRequestTimeout,
			})

			a := report.Attempt{
				Index:        total,
				Parameter:    param,
				Payload:      payload,
				ResponseTime: resp.ElapsedMs(),
			}
			if resp.Failed() {
				a.Error = resp.ErrorText()
			} else {
				hasError := s.deps.Corpus.MatchSQLError(resp.Text())
				slow := resp.Elapsed > consts.SuspiciousDelay
				a.StatusCode = resp.StatusCode
				a.Flags = map[string]bool{"hasError": hasError, "suspiciousDelay": slow}
				if hasError {
					a.Note = "SQL error message detected"
					vulnerable = append(vulnerable, param)
				}
				if slow {
					a.Meta = map[string]string{"warning": "Suspicious response time - possible time-based injection"}
					delayed = append(delayed, param)
				}
			}
			r.AddAttempt(a)

			s.deps.pause(ctx, consts.ShortPause)
		}
	}

	r.SetDetail("totalTests", total)
	r.SetDetail("vulnerableParameters", vulnerable)

	if unique := dedupe(vulnerable); len(unique) > 0 {
		r.AddFinding(report.SeverityCritical, "SQL Injection vulnerability detected",
			"Vulnerable parameters: "+strings.Join(unique, ", "))
	}
	if unique := dedupe(delayed); len(unique) > 0 {
		r.AddFinding(report.SeverityHigh, "Possible time-based SQL injection",
			fmt.Sprintf("Responses slower than %s for parameters: %s", consts.SuspiciousDelay, strings.Join(unique, ", ")))
	}
	return nil
}

func (s *SQLInjection) Advise(level report.Level, _ *report.Report) []string {
	if level > report.LevelClean {
		return []string{
			"URGENT: Use parameterized queries or prepared statements",
			"Implement input validation and sanitization",
			"Use an ORM (Object-Relational Mapping) framework",
			"Apply the principle of least privilege to database users",
		}
	}
	return []string{
		"No SQL injection vulnerabilities detected",
		"Continue using parameterized queries",
		"Regularly update security testing patterns",
	}
}

// dedupe keeps the first occurrence of each value.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
