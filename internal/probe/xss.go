package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
)

const payloadPreview = 50

// XSS posts each payload in each body field and checks whether the response
// echoes it back unescaped.
type XSS struct {
	deps Deps
}

func NewXSS(deps Deps) *XSS {
	return &XSS{deps: deps.withDefaults()}
}

func (x *XSS) Spec() Spec {
	return Spec{
		Name:            "xss",
		Title:           "XSS (Cross-Site Scripting) Test",
		Labels:          binary(report.StatusVulnerable, report.StatusProtected),
		Batch:           true,
		Endpoint:        true,
		DefaultEndpoint: "/api/comments",
	}
}

func (x *XSS) Validate(p Params) error {
	return validateTarget(p)
}

func (x *XSS) Run(ctx context.Context, p Params, r *report.Report) error {
	payloads := x.deps.Corpus.XSSPayloads
	if len(payloads) == 0 {
		return errors.New("corpus has no xss payloads")
	}
	params := listOrDefault(p.Parameters, x.deps.Corpus.XSSDefaultParameters)
	endpoint := p.URL()

	vulnerable := []string{}
	total := 0
	for _, param := range params {
		for _, payload := range payloads {
			total++
			resp := x.deps.Client.Send(ctx, target.Request{
				Method:  http.MethodPost,
				URL:     endpoint,
				JSON:    map[string]string{param: payload},
				Timeout: consts.DefaultRequestTimeout,
			})

			a := report.Attempt{
				Index:        total,
				Parameter:    param,
				Payload:      truncate(payload, payloadPreview),
				ResponseTime: resp.ElapsedMs(),
			}
			if resp.Failed() {
				a.Error = resp.ErrorText()
			} else {
				// A payload without brackets is its own encoded form and never counts.
				encoded := reflects(resp.Body, htmlEscapeBrackets(payload))
				reflected := reflects(resp.Body, payload)
				a.StatusCode = resp.StatusCode
				a.Flags = map[string]bool{
					"reflected":       reflected,
					"properlyEncoded": encoded && !reflected,
				}
				if reflected && !encoded {
					a.Note = "Unencoded payload reflected in response"
					vulnerable = append(vulnerable, param)
				}
			}
			r.AddAttempt(a)

			x.deps.pause(ctx, consts.ShortPause)
		}
	}

	r.SetDetail("totalTests", total)
	r.SetDetail("vulnerableParameters", vulnerable)

	if unique := dedupe(vulnerable); len(unique) > 0 {
		r.AddFinding(report.SeverityHigh, "XSS vulnerability detected",
			"Vulnerable parameters: "+strings.Join(unique, ", "))
	}
	return nil
}

func (x *XSS) Advise(level report.Level, _ *report.Report) []string {
	if level > report.LevelClean {
		return []string{
			"URGENT: Implement proper output encoding/escaping",
			"Use Content Security Policy (CSP) headers",
			"Sanitize user input on both client and server side",
			"Use frameworks that auto-escape output by default",
			"Validate and whitelist allowed HTML tags if rich text is needed",
		}
	}
	return []string{
		"No XSS vulnerabilities detected",
		"Continue implementing proper output encoding",
		"Consider adding CSP headers for defense in depth",
	}
}

// reflects reports whether body contains payload verbatim, either in the raw
// bytes or inside a decoded JSON string value.
func reflects(body []byte, payload string) bool {
	if strings.Contains(string(body), payload) {
		return true
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	return jsonContains(doc, payload)
}

func jsonContains(v any, needle string) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(t, needle)
	case []any:
		for _, item := range t {
			if jsonContains(item, needle) {
				return true
			}
		}
	case map[string]any:
		for _, item := range t {
			if jsonContains(item, needle) {
				return true
			}
		}
	}
	return false
}

func htmlEscapeBrackets(s string) string {
	return strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(s)
}
