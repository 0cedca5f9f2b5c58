package probe

import (
	"context"
	"net/http"
	"strings"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
)

// CORS sends a preflight request per test origin and inspects what the target
// allows.
type CORS struct {
	deps Deps
}

func NewCORS(deps Deps) *CORS {
	return &CORS{deps: deps.withDefaults()}
}

func (c *CORS) Spec() Spec {
	return Spec{
		Name:   "cors",
		Title:  "CORS Configuration Test",
		Labels: tiered(report.StatusVulnerable, report.StatusWeak, report.StatusGood),
		Hardening: []string{
			"Use CORS only when necessary",
			"Implement additional authentication for sensitive endpoints",
		},
		Batch: true,
	}
}

func (c *CORS) Validate(p Params) error {
	return validateTarget(p)
}

// preflight holds the CORS response headers of one preflight.
type preflight struct {
	AllowOrigin      string
	AllowMethods     string
	AllowHeaders     string
	AllowCredentials bool
	MaxAge           string
	VaryOrigin       bool
}

func readPreflight(h http.Header) preflight {
	return preflight{
		AllowOrigin:      h.Get("Access-Control-Allow-Origin"),
		AllowMethods:     h.Get("Access-Control-Allow-Methods"),
		AllowHeaders:     h.Get("Access-Control-Allow-Headers"),
		AllowCredentials: strings.EqualFold(h.Get("Access-Control-Allow-Credentials"), "true"),
		MaxAge:           h.Get("Access-Control-Max-Age"),
		VaryOrigin:       varyIncludesOrigin(h.Values("Vary")),
	}
}

func (pf preflight) meta() map[string]string {
	m := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("allowOrigin", pf.AllowOrigin)
	set("allowMethods", pf.AllowMethods)
	set("allowHeaders", pf.AllowHeaders)
	set("maxAge", pf.MaxAge)
	if pf.AllowCredentials {
		m["allowCredentials"] = "true"
	}
	return m
}

func (c *CORS) Run(ctx context.Context, p Params, r *report.Report) error {
	var (
		enabled     bool
		credentials bool
		origins     = []string{}
		methods     = []string{}
		headers     = []string{}
	)

	for i, origin := range c.deps.Corpus.CORSTestOrigins {
		resp := c.deps.Client.Send(ctx, target.Request{
			Method: http.MethodOptions,
			URL:    p.TargetURL,
			Header: http.Header{
				"Origin":                         {origin},
				"Access-Control-Request-Method":  {http.MethodPost},
				"Access-Control-Request-Headers": {"Content-Type"},
			},
			Timeout: consts.DefaultRequestTimeout,
		})

		a := report.Attempt{Index: i + 1, Origin: origin, ResponseTime: resp.ElapsedMs()}
		if resp.Failed() {
			a.Error = resp.ErrorText()
			r.AddAttempt(a)
			c.deps.pause(ctx, consts.LongPause)
			continue
		}

		pf := readPreflight(resp.Header)
		a.StatusCode = resp.StatusCode
		a.Flags = map[string]bool{"accepted": pf.AllowOrigin != ""}
		a.Meta = pf.meta()
		r.AddAttempt(a)

		if pf.AllowOrigin != "" {
			enabled = true
			if !contains(origins, pf.AllowOrigin) {
				origins = append(origins, pf.AllowOrigin)
			}
			c.classify(r, origin, pf)
			if pf.AllowCredentials {
				credentials = true
			}
			if pf.AllowMethods != "" {
				methods = splitList(pf.AllowMethods)
			}
			if pf.AllowHeaders != "" {
				headers = splitList(pf.AllowHeaders)
			}
		}

		c.deps.pause(ctx, consts.LongPause)
	}

	r.SetDetail("corsEnabled", enabled)
	r.SetDetail("allowedOrigins", origins)
	r.SetDetail("allowedMethods", methods)
	r.SetDetail("allowedHeaders", headers)
	r.SetDetail("allowsCredentials", credentials)
	return nil
}

func (c *CORS) classify(r *report.Report, origin string, pf preflight) {
	switch pf.AllowOrigin {
	case "*":
		r.AddFinding(report.SeverityHigh, "Wildcard (*) CORS origin allowed",
			"Access-Control-Allow-Origin: * allows any domain to make requests")
		if pf.AllowCredentials {
			r.AddFinding(report.SeverityCritical, "Credentials allowed with wildcard origin",
				"This combination is dangerous and not allowed by browsers")
		}
	case "null":
		r.AddFinding(report.SeverityMedium, "Null origin allowed",
			"Allowing null origin can be exploited by sandboxed iframes")
	}

	reflected := pf.AllowOrigin == origin && origin != "*"
	if reflected && origin != "null" {
		r.AddFinding(report.SeverityHigh, "Untrusted origin accepted",
			"The API accepted requests from untrusted origin: "+origin)
	}
	if reflected && !pf.VaryOrigin {
		r.AddFinding(report.SeverityLow, "Reflected origin without Vary: Origin",
			"Shared caches may serve the response for "+origin+" to other origins")
	}
}

// CleanLabel reports protected when no test origin was accepted at all.
func (c *CORS) CleanLabel(r *report.Report) (report.Status, bool) {
	if enabled, _ := r.Details["corsEnabled"].(bool); !enabled {
		return report.StatusProtected, true
	}
	return "", false
}

func (c *CORS) Advise(level report.Level, r *report.Report) []string {
	switch {
	case level >= report.LevelHigh:
		return []string{
			"URGENT: Fix critical CORS misconfigurations",
			"Never use Access-Control-Allow-Origin: * with credentials",
			"Whitelist only specific trusted domains",
			"Avoid reflecting the Origin header without validation",
		}
	case level > report.LevelClean:
		return []string{
			"CORS is enabled but has some security concerns",
			"Review and restrict allowed origins",
		}
	}
	if enabled, _ := r.Details["corsEnabled"].(bool); !enabled {
		return []string{
			"CORS is not enabled or is very restrictive",
			"If you need CORS, enable it only for trusted origins",
		}
	}
	return []string{
		"CORS configuration appears secure",
		"Regularly review allowed origins",
	}
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
