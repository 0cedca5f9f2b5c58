package probe

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	"github.com/khanhnv2901/secprobe/internal/target"
)

const exposedThreshold = 5

// Discovery requests a list of well-known paths without following redirects.
type Discovery struct {
	deps Deps
}

func NewDiscovery(deps Deps) *Discovery {
	return &Discovery{deps: deps.withDefaults()}
}

func (d *Discovery) Spec() Spec {
	return Spec{
		Name:  "discover-endpoints",
		Title: "Endpoint Discovery Test",
		Labels: report.Labels{
			Critical: report.StatusVulnerable,
			High:     report.StatusWeak,
			Medium:   report.StatusWeak,
			Low:      report.StatusWeak,
			Clean:    report.StatusProtected,
		},
		Hardening: []string{
			"Use authentication for all sensitive endpoints",
			"Disable debug/development endpoints in production",
			"Implement rate limiting on discovery attempts",
			"Monitor for endpoint scanning attempts",
		},
		Batch: true,
	}
}

func (d *Discovery) Validate(p Params) error {
	return validateTarget(p)
}

func (d *Discovery) Run(ctx context.Context, p Params, r *report.Report) error {
	paths := listOrDefault(p.CommonPaths, d.deps.Corpus.DiscoveryPaths)
	found := []string{}

	for i, path := range paths {
		resp := d.deps.Client.Send(ctx, target.Request{
			Method:     http.MethodGet,
			URL:        target.Join(p.TargetURL, path),
			Timeout:    consts.DiscoveryRequestTimeout,
			NoRedirect: true,
		})

		a := report.Attempt{Index: i + 1, Path: path, ResponseTime: resp.ElapsedMs()}
		if resp.Failed() {
			a.Error = resp.ErrorText()
			a.Flags = map[string]bool{"found": false}
			r.AddAttempt(a)
			d.deps.pause(ctx, consts.ShortPause)
			continue
		}

		isFound := resp.StatusCode < http.StatusBadRequest
		a.StatusCode = resp.StatusCode
		a.Flags = map[string]bool{"found": isFound}
		a.Meta = map[string]string{"size": strconv.Itoa(len(resp.Body))}
		if isFound {
			found = append(found, path)
			d.classify(r, path, resp.StatusCode)
			a.Note = d.deps.Corpus.PathNote(path)
		}
		r.AddAttempt(a)

		d.deps.pause(ctx, consts.ShortPause)
	}

	r.SetDetail("totalPaths", len(paths))
	r.SetDetail("foundEndpoints", found)
	return nil
}

func (d *Discovery) classify(r *report.Report, path string, status int) {
	for _, severity := range d.deps.Corpus.PathSeverities(path) {
		switch severity {
		case report.SeverityCritical:
			r.AddFinding(severity, "Critical endpoint exposed: "+path,
				"This endpoint may expose sensitive configuration or data")
		case report.SeverityHigh:
			r.AddFinding(severity, "Sensitive endpoint exposed: "+path, fmt.Sprintf("Status: %d", status))
		default:
			r.AddFinding(severity, "Endpoint exposed: "+path, fmt.Sprintf("Status: %d", status))
		}
	}
}

func foundCount(r *report.Report) int {
	found, _ := r.Details["foundEndpoints"].([]string)
	return len(found)
}

// CleanLabel reports exposed when many endpoints answered but none is sensitive.
func (d *Discovery) CleanLabel(r *report.Report) (report.Status, bool) {
	if foundCount(r) > exposedThreshold {
		return report.StatusExposed, true
	}
	return "", false
}

func (d *Discovery) Advise(level report.Level, r *report.Report) []string {
	switch {
	case level == report.LevelCritical:
		return []string{
			"URGENT: Critical endpoints are publicly accessible",
			"Restrict access to sensitive endpoints immediately",
		}
	case level > report.LevelClean:
		return []string{
			"Some sensitive endpoints are exposed",
			"Implement proper access controls",
		}
	case foundCount(r) > exposedThreshold:
		return []string{
			"Many endpoints are discoverable",
			"Consider implementing endpoint authentication",
		}
	default:
		return []string{"Endpoint exposure is minimal"}
	}
}
