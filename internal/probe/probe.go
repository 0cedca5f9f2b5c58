// Package probe implements the ten security probes and the engine that runs
// them.
//
// A probe only records attempts and findings. The engine owns the report
// lifecycle: it validates input, recovers failures, derives the status from
// the findings with the probe's label table and appends advice.
package probe

import (
	"context"
	"time"

	"github.com/khanhnv2901/secprobe/internal/corpus"
	"github.com/khanhnv2901/secprobe/internal/domain/report"
	"github.com/khanhnv2901/secprobe/internal/pacing"
	"github.com/khanhnv2901/secprobe/internal/target"
)

// Spec is the static description of a probe.
type Spec struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	// Labels maps the aggregate level to this probe's status vocabulary.
	Labels report.Labels `json:"-"`
	// Hardening is generic advice appended after level-specific advice.
	Hardening []string `json:"-"`
	// Batch probes run in run-all.
	Batch bool `json:"batch"`
	// Endpoint probes append Params.Endpoint to the target URL.
	Endpoint bool `json:"endpoint"`
	// DefaultEndpoint is used when the caller leaves the endpoint empty.
	DefaultEndpoint string `json:"defaultEndpoint,omitempty"`
}

// Probe is one vulnerability class.
type Probe interface {
	Spec() Spec
	// Validate rejects caller input before any request is sent.
	Validate(p Params) error
	// Run sends requests and records attempts and findings on r. A returned
	// error marks the report as errored; findings already recorded are kept.
	Run(ctx context.Context, p Params, r *report.Report) error
	// Advise returns level-specific recommendations.
	Advise(level report.Level, r *report.Report) []string
}

// CleanLabeler lets a probe pick a different status when there are no
// findings, based on what it observed.
type CleanLabeler interface {
	CleanLabel(r *report.Report) (report.Status, bool)
}

// Deps are the collaborators shared by every probe.
type Deps struct {
	Client target.Sender
	Corpus *corpus.Corpus
	Pacing pacing.Policy
	Now    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Client == nil {
		d.Client = target.New()
	}
	if d.Corpus == nil {
		d.Corpus = corpus.Default()
	}
	if d.Pacing == nil {
		d.Pacing = pacing.Sleep{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) pause(ctx context.Context, nominal time.Duration) {
	d.Pacing.Pause(ctx, nominal)
}

// tiered is the label table shared by probes that only distinguish serious
// from minor findings.
func tiered(serious, minor, clean report.Status) report.Labels {
	return report.Labels{
		Critical: serious,
		High:     serious,
		Medium:   minor,
		Low:      minor,
		Clean:    clean,
	}
}

func binary(found, clean report.Status) report.Labels {
	return tiered(found, found, clean)
}
