package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

// parseFailOn returns the threshold severity, or "" when failing is disabled.
func parseFailOn(value string) (report.Severity, error) {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "none") {
		return "", nil
	}
	sev, ok := report.ParseSeverity(v)
	if !ok {
		return "", fmt.Errorf("%w: --fail-on %q", sharedErrors.ErrInvalidInput, value)
	}
	return sev, nil
}

func checkThreshold(reports []*report.Report, threshold report.Severity) error {
	if threshold == "" {
		return nil
	}
	count := 0
	for _, r := range reports {
		for _, f := range r.Findings {
			if f.Severity.Rank() >= threshold.Rank() {
				count++
			}
		}
	}
	if count > 0 {
		return &ThresholdError{Threshold: threshold, Count: count}
	}
	return nil
}

// renderReports writes reports in the requested format. A single report is
// encoded as an object, several as an array.
func renderReports(w io.Writer, format string, reports []*report.Report, single bool) error {
	switch strings.ToLower(format) {
	case "", "text":
		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(w)
			}
			renderText(w, r)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if single && len(reports) == 1 {
			return enc.Encode(reports[0])
		}
		return enc.Encode(reports)
	default:
		return &UnknownFormatError{Format: format}
	}
}

func renderText(w io.Writer, r *report.Report) {
	fmt.Fprintf(w, "%s %s\n", colorInfo("==>"), r.TestName)
	if r.Target != "" {
		fmt.Fprintf(w, "Target:  %s\n", r.Target)
	}
	fmt.Fprintf(w, "Status:  %s\n", formatStatusWithColor(r.Status))
	if r.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", r.Error)
	}

	if len(r.Findings) > 0 {
		fmt.Fprintf(w, "Findings (%d):\n", len(r.Findings))
		for _, f := range r.Findings {
			line := fmt.Sprintf("  [%s] %s", formatSeverityWithColor(f.Severity), f.Description)
			if f.Details != "" {
				line += " - " + f.Details
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}

func writeOutputFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode reports: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// finishRun renders, optionally saves, and applies the --fail-on threshold.
func finishRun(w io.Writer, out OutputConfig, reports []*report.Report, single bool) error {
	threshold, err := parseFailOn(out.FailOn)
	if err != nil {
		return err
	}
	if err := renderReports(w, out.Format, reports, single); err != nil {
		return err
	}
	if out.File != "" {
		var payload any = reports
		if single && len(reports) == 1 {
			payload = reports[0]
		}
		if err := writeOutputFile(out.File, payload); err != nil {
			return err
		}
	}
	return checkThreshold(reports, threshold)
}
