package cmd

import (
	"github.com/fatih/color"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorAlert   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func formatStatusWithColor(status report.Status) string {
	s := string(status)
	switch status {
	case report.StatusSecure, report.StatusExcellent, report.StatusGood, report.StatusProtected:
		return colorSuccess(s)
	case report.StatusWeak, report.StatusExposed:
		return colorWarn(s)
	case report.StatusVulnerable:
		return colorAlert(s)
	case report.StatusError:
		return colorError(s)
	default:
		return s
	}
}

func formatSeverityWithColor(sev report.Severity) string {
	s := string(sev)
	switch sev {
	case report.SeverityCritical:
		return colorAlert(s)
	case report.SeverityHigh:
		return colorError(s)
	case report.SeverityMedium:
		return colorWarn(s)
	case report.SeverityLow:
		return colorInfo(s)
	default:
		return s
	}
}
