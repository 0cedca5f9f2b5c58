package cmd

import (
	"errors"
	"fmt"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
)

const (
	exitFailure   = 1
	exitThreshold = 2
)

// ThresholdError signals that findings met the --fail-on threshold.
type ThresholdError struct {
	Threshold report.Severity
	Count     int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%d finding(s) at or above %s", e.Count, e.Threshold)
}

// UnknownFormatError reports an unsupported --format value.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown output format %q (want text or json)", e.Format)
}

func exitCode(err error) int {
	var threshold *ThresholdError
	if errors.As(err, &threshold) {
		return exitThreshold
	}
	return exitFailure
}
