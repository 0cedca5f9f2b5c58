package errors

import "errors"

// Domain errors
var (
	// Input errors
	ErrMissingRequired = errors.New("missing required field")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidTarget   = errors.New("invalid target URL")

	// Probe errors
	ErrUnknownProbe      = errors.New("unknown probe")
	ErrInvalidToken      = errors.New("invalid JWT token format")
	ErrTargetUnreachable = errors.New("target unreachable")

	// Corpus errors
	ErrInvalidCorpus = errors.New("invalid corpus")

	// Job errors
	ErrJobNotFound = errors.New("job not found")
)
