package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// DefaultRequestTimeout bounds a single request for most probes.
	DefaultRequestTimeout = 5 * time.Second
	// InjectionRequestTimeout is longer so time-based blind injection can be observed.
	InjectionRequestTimeout = 10 * time.Second
	// DiscoveryRequestTimeout keeps path sweeps short.
	DiscoveryRequestTimeout = 3 * time.Second

	// SuspiciousDelay marks a response as a possible time-based injection.
	SuspiciousDelay = 5 * time.Second

	// MaxBodyBytes caps how much of a response body a probe inspects.
	MaxBodyBytes = 1 << 20
)

const (
	// LongPause separates requests of login-style probes.
	LongPause = 100 * time.Millisecond
	// ShortPause separates requests of payload sweeps.
	ShortPause = 50 * time.Millisecond
	// InterProbePause separates probes during a run-all batch.
	InterProbePause = 500 * time.Millisecond
)

const (
	DefaultBruteForceAttempts = 50
	DefaultRateLimitRequests  = 100
	DefaultRateLimitWindowMs  = 1000
	DefaultTimingSamples      = 20
	AuthTimingSamples         = 5

	DefaultUsernameField = "username"
	DefaultPasswordField = "password"
)
