// Package constants centralizes defaults shared between the CLI, the REST API
// and the probe engine.
//
// Request timeouts, politeness delays, sample counts and file permissions live
// here so probes and commands agree on them without importing each other.
package constants
