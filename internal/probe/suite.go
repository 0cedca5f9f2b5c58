package probe

import (
	"fmt"

	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

// Suite is the ordered set of probes. Order is the run-all order.
type Suite struct {
	probes []Probe
	byName map[string]Probe
}

// NewSuite builds every probe around deps.
func NewSuite(deps Deps) *Suite {
	deps = deps.withDefaults()
	return NewSuiteOf(
		NewBruteForce(deps),
		NewRateLimit(deps),
		NewSQLInjection(deps),
		NewXSS(deps),
		NewSecurityHeaders(deps),
		NewCORS(deps),
		NewJWT(deps),
		NewAuthentication(deps),
		NewDiscovery(deps),
		NewTimingAttack(deps),
	)
}

// NewSuiteOf builds a suite from explicit probes.
func NewSuiteOf(probes ...Probe) *Suite {
	s := &Suite{byName: make(map[string]Probe, len(probes))}
	for _, p := range probes {
		s.probes = append(s.probes, p)
		s.byName[p.Spec().Name] = p
	}
	return s
}

// All returns the probes in declaration order.
func (s *Suite) All() []Probe {
	out := make([]Probe, len(s.probes))
	copy(out, s.probes)
	return out
}

// Batch returns the probes that run in run-all, in order.
func (s *Suite) Batch() []Probe {
	var out []Probe
	for _, p := range s.probes {
		if p.Spec().Batch {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds a probe by name.
func (s *Suite) Lookup(name string) (Probe, error) {
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sharedErrors.ErrUnknownProbe, name)
	}
	return p, nil
}

// Specs lists the probe descriptions in order.
func (s *Suite) Specs() []Spec {
	out := make([]Spec, 0, len(s.probes))
	for _, p := range s.probes {
		out = append(out, p.Spec())
	}
	return out
}
