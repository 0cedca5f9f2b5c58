// Package corpus holds the ordered attack strings, credentials, paths and the
// security header registry used by the probes.
//
// The default corpus is embedded at build time. A caller can load a different
// file; lists the file leaves out keep their default contents.
package corpus

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

//go:embed default.yaml
var defaultYAML []byte

// HeaderSpec describes a security response header and what its absence costs.
type HeaderSpec struct {
	Header         string          `yaml:"header" json:"header"`
	Name           string          `yaml:"name" json:"name"`
	Description    string          `yaml:"description" json:"description"`
	Severity       report.Severity `yaml:"severity" json:"severity"`
	Recommendation string          `yaml:"recommendation" json:"recommendation"`
}

// PathRule raises a finding of Severity for a found path containing Match.
type PathRule struct {
	Match    string          `yaml:"match" json:"match"`
	Severity report.Severity `yaml:"severity" json:"severity"`
}

// PathNote annotates a found path containing Match.
type PathNote struct {
	Match string `yaml:"match" json:"match"`
	Note  string `yaml:"note" json:"note"`
}

// Corpus is read-only once loaded and may be shared between probes.
type Corpus struct {
	Version string `yaml:"version" json:"version"`

	BruteForcePasswords []string `yaml:"bruteForcePasswords" json:"bruteForcePasswords"`
	AuthWeakPasswords   []string `yaml:"authWeakPasswords" json:"authWeakPasswords"`

	SQLInjectionPayloads []string `yaml:"sqlInjectionPayloads" json:"sqlInjectionPayloads"`
	SQLErrorPatterns     []string `yaml:"sqlErrorPatterns" json:"sqlErrorPatterns"`
	SQLDefaultParameters []string `yaml:"sqlDefaultParameters" json:"sqlDefaultParameters"`

	XSSPayloads          []string `yaml:"xssPayloads" json:"xssPayloads"`
	XSSDefaultParameters []string `yaml:"xssDefaultParameters" json:"xssDefaultParameters"`

	DiscoveryPaths []string   `yaml:"discoveryPaths" json:"discoveryPaths"`
	DiscoveryRules []PathRule `yaml:"discoveryRules" json:"discoveryRules"`
	DiscoveryNotes []PathNote `yaml:"discoveryNotes" json:"discoveryNotes"`

	JWTWeakSecrets     []string `yaml:"jwtWeakSecrets" json:"jwtWeakSecrets"`
	JWTSensitiveFields []string `yaml:"jwtSensitiveFields" json:"jwtSensitiveFields"`

	CORSTestOrigins []string `yaml:"corsTestOrigins" json:"corsTestOrigins"`

	SecurityHeaders []HeaderSpec `yaml:"securityHeaders" json:"securityHeaders"`

	EnumerationMarkers []string `yaml:"enumerationMarkers" json:"enumerationMarkers"`

	sqlErrors []*regexp.Regexp
}

var (
	defaultOnce   sync.Once
	defaultCorpus *Corpus
)

// Default returns the embedded corpus. It panics if the embedded file is
// invalid, which only a broken build can cause.
func Default() *Corpus {
	defaultOnce.Do(func() {
		c, err := decode(defaultYAML)
		if err == nil {
			err = c.compile()
		}
		if err != nil {
			panic(fmt.Sprintf("embedded corpus: %v", err))
		}
		defaultCorpus = c
	})
	return defaultCorpus
}

// Load reads a corpus file. An empty path returns the default corpus.
func Load(path string) (*Corpus, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a corpus document, filling omitted lists from
// the default corpus.
func Parse(data []byte) (*Corpus, error) {
	c, err := decode(data)
	if err != nil {
		return nil, err
	}
	c.fillFrom(Default())
	if err := c.compile(); err != nil {
		return nil, err
	}
	return c, nil
}

func decode(data []byte) (*Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidCorpus, err)
	}
	return &c, nil
}

func (c *Corpus) fillFrom(d *Corpus) {
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&c.BruteForcePasswords, d.BruteForcePasswords)
	fill(&c.AuthWeakPasswords, d.AuthWeakPasswords)
	fill(&c.SQLInjectionPayloads, d.SQLInjectionPayloads)
	fill(&c.SQLErrorPatterns, d.SQLErrorPatterns)
	fill(&c.SQLDefaultParameters, d.SQLDefaultParameters)
	fill(&c.XSSPayloads, d.XSSPayloads)
	fill(&c.XSSDefaultParameters, d.XSSDefaultParameters)
	fill(&c.DiscoveryPaths, d.DiscoveryPaths)
	fill(&c.JWTWeakSecrets, d.JWTWeakSecrets)
	fill(&c.JWTSensitiveFields, d.JWTSensitiveFields)
	fill(&c.CORSTestOrigins, d.CORSTestOrigins)
	fill(&c.EnumerationMarkers, d.EnumerationMarkers)
	if len(c.DiscoveryRules) == 0 {
		c.DiscoveryRules = d.DiscoveryRules
	}
	if len(c.DiscoveryNotes) == 0 {
		c.DiscoveryNotes = d.DiscoveryNotes
	}
	if len(c.SecurityHeaders) == 0 {
		c.SecurityHeaders = d.SecurityHeaders
	}
}

// Validate checks the version, every severity and every error pattern.
func (c *Corpus) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("%w: version is required", sharedErrors.ErrInvalidCorpus)
	}
	for _, h := range c.SecurityHeaders {
		if h.Header == "" {
			return fmt.Errorf("%w: security header entry %q has no header", sharedErrors.ErrInvalidCorpus, h.Name)
		}
		if h.Severity.Rank() == 0 {
			return fmt.Errorf("%w: header %s has unknown severity %q", sharedErrors.ErrInvalidCorpus, h.Header, h.Severity)
		}
	}
	for _, r := range c.DiscoveryRules {
		if r.Match == "" || r.Severity.Rank() == 0 {
			return fmt.Errorf("%w: discovery rule %q has unknown severity %q", sharedErrors.ErrInvalidCorpus, r.Match, r.Severity)
		}
	}
	for _, p := range c.SQLErrorPatterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return fmt.Errorf("%w: sql error pattern %q: %v", sharedErrors.ErrInvalidCorpus, p, err)
		}
	}
	return nil
}

func (c *Corpus) compile() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.sqlErrors = make([]*regexp.Regexp, 0, len(c.SQLErrorPatterns))
	for _, p := range c.SQLErrorPatterns {
		c.sqlErrors = append(c.sqlErrors, regexp.MustCompile("(?i)"+p))
	}
	return nil
}

// MatchSQLError reports whether text contains a database error message.
func (c *Corpus) MatchSQLError(text string) bool {
	for _, re := range c.sqlErrors {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// PathSeverities returns the distinct severities of the rules matching path,
// in rule order.
func (c *Corpus) PathSeverities(path string) []report.Severity {
	var out []report.Severity
	seen := map[report.Severity]bool{}
	for _, r := range c.DiscoveryRules {
		if strings.Contains(path, r.Match) && !seen[r.Severity] {
			seen[r.Severity] = true
			out = append(out, r.Severity)
		}
	}
	return out
}

// PathNote returns the note for a found path, or "".
func (c *Corpus) PathNote(path string) string {
	note := ""
	for _, n := range c.DiscoveryNotes {
		if strings.Contains(path, n.Match) {
			note = n.Note
		}
	}
	return note
}
