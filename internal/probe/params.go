package probe

import (
	"fmt"
	"strings"
	"unicode/utf8"

	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
	"github.com/khanhnv2901/secprobe/internal/target"
)

// Credentials are a known-good login used by the authentication probe.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Params is the caller input of a probe. Each probe reads only the fields it
// needs; zero values select the defaults.
type Params struct {
	TargetURL     string      `json:"targetUrl"`
	Endpoint      string      `json:"endpoint,omitempty"`
	UsernameField string      `json:"usernameField,omitempty"`
	PasswordField string      `json:"passwordField,omitempty"`
	Attempts      int         `json:"attempts,omitempty"`
	RequestCount  int         `json:"requestCount,omitempty"`
	TimeWindow    int         `json:"timeWindow,omitempty"`
	Concurrency   int         `json:"concurrency,omitempty"`
	Parameters    []string    `json:"parameters,omitempty"`
	Token         string      `json:"token,omitempty"`
	Credentials   Credentials `json:"credentials"`
	CommonPaths   []string    `json:"commonPaths,omitempty"`
	Samples       int         `json:"samples,omitempty"`
}

// URL is the target joined with the endpoint.
func (p Params) URL() string {
	return target.Join(p.TargetURL, p.Endpoint)
}

func (p Params) usernameField() string {
	if p.UsernameField != "" {
		return p.UsernameField
	}
	return consts.DefaultUsernameField
}

func (p Params) passwordField() string {
	if p.PasswordField != "" {
		return p.PasswordField
	}
	return consts.DefaultPasswordField
}

func (p Params) login(username, password string) map[string]string {
	return map[string]string{
		p.usernameField(): username,
		p.passwordField(): password,
	}
}

func (p Params) prepare(spec Spec) Params {
	if spec.Endpoint && strings.TrimSpace(p.Endpoint) == "" {
		p.Endpoint = spec.DefaultEndpoint
	}
	return p
}

func (p Params) reportTarget(spec Spec) string {
	if spec.Endpoint {
		return p.URL()
	}
	return p.TargetURL
}

func validateTarget(p Params) error {
	_, err := target.ParseBase(p.TargetURL)
	return err
}

func validateCounts(counts map[string]int) error {
	for name, n := range counts {
		if n < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", sharedErrors.ErrInvalidInput, name, n)
		}
	}
	return nil
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

func listOrDefault(list, def []string) []string {
	if len(list) > 0 {
		return list
	}
	return def
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
