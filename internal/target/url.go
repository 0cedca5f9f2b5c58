package target

import (
	"fmt"
	"net/url"
	"strings"

	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

// ParseBase validates a caller-supplied base URL. Only absolute http and https
// URLs with a host are accepted.
func ParseBase(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: targetUrl", sharedErrors.ErrMissingRequired)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidTarget, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme %q is not http or https", sharedErrors.ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", sharedErrors.ErrInvalidTarget, raw)
	}
	return u, nil
}

// Join appends endpoint to base. A slash at the seam is never doubled and an
// endpoint without a leading slash gets one, unless it starts a query string.
func Join(base, endpoint string) string {
	if endpoint == "" {
		return base
	}
	if strings.HasPrefix(endpoint, "?") {
		return base + endpoint
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// IsPlainHTTP reports whether the URL uses the unencrypted http scheme.
func IsPlainHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Scheme, "http")
}
