package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
	sharedErrors "github.com/khanhnv2901/secprobe/internal/shared/errors"
)

const maxTokenLifetime = 24 * time.Hour

var standardClaims = []string{"iss", "sub", "aud", "exp", "nbf", "iat", "jti"}

// JWT inspects a token offline. It sends no requests.
type JWT struct {
	deps Deps
}

func NewJWT(deps Deps) *JWT {
	return &JWT{deps: deps.withDefaults()}
}

func (j *JWT) Spec() Spec {
	return Spec{
		Name:   "jwt",
		Title:  "JWT Token Security Test",
		Labels: report.FourTier(report.StatusVulnerable, report.StatusWeak, report.StatusGood, report.StatusSecure),
		Hardening: []string{
			"Use strong, randomly generated secrets",
			"Set appropriate expiration times",
			"Never store sensitive data in JWT payload",
			"Implement token refresh mechanism",
		},
	}
}

func (j *JWT) Validate(p Params) error {
	if strings.TrimSpace(p.Token) == "" {
		return fmt.Errorf("%w: no token provided", sharedErrors.ErrMissingRequired)
	}
	return nil
}

func (j *JWT) Run(_ context.Context, p Params, r *report.Report) error {
	raw := strings.TrimSpace(p.Token)

	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	// An unknown alg still decodes; only malformed tokens are rejected.
	if token == nil || (err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable)) {
		return sharedErrors.ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return sharedErrors.ErrInvalidToken
	}

	alg, _ := token.Header["alg"].(string)
	r.SetDetail("header", token.Header)
	r.SetDetail("payload", map[string]any(claims))
	r.SetDetail("algorithm", alg)

	j.checkAlgorithm(r, alg)
	j.checkExpiry(r, claims)
	j.checkSensitiveFields(r, claims)

	std := map[string]any{}
	for _, name := range standardClaims {
		if v, ok := claims[name]; ok && v != nil {
			std[name] = v
		}
	}
	r.SetDetail("standardClaims", std)

	if secret, ok := j.weakSecret(raw); ok {
		r.AddFinding(report.SeverityCritical, "Weak JWT secret detected",
			fmt.Sprintf("Token can be verified with weak secret: %q", secret))
	}
	return nil
}

func (j *JWT) checkAlgorithm(r *report.Report, alg string) {
	if strings.EqualFold(alg, "none") {
		r.AddFinding(report.SeverityCritical, `Algorithm set to "none"`, "Token can be forged without a signature")
	}
	switch {
	case strings.HasPrefix(alg, "HS"):
		r.SetDetail("algorithmType", "Symmetric (HMAC)")
		r.Recommend("Using symmetric algorithm - ensure secret is strong and secure")
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "ES"):
		r.SetDetail("algorithmType", "Asymmetric (RSA/ECDSA)")
		r.Recommend("Using asymmetric algorithm - good for distributed systems")
	}
}

func (j *JWT) checkExpiry(r *report.Report, claims jwt.MapClaims) {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Unix() == 0 {
		r.AddFinding(report.SeverityHigh, "No expiration claim (exp)", "Token never expires, which is a security risk")
		r.Recommend("Always set an expiration time for JWT tokens")
		return
	}

	remaining := exp.Sub(j.deps.Now())
	expiration := map[string]any{
		"timestamp": exp.Unix(),
		"date":      exp.UTC().Format(time.RFC3339),
		"expired":   remaining < 0,
	}
	if remaining > 0 {
		expiration["timeRemaining"] = fmt.Sprintf("%d minutes", int64(remaining/time.Minute))
	} else {
		expiration["timeRemaining"] = "Expired"
	}
	r.SetDetail("expiration", expiration)

	switch {
	case remaining < 0:
		r.AddFinding(report.SeverityLow, "Token is expired", "Expired on "+exp.UTC().Format(time.RFC3339))
	case remaining > maxTokenLifetime:
		r.AddFinding(report.SeverityMedium, "Token expiration time is too long",
			"Long-lived tokens increase security risk if compromised")
	}
}

func (j *JWT) checkSensitiveFields(r *report.Report, claims jwt.MapClaims) {
	for _, field := range j.deps.Corpus.JWTSensitiveFields {
		needle := strings.ToLower(field)
		for key := range claims {
			if strings.Contains(strings.ToLower(key), needle) {
				r.AddFinding(report.SeverityCritical, "Sensitive data in JWT payload",
					"Possible sensitive field detected: "+field)
				break
			}
		}
	}
}

// weakSecret returns the first dictionary secret that verifies the HMAC
// signature. Claim validation is skipped so expired tokens are still tested.
func (j *JWT) weakSecret(raw string) (string, bool) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithoutClaimsValidation(),
	)
	for _, secret := range j.deps.Corpus.JWTWeakSecrets {
		key := []byte(secret)
		_, err := parser.Parse(raw, func(*jwt.Token) (any, error) { return key, nil })
		if err == nil {
			return secret, true
		}
	}
	return "", false
}

func (j *JWT) Advise(level report.Level, _ *report.Report) []string {
	switch level {
	case report.LevelCritical:
		return []string{"URGENT: Critical JWT vulnerabilities detected"}
	case report.LevelHigh:
		return []string{"Important JWT security issues found"}
	case report.LevelMedium, report.LevelLow:
		return []string{"Minor JWT security improvements recommended"}
	default:
		return []string{"JWT token appears to be secure"}
	}
}
