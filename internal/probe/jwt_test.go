package probe

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestJWTWeakSecret(t *testing.T) {
	for _, method := range []jwt.SigningMethod{jwt.SigningMethodHS256, jwt.SigningMethodHS512} {
		token := sign(t, method, []byte("secret"), jwt.MapClaims{
			"sub": "42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		p := NewJWT(Deps{})
		r := execute(t, p, Params{Token: token})

		if !hasFinding(r, report.SeverityCritical, "Weak JWT secret detected") {
			t.Fatalf("%s: expected weak secret finding, got %+v", method.Alg(), r.Findings)
		}
		if r.Status != report.StatusVulnerable {
			t.Fatalf("%s: expected vulnerable, got %s", method.Alg(), r.Status)
		}
		assertDerived(t, p, r)
	}
}

func TestJWTWeakSecretOnExpiredToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte("jwt-secret"), jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	r := execute(t, NewJWT(Deps{}), Params{Token: token})

	if !hasFinding(r, report.SeverityCritical, "Weak JWT secret detected") {
		t.Fatalf("expected weak secret finding on expired token, got %+v", r.Findings)
	}
	if !hasFinding(r, report.SeverityLow, "Token is expired") {
		t.Fatalf("expected expired finding, got %+v", r.Findings)
	}
}

func TestJWTStrongToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte("f3b1c0a9e8d7c6b5a4f3e2d1c0b9a8f7"), jwt.MapClaims{
		"sub": "42",
		"iss": "auth.example.com",
		"exp": time.Now().Add(30 * time.Minute).Unix(),
	})

	p := NewJWT(Deps{})
	r := execute(t, p, Params{Token: token})

	if r.Status != report.StatusSecure {
		t.Fatalf("expected secure, got %s (%+v)", r.Status, r.Findings)
	}
	if r.Details["algorithmType"] != "Symmetric (HMAC)" {
		t.Fatalf("unexpected algorithm type %v", r.Details["algorithmType"])
	}
	std, _ := r.Details["standardClaims"].(map[string]any)
	if std["iss"] != "auth.example.com" {
		t.Fatalf("expected iss in standard claims, got %v", std)
	}
	if r.Recommendations[0] != "Using symmetric algorithm - ensure secret is strong and secure" {
		t.Fatalf("unexpected first recommendation %q", r.Recommendations[0])
	}
	assertDerived(t, p, r)
}

func TestJWTClaimChecks(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   report.Severity
		desc   string
		status report.Status
	}{
		{
			name:   "no expiry",
			claims: jwt.MapClaims{"sub": "1"},
			want:   report.SeverityHigh,
			desc:   "No expiration claim (exp)",
			status: report.StatusWeak,
		},
		{
			name:   "long lived",
			claims: jwt.MapClaims{"exp": time.Now().Add(72 * time.Hour).Unix()},
			want:   report.SeverityMedium,
			desc:   "Token expiration time is too long",
			status: report.StatusGood,
		},
		{
			name:   "sensitive field",
			claims: jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "user_password": "x"},
			want:   report.SeverityCritical,
			desc:   "Sensitive data in JWT payload",
			status: report.StatusVulnerable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := sign(t, jwt.SigningMethodHS256, []byte("a-long-random-signing-key-0123456789"), tt.claims)
			p := NewJWT(Deps{})
			r := execute(t, p, Params{Token: token})

			if !hasFinding(r, tt.want, tt.desc) {
				t.Fatalf("expected %s %q, got %+v", tt.want, tt.desc, r.Findings)
			}
			if r.Status != tt.status {
				t.Fatalf("expected %s, got %s", tt.status, r.Status)
			}
			assertDerived(t, p, r)
		})
	}
}

func TestJWTAlgNone(t *testing.T) {
	token := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	r := execute(t, NewJWT(Deps{}), Params{Token: token})

	if !hasFinding(r, report.SeverityCritical, `Algorithm set to "none"`) {
		t.Fatalf("expected alg none finding, got %+v", r.Findings)
	}
	if hasFinding(r, report.SeverityCritical, "Weak JWT secret detected") {
		t.Fatal("an unsigned token cannot verify against a secret")
	}
}

func TestJWTInputErrors(t *testing.T) {
	r := execute(t, NewJWT(Deps{}), Params{})
	if r.Status != report.StatusError || !strings.Contains(r.Error, "no token provided") {
		t.Fatalf("expected missing token error, got %s / %q", r.Status, r.Error)
	}

	r = execute(t, NewJWT(Deps{}), Params{Token: "not-a-jwt"})
	if r.Status != report.StatusError || r.Error != "invalid JWT token format" {
		t.Fatalf("expected invalid token error, got %s / %q", r.Status, r.Error)
	}
}
