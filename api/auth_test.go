package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("  Bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}

	cases := map[string]error{
		"":                                    errMissingAuthorization,
		"Bearer ":                             errBadAuthorization,
		"Basic dXNlcjpwYXNz":                  errBadAuthorization,
		"Bearer " + strings.Repeat(".", 1000): errBadAuthorization,
		"Bearer not-a-jwt":                    errBadAuthorization,
	}
	for raw, want := range cases {
		if _, err := bearerToken(raw); err != want {
			t.Errorf("bearerToken(%q) = %v, want %v", raw, err, want)
		}
	}
}

func TestAuthHeaderQueryFallback(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/stream?token=a.b.c", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := authHeader(c, false); got != "" {
		t.Fatalf("query token must be ignored when not allowed, got %q", got)
	}
	if got := authHeader(c, true); got != "Bearer a.b.c" {
		t.Fatalf("unexpected header %q", got)
	}

	req.Header.Set(echo.HeaderAuthorization, "Bearer x.y.z")
	if got := authHeader(c, true); got != "Bearer x.y.z" {
		t.Fatalf("header must win over query, got %q", got)
	}
}

func TestUserIDFromBearerHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	})

	auth := NewTestAuth(secret)
	auth.Audience = "api://aud"
	auth.Issuer = "https://issuer/"

	userID, err := auth.UserIDFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromBearerRejects(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewTestAuth(secret)
	auth.Audience = "api://aud"

	valid := jwt.MapClaims{"sub": "u", "aud": "api://aud", "exp": time.Now().Add(time.Hour).Unix()}
	wrongAud := jwt.MapClaims{"sub": "u", "aud": "api://other", "exp": time.Now().Add(time.Hour).Unix()}
	noSub := jwt.MapClaims{"aud": "api://aud", "exp": time.Now().Add(time.Hour).Unix()}
	noExp := jwt.MapClaims{"sub": "u", "aud": "api://aud"}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signHS256(t, []byte("other"), valid)},
		{"wrong audience", signHS256(t, secret, wrongAud)},
		{"missing sub", signHS256(t, secret, noSub)},
		{"missing exp", signHS256(t, secret, noExp)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.UserIDFromBearer(tt.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAuthWithoutJWKS(t *testing.T) {
	auth := NewAuth(nil, "", "")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"})
	if _, err := auth.keyFunc(token); err == nil {
		t.Fatal("expected jwks error")
	}
}
