package auth

import (
	"testing"
	"time"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(&core.Config{
		AppName:   "Shule",
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 30 * 24 * time.Hour,
			JWTRefreshSecretKey:       "refresh-secret",
		},
	})
}

var testPrincipal = principal.Principal{
	ID:    "6a1b0a23-6f11-4f3a-b9a0-1b7c2f6e5a01",
	Email: "t@test.cd",
	Role:  principal.RoleTeacher,
}

func TestAuthenticator_roundTrip(t *testing.T) {
	authn := newTestAuthenticator()

	pair, err := authn.IssueTokenPair(testPrincipal)
	if err != nil {
		t.Fatalf("IssueTokenPair() failed, %v", err)
	}

	claims, err := authn.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken() failed, %v", err)
	}
	if claims.Subject != testPrincipal.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, testPrincipal.ID)
	}
	if claims.Email != testPrincipal.Email {
		t.Errorf("Email = %q, want %q", claims.Email, testPrincipal.Email)
	}
	if claims.Role != testPrincipal.Role {
		t.Errorf("Role = %q, want %q", claims.Role, testPrincipal.Role)
	}
	if claims.Kind != KindAccess {
		t.Errorf("Kind = %q, want %q", claims.Kind, KindAccess)
	}

	rClaims, err := authn.VerifyRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefreshToken() failed, %v", err)
	}
	if rClaims.Kind != KindRefresh {
		t.Errorf("Kind = %q, want %q", rClaims.Kind, KindRefresh)
	}
}

func TestAuthenticator_expiredToken(t *testing.T) {
	authn := newTestAuthenticator()
	authn.nowFunc = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }

	token, err := authn.IssueAccessToken(testPrincipal)
	if err != nil {
		t.Fatalf("IssueAccessToken() failed, %v", err)
	}
	if _, err = authn.VerifyAccessToken(token); err != ErrTokenExpired {
		t.Errorf("VerifyAccessToken() error = %v, want %v", err, ErrTokenExpired)
	}
}

func TestAuthenticator_wrongSecret(t *testing.T) {
	authn := newTestAuthenticator()
	token, err := authn.IssueAccessToken(testPrincipal)
	if err != nil {
		t.Fatalf("IssueAccessToken() failed, %v", err)
	}

	other := newTestAuthenticator()
	other.secret = []byte("not-the-secret")
	if _, err = other.VerifyAccessToken(token); err != ErrInvalidToken {
		t.Errorf("VerifyAccessToken() error = %v, want %v", err, ErrInvalidToken)
	}
}

// a refresh token must never be accepted where an access token is expected,
// and vice versa
func TestAuthenticator_kindConfusion(t *testing.T) {
	authn := newTestAuthenticator()
	pair, err := authn.IssueTokenPair(testPrincipal)
	if err != nil {
		t.Fatalf("IssueTokenPair() failed, %v", err)
	}

	if _, err = authn.VerifyAccessToken(pair.RefreshToken); err != ErrInvalidToken {
		t.Errorf("VerifyAccessToken(refresh) error = %v, want %v", err, ErrInvalidToken)
	}
	if _, err = authn.VerifyRefreshToken(pair.AccessToken); err != ErrInvalidToken {
		t.Errorf("VerifyRefreshToken(access) error = %v, want %v", err, ErrInvalidToken)
	}
}

// with no separate refresh secret both kinds share one key; the kind claim
// must still keep them apart
func TestAuthenticator_sharedSecretKeepsKindsApart(t *testing.T) {
	authn := NewAuthenticator(&core.Config{
		AppName:   "Shule",
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
	})

	pair, err := authn.IssueTokenPair(testPrincipal)
	if err != nil {
		t.Fatalf("IssueTokenPair() failed, %v", err)
	}
	if _, err = authn.VerifyAccessToken(pair.RefreshToken); err != ErrInvalidToken {
		t.Errorf("VerifyAccessToken(refresh) error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestAuthenticator_garbageToken(t *testing.T) {
	authn := newTestAuthenticator()
	for _, token := range []string{"", "lol", "a.b.c"} {
		if _, err := authn.VerifyAccessToken(token); err != ErrInvalidToken {
			t.Errorf("VerifyAccessToken(%q) error = %v, want %v", token, err, ErrInvalidToken)
		}
	}
}

// tokens signed with "none" must be rejected even when the payload is valid
func TestAuthenticator_algNone(t *testing.T) {
	authn := newTestAuthenticator()

	// header {"alg":"none","typ":"JWT"} . payload {} . empty sig
	unsigned := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.e30."
	if _, err := authn.VerifyAccessToken(unsigned); err != ErrInvalidToken {
		t.Errorf("VerifyAccessToken() error = %v, want %v", err, ErrInvalidToken)
	}
}
