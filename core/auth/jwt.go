package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/tmalira/shule/core"
	"github.com/tmalira/shule/core/principal"
)

var (
	// errors
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Token kinds. A refresh token can never pass for an access token and vice
// versa, even when both are signed with the same secret.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is the identity carried by a bearer token.
type Claims struct {
	jwt.StandardClaims
	Role  principal.Role `json:"role,omitempty"`
	Email string         `json:"email,omitempty"`
	Kind  string         `json:"kind,omitempty"`
}

// TokenPair is what a successful authentication hands back to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Authenticator issues and verifies the signed, time-bounded tokens that
// represent an authenticated principal. It is stateless; tokens are
// self-contained and never persisted.
type Authenticator struct {
	issuer        string
	secret        []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	nowFunc func() time.Time // mockable
}

func NewAuthenticator(conf *core.Config) *Authenticator {
	refreshSecret := conf.Server.JWTRefreshSecretKey
	if refreshSecret == "" {
		refreshSecret = conf.SecretKey
	}
	return &Authenticator{
		issuer:        conf.AppName,
		secret:        []byte(conf.SecretKey),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     conf.Server.JWTExpirationDelta,
		refreshTTL:    conf.Server.JWTRefreshExpirationDelta,
		nowFunc:       time.Now,
	}
}

func (a *Authenticator) claims(p principal.Principal, kind string, ttl time.Duration) *Claims {
	now := a.nowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   p.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Role:  p.Role,
		Email: p.Email,
		Kind:  kind,
	}
}

func (a *Authenticator) issue(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *Authenticator) IssueAccessToken(p principal.Principal) (string, error) {
	return a.issue(a.claims(p, KindAccess, a.accessTTL), a.secret)
}

func (a *Authenticator) IssueRefreshToken(p principal.Principal) (string, error) {
	return a.issue(a.claims(p, KindRefresh, a.refreshTTL), a.refreshSecret)
}

// IssueTokenPair issues a fresh access/refresh token pair for p. Each call
// stamps a new issued-at, so repeated calls never mint identical tokens.
func (a *Authenticator) IssueTokenPair(p principal.Principal) (TokenPair, error) {
	access, err := a.IssueAccessToken(p)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := a.IssueRefreshToken(p)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccessToken validates the signature, expiry and kind of a presented
// access token and returns its claims. Failures map to exactly
// ErrTokenExpired or ErrInvalidToken.
func (a *Authenticator) VerifyAccessToken(token string) (*Claims, error) {
	return a.verify(token, a.secret, KindAccess)
}

// VerifyRefreshToken is VerifyAccessToken for refresh tokens.
func (a *Authenticator) VerifyRefreshToken(token string) (*Claims, error) {
	return a.verify(token, a.refreshSecret, KindRefresh)
}

func (a *Authenticator) verify(tokenStr string, secret []byte, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// reject any algorithm other than the one we sign with
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
