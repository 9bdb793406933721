// Package auth issues and verifies the JWTs recsystems present when
// connecting to the control plane and event stream (spec §4.7), grounded on
// the teacher's token issuance/verification split (catchup-feed-backend
// internal/handler/http/auth/token.go and middleware.go): HS256 signing via
// github.com/golang-jwt/jwt/v5, a shared secret, and jwt.MapClaims carrying
// "sub"/"role"/"exp". The original Python implementation (original_source
// backend/renewal_backend/web/auth.py) verifies Firebase tokens for the
// "user" role and notes recsystem/admin token support was not yet built —
// this package is that supplement, scoped to the "recsystem" role spec §4.7
// actually specifies (recsystem_register/refresh_token).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleRecsystem is the only role this package issues tokens for; spec §4.7
// only asks for recsystem registration/refresh, not admin/user token
// issuance.
const RoleRecsystem = "recsystem"

// ErrInvalidToken is returned by Verify for any malformed, unsigned,
// expired, or wrong-role token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the decoded, validated identity a recsystem token carries.
type Claims struct {
	RecsystemID int64
	TokenID     string
	Role        string
}

// Issuer signs and verifies recsystem tokens against a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// New returns an Issuer signing with secret and minting tokens valid for
// ttl.
func New(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl}
}

// Issue mints a signed token binding (recsystemID, tokenID, role=recsystem),
// per spec §4.7's recsystem_register contract.
func (i *Issuer) Issue(recsystemID int64, tokenID string) (string, error) {
	claims := jwt.MapClaims{
		"sub":      recsystemID,
		"token_id": tokenID,
		"role":     RoleRecsystem,
		"exp":      time.Now().Add(i.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates tokenString, returning the claims it carries.
// It does not check tokenID against any stored value — callers that need
// rotation-invalidation (refresh_token superseding a prior token) must
// compare Claims.TokenID against the recsystem's currently-stored TokenID
// themselves, since that is the only way a rotated-out token is rejected.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	role, ok := mapClaims["role"].(string)
	if !ok || role != RoleRecsystem {
		return Claims{}, ErrInvalidToken
	}
	tokenID, ok := mapClaims["token_id"].(string)
	if !ok || tokenID == "" {
		return Claims{}, ErrInvalidToken
	}
	subFloat, ok := mapClaims["sub"].(float64)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	return Claims{RecsystemID: int64(subFloat), TokenID: tokenID, Role: role}, nil
}
