// Package license issues and verifies admin API bearer tokens. Tokens are
// HS256 JWTs bound to the machine that issued them.
package license

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret        = errors.New("admin token secret is empty")
	ErrMachineMismatch = errors.New("token was issued for another machine")
)

type Claims struct {
	Machine string `json:"machine"`
	jwt.RegisteredClaims
}

// CreateToken signs claims for subject on machine, valid for ttl.
func CreateToken(secret, subject, machine string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	claims := Claims{
		Machine: machine,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    appID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and returns the claims.
func ParseToken(secret, token string, now func() time.Time) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(appID)}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
