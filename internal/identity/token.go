package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "ledgersync/internal/errors"
)

const issuer = "ledgersync-gateway"

// Claims are the JWT claims carried by a bearer token. The subject is the
// owner id the token may act for.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokens returns a token codec for the given secret and lifetime.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for subject.
func (t *Tokens) Issue(subject string) (string, error) {
	if subject == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "subject is required")
	}
	now := t.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Verify parses a token and returns its subject. Any failure is
// UNAUTHENTICATED.
func (t *Tokens) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", apperrors.ErrUnauthenticated
	}
	return claims.Subject, nil
}
