package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims binds a bearer token to a stored session row.
type SessionClaims struct {
	jwt.RegisteredClaims
	ProfessionalID uuid.UUID `json:"pid"`
}

// TokenSigner issues and parses session bearer tokens. The signature only
// proves the token was minted here; session state lives in the store.
type TokenSigner interface {
	Sign(sessionToken string, professionalID uuid.UUID, issuedAt, notAfter time.Time) (string, error)
	Parse(bearer string, now time.Time) (*SessionClaims, error)
}

type hmacSigner struct {
	secret []byte
	issuer string
}

func NewHMACSigner(secret, issuer string) TokenSigner {
	return &hmacSigner{secret: []byte(secret), issuer: issuer}
}

func (s *hmacSigner) Sign(sessionToken string, professionalID uuid.UUID, issuedAt, notAfter time.Time) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionToken,
			Issuer:    s.issuer,
			Subject:   professionalID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(notAfter),
		},
		ProfessionalID: professionalID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

func (s *hmacSigner) Parse(bearer string, now time.Time) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}
	return claims, nil
}
