// Package auth wraps JWT encode/decode for access tokens and QR tokens.
// A QR token is only a reference to a backing record; possession of a
// decodable token never grants entry on its own.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const audience = "gatekeeper-api"

// Token types carried in the "typ" claim of QR tokens.
const (
	QRTypeRecurring = "recurring"
	QRTypeGuestPass = "guest"
)

type Claims struct {
	Sub    string `json:"sub"`
	Role   string `json:"role"`
	FlatID string `json:"flat_id,omitempty"`
	jwt.RegisteredClaims
}

func NewAccessToken(sub, role, flatID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:    sub,
		Role:   role,
		FlatID: flatID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseAccessToken(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

type QRClaims struct {
	Type      string `json:"typ"`
	VisitorID string `json:"visitor_id,omitempty"`
	PassID    string `json:"pass_id,omitempty"`
	OwnerFlat string `json:"owner_flat,omitempty"`
	jwt.RegisteredClaims
}

// NewRecurringToken issues the durable token for a recurring visitor.
// It carries no expiry; revocation happens by deactivating the backing
// visitor record.
func NewRecurringToken(visitorID, secret string) (string, error) {
	claims := QRClaims{
		Type:      QRTypeRecurring,
		VisitorID: visitorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func NewGuestPassToken(passID, ownerFlat, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := QRClaims{
		Type:      QRTypeGuestPass,
		PassID:    passID,
		OwnerFlat: ownerFlat,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseQRToken(tokenString, secret string) (*QRClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &QRClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*QRClaims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
