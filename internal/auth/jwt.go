// Package auth establishes caller identity for the HTTP surface. A caller
// presents a bearer token whose addr claim carries their 20-byte identity;
// the token proves nothing beyond possession, which is all this layer needs.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"slotgate/internal/call"
	dErrors "slotgate/pkg/domain-errors"
)

// Claims are the JWT claims of a caller token.
type Claims struct {
	Addr string `json:"addr"`
	jwt.RegisteredClaims
}

// Service handles caller token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// IssueCallerToken signs a token asserting the given caller identity.
func (s *Service) IssueCallerToken(caller call.Address, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Addr: caller.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken checks the signature and expiry and returns the caller
// identity the token asserts.
func (s *Service) ValidateToken(tokenString string) (call.Address, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return call.Address{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return call.Address{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return call.Address{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	caller, err := call.ParseAddress(claims.Addr)
	if err != nil {
		return call.Address{}, dErrors.New(dErrors.CodeUnauthorized, "token addr claim is not an address")
	}
	if caller.IsNull() {
		return call.Address{}, dErrors.New(dErrors.CodeUnauthorized, "token addr claim is null")
	}
	return caller, nil
}
