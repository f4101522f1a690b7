// Package tokens mints and validates the sandbox API's JWTs: the auth
// token issued after a verified challenge and the validation token issued
// after processing.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "veriflow/pkg/domain-errors"
)

// TokenKind tags what a token authorizes.
type TokenKind string

const (
	KindAuth       TokenKind = "auth"
	KindValidation TokenKind = "validation"
)

// Claims are the sandbox token claims.
type Claims struct {
	UserID          string    `json:"user_id"`
	TenantPublicKey string    `json:"tenant_public_key"`
	Kind            TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// Signer handles JWT creation and validation with a shared HMAC key.
type Signer struct {
	signingKey []byte
	issuer     string
}

func NewSigner(signingKey, issuer string) *Signer {
	return &Signer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// MintAuthToken issues the session token handed back after a verified
// challenge.
func (s *Signer) MintAuthToken(userID, tenantPublicKey string, expiresIn time.Duration) (string, error) {
	return s.mint(userID, tenantPublicKey, KindAuth, expiresIn)
}

// MintValidationToken issues the tenant-facing token produced by
// processing.
func (s *Signer) MintValidationToken(userID, tenantPublicKey string, expiresIn time.Duration) (string, error) {
	return s.mint(userID, tenantPublicKey, KindValidation, expiresIn)
}

func (s *Signer) mint(userID, tenantPublicKey string, kind TokenKind, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:          userID,
		TenantPublicKey: tenantPublicKey,
		Kind:            kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateAuthToken parses and checks an auth token, rejecting validation
// tokens presented in its place.
func (s *Signer) ValidateAuthToken(tokenString string) (*Claims, error) {
	claims, err := s.validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindAuth {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token is not an auth token")
	}
	return claims, nil
}

func (s *Signer) validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
