// ABOUTME: Issues and verifies the HS256 JWTs that back operator dashboard sessions
// ABOUTME: The token subject is the tenant ID; every API handler trusts it after Verify

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpiredToken distinguishes expiry from other verification failures
	// so the dashboard can prompt for a fresh login instead of erroring.
	ErrExpiredToken = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier resolves a bearer token to the tenant it was issued for.
type TokenVerifier interface {
	Verify(tokenString string) (tenantID string, err error)
}

// JWTVerifier issues and verifies HS256-signed tokens sharing one secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// keyFunc rejects any signing algorithm other than the HMAC family before
// handing back the shared secret. Without this check a token signed with
// alg=none would pass.
func (v *JWTVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.secret, nil
}

// Verify checks the token's signature and expiry and returns the tenant ID
// carried in the "sub" claim. Expired tokens yield ErrExpiredToken; every
// other failure wraps ErrInvalidToken.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Generate signs a token for the tenant, valid for expiresIn from now.
func (v *JWTVerifier) Generate(tenantID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": tenantID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	})
	return token.SignedString(v.secret)
}
