// ABOUTME: JWT session tokens issued by the local auth provider
// ABOUTME: Uses HS256 signing with a configurable secret of at least 32 bytes

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrShortSecret  = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// SessionClaims are the verified contents of a session token.
type SessionClaims struct {
	UID       string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTVerifier issues and verifies HS256 signed session tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrShortSecret
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the identity from the "sub" and "email" claims
func (v *JWTVerifier) Verify(tokenString string) (SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return SessionClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return SessionClaims{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return SessionClaims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	email, _ := claims["email"].(string)

	out := SessionClaims{UID: sub, Email: email}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Generate creates a new session token for the identity with expiration
func (v *JWTVerifier) Generate(uid, email string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
