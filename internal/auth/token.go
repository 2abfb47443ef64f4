// Package auth issues and validates the bearer tokens accepted by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrInvalidToken covers malformed, badly signed or mis-addressed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Settings configure signing and validation.
type Settings struct {
	Secret   string
	Issuer   string
	Audience string
}

// Claims identify the caller. Subject becomes the user id for rate limiting.
type Claims struct {
	jwt.RegisteredClaims
}

// Sign issues an HS256 token for subject valid for ttl.
func Sign(settings Settings, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(settings.Secret) == "" {
		return "", errors.New("auth secret is required")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   settings.Issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if settings.Audience != "" {
		claims.Audience = jwt.ClaimStrings{settings.Audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(settings.Secret))
}

// Validate parses tokenString and returns its claims.
func Validate(settings Settings, tokenString string) (*Claims, error) {
	if strings.TrimSpace(settings.Secret) == "" {
		return nil, errors.New("auth secret is required")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(settings.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if settings.Issuer != "" && !claims.VerifyIssuer(settings.Issuer, true) {
		return nil, ErrInvalidToken
	}
	if settings.Audience != "" && !claims.VerifyAudience(settings.Audience, true) {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
