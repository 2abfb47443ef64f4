package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/daoyou-zhang/daoyoucode/internal/auth"
)

// UserIDHeader names the caller when authentication is disabled.
const UserIDHeader = "X-User-ID"

type userIDContextKey struct{}

// WithUserID stores the caller identity on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// GetUserID returns the caller identity, or "" for anonymous callers.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey{}).(string); ok {
		return userID
	}
	return ""
}

// Authenticate validates the bearer token and stores its subject as the user id.
// onError writes the rejection; it receives auth.ErrInvalidToken or auth.ErrTokenExpired.
func Authenticate(settings auth.Settings, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, auth.ErrInvalidToken)
				return
			}
			claims, err := auth.Validate(settings, token)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

// TrustUserHeader takes the user id from X-User-ID. Use it only when
// authentication is disabled.
func TrustUserHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}
