package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/service"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	userKey   contextKey = "user"
)

// Auth authenticates the bearer token through the auth service, which checks
// the session epoch against the account. Expiry alone never fails a request;
// only a bumped epoch or a gone account does.
func Auth(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "NO_TOKEN", "Missing or invalid token")
				return
			}

			tokenStr := strings.TrimPrefix(header, "Bearer ")

			user, err := authService.Authenticate(r.Context(), tokenStr)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTokenInvalid):
					unauthorized(w, "TOKEN_INVALID", "Invalid token")
				case errors.Is(err, service.ErrUnknownActor):
					unauthorized(w, "USER_NOT_FOUND", "Account no longer exists")
				case errors.Is(err, service.ErrSessionRevoked):
					unauthorized(w, "TOKEN_REVOKED", "Session has been revoked")
				default:
					http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"Something went wrong"}}`, http.StatusInternalServerError)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			ctx = context.WithValue(ctx, userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly gates a route behind admin membership. It must run inside Auth.
func AdminOnly(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if err := authService.RequireAdmin(r.Context(), user); err != nil {
				if errors.Is(err, service.ErrNotAdmin) {
					http.Error(w, `{"error":{"code":"FORBIDDEN","message":"Admin access required"}}`, http.StatusForbidden)
					return
				}
				http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"Something went wrong"}}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, code, message string) {
	http.Error(w, `{"error":{"code":"`+code+`","message":"`+message+`"}}`, http.StatusUnauthorized)
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) uuid.UUID {
	return ctx.Value(UserIDKey).(uuid.UUID)
}

// GetUser extracts the authenticated user from request context
func GetUser(ctx context.Context) *domain.User {
	return ctx.Value(userKey).(*domain.User)
}
