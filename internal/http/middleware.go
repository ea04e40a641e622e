package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/access"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gate decides admin access.
type Gate interface {
	IsAdmin(ctx context.Context, user *domain.User) bool
}

// SessionTracker is told about every authenticated request.
type SessionTracker interface {
	SignIn(user domain.User) error
	SignOut(sessionID string) bool
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggerMiddleware logs one line per request and hands a request-scoped
// logger to the handlers.
func LoggerMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With(zap.String("request_id", getRequestID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerKey, reqLog)))

			reqLog.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// SessionMiddleware authenticates "Authorization: Bearer <token>". Requests
// without a token pass through anonymously; bad tokens are rejected.
func SessionMiddleware(secret []byte, sessions SessionTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, "invalid_token", "expected a bearer token")
				return
			}
			user, err := access.ParseToken(strings.TrimSpace(token), secret)
			if err != nil {
				loggerFrom(r.Context()).Debug("rejected session token", zap.Error(err))
				respondError(w, http.StatusUnauthorized, "invalid_token", access.ErrInvalidToken.Error())
				return
			}
			if user.SessionID == "" {
				user.SessionID = access.UserSessionID(user.ID)
			}
			if err := sessions.SignIn(*user); err != nil {
				if errors.Is(err, access.ErrSessionEnded) {
					respondError(w, http.StatusUnauthorized, "session_ended", err.Error())
					return
				}
				handleError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin lets only admins through: 401 without a session, 403 otherwise.
func RequireAdmin(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				return
			}
			if !gate.IsAdmin(r.Context(), user) {
				loggerFrom(r.Context()).Warn("admin access denied", zap.String("user_id", user.ID))
				respondError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
