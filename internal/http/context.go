package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
	loggerKey
)

const (
	HeaderCartSession = "X-Cart-Session"
	HeaderRequestID   = "X-Request-ID"

	guestPrefix      = "guest:"
	maxGuestTokenLen = 128
)

func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok && u != nil
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.L()
}

// cartKey identifies the cart of the request: the signed-in user, or the
// guest token sent in X-Cart-Session.
func cartKey(r *http.Request) (string, bool) {
	if u, ok := UserFromContext(r.Context()); ok {
		return u.ID, true
	}
	guest := strings.TrimSpace(r.Header.Get(HeaderCartSession))
	if guest == "" || len(guest) > maxGuestTokenLen {
		return "", false
	}
	return guestPrefix + guest, true
}
