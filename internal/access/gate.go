package access

import (
	"context"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

// ProfileStore holds the per-account admin flag that can change at runtime.
type ProfileStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Gate decides who may use the admin surface.
type Gate struct {
	allowed  map[string]struct{}
	profiles ProfileStore
	log      *zap.Logger
}

// NewGate builds a gate from an allow-list of emails or user ids.
// profiles may be nil.
func NewGate(allowList []string, profiles ProfileStore, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowList))
	for _, a := range allowList {
		if a = normalize(a); a != "" {
			allowed[a] = struct{}{}
		}
	}
	return &Gate{allowed: allowed, profiles: profiles, log: log}
}

func (g *Gate) IsAdmin(ctx context.Context, user *domain.User) bool {
	if user == nil || user.ID == "" {
		return false
	}
	if g.listed(user.Email) || g.listed(user.ID) {
		return true
	}
	if user.IsAdmin {
		return true
	}
	if g.profiles == nil {
		return false
	}

	admin, err := g.profiles.IsAdmin(ctx, user.ID)
	if err != nil {
		g.log.Error("profile lookup failed", zap.String("user_id", user.ID), zap.Error(err))
		return false
	}
	return admin
}

func (g *Gate) listed(v string) bool {
	if v = normalize(v); v == "" {
		return false
	}
	_, ok := g.allowed[v]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
