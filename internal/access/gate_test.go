package access

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGate_IsAdmin(t *testing.T) {
	profiles := &mockProfiles{admins: map[string]bool{"u-flagged": true}}
	gate := NewGate([]string{" Admin@Example.com ", "u-listed"}, profiles, zap.NewNop())

	tests := []struct {
		name string
		user *domain.User
		want bool
	}{
		{"no user", nil, false},
		{"empty user", &domain.User{}, false},
		{"listed email any case", &domain.User{ID: "u1", Email: "ADMIN@example.com"}, true},
		{"listed id", &domain.User{ID: "u-listed"}, true},
		{"token flag", &domain.User{ID: "u2", IsAdmin: true}, true},
		{"profile flag", &domain.User{ID: "u-flagged"}, true},
		{"regular shopper", &domain.User{ID: "u3", Email: "shopper@example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.IsAdmin(context.Background(), tt.user))
		})
	}
}

func TestGate_ProfileErrorMeansNotAdmin(t *testing.T) {
	profiles := &mockProfiles{err: errors.New("mongo down")}
	gate := NewGate(nil, profiles, zap.NewNop())

	assert.False(t, gate.IsAdmin(context.Background(), &domain.User{ID: "u1"}))
}

func TestGate_AllowListSkipsProfileLookup(t *testing.T) {
	profiles := &mockProfiles{}
	gate := NewGate([]string{"boss@example.com"}, profiles, zap.NewNop())

	assert.True(t, gate.IsAdmin(context.Background(), &domain.User{ID: "u1", Email: "boss@example.com"}))
	assert.Zero(t, profiles.calls)
}

func TestGate_NilProfiles(t *testing.T) {
	gate := NewGate(nil, nil, nil)

	assert.False(t, gate.IsAdmin(context.Background(), &domain.User{ID: "u1"}))
}
