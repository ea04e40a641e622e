package access

import (
	"context"
	"sync"
)

type mockProfiles struct {
	mu     sync.Mutex
	admins map[string]bool
	err    error
	calls  int
}

func (m *mockProfiles) IsAdmin(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.admins[userID], nil
}
