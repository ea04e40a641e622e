package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fjod/storefront/internal/access"
	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGate bool

func (g stubGate) IsAdmin(context.Context, *domain.User) bool { return bool(g) }

type stubSessions struct {
	signedIn []domain.User
	err      error
}

func (s *stubSessions) SignIn(u domain.User) error {
	s.signedIn = append(s.signedIn, u)
	return s.err
}

func (s *stubSessions) SignOut(string) bool { return true }

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = getRequestID(r.Context())
	}))

	t.Run("generates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})

	t.Run("keeps incoming", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	})
}

func TestSessionMiddleware(t *testing.T) {
	user := domain.User{ID: "u1", Email: "u1@example.com"}

	tests := []struct {
		name       string
		header     string
		signInErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "anonymous", wantStatus: http.StatusOK},
		{name: "basic auth", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "invalid_token"},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantCode: "invalid_token"},
		{name: "valid", header: "Bearer " + tokenFor(t, user), wantStatus: http.StatusOK},
		{name: "ended", header: "Bearer " + tokenFor(t, user), signInErr: access.ErrSessionEnded,
			wantStatus: http.StatusUnauthorized, wantCode: "session_ended"},
		{name: "tracker failure", header: "Bearer " + tokenFor(t, user), signInErr: errors.New("boom"),
			wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &stubSessions{err: tt.signInErr}
			var got *domain.User
			h := SessionMiddleware([]byte(testJWTSecret), sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = UserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Contains(t, rec.Body.String(), `"code":"`+tt.wantCode+`"`)
			}
			if tt.name == "valid" {
				require.NotNil(t, got)
				assert.Equal(t, "u1", got.ID)
				require.Len(t, sessions.signedIn, 1)
				assert.Equal(t, "user:u1", sessions.signedIn[0].SessionID, "token without sid gets a per-user session")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	user := &domain.User{ID: "u1"}

	tests := []struct {
		name       string
		user       *domain.User
		gate       stubGate
		wantStatus int
	}{
		{name: "anonymous", gate: true, wantStatus: http.StatusUnauthorized},
		{name: "not admin", user: user, gate: false, wantStatus: http.StatusForbidden},
		{name: "admin", user: user, gate: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			RequireAdmin(tt.gate)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCartKey(t *testing.T) {
	tests := []struct {
		name   string
		user   *domain.User
		guest  string
		want   string
		wantOK bool
	}{
		{name: "user wins", user: &domain.User{ID: "u1"}, guest: "g", want: "u1", wantOK: true},
		{name: "guest", guest: " g1 ", want: "guest:g1", wantOK: true},
		{name: "none"},
		{name: "guest token too long", guest: strings.Repeat("x", maxGuestTokenLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			if tt.guest != "" {
				req.Header.Set(HeaderCartSession, tt.guest)
			}
			got, ok := cartKey(req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthDegraded(t *testing.T) {
	h := healthHandler(map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}, timeoutForTests)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":"ok","postgres":"connection refused"}`, rec.Body.String())
}
