package http

import (
	"net/http"

	"go.uber.org/zap"
)

type SessionHandler struct {
	sessions SessionTracker
}

func NewSessionHandler(sessions SessionTracker) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// POST /api/v1/session/signout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if h.sessions.SignOut(user.SessionID) {
		loggerFrom(r.Context()).Info("signed out", zap.String("user_id", user.ID))
	}
	w.WriteHeader(http.StatusNoContent)
}
