package handler

import (
	"net/http"
	"strings"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/middleware"
	"github.com/clinicsync/internal/session"
)

type SessionHandler struct {
	sessions *session.Manager
}

func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type setTokenRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// Put: PUT /api/session {token}. Пустой токен — выход (текущая сессия закрывается).
func (h *SessionHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req setTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := strings.TrimSpace(req.Token)
	s := h.sessions.SetToken(token)
	if s == nil {
		logger.Info("session: logged out")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger.Infof("session: token %s -> session %s", middleware.MaskToken(token), s.ID)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.ID})
}
