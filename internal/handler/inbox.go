package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinicsync/internal/model"
	"github.com/clinicsync/internal/session"
	"github.com/clinicsync/internal/store"
	"github.com/clinicsync/internal/stream"
)

// InboxHandler exposes the active session's conversation store to the local UI.
type InboxHandler struct {
	sessions *session.Manager
	pageSize int
}

func NewInboxHandler(sessions *session.Manager, pageSize int) *InboxHandler {
	return &InboxHandler{sessions: sessions, pageSize: pageSize}
}

// StateResponse is the body of GET /api/state and of SSE "state" events.
type StateResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Stream    string `json:"stream"`
	store.State
	UnreadNotifications int `json:"unread_notifications"`
}

func (h *InboxHandler) snapshot() StateResponse {
	resp := StateResponse{
		Stream:              stream.StateDisconnected.String(),
		UnreadNotifications: h.sessions.Alerts().UnreadCount(),
	}
	if s, err := h.sessions.Current(); err == nil {
		resp.SessionID = s.ID
		resp.Stream = s.Stream.State().String()
		resp.State = s.Store.Snapshot()
	} else {
		resp.Conversations = []model.Conversation{}
		resp.Messages = []model.Message{}
	}
	return resp
}

func (h *InboxHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// FetchConversations: POST /api/conversations/fetch?page&page_size&status
func (h *InboxHandler) FetchConversations(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Current()
	if err != nil {
		writeActionError(w, err)
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", h.pageSize)
	if page < 1 || pageSize < 1 || pageSize > 100 {
		writeError(w, http.StatusBadRequest, "page must be >= 1, page_size 1..100")
		return
	}
	status := model.ConversationStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ConversationStatusActive, model.ConversationStatusResolved, model.ConversationStatusEscalated:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	// обрыв запроса UI не должен отменять загрузку: результат нужен стору
	s.Store.FetchConversations(context.WithoutCancel(r.Context()), page, pageSize, status)
	writeJSON(w, http.StatusOK, h.snapshot())
}

// Select: POST /api/conversations/{id}/select
func (h *InboxHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Current()
	if err != nil {
		writeActionError(w, err)
		return
	}
	s.Store.Select(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, h.snapshot())
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage: POST /api/conversations/{id}/messages {content}
func (h *InboxHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	s, err := h.sessions.Current()
	if err != nil {
		writeActionError(w, err)
		return
	}
	msg, err := s.Store.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *InboxHandler) ToggleAI(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, (*store.Store).ToggleAI)
}

func (h *InboxHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, (*store.Store).Resolve)
}

func (h *InboxHandler) action(w http.ResponseWriter, r *http.Request, fn func(*store.Store, context.Context, string) (*model.ConversationDetail, error)) {
	s, err := h.sessions.Current()
	if err != nil {
		writeActionError(w, err)
		return
	}
	d, err := fn(s.Store, r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type feedbackRequest struct {
	Rating string `json:"rating"`
}

// Feedback: POST /api/messages/{messageId}/feedback {rating: up|down}
func (h *InboxHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rating, err := model.ParseFeedbackRating(req.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.sessions.Current()
	if err != nil {
		writeActionError(w, err)
		return
	}
	res, err := s.Store.SubmitFeedback(r.Context(), chi.URLParam(r, "messageId"), rating)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
