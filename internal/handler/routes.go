package handler

import "github.com/go-chi/chi/v5"

// Routes регистрирует /api/* моста. Middleware (CORS, rate limit, LocalOnly) вешает вызывающий.
func Routes(r chi.Router, inbox *InboxHandler, notifications *NotificationHandler, sess *SessionHandler, events *EventsHandler) {
	r.Get("/api/state", inbox.GetState)
	r.Get("/api/events", events.Stream)
	r.Post("/api/conversations/fetch", inbox.FetchConversations)
	r.Post("/api/conversations/{id}/select", inbox.Select)
	r.Post("/api/conversations/{id}/messages", inbox.SendMessage)
	r.Post("/api/conversations/{id}/toggle-ai", inbox.ToggleAI)
	r.Post("/api/conversations/{id}/resolve", inbox.Resolve)
	r.Post("/api/messages/{messageId}/feedback", inbox.Feedback)
	r.Get("/api/notifications", notifications.List)
	r.Post("/api/notifications", notifications.Create)
	r.Post("/api/notifications/read-all", notifications.MarkAllRead)
	r.Delete("/api/notifications/{id}", notifications.Dismiss)
	r.Put("/api/session", sess.Put)
}
