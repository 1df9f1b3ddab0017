package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/metrics"
	"github.com/clinicsync/internal/session"
)

const sseKeepalive = 15 * time.Second

// EventsHandler streams state snapshots to the UI over Server-Sent Events.
// Events: "state" (StateResponse) after every store or session change,
// "notifications" (notify.Snapshot) after every alert change.
type EventsHandler struct {
	sessions *session.Manager
	inbox    *InboxHandler
}

func NewEventsHandler(sessions *session.Manager, inbox *InboxHandler) *EventsHandler {
	return &EventsHandler{sessions: sessions, inbox: inbox}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	sessCh, unsubSess := h.sessions.Subscribe()
	defer unsubSess()
	alertCh, unsubAlerts := h.sessions.Alerts().Subscribe()
	defer unsubAlerts()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	if err := sendSSEEvent(w, flusher, "notifications", h.sessions.Alerts().Snapshot()); err != nil {
		return
	}

	for {
		// подписка на стор текущей сессии; пересоздаётся при смене сессии
		var storeCh <-chan struct{}
		unsubStore := func() {}
		if s, err := h.sessions.Current(); err == nil {
			storeCh, unsubStore = s.Store.Subscribe()
		}
		if err := sendSSEEvent(w, flusher, "state", h.inbox.snapshot()); err != nil {
			unsubStore()
			return
		}

	inner:
		for {
			var err error
			select {
			case <-r.Context().Done():
				unsubStore()
				return
			case _, ok := <-sessCh:
				if !ok {
					unsubStore()
					return
				}
				break inner
			case _, ok := <-storeCh:
				if !ok {
					storeCh = nil
					continue
				}
				err = sendSSEEvent(w, flusher, "state", h.inbox.snapshot())
			case <-alertCh:
				err = sendSSEEvent(w, flusher, "notifications", h.sessions.Alerts().Snapshot())
			case <-keepalive.C:
				_, err = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			}
			if err != nil {
				logger.Debugf("sse: client gone: %v", err)
				unsubStore()
				return
			}
		}
		unsubStore()
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
