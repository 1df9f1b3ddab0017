package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/model"
)

const queueSize = 64

// Relay пересылает алерты агрегатора в микросервис пуш-уведомлений
// (POST /api/notify). Если URL пустой — no-op.
// Notify не блокирует: отправка идёт из Run, при переполнении очереди алерт теряется.
type Relay struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	queue      chan model.Notification
}

func NewRelay(baseURL, userID string) *Relay {
	if baseURL == "" {
		return &Relay{}
	}
	return &Relay{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		queue: make(chan model.Notification, queueSize),
	}
}

func (r *Relay) Enabled() bool { return r.baseURL != "" }

// NotifyRequest — тело запроса к push-сервису.
type NotifyRequest struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Notify ставит алерт в очередь отправки.
func (r *Relay) Notify(n model.Notification) {
	if r.baseURL == "" {
		return
	}
	select {
	case r.queue <- n:
	default:
		logger.Warnf("push: queue full, alert #%d dropped", n.ID)
	}
}

// Run отправляет алерты из очереди до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.baseURL == "" {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-r.queue:
			if err := r.send(ctx, n); err != nil {
				logger.Errorf("push notify #%d: %v", n.ID, err)
			}
		}
	}
}

func (r *Relay) send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(NotifyRequest{
		UserID: r.userID,
		Title:  n.Title,
		Body:   n.Message,
		Data: map[string]string{
			"type": string(n.Type),
			"id":   strconv.FormatInt(n.ID, 10),
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/notify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
