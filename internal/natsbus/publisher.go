// Package natsbus fans operator alerts out to NATS so other clinic services
// can react to escalations and quota events.
package natsbus

import (
	"encoding/json"
	"time"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/model"
)

// Conn is the subset of *nats.Conn used here.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Event is the published payload.
type Event struct {
	ID        int64                  `json:"id"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Tenant    string                 `json:"tenant,omitempty"`
}

type Publisher struct {
	conn   Conn
	prefix string
	tenant string
}

func NewPublisher(conn Conn, prefix, tenant string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix, tenant: tenant}
}

// Subject returns <prefix>.<type>, e.g. clinic.alerts.escalation.
func (p *Publisher) Subject(t model.NotificationType) string {
	return p.prefix + "." + string(t)
}

// Notify publishes n. Errors are logged; nats buffers while reconnecting.
func (p *Publisher) Notify(n model.Notification) {
	data, err := json.Marshal(Event{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: n.Timestamp,
		Tenant:    p.tenant,
	})
	if err != nil {
		logger.Errorf("natsbus: marshal alert #%d: %v", n.ID, err)
		return
	}
	if err := p.conn.Publish(p.Subject(n.Type), data); err != nil {
		logger.Errorf("natsbus: publish alert #%d: %v", n.ID, err)
	}
}
