package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/clinicsync/internal/model"
)

type EventType string

const (
	EventConnected          EventType = "connected"
	EventNewMessage         EventType = "new_message"
	EventConversationUpdate EventType = "conversation_update"
	EventEscalationAlert    EventType = "escalation_alert"
)

// Envelope is one server-push frame: {type, ...payload}.
type Envelope struct {
	Type EventType `json:"type"`

	// new_message
	Message *model.Message `json:"message,omitempty"`

	// conversation_update
	Conversation *model.ConversationPatch `json:"conversation,omitempty"`

	// escalation_alert
	ConversationID string `json:"conversation_id,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

var errBadFrame = errors.New("malformed frame")

// decodeEnvelope parses and validates a frame. Frames of unknown type are
// returned with their type so the caller can count and drop them.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	switch env.Type {
	case EventNewMessage:
		if env.Message == nil || env.Message.ConversationID == "" {
			return env, fmt.Errorf("%w: new_message without message.conversation_id", errBadFrame)
		}
		if !env.Message.SenderType.Valid() {
			return env, fmt.Errorf("%w: unknown sender_type %q", errBadFrame, env.Message.SenderType)
		}
	case EventConversationUpdate:
		if env.Conversation == nil || env.Conversation.ID == "" {
			return env, fmt.Errorf("%w: conversation_update without conversation.id", errBadFrame)
		}
	case "":
		return env, fmt.Errorf("%w: missing type", errBadFrame)
	}
	return env, nil
}

// alertText builds title and message of the escalation notification.
func alertText(env Envelope) (title, message string) {
	title = "Escalation"
	parts := make([]string, 0, 2)
	if env.CustomerName != "" {
		parts = append(parts, env.CustomerName)
	} else if env.ConversationID != "" {
		parts = append(parts, "conversation "+env.ConversationID)
	}
	if env.Reason != "" {
		parts = append(parts, env.Reason)
	}
	if len(parts) == 0 {
		return title, "A conversation needs staff attention"
	}
	return title, strings.Join(parts, ": ")
}
