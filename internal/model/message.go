package model

import (
	"fmt"
	"time"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAI       SenderType = "ai"
	SenderStaff    SenderType = "staff"
)

// Valid reports whether s is one of the closed set of sender types.
func (s SenderType) Valid() bool {
	switch s {
	case SenderCustomer, SenderAI, SenderStaff:
		return true
	}
	return false
}

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
	ContentTypeVoice ContentType = "voice"
)

// FeedbackKey is the ai_metadata entry holding operator feedback on an AI reply.
const FeedbackKey = "feedback"

type Message struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	SenderType        SenderType     `json:"sender_type"`
	Content           string         `json:"content"`
	ContentType       ContentType    `json:"content_type,omitempty"`
	TranslatedContent string         `json:"translated_content,omitempty"`
	OriginalLanguage  string         `json:"original_language,omitempty"`
	AIMetadata        map[string]any `json:"ai_metadata,omitempty"`
	IsRead            bool           `json:"is_read"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Clone returns a copy whose AIMetadata map is not shared with m.
func (m Message) Clone() Message {
	if m.AIMetadata != nil {
		meta := make(map[string]any, len(m.AIMetadata))
		for k, v := range m.AIMetadata {
			meta[k] = v
		}
		m.AIMetadata = meta
	}
	return m
}

type FeedbackRating string

const (
	FeedbackUp   FeedbackRating = "up"
	FeedbackDown FeedbackRating = "down"
)

// ParseFeedbackRating validates a rating coming from the UI.
func ParseFeedbackRating(s string) (FeedbackRating, error) {
	switch FeedbackRating(s) {
	case FeedbackUp, FeedbackDown:
		return FeedbackRating(s), nil
	}
	return "", fmt.Errorf("invalid feedback rating %q", s)
}

// FeedbackResult is the body of POST .../feedback.
type FeedbackResult struct {
	Status   string         `json:"status"`
	Feedback map[string]any `json:"feedback"`
}
