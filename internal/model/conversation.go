package model

import "time"

type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusResolved  ConversationStatus = "resolved"
	ConversationStatusEscalated ConversationStatus = "escalated"
)

// PreviewLimit — максимальная длина превью последнего сообщения (в символах).
const PreviewLimit = 200

// Conversation is one row of the inbox list. List order is defined by the server.
type Conversation struct {
	ID                 string             `json:"id"`
	CustomerID         string             `json:"customer_id,omitempty"`
	CustomerName       string             `json:"customer_name,omitempty"`
	Channel            string             `json:"channel,omitempty"`
	Status             ConversationStatus `json:"status"`
	AIMode             bool               `json:"ai_mode"`
	UnreadCount        int                `json:"unread_count"`
	LastMessagePreview string             `json:"last_message_preview"`
	LastMessageAt      *time.Time         `json:"last_message_at,omitempty"`
	SatisfactionLevel  string             `json:"satisfaction_level,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// ConversationDetail is the expanded view of the selected conversation.
type ConversationDetail struct {
	Conversation
	Summary         string   `json:"summary,omitempty"`
	AssignedTo      string   `json:"assigned_to,omitempty"`
	DetectedIntents []string `json:"detected_intents,omitempty"`
}

// ConversationPatch carries a partial update. Nil fields are left untouched on merge.
type ConversationPatch struct {
	ID                 string              `json:"id"`
	Status             *ConversationStatus `json:"status,omitempty"`
	AIMode             *bool               `json:"ai_mode,omitempty"`
	UnreadCount        *int                `json:"unread_count,omitempty"`
	LastMessagePreview *string             `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time          `json:"last_message_at,omitempty"`
	SatisfactionLevel  *string             `json:"satisfaction_level,omitempty"`
	Summary            *string             `json:"summary,omitempty"`
	AssignedTo         *string             `json:"assigned_to,omitempty"`
}

// Apply merges the patch into a list entry.
func (p ConversationPatch) Apply(c *Conversation) {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.AIMode != nil {
		c.AIMode = *p.AIMode
	}
	if p.UnreadCount != nil && *p.UnreadCount >= 0 {
		c.UnreadCount = *p.UnreadCount
	}
	if p.LastMessagePreview != nil {
		c.LastMessagePreview = Preview(*p.LastMessagePreview)
	}
	if p.LastMessageAt != nil {
		t := *p.LastMessageAt
		c.LastMessageAt = &t
	}
	if p.SatisfactionLevel != nil {
		c.SatisfactionLevel = *p.SatisfactionLevel
	}
}

// ApplyDetail merges the patch into the selected detail, including detail-only fields.
func (p ConversationPatch) ApplyDetail(d *ConversationDetail) {
	p.Apply(&d.Conversation)
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.AssignedTo != nil {
		d.AssignedTo = *p.AssignedTo
	}
}

// PatchFromDetail builds the list patch for an authoritative post-action detail.
// UnreadCount and the preview are not carried over: the list keeps its own values.
func PatchFromDetail(d ConversationDetail) ConversationPatch {
	status := d.Status
	aiMode := d.AIMode
	satisfaction := d.SatisfactionLevel
	return ConversationPatch{
		ID:                d.ID,
		Status:            &status,
		AIMode:            &aiMode,
		SatisfactionLevel: &satisfaction,
	}
}

// Preview обрезает текст до PreviewLimit символов (по рунам, не по байтам).
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLimit {
		return s
	}
	return string(r[:PreviewLimit])
}

// ConversationPage is the body of GET /conversations.
type ConversationPage struct {
	Items  []Conversation `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// PaginationWindow is the view-state triple of a listing, recomputed from server totals.
type PaginationWindow struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// Offset returns the zero-based item offset of the window's page.
func (w PaginationWindow) Offset() int {
	if w.Page <= 1 {
		return 0
	}
	return (w.Page - 1) * w.PageSize
}

// Pages returns the number of pages for the current total.
func (w PaginationWindow) Pages() int {
	if w.PageSize <= 0 || w.Total <= 0 {
		return 0
	}
	return (w.Total + w.PageSize - 1) / w.PageSize
}

// Customer is the customer record linked to a conversation.
type Customer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Language  string     `json:"language,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  *time.Time `json:"last_seen_at,omitempty"`
}
