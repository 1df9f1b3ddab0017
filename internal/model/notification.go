package model

import "time"

type NotificationType string

const (
	NotificationEscalation          NotificationType = "escalation"
	NotificationSatisfactionWarning NotificationType = "satisfaction_warning"
	NotificationDeliveryFailed      NotificationType = "delivery_failed"
	NotificationQuotaWarning        NotificationType = "quota_warning"
	NotificationQuotaExceeded       NotificationType = "quota_exceeded"
)

// Valid reports whether t belongs to the closed set of alert types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationEscalation, NotificationSatisfactionWarning, NotificationDeliveryFailed,
		NotificationQuotaWarning, NotificationQuotaExceeded:
		return true
	}
	return false
}

type Notification struct {
	ID        int64            `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}
