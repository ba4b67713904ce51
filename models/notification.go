package models

import "time"

// NotificationEventType identifies outbox payload shapes.
type NotificationEventType string

const (
	NotifyValidationRequested NotificationEventType = "validation_requested"
	NotifyValidationResolved  NotificationEventType = "validation_resolved"
)

// NotificationEvent is an outbox row. Workflows append here in the same
// transaction as their state change; the notify worker delivers rows to the
// parent-notification webhook and marks them sent. Delivery retries are the
// worker's problem, never the workflow's.
type NotificationEvent struct {
	ID          string                `gorm:"primaryKey;type:uuid" json:"id"`
	EventType   NotificationEventType `gorm:"not null;type:varchar(32)" json:"event_type"`
	PayloadJSON string                `gorm:"type:text;not null" json:"payload"`
	Attempts    int                   `gorm:"default:0" json:"attempts"`
	SentAt      *time.Time            `gorm:"index" json:"sent_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at" gorm:"autoCreateTime"`
}
