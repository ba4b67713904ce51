package models

import "time"

// ValidationTask is a parent-defined chore worth a fixed Mollar reward.
type ValidationTask struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	FamilyID      string `gorm:"index;not null" json:"family_id"`
	Name          string `gorm:"not null" json:"name"`
	Slug          string `gorm:"index" json:"slug"`
	MollarsReward int64  `gorm:"not null" json:"mollars_reward"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`

	Timestamps
}

// ValidationRequestStatus values for the request state machine.
type ValidationRequestStatus string

const (
	RequestPending  ValidationRequestStatus = "pending"
	RequestApproved ValidationRequestStatus = "approved"
	RequestDenied   ValidationRequestStatus = "denied"
	RequestExpired  ValidationRequestStatus = "expired"
)

// ValidationRequest is a child's claim that a task was completed, waiting
// for a parent decision. pending → approved/denied/expired, all terminal.
// At most one pending request may exist per (task, child); the partial
// unique index makes the schema enforce that, not just the service's
// duplicate check.
type ValidationRequest struct {
	ID          string                  `gorm:"primaryKey;type:uuid" json:"id"`
	TaskID      string                  `gorm:"index;not null;uniqueIndex:idx_validation_pending,where:status = 'pending'" json:"task_id"`
	ChildID     string                  `gorm:"not null;uniqueIndex:idx_validation_pending,where:status = 'pending'" json:"child_id"`
	Status      ValidationRequestStatus `gorm:"not null;type:varchar(16);default:'pending';index" json:"status"`
	PhotoURL    *string                 `json:"photo_url,omitempty"`
	RequestedAt time.Time               `gorm:"not null" json:"requested_at"`
	ResolvedAt  *time.Time              `json:"resolved_at,omitempty"`
	ResolvedBy  *string                 `json:"resolved_by,omitempty"` // parent ID
}
