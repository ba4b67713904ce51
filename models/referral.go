package models

import "time"

// ReferralEventType distinguishes link clicks from completed signups.
type ReferralEventType string

const (
	ReferralClick          ReferralEventType = "click"
	ReferralSignupComplete ReferralEventType = "signup_complete"
)

// ReferralEvent tracks referral activity. At most one signup_complete event
// may exist per referee; the partial unique index enforces that at the
// schema level while leaving clicks (empty referee) freely repeatable. The
// actual payout dedup lives in the ledger's (reason, reference) key, so a
// retry after a partial failure can never double-pay either.
type ReferralEvent struct {
	ID             string            `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID     string            `gorm:"index;not null" json:"referrer_id"`
	RefereeID      string            `gorm:"index;not null;uniqueIndex:idx_referral_signup,where:event_type = 'signup_complete'" json:"referee_id"`
	EventType      ReferralEventType `gorm:"not null;type:varchar(24);uniqueIndex:idx_referral_signup,where:event_type = 'signup_complete'" json:"event_type"`
	CodeUsed       string            `json:"code_used,omitempty"`
	MollarsAwarded int64             `gorm:"default:0" json:"mollars_awarded"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
}
