package models

import (
	"time"

	"gorm.io/gorm"
)

// Family groups one or more parents and their children.
type Family struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	CreatedBy string `gorm:"index;not null" json:"created_by"` // parent ID

	Timestamps
}

// Parent is a guardian account. Referral codes live here; children never
// refer anyone.
type Parent struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	FamilyID       string  `gorm:"index;not null" json:"family_id"`
	DisplayName    string  `gorm:"not null" json:"display_name"`
	Email          string  `gorm:"index" json:"email,omitempty"`
	ReferralCode   string  `gorm:"uniqueIndex;not null" json:"referral_code"`
	ReferredByCode *string `json:"referred_by_code,omitempty"`

	Timestamps
}

// Child is a kid profile managed by a parent. The Mollar balance is derived
// from the ledger and never stored here; children are deactivated, never
// deleted.
type Child struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	FamilyID    string `gorm:"index;not null" json:"family_id"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Grade       int    `gorm:"default:3" json:"grade"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Device pairing: 6-digit code, 24h expiry
	PairingCode          *string    `gorm:"index" json:"pairing_code,omitempty"`
	PairingCodeExpiresAt *time.Time `json:"pairing_code_expires_at,omitempty"`
	Paired               bool       `gorm:"default:false" json:"paired"`
	PairedAt             *time.Time `json:"paired_at,omitempty"`

	// Calculated from the ledger (not stored in DB)
	MollarsBalance int64 `json:"mollars_balance" gorm:"-"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
