package models

import "time"

// TransactionReason classifies why Mollars moved.
type TransactionReason string

const (
	ReasonTaskReward       TransactionReason = "task_reward"
	ReasonReferralBonus    TransactionReason = "referral_bonus"
	ReasonBattleReward     TransactionReason = "battle_reward"
	ReasonManualAdjustment TransactionReason = "manual_adjustment"
)

// RewardReasons are the reasons that must carry a positive amount.
var RewardReasons = map[TransactionReason]bool{
	ReasonTaskReward:    true,
	ReasonReferralBonus: true,
	ReasonBattleReward:  true,
}

// MollarTransaction is one immutable row of the append-only ledger. A
// child's balance is the sum of its rows; corrections are new offsetting
// entries, never edits.
//
// The composite unique index on (child_id, reason, reference_id) is the
// idempotency guarantee: the same logical event can never pay twice.
type MollarTransaction struct {
	ID          string            `gorm:"primaryKey;type:uuid" json:"id"`
	ChildID     string            `gorm:"index;not null;uniqueIndex:idx_mollar_tx_ref" json:"child_id"`
	Amount      int64             `gorm:"not null" json:"amount"` // smallest currency unit, signed
	Reason      TransactionReason `gorm:"not null;type:varchar(32);uniqueIndex:idx_mollar_tx_ref" json:"reason"`
	ReferenceID string            `gorm:"not null;uniqueIndex:idx_mollar_tx_ref" json:"reference_id"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
}
