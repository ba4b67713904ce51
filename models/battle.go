package models

import "time"

// BattleStatus values for the challenge lifecycle.
type BattleStatus string

const (
	BattlePending   BattleStatus = "pending"
	BattleActive    BattleStatus = "active"
	BattleCompleted BattleStatus = "completed"
	BattleExpired   BattleStatus = "expired"
)

// ParticipantType tells whether a battle side is a child or a parent.
// Only child participants can receive Mollars at settlement.
type ParticipantType string

const (
	ParticipantChild  ParticipantType = "child"
	ParticipantParent ParticipantType = "parent"
)

// Battle is a head-to-head quiz challenge.
// pending → active → completed/expired.
type Battle struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	ChallengerType ParticipantType `gorm:"not null;type:varchar(8)" json:"challenger_type"`
	ChallengerID   string          `gorm:"index;not null" json:"challenger_id"`
	OpponentType   ParticipantType `gorm:"not null;type:varchar(8)" json:"opponent_type"`
	OpponentID     string          `gorm:"index;not null" json:"opponent_id"`

	Subject         string `gorm:"not null" json:"subject"`
	Grade           int    `gorm:"default:3" json:"grade"`
	QuestionCount   int    `gorm:"not null" json:"question_count"`    // 5, 10 or 15
	TimePerQuestion int    `gorm:"not null" json:"time_per_question"` // seconds: 15, 30 or 60

	Status      BattleStatus `gorm:"not null;type:varchar(16);default:'pending';index" json:"status"`
	ExpiresAt   time.Time    `gorm:"not null" json:"expires_at"` // accept-by deadline
	AcceptedAt  *time.Time   `json:"accepted_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	// Settlement (idempotent: at most one payout per participant, backed by
	// the ledger dedup key)
	SettledAt *time.Time `json:"settled_at,omitempty"`
	WinnerID  *string    `json:"winner_id,omitempty"` // nil until settled; nil+settled = draw

	Timestamps
}

// BattleRound snapshots one question and both sides' answers. Rounds are
// appended in strictly increasing sequence starting at 1; the question is
// frozen as JSON at generation time and never updated.
type BattleRound struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	BattleID string `gorm:"index;not null;uniqueIndex:idx_battle_round_seq" json:"battle_id"`
	Seq      int    `gorm:"not null;uniqueIndex:idx_battle_round_seq" json:"seq"`

	QuestionJSON  string `gorm:"type:text;not null" json:"-"`
	CorrectAnswer string `gorm:"not null" json:"-"` // never serialized to players
	StandardCode  string `json:"standard_code,omitempty"`

	ChallengerAnswer    *string `json:"challenger_answer,omitempty"`
	ChallengerLatencyMs *int64  `json:"challenger_latency_ms,omitempty"`
	ChallengerCorrect   *bool   `json:"challenger_correct,omitempty"`

	OpponentAnswer    *string `json:"opponent_answer,omitempty"`
	OpponentLatencyMs *int64  `json:"opponent_latency_ms,omitempty"`
	OpponentCorrect   *bool   `json:"opponent_correct,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
