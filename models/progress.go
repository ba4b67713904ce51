package models

// LearningProgress tracks per-standard mastery counters for a child
// (denormalized for cheap dashboard reads). Updated when scored battle
// rounds carry a standard code. Never drives payouts.
type LearningProgress struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	ChildID      string `gorm:"index;not null;uniqueIndex:idx_progress_child_std" json:"child_id"`
	StandardCode string `gorm:"not null;uniqueIndex:idx_progress_child_std" json:"standard_code"`
	Attempts     int64  `gorm:"default:0" json:"attempts"`
	Correct      int64  `gorm:"default:0" json:"correct"`

	Timestamps
}
