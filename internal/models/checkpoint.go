package models

import (
	"database/sql"
	"time"
)

// Checkpoint records ingestion progress for one (source, search_query) pair.
// LastWindowEnd is monotonically non-decreasing; the next run's window starts
// where the previous one ended. RunCount counts confirmed full-window
// advances; AttemptCount counts window attempts including retries.
type Checkpoint struct {
	ID          int64  `gorm:"primaryKey;autoIncrement;column:id"`
	Source      string `gorm:"type:varchar(32);not null;uniqueIndex:checkpoints_ux1,priority:1;column:source"`
	SearchQuery string `gorm:"type:varchar(256);not null;uniqueIndex:checkpoints_ux1,priority:2;column:search_query"`

	LastWindowStart sql.NullTime `gorm:"column:last_window_start"`
	LastWindowEnd   sql.NullTime `gorm:"column:last_window_end"`

	RunCount     int64 `gorm:"not null;default:0;column:run_count"`
	AttemptCount int64 `gorm:"not null;default:0;column:attempt_count"`

	CreatedAt time.Time `gorm:"not null;column:created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Checkpoint
func (Checkpoint) TableName() string {
	return "checkpoints"
}
