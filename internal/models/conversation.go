package models

import (
	"database/sql"
	"time"
)

// Conversation stores one full Twitter thread: the focal post plus replies.
// ConversationID is unique; a conversation is fetched and stored at most once,
// with the existence check preceding the expensive thread fetch.
type Conversation struct {
	ID             int64  `gorm:"primaryKey;autoIncrement;column:id"`
	ConversationID string `gorm:"type:varchar(64);not null;uniqueIndex:conversations_ux1;column:conversation_id"`
	Source         string `gorm:"type:varchar(32);not null;default:'twitter';column:source"`
	MainPostID     string `gorm:"type:varchar(64);not null;index;column:main_post_id"`

	// Full thread payload (main post + replies) as JSON
	Payload string `gorm:"type:text;not null;column:payload"`

	// Denormalized metrics for time-ordered pagination
	ReplyCount  int64        `gorm:"not null;default:0;column:reply_count"`
	SearchQuery string       `gorm:"type:varchar(256);column:search_query"`
	StartedAt   sql.NullTime `gorm:"index;column:started_at"`
	LastReplyAt sql.NullTime `gorm:"index;column:last_reply_at"`

	CreatedAt time.Time `gorm:"not null;column:created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}
