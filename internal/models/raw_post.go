package models

import (
	"database/sql"
	"time"
)

// Platform identifiers for scraped content
const (
	PlatformTwitter  = "twitter"
	PlatformLinkedIn = "linkedin"
)

// RawPost is a canonicalized, platform-agnostic record of one scraped item.
// (platform, post_id) is the natural key; the composite unique index is the
// load-bearing guard that makes overlapping ingestion runs safe.
type RawPost struct {
	ID       int64  `gorm:"primaryKey;autoIncrement;column:id"`
	Platform string `gorm:"type:varchar(32);not null;uniqueIndex:raw_posts_ux1,priority:1;column:platform"`
	PostID   string `gorm:"type:varchar(64);not null;uniqueIndex:raw_posts_ux1,priority:2;column:post_id"`

	// Which tracked entity this was scraped for (primary company or competitor)
	Company string `gorm:"type:varchar(64);not null;index;column:company"`

	// Content
	FullText string `gorm:"type:text;column:full_text"`
	Language string `gorm:"type:varchar(8);column:language"`

	// Author
	AuthorID               string `gorm:"type:varchar(64);column:author_id"`
	AuthorName             string `gorm:"type:varchar(128);column:author_name"`
	AuthorUsername         string `gorm:"type:varchar(128);column:author_username"`
	AuthorDescription      string `gorm:"type:text;column:author_description"`
	AuthorFollowersCount   int64  `gorm:"not null;default:0;column:author_followers_count"`
	AuthorFollowingCount   int64  `gorm:"not null;default:0;column:author_following_count"`
	AuthorConnectionsCount int64  `gorm:"not null;default:0;column:author_connections_count"`
	AuthorIsVerified       bool   `gorm:"not null;default:false;column:author_is_verified"`
	AuthorProfileURL       string `gorm:"type:varchar(512);column:author_profile_url"`

	// Engagement counters
	LikesCount    int64 `gorm:"not null;default:0;column:likes_count"`
	CommentsCount int64 `gorm:"not null;default:0;column:comments_count"`
	SharesCount   int64 `gorm:"not null;default:0;column:shares_count"`
	ViewsCount    int64 `gorm:"not null;default:0;column:views_count"`

	// Linkage
	IsReply        bool   `gorm:"not null;default:false;column:is_reply"`
	InReplyToID    string `gorm:"type:varchar(64);column:in_reply_to_id"`
	IsQuote        bool   `gorm:"not null;default:false;column:is_quote"`
	ConversationID string `gorm:"type:varchar(64);index;column:conversation_id"`
	PostURL        string `gorm:"type:varchar(512);column:post_url"`
	ImageURL       string `gorm:"type:varchar(1024);column:image_url"`

	// Scrape provenance
	SearchQuery string       `gorm:"type:varchar(256);column:search_query"`
	PostedAt    sql.NullTime `gorm:"index;column:posted_at"`
	// True when posted_at was derived from a relative timestamp ("5d ago");
	// approximate values never feed checkpoint math.
	PostedAtApprox bool      `gorm:"not null;default:false;column:posted_at_approx"`
	ScrapedAt      time.Time `gorm:"not null;column:scraped_at"`

	// Opaque platform payload retained for forensics and replay
	RawJSON sql.NullString `gorm:"type:text;column:raw_json"`

	// Flips false->true exactly once, by the classification pipeline
	IsClassified bool `gorm:"not null;default:false;index;column:is_classified"`
}

// TableName specifies the table name for RawPost
func (RawPost) TableName() string {
	return "raw_posts"
}
