package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Classification categories. Spam is an orthogonal boolean flag, not a
// category; category is empty for spam posts and aggregation counts spam via
// the flag only.
const (
	CategoryPraise             = "Praise"
	CategoryComplaint          = "Complaint"
	CategoryExperienceBreakage = "Experience Breakage"
	CategoryFeatureRequest     = "Feature Request"
)

// Priority levels derived from urgency and impact scores
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Workflow statuses, ordered; a transition never moves status backward
const (
	StatusNew          = "new"
	StatusAcknowledged = "acknowledged"
	StatusInProgress   = "in_progress"
	StatusResolved     = "resolved"
	StatusClosed       = "closed"
)

var statusRanks = map[string]int{
	StatusNew:          0,
	StatusAcknowledged: 1,
	StatusInProgress:   2,
	StatusResolved:     3,
	StatusClosed:       4,
}

// StatusRank returns the monotonic rank of a workflow status, or -1 for an
// unknown status.
func StatusRank(status string) int {
	if rank, ok := statusRanks[status]; ok {
		return rank
	}
	return -1
}

// ClassifiedPost is the classifier's judgment about one RawPost, one-to-one
// via RawPostID. A few RawPost fields are denormalized for read-heavy
// dashboard queries.
type ClassifiedPost struct {
	ID        int64 `gorm:"primaryKey;autoIncrement;column:id"`
	RawPostID int64 `gorm:"not null;uniqueIndex:classified_posts_ux1;column:raw_post_id"`

	Company string `gorm:"type:varchar(64);not null;index;column:company"`

	// Judgment
	IsSpam          bool           `gorm:"not null;default:false;index;column:is_spam"`
	SpamReason      sql.NullString `gorm:"type:text;column:spam_reason"`
	Category        string         `gorm:"type:varchar(32);index;column:category"`
	Product         sql.NullString `gorm:"type:varchar(64);index;column:product"`
	SentimentScore  sql.NullInt16  `gorm:"column:sentiment_score"`
	UrgencyScore    sql.NullInt16  `gorm:"index;column:urgency_score"`
	ImpactScore     sql.NullInt16  `gorm:"index;column:impact_score"`
	Summary         string         `gorm:"type:text;column:summary"`
	KeyIssues       string         `gorm:"type:text;column:key_issues"` // JSON array of strings
	SuggestedAction string         `gorm:"type:text;column:suggested_action"`

	// Pure function of (urgency, impact); recomputed at classification time only
	Priority string `gorm:"type:varchar(16);not null;default:'medium';column:priority"`

	// Token usage for cost accounting
	PromptTokens     int64 `gorm:"not null;default:0;column:prompt_tokens"`
	CompletionTokens int64 `gorm:"not null;default:0;column:completion_tokens"`
	TotalTokens      int64 `gorm:"not null;default:0;column:total_tokens"`

	// Denormalized from RawPost for dashboard queries
	Platform             string       `gorm:"type:varchar(32);index;column:platform"`
	PostID               string       `gorm:"type:varchar(64);column:post_id"`
	PostURL              string       `gorm:"type:varchar(512);column:post_url"`
	AuthorName           string       `gorm:"type:varchar(128);column:author_name"`
	AuthorUsername       string       `gorm:"type:varchar(128);column:author_username"`
	AuthorFollowersCount int64        `gorm:"not null;default:0;column:author_followers_count"`
	PostedAt             sql.NullTime `gorm:"column:posted_at"`

	ClassifiedAt time.Time `gorm:"not null;index;column:classified_at"`

	// Workflow state, mutated by team actions after classification
	Status          string         `gorm:"type:varchar(16);not null;default:'new';index;column:status"`
	RaisedOnSlack   bool           `gorm:"not null;default:false;column:raised_on_slack"`
	SlackChannel    sql.NullString `gorm:"type:varchar(128);column:slack_channel"`
	SlackMessageTS  sql.NullString `gorm:"type:varchar(64);column:slack_message_ts"`
	SlackRaisedAt   sql.NullTime   `gorm:"column:slack_raised_at"`
	SlackRaisedBy   sql.NullString `gorm:"type:varchar(128);column:slack_raised_by"`
	TicketCreated   bool           `gorm:"not null;default:false;column:ticket_created"`
	TicketID        sql.NullString `gorm:"type:varchar(64);column:ticket_id"`
	TicketURL       sql.NullString `gorm:"type:varchar(512);column:ticket_url"`
	TicketSystem    sql.NullString `gorm:"type:varchar(32);column:ticket_system"`
	TicketCreatedAt sql.NullTime   `gorm:"column:ticket_created_at"`
	AssignedTeam    sql.NullString `gorm:"type:varchar(128);column:assigned_team"`
	AssignedTo      sql.NullString `gorm:"type:varchar(128);column:assigned_to"`
	Resolution      sql.NullString `gorm:"type:text;column:resolution"`
	ResolvedAt      sql.NullTime   `gorm:"column:resolved_at"`
	InternalNotes   string         `gorm:"type:text;column:internal_notes"`

	RawPost *RawPost `gorm:"foreignKey:RawPostID;references:ID"`
}

// TableName specifies the table name for ClassifiedPost
func (ClassifiedPost) TableName() string {
	return "classified_posts"
}

// DerivePriority computes priority from urgency and impact scores.
// A missing score yields medium.
func DerivePriority(urgency, impact sql.NullInt16) string {
	if !urgency.Valid || !impact.Valid {
		return PriorityMedium
	}
	combined := float64(urgency.Int16+impact.Int16) / 2
	switch {
	case combined >= 8:
		return PriorityCritical
	case combined >= 6:
		return PriorityHigh
	case combined >= 4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AdvanceStatus moves the workflow status forward to target. Transitions that
// would move status backward are no-ops: the current status wins.
func (p *ClassifiedPost) AdvanceStatus(target string) {
	if StatusRank(target) > StatusRank(p.Status) {
		p.Status = target
	}
}

// MarkRaisedOnSlack records a Slack escalation. Re-applying overwrites the
// channel and timestamp; status advances to acknowledged at most.
func (p *ClassifiedPost) MarkRaisedOnSlack(channel, messageTS, raisedBy string, at time.Time) {
	p.RaisedOnSlack = true
	p.SlackChannel = sql.NullString{String: channel, Valid: true}
	if messageTS != "" {
		p.SlackMessageTS = sql.NullString{String: messageTS, Valid: true}
	}
	if raisedBy != "" {
		p.SlackRaisedBy = sql.NullString{String: raisedBy, Valid: true}
	}
	p.SlackRaisedAt = sql.NullTime{Time: at, Valid: true}
	p.AdvanceStatus(StatusAcknowledged)
}

// MarkTicketCreated records ticket linkage and advances status to in_progress
// at most.
func (p *ClassifiedPost) MarkTicketCreated(ticketID, ticketURL, system string, at time.Time) {
	p.TicketCreated = true
	p.TicketID = sql.NullString{String: ticketID, Valid: true}
	if ticketURL != "" {
		p.TicketURL = sql.NullString{String: ticketURL, Valid: true}
	}
	if system != "" {
		p.TicketSystem = sql.NullString{String: system, Valid: true}
	}
	p.TicketCreatedAt = sql.NullTime{Time: at, Valid: true}
	p.AdvanceStatus(StatusInProgress)
}

// Assign records team/assignee and advances status to in_progress at most.
func (p *ClassifiedPost) Assign(team, assignee string) {
	p.AssignedTeam = sql.NullString{String: team, Valid: true}
	if assignee != "" {
		p.AssignedTo = sql.NullString{String: assignee, Valid: true}
	}
	p.AdvanceStatus(StatusInProgress)
}

// Resolve records the resolution and advances status to resolved.
func (p *ClassifiedPost) Resolve(resolution string, at time.Time) {
	p.Resolution = sql.NullString{String: resolution, Valid: true}
	p.ResolvedAt = sql.NullTime{Time: at, Valid: true}
	p.AdvanceStatus(StatusResolved)
}

// AddNote appends a timestamped internal note.
func (p *ClassifiedPost) AddNote(note string, at time.Time) {
	line := fmt.Sprintf("[%s] %s", at.Format(time.RFC3339), note)
	if p.InternalNotes != "" {
		p.InternalNotes += "\n\n" + line
	} else {
		p.InternalNotes = line
	}
}
