package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brandpulse/brandpulse/internal/models"
)

// ErrDuplicate is returned when an insert collides with an existing natural
// key. Callers count it as a skip, never as an error.
var ErrDuplicate = errors.New("duplicate natural key")

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RawPostRepository provides raw post database operations
type RawPostRepository struct {
	*Repository
}

// NewRawPostRepository creates a new raw post repository
func NewRawPostRepository(repo *Repository) *RawPostRepository {
	return &RawPostRepository{Repository: repo}
}

// Create inserts a raw post. A collision on (platform, post_id) returns
// ErrDuplicate.
func (r *RawPostRepository) Create(ctx context.Context, post *models.RawPost) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(post)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// Exists checks whether a post with the given natural key is already stored.
func (r *RawPostRepository) Exists(ctx context.Context, platform, postID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.RawPost{}).
		Where("platform = ? AND post_id = ?", platform, postID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByID retrieves a raw post by database id
func (r *RawPostRepository) GetByID(ctx context.Context, id int64) (*models.RawPost, error) {
	var post models.RawPost
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// GetUnclassified returns posts not yet classified, newest scraped first.
// Empty platform/company match everything.
func (r *RawPostRepository) GetUnclassified(ctx context.Context, platform, company string, limit int) ([]*models.RawPost, error) {
	query := r.db.WithContext(ctx).Where("is_classified = ?", false)
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if company != "" {
		query = query.Where("company = ?", company)
	}

	var posts []*models.RawPost
	if err := query.Order("scraped_at DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// MarkClassified flips is_classified on a raw post. The flag transitions
// false->true exactly once; re-marking is a no-op.
func (r *RawPostRepository) MarkClassified(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&models.RawPost{}).
		Where("id = ?", id).
		Update("is_classified", true).Error
}

// ConversationRepository provides conversation database operations
type ConversationRepository struct {
	*Repository
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(repo *Repository) *ConversationRepository {
	return &ConversationRepository{Repository: repo}
}

// Exists checks whether a conversation is already stored. This runs BEFORE
// the expensive thread fetch, not only before the write.
func (r *ConversationRepository) Exists(ctx context.Context, conversationID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a conversation. A collision on conversation_id returns
// ErrDuplicate.
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conv)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// CheckpointRepository provides checkpoint database operations
type CheckpointRepository struct {
	*Repository
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(repo *Repository) *CheckpointRepository {
	return &CheckpointRepository{Repository: repo}
}

// Get retrieves the checkpoint for a (source, query) pair
func (r *CheckpointRepository) Get(ctx context.Context, source, query string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := r.db.WithContext(ctx).
		Where("source = ? AND search_query = ?", source, query).
		First(&cp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

// WindowStart returns the last recorded window end for a (source, query)
// pair, or epoch if no checkpoint exists yet.
func (r *CheckpointRepository) WindowStart(ctx context.Context, source, query string, epoch time.Time) (time.Time, error) {
	cp, err := r.Get(ctx, source, query)
	if err != nil {
		return time.Time{}, err
	}
	if cp == nil || !cp.LastWindowEnd.Valid {
		return epoch, nil
	}
	return cp.LastWindowEnd.Time.UTC(), nil
}

// BeginAttempt increments the attempt counter for a window attempt. Attempts
// are counted separately from confirmed runs so retried windows don't inflate
// run_count.
func (r *CheckpointRepository) BeginAttempt(ctx context.Context, source, query string) error {
	cp, err := r.Get(ctx, source, query)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &models.Checkpoint{
			Source:       source,
			SearchQuery:  query,
			AttemptCount: 1,
		}
		return r.db.WithContext(ctx).Create(cp).Error
	}
	return r.db.WithContext(ctx).Model(cp).
		Update("attempt_count", gorm.Expr("attempt_count + 1")).Error
}

// Advance upserts the checkpoint after a confirmed full-window run and
// increments run_count. last_window_end never moves backward.
func (r *CheckpointRepository) Advance(ctx context.Context, source, query string, windowStart, windowEnd time.Time) error {
	cp, err := r.Get(ctx, source, query)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &models.Checkpoint{
			Source:          source,
			SearchQuery:     query,
			LastWindowStart: sql.NullTime{Time: windowStart, Valid: true},
			LastWindowEnd:   sql.NullTime{Time: windowEnd, Valid: true},
			RunCount:        1,
		}
		return r.db.WithContext(ctx).Create(cp).Error
	}

	if cp.LastWindowEnd.Valid && windowEnd.Before(cp.LastWindowEnd.Time) {
		// Monotonicity guard: a stale advance must not rewind progress
		return r.db.WithContext(ctx).Model(cp).
			Update("run_count", gorm.Expr("run_count + 1")).Error
	}

	return r.db.WithContext(ctx).Model(cp).Updates(map[string]interface{}{
		"last_window_start": windowStart,
		"last_window_end":   windowEnd,
		"run_count":         gorm.Expr("run_count + 1"),
	}).Error
}

// ClassifiedPostRepository provides classified post database operations
type ClassifiedPostRepository struct {
	*Repository
}

// NewClassifiedPostRepository creates a new classified post repository
func NewClassifiedPostRepository(repo *Repository) *ClassifiedPostRepository {
	return &ClassifiedPostRepository{Repository: repo}
}

// Create inserts a classification result. A collision on raw_post_id returns
// ErrDuplicate (at most one judgment per raw post).
func (r *ClassifiedPostRepository) Create(ctx context.Context, post *models.ClassifiedPost) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(post)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetByID retrieves a classified post by id
func (r *ClassifiedPostRepository) GetByID(ctx context.Context, id int64) (*models.ClassifiedPost, error) {
	var post models.ClassifiedPost
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// Save persists workflow mutations on a classified post
func (r *ClassifiedPostRepository) Save(ctx context.Context, post *models.ClassifiedPost) error {
	return r.db.WithContext(ctx).Save(post).Error
}

// ListFilter narrows classified post queries
type ListFilter struct {
	Category   string
	Product    string
	Company    string
	Platform   string
	Status     string
	MinUrgency int
	MinImpact  int
	IsSpam     *bool
	Limit      int
}

// List returns classified posts matching the filter, newest first
func (r *ClassifiedPostRepository) List(ctx context.Context, f ListFilter) ([]*models.ClassifiedPost, error) {
	query := r.db.WithContext(ctx).Model(&models.ClassifiedPost{})

	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Product != "" {
		query = query.Where("product = ?", f.Product)
	}
	if f.Company != "" {
		query = query.Where("company = ?", f.Company)
	}
	if f.Platform != "" {
		query = query.Where("platform = ?", f.Platform)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.MinUrgency > 0 {
		query = query.Where("urgency_score >= ?", f.MinUrgency)
	}
	if f.MinImpact > 0 {
		query = query.Where("impact_score >= ?", f.MinImpact)
	}
	if f.IsSpam != nil {
		query = query.Where("is_spam = ?", *f.IsSpam)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var posts []*models.ClassifiedPost
	if err := query.Order("classified_at DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ActionableFilter narrows the attention queue
type ActionableFilter struct {
	MinUrgency int
	Status     string
	NotOnSlack bool
	NoTicket   bool
	Company    string
	Limit      int
}

// Actionable returns non-spam posts that need attention, most urgent first
func (r *ClassifiedPostRepository) Actionable(ctx context.Context, f ActionableFilter) ([]*models.ClassifiedPost, error) {
	minUrgency := f.MinUrgency
	if minUrgency <= 0 {
		minUrgency = 5
	}

	query := r.db.WithContext(ctx).Model(&models.ClassifiedPost{}).
		Where("is_spam = ?", false).
		Where("urgency_score >= ?", minUrgency)

	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.NotOnSlack {
		query = query.Where("raised_on_slack = ?", false)
	}
	if f.NoTicket {
		query = query.Where("ticket_created = ?", false)
	}
	if f.Company != "" {
		query = query.Where("company = ?", f.Company)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var posts []*models.ClassifiedPost
	if err := query.Order("urgency_score DESC, impact_score DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}
