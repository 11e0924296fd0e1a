package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/classifier"
	"github.com/brandpulse/brandpulse/internal/db"
	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/pkg/telemetry"
)

// classifierClient is the remote judgment contract.
type classifierClient interface {
	Classify(ctx context.Context, text, imageURL string) (*classifier.Result, error)
}

type unclassifiedStore interface {
	GetUnclassified(ctx context.Context, platform, company string, limit int) ([]*models.RawPost, error)
	MarkClassified(ctx context.Context, id int64) error
}

type classifiedStore interface {
	Create(ctx context.Context, post *models.ClassifiedPost) error
}

// ClassifyStats counts the outcome of one classification batch.
type ClassifyStats struct {
	Processed   int
	Classified  int
	Spam        int
	Errors      int
	TotalTokens int64

	// Per-category counts for the run summary, spam excluded
	Categories map[string]int
}

// ClassifyOptions configures a classification batch.
type ClassifyOptions struct {
	Platform  string // "" for all platforms
	Company   string // "" for all companies
	Limit     int
	ItemDelay time.Duration
}

// Classifier pulls unclassified raw posts, invokes the remote judgment call,
// and persists the results. A failed item keeps is_classified=false so the
// next batch naturally retries it.
type Classifier struct {
	client     classifierClient
	rawPosts   unclassifiedStore
	classified classifiedStore
	opts       ClassifyOptions
	logger     *zap.Logger

	now func() time.Time
}

// NewClassifier builds a classification batch runner.
func NewClassifier(client classifierClient, rawPosts unclassifiedStore, classified classifiedStore, opts ClassifyOptions) *Classifier {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return &Classifier{
		client:     client,
		rawPosts:   rawPosts,
		classified: classified,
		opts:       opts,
		logger:     logging.GetLogger().With(zap.String("component", "classifier-pipeline")),
		now:        time.Now,
	}
}

// Run classifies one batch of unclassified posts, pacing calls with the
// configured delay. The batch never fails as a whole: per-item failures are
// counted and retried by a later invocation.
func (c *Classifier) Run(ctx context.Context) (ClassifyStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.classify_run")
	defer span.End()

	stats := ClassifyStats{Categories: make(map[string]int)}

	posts, err := c.rawPosts.GetUnclassified(ctx, c.opts.Platform, c.opts.Company, c.opts.Limit)
	if err != nil {
		return stats, err
	}
	if len(posts) == 0 {
		c.logger.Info("no unclassified posts")
		return stats, nil
	}

	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Processed++
		c.classifyOne(ctx, post, &stats)

		if i < len(posts)-1 {
			c.wait(ctx, c.opts.ItemDelay)
		}
	}

	c.logger.Info("classification batch complete",
		zap.Int("processed", stats.Processed),
		zap.Int("classified", stats.Classified),
		zap.Int("spam", stats.Spam),
		zap.Int("errors", stats.Errors),
		zap.Int64("total_tokens", stats.TotalTokens))

	return stats, nil
}

// classifyOne judges a single post and persists the result. Only a fully
// persisted judgment flips is_classified.
func (c *Classifier) classifyOne(ctx context.Context, post *models.RawPost, stats *ClassifyStats) {
	result, err := c.client.Classify(ctx, post.FullText, post.ImageURL)
	if err != nil {
		stats.Errors++
		c.logger.Warn("classification failed",
			zap.Int64("raw_post_id", post.ID), zap.Error(err))
		return
	}

	classified := c.buildClassifiedPost(post, result)

	if err := c.classified.Create(ctx, classified); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Judged before but the flag flip was lost; repair it
			if err := c.rawPosts.MarkClassified(ctx, post.ID); err != nil {
				stats.Errors++
				c.logger.Warn("failed to mark post classified",
					zap.Int64("raw_post_id", post.ID), zap.Error(err))
				return
			}
			stats.Classified++
			return
		}
		stats.Errors++
		c.logger.Warn("failed to persist classification",
			zap.Int64("raw_post_id", post.ID), zap.Error(err))
		return
	}

	if err := c.rawPosts.MarkClassified(ctx, post.ID); err != nil {
		stats.Errors++
		c.logger.Warn("failed to mark post classified",
			zap.Int64("raw_post_id", post.ID), zap.Error(err))
		return
	}

	stats.Classified++
	stats.TotalTokens += result.Usage.TotalTokens
	if result.Judgment.IsSpam {
		stats.Spam++
	} else if classified.Category != "" {
		stats.Categories[classified.Category]++
	}
}

// buildClassifiedPost maps a judgment onto the stored record, denormalizing
// the raw post fields the dashboards read. Spam posts carry no category.
func (c *Classifier) buildClassifiedPost(post *models.RawPost, result *classifier.Result) *models.ClassifiedPost {
	j := result.Judgment

	classified := &models.ClassifiedPost{
		RawPostID: post.ID,
		Company:   post.Company,

		IsSpam:          j.IsSpam,
		Summary:         j.Summary,
		SuggestedAction: j.SuggestedAction,

		SentimentScore: toNullInt16(j.SentimentScore),
		UrgencyScore:   toNullInt16(j.UrgencyScore),
		ImpactScore:    toNullInt16(j.ImpactScore),

		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,

		Platform:             post.Platform,
		PostID:               post.PostID,
		PostURL:              post.PostURL,
		AuthorName:           post.AuthorName,
		AuthorUsername:       post.AuthorUsername,
		AuthorFollowersCount: post.AuthorFollowersCount,
		PostedAt:             post.PostedAt,

		ClassifiedAt: c.now().UTC(),
		Status:       models.StatusNew,
	}

	if !j.IsSpam {
		classified.Category = j.Category
	}
	if j.SpamReason != nil {
		classified.SpamReason = sql.NullString{String: *j.SpamReason, Valid: true}
	}
	if j.Product != nil {
		classified.Product = sql.NullString{String: *j.Product, Valid: true}
	}
	if len(j.KeyIssues) > 0 {
		if issues, err := json.Marshal(j.KeyIssues); err == nil {
			classified.KeyIssues = string(issues)
		}
	}

	classified.Priority = models.DerivePriority(classified.UrgencyScore, classified.ImpactScore)

	return classified
}

func toNullInt16(v *int) sql.NullInt16 {
	if v == nil {
		return sql.NullInt16{}
	}
	return sql.NullInt16{Int16: int16(*v), Valid: true}
}

func (c *Classifier) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
