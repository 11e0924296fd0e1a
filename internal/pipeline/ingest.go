// Package pipeline contains the checkpointed ingestion loop and the
// classification batch runner. Both are single-threaded by design: the
// binding constraint is external-API rate limits, so pacing happens through
// explicit delays rather than worker pools.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/db"
	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/internal/source"
	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/pkg/telemetry"
)

// Adapter is the per-platform search contract the ingestor drives.
type Adapter interface {
	Platform() string
	Search(ctx context.Context, query string, window source.TimeWindow, cursor string) (*source.SearchPage, error)
}

// ConversationFetcher is the optional thread-enrichment contract. The
// existence check by conversation id runs BEFORE this call, bounding wasted
// API requests under window overlap.
type ConversationFetcher interface {
	FetchConversation(ctx context.Context, postID string) (*models.Conversation, error)
}

// Store contracts, satisfied by the db repositories and by in-memory fakes
// in tests.

type checkpointStore interface {
	WindowStart(ctx context.Context, src, query string, epoch time.Time) (time.Time, error)
	BeginAttempt(ctx context.Context, src, query string) error
	Advance(ctx context.Context, src, query string, windowStart, windowEnd time.Time) error
}

type rawPostStore interface {
	Create(ctx context.Context, post *models.RawPost) error
}

type conversationStore interface {
	Exists(ctx context.Context, conversationID string) (bool, error)
	Create(ctx context.Context, conv *models.Conversation) error
}

// RunStats counts the outcome of one ingestion run. A run always reports its
// counts; partial success is a normal terminal state.
type RunStats struct {
	Found   int
	Saved   int
	Skipped int
	Errors  int
}

// Add accumulates another run's counts.
func (s *RunStats) Add(other RunStats) {
	s.Found += other.Found
	s.Saved += other.Saved
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// IngestOptions configures an ingestion loop.
type IngestOptions struct {
	Query      string
	Company    string
	WindowSize time.Duration
	Interval   time.Duration
	MaxRuns    int
	MaxPages   int
	Epoch      time.Time

	// FullRefresh scans from the epoch to now in one window, bypassing the
	// checkpoint. Natural-key collisions still count as skips.
	FullRefresh bool
}

// Ingestor drives the checkpointed scrape loop for one (platform, query)
// pair: compute window, fetch all pages, dedup, persist, advance checkpoint.
type Ingestor struct {
	adapter       Adapter
	conversations ConversationFetcher // nil when the platform has no threads
	checkpoints   checkpointStore
	rawPosts      rawPostStore
	convStore     conversationStore
	opts          IngestOptions
	logger        *zap.Logger

	now func() time.Time
}

// NewIngestor builds an ingestion loop. conversations may be nil for
// platforms without thread enrichment.
func NewIngestor(adapter Adapter, conversations ConversationFetcher, checkpoints checkpointStore, rawPosts rawPostStore, convStore conversationStore, opts IngestOptions) *Ingestor {
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = 1
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = time.Hour
	}
	return &Ingestor{
		adapter:       adapter,
		conversations: conversations,
		checkpoints:   checkpoints,
		rawPosts:      rawPosts,
		convStore:     convStore,
		opts:          opts,
		logger: logging.GetLogger().With(
			zap.String("component", "ingestor"),
			zap.String("platform", adapter.Platform()),
		),
		now: time.Now,
	}
}

// Run executes up to MaxRuns ingestion iterations with the configured delay
// between them, returning aggregate counts. A fetch failure aborts only the
// current iteration; the next one retries the same window.
func (in *Ingestor) Run(ctx context.Context) (RunStats, error) {
	var total RunStats

	for run := 1; run <= in.opts.MaxRuns; run++ {
		stats, err := in.runOnce(ctx)
		total.Add(stats)

		switch {
		case err == nil:
			in.logger.Info("ingestion run complete",
				zap.Int("run", run),
				zap.Int("found", stats.Found),
				zap.Int("saved", stats.Saved),
				zap.Int("skipped", stats.Skipped),
				zap.Int("errors", stats.Errors))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return total, err
		default:
			// Window not advanced; retried on the next iteration
			in.logger.Error("ingestion run failed", zap.Int("run", run), zap.Error(err))
		}

		if run < in.opts.MaxRuns {
			if err := in.wait(ctx, in.opts.Interval); err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

// runOnce processes one time window end to end. The checkpoint advances only
// after fetch and persist complete without a fatal error; per-item failures
// are counted, not fatal.
func (in *Ingestor) runOnce(ctx context.Context) (RunStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.ingest_run")
	defer span.End()

	var stats RunStats
	platform := in.adapter.Platform()

	window, ok, err := in.computeWindow(ctx, platform)
	if err != nil {
		return stats, err
	}
	if !ok {
		in.logger.Info("window is empty, nothing to fetch",
			zap.Time("window_start", window.Start))
		return stats, nil
	}

	if !in.opts.FullRefresh {
		if err := in.checkpoints.BeginAttempt(ctx, platform, in.opts.Query); err != nil {
			return stats, err
		}
	}

	// All pages for the window are fetched before anything is persisted;
	// partial-window persistence would complicate checkpoint semantics.
	posts, err := in.fetchWindow(ctx, window)
	if err != nil {
		return stats, err
	}
	stats.Found = len(posts)

	for _, post := range posts {
		in.persistPost(ctx, post, &stats)
	}

	if !in.opts.FullRefresh {
		if err := in.checkpoints.Advance(ctx, platform, in.opts.Query, window.Start, window.End); err != nil {
			return stats, fmt.Errorf("failed to advance checkpoint: %w", err)
		}
	}

	return stats, nil
}

// computeWindow derives the next [start, end) window from the checkpoint,
// clamped so the end never exceeds now. ok is false when the window is empty
// after clamping; the checkpoint is left untouched in that case.
func (in *Ingestor) computeWindow(ctx context.Context, platform string) (source.TimeWindow, bool, error) {
	now := in.now().UTC()

	if in.opts.FullRefresh {
		return source.TimeWindow{Start: in.opts.Epoch, End: now}, true, nil
	}

	start, err := in.checkpoints.WindowStart(ctx, platform, in.opts.Query, in.opts.Epoch)
	if err != nil {
		return source.TimeWindow{}, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	end := start.Add(in.opts.WindowSize)
	if end.After(now) {
		end = now
	}
	if !start.Before(end) {
		return source.TimeWindow{Start: start}, false, nil
	}
	return source.TimeWindow{Start: start, End: end}, true, nil
}

// fetchWindow pulls every page for the window, bounded by MaxPages. Any
// adapter error aborts the whole fetch so the window is retried intact.
func (in *Ingestor) fetchWindow(ctx context.Context, window source.TimeWindow) ([]*models.RawPost, error) {
	var posts []*models.RawPost
	cursor := ""

	for page := 1; page <= in.opts.MaxPages; page++ {
		result, err := in.adapter.Search(ctx, in.opts.Query, window, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch failed on page %d: %w", page, err)
		}
		posts = append(posts, result.Posts...)

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	return posts, nil
}

// persistPost writes one post and, for threads not yet stored, its full
// conversation. Duplicate natural keys are expected skips; other per-item
// errors are counted and do not abort the run.
func (in *Ingestor) persistPost(ctx context.Context, post *models.RawPost, stats *RunStats) {
	post.Company = in.opts.Company
	if post.SearchQuery == "" {
		post.SearchQuery = in.opts.Query
	}

	switch err := in.rawPosts.Create(ctx, post); {
	case err == nil:
		stats.Saved++
	case errors.Is(err, db.ErrDuplicate):
		stats.Skipped++
		return
	default:
		stats.Errors++
		in.logger.Warn("failed to persist post",
			zap.String("post_id", post.PostID), zap.Error(err))
		return
	}

	in.enrichConversation(ctx, post, stats)
}

// enrichConversation fetches and stores the post's thread, checking existence
// by conversation id before the expensive detail call.
func (in *Ingestor) enrichConversation(ctx context.Context, post *models.RawPost, stats *RunStats) {
	if in.conversations == nil || in.convStore == nil || post.ConversationID == "" || post.IsReply {
		return
	}

	exists, err := in.convStore.Exists(ctx, post.ConversationID)
	if err != nil {
		stats.Errors++
		in.logger.Warn("conversation existence check failed",
			zap.String("conversation_id", post.ConversationID), zap.Error(err))
		return
	}
	if exists {
		return
	}

	conv, err := in.conversations.FetchConversation(ctx, post.PostID)
	if err != nil {
		stats.Errors++
		in.logger.Warn("conversation fetch failed",
			zap.String("post_id", post.PostID), zap.Error(err))
		return
	}
	conv.SearchQuery = in.opts.Query

	if err := in.convStore.Create(ctx, conv); err != nil && !errors.Is(err, db.ErrDuplicate) {
		stats.Errors++
		in.logger.Warn("failed to persist conversation",
			zap.String("conversation_id", conv.ConversationID), zap.Error(err))
	}
}

func (in *Ingestor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
