// Package workflow applies team actions to classified posts: Slack
// escalation, ticket linkage, assignment, resolution, and notes. Every
// transition is idempotent at the storage layer and the status field only
// ever moves forward.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/pkg/logging"
)

type classifiedStore interface {
	GetByID(ctx context.Context, id int64) (*models.ClassifiedPost, error)
	Save(ctx context.Context, post *models.ClassifiedPost) error
}

// ErrNotFound is returned when the classified post does not exist.
var ErrNotFound = fmt.Errorf("classified post not found")

// Service mutates workflow state on classified posts.
type Service struct {
	store  classifiedStore
	logger *zap.Logger

	now func() time.Time
}

// NewService creates a workflow service over the classified post store.
func NewService(store classifiedStore) *Service {
	return &Service{
		store:  store,
		logger: logging.GetLogger().With(zap.String("component", "workflow")),
		now:    time.Now,
	}
}

func (s *Service) load(ctx context.Context, id int64) (*models.ClassifiedPost, error) {
	post, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return post, nil
}

// RaiseOnSlack records a Slack escalation. Re-applying overwrites the channel
// and timestamp without regressing status.
func (s *Service) RaiseOnSlack(ctx context.Context, id int64, channel, messageTS, raisedBy string) (*models.ClassifiedPost, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	post.MarkRaisedOnSlack(channel, messageTS, raisedBy, s.now().UTC())
	if err := s.store.Save(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("post raised on slack",
		zap.Int64("id", id), zap.String("channel", channel))
	return post, nil
}

// CreateTicket records ticket linkage for the post.
func (s *Service) CreateTicket(ctx context.Context, id int64, ticketID, ticketURL, system string) (*models.ClassifiedPost, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	post.MarkTicketCreated(ticketID, ticketURL, system, s.now().UTC())
	if err := s.store.Save(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("ticket linked",
		zap.Int64("id", id), zap.String("ticket_id", ticketID))
	return post, nil
}

// Assign routes the post to a team and optionally a person.
func (s *Service) Assign(ctx context.Context, id int64, team, assignee string) (*models.ClassifiedPost, error) {
	if team == "" {
		return nil, fmt.Errorf("team is required")
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Assign(team, assignee)
	if err := s.store.Save(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("post assigned",
		zap.Int64("id", id), zap.String("team", team), zap.String("assignee", assignee))
	return post, nil
}

// Resolve records the resolution text and moves status to resolved.
func (s *Service) Resolve(ctx context.Context, id int64, resolution string) (*models.ClassifiedPost, error) {
	if resolution == "" {
		return nil, fmt.Errorf("resolution is required")
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Resolve(resolution, s.now().UTC())
	if err := s.store.Save(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("post resolved", zap.Int64("id", id))
	return post, nil
}

// AddNote appends a timestamped internal note without touching status.
func (s *Service) AddNote(ctx context.Context, id int64, note string) (*models.ClassifiedPost, error) {
	if note == "" {
		return nil, fmt.Errorf("note is required")
	}

	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	post.AddNote(note, s.now().UTC())
	if err := s.store.Save(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}
