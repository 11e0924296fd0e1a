package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/brandpulse/brandpulse/internal/models"
)

type memStore struct {
	mu    sync.Mutex
	posts map[int64]*models.ClassifiedPost
}

func newMemStore(posts ...*models.ClassifiedPost) *memStore {
	s := &memStore{posts: make(map[int64]*models.ClassifiedPost)}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*models.ClassifiedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) Save(ctx context.Context, post *models.ClassifiedPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func seedPost(id int64) *models.ClassifiedPost {
	return &models.ClassifiedPost{
		ID:       id,
		Category: models.CategoryComplaint,
		Status:   models.StatusNew,
	}
}

func TestRaiseOnSlackAdvancesToAcknowledged(t *testing.T) {
	store := newMemStore(seedPost(1))
	svc := NewService(store)

	post, err := svc.RaiseOnSlack(context.Background(), 1, "#support-escalations", "171234.5678", "oncall")
	if err != nil {
		t.Fatalf("RaiseOnSlack failed: %v", err)
	}
	if !post.RaisedOnSlack || post.SlackChannel.String != "#support-escalations" {
		t.Errorf("slack fields not recorded: %+v", post)
	}
	if post.Status != models.StatusAcknowledged {
		t.Errorf("status = %q, want acknowledged", post.Status)
	}
}

func TestResolveThenAssignDoesNotRegress(t *testing.T) {
	store := newMemStore(seedPost(1))
	svc := NewService(store)

	if _, err := svc.Resolve(context.Background(), 1, "refund issued"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	post, err := svc.Assign(context.Background(), 1, "payments", "rohan")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if post.Status != models.StatusResolved {
		t.Errorf("status = %q after assign, must stay resolved", post.Status)
	}
	if post.AssignedTeam.String != "payments" {
		t.Errorf("assignment not recorded: %+v", post.AssignedTeam)
	}
}

func TestTicketAdvancesToInProgress(t *testing.T) {
	store := newMemStore(seedPost(1))
	svc := NewService(store)

	post, err := svc.CreateTicket(context.Background(), 1, "JIRA-42", "https://jira.example/JIRA-42", "jira")
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if !post.TicketCreated || post.TicketID.String != "JIRA-42" {
		t.Errorf("ticket fields not recorded: %+v", post)
	}
	if post.Status != models.StatusInProgress {
		t.Errorf("status = %q, want in_progress", post.Status)
	}
}

func TestRaiseOnSlackIdempotentOverwrite(t *testing.T) {
	store := newMemStore(seedPost(1))
	svc := NewService(store)

	if _, err := svc.RaiseOnSlack(context.Background(), 1, "#first", "", ""); err != nil {
		t.Fatalf("first raise failed: %v", err)
	}
	post, err := svc.RaiseOnSlack(context.Background(), 1, "#second", "", "")
	if err != nil {
		t.Fatalf("second raise failed: %v", err)
	}
	if post.SlackChannel.String != "#second" {
		t.Errorf("channel = %q, re-raise must overwrite", post.SlackChannel.String)
	}
}

func TestAddNoteAccumulates(t *testing.T) {
	store := newMemStore(seedPost(1))
	svc := NewService(store)

	if _, err := svc.AddNote(context.Background(), 1, "first note"); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	post, err := svc.AddNote(context.Background(), 1, "second note")
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	if post.InternalNotes == "" || post.Status != models.StatusNew {
		t.Errorf("notes must accumulate without touching status: %+v", post)
	}
}

func TestMissingPost(t *testing.T) {
	svc := NewService(newMemStore())
	if _, err := svc.Resolve(context.Background(), 99, "done"); err == nil {
		t.Error("expected error for missing post")
	}
}
