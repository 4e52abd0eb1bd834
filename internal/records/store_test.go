package records

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/notify"
)

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestStore(t *testing.T) (*Store, *recordingSink) {
	t.Helper()
	ctx := context.Background()
	db, err := infra.OpenSQLite(ctx, filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r, err := repo.NewGenerationRepositorySQLite(ctx, db)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	sink := &recordingSink{}
	return NewStore(Options{Repository: r, Sink: sink}), sink
}

func TestCreateStartsProcessing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, domain.GenerationParams{Type: domain.GenerationTypeVideo, Prompt: "  waves  "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g, ok, err := s.GetByID(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetByID: ok=%v err=%v", ok, err)
	}
	if g.Status != domain.StatusProcessing || g.Progress != 0 || g.TaskID != "" || g.Prompt != "waves" {
		t.Fatalf("unexpected new record %+v", g)
	}
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Create(context.Background(), domain.GenerationParams{Type: "audio"}); err != domain.ErrInvalidKind {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestMissingRecordsAreNotErrors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, ok, err := s.GetByTaskID(ctx, "nope"); ok || err != nil {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
	ok, err := s.UpdateByTaskID(ctx, "nope", domain.GenerationPatch{Progress: domain.IntPtr(3)})
	if ok || err != nil {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestCompletionEventFiresOnce(t *testing.T) {
	s, sink := newTestStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, domain.GenerationParams{Type: domain.GenerationTypeVideo, Prompt: "city"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.UpdateByID(ctx, id, domain.GenerationPatch{TaskID: domain.StringPtr("t-1")}); err != nil {
		t.Fatalf("set task: %v", err)
	}
	done := domain.GenerationPatch{Status: domain.StatusPtr(domain.StatusCompleted), ResultPath: domain.StringPtr("/x.mp4")}
	if _, err := s.UpdateByTaskID(ctx, "t-1", done); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := s.UpdateByID(ctx, id, done); err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly one event, got %d", sink.count())
	}
	ev := sink.events[0]
	if ev.ID != id || ev.Type != domain.GenerationTypeVideo || ev.Prompt != "city" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
