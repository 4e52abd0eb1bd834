package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"studio/internal/domain"
	"studio/internal/sqlinline"
)

type stubExecutor struct {
	row       stubRow
	lastQuery string
	lastArgs  []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.lastQuery, s.lastArgs = query, args
	return pgconn.CommandTag{}, nil
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.lastQuery, s.lastArgs = query, args
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	values []string
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("dest count mismatch")
	}
	for i, d := range dest {
		ptr, ok := d.(*string)
		if !ok {
			return errors.New("invalid dest")
		}
		*ptr = r.values[i]
	}
	return nil
}

func TestPGUpdateByTaskIDTransition(t *testing.T) {
	exec := &stubExecutor{row: stubRow{values: []string{"g1", "video", "cat", "processing", "completed"}}}
	r := NewGenerationRepositoryPG(exec)

	tr, ok, err := r.UpdateByTaskID(context.Background(), "task-9", domain.GenerationPatch{
		Status:     domain.StatusPtr(domain.StatusCompleted),
		ResultPath: domain.StringPtr("/data/videos/cat.mp4"),
	})
	if err != nil || !ok {
		t.Fatalf("UpdateByTaskID: ok=%v err=%v", ok, err)
	}
	if !tr.Completed() || tr.ID != "g1" || tr.Type != domain.GenerationTypeVideo {
		t.Fatalf("unexpected transition %+v", tr)
	}
	if exec.lastQuery != sqlinline.QUpdateGenerationByTaskID {
		t.Fatalf("unexpected query issued")
	}
	if len(exec.lastArgs) != 10 {
		t.Fatalf("expected 10 args, got %d", len(exec.lastArgs))
	}
	if exec.lastArgs[9] != false {
		t.Fatalf("revoke flag must default to false, got %v", exec.lastArgs[9])
	}
	if exec.lastArgs[0] != "task-9" || exec.lastArgs[1] != "completed" || exec.lastArgs[4] != "/data/videos/cat.mp4" {
		t.Fatalf("unexpected args %v", exec.lastArgs)
	}
	if exec.lastArgs[2] != nil || exec.lastArgs[7] != nil {
		t.Fatalf("unset patch fields must be nil, got %v", exec.lastArgs)
	}
}

func TestPGUpdateNoRows(t *testing.T) {
	r := NewGenerationRepositoryPG(&stubExecutor{row: stubRow{err: pgx.ErrNoRows}})
	_, ok, err := r.UpdateByID(context.Background(), "missing", domain.GenerationPatch{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false")
	}
}

func TestPGGetByIDNotFound(t *testing.T) {
	r := NewGenerationRepositoryPG(&stubExecutor{row: stubRow{err: pgx.ErrNoRows}})
	if _, err := r.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGCreatePassesNullables(t *testing.T) {
	exec := &stubExecutor{}
	r := NewGenerationRepositoryPG(exec)
	err := r.Create(context.Background(), &domain.Generation{
		ID:     "g2",
		Type:   domain.GenerationTypeImage,
		Prompt: "sunset",
		Status: domain.StatusProcessing,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.Contains(exec.lastQuery, "insert into generations") {
		t.Fatalf("unexpected query %q", exec.lastQuery)
	}
	if exec.lastArgs[3] != nil || exec.lastArgs[8] != nil {
		t.Fatalf("empty optionals must be nil, got %v", exec.lastArgs)
	}
}
