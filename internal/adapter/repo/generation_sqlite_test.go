package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

func newSQLiteRepo(t *testing.T) *GenerationRepositorySQLite {
	t.Helper()
	ctx := context.Background()
	db, err := infra.OpenSQLite(ctx, filepath.Join(t.TempDir(), "studio.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r, err := NewGenerationRepositorySQLite(ctx, db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return r
}

func seedGeneration(t *testing.T, r *GenerationRepositorySQLite, id string, kind domain.GenerationType, created time.Time) {
	t.Helper()
	g := &domain.Generation{
		ID:        id,
		Type:      kind,
		Prompt:    "prompt " + id,
		Status:    domain.StatusProcessing,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := r.Create(context.Background(), g); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestSQLiteCreateAndGet(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())
	g := &domain.Generation{
		ID:             "g1",
		Type:           domain.GenerationTypeVideo,
		Prompt:         "a cat surfing",
		NegativePrompt: "blurry",
		Model:          "veo3.1",
		AspectRatio:    "16:9",
		Duration:       8,
		Status:         domain.StatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.GetByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Prompt != g.Prompt || got.Model != "veo3.1" || got.Duration != 8 || got.NegativePrompt != "blurry" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, now)
	}
	if got.SystemContext != "" || got.TaskID != "" {
		t.Fatalf("expected empty optional fields, got %+v", got)
	}

	if _, err := r.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteUpdateReportsPreviousStatus(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	seedGeneration(t, r, "g1", domain.GenerationTypeVideo, time.Now())

	tr, ok, err := r.UpdateByID(ctx, "g1", domain.GenerationPatch{
		TaskID:   domain.StringPtr("task-1"),
		Progress: domain.IntPtr(40),
	})
	if err != nil || !ok {
		t.Fatalf("UpdateByID: ok=%v err=%v", ok, err)
	}
	if tr.Previous != domain.StatusProcessing || tr.Current != domain.StatusProcessing || tr.Completed() {
		t.Fatalf("unexpected transition %+v", tr)
	}

	tr, ok, err = r.UpdateByTaskID(ctx, "task-1", domain.GenerationPatch{
		Status:     domain.StatusPtr(domain.StatusCompleted),
		ResultPath: domain.StringPtr("/tmp/out.mp4"),
	})
	if err != nil || !ok {
		t.Fatalf("UpdateByTaskID: ok=%v err=%v", ok, err)
	}
	if !tr.Completed() || tr.ID != "g1" || tr.Type != domain.GenerationTypeVideo {
		t.Fatalf("expected completion transition, got %+v", tr)
	}

	tr, _, err = r.UpdateByTaskID(ctx, "task-1", domain.GenerationPatch{Status: domain.StatusPtr(domain.StatusCompleted)})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if tr.Completed() {
		t.Fatalf("second completion must not count as a transition")
	}

	got, err := r.GetByTaskID(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if got.Progress != 40 || got.ResultPath != "/tmp/out.mp4" || got.Status != domain.StatusCompleted {
		t.Fatalf("patch not merged: %+v", got)
	}
}

func TestSQLiteUpdateMissingReturnsFalse(t *testing.T) {
	r := newSQLiteRepo(t)
	_, ok, err := r.UpdateByTaskID(context.Background(), "nope", domain.GenerationPatch{Progress: domain.IntPtr(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for unknown task")
	}
}

func TestSQLiteTaskIDPicksMostRecent(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	seedGeneration(t, r, "old", domain.GenerationTypeVideo, base)
	seedGeneration(t, r, "new", domain.GenerationTypeVideo, base.Add(time.Minute))
	for _, id := range []string{"old", "new"} {
		if _, _, err := r.UpdateByID(ctx, id, domain.GenerationPatch{TaskID: domain.StringPtr("dup")}); err != nil {
			t.Fatalf("set task id: %v", err)
		}
	}
	got, err := r.GetByTaskID(ctx, "dup")
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if got.ID != "new" {
		t.Fatalf("expected most recent record, got %s", got.ID)
	}
}

func TestSQLiteListPendingTaskIDs(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	seedGeneration(t, r, "v1", domain.GenerationTypeVideo, base)
	seedGeneration(t, r, "v2", domain.GenerationTypeVideo, base.Add(time.Minute))
	seedGeneration(t, r, "v3", domain.GenerationTypeVideo, base.Add(2*time.Minute))
	seedGeneration(t, r, "v4", domain.GenerationTypeVideo, base.Add(3*time.Minute))
	seedGeneration(t, r, "i1", domain.GenerationTypeImage, base.Add(4*time.Minute))

	patches := map[string]domain.GenerationPatch{
		"v1": {TaskID: domain.StringPtr("t1")},
		"v2": {TaskID: domain.StringPtr("t2"), Status: domain.StatusPtr(domain.StatusCompleted)},
		"v3": {TaskID: domain.StringPtr("t3"), Status: domain.StatusPtr("queued")},
		"i1": {TaskID: domain.StringPtr("img")},
	}
	for id, p := range patches {
		if _, _, err := r.UpdateByID(ctx, id, p); err != nil {
			t.Fatalf("patch %s: %v", id, err)
		}
	}

	ids, err := r.ListPendingTaskIDs(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingTaskIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "t3" || ids[1] != "t1" {
		t.Fatalf("unexpected pending ids %v", ids)
	}

	nonTerminal, err := r.ListNonTerminal(ctx, 0)
	if err != nil {
		t.Fatalf("ListNonTerminal: %v", err)
	}
	if len(nonTerminal) != 4 {
		t.Fatalf("expected 4 non-terminal records, got %d", len(nonTerminal))
	}

	tasks, err := r.ListTasks(ctx, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 4 || tasks[0].ID != "v4" {
		t.Fatalf("unexpected task listing: %d first=%s", len(tasks), tasks[0].ID)
	}
}

func TestSQLiteListFiltersAndStats(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		seedGeneration(t, r, id, domain.GenerationTypeImage, base.Add(time.Duration(i)*time.Minute))
	}
	seedGeneration(t, r, "v", domain.GenerationTypeVideo, base.Add(10*time.Minute))
	if _, _, err := r.UpdateByID(ctx, "b", domain.GenerationPatch{Status: domain.StatusPtr(domain.StatusCompleted)}); err != nil {
		t.Fatalf("complete b: %v", err)
	}

	page, err := r.List(ctx, domain.GenerationFilter{Type: domain.GenerationTypeImage, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.Items[0].ID != "c" {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = r.List(ctx, domain.GenerationFilter{Search: "prompt b"})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != "b" {
		t.Fatalf("search mismatch %+v", page)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalImages != 3 || stats.TotalVideos != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSQLiteTerminalStatusIsSticky(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	seedGeneration(t, r, "g1", domain.GenerationTypeVideo, time.Now())
	if _, _, err := r.UpdateByID(ctx, "g1", domain.GenerationPatch{Status: domain.StatusPtr(domain.StatusFailed)}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	tr, ok, err := r.UpdateByID(ctx, "g1", domain.GenerationPatch{
		Status:   domain.StatusPtr(domain.StatusProcessing),
		Progress: domain.IntPtr(70),
	})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if tr.Current != domain.StatusFailed {
		t.Fatalf("expected failed to stick, got %q", tr.Current)
	}
	got, err := r.GetByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusFailed || got.Progress != 70 {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestSQLiteRevokeCompletedWithLostArtifact(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	seedGeneration(t, r, "g1", domain.GenerationTypeVideo, time.Now())
	if _, _, err := r.UpdateByID(ctx, "g1", domain.GenerationPatch{
		Status:     domain.StatusPtr(domain.StatusCompleted),
		TaskID:     domain.StringPtr("task-1"),
		ResultPath: domain.StringPtr("/data/videos/gone.mp4"),
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Without the flag a completed record keeps its status and gets no error.
	tr, _, err := r.UpdateByTaskID(ctx, "task-1", domain.GenerationPatch{
		Status:       domain.StatusPtr(domain.StatusFailed),
		ErrorMessage: domain.StringPtr("late failure"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := r.GetByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if tr.Current != domain.StatusCompleted || got.Status != domain.StatusCompleted || got.ErrorMessage != "" {
		t.Fatalf("completed record changed without revoke: %+v", got)
	}

	tr, ok, err := r.UpdateByTaskID(ctx, "task-1", domain.GenerationPatch{
		Status:          domain.StatusPtr(domain.StatusFailed),
		ErrorMessage:    domain.StringPtr("artifact download failed"),
		RevokeCompleted: true,
	})
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}
	if tr.Previous != domain.StatusCompleted || tr.Current != domain.StatusFailed || tr.Completed() {
		t.Fatalf("unexpected transition %+v", tr)
	}
	got, err = r.GetByID(ctx, "g1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusFailed || got.ResultPath != "" || got.ErrorMessage != "artifact download failed" {
		t.Fatalf("unexpected revoked record %+v", got)
	}

	// failed stays sticky even with the flag.
	tr, _, err = r.UpdateByTaskID(ctx, "task-1", domain.GenerationPatch{
		Status:          domain.StatusPtr(domain.StatusCompleted),
		RevokeCompleted: true,
	})
	if err != nil || tr.Current != domain.StatusFailed {
		t.Fatalf("failed must stay sticky: %+v %v", tr, err)
	}
}
