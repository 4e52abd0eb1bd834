package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	dir := t.TempDir()
	return &infra.Config{
		AppEnv:             "test",
		DataDir:            dir,
		DatabaseDriver:     infra.DriverSQLite,
		DatabaseURL:        filepath.Join(dir, "db", "studio.db"),
		APIBaseURL:         "api.example.test/v1",
		PollInterval:       time.Second,
		StallAfterAttempts: 3,
		ThumbnailWidth:     128,
	}
}

func TestBuildSQLiteRuntime(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	rt, err := Build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	id, err := rt.Records.Create(ctx, domain.GenerationParams{Type: domain.GenerationTypeImage, Prompt: "p"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok, err := rt.Records.GetByID(ctx, id); err != nil || !ok {
		t.Fatalf("GetByID: ok=%v err=%v", ok, err)
	}
	for _, sub := range []string{"images", "videos", "thumbnails"} {
		if _, err := os.Stat(filepath.Join(cfg.DataDir, sub)); err != nil {
			t.Fatalf("missing %s dir: %v", sub, err)
		}
	}
	if rt.Redis != nil {
		t.Fatalf("redis sink must stay off without an address")
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBuildRejectsBadVocabulary(t *testing.T) {
	cfg := testConfig(t)
	cfg.StatusVocabularyFile = filepath.Join(cfg.DataDir, "vocab.yaml")
	if err := os.WriteFile(cfg.StatusVocabularyFile, []byte("completed: ['(']\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected vocabulary error")
	}
}
