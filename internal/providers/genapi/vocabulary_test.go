package genapi

import (
	"os"
	"path/filepath"
	"testing"

	"studio/internal/domain"
)

func TestVocabularyMapping(t *testing.T) {
	v := DefaultVocabulary()
	cases := map[string]domain.Status{
		"succeeded":  domain.StatusCompleted,
		"DONE":       domain.StatusCompleted,
		"Completed":  domain.StatusCompleted,
		"success":    domain.StatusCompleted,
		"error":      domain.StatusFailed,
		"canceled":   domain.StatusFailed,
		"Cancelled":  domain.StatusFailed,
		"failed":     domain.StatusFailed,
		"queued":     "queued",
		"processing": domain.StatusProcessing,
		"":           StatusUnknown,
	}
	for in, want := range cases {
		if got := v.Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVocabularyProgressOverride(t *testing.T) {
	v := DefaultVocabulary()
	if got := v.Map("rendering", 100, "https://x/a.mp4"); got != domain.StatusCompleted {
		t.Fatalf("expected completed, got %q", got)
	}
	if got := v.Map("rendering", 100, ""); got != "rendering" {
		t.Fatalf("no result url must not complete, got %q", got)
	}
	if got := v.Map("failed", 100, "https://x/a.mp4"); got != domain.StatusFailed {
		t.Fatalf("failed must stay failed, got %q", got)
	}
	if got := v.Map("rendering", 99, "https://x/a.mp4"); got != "rendering" {
		t.Fatalf("partial progress must not complete, got %q", got)
	}
}

func TestLoadVocabularyExtendsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	content := "completed:\n  - finished\nfailed:\n  - \"rejected|timed[ _]out\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}
	if v.Normalize("Finished") != domain.StatusCompleted {
		t.Fatalf("custom completed word not applied")
	}
	if v.Normalize("timed_out") != domain.StatusFailed || v.Normalize("REJECTED") != domain.StatusFailed {
		t.Fatalf("custom failed pattern not applied")
	}
	if v.Normalize("done") != domain.StatusCompleted {
		t.Fatalf("defaults must be kept")
	}
}

func TestLoadVocabularyRejectsBadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	if err := os.WriteFile(path, []byte("failed:\n  - \"(unclosed\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadVocabulary(path); err == nil {
		t.Fatalf("expected compile error")
	}
}
