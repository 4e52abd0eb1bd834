package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"studio/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func newTestDownloader(t *testing.T, s *FileStore) *Downloader {
	t.Helper()
	d, err := NewDownloader(DownloaderOptions{Store: s})
	if err != nil {
		t.Fatalf("NewDownloader: %v", err)
	}
	return d
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadFollowsOneRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "files/a.mp4", http.StatusFound)
	})
	mux.HandleFunc("/files/a.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "video-bytes")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestStore(t)
	path, err := newTestDownloader(t, s).Download(context.Background(), srv.URL+"/start", CategoryVideos, "clip.mp4")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Dir(path) != s.Dir(CategoryVideos) {
		t.Fatalf("artifact saved outside category dir: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "video-bytes" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}
	if !Verified(path) {
		t.Fatalf("expected verified file")
	}
}

func TestDownloadRejectsSecondRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/b", http.StatusFound) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/c", http.StatusFound) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "x") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestStore(t)
	_, err := newTestDownloader(t, s).Download(context.Background(), srv.URL+"/a", CategoryVideos, "clip.mp4")
	if err == nil {
		t.Fatalf("expected failure after two redirects")
	}
	if len(listDir(t, s.Dir(CategoryVideos))) != 0 {
		t.Fatalf("no file may remain")
	}
}

func TestDownloadFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
		"empty":     func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
		"cut": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "4096")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
			w.(http.Flusher).Flush()
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			s := newTestStore(t)
			_, err := newTestDownloader(t, s).Download(context.Background(), srv.URL, CategoryVideos, "clip.mp4")
			var dlErr *domain.DownloadError
			if !errors.As(err, &dlErr) {
				t.Fatalf("expected DownloadError, got %v", err)
			}
			if !strings.Contains(err.Error(), "download") {
				t.Fatalf("message should mention download: %v", err)
			}
			if left := listDir(t, s.Dir(CategoryVideos)); len(left) != 0 {
				t.Fatalf("partial files left behind: %v", left)
			}
		})
	}
}

func TestWriteAvoidsCollisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first, err := s.Write(ctx, CategoryImages, "a.png", []byte("1"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	second, err := s.Write(ctx, CategoryImages, "a.png", []byte("2"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if first == second || filepath.Base(second) != "a-1.png" {
		t.Fatalf("expected suffixed second name, got %s and %s", first, second)
	}
	if _, err := s.Write(ctx, CategoryImages, "../escape.png", []byte("x")); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, err := s.Write(ctx, CategoryImages, "empty.png", nil); err == nil {
		t.Fatalf("expected empty data to be rejected")
	}
}

func TestStatsCountsFinishedFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Write(ctx, CategoryVideos, "v.mp4", []byte("12345")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(CategoryVideos), ".v.mp4.123.part"), []byte("zz"), 0o644); err != nil {
		t.Fatalf("write part: %v", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for _, st := range stats {
		if st.Category == CategoryVideos && (st.Files != 1 || st.Bytes != 5) {
			t.Fatalf("unexpected video stats %+v", st)
		}
		if st.Category == CategoryImages && st.Files != 0 {
			t.Fatalf("unexpected image stats %+v", st)
		}
	}
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	cases := []struct {
		sources  []string
		fallback string
		want     string
	}{
		{[]string{"A cat: on <the> roof?"}, "task", "A cat_ on _the_ ro_20260304_050607.mp4"},
		{[]string{"  ", "storyboard..."}, "task", "storyboard_20260304_050607.mp4"},
		{nil, "task-1", "task-1_20260304_050607.mp4"},
		{[]string{"\x00\x01"}, "", "__20260304_050607.mp4"},
	}
	for _, tc := range cases {
		if got := ArtifactName(tc.fallback, ".mp4", at, tc.sources...); got != tc.want {
			t.Fatalf("ArtifactName(%v) = %q, want %q", tc.sources, got, tc.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename("a\tb   c#d. . "); got != "a_b c_d" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestThumbnailFitsWidth(t *testing.T) {
	s := newTestStore(t)
	img := image.NewRGBA(image.Rect(0, 0, 800, 400))
	for x := 0; x < 800; x++ {
		img.Set(x, x%400, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	src, err := s.Write(context.Background(), CategoryImages, "pic.png", buf.Bytes())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	thumbPath, err := NewThumbnailer(s, 200).Generate(context.Background(), src)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if filepath.Base(thumbPath) != "pic_thumb.jpg" {
		t.Fatalf("unexpected thumbnail name %s", thumbPath)
	}
	thumb, err := imaging.Open(thumbPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("unexpected thumbnail size %dx%d", b.Dx(), b.Dy())
	}
	if !IsImageFile(src) || IsImageFile("clip.mp4") {
		t.Fatalf("IsImageFile misclassified")
	}
}
