package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteArchive(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	thumb := filepath.Join(dir, "clip_thumb.jpg")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(thumb, []byte("thumb"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := WriteArchive(&buf, []Asset{
		{Path: video},
		{Path: filepath.Join(dir, "gone.png")},
		{Filename: "clip.mp4", Path: thumb},
		{Path: ""},
	})
	if err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	want := map[string]string{"clip.mp4": "video", "clip-1.mp4": "thumb"}
	if len(zr.File) != len(want) {
		t.Fatalf("unexpected entries %d", len(zr.File))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		if want[f.Name] != string(data) {
			t.Fatalf("entry %s = %q", f.Name, data)
		}
		if f.Method != zip.Store {
			t.Fatalf("media entries are stored, got method %d for %s", f.Method, f.Name)
		}
	}
}
