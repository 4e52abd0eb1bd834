package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Category is a subdirectory of the store holding one kind of artifact.
type Category string

const (
	CategoryImages     Category = "images"
	CategoryVideos     Category = "videos"
	CategoryThumbnails Category = "thumbnails"
)

// Categories lists every directory the store manages.
var Categories = []Category{CategoryImages, CategoryVideos, CategoryThumbnails}

// FileStore persists artifacts under a base directory, one subdirectory per
// category. Final names are reserved under a lock so concurrent writers never
// land on the same path.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore initializes a FileStore rooted at basePath and creates the
// category directories.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	for _, c := range Categories {
		if err := os.MkdirAll(filepath.Join(abs, string(c)), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s directory: %w", c, err)
		}
	}
	return &FileStore{basePath: abs}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Dir returns the absolute directory of a category.
func (s *FileStore) Dir(c Category) string {
	return filepath.Join(s.basePath, string(c))
}

// Write persists data as name inside category and returns the final path. The
// bytes go to a temporary file first so readers never see a partial artifact.
func (s *FileStore) Write(ctx context.Context, c Category, name string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("storage: refusing to write empty artifact")
	}
	tmp, err := s.createTemp(c, name)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	return s.commit(tmpPath, c, name)
}

// createTemp opens a hidden ".part" file in the category directory.
func (s *FileStore) createTemp(c Category, name string) (*os.File, error) {
	clean, err := sanitizeKey(name)
	if err != nil {
		return nil, err
	}
	if strings.Contains(clean, "/") {
		return nil, errors.New("storage: name must not contain a directory")
	}
	dir := s.Dir(c)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+clean+".*.part")
	if err != nil {
		return nil, fmt.Errorf("storage: create temp file: %w", err)
	}
	return f, nil
}

// commit moves a finished temp file to a unique final name.
func (s *FileStore) commit(tmpPath string, c Category, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	final := uniquePath(s.Dir(c), name)
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: finalize file: %w", err)
	}
	return final, nil
}

// uniquePath appends "-N" before the extension until the name is free.
func uniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
		return candidate
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, stem+"-"+strconv.Itoa(i)+ext)
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// Verified reports whether path is a regular, non-empty file.
func Verified(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// CategoryStats summarizes one category directory.
type CategoryStats struct {
	Category Category `json:"category"`
	Files    int      `json:"files"`
	Bytes    int64    `json:"bytes"`
}

// Stats walks every category and counts finished artifacts. Temporary
// ".part" files are excluded.
func (s *FileStore) Stats(ctx context.Context) ([]CategoryStats, error) {
	out := make([]CategoryStats, 0, len(Categories))
	for _, c := range Categories {
		st := CategoryStats{Category: c}
		err := filepath.WalkDir(s.Dir(c), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || strings.HasSuffix(d.Name(), ".part") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			st.Files++
			st.Bytes += info.Size()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("storage: stats %s: %w", c, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
