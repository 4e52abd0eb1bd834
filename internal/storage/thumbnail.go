package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	defaultThumbnailWidth = 320
	thumbnailQuality      = 82
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".bmp": true, ".webp": true,
}

// IsImageFile reports whether filename has an image extension.
func IsImageFile(filename string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Thumbnailer writes JPEG previews of image artifacts.
type Thumbnailer struct {
	store *FileStore
	width int
}

// NewThumbnailer builds a Thumbnailer producing previews at most width pixels
// on their longer side.
func NewThumbnailer(store *FileStore, width int) *Thumbnailer {
	if width <= 0 {
		width = defaultThumbnailWidth
	}
	return &Thumbnailer{store: store, width: width}
}

// Generate renders a preview of srcPath into the thumbnails category and
// returns its path.
func (t *Thumbnailer) Generate(ctx context.Context, srcPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("storage: open image: %w", err)
	}
	thumb := imaging.Fit(img, t.width, t.width, imaging.Lanczos)

	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	name := stem + "_thumb.jpg"
	tmp, err := t.store.createTemp(CategoryThumbnails, name)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if err := imaging.Encode(tmp, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("storage: close thumbnail: %w", err)
	}
	return t.store.commit(tmpPath, CategoryThumbnails, name)
}
