// Package zip streams local artifact files into a zip archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Asset is one file to include. Filename is the name inside the archive; it
// defaults to the base name of Path.
type Asset struct {
	Filename string
	Path     string
}

// WriteArchive writes assets to w as a zip archive and returns how many were
// included. Files that no longer exist on disk are skipped; any other error
// aborts the archive.
func WriteArchive(w io.Writer, assets []Asset) (int, error) {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(assets))
	written := 0
	for _, asset := range assets {
		ok, err := addFile(zw, asset, seen)
		if err != nil {
			_ = zw.Close()
			return written, err
		}
		if ok {
			written++
		}
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("zip: finish archive: %w", err)
	}
	return written, nil
}

func addFile(zw *zip.Writer, asset Asset, seen map[string]int) (bool, error) {
	if strings.TrimSpace(asset.Path) == "" {
		return false, nil
	}
	f, err := os.Open(asset.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("zip: open %s: %w", asset.Path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("zip: stat %s: %w", asset.Path, err)
	}
	if info.IsDir() {
		return false, nil
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, err
	}
	hdr.Name = entryName(asset, seen)
	hdr.Method = zip.Deflate
	if isCompressed(hdr.Name) {
		hdr.Method = zip.Store
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return false, fmt.Errorf("zip: add %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return false, fmt.Errorf("zip: copy %s: %w", asset.Path, err)
	}
	return true, nil
}

func entryName(asset Asset, seen map[string]int) string {
	name := strings.TrimSpace(asset.Filename)
	if name == "" {
		name = filepath.Base(asset.Path)
	}
	name = filepath.ToSlash(name)
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}

func isCompressed(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return true
	}
	return false
}
