package handlers

import (
	"net/http"
)

// StorageStats reports file count and size per artifact category.
func (a *App) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Files.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var files, bytes int64
	for _, s := range stats {
		files += int64(s.Files)
		bytes += s.Bytes
	}
	a.json(w, http.StatusOK, map[string]any{
		"base_path":   a.Files.BasePath(),
		"categories":  stats,
		"total_files": files,
		"total_bytes": bytes,
	})
}
