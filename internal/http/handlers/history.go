package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/lifecycle"
	"studio/pkg/zip"
)

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.GenerationFilter{
		Type:   domain.GenerationType(strings.TrimSpace(q.Get("type"))),
		Status: domain.Status(strings.TrimSpace(q.Get("status"))),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "type must be image or video")
		return
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	page, err := a.Records.List(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, page)
}

func (a *App) HistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Records.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, stats)
}

func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	g, ok, err := a.Records.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	a.json(w, http.StatusOK, g)
}

// HistoryArchive streams a zip of every local artifact of a record.
func (a *App) HistoryArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, ok, err := a.Records.GetByID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	paths := lifecycle.ArtifactPaths(g)
	if len(paths) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "record has no local artifacts")
		return
	}
	assets := make([]zip.Asset, 0, len(paths))
	for _, p := range paths {
		assets = append(assets, zip.Asset{Path: p})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=generation-%s.zip", g.ID))
	w.WriteHeader(http.StatusOK)
	if n, err := zip.WriteArchive(w, assets); err != nil {
		a.logger().Error().Err(err).Str("generation_id", g.ID).Int("written", n).Msg("handlers: archive aborted")
	}
}
