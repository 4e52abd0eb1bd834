package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/lifecycle"
)

const (
	maxVideoForm      = 32 << 20
	maxReferenceImage = 20 << 20
)

// VideosCreate submits a video job. It accepts multipart or urlencoded
// fields plus an optional input_reference image file.
func (a *App) VideosCreate(w http.ResponseWriter, r *http.Request) {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(maxVideoForm)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid form")
		return
	}

	params := lifecycle.VideoParams{
		Prompt:         r.FormValue("prompt"),
		SystemContext:  r.FormValue("system_context"),
		Storyboard:     r.FormValue("storyboard"),
		NegativePrompt: r.FormValue("negative_prompt"),
		Model:          r.FormValue("model"),
		AspectRatio:    r.FormValue("aspect_ratio"),
	}
	if strings.TrimSpace(params.Prompt) == "" && strings.TrimSpace(params.Storyboard) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt or storyboard required")
		return
	}
	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "duration must be a non-negative integer")
			return
		}
		params.Duration = d
	}
	if r.MultipartForm != nil {
		file, _, err := r.FormFile("input_reference")
		switch {
		case err == nil:
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxReferenceImage+1))
			if err != nil {
				a.error(w, http.StatusBadRequest, "bad_request", "unreadable reference image")
				return
			}
			if len(data) > maxReferenceImage {
				a.error(w, http.StatusRequestEntityTooLarge, "too_large", "reference image too large")
				return
			}
			params.ReferenceImage = data
		case !errors.Is(err, http.ErrMissingFile):
			a.error(w, http.StatusBadRequest, "bad_request", "invalid reference image")
			return
		}
	}

	sub, err := a.Coordinator.SubmitVideo(r.Context(), a.apiKey(r), params)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, sub)
}

// VideoStatus checks a task right away instead of waiting for its poller.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if strings.TrimSpace(taskID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}
	snap, err := a.Coordinator.ForceRefresh(r.Context(), taskID, a.apiKey(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}
