package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"studio/internal/domain"
	"studio/internal/lifecycle"
)

type imageGenerateRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspect_ratio"`
	NumImages      int    `json:"num_images"`
}

// ImagesGenerate runs an image job synchronously.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}
	res, err := a.Coordinator.SubmitImage(r.Context(), a.apiKey(r), lifecycle.ImageParams{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		AspectRatio:    req.AspectRatio,
		NumImages:      req.NumImages,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoArtifacts) && res != nil {
			a.json(w, http.StatusBadGateway, errorBody{Error: errorDetail{
				Code: "no_artifacts", Message: domain.ErrNoArtifacts.Error(), ID: res.ID,
			}})
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
