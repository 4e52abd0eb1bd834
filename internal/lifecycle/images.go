package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/providers/genapi"
	"studio/internal/storage"
)

// ImageParams are the caller inputs of an image job.
type ImageParams struct {
	Prompt         string
	NegativePrompt string
	Model          string
	AspectRatio    string
	NumImages      int
}

// ImageSubmission is the outcome of a synchronous image job.
type ImageSubmission struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
	Images []string      `json:"images"`
}

type imageRaw struct {
	ImagePaths []string        `json:"image_paths"`
	Count      int             `json:"count"`
	Raw        json.RawMessage `json:"raw"`
}

// SubmitImage runs an image job end to end: submit, save every output and
// record the result. Outputs that cannot be saved are skipped; a job that
// saves nothing is failed.
func (c *Coordinator) SubmitImage(ctx context.Context, apiKey string, p ImageParams) (*ImageSubmission, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrMissingCredential
	}
	model := genapi.ImageModel(p.Model)
	id, err := c.store.Create(ctx, domain.GenerationParams{
		Type:           domain.GenerationTypeImage,
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Model:          model,
		AspectRatio:    p.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("generation_id", id).Str("kind", string(domain.GenerationTypeImage)).Logger()

	res, err := c.api.SubmitImage(ctx, apiKey, genapi.ImageRequest{
		Model:       model,
		Prompt:      p.Prompt,
		AspectRatio: p.AspectRatio,
		NumImages:   p.NumImages,
	})
	if err != nil {
		c.markFailed(ctx, id, err.Error())
		log.Error().Err(err).Msg("coordinator: image submission failed")
		return nil, &domain.SubmissionError{GenerationID: id, Kind: domain.GenerationTypeImage, Err: err}
	}

	paths := c.saveImages(ctx, id, res.Items)
	if len(paths) == 0 {
		c.markFailed(ctx, id, domain.ErrNoArtifacts.Error())
		log.Warn().Int("returned", len(res.Items)).Int("skipped", res.Skipped).Msg("coordinator: image job saved no files")
		return &ImageSubmission{ID: id, Status: domain.StatusFailed, Images: []string{}},
			fmt.Errorf("coordinator: image job %s: %w", id, domain.ErrNoArtifacts)
	}

	raw, err := json.Marshal(imageRaw{ImagePaths: paths, Count: len(paths), Raw: res.Raw})
	if err != nil {
		return nil, err
	}
	patch := domain.GenerationPatch{
		Status:         domain.StatusPtr(domain.StatusCompleted),
		Progress:       domain.IntPtr(100),
		ResultPath:     domain.StringPtr(paths[0]),
		RawAPIResponse: raw,
	}
	for _, item := range res.Items {
		if item.URL != "" {
			patch.ResultURL = domain.StringPtr(item.URL)
			break
		}
	}
	if c.thumbnailer != nil {
		if thumb, err := c.thumbnailer.Generate(ctx, paths[0]); err != nil {
			log.Warn().Err(err).Str("path", paths[0]).Msg("coordinator: thumbnail failed")
		} else {
			patch.ThumbnailPath = domain.StringPtr(thumb)
		}
	}
	if _, err := c.store.UpdateByID(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("coordinator: persist image result: %w", err)
	}
	c.metrics.completed.Add(1)
	log.Info().Int("count", len(paths)).Msg("coordinator: image job completed")
	return &ImageSubmission{ID: id, Status: domain.StatusCompleted, Images: paths}, nil
}

// saveImages stores every item concurrently and returns the saved paths in
// response order.
func (c *Coordinator) saveImages(ctx context.Context, id string, items []genapi.ImageItem) []string {
	saved := make([]string, len(items))
	var g errgroup.Group
	g.SetLimit(c.imageFetches)
	for i, item := range items {
		i, item := i, item
		name := fmt.Sprintf("imagen_%s_%d_%d.png", id, i, c.now().UnixMilli())
		g.Go(func() error {
			var (
				path string
				err  error
			)
			if item.URL != "" {
				path, err = c.downloader.Download(ctx, item.URL, storage.CategoryImages, name)
			} else {
				path, err = c.files.Write(ctx, storage.CategoryImages, name, item.Data)
			}
			if err != nil {
				c.logger.Warn().Err(err).Str("generation_id", id).Int("index", i).Msg("coordinator: image not saved")
				return nil
			}
			saved[i] = path
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(saved))
	for _, p := range saved {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ArtifactPaths lists the local files that belong to g: every saved image of
// an image job (or its single result), followed by the thumbnail.
func ArtifactPaths(g *domain.Generation) []string {
	var paths []string
	if g.Type == domain.GenerationTypeImage && len(g.RawAPIResponse) > 0 {
		var raw imageRaw
		if err := json.Unmarshal(g.RawAPIResponse, &raw); err == nil {
			paths = append(paths, raw.ImagePaths...)
		}
	}
	if len(paths) == 0 && g.ResultPath != "" {
		paths = append(paths, g.ResultPath)
	}
	if g.ThumbnailPath != "" {
		paths = append(paths, g.ThumbnailPath)
	}
	return paths
}
