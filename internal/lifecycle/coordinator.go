// Package lifecycle owns submitted generation jobs from submission until a
// terminal state: it starts pollers, resumes them after a restart, and makes
// sure every completed artifact is downloaded exactly once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/providers/genapi"
	"studio/internal/records"
	"studio/internal/storage"
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultResumeLimit    = 500
	defaultImageFetches   = 4
	defaultProviderFailed = "video generation failed"
)

// RemoteAPI is the subset of the generation API client the coordinator uses.
type RemoteAPI interface {
	SubmitImage(ctx context.Context, apiKey string, req genapi.ImageRequest) (*genapi.ImageResult, error)
	SubmitVideo(ctx context.Context, apiKey string, req genapi.VideoRequest) (*genapi.Submission, error)
	QueryVideo(ctx context.Context, apiKey, taskID string) (*genapi.TaskStatus, error)
}

// Options configures a Coordinator.
type Options struct {
	Store       *records.Store
	API         RemoteAPI
	Files       *storage.FileStore
	Downloader  *storage.Downloader
	Thumbnailer *storage.Thumbnailer
	Logger      *infra.Logger

	PollInterval       time.Duration
	PollMaxDuration    time.Duration
	StallAfterAttempts int
	ImageFetches       int
	Now                func() time.Time
}

// Coordinator is the single owner of in-flight jobs.
type Coordinator struct {
	store       *records.Store
	api         RemoteAPI
	files       *storage.FileStore
	downloader  *storage.Downloader
	thumbnailer *storage.Thumbnailer
	logger      *infra.Logger

	interval     time.Duration
	maxDuration  time.Duration
	stallAfter   int
	imageFetches int
	now          func() time.Time

	registry *registry
	metrics  Metrics
	baseCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewCoordinator validates opts and builds a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("lifecycle: record store is required")
	case opts.API == nil:
		return nil, errors.New("lifecycle: remote api is required")
	case opts.Files == nil:
		return nil, errors.New("lifecycle: file store is required")
	case opts.Downloader == nil:
		return nil, errors.New("lifecycle: downloader is required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	fetches := opts.ImageFetches
	if fetches <= 0 {
		fetches = defaultImageFetches
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		store:        opts.Store,
		api:          opts.API,
		files:        opts.Files,
		downloader:   opts.Downloader,
		thumbnailer:  opts.Thumbnailer,
		logger:       infra.OrDiscard(opts.Logger),
		interval:     interval,
		maxDuration:  opts.PollMaxDuration,
		stallAfter:   opts.StallAfterAttempts,
		imageFetches: fetches,
		now:          now,
		registry:     newRegistry(),
		baseCtx:      ctx,
		stop:         stop,
	}, nil
}

// Metrics returns a copy of the poller counters.
func (c *Coordinator) Metrics() MetricsSnapshot { return c.metrics.Snapshot() }

// Active lists task ids that currently have a poller.
func (c *Coordinator) Active() []string { return c.registry.active() }

// VideoParams are the caller inputs of a video job.
type VideoParams struct {
	Prompt         string
	SystemContext  string
	Storyboard     string
	NegativePrompt string
	Model          string
	AspectRatio    string
	Duration       int
	ReferenceImage []byte
}

// VideoSubmission is returned as soon as the remote API accepted the job.
type VideoSubmission struct {
	ID     string        `json:"id"`
	TaskID string        `json:"task_id"`
	Status domain.Status `json:"status"`
}

// SubmitVideo creates the record, submits the job and starts its poller. When
// submission fails the record is marked failed and a *domain.SubmissionError
// is returned.
func (c *Coordinator) SubmitVideo(ctx context.Context, apiKey string, p VideoParams) (*VideoSubmission, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ErrMissingCredential
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = genapi.DefaultVideoModel
	}
	id, err := c.store.Create(ctx, domain.GenerationParams{
		Type:           domain.GenerationTypeVideo,
		Prompt:         p.Prompt,
		SystemContext:  p.SystemContext,
		Storyboard:     p.Storyboard,
		NegativePrompt: p.NegativePrompt,
		Model:          model,
		AspectRatio:    p.AspectRatio,
		Duration:       p.Duration,
	})
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("generation_id", id).Str("kind", string(domain.GenerationTypeVideo)).Logger()

	sub, err := c.api.SubmitVideo(ctx, apiKey, genapi.VideoRequest{
		Model:          model,
		Prompt:         p.Prompt,
		SystemContext:  p.SystemContext,
		Storyboard:     p.Storyboard,
		NegativePrompt: p.NegativePrompt,
		AspectRatio:    p.AspectRatio,
		Duration:       p.Duration,
		ReferenceImage: p.ReferenceImage,
	})
	if err != nil {
		c.markFailed(ctx, id, err.Error())
		log.Error().Err(err).Msg("coordinator: video submission failed")
		return nil, &domain.SubmissionError{GenerationID: id, Kind: domain.GenerationTypeVideo, Err: err}
	}

	status := sub.Status
	patch := domain.GenerationPatch{
		TaskID:         domain.StringPtr(sub.TaskID),
		Progress:       domain.IntPtr(sub.Progress),
		RawAPIResponse: sub.Raw,
	}
	switch status {
	case domain.StatusFailed:
		patch.ErrorMessage = domain.StringPtr(defaultProviderFailed)
	case domain.StatusCompleted, genapi.StatusUnknown:
		// completed is only recorded next to a downloaded file
		status = domain.StatusProcessing
	}
	patch.Status = domain.StatusPtr(status)
	if _, err := c.store.UpdateByID(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("coordinator: persist submission: %w", err)
	}
	log.Info().Str("task_id", sub.TaskID).Str("status", string(status)).Msg("coordinator: video submitted")

	if status == domain.StatusFailed {
		c.metrics.failed.Add(1)
	} else {
		c.ensurePolling(sub.TaskID, apiKey)
	}
	return &VideoSubmission{ID: id, TaskID: sub.TaskID, Status: status}, nil
}

// ResumeAll starts a poller for every non-terminal video task that has none.
// It returns how many pollers were started; an empty credential starts none.
func (c *Coordinator) ResumeAll(ctx context.Context, apiKey string) (int, error) {
	if strings.TrimSpace(apiKey) == "" {
		return 0, nil
	}
	ids, err := c.store.ListPendingTaskIDs(ctx, defaultResumeLimit)
	if err != nil {
		return 0, fmt.Errorf("coordinator: list pending tasks: %w", err)
	}
	started := 0
	for _, id := range ids {
		if c.ensurePolling(id, apiKey) {
			started++
		}
	}
	c.logger.Info().Int("pending", len(ids)).Int("started", started).Msg("coordinator: resumed pending tasks")
	return started, nil
}

// ForceRefresh checks taskID immediately instead of waiting for the next
// tick. A transient failure of the check is reported through the snapshot of
// the stored record when one exists. A poller is started only for a task
// owned by a non-terminal record.
func (c *Coordinator) ForceRefresh(ctx context.Context, taskID, apiKey string) (Snapshot, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Snapshot{}, errors.New("coordinator: task id required")
	}
	snap, err := c.check(ctx, taskID, apiKey)
	if err != nil {
		var pollErr *domain.PollError
		if !errors.As(err, &pollErr) {
			return Snapshot{}, err
		}
		rec, ok, getErr := c.store.GetByTaskID(ctx, taskID)
		if getErr != nil || !ok {
			return Snapshot{}, err
		}
		snap = snapshotOf(rec)
		snap.Error = pollErr.Error()
		return snap, nil
	}
	if snap.Terminal() || strings.TrimSpace(apiKey) == "" {
		return snap, nil
	}
	rec, ok, err := c.store.GetByTaskID(ctx, taskID)
	if err != nil {
		c.logger.Warn().Err(err).Str("task_id", taskID).Msg("coordinator: owner lookup failed, not polling")
		return snap, nil
	}
	if ok && !rec.Status.IsTerminal() {
		c.ensurePolling(taskID, apiKey)
	}
	return snap, nil
}

// Close stops every poller and waits for them to exit or ctx to end.
func (c *Coordinator) Close(ctx context.Context) error {
	c.registry.close()
	c.stop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) markFailed(ctx context.Context, id, message string) {
	if _, err := c.store.UpdateByID(ctx, id, domain.GenerationPatch{
		Status:       domain.StatusPtr(domain.StatusFailed),
		ErrorMessage: domain.StringPtr(message),
	}); err != nil {
		c.logger.Error().Err(err).Str("generation_id", id).Msg("coordinator: could not mark record failed")
		return
	}
	c.metrics.failed.Add(1)
}
