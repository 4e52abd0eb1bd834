package lifecycle

import (
	"context"
	"errors"
	"time"

	"studio/internal/domain"
	"studio/internal/storage"
)

// Snapshot is the caller-facing view of one status check.
type Snapshot struct {
	TaskID    string        `json:"task_id"`
	Status    domain.Status `json:"status"`
	Progress  int           `json:"progress"`
	ResultURL string        `json:"result_url,omitempty"`
	LocalPath string        `json:"local_path,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Terminal reports whether polling for the task is over.
func (s Snapshot) Terminal() bool { return s.Status.IsTerminal() }

func snapshotOf(g *domain.Generation) Snapshot {
	return Snapshot{
		TaskID:    g.TaskID,
		Status:    g.Status,
		Progress:  g.Progress,
		ResultURL: g.ResultURL,
		LocalPath: g.ResultPath,
		Error:     g.ErrorMessage,
	}
}

// ensurePolling starts a poller for taskID unless one is already running.
func (c *Coordinator) ensurePolling(taskID, apiKey string) bool {
	if taskID == "" {
		return false
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	if !c.registry.claim(taskID, cancel) {
		cancel()
		return false
	}
	c.wg.Add(1)
	c.metrics.activePollers.Add(1)
	go c.run(ctx, cancel, taskID, apiKey)
	return true
}

// run ticks until the task is terminal, the coordinator closes or the
// optional max duration elapses. Transient errors are logged and retried on
// the next tick.
func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, taskID, apiKey string) {
	defer c.wg.Done()
	defer c.metrics.activePollers.Add(-1)
	defer c.registry.release(taskID)
	defer cancel()

	log := c.logger.With().Str("task_id", taskID).Logger()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if c.maxDuration > 0 {
		timer := time.NewTimer(c.maxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	attempts := 0
	stalled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			c.metrics.abandoned.Add(1)
			log.Warn().Int("attempts", attempts).Msg("poller: max duration reached, no longer watching")
			return
		case <-ticker.C:
		}

		snap, err := c.check(ctx, taskID, apiKey)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("poller: status check failed")
			continue
		}
		if snap.Terminal() {
			log.Info().Str("status", string(snap.Status)).Str("path", snap.LocalPath).Msg("poller: task finished")
			return
		}
		attempts++
		if !stalled && c.stallAfter > 0 && attempts >= c.stallAfter {
			stalled = true
			c.metrics.stalled.Add(1)
			log.Warn().Int("attempts", attempts).Str("status", string(snap.Status)).Msg("poller: task still not finished")
		}
	}
}

// check performs one tick of the poller state machine.
func (c *Coordinator) check(ctx context.Context, taskID, apiKey string) (Snapshot, error) {
	rec, found, err := c.store.GetByTaskID(ctx, taskID)
	if err != nil {
		return Snapshot{}, &domain.PollError{TaskID: taskID, Err: err}
	}
	if found {
		switch {
		case rec.Status == domain.StatusCompleted && storage.Verified(rec.ResultPath):
			return snapshotOf(rec), nil
		case rec.Status == domain.StatusFailed:
			return snapshotOf(rec), nil
		case rec.Status == domain.StatusCompleted:
			c.logger.Warn().Str("task_id", taskID).Str("path", rec.ResultPath).Msg("poller: completed artifact missing on disk, fetching again")
		}
	}

	c.metrics.polls.Add(1)
	st, err := c.api.QueryVideo(ctx, apiKey, taskID)
	if err != nil {
		c.metrics.pollErrors.Add(1)
		return Snapshot{}, &domain.PollError{TaskID: taskID, Err: err}
	}

	snap := Snapshot{TaskID: taskID, Status: st.Status, Progress: st.Progress, ResultURL: st.ResultURL}
	if !found {
		// Nothing owns the task: report the remote state without persisting
		// or downloading anything.
		if st.Status == domain.StatusFailed {
			snap.Error = st.Message
		}
		return snap, nil
	}
	switch {
	case st.Status == domain.StatusCompleted && st.ResultURL != "":
		if err := c.persist(ctx, taskID, domain.GenerationPatch{
			Progress:       domain.IntPtr(st.Progress),
			RawAPIResponse: st.Raw,
		}); err != nil {
			return Snapshot{}, err
		}
		return c.complete(ctx, taskID, st.ResultURL, st.Raw)

	case st.Status == domain.StatusCompleted:
		// A completed status without a URL leaves nothing to download yet.
		c.logger.Warn().Str("task_id", taskID).Msg("poller: provider reported completion without a result url")
		snap.Status = domain.StatusProcessing
		if err := c.persist(ctx, taskID, domain.GenerationPatch{
			Progress:       domain.IntPtr(st.Progress),
			RawAPIResponse: st.Raw,
		}); err != nil {
			return Snapshot{}, err
		}
		return snap, nil

	case st.Status == domain.StatusFailed:
		msg := st.Message
		if msg == "" {
			msg = defaultProviderFailed
		}
		failure := &domain.ProviderFailure{TaskID: taskID, Message: msg}
		if err := c.persist(ctx, taskID, domain.GenerationPatch{
			Status:         domain.StatusPtr(domain.StatusFailed),
			Progress:       domain.IntPtr(st.Progress),
			ErrorMessage:   domain.StringPtr(failure.Error()),
			RawAPIResponse: st.Raw,
		}); err != nil {
			return Snapshot{}, err
		}
		c.metrics.failed.Add(1)
		snap.Error = failure.Error()
		return snap, nil

	default:
		if err := c.persist(ctx, taskID, domain.GenerationPatch{
			Status:         domain.StatusPtr(st.Status),
			Progress:       domain.IntPtr(st.Progress),
			RawAPIResponse: st.Raw,
		}); err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	}
}

func (c *Coordinator) persist(ctx context.Context, taskID string, patch domain.GenerationPatch) error {
	if _, err := c.store.UpdateByTaskID(ctx, taskID, patch); err != nil {
		return &domain.PollError{TaskID: taskID, Err: err}
	}
	return nil
}

// complete downloads the artifact and records the outcome. The re-check of an
// existing file, the transfer and the final write all happen inside the
// shared in-flight operation for taskID, so concurrent callers cause one
// download and observe one outcome. That operation runs under the
// coordinator's context: a caller that gives up stops waiting for it but does
// not abort it.
func (c *Coordinator) complete(ctx context.Context, taskID, resultURL string, raw []byte) (Snapshot, error) {
	path, shared, err := c.registry.download(ctx, taskID, func() (string, error) {
		ctx := c.baseCtx
		rec, found, err := c.store.GetByTaskID(ctx, taskID)
		if err != nil {
			return "", &domain.PollError{TaskID: taskID, Err: err}
		}
		if found && rec.Status == domain.StatusCompleted && storage.Verified(rec.ResultPath) {
			return rec.ResultPath, nil
		}

		var sources []string
		if found {
			sources = []string{rec.Prompt, rec.Storyboard, rec.SystemContext}
		}
		name := storage.ArtifactName(taskID, ".mp4", c.now(), sources...)
		path, dlErr := c.downloader.Download(ctx, resultURL, storage.CategoryVideos, name)
		if dlErr != nil {
			if ctx.Err() != nil {
				c.metrics.abandoned.Add(1)
				return "", ctx.Err()
			}
			if _, err := c.store.UpdateByTaskID(ctx, taskID, domain.GenerationPatch{
				Status:          domain.StatusPtr(domain.StatusFailed),
				ResultURL:       domain.StringPtr(resultURL),
				ErrorMessage:    domain.StringPtr(dlErr.Error()),
				RevokeCompleted: true,
			}); err != nil {
				return "", &domain.PollError{TaskID: taskID, Err: err}
			}
			c.metrics.failed.Add(1)
			return "", dlErr
		}

		if _, err := c.store.UpdateByTaskID(ctx, taskID, domain.GenerationPatch{
			Status:         domain.StatusPtr(domain.StatusCompleted),
			Progress:       domain.IntPtr(100),
			ResultURL:      domain.StringPtr(resultURL),
			ResultPath:     domain.StringPtr(path),
			RawAPIResponse: raw,
		}); err != nil {
			return "", &domain.PollError{TaskID: taskID, Err: err}
		}
		c.metrics.downloads.Add(1)
		c.metrics.completed.Add(1)
		return path, nil
	})
	if shared {
		c.metrics.sharedDownloads.Add(1)
	}

	var dlErr *domain.DownloadError
	switch {
	case err == nil:
		return Snapshot{TaskID: taskID, Status: domain.StatusCompleted, Progress: 100, ResultURL: resultURL, LocalPath: path}, nil
	case errors.As(err, &dlErr):
		return Snapshot{TaskID: taskID, Status: domain.StatusFailed, ResultURL: resultURL, Error: dlErr.Error()}, nil
	default:
		return Snapshot{}, err
	}
}
