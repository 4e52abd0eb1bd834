// Package records is the typed access layer over generation records. It is
// the only writer of the record store and the place where completion events
// originate.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/notify"
)

// Options configures a Store.
type Options struct {
	Repository domain.GenerationRepository
	Sink       notify.Sink
	Logger     *infra.Logger
	Now        func() time.Time
}

// Store wraps a GenerationRepository with id assignment, timestamps and
// completion notification.
type Store struct {
	repo   domain.GenerationRepository
	sink   notify.Sink
	logger *infra.Logger
	now    func() time.Time
}

// NewStore builds a Store. A nil sink discards events.
func NewStore(opts Options) *Store {
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo:   opts.Repository,
		sink:   sink,
		logger: infra.OrDiscard(opts.Logger),
		now:    now,
	}
}

// Create inserts a new processing record and returns its id.
func (s *Store) Create(ctx context.Context, params domain.GenerationParams) (string, error) {
	if !params.Type.Valid() {
		return "", domain.ErrInvalidKind
	}
	now := s.now().UTC()
	g := &domain.Generation{
		ID:             uuid.NewString(),
		Type:           params.Type,
		Prompt:         strings.TrimSpace(params.Prompt),
		SystemContext:  params.SystemContext,
		Storyboard:     params.Storyboard,
		NegativePrompt: params.NegativePrompt,
		Model:          params.Model,
		AspectRatio:    params.AspectRatio,
		Duration:       params.Duration,
		Status:         domain.StatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return "", fmt.Errorf("records: create: %w", err)
	}
	return g.ID, nil
}

// UpdateByID applies patch to the record with id. It reports false when no
// such record exists.
func (s *Store) UpdateByID(ctx context.Context, id string, patch domain.GenerationPatch) (bool, error) {
	t, ok, err := s.repo.UpdateByID(ctx, id, patch)
	if err != nil {
		return false, fmt.Errorf("records: update %s: %w", id, err)
	}
	if ok {
		s.emit(ctx, t)
	}
	return ok, nil
}

// UpdateByTaskID applies patch to the most recent record owning taskID.
func (s *Store) UpdateByTaskID(ctx context.Context, taskID string, patch domain.GenerationPatch) (bool, error) {
	t, ok, err := s.repo.UpdateByTaskID(ctx, taskID, patch)
	if err != nil {
		return false, fmt.Errorf("records: update task %s: %w", taskID, err)
	}
	if ok {
		s.emit(ctx, t)
	}
	return ok, nil
}

func (s *Store) emit(ctx context.Context, t domain.Transition) {
	if !t.Completed() {
		return
	}
	ev := notify.Event{ID: t.ID, Type: t.Type, Prompt: t.Prompt, At: s.now().UTC()}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("generation_id", t.ID).Msg("records: completion event not delivered")
	}
}

// GetByID returns the record and whether it exists.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Generation, bool, error) {
	return found(s.repo.GetByID(ctx, id))
}

// GetByTaskID returns the most recent record owning taskID.
func (s *Store) GetByTaskID(ctx context.Context, taskID string) (*domain.Generation, bool, error) {
	return found(s.repo.GetByTaskID(ctx, taskID))
}

func found(g *domain.Generation, err error) (*domain.Generation, bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("records: get: %w", err)
	}
	return g, true, nil
}

func (s *Store) ListNonTerminal(ctx context.Context, limit int) ([]domain.Generation, error) {
	return s.repo.ListNonTerminal(ctx, limit)
}

func (s *Store) ListPendingTaskIDs(ctx context.Context, limit int) ([]string, error) {
	return s.repo.ListPendingTaskIDs(ctx, limit)
}

func (s *Store) ListTasks(ctx context.Context, limit int) ([]domain.Generation, error) {
	return s.repo.ListTasks(ctx, limit)
}

func (s *Store) List(ctx context.Context, filter domain.GenerationFilter) (*domain.GenerationPage, error) {
	return s.repo.List(ctx, filter)
}

func (s *Store) Stats(ctx context.Context) (*domain.GenerationStats, error) {
	return s.repo.Stats(ctx)
}
