package domain

import "context"

// GenerationRepository persists generation records. Updates are atomic: the
// previous status is read and the patch applied within one logical operation,
// so callers can detect a transition into completed exactly once.
type GenerationRepository interface {
	Create(ctx context.Context, g *Generation) error
	// UpdateByID returns ok=false when no record has the id.
	UpdateByID(ctx context.Context, id string, patch GenerationPatch) (Transition, bool, error)
	// UpdateByTaskID targets the most recently created record owning taskID.
	UpdateByTaskID(ctx context.Context, taskID string, patch GenerationPatch) (Transition, bool, error)
	GetByID(ctx context.Context, id string) (*Generation, error)
	// GetByTaskID breaks ties by the most recent created_at.
	GetByTaskID(ctx context.Context, taskID string) (*Generation, error)
	ListNonTerminal(ctx context.Context, limit int) ([]Generation, error)
	// ListPendingTaskIDs returns distinct task ids of non-terminal video records.
	ListPendingTaskIDs(ctx context.Context, limit int) ([]string, error)
	ListTasks(ctx context.Context, limit int) ([]Generation, error)
	List(ctx context.Context, filter GenerationFilter) (*GenerationPage, error)
	Stats(ctx context.Context) (*GenerationStats, error)
}
