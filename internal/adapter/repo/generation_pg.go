package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository on PostgreSQL
// through the marker-checked SQL runner.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepositoryPG creates a repository backed by PostgreSQL.
func NewGenerationRepositoryPG(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Migrate creates the generations table when missing.
func (r *GenerationRepositoryPG) Migrate(ctx context.Context) error {
	_, err := r.sql.Exec(ctx, sqlinline.QCreateGenerationsSchema)
	return err
}

func (r *GenerationRepositoryPG) Create(ctx context.Context, g *domain.Generation) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGeneration,
		g.ID,
		string(g.Type),
		g.Prompt,
		nullableText(g.SystemContext),
		nullableText(g.Storyboard),
		nullableText(g.NegativePrompt),
		nullableText(g.Model),
		nullableText(g.AspectRatio),
		nullableInt(g.Duration),
		string(g.Status),
		g.Progress,
		g.CreatedAt,
	)
	return err
}

func (r *GenerationRepositoryPG) UpdateByID(ctx context.Context, id string, patch domain.GenerationPatch) (domain.Transition, bool, error) {
	return r.update(ctx, sqlinline.QUpdateGenerationByID, id, patch)
}

func (r *GenerationRepositoryPG) UpdateByTaskID(ctx context.Context, taskID string, patch domain.GenerationPatch) (domain.Transition, bool, error) {
	return r.update(ctx, sqlinline.QUpdateGenerationByTaskID, taskID, patch)
}

func (r *GenerationRepositoryPG) update(ctx context.Context, query, key string, patch domain.GenerationPatch) (domain.Transition, bool, error) {
	row := r.sql.QueryRow(ctx, query, append([]any{key}, patchArgs(patch)...)...)
	var (
		t          domain.Transition
		kind, prev string
		current    string
	)
	if err := row.Scan(&t.ID, &kind, &t.Prompt, &prev, &current); err != nil {
		if infra.IsNoRows(err) {
			return domain.Transition{}, false, nil
		}
		return domain.Transition{}, false, err
	}
	t.Type = domain.GenerationType(kind)
	t.Previous = domain.Status(prev)
	t.Current = domain.Status(current)
	return t, true, nil
}

func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	return r.getOne(ctx, sqlinline.QSelectGenerationByID, id)
}

func (r *GenerationRepositoryPG) GetByTaskID(ctx context.Context, taskID string) (*domain.Generation, error) {
	return r.getOne(ctx, sqlinline.QSelectGenerationByTaskID, taskID)
}

func (r *GenerationRepositoryPG) getOne(ctx context.Context, query string, args ...any) (*domain.Generation, error) {
	g, err := scanGenerationPG(r.sql.QueryRow(ctx, query, args...))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *GenerationRepositoryPG) ListNonTerminal(ctx context.Context, limit int) ([]domain.Generation, error) {
	return r.list(ctx, sqlinline.QListNonTerminalGenerations, clampLimit(limit))
}

func (r *GenerationRepositoryPG) ListTasks(ctx context.Context, limit int) ([]domain.Generation, error) {
	return r.list(ctx, sqlinline.QListVideoTasks, clampLimit(limit))
}

func (r *GenerationRepositoryPG) ListPendingTaskIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListPendingVideoTaskIDs, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, err
		}
		out = append(out, taskID)
	}
	return out, rows.Err()
}

func (r *GenerationRepositoryPG) List(ctx context.Context, filter domain.GenerationFilter) (*domain.GenerationPage, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	typ := nullableText(string(filter.Type))
	status := nullableText(string(filter.Status))
	search := nullableText(filter.Search)

	var total int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountGenerations, typ, status, search).Scan(&total); err != nil {
		return nil, err
	}
	items, err := r.list(ctx, sqlinline.QListGenerations, typ, status, search, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	return &domain.GenerationPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (r *GenerationRepositoryPG) Stats(ctx context.Context) (*domain.GenerationStats, error) {
	var stats domain.GenerationStats
	if err := r.sql.QueryRow(ctx, sqlinline.QGenerationStats).Scan(&stats.TotalVideos, &stats.TotalImages, &stats.Completed); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *GenerationRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Generation, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Generation
	for rows.Next() {
		g, err := scanGenerationPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func scanGenerationPG(row pgx.Row) (*domain.Generation, error) {
	var (
		g                           domain.Generation
		kind, status                string
		systemContext, storyboard   *string
		negativePrompt, model       *string
		aspectRatio, taskID         *string
		resultPath, resultURL       *string
		thumbnailPath, errorMessage *string
		duration                    *int
		apiResponse                 []byte
		createdAt, updatedAt        time.Time
	)
	if err := row.Scan(
		&g.ID,
		&kind,
		&g.Prompt,
		&systemContext,
		&storyboard,
		&negativePrompt,
		&model,
		&aspectRatio,
		&duration,
		&status,
		&g.Progress,
		&taskID,
		&resultPath,
		&resultURL,
		&thumbnailPath,
		&apiResponse,
		&errorMessage,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	g.Type = domain.GenerationType(kind)
	g.Status = domain.Status(status)
	g.SystemContext = deref(systemContext)
	g.Storyboard = deref(storyboard)
	g.NegativePrompt = deref(negativePrompt)
	g.Model = deref(model)
	g.AspectRatio = deref(aspectRatio)
	if duration != nil {
		g.Duration = *duration
	}
	g.TaskID = deref(taskID)
	g.ResultPath = deref(resultPath)
	g.ResultURL = deref(resultURL)
	g.ThumbnailPath = deref(thumbnailPath)
	g.ErrorMessage = deref(errorMessage)
	if len(apiResponse) > 0 {
		g.RawAPIResponse = json.RawMessage(apiResponse)
	}
	g.CreatedAt = createdAt
	g.UpdatedAt = updatedAt
	return &g, nil
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
