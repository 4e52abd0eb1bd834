package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generations (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  prompt TEXT NOT NULL DEFAULT '',
  system_context TEXT,
  storyboard TEXT,
  negative_prompt TEXT,
  model TEXT,
  aspect_ratio TEXT,
  duration INTEGER,
  status TEXT NOT NULL DEFAULT 'pending',
  progress INTEGER NOT NULL DEFAULT 0,
  task_id TEXT,
  result_path TEXT,
  result_url TEXT,
  thumbnail_path TEXT,
  api_response TEXT,
  error_message TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS generations_task_id_idx ON generations (task_id, created_at DESC);
CREATE INDEX IF NOT EXISTS generations_status_idx ON generations (status, created_at DESC);
`

const generationColumns = `id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration,
       status, progress, task_id, result_path, result_url, thumbnail_path, api_response, error_message,
       created_at, updated_at`

const updateGenerationSQLite = `UPDATE generations
   SET status = CASE
         WHEN status = 'completed' AND ?9 THEN COALESCE(?1, status)
         WHEN status IN ('completed', 'failed') THEN status
         ELSE COALESCE(?1, status)
       END,
       progress = COALESCE(?2, progress),
       task_id = COALESCE(?3, task_id),
       result_path = CASE WHEN status = 'completed' AND ?9 THEN NULL ELSE COALESCE(?4, result_path) END,
       result_url = COALESCE(?5, result_url),
       thumbnail_path = COALESCE(?6, thumbnail_path),
       api_response = COALESCE(?7, api_response),
       error_message = CASE WHEN status = 'completed' AND NOT ?9 THEN error_message ELSE COALESCE(?8, error_message) END,
       updated_at = ?10
 WHERE id = ?11`

// GenerationRepositorySQLite implements domain.GenerationRepository on the
// embedded SQLite database used by the desktop build.
type GenerationRepositorySQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewGenerationRepositorySQLite wraps db and ensures the schema exists.
func NewGenerationRepositorySQLite(ctx context.Context, db *sql.DB) (*GenerationRepositorySQLite, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create generations schema: %w", err)
	}
	return &GenerationRepositorySQLite{db: db, now: time.Now}, nil
}

func (r *GenerationRepositorySQLite) Create(ctx context.Context, g *domain.Generation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO generations (id, type, prompt, system_context, storyboard, negative_prompt, model, aspect_ratio, duration, status, progress, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		g.CreatedAt.UnixMilli(),
		g.UpdatedAt.UnixMilli(),
	)
	return err
}

func (r *GenerationRepositorySQLite) UpdateByID(ctx context.Context, id string, patch domain.GenerationPatch) (domain.Transition, bool, error) {
	return r.update(ctx, `SELECT id, type, prompt, status FROM generations WHERE id = ?`, id, patch)
}

func (r *GenerationRepositorySQLite) UpdateByTaskID(ctx context.Context, taskID string, patch domain.GenerationPatch) (domain.Transition, bool, error) {
	return r.update(ctx,
		`SELECT id, type, prompt, status FROM generations WHERE task_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		taskID, patch)
}

// update reads the previous status and applies the patch in one transaction.
// A terminal status is never replaced, except completed under
// patch.RevokeCompleted.
func (r *GenerationRepositorySQLite) update(ctx context.Context, selectQuery, key string, patch domain.GenerationPatch) (domain.Transition, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transition{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		t          domain.Transition
		kind, prev string
	)
	if err := tx.QueryRowContext(ctx, selectQuery, key).Scan(&t.ID, &kind, &t.Prompt, &prev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Transition{}, false, nil
		}
		return domain.Transition{}, false, err
	}
	args := append(patchArgs(patch), r.now().UnixMilli(), t.ID)
	if _, err := tx.ExecContext(ctx, updateGenerationSQLite, args...); err != nil {
		return domain.Transition{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Transition{}, false, err
	}

	t.Type = domain.GenerationType(kind)
	t.Previous = domain.Status(prev)
	t.Current = t.Previous
	revoked := patch.RevokeCompleted && t.Previous == domain.StatusCompleted
	if patch.Status != nil && (!t.Previous.IsTerminal() || revoked) {
		t.Current = *patch.Status
	}
	return t, true, nil
}

func (r *GenerationRepositorySQLite) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	return r.getOne(row)
}

func (r *GenerationRepositorySQLite) GetByTaskID(ctx context.Context, taskID string) (*domain.Generation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE task_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		taskID)
	return r.getOne(row)
}

func (r *GenerationRepositorySQLite) getOne(row *sql.Row) (*domain.Generation, error) {
	g, err := scanGenerationSQLite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *GenerationRepositorySQLite) ListNonTerminal(ctx context.Context, limit int) ([]domain.Generation, error) {
	return r.list(ctx,
		`SELECT `+generationColumns+` FROM generations
          WHERE status NOT IN ('completed', 'failed')
          ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		clampLimit(limit))
}

func (r *GenerationRepositorySQLite) ListTasks(ctx context.Context, limit int) ([]domain.Generation, error) {
	return r.list(ctx,
		`SELECT `+generationColumns+` FROM generations
          WHERE type = 'video'
          ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		clampLimit(limit))
}

func (r *GenerationRepositorySQLite) ListPendingTaskIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT task_id FROM generations
          WHERE type = 'video'
            AND COALESCE(task_id, '') <> ''
            AND status NOT IN ('completed', 'failed')
          GROUP BY task_id
          ORDER BY MAX(created_at) DESC
          LIMIT ?`,
		clampLimit(limit))
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

func (r *GenerationRepositorySQLite) List(ctx context.Context, filter domain.GenerationFilter) (*domain.GenerationPage, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, "prompt LIKE ?")
		args = append(args, "%"+search+"%")
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations`+where, args...).Scan(&total); err != nil {
		return nil, err
	}
	items, err := r.list(ctx,
		`SELECT `+generationColumns+` FROM generations`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, err
	}
	return &domain.GenerationPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (r *GenerationRepositorySQLite) Stats(ctx context.Context) (*domain.GenerationStats, error) {
	var stats domain.GenerationStats
	err := r.db.QueryRowContext(ctx,
		`SELECT
           COALESCE(SUM(CASE WHEN type = 'video' THEN 1 ELSE 0 END), 0),
           COALESCE(SUM(CASE WHEN type = 'image' THEN 1 ELSE 0 END), 0),
           COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
         FROM generations`,
	).Scan(&stats.TotalVideos, &stats.TotalImages, &stats.Completed)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *GenerationRepositorySQLite) list(ctx context.Context, query string, args ...any) ([]domain.Generation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Generation
	for rows.Next() {
		g, err := scanGenerationSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGenerationSQLite(row rowScanner) (*domain.Generation, error) {
	var (
		g                           domain.Generation
		kind, status                string
		systemContext, storyboard   sql.NullString
		negativePrompt, model       sql.NullString
		aspectRatio, taskID         sql.NullString
		resultPath, resultURL       sql.NullString
		thumbnailPath, errorMessage sql.NullString
		apiResponse                 sql.NullString
		duration                    sql.NullInt64
		createdMs, updatedMs        int64
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
		&createdMs,
		&updatedMs,
	); err != nil {
		return nil, err
	}
	g.Type = domain.GenerationType(kind)
	g.Status = domain.Status(status)
	g.SystemContext = systemContext.String
	g.Storyboard = storyboard.String
	g.NegativePrompt = negativePrompt.String
	g.Model = model.String
	g.AspectRatio = aspectRatio.String
	g.Duration = int(duration.Int64)
	g.TaskID = taskID.String
	g.ResultPath = resultPath.String
	g.ResultURL = resultURL.String
	g.ThumbnailPath = thumbnailPath.String
	g.ErrorMessage = errorMessage.String
	if apiResponse.Valid && apiResponse.String != "" {
		g.RawAPIResponse = json.RawMessage(apiResponse.String)
	}
	g.CreatedAt = time.UnixMilli(createdMs)
	g.UpdatedAt = time.UnixMilli(updatedMs)
	return &g, nil
}

var _ domain.GenerationRepository = (*GenerationRepositorySQLite)(nil)
