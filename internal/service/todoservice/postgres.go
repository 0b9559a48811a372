package todoservice

import (
	"context"

	"github.com/erauner12/todosync/internal/syncx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PGRepository stores todos in PostgreSQL (see db.EnsureSchema)
type PGRepository struct {
	DB *pgxpool.Pool
}

// NewPGRepository creates a PGRepository
func NewPGRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{DB: db}
}

// List returns todos ordered by creation time, then id
func (r *PGRepository) List(ctx context.Context) ([]syncx.Todo, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, title, status, created_at_ms, updated_at_ms
		FROM todo
		ORDER BY created_at_ms, id
	`)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to query todos")
		return nil, err
	}
	defer rows.Close()

	todos := make([]syncx.Todo, 0)
	for rows.Next() {
		var t syncx.Todo
		var status string
		if err := rows.Scan(&t.ID, &t.Title, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = syncx.Status(status)
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// Upsert inserts or replaces the todo by id.
// created_at is set on first insert only, so replays leave the row unchanged.
func (r *PGRepository) Upsert(ctx context.Context, t syncx.Todo) error {
	createdAt := t.CreatedAt
	if createdAt == 0 {
		createdAt = t.UpdatedAt
	}

	_, err := r.DB.Exec(ctx, `
		INSERT INTO todo (id, title, status, created_at_ms, updated_at_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title         = EXCLUDED.title,
			status        = EXCLUDED.status,
			updated_at_ms = EXCLUDED.updated_at_ms
	`, t.ID, t.Title, string(t.Status), createdAt, t.UpdatedAt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("id", t.ID).Msg("failed to upsert todo")
	}
	return err
}

// Delete removes the todo if present
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM todo WHERE id = $1`, id)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("id", id).Msg("failed to delete todo")
	}
	return err
}
