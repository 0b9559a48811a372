package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erauner12/todosync/internal/syncx"
)

// Record is the local copy of a todo item
type Record struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Status      syncx.Status `json:"status"`
	UpdatedAtMs int64        `json:"updated_at"`
}

// Todo converts the record to its wire form
func (r Record) Todo() syncx.Todo {
	return syncx.Todo{
		ID:        r.ID,
		Title:     r.Title,
		Status:    r.Status,
		UpdatedAt: r.UpdatedAtMs,
	}
}

// RecordFromTodo converts a remote todo into a local record
func RecordFromTodo(t syncx.Todo) Record {
	return Record{
		ID:          t.ID,
		Title:       t.Title,
		Status:      t.Status,
		UpdatedAtMs: t.UpdatedAt,
	}
}

// Put inserts or replaces a record by id
func (s *Store) Put(ctx context.Context, r Record) error {
	if err := putRecord(ctx, s.db, r); err != nil {
		return err
	}
	return nil
}

// Get returns the record with the given id or ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, updated_at_ms FROM todos WHERE id = ?`, id,
	).Scan(&r.ID, &r.Title, &r.Status, &r.UpdatedAtMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	return &r, nil
}

// ListAll returns every local record ordered by id
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, updated_at_ms FROM todos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Title, &r.Status, &r.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// SetStatus updates only the status of a record.
// An absent id is a no-op: the record may have been deleted concurrently.
func (s *Store) SetStatus(ctx context.Context, id string, status syncx.Status) error {
	found, err := setStatus(ctx, s.db, id, status)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Debug().Str("id", id).Msg("status update skipped, record absent")
	}
	return nil
}

func setStatus(ctx context.Context, q querier, id string, status syncx.Status) (bool, error) {
	res, err := q.ExecContext(ctx, `UPDATE todos SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, fmt.Errorf("setting status of %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func putRecord(ctx context.Context, q querier, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOp)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO todos (id, title, status, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title         = excluded.title,
			status        = excluded.status,
			updated_at_ms = excluded.updated_at_ms
	`, r.ID, r.Title, string(r.Status), r.UpdatedAtMs)
	if err != nil {
		return fmt.Errorf("putting record %s: %w", r.ID, err)
	}
	return nil
}

func deleteRecord(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}
