// Package recorder turns user intents (create, edit, delete) into a record
// write plus a queue entry, committed as one unit.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erauner12/todosync/internal/localstore"
	"github.com/erauner12/todosync/internal/syncx"
	"github.com/google/uuid"
)

var ErrEmptyTitle = errors.New("title must not be empty")

// Store is the part of the local store the recorder writes through
type Store interface {
	Get(ctx context.Context, id string) (*localstore.Record, error)
	ApplyLocalMutation(ctx context.Context, m localstore.LocalMutation) (*localstore.QueueEntry, error)
}

// IDFunc generates record ids
type IDFunc func() (string, error)

// NewTimeID returns a time-ordered UUIDv7 string
func NewTimeID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Recorder is the only writer of user mutations
type Recorder struct {
	store Store
	newID IDFunc
	now   func() int64
}

// New creates a Recorder that assigns UUIDv7 ids
func New(store Store) *Recorder {
	return &Recorder{store: store, newID: NewTimeID, now: syncx.NowMs}
}

// WithIDFunc replaces the id generator
func (r *Recorder) WithIDFunc(fn IDFunc) *Recorder {
	r.newID = fn
	return r
}

// Create records a new todo with status pending and enqueues an INSERT
func (r *Recorder) Create(ctx context.Context, title string) (*localstore.Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generating id: %w", err)
	}

	rec := localstore.Record{
		ID:          id,
		Title:       title,
		Status:      syncx.StatusPending,
		UpdatedAtMs: r.now(),
	}
	if _, err := r.store.ApplyLocalMutation(ctx, localstore.LocalMutation{Operation: syncx.OpInsert, Record: rec}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update changes the title of an existing todo and enqueues an UPDATE
func (r *Recorder) Update(ctx context.Context, id, title string) (*localstore.Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.Title = title
	rec.Status = syncx.StatusPending
	rec.UpdatedAtMs = r.now()
	if _, err := r.store.ApplyLocalMutation(ctx, localstore.LocalMutation{Operation: syncx.OpUpdate, Record: *rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a todo locally and enqueues a DELETE
func (r *Recorder) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	_, err := r.store.ApplyLocalMutation(ctx, localstore.LocalMutation{
		Operation: syncx.OpDelete,
		Record:    localstore.Record{ID: id},
	})
	return err
}
