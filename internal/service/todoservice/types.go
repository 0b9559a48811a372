package todoservice

import (
	"context"

	"github.com/erauner12/todosync/internal/syncx"
)

// Repository persists the authoritative todo set.
// Upsert and Delete must be idempotent: re-applying the same input leaves
// the stored state unchanged.
type Repository interface {
	List(ctx context.Context) ([]syncx.Todo, error)
	Upsert(ctx context.Context, t syncx.Todo) error
	Delete(ctx context.Context, id string) error
}

// MutationError wraps mutation failures caused by the request itself
type MutationError struct {
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	return e.Message
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
