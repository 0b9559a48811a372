// Package todoservice holds the remote endpoint's business logic: applying
// pushed mutations to the authoritative todo set and listing it for pulls.
package todoservice

import (
	"context"
	"fmt"

	"github.com/erauner12/todosync/internal/syncx"
	"github.com/rs/zerolog/log"
)

// Service encapsulates the remote todo operations
type Service struct {
	Repo Repository
}

// NewService creates a Service over repo
func NewService(repo Repository) *Service {
	return &Service{Repo: repo}
}

// List returns the complete record set
func (s *Service) List(ctx context.Context) ([]syncx.Todo, error) {
	todos, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	if todos == nil {
		todos = []syncx.Todo{}
	}
	return todos, nil
}

// Apply applies one pushed mutation.
// INSERT and UPDATE are insert-or-replace by id; DELETE is delete-if-exists.
// Stored records are marked synced: once the remote holds a record there is
// nothing left to push for it.
// Invalid input yields a *MutationError.
func (s *Service) Apply(ctx context.Context, m syncx.Mutation) error {
	logger := log.Ctx(ctx).With().Str("op", string(m.Operation)).Logger()

	todo, err := m.Validate()
	if err != nil {
		logger.Warn().Err(err).Msg("rejecting invalid mutation")
		return &MutationError{Message: err.Error(), Err: err}
	}

	switch m.Operation {
	case syncx.OpDelete:
		if err := s.Repo.Delete(ctx, todo.ID); err != nil {
			return fmt.Errorf("deleting %s: %w", todo.ID, err)
		}
	default:
		todo.Status = syncx.StatusSynced
		if err := s.Repo.Upsert(ctx, todo); err != nil {
			return fmt.Errorf("upserting %s: %w", todo.ID, err)
		}
	}

	logger.Debug().Str("id", todo.ID).Msg("mutation applied")
	return nil
}
