package todoservice

import (
	"context"
	"sort"
	"sync"

	"github.com/erauner12/todosync/internal/syncx"
)

// MemoryRepository keeps todos in process memory
type MemoryRepository struct {
	mu    sync.RWMutex
	todos map[string]syncx.Todo
}

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{todos: make(map[string]syncx.Todo)}
}

// List returns todos ordered by creation time, then id
func (r *MemoryRepository) List(ctx context.Context) ([]syncx.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]syncx.Todo, 0, len(r.todos))
	for _, t := range r.todos {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Upsert replaces the todo by id, keeping the first seen created_at
func (r *MemoryRepository) Upsert(ctx context.Context, t syncx.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.todos[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt == 0 {
		t.CreatedAt = t.UpdatedAt
	}
	r.todos[t.ID] = t
	return nil
}

// Delete removes the todo if present
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.todos, id)
	return nil
}
