// Package taskstore is a reference implementation of the Task Store the board
// talks to: a small REST resource over tasks with integer ids.
package taskstore

import (
	"context"
	"errors"

	"github.com/saquibalam09/kanban/domain"
)

// ErrNotFound is returned when no task has the requested id.
var ErrNotFound = errors.New("task not found")

// Repository persists tasks. Create assigns the id and created_at; Update
// sets updated_at and keeps created_at.
type Repository interface {
	List(ctx context.Context) ([]domain.Task, error)
	Get(ctx context.Context, id int64) (domain.Task, error)
	Create(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	Update(ctx context.Context, id int64, in domain.TaskInput) (domain.Task, error)
	Delete(ctx context.Context, id int64) error
}
