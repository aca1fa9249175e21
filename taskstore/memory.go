package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saquibalam09/kanban/domain"
)

// MemoryRepository keeps tasks in process memory. Ids start at 1 and are
// never reused.
type MemoryRepository struct {
	mu     sync.RWMutex
	tasks  map[int64]domain.Task
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tasks:  make(map[int64]domain.Task),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) List(context.Context) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IDValue() < out[j].IDValue() })
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) Create(_ context.Context, in domain.TaskInput) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	t := domain.Task{
		ID:          domain.Int64(r.nextID),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		CreatedAt:   &now,
	}
	r.tasks[r.nextID] = t
	r.nextID++
	return t.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, id int64, in domain.TaskInput) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	now := r.now()
	t.Title, t.Description, t.Status = in.Title, in.Description, in.Status
	t.UpdatedAt = &now
	r.tasks[id] = t
	return t.Clone(), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}
