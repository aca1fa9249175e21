// Package board turns user intents on the kanban board into Task Store
// mutations. The board itself is never patched locally: every successful
// mutation invalidates the shared task list and the next read refetches it.
package board

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/saquibalam09/kanban/domain"
)

// TaskStore is the write side of the remote Task Store.
type TaskStore interface {
	CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, in domain.TaskInput) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// TaskQueries is the cached read side of the Task Store.
type TaskQueries interface {
	Tasks(ctx context.Context) ([]domain.Task, error)
	Invalidate(ctx context.Context)
}

// Outcome reports what an intent did.
type Outcome int

const (
	// Skipped means a precondition did not hold and nothing was sent.
	Skipped Outcome = iota
	// Applied means the intent took effect.
	Applied
	// Failed means the Task Store rejected the mutation.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// Controller holds one viewer's ephemeral board state: the add form, the
// edit scratch copy, the task being dragged and the task pending deletion.
// It is safe for concurrent use.
type Controller struct {
	store    TaskStore
	queries  TaskQueries
	notifier Notifier
	logger   *log.Logger
	closed   atomic.Bool

	mu            sync.Mutex
	form          domain.TaskInput
	editing       *domain.Task
	dragging      *domain.Task
	pendingDelete *int64
}

// New creates a controller. notifier may be nil.
func New(store TaskStore, queries TaskQueries, notifier Notifier, logger *log.Logger) *Controller {
	if store == nil || queries == nil {
		panic("board.New: store and queries are required")
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	if logger == nil {
		logger = log.New()
	}
	return &Controller{
		store:    store,
		queries:  queries,
		notifier: notifier,
		logger:   logger,
		form:     domain.NewTaskInput(),
	}
}

// Form returns the add-task form.
func (c *Controller) Form() domain.TaskInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// SetForm replaces the add-task form contents.
func (c *Controller) SetForm(in domain.TaskInput) {
	c.mu.Lock()
	c.form = in
	c.mu.Unlock()
}

// Add creates a task from in. Incomplete input is ignored without notice.
// The form is reset as soon as the input is accepted.
func (c *Controller) Add(ctx context.Context, in domain.TaskInput) Outcome {
	if !in.Complete() {
		return Skipped
	}
	if in.Status == "" {
		in.Status = domain.StatusTodo
	}

	c.mu.Lock()
	c.form = domain.NewTaskInput()
	c.mu.Unlock()

	_, err := c.store.CreateTask(ctx, in)
	return c.complete(ctx, opAdd, 0, err)
}

// SubmitForm adds the task currently held in the form.
func (c *Controller) SubmitForm(ctx context.Context) Outcome {
	return c.Add(ctx, c.Form())
}

// OpenEdit snapshots the task into a scratch copy. Changes to the scratch
// copy are invisible to the board until SaveEdit succeeds.
func (c *Controller) OpenEdit(ctx context.Context, id int64) Outcome {
	t, ok := c.lookup(ctx, id)
	if !ok {
		return Skipped
	}
	scratch := t.Clone()

	c.mu.Lock()
	c.editing = &scratch
	c.mu.Unlock()
	return Applied
}

// Editing returns a copy of the scratch task, if an edit is open.
func (c *Controller) Editing() (domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return domain.Task{}, false
	}
	return c.editing.Clone(), true
}

// UpdateScratch overwrites the editable fields of the scratch copy.
func (c *Controller) UpdateScratch(in domain.TaskInput) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return Skipped
	}
	c.editing.Title = in.Title
	c.editing.Description = in.Description
	if in.Status != "" {
		c.editing.Status = in.Status
	}
	return Applied
}

// SaveEdit sends the scratch copy as a full replacement. When the scratch
// copy is incomplete the edit stays open and nothing is sent.
func (c *Controller) SaveEdit(ctx context.Context) Outcome {
	c.mu.Lock()
	if c.editing == nil || !c.editing.HasID() || !c.editing.Input().Complete() {
		c.mu.Unlock()
		return Skipped
	}
	scratch := c.editing.Clone()
	c.editing = nil
	c.mu.Unlock()

	id := scratch.IDValue()
	_, err := c.store.UpdateTask(ctx, id, scratch.Input())
	return c.complete(ctx, opUpdate, id, err)
}

// CancelEdit discards the scratch copy.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editing = nil
	c.mu.Unlock()
}

// RequestDelete marks a task for deletion. Nothing is sent until ConfirmDelete.
func (c *Controller) RequestDelete(id int64) Outcome {
	c.mu.Lock()
	c.pendingDelete = domain.Int64(id)
	c.mu.Unlock()
	return Applied
}

// PendingDelete returns the id awaiting confirmation.
func (c *Controller) PendingDelete() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingDelete == nil {
		return 0, false
	}
	return *c.pendingDelete, true
}

// ConfirmDelete deletes the pending task.
func (c *Controller) ConfirmDelete(ctx context.Context) Outcome {
	c.mu.Lock()
	if c.pendingDelete == nil {
		c.mu.Unlock()
		return Skipped
	}
	id := *c.pendingDelete
	c.pendingDelete = nil
	c.mu.Unlock()

	err := c.store.DeleteTask(ctx, id)
	return c.complete(ctx, opDelete, id, err)
}

// CancelDelete clears the pending deletion.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.pendingDelete = nil
	c.mu.Unlock()
}

// StartDrag remembers the client-side copy of the task being dragged. Tasks
// with an unrecognized status are not on any column and cannot be dragged.
func (c *Controller) StartDrag(ctx context.Context, id int64) Outcome {
	t, ok := c.lookup(ctx, id)
	if !ok || !t.Status.Valid() {
		return Skipped
	}
	dragged := t.Clone()

	c.mu.Lock()
	c.dragging = &dragged
	c.mu.Unlock()
	return Applied
}

// Dragging returns the task being dragged.
func (c *Controller) Dragging() (domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dragging == nil {
		return domain.Task{}, false
	}
	return c.dragging.Clone(), true
}

// EndDrag clears the drag state without moving anything.
func (c *Controller) EndDrag() {
	c.mu.Lock()
	c.dragging = nil
	c.mu.Unlock()
}

// Drop moves the dragged task onto column.
func (c *Controller) Drop(ctx context.Context, column domain.Status) Outcome {
	c.mu.Lock()
	dragged := c.dragging
	c.dragging = nil
	c.mu.Unlock()

	if dragged == nil {
		return Skipped
	}
	return c.Move(ctx, *dragged, column)
}

// Move sends t with only its status replaced by column. Title and
// description are taken from t as the client last saw it; they are not
// re-read from the Task Store first, so a concurrent edit made elsewhere
// is overwritten.
func (c *Controller) Move(ctx context.Context, t domain.Task, column domain.Status) Outcome {
	if !column.Valid() || !t.HasID() || t.Status == column {
		return Skipped
	}
	in := t.Input()
	in.Status = column

	id := t.IDValue()
	_, err := c.store.UpdateTask(ctx, id, in)
	return c.complete(ctx, opUpdate, id, err)
}

// Close tears the controller down. Mutations still in flight complete, but
// their notifications are dropped.
func (c *Controller) Close() {
	c.closed.Store(true)
	c.mu.Lock()
	c.editing = nil
	c.dragging = nil
	c.pendingDelete = nil
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	return c.closed.Load()
}

func (c *Controller) lookup(ctx context.Context, id int64) (domain.Task, bool) {
	tasks, err := c.queries.Tasks(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("task_id", id).Debug("board: task lookup failed")
		return domain.Task{}, false
	}
	return domain.NewBoard(tasks).Find(id)
}

func (c *Controller) complete(ctx context.Context, op operation, id int64, err error) Outcome {
	if err != nil {
		entry := c.logger.WithError(err).WithField("op", op.name)
		if id != 0 {
			entry = entry.WithField("task_id", id)
		}
		entry.Error(op.failure)
		if !c.closed.Load() {
			c.notifier.Notify(failureNotification(op))
		}
		return Failed
	}

	// The task list is shared by every viewer, so it is invalidated even
	// when this controller has been closed meanwhile.
	c.queries.Invalidate(context.WithoutCancel(ctx))
	if !c.closed.Load() {
		c.notifier.Notify(successNotification(op))
	}
	return Applied
}
