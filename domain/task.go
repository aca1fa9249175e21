package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a task. Each status is also a board column.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Valid reports whether s is one of the three board statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// Task represents a single board item as served by the Task Store.
type Task struct {
	ID          *int64     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// HasID reports whether the task has been persisted.
func (t Task) HasID() bool {
	return t.ID != nil
}

// IDValue returns the task id, or zero for an unsaved task.
func (t Task) IDValue() int64 {
	if t.ID == nil {
		return 0
	}
	return *t.ID
}

// Input returns the writable fields of the task.
func (t Task) Input() TaskInput {
	return TaskInput{Title: t.Title, Description: t.Description, Status: t.Status}
}

// Clone returns a deep copy so callers can mutate pointers freely.
func (t Task) Clone() Task {
	out := t
	if t.ID != nil {
		id := *t.ID
		out.ID = &id
	}
	if t.CreatedAt != nil {
		ts := *t.CreatedAt
		out.CreatedAt = &ts
	}
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		out.UpdatedAt = &ts
	}
	return out
}

// TaskInput is the body of a create or full-replacement update.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// NewTaskInput returns the empty add-task form.
func NewTaskInput() TaskInput {
	return TaskInput{Status: StatusTodo}
}

// Complete reports whether both title and description hold non-whitespace text.
func (in TaskInput) Complete() bool {
	return !Blank(in.Title) && !Blank(in.Description)
}

// Blank reports whether s is empty after trimming whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
