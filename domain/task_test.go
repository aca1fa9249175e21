package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalOmitsMissingID(t *testing.T) {
	task := Task{Title: "Title", Description: "d", Status: StatusTodo}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if strings.Contains(string(payload), "\"id\"") {
		t.Fatalf("expected id to be omitted, got %s", payload)
	}
	if strings.Contains(string(payload), "created_at") {
		t.Fatalf("expected created_at to be omitted, got %s", payload)
	}
}

func TestTaskUnmarshalStoreRecord(t *testing.T) {
	raw := `{"id":7,"title":"Buy milk","description":"2%","status":"IN_PROGRESS","created_at":"2024-03-01T10:00:00Z"}`

	var task Task
	if err := sonic.Unmarshal([]byte(raw), &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if !task.HasID() || task.IDValue() != 7 {
		t.Fatalf("unexpected id: %#v", task.ID)
	}
	if task.Status != StatusInProgress {
		t.Fatalf("unexpected status: %q", task.Status)
	}
	if task.CreatedAt == nil || !task.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %v", task.CreatedAt)
	}
}

func TestStatusValid(t *testing.T) {
	tests := []struct {
		status Status
		valid  bool
	}{
		{StatusTodo, true},
		{StatusInProgress, true},
		{StatusDone, true},
		{"BLOCKED", false},
		{"todo", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.valid {
			t.Fatalf("Status(%q).Valid() = %v, want %v", tt.status, got, tt.valid)
		}
	}
}

func TestTaskInputComplete(t *testing.T) {
	tests := []struct {
		name  string
		input TaskInput
		want  bool
	}{
		{name: "filled", input: TaskInput{Title: "Buy milk", Description: "2%"}, want: true},
		{name: "empty title", input: TaskInput{Description: "2%"}, want: false},
		{name: "empty description", input: TaskInput{Title: "Buy milk"}, want: false},
		{name: "both empty", input: TaskInput{}, want: false},
		{name: "whitespace title", input: TaskInput{Title: " \t", Description: "x"}, want: false},
		{name: "whitespace description", input: TaskInput{Title: "x", Description: "\n "}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.Complete(); got != tt.want {
				t.Fatalf("Complete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTaskInputDefaultsToTodo(t *testing.T) {
	in := NewTaskInput()
	if in.Title != "" || in.Description != "" || in.Status != StatusTodo {
		t.Fatalf("unexpected default form: %+v", in)
	}
}

func TestTaskCloneDetachesPointers(t *testing.T) {
	now := time.Now()
	orig := Task{ID: Int64(3), Title: "a", CreatedAt: &now}
	cp := orig.Clone()
	*cp.ID = 99
	*cp.CreatedAt = now.Add(time.Hour)

	if *orig.ID != 3 {
		t.Fatalf("clone shares id pointer")
	}
	if !orig.CreatedAt.Equal(now) {
		t.Fatalf("clone shares created_at pointer")
	}
}

func TestColumnsOrderAndLabels(t *testing.T) {
	cols := Columns()
	want := []struct {
		status Status
		label  string
	}{
		{StatusTodo, "To Do"},
		{StatusInProgress, "In Progress"},
		{StatusDone, "Done"},
	}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for i, w := range want {
		if cols[i].Status != w.status || cols[i].Label != w.label {
			t.Fatalf("column %d = %+v, want %s/%s", i, cols[i], w.status, w.label)
		}
		if cols[i].Color == "" || cols[i].Icon == "" {
			t.Fatalf("column %d missing visual treatment: %+v", i, cols[i])
		}
	}

	cols[0].Label = "changed"
	if Columns()[0].Label != "To Do" {
		t.Fatalf("Columns must return a copy")
	}
	if _, ok := ColumnFor("ARCHIVED"); ok {
		t.Fatalf("unexpected column for unknown status")
	}
}
