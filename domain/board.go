package domain

// Board groups a flat task list by column. Membership is derived from each
// task's status on every call; nothing is stored per column.
type Board struct {
	tasks []Task
}

// NewBoard wraps tasks in store order.
func NewBoard(tasks []Task) Board {
	return Board{tasks: tasks}
}

// TasksInColumn returns the tasks whose status equals s, preserving order.
func (b Board) TasksInColumn(s Status) []Task {
	out := make([]Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if t.Status == s {
			out = append(out, t)
		}
	}
	return out
}

// CountInColumn returns len(TasksInColumn(s)).
func (b Board) CountInColumn(s Status) int {
	n := 0
	for _, t := range b.tasks {
		if t.Status == s {
			n++
		}
	}
	return n
}

// Len returns the total number of tasks, including ones no column shows.
func (b Board) Len() int {
	return len(b.tasks)
}

// Placed returns the number of tasks that belong to some column.
func (b Board) Placed() int {
	n := 0
	for _, t := range b.tasks {
		if t.Status.Valid() {
			n++
		}
	}
	return n
}

// Find looks a task up by id.
func (b Board) Find(id int64) (Task, bool) {
	for _, t := range b.tasks {
		if t.ID != nil && *t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
