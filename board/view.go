package board

import (
	"context"

	"github.com/saquibalam09/kanban/domain"
)

// ColumnView is one rendered lane.
type ColumnView struct {
	domain.Column
	Count int           `json:"count"`
	Tasks []domain.Task `json:"tasks"`
}

// View is everything the presentation layer needs to draw the board.
type View struct {
	Columns         []ColumnView     `json:"columns"`
	Form            domain.TaskInput `json:"form"`
	Editing         *domain.Task     `json:"editing,omitempty"`
	PendingDeleteID *int64           `json:"pendingDeleteId,omitempty"`
	DraggingID      *int64           `json:"draggingId,omitempty"`
}

// View reads the task list and lays it out by column. A read failure is
// returned as is so the caller can replace the board with an error page.
func (c *Controller) View(ctx context.Context) (View, error) {
	tasks, err := c.queries.Tasks(ctx)
	if err != nil {
		return View{}, err
	}
	return c.layout(domain.NewBoard(tasks)), nil
}

func (c *Controller) layout(b domain.Board) View {
	cols := domain.Columns()
	v := View{Columns: make([]ColumnView, 0, len(cols))}
	for _, col := range cols {
		v.Columns = append(v.Columns, ColumnView{
			Column: col,
			Count:  b.CountInColumn(col.Status),
			Tasks:  b.TasksInColumn(col.Status),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v.Form = c.form
	if c.editing != nil {
		scratch := c.editing.Clone()
		v.Editing = &scratch
	}
	if c.pendingDelete != nil {
		v.PendingDeleteID = domain.Int64(*c.pendingDelete)
	}
	if c.dragging != nil && c.dragging.ID != nil {
		v.DraggingID = domain.Int64(*c.dragging.ID)
	}
	return v
}

// Column returns the lane for status, if the view has one.
func (v View) Column(status domain.Status) (ColumnView, bool) {
	for _, col := range v.Columns {
		if col.Status == status {
			return col, true
		}
	}
	return ColumnView{}, false
}
