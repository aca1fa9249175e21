package domain

// Column describes how a status lane is presented.
type Column struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Icon   string `json:"icon"`
}

var columns = [...]Column{
	{Status: StatusTodo, Label: "To Do", Color: "blue-600", Icon: "clipboard-list"},
	{Status: StatusInProgress, Label: "In Progress", Color: "orange-500", Icon: "loader-pinwheel"},
	{Status: StatusDone, Label: "Done", Color: "green-600", Icon: "check-circle"},
}

// Columns returns the board columns in display order.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns[:])
	return out
}

// ColumnFor returns the column for a status.
func ColumnFor(s Status) (Column, bool) {
	for _, c := range columns {
		if c.Status == s {
			return c, true
		}
	}
	return Column{}, false
}
