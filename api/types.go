package api

import (
	"github.com/saquibalam09/kanban/board"
	"github.com/saquibalam09/kanban/storage"
)

// Queries is the shared task list the handlers read. *storage.Queries
// implements it.
type Queries interface {
	board.TaskQueries
	State() storage.State
	Subscribe() chan struct{}
	Unsubscribe(chan struct{})
}

// Options configures the board routes.
type Options struct {
	Sessions      *Sessions
	Queries       Queries
	SessionSecret string
	// Secure marks the session cookie as HTTPS only.
	Secure bool
}
