package api

import (
	"github.com/saquibalam09/kanban/board"
	"github.com/saquibalam09/kanban/domain"
)

const intentMaxSize = 16 * 1024 // 16 KiB

const unknownErrorMessage = "An unknown error occurred"

// taskInputRequest is the body of the add, form and edit intents. Fields left
// out of the body are left unchanged where the intent patches existing input.
type taskInputRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *domain.Status `json:"status"`
}

func (r taskInputRequest) apply(in domain.TaskInput) domain.TaskInput {
	if r.Title != nil {
		in.Title = *r.Title
	}
	if r.Description != nil {
		in.Description = *r.Description
	}
	if r.Status != nil {
		in.Status = *r.Status
	}
	return in
}

// PUT /api/tasks/:id/status request body
type moveRequest struct {
	Status domain.Status `json:"status"`
}

// POST /api/drop/:status request body, optional
type dropRequest struct {
	ID *int64 `json:"id"`
}

// boardResponse is the client-facing snapshot of the board.
type boardResponse struct {
	Loading bool        `json:"loading"`
	Board   *board.View `json:"board,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// intentResponse answers every user intent.
type intentResponse struct {
	Outcome string      `json:"outcome"`
	Board   *board.View `json:"board,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return unknownErrorMessage
	}
	return err.Error()
}
