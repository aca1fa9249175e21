package board

import "time"

// Kind classifies a notification for the presentation layer.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is a non-blocking, user-visible message (a toast).
type Notification struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier delivers notifications to whoever is showing the board.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type operation struct {
	name    string
	success string
	failure string
}

var (
	opAdd = operation{
		name:    "add",
		success: "Task added successfully",
		failure: "Failed to add task",
	}
	opUpdate = operation{
		name:    "update",
		success: "Task updated successfully",
		failure: "Failed to update task",
	}
	opDelete = operation{
		name:    "delete",
		success: "Task deleted successfully",
		failure: "Failed to delete task",
	}
)

func successNotification(op operation) Notification {
	return Notification{Kind: KindSuccess, Title: "Success", Message: op.success, Time: time.Now()}
}

func failureNotification(op operation) Notification {
	return Notification{Kind: KindError, Title: "Error", Message: op.failure, Time: time.Now()}
}
