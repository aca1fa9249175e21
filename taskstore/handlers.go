package taskstore

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/saquibalam09/kanban/domain"
)

const (
	msgTitleEmpty    = "Title cannot be empty"
	msgInvalidStatus = "Invalid status. Must be one of: TODO, IN_PROGRESS, DONE"
	msgNotFound      = "Task not found"
	msgDeleted       = "Task deleted successfully"
)

// taskRequest is the create and update body. Status defaults to TODO.
type taskRequest struct {
	Title       *string       `json:"title"`
	Description *string       `json:"description"`
	Status      domain.Status `json:"status"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register wires up the task resource on the provided Echo instance.
func Register(e *echo.Echo, repo Repository, logger *log.Logger) {
	g := e.Group("/api/tasks")
	g.GET("", listTasks(repo, logger))
	g.POST("", createTask(repo, logger))
	g.GET("/:id", getTask(repo, logger))
	g.PUT("/:id", updateTask(repo, logger))
	g.DELETE("/:id", deleteTask(repo, logger))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
}

func listTasks(repo Repository, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks, err := repo.List(c.Request().Context())
		if err != nil {
			return storeFailure(c, logger, "list tasks", err)
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func getTask(repo Repository, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := taskID(c)
		if !ok {
			return c.JSON(http.StatusNotFound, detailResponse{Detail: msgNotFound})
		}
		t, err := repo.Get(c.Request().Context(), id)
		if err != nil {
			return storeFailure(c, logger, "get task", err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func createTask(repo Repository, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		in, detail, status := bindTask(c)
		if detail != "" {
			return c.JSON(status, detailResponse{Detail: detail})
		}
		t, err := repo.Create(c.Request().Context(), in)
		if err != nil {
			return storeFailure(c, logger, "create task", err)
		}
		logger.WithField("task_id", t.IDValue()).Info("task created")
		return c.JSON(http.StatusOK, t)
	}
}

func updateTask(repo Repository, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := taskID(c)
		if !ok {
			return c.JSON(http.StatusNotFound, detailResponse{Detail: msgNotFound})
		}
		in, detail, status := bindTask(c)
		if detail != "" {
			return c.JSON(status, detailResponse{Detail: detail})
		}
		t, err := repo.Update(c.Request().Context(), id, in)
		if err != nil {
			return storeFailure(c, logger, "update task", err)
		}
		logger.WithField("task_id", id).Info("task updated")
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(repo Repository, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := taskID(c)
		if !ok {
			return c.JSON(http.StatusNotFound, detailResponse{Detail: msgNotFound})
		}
		if err := repo.Delete(c.Request().Context(), id); err != nil {
			return storeFailure(c, logger, "delete task", err)
		}
		logger.WithField("task_id", id).Info("task deleted")
		return c.JSON(http.StatusOK, messageResponse{Message: msgDeleted})
	}
}

// bindTask decodes and validates a task body. A non-empty detail means the
// request is rejected with the returned status.
func bindTask(c echo.Context) (domain.TaskInput, string, int) {
	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return domain.TaskInput{}, "Invalid request body", http.StatusUnprocessableEntity
	}
	if req.Title == nil || req.Description == nil {
		return domain.TaskInput{}, "title and description are required", http.StatusUnprocessableEntity
	}
	if strings.TrimSpace(*req.Title) == "" {
		return domain.TaskInput{}, msgTitleEmpty, http.StatusBadRequest
	}
	if req.Status == "" {
		req.Status = domain.StatusTodo
	}
	if !req.Status.Valid() {
		return domain.TaskInput{}, msgInvalidStatus, http.StatusBadRequest
	}
	return domain.TaskInput{Title: *req.Title, Description: *req.Description, Status: req.Status}, "", 0
}

func storeFailure(c echo.Context, logger *log.Logger, op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, detailResponse{Detail: msgNotFound})
	}
	logger.WithError(err).Errorf("%s failed", op)
	return c.JSON(http.StatusInternalServerError, detailResponse{Detail: "Failed to " + op + ": " + err.Error()})
}

func taskID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil
}
