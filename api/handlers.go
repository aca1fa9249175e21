package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/saquibalam09/kanban/board"
	"github.com/saquibalam09/kanban/codec"
	"github.com/saquibalam09/kanban/domain"
)

// intentFunc applies one user intent to the session's controller.
type intentFunc func(ctx context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error)

// Register wires up the board page, the JSON intents and the event stream on
// the provided Echo instance.
func Register(e *echo.Echo, opts Options, logger *log.Logger) {
	e.JSONSerializer = codec.JSONSerializer{}
	e.Renderer = NewRenderer()
	e.GET("/healthz", healthz(opts.Queries))

	g := e.Group("",
		middleware.BodyLimit(fmt.Sprintf("%dB", intentMaxSize)),
		session.Middleware(newCookieStore(opts.SessionSecret, opts.Secure)),
		SessionMiddleware(opts.Sessions),
	)
	g.GET("/", page(logger))
	g.GET("/api/board", getBoard(logger))
	g.GET("/api/events", streamEvents(opts.Queries, logger))

	routes := []struct {
		method string
		path   string
		fn     intentFunc
	}{
		{http.MethodPut, "/api/form", setForm},
		{http.MethodPost, "/api/tasks", addTask},
		{http.MethodPost, "/api/tasks/:id/edit", openEdit},
		{http.MethodPut, "/api/edit", updateEdit},
		{http.MethodPost, "/api/edit/save", saveEdit},
		{http.MethodPost, "/api/edit/cancel", cancelEdit},
		{http.MethodPost, "/api/tasks/:id/delete", requestDelete},
		{http.MethodPost, "/api/delete/confirm", confirmDelete},
		{http.MethodPost, "/api/delete/cancel", cancelDelete},
		{http.MethodPost, "/api/tasks/:id/drag", startDrag},
		{http.MethodPost, "/api/drop/:status", drop},
		{http.MethodPost, "/api/drag/end", endDrag},
		{http.MethodPut, "/api/tasks/:id/status", moveTask(opts.Queries)},
	}
	for _, r := range routes {
		g.Add(r.method, r.path, intent(r.path, logger, r.fn))
	}
}

func healthz(queries Queries) echo.HandlerFunc {
	return func(c echo.Context) error {
		st := queries.State()
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "ok",
			"tasksLoaded": st.Loaded,
		})
	}
}

func page(logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "/")
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		vs := currentSession(c)
		view, loadErr := vs.ctrl.View(ctx)
		if loadErr != nil {
			metrics.SetErrorStage("load")
			err = c.Render(http.StatusBadGateway, boardTemplate, pageData{Error: errorMessage(loadErr)})
			return err
		}
		metrics.SetTasksShown(countTasks(view))
		renderStart := time.Now()
		err = c.Render(http.StatusOK, boardTemplate, pageData{
			Board:   view,
			Form:    view.Form,
			Columns: domain.Columns(),
		})
		metrics.ObserveRender(time.Since(renderStart))
		if err != nil {
			metrics.SetErrorStage("render")
		}
		return err
	}
}

func getBoard(logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, "/api/board")
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		vs := currentSession(c)
		view, loadErr := vs.ctrl.View(ctx)
		if loadErr != nil {
			metrics.SetErrorStage("load")
			err = c.JSON(http.StatusBadGateway, boardResponse{Error: errorMessage(loadErr)})
			return err
		}
		metrics.SetTasksShown(countTasks(view))
		err = c.JSON(http.StatusOK, boardResponse{Board: &view})
		return err
	}
}

// intent runs fn and answers with its outcome and the board as it stands
// afterwards. Outcomes are reported with 200; only malformed requests fail.
func intent(route string, logger *log.Logger, fn intentFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, route)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		vs := currentSession(c)
		outcome, reqErr := fn(ctx, c, vs.ctrl)
		if reqErr != nil {
			metrics.SetErrorStage("request")
			var he *echo.HTTPError
			if errors.As(reqErr, &he) {
				err = c.JSON(he.Code, errorResponse{Error: fmt.Sprint(he.Message)})
				return err
			}
			return reqErr
		}
		metrics.SetOutcome(outcome)

		resp := intentResponse{Outcome: outcome.String()}
		renderStart := time.Now()
		view, loadErr := vs.ctrl.View(ctx)
		metrics.ObserveRender(time.Since(renderStart))
		if loadErr != nil {
			metrics.SetErrorStage("load")
			resp.Error = errorMessage(loadErr)
		} else {
			metrics.SetTasksShown(countTasks(view))
			resp.Board = &view
		}
		err = c.JSON(http.StatusOK, resp)
		return err
	}
}

func setForm(_ context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	var req taskInputRequest
	if err := c.Bind(&req); err != nil {
		return board.Skipped, err
	}
	ctrl.SetForm(req.apply(ctrl.Form()))
	return board.Applied, nil
}

// addTask submits the body merged over the stored form. An empty body
// submits the stored form as is.
func addTask(ctx context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	var req taskInputRequest
	if err := c.Bind(&req); err != nil {
		return board.Skipped, err
	}
	return ctrl.Add(ctx, req.apply(ctrl.Form())), nil
}

func openEdit(ctx context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	id, err := taskIDParam(c)
	if err != nil {
		return board.Skipped, err
	}
	return ctrl.OpenEdit(ctx, id), nil
}

func updateEdit(_ context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	var req taskInputRequest
	if err := c.Bind(&req); err != nil {
		return board.Skipped, err
	}
	scratch, ok := ctrl.Editing()
	if !ok {
		return board.Skipped, nil
	}
	return ctrl.UpdateScratch(req.apply(scratch.Input())), nil
}

func saveEdit(ctx context.Context, _ echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	return ctrl.SaveEdit(ctx), nil
}

func cancelEdit(_ context.Context, _ echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	ctrl.CancelEdit()
	return board.Applied, nil
}

func requestDelete(_ context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	id, err := taskIDParam(c)
	if err != nil {
		return board.Skipped, err
	}
	return ctrl.RequestDelete(id), nil
}

func confirmDelete(ctx context.Context, _ echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	return ctrl.ConfirmDelete(ctx), nil
}

func cancelDelete(_ context.Context, _ echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	ctrl.CancelDelete()
	return board.Applied, nil
}

func startDrag(ctx context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	id, err := taskIDParam(c)
	if err != nil {
		return board.Skipped, err
	}
	return ctrl.StartDrag(ctx, id), nil
}

// drop moves the dragged task onto the column. A body naming the task
// starts the drag first when the drag intent has not been seen yet.
func drop(ctx context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	var req dropRequest
	if err := c.Bind(&req); err != nil {
		return board.Skipped, err
	}
	if req.ID != nil {
		if t, ok := ctrl.Dragging(); !ok || t.IDValue() != *req.ID {
			ctrl.StartDrag(ctx, *req.ID)
		}
	}
	return ctrl.Drop(ctx, statusParam(c.Param("status"))), nil
}

func endDrag(_ context.Context, _ echo.Context, ctrl *board.Controller) (board.Outcome, error) {
	ctrl.EndDrag()
	return board.Applied, nil
}

// moveTask changes a task's column without a drag gesture, using the last
// fetched copy of the task.
func moveTask(queries Queries) intentFunc {
	return func(ctx context.Context, c echo.Context, ctrl *board.Controller) (board.Outcome, error) {
		id, err := taskIDParam(c)
		if err != nil {
			return board.Skipped, err
		}
		var req moveRequest
		if err := c.Bind(&req); err != nil {
			return board.Skipped, err
		}
		tasks, err := queries.Tasks(ctx)
		if err != nil {
			return board.Skipped, nil
		}
		t, ok := domain.NewBoard(tasks).Find(id)
		if !ok {
			return board.Skipped, nil
		}
		return ctrl.Move(ctx, t, statusParam(string(req.Status))), nil
	}
}

func taskIDParam(c echo.Context) (int64, error) {
	id, ok := parseTaskID(c.Param("id"))
	if !ok {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return id, nil
}

func statusParam(raw string) domain.Status {
	return domain.Status(strings.ToUpper(strings.TrimSpace(raw)))
}

func countTasks(v board.View) int {
	n := 0
	for _, col := range v.Columns {
		n += col.Count
	}
	return n
}
