package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	eventBoard = "board"
	eventToast = "toast"

	keepAliveInterval = 15 * time.Second
)

// streamEvents pushes the session's toasts and a fresh board snapshot after
// every change to the shared task list.
func streamEvents(queries Queries, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		vs := currentSession(c)
		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		notes := vs.notes.subscribe()
		defer vs.notes.unsubscribe(notes)
		changes := queries.Subscribe()
		defer queries.Unsubscribe(changes)
		defer func() { vs.touch(time.Now()) }()

		ctx := c.Request().Context()
		entry := logger.WithField("session", vs.id)
		if err := writeBoard(ctx, res, vs, queries); err != nil {
			entry.WithError(err).Debug("event stream closed")
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			var err error
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-notes:
				if !ok {
					return nil
				}
				err = writeEvent(res, eventToast, n)
			case <-changes:
				err = writeBoard(ctx, res, vs, queries)
			case <-ticker.C:
				_, err = res.Write([]byte(": keep-alive\n\n"))
			}
			if err != nil {
				entry.WithError(err).Debug("event stream closed")
				return nil
			}
			flusher.Flush()
		}
	}
}

// writeBoard sends a loading marker when the list has to be fetched, then the
// board or the load error.
func writeBoard(ctx context.Context, res *echo.Response, vs *viewerSession, queries Queries) error {
	if !queries.State().Loaded {
		if err := writeEvent(res, eventBoard, boardResponse{Loading: true}); err != nil {
			return err
		}
		if f, ok := res.Writer.(http.Flusher); ok {
			f.Flush()
		}
	}
	view, err := vs.ctrl.View(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return writeEvent(res, eventBoard, boardResponse{Error: errorMessage(err)})
	}
	return writeEvent(res, eventBoard, boardResponse{Board: &view})
}

func writeEvent(res *echo.Response, name string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+64)
	buf = append(buf, "id: "...)
	buf = strconv.AppendInt(buf, nextEventID(), 10)
	buf = append(buf, "\nevent: "...)
	buf = append(buf, name...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	_, err = res.Write(buf)
	return err
}
