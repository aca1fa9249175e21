package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/saquibalam09/kanban/board"
	"github.com/saquibalam09/kanban/domain"
	"github.com/saquibalam09/kanban/storage"
)

type updateCall struct {
	id int64
	in domain.TaskInput
}

type mockStore struct {
	mu      sync.Mutex
	tasks   []domain.Task
	nextID  int64
	listErr error
	err     error
	creates []domain.TaskInput
	updates []updateCall
	deletes []int64
}

func newMockStore(tasks ...domain.Task) *mockStore {
	s := &mockStore{nextID: 1}
	for _, t := range tasks {
		if t.IDValue() >= s.nextID {
			s.nextID = t.IDValue() + 1
		}
		s.tasks = append(s.tasks, t)
	}
	return s
}

func (m *mockStore) ListTasks(context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Task, len(m.tasks))
	for i := range m.tasks {
		out[i] = m.tasks[i].Clone()
	}
	return out, nil
}

func (m *mockStore) CreateTask(_ context.Context, in domain.TaskInput) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, in)
	if m.err != nil {
		return domain.Task{}, m.err
	}
	t := domain.Task{ID: domain.Int64(m.nextID), Title: in.Title, Description: in.Description, Status: in.Status}
	m.nextID++
	m.tasks = append(m.tasks, t)
	return t, nil
}

func (m *mockStore) UpdateTask(_ context.Context, id int64, in domain.TaskInput) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updateCall{id: id, in: in})
	if m.err != nil {
		return domain.Task{}, m.err
	}
	for i := range m.tasks {
		if m.tasks[i].IDValue() == id {
			m.tasks[i].Title, m.tasks[i].Description, m.tasks[i].Status = in.Title, in.Description, in.Status
			return m.tasks[i].Clone(), nil
		}
	}
	return domain.Task{}, &storage.StatusError{StatusCode: http.StatusNotFound, Body: `{"detail":"Task not found"}`}
}

func (m *mockStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	if m.err != nil {
		return m.err
	}
	for i := range m.tasks {
		if m.tasks[i].IDValue() == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockStore) snapshot() ([]domain.TaskInput, []updateCall, []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TaskInput(nil), m.creates...),
		append([]updateCall(nil), m.updates...),
		append([]int64(nil), m.deletes...)
}

type testServer struct {
	e        *echo.Echo
	store    *mockStore
	queries  *storage.Queries
	sessions *Sessions
	cookies  []*http.Cookie
}

func quietLogger() *log.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestServer(t *testing.T, store *mockStore) *testServer {
	t.Helper()
	logger := quietLogger()
	queries := storage.NewQueries(store, nil, time.Minute, logger)
	sessions := NewSessions(store, queries, time.Minute, logger)
	t.Cleanup(sessions.Close)

	e := echo.New()
	Register(e, Options{Sessions: sessions, Queries: queries, SessionSecret: "test-secret"}, logger)
	return &testServer{e: e, store: store, queries: queries, sessions: sessions}
}

// do sends a request carrying the server's session cookie, keeping the first
// cookie it is handed.
func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if len(s.cookies) == 0 {
		s.cookies = rec.Result().Cookies()
	}
	return rec
}

func (s *testServer) intent(t *testing.T, method, path, body string) intentResponse {
	t.Helper()
	rec := s.do(t, method, path, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s %s: expected status 200 got %d: %s", method, path, rec.Code, rec.Body.String())
	}
	var resp intentResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func seededStore() *mockStore {
	return newMockStore(
		domain.Task{ID: domain.Int64(1), Title: "Write docs", Description: "readme", Status: domain.StatusTodo},
		domain.Task{ID: domain.Int64(2), Title: "Ship it", Description: "release", Status: domain.StatusInProgress},
	)
}

func columnTitles(t *testing.T, v *board.View, status domain.Status) []string {
	t.Helper()
	if v == nil {
		t.Fatalf("expected board in response")
	}
	col, ok := v.Column(status)
	if !ok {
		t.Fatalf("missing column %s", status)
	}
	titles := make([]string, 0, len(col.Tasks))
	for _, task := range col.Tasks {
		titles = append(titles, task.Title)
	}
	return titles
}

func TestBoardPageRendersColumns(t *testing.T) {
	srv := newTestServer(t, seededStore())

	rec := srv.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"To Do", "In Progress", "Done", "Write docs", "Ship it", "No tasks in this column", "Add New Task"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
	if len(srv.cookies) == 0 || srv.cookies[0].Name != sessionCookieName {
		t.Fatalf("expected session cookie, got %v", srv.cookies)
	}
	if srv.sessions.Len() != 1 {
		t.Fatalf("expected one session, got %d", srv.sessions.Len())
	}
}

func TestBoardPageShowsLoadError(t *testing.T) {
	store := seededStore()
	store.listErr = &storage.StatusError{StatusCode: http.StatusServiceUnavailable, Body: "maintenance"}
	srv := newTestServer(t, store)

	rec := srv.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502 got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Error Loading Tasks") || !strings.Contains(body, "maintenance") {
		t.Fatalf("unexpected error page: %s", body)
	}
	if strings.Contains(body, "Add New Task") {
		t.Fatalf("error page should replace the board")
	}
}

func TestGetBoard(t *testing.T) {
	srv := newTestServer(t, seededStore())

	rec := srv.do(t, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got := columnTitles(t, resp.Board, domain.StatusTodo); len(got) != 1 || got[0] != "Write docs" {
		t.Fatalf("unexpected To Do column: %v", got)
	}
	if got := columnTitles(t, resp.Board, domain.StatusDone); len(got) != 0 {
		t.Fatalf("expected empty Done column, got %v", got)
	}
	if resp.Board.Form.Status != domain.StatusTodo {
		t.Fatalf("expected default form status, got %q", resp.Board.Form.Status)
	}
}

func TestGetBoardLoadError(t *testing.T) {
	store := seededStore()
	store.listErr = errors.New("")
	srv := newTestServer(t, store)

	rec := srv.do(t, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502 got %d", rec.Code)
	}
	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error != unknownErrorMessage || resp.Board != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAddTaskIntent(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPost, "/api/tasks", `{"title":"Plan sprint","description":"next week"}`)
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied, got %q (%s)", resp.Outcome, resp.Error)
	}
	creates, _, _ := srv.store.snapshot()
	if len(creates) != 1 || creates[0].Status != domain.StatusTodo || creates[0].Title != "Plan sprint" {
		t.Fatalf("unexpected create calls: %+v", creates)
	}
	if got := columnTitles(t, resp.Board, domain.StatusTodo); len(got) != 2 || got[1] != "Plan sprint" {
		t.Fatalf("expected new task under To Do, got %v", got)
	}
	if resp.Board.Form != domain.NewTaskInput() {
		t.Fatalf("expected form reset, got %+v", resp.Board.Form)
	}
}

func TestAddTaskIntentSkipsBlankTitle(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPost, "/api/tasks", `{"title":"   ","description":"x"}`)
	if resp.Outcome != "skipped" {
		t.Fatalf("expected skipped, got %q", resp.Outcome)
	}
	if creates, _, _ := srv.store.snapshot(); len(creates) != 0 {
		t.Fatalf("expected no create call, got %+v", creates)
	}
}

func TestAddTaskIntentSubmitsStoredForm(t *testing.T) {
	srv := newTestServer(t, seededStore())

	srv.intent(t, http.MethodPut, "/api/form", `{"title":"From form","description":"kept","status":"DONE"}`)
	resp := srv.intent(t, http.MethodPost, "/api/tasks", "")
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied, got %q", resp.Outcome)
	}
	if got := columnTitles(t, resp.Board, domain.StatusDone); len(got) != 1 || got[0] != "From form" {
		t.Fatalf("expected task under Done, got %v", got)
	}
}

func TestAddTaskIntentFailureQueuesToast(t *testing.T) {
	store := seededStore()
	store.err = errors.New("boom")
	srv := newTestServer(t, store)

	resp := srv.intent(t, http.MethodPost, "/api/tasks", `{"title":"Plan","description":"x"}`)
	if resp.Outcome != "failed" {
		t.Fatalf("expected failed, got %q", resp.Outcome)
	}

	vs := onlySession(t, srv.sessions)
	notes := vs.notes.subscribe()
	defer vs.notes.unsubscribe(notes)
	select {
	case n := <-notes:
		if n.Kind != board.KindError || n.Message != "Failed to add task" {
			t.Fatalf("unexpected notification: %+v", n)
		}
	default:
		t.Fatalf("expected pending failure notification")
	}
}

func TestEditIntents(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPost, "/api/tasks/1/edit", "")
	if resp.Outcome != "applied" || resp.Board.Editing == nil || resp.Board.Editing.Title != "Write docs" {
		t.Fatalf("expected edit dialog open, got %+v", resp)
	}

	srv.intent(t, http.MethodPut, "/api/edit", `{"title":"Write better docs"}`)
	resp = srv.intent(t, http.MethodPost, "/api/edit/save", "")
	if resp.Outcome != "applied" || resp.Board.Editing != nil {
		t.Fatalf("expected edit saved and closed, got %+v", resp)
	}
	_, updates, _ := srv.store.snapshot()
	want := domain.TaskInput{Title: "Write better docs", Description: "readme", Status: domain.StatusTodo}
	if len(updates) != 1 || updates[0].id != 1 || updates[0].in != want {
		t.Fatalf("unexpected update calls: %+v", updates)
	}
}

func TestEditIntentCancelDiscardsScratch(t *testing.T) {
	srv := newTestServer(t, seededStore())

	srv.intent(t, http.MethodPost, "/api/tasks/1/edit", "")
	srv.intent(t, http.MethodPut, "/api/edit", `{"title":"changed"}`)
	resp := srv.intent(t, http.MethodPost, "/api/edit/cancel", "")
	if resp.Board.Editing != nil {
		t.Fatalf("expected edit closed")
	}
	if _, updates, _ := srv.store.snapshot(); len(updates) != 0 {
		t.Fatalf("expected no update call, got %+v", updates)
	}
	if got := columnTitles(t, resp.Board, domain.StatusTodo); got[0] != "Write docs" {
		t.Fatalf("board should be unchanged, got %v", got)
	}
}

func TestDeleteIntents(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPost, "/api/tasks/2/delete", "")
	if resp.Board.PendingDeleteID == nil || *resp.Board.PendingDeleteID != 2 {
		t.Fatalf("expected pending delete of 2, got %+v", resp.Board)
	}
	resp = srv.intent(t, http.MethodPost, "/api/delete/cancel", "")
	if resp.Board.PendingDeleteID != nil {
		t.Fatalf("expected pending delete cleared")
	}
	if _, _, deletes := srv.store.snapshot(); len(deletes) != 0 {
		t.Fatalf("expected no delete call, got %v", deletes)
	}

	srv.intent(t, http.MethodPost, "/api/tasks/2/delete", "")
	resp = srv.intent(t, http.MethodPost, "/api/delete/confirm", "")
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied, got %q", resp.Outcome)
	}
	if _, _, deletes := srv.store.snapshot(); len(deletes) != 1 || deletes[0] != 2 {
		t.Fatalf("unexpected delete calls: %v", deletes)
	}
	if got := columnTitles(t, resp.Board, domain.StatusInProgress); len(got) != 0 {
		t.Fatalf("expected deleted task gone, got %v", got)
	}
}

func TestDragAndDropIntents(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPost, "/api/tasks/1/drag", "")
	if resp.Board.DraggingID == nil || *resp.Board.DraggingID != 1 {
		t.Fatalf("expected drag of 1, got %+v", resp.Board)
	}
	resp = srv.intent(t, http.MethodPost, "/api/drop/in_progress", "")
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied, got %q", resp.Outcome)
	}
	_, updates, _ := srv.store.snapshot()
	want := domain.TaskInput{Title: "Write docs", Description: "readme", Status: domain.StatusInProgress}
	if len(updates) != 1 || updates[0].in != want {
		t.Fatalf("unexpected update calls: %+v", updates)
	}
	if got := columnTitles(t, resp.Board, domain.StatusInProgress); len(got) != 2 {
		t.Fatalf("expected two tasks in progress, got %v", got)
	}
}

func TestDropNamingTaskMovesWithoutPriorDrag(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPost, "/api/drop/DONE", `{"id":1}`)
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied, got %q", resp.Outcome)
	}
	_, updates, _ := srv.store.snapshot()
	if len(updates) != 1 || updates[0].id != 1 || updates[0].in.Status != domain.StatusDone {
		t.Fatalf("unexpected update calls: %+v", updates)
	}
	if resp.Board.DraggingID != nil {
		t.Fatalf("expected drag cleared after drop")
	}

	// Naming the task already being dragged keeps that drag.
	srv.intent(t, http.MethodPost, "/api/tasks/2/drag", "")
	resp = srv.intent(t, http.MethodPost, "/api/drop/TODO", `{"id":2}`)
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied for dragged task, got %q", resp.Outcome)
	}
	if _, updates, _ = srv.store.snapshot(); len(updates) != 2 || updates[1].id != 2 {
		t.Fatalf("unexpected update calls: %+v", updates)
	}
}

func TestDropOnOwnColumnIsSkipped(t *testing.T) {
	srv := newTestServer(t, seededStore())

	srv.intent(t, http.MethodPost, "/api/tasks/1/drag", "")
	resp := srv.intent(t, http.MethodPost, "/api/drop/TODO", "")
	if resp.Outcome != "skipped" {
		t.Fatalf("expected skipped, got %q", resp.Outcome)
	}
	resp = srv.intent(t, http.MethodPost, "/api/drag/end", "")
	if resp.Board.DraggingID != nil {
		t.Fatalf("expected drag cleared")
	}
	if _, updates, _ := srv.store.snapshot(); len(updates) != 0 {
		t.Fatalf("expected no update call, got %+v", updates)
	}
}

func TestMoveTaskIntent(t *testing.T) {
	srv := newTestServer(t, seededStore())

	resp := srv.intent(t, http.MethodPut, "/api/tasks/2/status", `{"status":"DONE"}`)
	if resp.Outcome != "applied" {
		t.Fatalf("expected applied, got %q", resp.Outcome)
	}
	if got := columnTitles(t, resp.Board, domain.StatusDone); len(got) != 1 || got[0] != "Ship it" {
		t.Fatalf("expected task under Done, got %v", got)
	}

	resp = srv.intent(t, http.MethodPut, "/api/tasks/99/status", `{"status":"DONE"}`)
	if resp.Outcome != "skipped" {
		t.Fatalf("expected skipped for unknown task, got %q", resp.Outcome)
	}
	resp = srv.intent(t, http.MethodPut, "/api/tasks/1/status", `{"status":"ARCHIVED"}`)
	if resp.Outcome != "skipped" {
		t.Fatalf("expected skipped for unknown column, got %q", resp.Outcome)
	}
}

func TestIntentRejectsInvalidTaskID(t *testing.T) {
	srv := newTestServer(t, seededStore())

	for _, path := range []string{"/api/tasks/abc/edit", "/api/tasks/abc/delete", "/api/tasks/abc/drag"} {
		rec := srv.do(t, http.MethodPost, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400 got %d", path, rec.Code)
		}
		var resp errorResponse
		if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if resp.Error != "invalid task id" {
			t.Fatalf("unexpected error: %q", resp.Error)
		}
	}
}

func TestIntentRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t, seededStore())

	rec := srv.do(t, http.MethodPost, "/api/tasks", `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store := seededStore()
	first := newTestServer(t, store)
	second := &testServer{e: first.e, store: store, sessions: first.sessions}

	first.intent(t, http.MethodPost, "/api/tasks/1/edit", "")
	resp := second.intent(t, http.MethodPost, "/api/drag/end", "")
	if resp.Board.Editing != nil {
		t.Fatalf("second viewer should not see the first viewer's edit dialog")
	}
	if first.sessions.Len() != 2 {
		t.Fatalf("expected two sessions, got %d", first.sessions.Len())
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, seededStore())

	rec := srv.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func onlySession(t *testing.T, s *Sessions) *viewerSession {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byID) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(s.byID))
	}
	for _, vs := range s.byID {
		return vs
	}
	return nil
}
