package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"task-planner/internal/logger"
	"task-planner/internal/model"
	"task-planner/internal/notice"
	"task-planner/internal/repository"
	"task-planner/internal/session"
	"task-planner/internal/taskstore"
)

// switchableRecords lets a test break inserts or reads mid-test.
type switchableRecords struct {
	taskstore.RecordStore
	failSelect  bool
	failSubtask bool
	failDelete  bool
}

func (s *switchableRecords) Select(ctx context.Context, table string, filter map[string]any, dest any) error {
	if s.failSelect {
		return errors.New("select unavailable")
	}
	return s.RecordStore.Select(ctx, table, filter, dest)
}

func (s *switchableRecords) Insert(ctx context.Context, table string, rows any) error {
	if s.failSubtask && table == model.TableSubTasks {
		return errors.New("sub-task insert refused")
	}
	return s.RecordStore.Insert(ctx, table, rows)
}

func (s *switchableRecords) Delete(ctx context.Context, table string, filter map[string]any) error {
	if s.failDelete {
		return errors.New("delete refused")
	}
	return s.RecordStore.Delete(ctx, table, filter)
}

func newTestServer(t *testing.T) (*Server, *switchableRecords) {
	t.Helper()
	db, err := repository.NewDB(":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	records := &switchableRecords{RecordStore: repository.NewRecordStore(db)}
	reg := session.NewRegistry(records, session.WithNoticeTTL(time.Hour))
	t.Cleanup(reg.Close)

	srv := NewServer("127.0.0.1:0", reg, logger.Discard().WithField("component", "http"))
	srv.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return srv, records
}

func do(t *testing.T, srv *Server, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set(headerUserID, owner)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v (%s)", err, w.Body.String())
	}
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(middleware.RequestIDHeader); got != "req-42" {
		t.Fatalf("expected incoming request id to be echoed, got %q", got)
	}
}

func TestUnmatchedRoutesShareOneMetricLabel(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := do(t, srv, http.MethodGet, "/no-such-page/8731", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	w := do(t, srv, http.MethodGet, "/metrics", "", nil)
	body := w.Body.String()
	if strings.Contains(body, "/no-such-page/8731") {
		t.Fatalf("raw path leaked into metric labels")
	}
	if !strings.Contains(body, `route="unmatched"`) {
		t.Fatalf("expected an unmatched route label in:\n%s", body)
	}
}

func TestOwnerHeaderRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := do(t, srv, http.MethodGet, "/v1/tasks", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/v1/tasks", "alice", createTaskRequest{
		Title:    "Plan trip",
		DueDate:  "2024-05-30",
		Priority: "High",
		Status:   "ongoing",
		Subtasks: []string{"book flights", "reserve hotel"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[createTaskResponse](t, w)
	if created.ID == "" || len(created.Subtasks) != 2 {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if !created.Overdue {
		t.Fatalf("expected the task to be overdue")
	}

	w = do(t, srv, http.MethodPost, "/v1/tasks", "alice", createTaskRequest{Title: "Buy milk", Priority: "low"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/v1/tasks?priority=High&due=overdue", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	tasks := decode[[]taskResponse](t, w)
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("unexpected filtered list: %+v", tasks)
	}

	w = do(t, srv, http.MethodGet, "/v1/tasks", "bob", nil)
	if got := decode[[]taskResponse](t, w); len(got) != 0 {
		t.Fatalf("owners must not see each other's tasks: %+v", got)
	}

	w = do(t, srv, http.MethodGet, "/v1/tasks/"+created.ID+"/subtasks", "alice", nil)
	if subs := decode[[]subtaskResponse](t, w); len(subs) != 2 {
		t.Fatalf("expected 2 sub-tasks, got %+v", subs)
	}
}

func TestCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body createTaskRequest
	}{
		{"blank title", createTaskRequest{Title: "  "}},
		{"bad priority", createTaskRequest{Title: "x", Priority: "urgent"}},
		{"bad date", createTaskRequest{Title: "x", DueDate: "tomorrow"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, srv, http.MethodPost, "/v1/tasks", "alice", tc.body); w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestUpdateStatusAndDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	created := decode[createTaskResponse](t, do(t, srv, http.MethodPost, "/v1/tasks", "alice", createTaskRequest{Title: "Write report"}))

	w := do(t, srv, http.MethodPatch, "/v1/tasks/"+created.ID+"/status", "alice", updateStatusRequest{Status: "Completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[taskResponse](t, w); got.Status != string(model.StatusCompleted) {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	if w := do(t, srv, http.MethodPatch, "/v1/tasks/"+created.ID+"/status", "alice", updateStatusRequest{Status: "archived"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPatch, "/v1/tasks/"+created.ID+"/status", "bob", updateStatusRequest{Status: "ongoing"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for a foreign task, got %d", w.Code)
	}

	if w := do(t, srv, http.MethodDelete, "/v1/tasks/"+created.ID, "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/v1/tasks/"+created.ID, "alice", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 on second delete, got %d", w.Code)
	}

	inflight := decode[inFlightResponse](t, do(t, srv, http.MethodGet, "/v1/tasks/inflight", "alice", nil))
	if len(inflight.Updating) != 0 || len(inflight.Deleting) != 0 {
		t.Fatalf("expected no in-flight ids, got %+v", inflight)
	}
}

func TestStoreFailuresMapToStatusCodes(t *testing.T) {
	srv, records := newTestServer(t)

	records.failSubtask = true
	w := do(t, srv, http.MethodPost, "/v1/tasks", "alice", createTaskRequest{Title: "Plan trip", Subtasks: []string{"a"}})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
	if got := decode[errorResponse](t, w); got.Kind != taskstore.ErrCreate.Error() {
		t.Fatalf("unexpected error kind %q", got.Kind)
	}

	records.failDelete = true
	w = do(t, srv, http.MethodPost, "/v1/tasks", "alice", createTaskRequest{Title: "Plan trip", Subtasks: []string{"a"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 for failed rollback, got %d", w.Code)
	}
	if got := decode[errorResponse](t, w); got.Kind != taskstore.ErrCompensationFailed.Error() {
		t.Fatalf("unexpected error kind %q", got.Kind)
	}

	records.failSelect = true
	if w := do(t, srv, http.MethodGet, "/v1/tasks?refresh=1", "carol", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502 for failed load, got %d", w.Code)
	}
}

func TestFilterEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, body := range []createTaskRequest{
		{Title: "low", Priority: "Low"},
		{Title: "high", Priority: "High"},
	} {
		if w := do(t, srv, http.MethodPost, "/v1/tasks", "alice", body); w.Code != http.StatusCreated {
			t.Fatalf("create: %d", w.Code)
		}
	}

	w := do(t, srv, http.MethodPut, "/v1/filter", "alice", filterBody{Priorities: []string{"high"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	tasks := decode[[]taskResponse](t, do(t, srv, http.MethodGet, "/v1/tasks", "alice", nil))
	if len(tasks) != 1 || tasks[0].Title != "high" {
		t.Fatalf("session filter not applied: %+v", tasks)
	}

	if w := do(t, srv, http.MethodPut, "/v1/filter", "alice", filterBody{Due: "someday"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}

	if w := do(t, srv, http.MethodDelete, "/v1/filter", "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	got := decode[filterBody](t, do(t, srv, http.MethodGet, "/v1/filter", "alice", nil))
	if len(got.Priorities) != 0 || got.Due != "" {
		t.Fatalf("expected cleared filter, got %+v", got)
	}
}

func TestNoticesListAndDismiss(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodPost, "/v1/tasks", "alice", createTaskRequest{Title: "Plan trip"})

	notices := decode[[]notice.Notice](t, do(t, srv, http.MethodGet, "/v1/notices", "alice", nil))
	if len(notices) != 1 || notices[0].Kind != notice.KindSuccess {
		t.Fatalf("expected one success notice, got %+v", notices)
	}

	if w := do(t, srv, http.MethodDelete, "/v1/notices/"+notices[0].ID, "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/v1/notices/"+notices[0].ID, "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("dismiss must be idempotent, got %d", w.Code)
	}
	notices = decode[[]notice.Notice](t, do(t, srv, http.MethodGet, "/v1/notices", "alice", nil))
	if len(notices) != 0 {
		t.Fatalf("expected no notices, got %+v", notices)
	}
}
