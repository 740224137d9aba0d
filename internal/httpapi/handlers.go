package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"task-planner/internal/filter"
	"task-planner/internal/model"
	"task-planner/internal/session"
	"task-planner/internal/taskstore"
)

const dateLayout = "2006-01-02"

type taskResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DueDate   string    `json:"due_date,omitempty"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	Overdue   bool      `json:"overdue"`
	Updating  bool      `json:"updating"`
	Deleting  bool      `json:"deleting"`
	CreatedAt time.Time `json:"created_at"`
}

type subtaskResponse struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

type createTaskRequest struct {
	Title    string   `json:"title"`
	DueDate  string   `json:"due_date"`
	Priority string   `json:"priority"`
	Status   string   `json:"status"`
	Subtasks []string `json:"subtasks"`
}

type createTaskResponse struct {
	taskResponse
	Subtasks []subtaskResponse `json:"subtasks"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type filterBody struct {
	Priorities []string `json:"priorities"`
	Statuses   []string `json:"statuses"`
	Due        string   `json:"due"`
}

type inFlightResponse struct {
	Updating []string `json:"updating"`
	Deleting []string `json:"deleting"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTasks serves the filtered view. Query parameters replace the
// session filter for this request only; without them the session filter
// applies.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	ctx := r.Context()

	criteria := sess.Criteria()
	q := r.URL.Query()
	if q.Has("priority") || q.Has("status") || q.Has("due") {
		parsed, err := parseCriteria(splitList(q.Get("priority")), splitList(q.Get("status")), q.Get("due"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		criteria = parsed
	}

	var err error
	if q.Get("refresh") == "1" || q.Get("refresh") == "true" {
		err = sess.Store.LoadAll(ctx)
	} else {
		err = sess.EnsureLoaded(ctx)
	}
	if err != nil && !sess.Store.Loaded() {
		s.fail(w, r, err)
		return
	}

	now := s.now()
	view := filter.ApplyAt(sess.Store.Tasks(), criteria, now)
	out := make([]taskResponse, 0, len(view))
	for _, t := range view {
		out = append(out, toTaskResponse(sess, t, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}

	draft := taskstore.Draft{
		Title:    req.Title,
		Priority: model.Priority(req.Priority),
		Status:   model.Status(req.Status),
	}
	if strings.TrimSpace(req.DueDate) != "" {
		due, err := time.Parse(dateLayout, strings.TrimSpace(req.DueDate))
		if err != nil {
			writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD", "")
			return
		}
		draft.DueDate = &due
	}

	sess := s.session(r)
	task, err := sess.Store.CreateWithSubtasks(r.Context(), draft, req.Subtasks)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := createTaskResponse{
		taskResponse: toTaskResponse(sess, task, s.now()),
		Subtasks:     make([]subtaskResponse, 0, len(task.SubTasks)),
	}
	for _, st := range task.SubTasks {
		resp.Subtasks = append(resp.Subtasks, toSubtaskResponse(st))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSubtasks(w http.ResponseWriter, r *http.Request) {
	subs, err := s.session(r).Store.Subtasks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]subtaskResponse, 0, len(subs))
	for _, st := range subs {
		out = append(out, toSubtaskResponse(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}

	sess := s.session(r)
	id := chi.URLParam(r, "id")
	if err := sess.Store.UpdateStatus(r.Context(), id, model.Status(req.Status)); err != nil {
		s.fail(w, r, err)
		return
	}
	if task, ok := sess.Store.Task(id); ok {
		writeJSON(w, http.StatusOK, toTaskResponse(sess, task, s.now()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.session(r).Store.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInFlight(w http.ResponseWriter, r *http.Request) {
	store := s.session(r).Store
	writeJSON(w, http.StatusOK, inFlightResponse{
		Updating: store.Updating(),
		Deleting: store.Deleting(),
	})
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toFilterBody(s.session(r).Criteria()))
}

func (s *Server) handlePutFilter(w http.ResponseWriter, r *http.Request) {
	var body filterBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}
	criteria, err := parseCriteria(body.Priorities, body.Statuses, body.Due)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	s.session(r).SetCriteria(criteria)
	writeJSON(w, http.StatusOK, toFilterBody(criteria))
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.session(r).SetCriteria(filter.Clear())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Notices.List())
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	s.session(r).Notices.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// fail maps the store error taxonomy onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := kindOf(err)
	entry := s.log.WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"status":     status,
		"kind":       kind,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	writeError(w, status, err.Error(), kind)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, taskstore.ErrInvalidTask):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, taskstore.ErrCompensationFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func kindOf(err error) string {
	var compErr *taskstore.CompensationError
	if errors.As(err, &compErr) {
		return taskstore.ErrCompensationFailed.Error()
	}
	var storeErr *taskstore.Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind.Error()
	}
	return ""
}

func parseCriteria(priorities, statuses []string, due string) (filter.Criteria, error) {
	c := filter.Clear()
	for _, raw := range priorities {
		p, ok := model.ParsePriority(raw)
		if !ok {
			return filter.Criteria{}, errors.New("unknown priority " + raw)
		}
		if !slices.Contains(c.Priorities, p) {
			c = c.TogglePriority(p)
		}
	}
	for _, raw := range statuses {
		st, ok := model.ParseStatus(raw)
		if !ok {
			return filter.Criteria{}, errors.New("unknown status " + raw)
		}
		if !slices.Contains(c.Statuses, st) {
			c = c.ToggleStatus(st)
		}
	}
	w, ok := filter.ParseDueWindow(due)
	if !ok {
		return filter.Criteria{}, errors.New("unknown due window " + due)
	}
	c.DueWindow = w
	return c, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toFilterBody(c filter.Criteria) filterBody {
	body := filterBody{
		Priorities: make([]string, 0, len(c.Priorities)),
		Statuses:   make([]string, 0, len(c.Statuses)),
		Due:        string(c.DueWindow),
	}
	for _, p := range c.Priorities {
		body.Priorities = append(body.Priorities, string(p))
	}
	for _, st := range c.Statuses {
		body.Statuses = append(body.Statuses, string(st))
	}
	return body
}

func toTaskResponse(sess *session.Session, t model.Task, now time.Time) taskResponse {
	resp := taskResponse{
		ID:        t.ID,
		Title:     t.Title,
		Priority:  string(t.Priority),
		Status:    string(t.Status.Normalize()),
		Overdue:   filter.IsOverdue(t, now),
		Updating:  sess.Store.IsUpdating(t.ID),
		Deleting:  sess.Store.IsDeleting(t.ID),
		CreatedAt: t.CreatedAt,
	}
	if t.DueDate != nil {
		resp.DueDate = t.DueDate.Format(dateLayout)
	}
	return resp
}

func toSubtaskResponse(st model.SubTask) subtaskResponse {
	return subtaskResponse{ID: st.ID, TaskID: st.TaskID, Title: st.Title}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
