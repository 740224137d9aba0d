// Package taskstore keeps the in-memory mirror of one owner's tasks and runs
// every mutation against the record store.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"task-planner/internal/metrics"
	"task-planner/internal/model"
	"task-planner/internal/notice"
)

const (
	stepInsertTask     = "insert task"
	stepInsertSubTasks = "insert sub-tasks"
)

// RecordStore is the generic CRUD contract the store consumes. Filters are
// column → value equality maps; dest and rows are pointers to model slices.
type RecordStore interface {
	Select(ctx context.Context, table string, filter map[string]any, dest any) error
	Insert(ctx context.Context, table string, rows any) error
	Update(ctx context.Context, table string, patch map[string]any, filter map[string]any) error
	Delete(ctx context.Context, table string, filter map[string]any) error
}

// Notifier receives one notice per mutation outcome.
type Notifier interface {
	Notify(kind notice.Kind, title, message string) string
}

type nopNotifier struct{}

func (nopNotifier) Notify(notice.Kind, string, string) string { return "" }

// Draft is a task that has not been persisted yet.
type Draft struct {
	Title    string
	DueDate  *time.Time
	Priority model.Priority
	Status   model.Status
}

// Option configures a Store.
type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notices = n
		}
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Store is the authoritative mirror of one owner's task rows. It is safe
// for concurrent use; mutations on different ids proceed independently.
type Store struct {
	records RecordStore
	notices Notifier
	owner   string
	log     *logrus.Entry

	mu       sync.RWMutex
	tasks    []model.Task
	loaded   bool
	updating map[string]int
	deleting map[string]int

	// reads numbers every refresh in the order its select starts; applied
	// is the number of the snapshot the mirror holds. removed maps a locally
	// deleted id to the value of reads when the delete committed.
	reads   uint64
	applied uint64
	removed map[string]uint64
}

func New(records RecordStore, owner string, opts ...Option) *Store {
	s := &Store{
		records:  records,
		notices:  nopNotifier{},
		owner:    owner,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		updating: make(map[string]int),
		deleting: make(map[string]int),
		removed:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("owner", owner)
	return s
}

func (s *Store) Owner() string {
	return s.owner
}

// LoadAll replaces the mirror with the owner's rows. On failure the previous
// mirror is kept and an error notice is shown.
func (s *Store) LoadAll(ctx context.Context) error {
	err := s.refresh(ctx)
	metrics.ObserveOperation("load", err)
	if err != nil {
		s.log.WithError(err).Warn("load tasks")
		s.notices.Notify(notice.KindError, "Failed to load tasks", causeText(err))
		return err
	}
	return nil
}

// refresh replaces the mirror with a fresh snapshot. A snapshot whose read
// started before an already applied one is dropped, and rows deleted while
// the read was in flight are filtered out.
func (s *Store) refresh(ctx context.Context) error {
	s.mu.Lock()
	s.reads++
	seq := s.reads
	s.mu.Unlock()

	var rows []model.Task
	if err := s.records.Select(ctx, model.TableTasks, s.ownerFilter(), &rows); err != nil {
		return &Error{Kind: ErrFetch, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		s.log.WithField("read", seq).Debug("stale snapshot dropped")
		return nil
	}
	rows = slices.DeleteFunc(rows, func(t model.Task) bool {
		at, ok := s.removed[t.ID]
		return ok && at >= seq
	})
	if rows == nil {
		rows = []model.Task{}
	}
	s.tasks = rows
	s.loaded = true
	s.applied = seq
	for id, at := range s.removed {
		if at < seq {
			delete(s.removed, id)
		}
	}

	s.log.WithField("count", len(rows)).Debug("tasks loaded")
	return nil
}

// CreateWithSubtasks inserts the task, then its sub-tasks in one batch. If
// the batch fails the task row is deleted again; if that delete fails too a
// *CompensationError is returned. On success the mirror is reloaded.
func (s *Store) CreateWithSubtasks(ctx context.Context, draft Draft, subtaskTitles []string) (model.Task, error) {
	task, err := draft.toTask(s.owner)
	if err != nil {
		err = &Error{Kind: ErrCreate, Err: err}
		metrics.ObserveOperation("create", err)
		s.notices.Notify(notice.KindError, "Failed to create task", causeText(err))
		return model.Task{}, err
	}

	titles := cleanTitles(subtaskTitles)
	var subs []model.SubTask

	steps := []sagaStep{{
		name: stepInsertTask,
		do: func(ctx context.Context) error {
			rows := []model.Task{task}
			if err := s.records.Insert(ctx, model.TableTasks, &rows); err != nil {
				return err
			}
			task = rows[0]
			return nil
		},
		undo: func(ctx context.Context) error {
			err := s.removeRows(ctx, task.ID)
			metrics.ObserveCompensation(err)
			return err
		},
	}}
	if len(titles) > 0 {
		steps = append(steps, sagaStep{
			name: stepInsertSubTasks,
			do: func(ctx context.Context) error {
				rows := make([]model.SubTask, 0, len(titles))
				for _, title := range titles {
					rows = append(rows, model.SubTask{TaskID: task.ID, Title: title})
				}
				if err := s.records.Insert(ctx, model.TableSubTasks, &rows); err != nil {
					return err
				}
				subs = rows
				return nil
			},
		})
	}

	if err := runSaga(ctx, steps); err != nil {
		err = s.createFailure(task.ID, err)
		metrics.ObserveOperation("create", err)
		return model.Task{}, err
	}
	metrics.ObserveOperation("create", nil)

	task.SubTasks = subs
	log := s.log.WithFields(logrus.Fields{"task_id": task.ID, "subtasks": len(subs)})
	log.Info("task created")

	if err := s.refresh(ctx); err != nil {
		log.WithError(err).Warn("reload after create")
		s.notices.Notify(notice.KindWarning, "Task created", "The list may be out of date: "+causeText(err))
		return task, nil
	}
	s.notices.Notify(notice.KindSuccess, "Task created", task.Title)
	return task, nil
}

func (s *Store) createFailure(taskID string, err error) error {
	var failure *sagaFailure
	if !errors.As(err, &failure) {
		return &Error{Kind: ErrCreate, Err: err}
	}

	log := s.log.WithField("step", failure.Step).WithError(failure.Err)
	switch {
	case failure.Step == stepInsertTask:
		log.Warn("create task")
		s.notices.Notify(notice.KindError, "Failed to create task", causeText(failure.Err))
		return &Error{Kind: ErrCreate, Err: failure.Err}
	case failure.Compensation != nil:
		log.WithField("task_id", taskID).WithField("rollback_error", failure.Compensation.Error()).
			Error("sub-task insert failed and task rollback failed")
		s.notices.Notify(notice.KindError, "Task saved without sub-tasks",
			fmt.Sprintf("Task %s could not be rolled back and needs manual cleanup", taskID))
		return &CompensationError{TaskID: taskID, Cause: failure.Err, Compensation: failure.Compensation}
	default:
		log.WithField("task_id", taskID).Warn("sub-task insert failed, task rolled back")
		s.notices.Notify(notice.KindError, "Failed to create task", causeText(failure.Err))
		return &Error{Kind: ErrCreate, TaskID: taskID, Err: failure.Err}
	}
}

// UpdateStatus writes the new status and reloads the mirror. The mirror is
// never changed before the record store confirms.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	parsed, ok := model.ParseStatus(string(status))
	if !ok {
		err := &Error{Kind: ErrUpdate, TaskID: id, Err: invalidf("unknown status %q", status)}
		metrics.ObserveOperation("update", err)
		s.notices.Notify(notice.KindError, "Failed to update task", causeText(err))
		return err
	}

	s.mark(s.updating, id)
	defer s.unmark(s.updating, id)
	defer metrics.TrackInFlight("update")()

	log := s.log.WithFields(logrus.Fields{"task_id": id, "status": parsed})
	patch := map[string]any{"status": parsed}
	if err := s.records.Update(ctx, model.TableTasks, patch, s.taskFilter(id)); err != nil {
		err = &Error{Kind: ErrUpdate, TaskID: id, Err: err}
		metrics.ObserveOperation("update", err)
		log.WithError(err).Warn("update status")
		s.notices.Notify(notice.KindError, "Failed to update task", causeText(err))
		return err
	}
	metrics.ObserveOperation("update", nil)
	log.Info("status updated")

	if err := s.refresh(ctx); err != nil {
		log.WithError(err).Warn("reload after update")
		s.notices.Notify(notice.KindWarning, "Task updated", "The list may be out of date: "+causeText(err))
		return nil
	}
	s.notices.Notify(notice.KindSuccess, "Task updated", "Status changed to "+parsed.Label())
	return nil
}

// DeleteTask removes the task and its sub-tasks, then drops it from the
// mirror without a reload.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mark(s.deleting, id)
	defer s.unmark(s.deleting, id)
	defer metrics.TrackInFlight("delete")()

	log := s.log.WithField("task_id", id)
	err := s.deleteOwned(ctx, id)
	metrics.ObserveOperation("delete", err)
	if err != nil {
		log.WithError(err).Warn("delete task")
		s.notices.Notify(notice.KindError, "Failed to delete task", causeText(err))
		return err
	}

	s.mu.Lock()
	s.tasks = slices.DeleteFunc(s.tasks, func(t model.Task) bool { return t.ID == id })
	s.removed[id] = s.reads
	s.mu.Unlock()

	log.Info("task deleted")
	s.notices.Notify(notice.KindSuccess, "Task deleted", "")
	return nil
}

func (s *Store) deleteOwned(ctx context.Context, id string) error {
	var rows []model.Task
	if err := s.records.Select(ctx, model.TableTasks, s.taskFilter(id), &rows); err != nil {
		return &Error{Kind: ErrDelete, TaskID: id, Err: err}
	}
	if len(rows) == 0 {
		return &Error{Kind: ErrDelete, TaskID: id, Err: model.ErrNotFound}
	}
	if err := s.removeRows(ctx, id); err != nil {
		return &Error{Kind: ErrDelete, TaskID: id, Err: err}
	}
	return nil
}

// removeRows deletes sub-tasks before their parent so a sub-task never
// outlives it.
func (s *Store) removeRows(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, model.TableSubTasks, map[string]any{"task_id": id}); err != nil {
		return err
	}
	return s.records.Delete(ctx, model.TableTasks, s.taskFilter(id))
}

// Subtasks reads the sub-tasks of one of the owner's tasks.
func (s *Store) Subtasks(ctx context.Context, taskID string) ([]model.SubTask, error) {
	var parents []model.Task
	if err := s.records.Select(ctx, model.TableTasks, s.taskFilter(taskID), &parents); err != nil {
		return nil, &Error{Kind: ErrFetch, TaskID: taskID, Err: err}
	}
	if len(parents) == 0 {
		return nil, &Error{Kind: ErrFetch, TaskID: taskID, Err: model.ErrNotFound}
	}

	var subs []model.SubTask
	if err := s.records.Select(ctx, model.TableSubTasks, map[string]any{"task_id": taskID}, &subs); err != nil {
		return nil, &Error{Kind: ErrFetch, TaskID: taskID, Err: err}
	}
	if subs == nil {
		subs = []model.SubTask{}
	}
	return subs, nil
}

// Tasks returns a copy of the mirror.
func (s *Store) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Task looks up one task in the mirror.
func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// Loaded reports whether LoadAll has succeeded at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) IsUpdating(id string) bool { return s.marked(s.updating, id) }

func (s *Store) IsDeleting(id string) bool { return s.marked(s.deleting, id) }

// Updating lists the ids with a status update in flight, sorted.
func (s *Store) Updating() []string { return s.markedIDs(s.updating) }

// Deleting lists the ids with a delete in flight, sorted.
func (s *Store) Deleting() []string { return s.markedIDs(s.deleting) }

// mark and unmark keep a per-id count so overlapping calls on the same id
// hold the marker until the last one finishes.
func (s *Store) mark(set map[string]int, id string) {
	s.mu.Lock()
	set[id]++
	s.mu.Unlock()
}

func (s *Store) unmark(set map[string]int, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set[id] <= 1 {
		delete(set, id)
		return
	}
	set[id]--
}

func (s *Store) marked(set map[string]int, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return set[id] > 0
}

func (s *Store) markedIDs(set map[string]int) []string {
	s.mu.RLock()
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Store) ownerFilter() map[string]any {
	return map[string]any{"user_id": s.owner}
}

func (s *Store) taskFilter(id string) map[string]any {
	return map[string]any{"id": id, "user_id": s.owner}
}

func (d Draft) toTask(owner string) (model.Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return model.Task{}, invalidf("title is required")
	}

	priority := model.PriorityMedium
	if d.Priority != "" {
		p, ok := model.ParsePriority(string(d.Priority))
		if !ok {
			return model.Task{}, invalidf("unknown priority %q", d.Priority)
		}
		priority = p
	}

	status := model.StatusUpcoming
	if d.Status != "" {
		st, ok := model.ParseStatus(string(d.Status))
		if !ok {
			return model.Task{}, invalidf("unknown status %q", d.Status)
		}
		status = st
	}

	var due *time.Time
	if d.DueDate != nil {
		day := time.Date(d.DueDate.Year(), d.DueDate.Month(), d.DueDate.Day(), 0, 0, 0, 0, time.UTC)
		due = &day
	}

	return model.Task{
		UserID:   owner,
		Title:    title,
		DueDate:  due,
		Priority: priority,
		Status:   status,
	}, nil
}

func cleanTitles(titles []string) []string {
	out := make([]string, 0, len(titles))
	for _, title := range titles {
		if trimmed := strings.TrimSpace(title); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// causeText is the innermost message worth showing to a user.
func causeText(err error) string {
	var storeErr *Error
	if errors.As(err, &storeErr) && storeErr.Err != nil {
		return storeErr.Err.Error()
	}
	return err.Error()
}
