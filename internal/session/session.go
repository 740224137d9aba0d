// Package session binds a task store, a notice scheduler and filter
// criteria to one owner.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"task-planner/internal/filter"
	"task-planner/internal/metrics"
	"task-planner/internal/model"
	"task-planner/internal/notice"
	"task-planner/internal/taskstore"
)

// Session is one owner's view of the system. Front-ends share it by pointer.
type Session struct {
	Owner   string
	Store   *taskstore.Store
	Notices *notice.Scheduler

	mu       sync.Mutex
	criteria filter.Criteria
	loadMu   sync.Mutex
}

// Criteria returns the active filter.
func (s *Session) Criteria() filter.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// SetCriteria replaces the active filter.
func (s *Session) SetCriteria(c filter.Criteria) {
	s.mu.Lock()
	s.criteria = c
	s.mu.Unlock()
}

// UpdateCriteria applies fn to the active filter atomically and returns the
// result.
func (s *Session) UpdateCriteria(fn func(filter.Criteria) filter.Criteria) filter.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = fn(s.criteria)
	return s.criteria
}

// EnsureLoaded loads the mirror unless a previous load already succeeded.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.Store.Loaded() {
		return nil
	}
	return s.Store.LoadAll(ctx)
}

// View is the mirror narrowed by the active filter.
func (s *Session) View(now time.Time) []model.Task {
	return filter.ApplyAt(s.Store.Tasks(), s.Criteria(), now)
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(log *logrus.Entry) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithNoticeTTL sets the lifetime of every session's notices.
func WithNoticeTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithNoticeHook observes every notice of every session.
func WithNoticeHook(fn func(owner string, n notice.Notice)) Option {
	return func(r *Registry) {
		if fn != nil {
			r.hooks = append(r.hooks, fn)
		}
	}
}

// Registry builds sessions on first use and keeps them for the process
// lifetime.
type Registry struct {
	records taskstore.RecordStore
	log     *logrus.Entry
	ttl     time.Duration
	hooks   []func(string, notice.Notice)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(records taskstore.RecordStore, opts ...Option) *Registry {
	r := &Registry{
		records:  records,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		ttl:      notice.DefaultTTL,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the owner's session, creating it if needed.
func (r *Registry) Get(owner string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[owner]; ok {
		return sess
	}

	notices := notice.NewScheduler(
		notice.WithTTL(r.ttl),
		notice.WithListener(func(n notice.Notice) {
			metrics.ObserveNotice(string(n.Kind))
			for _, fn := range r.noticeHooks() {
				fn(owner, n)
			}
		}),
	)
	sess := &Session{
		Owner:   owner,
		Notices: notices,
		Store: taskstore.New(r.records, owner,
			taskstore.WithNotifier(notices),
			taskstore.WithLogger(r.log.WithField("component", "taskstore")),
		),
	}
	r.sessions[owner] = sess
	r.log.WithField("owner", owner).Debug("session created")
	return sess
}

// OnNotice adds a hook for every notice of every session, including
// sessions created earlier.
func (r *Registry) OnNotice(fn func(owner string, n notice.Notice)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

func (r *Registry) noticeHooks() []func(string, notice.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hooks
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(owner string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[owner]
	return sess, ok
}

// Owners lists the owners with a live session, sorted.
func (r *Registry) Owners() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.sessions))
	for owner := range r.sessions {
		out = append(out, owner)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// Close stops every session's pending notice timers.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		sess.Notices.Close()
	}
}
