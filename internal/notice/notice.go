// Package notice keeps short-lived user-facing messages that expire on
// their own or when dismissed.
package notice

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 2000 * time.Millisecond

// Kind classifies a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notice is a single visible message.
type Notice struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	seq       uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithListener registers a callback invoked for every new notice, outside
// the scheduler lock.
func WithListener(fn func(Notice)) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

// WithAfterFunc replaces time.AfterFunc, letting tests fire expiry by hand.
func WithAfterFunc(fn func(time.Duration, func()) Stopper) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.afterFunc = fn
		}
	}
}

// Stopper cancels a pending expiry.
type Stopper interface {
	Stop() bool
}

// Scheduler owns the visible notice list. Each notice carries its own expiry
// timer; removal is idempotent so a timer firing after dismissal is a no-op.
type Scheduler struct {
	mu        sync.Mutex
	ttl       time.Duration
	notices   map[string]Notice
	timers    map[string]Stopper
	listeners []func(Notice)
	afterFunc func(time.Duration, func()) Stopper
	closed    bool
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		ttl:     DefaultTTL,
		notices: make(map[string]Notice),
		timers:  make(map[string]Stopper),
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL reports the visible lifetime of new notices.
func (s *Scheduler) TTL() time.Duration {
	return s.ttl
}

// Notify shows a notice and schedules its removal. It returns the new id.
func (s *Scheduler) Notify(kind Kind, title, message string) string {
	n := Notice{
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
	n.seq = nextSeq()
	n.ID = fmt.Sprintf("%d-%d", n.CreatedAt.UnixNano(), n.seq)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return n.ID
	}
	s.notices[n.ID] = n
	id := n.ID
	s.timers[id] = s.afterFunc(s.ttl, func() { s.remove(id) })
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
	return n.ID
}

func (s *Scheduler) Success(title, message string) string {
	return s.Notify(KindSuccess, title, message)
}

func (s *Scheduler) Error(title, message string) string {
	return s.Notify(KindError, title, message)
}

func (s *Scheduler) Warning(title, message string) string {
	return s.Notify(KindWarning, title, message)
}

func (s *Scheduler) Info(title, message string) string {
	return s.Notify(KindInfo, title, message)
}

// Dismiss removes the notice immediately. Unknown ids are ignored.
func (s *Scheduler) Dismiss(id string) {
	s.remove(id)
}

func (s *Scheduler) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notices[id]; !ok {
		return
	}
	delete(s.notices, id)
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// List returns the visible notices in creation order.
func (s *Scheduler) List() []Notice {
	s.mu.Lock()
	out := make([]Notice, 0, len(s.notices))
	for _, n := range s.notices {
		out = append(out, n)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len reports how many notices are visible.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}

// Close stops every pending timer and drops all notices. Later Notify calls
// are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.notices = make(map[string]Notice)
	s.closed = true
}

var seqCounter uint64

func nextSeq() uint64 {
	return atomic.AddUint64(&seqCounter, 1)
}
