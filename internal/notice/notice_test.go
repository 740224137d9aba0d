package notice

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	wasActive := !f.stopped
	f.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fire: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.fire()
	}
}

func TestNotifyAppendsAndExpires(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(WithAfterFunc(clock.afterFunc))

	first := s.Success("Task created", "")
	second := s.Error("Save failed", "network down")
	if first == second {
		t.Fatalf("expected distinct ids, got %q twice", first)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 visible notices, got %d", len(list))
	}
	if list[0].ID != first || list[1].ID != second {
		t.Fatalf("expected creation order, got %q then %q", list[0].ID, list[1].ID)
	}
	if list[1].Kind != KindError || list[1].Message != "network down" {
		t.Fatalf("unexpected notice %+v", list[1])
	}
	for _, timer := range clock.timers {
		if timer.d != DefaultTTL {
			t.Fatalf("expected %s expiry, got %s", DefaultTTL, timer.d)
		}
	}

	clock.fireAll()
	if s.Len() != 0 {
		t.Fatalf("expected every notice to expire, %d left", s.Len())
	}
}

func TestDismissBeforeExpiryIsIdempotent(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(WithAfterFunc(clock.afterFunc))

	id := s.Notify(KindError, "Save failed", "")
	s.Dismiss(id)
	if s.Len() != 0 {
		t.Fatalf("expected empty list after dismiss, got %d", s.Len())
	}
	if !clock.timers[0].stopped {
		t.Fatalf("expected dismiss to stop the expiry timer")
	}

	// a late timer for a removed id must not disturb anything
	kept := s.Info("Still here", "")
	clock.timers[0].fire()
	s.Dismiss(id)
	if list := s.List(); len(list) != 1 || list[0].ID != kept {
		t.Fatalf("expected only %q to remain, got %+v", kept, list)
	}
}

func TestIndependentExpiry(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(WithAfterFunc(clock.afterFunc))

	a := s.Info("a", "")
	b := s.Warning("b", "")

	clock.timers[0].fire()
	list := s.List()
	if len(list) != 1 || list[0].ID != b {
		t.Fatalf("expected only %q after first expiry, got %+v", b, list)
	}
	s.Dismiss(a)
	if s.Len() != 1 {
		t.Fatalf("dismissing an expired notice should be a no-op")
	}
}

func TestListenerSeesEveryNotice(t *testing.T) {
	var got []Notice
	s := NewScheduler(
		WithAfterFunc((&fakeClock{}).afterFunc),
		WithListener(func(n Notice) { got = append(got, n) }),
	)
	s.Success("one", "")
	s.Warning("two", "careful")

	if len(got) != 2 || got[0].Title != "one" || got[1].Kind != KindWarning {
		t.Fatalf("unexpected listener calls %+v", got)
	}
}

func TestRealTimerExpiry(t *testing.T) {
	s := NewScheduler(WithTTL(20 * time.Millisecond))
	defer s.Close()

	s.Info("Refreshing", "")
	deadline := time.Now().Add(2 * time.Second)
	for s.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("notice did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseStopsTimersAndIgnoresLaterNotices(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(WithAfterFunc(clock.afterFunc))
	s.Info("pending", "")
	s.Close()

	if !clock.timers[0].stopped {
		t.Fatalf("expected close to stop pending timers")
	}
	s.Info("after close", "")
	if s.Len() != 0 {
		t.Fatalf("expected closed scheduler to stay empty, got %d", s.Len())
	}
}

func TestWithTTLIgnoresNonPositive(t *testing.T) {
	if got := NewScheduler(WithTTL(0)).TTL(); got != DefaultTTL {
		t.Fatalf("expected default ttl, got %s", got)
	}
	if got := NewScheduler(WithTTL(time.Second)).TTL(); got != time.Second {
		t.Fatalf("expected 1s ttl, got %s", got)
	}
}
