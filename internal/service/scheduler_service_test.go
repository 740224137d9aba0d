package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"task-planner/internal/logger"
)

func newTestScheduler(t *testing.T) (*SchedulerService, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := logger.Component(logger.New("debug", &buf), "scheduler")
	return NewSchedulerService(time.UTC, log), &buf
}

func TestWrapLogsFailedJob(t *testing.T) {
	s, buf := newTestScheduler(t)

	s.wrap("digest", func(context.Context) error {
		return errors.New("telegram unreachable")
	})()

	out := buf.String()
	if !strings.Contains(out, "job failed") || !strings.Contains(out, "telegram unreachable") {
		t.Fatalf("expected failure to be logged, got:\n%s", out)
	}
	if !strings.Contains(out, `"job":"digest"`) {
		t.Fatalf("expected job name in log, got:\n%s", out)
	}
}

func TestWrapBoundsJobWithTimeout(t *testing.T) {
	s, buf := newTestScheduler(t)
	s.timeout = 20 * time.Millisecond

	var got error
	s.wrap("slow", func(ctx context.Context) error {
		<-ctx.Done()
		got = ctx.Err()
		return got
	})()

	if !errors.Is(got, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", got)
	}
	if !strings.Contains(buf.String(), "job failed") {
		t.Fatalf("expected timed out job to be logged, got:\n%s", buf.String())
	}
}

func TestScheduledJobRecoversFromPanic(t *testing.T) {
	s, buf := newTestScheduler(t)

	id, err := s.ScheduleInterval(time.Hour, "boom", func(context.Context) error {
		panic("nil map")
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic escaped the job chain: %v", r)
			}
		}()
		s.cron.Entry(id).WrappedJob.Run()
	}()

	if !strings.Contains(buf.String(), "panic") {
		t.Fatalf("expected the panic to be logged, got:\n%s", buf.String())
	}
}

func TestScheduledJobSkipsOverlappingRun(t *testing.T) {
	s, _ := newTestScheduler(t)

	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	id, err := s.ScheduleInterval(time.Hour, "digest", func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	job := s.cron.Entry(id).WrappedJob
	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run()
	close(release)
	<-done

	if n := runs.Load(); n != 1 {
		t.Fatalf("expected overlapping run to be skipped, got %d runs", n)
	}
}
