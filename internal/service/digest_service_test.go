package service

import (
	"strings"
	"testing"
	"time"

	"task-planner/internal/model"
)

// Saturday.
var digestNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func due(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func digestTasks() []model.Task {
	return []model.Task{
		{ID: "late", Title: "Pay rent", DueDate: due("2024-05-28"), Priority: model.PriorityHigh, Status: model.StatusOngoing},
		{ID: "late-done", Title: "Old report", DueDate: due("2024-05-20"), Priority: model.PriorityLow, Status: model.StatusCompleted},
		{ID: "today", Title: "Call <mom>", DueDate: due("2024-06-01"), Priority: model.PriorityMedium, Status: model.StatusUpcoming},
		{ID: "sunday", Title: "Plan trip", DueDate: due("2024-06-02"), Priority: model.PriorityMedium, Status: model.StatusUpcoming},
		{ID: "later", Title: "Dentist", DueDate: due("2024-06-20"), Priority: model.PriorityLow, Status: model.StatusUpcoming},
		{ID: "nodate", Title: "Read book", Priority: model.PriorityLow, Status: "Ongoing"},
	}
}

func taskIDs(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestCollectGroupsByWindow(t *testing.T) {
	d := NewDigestService().Collect(digestTasks(), digestNow)

	if got := taskIDs(d.Overdue); len(got) != 1 || got[0] != "late" {
		t.Fatalf("unexpected overdue group: %v", got)
	}
	if got := taskIDs(d.Today); len(got) != 1 || got[0] != "today" {
		t.Fatalf("unexpected today group: %v", got)
	}
	if got := taskIDs(d.ThisWeek); len(got) != 1 || got[0] != "sunday" {
		t.Fatalf("unexpected this-week group: %v", got)
	}
	if d.Total != 6 || d.Ongoing != 2 || d.Done != 1 {
		t.Fatalf("unexpected counters: total=%d ongoing=%d done=%d", d.Total, d.Ongoing, d.Done)
	}
}

func TestBuildEscapesAndSummarises(t *testing.T) {
	text := NewDigestService().Build(digestTasks(), digestNow)

	for _, want := range []string{"01.06.2024", "Overdue", "Today", "Later this week", "Call &lt;mom&gt;", "Total: 6"} {
		if !strings.Contains(text, want) {
			t.Fatalf("digest missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Dentist") || strings.Contains(text, "Old report") {
		t.Fatalf("digest should only list urgent open tasks:\n%s", text)
	}
}

func TestBuildEmpty(t *testing.T) {
	text := NewDigestService().Build(nil, digestNow)
	if !strings.Contains(text, "nothing urgent") {
		t.Fatalf("unexpected empty digest:\n%s", text)
	}
}

func TestBuildDailySpec(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:30", want: "0 30 9 * * *"},
		{in: " 23:05 ", want: "0 5 23 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := buildDailySpec(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	s := NewSchedulerService(time.UTC, nil)
	if _, err := s.ScheduleInterval(0, "digest", nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := s.ScheduleDaily("7pm", "digest", nil); err == nil {
		t.Fatalf("expected error for bad time")
	}
	if _, err := s.ScheduleInterval(time.Hour, "digest", nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
}
