// Package filter narrows a task collection by priority, status and due-date
// window. Every function is pure: inputs are never modified.
package filter

import (
	"slices"
	"time"

	"task-planner/internal/model"
)

// Apply runs ByPriority, ByStatus and ByDueWindow in that order over a copy
// of tasks, relative to the current local day.
func Apply(tasks []model.Task, c Criteria) []model.Task {
	return ApplyAt(tasks, c, time.Now())
}

// ApplyAt is Apply with an explicit "now".
func ApplyAt(tasks []model.Task, c Criteria, now time.Time) []model.Task {
	out := slices.Clone(tasks)
	out = ByPriority(out, c.Priorities)
	out = ByStatus(out, c.Statuses)
	out = ByDueWindow(out, c.DueWindow, now)
	if out == nil {
		out = []model.Task{}
	}
	return out
}

// ByPriority keeps tasks whose priority is listed. An empty list keeps all.
func ByPriority(tasks []model.Task, priorities []model.Priority) []model.Task {
	if len(priorities) == 0 {
		return tasks
	}
	return keep(tasks, func(t model.Task) bool {
		return slices.Contains(priorities, t.Priority)
	})
}

// ByStatus keeps tasks whose status is listed, ignoring case. An empty list
// keeps all.
func ByStatus(tasks []model.Task, statuses []model.Status) []model.Task {
	if len(statuses) == 0 {
		return tasks
	}
	wanted := make(map[model.Status]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s.Normalize()] = struct{}{}
	}
	return keep(tasks, func(t model.Task) bool {
		_, ok := wanted[t.Status.Normalize()]
		return ok
	})
}

// ByDueWindow keeps tasks inside the window relative to now's day. Tasks
// without a due date only survive WindowNone.
func ByDueWindow(tasks []model.Task, w DueWindow, now time.Time) []model.Task {
	today := Day(now)
	switch w {
	case WindowToday:
		return keep(tasks, func(t model.Task) bool {
			return t.DueDate != nil && Day(*t.DueDate).Equal(today)
		})
	case WindowThisWeek:
		end := EndOfWeek(now)
		return keep(tasks, func(t model.Task) bool {
			if t.DueDate == nil {
				return false
			}
			due := Day(*t.DueDate)
			return !due.Before(today) && !due.After(end)
		})
	case WindowOverdue:
		return keep(tasks, func(t model.Task) bool {
			return IsOverdue(t, now)
		})
	default:
		return tasks
	}
}

// IsOverdue holds when the task has a due day strictly before now's day and
// is not completed.
func IsOverdue(t model.Task, now time.Time) bool {
	if t.DueDate == nil || t.Status.Normalize() == model.StatusCompleted {
		return false
	}
	return Day(*t.DueDate).Before(Day(now))
}

// Day truncates t to its calendar date. The date is read in t's own
// location, so a due date stored as midnight UTC stays on its day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfWeek is today plus (7 - weekday) days, so the window closes on the
// coming Sunday (a full week ahead when today is Sunday).
func EndOfWeek(now time.Time) time.Time {
	return Day(now).AddDate(0, 0, 7-int(now.Weekday()))
}

func keep(tasks []model.Task, pred func(model.Task) bool) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}
