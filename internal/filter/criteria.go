package filter

import (
	"slices"
	"strings"

	"task-planner/internal/model"
)

// DueWindow names a due-date range predicate.
type DueWindow string

const (
	WindowNone     DueWindow = ""
	WindowToday    DueWindow = "today"
	WindowThisWeek DueWindow = "this_week"
	WindowOverdue  DueWindow = "overdue"
)

// Windows lists the selectable due-date windows.
var Windows = []DueWindow{WindowToday, WindowThisWeek, WindowOverdue}

// ParseDueWindow accepts "Today", "This Week", "this-week", "thisweek" and
// similar spellings. Empty input or "none" yields WindowNone.
func ParseDueWindow(raw string) (DueWindow, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "", "none", "all":
		return WindowNone, true
	case "today":
		return WindowToday, true
	case "thisweek", "week":
		return WindowThisWeek, true
	case "overdue":
		return WindowOverdue, true
	default:
		return WindowNone, false
	}
}

// Label returns the display form of the window.
func (w DueWindow) Label() string {
	switch w {
	case WindowToday:
		return "Today"
	case WindowThisWeek:
		return "This Week"
	case WindowOverdue:
		return "Overdue"
	default:
		return "Any"
	}
}

// Criteria selects a subset of tasks. The zero value matches everything.
type Criteria struct {
	Priorities []model.Priority `json:"priorities"`
	Statuses   []model.Status   `json:"statuses"`
	DueWindow  DueWindow        `json:"due_window"`
}

// Clear returns the canonical empty criteria.
func Clear() Criteria {
	return Criteria{
		Priorities: []model.Priority{},
		Statuses:   []model.Status{},
		DueWindow:  WindowNone,
	}
}

// HasActive reports whether any criterion narrows the result.
func HasActive(c Criteria) bool {
	return len(c.Priorities) > 0 || len(c.Statuses) > 0 || c.DueWindow != WindowNone
}

// TogglePriority adds p when absent and removes it when present.
func (c Criteria) TogglePriority(p model.Priority) Criteria {
	out := c.clone()
	if i := slices.Index(out.Priorities, p); i >= 0 {
		out.Priorities = slices.Delete(out.Priorities, i, i+1)
	} else {
		out.Priorities = append(out.Priorities, p)
	}
	return out
}

// ToggleStatus adds s when absent and removes it when present, ignoring case.
func (c Criteria) ToggleStatus(s model.Status) Criteria {
	out := c.clone()
	s = s.Normalize()
	i := slices.IndexFunc(out.Statuses, func(v model.Status) bool { return v.Normalize() == s })
	if i >= 0 {
		out.Statuses = slices.Delete(out.Statuses, i, i+1)
	} else {
		out.Statuses = append(out.Statuses, s)
	}
	return out
}

// ToggleDueWindow selects w, or resets to WindowNone when w is already
// selected.
func (c Criteria) ToggleDueWindow(w DueWindow) Criteria {
	out := c.clone()
	if out.DueWindow == w {
		out.DueWindow = WindowNone
	} else {
		out.DueWindow = w
	}
	return out
}

// String renders the active criteria, e.g. "priority=High,Low status=ongoing due=Today".
func (c Criteria) String() string {
	if !HasActive(c) {
		return "no filters"
	}
	var parts []string
	if len(c.Priorities) > 0 {
		names := make([]string, len(c.Priorities))
		for i, p := range c.Priorities {
			names[i] = string(p)
		}
		parts = append(parts, "priority="+strings.Join(names, ","))
	}
	if len(c.Statuses) > 0 {
		names := make([]string, len(c.Statuses))
		for i, s := range c.Statuses {
			names[i] = string(s)
		}
		parts = append(parts, "status="+strings.Join(names, ","))
	}
	if c.DueWindow != WindowNone {
		parts = append(parts, "due="+c.DueWindow.Label())
	}
	return strings.Join(parts, " ")
}

func (c Criteria) clone() Criteria {
	return Criteria{
		Priorities: slices.Clone(c.Priorities),
		Statuses:   slices.Clone(c.Statuses),
		DueWindow:  c.DueWindow,
	}
}
