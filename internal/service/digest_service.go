// Package service holds the periodic digest and the cron scheduler that
// drives it.
package service

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"task-planner/internal/filter"
	"task-planner/internal/model"
)

const (
	iconOverdue  = "⚠️"
	iconToday    = "⏳"
	iconWeek     = "📅"
	iconNoDate   = "🟢"
	digestLayout = "2006-01-02"
)

// DigestService renders a task summary grouped by due-date window.
type DigestService struct{}

func NewDigestService() *DigestService {
	return &DigestService{}
}

// Digest is the grouped view behind a rendered summary.
type Digest struct {
	Overdue  []model.Task
	Today    []model.Task
	ThisWeek []model.Task
	Total    int
	Ongoing  int
	Done     int
}

// Empty reports whether nothing needs attention.
func (d Digest) Empty() bool {
	return len(d.Overdue) == 0 && len(d.Today) == 0 && len(d.ThisWeek) == 0
}

// Collect groups tasks into the overdue, today and rest-of-week windows.
// Completed tasks never appear in a group; a task due today is not repeated
// under this week.
func (s *DigestService) Collect(tasks []model.Task, now time.Time) Digest {
	open := filter.ByStatus(tasks, []model.Status{model.StatusUpcoming, model.StatusOngoing})
	today := filter.Day(now)

	d := Digest{
		Overdue: filter.ByDueWindow(open, filter.WindowOverdue, now),
		Today:   filter.ByDueWindow(open, filter.WindowToday, now),
		Total:   len(tasks),
	}
	for _, t := range filter.ByDueWindow(open, filter.WindowThisWeek, now) {
		if !filter.Day(*t.DueDate).Equal(today) {
			d.ThisWeek = append(d.ThisWeek, t)
		}
	}
	for _, t := range tasks {
		switch t.Status.Normalize() {
		case model.StatusOngoing:
			d.Ongoing++
		case model.StatusCompleted:
			d.Done++
		}
	}

	for _, group := range [][]model.Task{d.Overdue, d.Today, d.ThisWeek} {
		sortByDue(group)
	}
	return d
}

// Build renders the digest as Telegram HTML.
func (s *DigestService) Build(tasks []model.Task, now time.Time) string {
	d := s.Collect(tasks, now)

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	if d.Empty() {
		builder.WriteString("— nothing urgent this week\n")
	} else {
		writeSection(&builder, iconOverdue, "Overdue", d.Overdue, now)
		writeSection(&builder, iconToday, "Today", d.Today, now)
		writeSection(&builder, iconWeek, "Later this week", d.ThisWeek, now)
	}

	builder.WriteString(fmt.Sprintf("\n📊 Total: %d · ongoing: %d · done: %d", d.Total, d.Ongoing, d.Done))
	return strings.TrimSpace(builder.String())
}

func writeSection(b *strings.Builder, icon, title string, tasks []model.Task, now time.Time) {
	if len(tasks) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", icon, title))
	for _, t := range tasks {
		b.WriteString(FormatTaskLine(t, now))
	}
	b.WriteByte('\n')
}

// FormatTaskLine renders one task as an HTML line with a due-date hint.
func FormatTaskLine(t model.Task, now time.Time) string {
	icon := iconNoDate
	switch {
	case filter.IsOverdue(t, now):
		icon = iconOverdue
	case t.DueDate != nil && filter.Day(*t.DueDate).Equal(filter.Day(now)):
		icon = iconToday
	case t.DueDate != nil:
		icon = iconWeek
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s <i>[%s · %s]</i>", icon, html.EscapeString(strings.TrimSpace(t.Title)), t.Priority, t.Status.Label()))
	if t.DueDate != nil {
		due := filter.Day(*t.DueDate)
		days := int(due.Sub(filter.Day(now)).Hours() / 24)
		switch {
		case days < 0:
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", due.Format(digestLayout)))
		case days == 0:
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · today", due.Format(digestLayout)))
		default:
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · %d days left", due.Format(digestLayout), days))
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func sortByDue(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		case !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}
