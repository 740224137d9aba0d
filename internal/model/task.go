package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound reports that no row matched; it is gorm's sentinel so callers
// can match either name.
var ErrNotFound = gorm.ErrRecordNotFound

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists every priority in ascending order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority matches a priority case-insensitively.
func ParsePriority(raw string) (Priority, bool) {
	value := strings.TrimSpace(raw)
	for _, p := range Priorities {
		if strings.EqualFold(value, string(p)) {
			return p, true
		}
	}
	return "", false
}

// Status is the lifecycle stage of a task.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusUpcoming, StatusOngoing, StatusCompleted}

// Normalize lowercases and trims the status so that "Completed" and
// "completed" compare equal.
func (s Status) Normalize() Status {
	return Status(strings.ToLower(strings.TrimSpace(string(s))))
}

// ParseStatus matches a status case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	value := Status(raw).Normalize()
	for _, s := range Statuses {
		if value == s {
			return s, true
		}
	}
	return "", false
}

// Label returns the display form of the status ("Ongoing").
func (s Status) Label() string {
	value := string(s.Normalize())
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// Task is a row of the tasks table. A task with an empty ID has not been
// persisted yet.
type Task struct {
	ID        string     `gorm:"primaryKey;size:36"`
	UserID    string     `gorm:"index;size:36;not null"`
	Title     string     `gorm:"not null"`
	DueDate   *time.Time `gorm:"type:date"`
	Priority  Priority   `gorm:"size:16;default:Medium"`
	Status    Status     `gorm:"size:16;default:upcoming"`
	CreatedAt time.Time
	UpdatedAt time.Time
	SubTasks  []SubTask `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

// Persisted reports whether the store has assigned an ID.
func (t Task) Persisted() bool {
	return t.ID != ""
}

func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// SubTask is a row of the sub_tasks table, always bound to a parent task.
type SubTask struct {
	ID        string `gorm:"primaryKey;size:36"`
	TaskID    string `gorm:"index;size:36;not null"`
	Title     string `gorm:"not null"`
	CreatedAt time.Time
}

func (s *SubTask) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Table names used by the record store contract.
const (
	TableTasks    = "tasks"
	TableSubTasks = "sub_tasks"
)

func (Task) TableName() string { return TableTasks }

func (SubTask) TableName() string { return TableSubTasks }
