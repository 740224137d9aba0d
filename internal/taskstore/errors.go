package taskstore

import (
	"errors"
	"fmt"
)

var (
	ErrFetch              = errors.New("fetch tasks failed")
	ErrCreate             = errors.New("create task failed")
	ErrUpdate             = errors.New("update task failed")
	ErrDelete             = errors.New("delete task failed")
	ErrCompensationFailed = errors.New("compensation failed")

	ErrInvalidTask = errors.New("invalid task")
)

// Error is a failed store operation. Kind is one of ErrFetch, ErrCreate,
// ErrUpdate or ErrDelete; Err is the record store or validation cause.
type Error struct {
	Kind   error
	TaskID string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s: task %s", msg, e.TaskID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// CompensationError means a task row was created, its sub-tasks were not,
// and deleting the task row failed too. The task exists without its
// sub-tasks and needs manual reconciliation.
type CompensationError struct {
	TaskID       string
	Cause        error
	Compensation error
}

func (e *CompensationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: task %s left without sub-tasks: %v (rollback: %v)",
		ErrCompensationFailed, e.TaskID, e.Cause, e.Compensation)
}

func (e *CompensationError) Unwrap() []error {
	return []error{ErrCompensationFailed, e.Cause, e.Compensation}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTask, fmt.Sprintf(format, args...))
}
