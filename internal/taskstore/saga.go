package taskstore

import (
	"context"
	"errors"
	"fmt"
)

// sagaStep is one forward action with an optional undo.
type sagaStep struct {
	name string
	do   func(context.Context) error
	undo func(context.Context) error
}

// sagaFailure reports the step that failed and, when any undo also failed,
// the joined compensation errors.
type sagaFailure struct {
	Step         string
	Err          error
	Compensation error
}

func (f *sagaFailure) Error() string {
	if f.Compensation != nil {
		return fmt.Sprintf("step %s: %v; compensation: %v", f.Step, f.Err, f.Compensation)
	}
	return fmt.Sprintf("step %s: %v", f.Step, f.Err)
}

func (f *sagaFailure) Unwrap() error { return f.Err }

// runSaga runs steps in order. When a step fails, the undo of every
// completed step runs in reverse order. Undo ignores cancellation of ctx: a
// rollback that has started always runs to completion.
func runSaga(ctx context.Context, steps []sagaStep) error {
	done := make([]sagaStep, 0, len(steps))
	for _, step := range steps {
		if err := step.do(ctx); err != nil {
			failure := &sagaFailure{Step: step.name, Err: err}
			undoCtx := context.WithoutCancel(ctx)
			for i := len(done) - 1; i >= 0; i-- {
				if done[i].undo == nil {
					continue
				}
				if uerr := done[i].undo(undoCtx); uerr != nil {
					failure.Compensation = errors.Join(failure.Compensation, fmt.Errorf("undo %s: %w", done[i].name, uerr))
				}
			}
			return failure
		}
		done = append(done, step)
	}
	return nil
}
