package protocol

import "fmt"

// TaskCancelledError is the terminal, non-retryable failure raised when a
// task resolves via cancellation, whether by explicit signal or by an SLA
// breach-cancel action. Callers must treat it as a definite outcome.
type TaskCancelledError struct {
	TaskID      string
	Reason      string
	CancelledBy string
}

func (e *TaskCancelledError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("task %s cancelled", e.TaskID)
	}
	return fmt.Sprintf("task %s cancelled: %s", e.TaskID, e.Reason)
}

// TaskResolutionError indicates the wait loop exited without a completion or
// cancellation payload. It signals a bug in the protocol's state tracking
// and should alert operators when observed.
type TaskResolutionError struct {
	TaskID string
}

func (e *TaskResolutionError) Error() string {
	return fmt.Sprintf("task %s wait ended without a resolution", e.TaskID)
}
