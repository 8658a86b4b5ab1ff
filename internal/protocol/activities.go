package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/humangate/humangate/internal/task"
)

// CreateTaskInput carries everything needed to persist a task and make it
// visible to assignees. Assignment resolution has already happened by the
// time this activity runs; AssigneeID is the resolved person, if any.
type CreateTaskInput struct {
	TenantID    string
	ProcessID   string
	RunID       string
	Type        string
	Title       string
	Description string
	Form        task.FormSchema
	Assignment  task.AssignmentTarget
	AssigneeID  string
	Priority    task.Priority
	Context     map[string]string
	Metadata    map[string]string
	DueAt       *time.Time
	WarnBefore  time.Duration
	SLA         *task.SLAConfig
}

// Activities are the side effects the wait protocol schedules. They run
// outside the deterministic wait loop and may touch storage, notification
// channels, and assignees.
type Activities interface {
	// CreateTask persists the task and returns its id.
	CreateTask(ctx context.Context, in CreateTaskInput) (string, error)

	// ReassignTask moves the task to a new target, re-running assignment
	// resolution against it.
	ReassignTask(ctx context.Context, taskID string, target task.AssignmentTarget) error

	// NotifyTaskUrgent pushes an urgency notification to the current
	// assignee without changing the assignment.
	NotifyTaskUrgent(ctx context.Context, taskID, message string) error

	// EscalateTask reassigns the task to the escalation target and raises
	// its priority.
	EscalateTask(ctx context.Context, taskID string, target *task.AssignmentTarget) error

	// CancelTask marks the task cancelled and publishes the cancellation
	// signal. Cancelling an already resolved task is a no-op.
	CancelTask(ctx context.Context, taskID, reason string) error
}

// RetryPolicy controls the exponential backoff applied to failing activities.
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultRetryPolicy matches the activity options every wait uses: three
// attempts with exponential backoff capped at ten seconds.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	Initial:    time.Second,
	Max:        10 * time.Second,
	Multiplier: 2,
}

type retryingActivities struct {
	inner  Activities
	policy RetryPolicy
}

// WithRetries wraps activities so each call is retried per policy before the
// error surfaces to the wait loop.
func WithRetries(inner Activities, policy RetryPolicy) Activities {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &retryingActivities{inner: inner, policy: policy}
}

func (r *retryingActivities) retry(ctx context.Context, name string, fn func(context.Context) error) error {
	backoff := r.policy.Initial
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= r.policy.Attempts {
			return err
		}
		slog.WarnContext(ctx, "activity failed, retrying",
			"activity", name, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * r.policy.Multiplier)
		if backoff > r.policy.Max {
			backoff = r.policy.Max
		}
	}
}

func (r *retryingActivities) CreateTask(ctx context.Context, in CreateTaskInput) (string, error) {
	var id string
	err := r.retry(ctx, "CreateTask", func(ctx context.Context) error {
		var err error
		id, err = r.inner.CreateTask(ctx, in)
		return err
	})
	return id, err
}

func (r *retryingActivities) ReassignTask(ctx context.Context, taskID string, target task.AssignmentTarget) error {
	return r.retry(ctx, "ReassignTask", func(ctx context.Context) error {
		return r.inner.ReassignTask(ctx, taskID, target)
	})
}

func (r *retryingActivities) NotifyTaskUrgent(ctx context.Context, taskID, message string) error {
	return r.retry(ctx, "NotifyTaskUrgent", func(ctx context.Context) error {
		return r.inner.NotifyTaskUrgent(ctx, taskID, message)
	})
}

func (r *retryingActivities) EscalateTask(ctx context.Context, taskID string, target *task.AssignmentTarget) error {
	return r.retry(ctx, "EscalateTask", func(ctx context.Context) error {
		return r.inner.EscalateTask(ctx, taskID, target)
	})
}

func (r *retryingActivities) CancelTask(ctx context.Context, taskID, reason string) error {
	return r.retry(ctx, "CancelTask", func(ctx context.Context) error {
		return r.inner.CancelTask(ctx, taskID, reason)
	})
}
