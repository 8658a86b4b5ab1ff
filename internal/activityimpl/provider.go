// Package activityimpl is the local task activity provider: it persists
// tasks, re-runs assignment resolution on reassignment and escalation, and
// pushes notifications. It implements the side-effect contract the wait
// protocol schedules.
package activityimpl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/humangate/humangate/internal/assignment"
	"github.com/humangate/humangate/internal/notification"
	"github.com/humangate/humangate/internal/protocol"
	"github.com/humangate/humangate/internal/signalbus"
	"github.com/humangate/humangate/internal/task"
)

type Provider struct {
	tasks    task.Repository
	resolver *assignment.Resolver
	notifier notification.Notifier
	bus      *signalbus.Bus
}

func NewProvider(tasks task.Repository, resolver *assignment.Resolver, notifier notification.Notifier, bus *signalbus.Bus) *Provider {
	return &Provider{
		tasks:    tasks,
		resolver: resolver,
		notifier: notifier,
		bus:      bus,
	}
}

func (p *Provider) CreateTask(ctx context.Context, in protocol.CreateTaskInput) (string, error) {
	now := time.Now()
	t := &task.Task{
		ID:          ulid.Make().String(),
		TenantID:    in.TenantID,
		ProcessID:   in.ProcessID,
		RunID:       in.RunID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Form:        in.Form,
		Assignment:  in.Assignment,
		AssigneeID:  in.AssigneeID,
		SLA:         in.SLA,
		Context:     in.Context,
		Metadata:    in.Metadata,
		Priority:    in.Priority,
		Status:      task.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		DueAt:       in.DueAt,
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if err := p.tasks.Create(ctx, t); err != nil {
		return "", err
	}

	p.notify(ctx, t, &notification.Payload{
		Title: "New task assigned",
		Body:  t.Title,
		Tag:   "task-assigned",
	})
	return t.ID, nil
}

func (p *Provider) ReassignTask(ctx context.Context, taskID string, target task.AssignmentTarget) error {
	t, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Resolved() {
		return fmt.Errorf("task %s is already resolved", taskID)
	}

	res, err := p.resolver.Resolve(ctx, target, "")
	if err != nil {
		return err
	}
	t.Assignment = target
	t.AssigneeID = res.PersonID
	t.UpdatedAt = time.Now()
	if err := p.tasks.Update(ctx, t); err != nil {
		return err
	}

	p.notify(ctx, t, &notification.Payload{
		Title: "Task reassigned to you",
		Body:  t.Title,
		Tag:   "task-reassigned",
	})
	return nil
}

func (p *Provider) NotifyTaskUrgent(ctx context.Context, taskID, message string) error {
	t, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if message == "" {
		message = fmt.Sprintf("Task %q needs attention", t.Title)
	}
	return p.notifier.Notify(ctx, t.AssigneeID, &notification.Payload{
		Title: "Task needs attention",
		Body:  message,
		Tag:   "task-urgent",
	})
}

// EscalateTask reassigns to the escalation target and raises the priority to
// urgent. A nil target keeps the current assignment and only raises priority.
func (p *Provider) EscalateTask(ctx context.Context, taskID string, target *task.AssignmentTarget) error {
	t, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Resolved() {
		return fmt.Errorf("task %s is already resolved", taskID)
	}

	if target != nil && !target.IsZero() {
		res, err := p.resolver.Resolve(ctx, *target, "")
		if err != nil {
			return err
		}
		t.Assignment = *target
		t.AssigneeID = res.PersonID
	}
	t.Priority = task.PriorityUrgent
	t.UpdatedAt = time.Now()
	if err := p.tasks.Update(ctx, t); err != nil {
		return err
	}

	p.notify(ctx, t, &notification.Payload{
		Title: "Task escalated to you",
		Body:  t.Title,
		Tag:   "task-escalated",
	})
	return nil
}

// CancelTask resolves the task as cancelled and publishes the cancellation
// signal. Cancelling an already resolved task is a no-op so breach-cancel
// and straggler cleanup can race human action safely.
func (p *Provider) CancelTask(ctx context.Context, taskID, reason string) error {
	t, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Resolved() {
		return nil
	}

	now := time.Now()
	t.Status = task.StatusCancelled
	t.CancelReason = reason
	t.UpdatedAt = now
	if err := p.tasks.Update(ctx, t); err != nil {
		return err
	}

	if _, err := p.bus.DeliverNew(signalbus.SignalTaskCancelled, t.ID, protocol.CancelledSignal{
		TaskID: t.ID,
		Reason: reason,
	}); err != nil {
		return err
	}
	return nil
}

// notify is best-effort on task mutations. Unassigned tasks broadcast.
func (p *Provider) notify(ctx context.Context, t *task.Task, payload *notification.Payload) {
	if err := p.notifier.Notify(ctx, t.AssigneeID, payload); err != nil {
		slog.WarnContext(ctx, "failed to deliver task notification", "task_id", t.ID, "error", err)
	}
}

var _ protocol.Activities = (*Provider)(nil)
