// Package protocol implements the task wait protocol: the state machine that
// creates a human task, races completion and cancellation signals against the
// SLA deadline and escalation chain, and drives breach handling. It runs on
// top of a durable execution Substrate and delegates all side effects to
// Activities so the wait loop itself stays deterministic.
package protocol

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/humangate/humangate/internal/assignment"
	"github.com/humangate/humangate/internal/sla"
	"github.com/humangate/humangate/internal/task"
	"github.com/humangate/humangate/pkg/duration"
)

// TaskRequest carries the caller-supplied parameters for one human task.
type TaskRequest struct {
	TenantID    string
	ProcessID   string
	RunID       string
	Type        string
	Title       string
	Description string
	Form        task.FormSchema
	Assignment  task.AssignmentTarget
	// StrategyOverride forces a named assignment strategy instead of the
	// group's configured one. Unknown names fail the request immediately.
	StrategyOverride string
	Priority         task.Priority
	Context          map[string]string
	Metadata         map[string]string
	SLA              *task.SLAConfig
}

type waitState int

const (
	stateCreated waitState = iota
	stateWaiting
	stateBreachHandled
	stateCompleted
	stateCancelled
)

func (s waitState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateWaiting:
		return "waiting"
	case stateBreachHandled:
		return "breach_handled"
	case stateCompleted:
		return "completed"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// wakeup is one entry of the merged timer schedule: either an escalation
// chain step firing at its offset, or the single deadline breach.
type wakeup struct {
	at       time.Time
	step     *task.EscalationStep
	deadline bool
}

// Engine orchestrates single-task waits and the combinators built on them.
type Engine struct {
	substrate  Substrate
	activities Activities
	resolver   *assignment.Resolver

	// defaultEscalateTo catches escalation steps that name no target and
	// SLAs with no escalateTo, typically a manager group.
	defaultEscalateTo *task.AssignmentTarget
}

type Option func(*Engine)

// WithDefaultEscalationTarget sets the fallback target used when neither a
// chain step nor the SLA names one.
func WithDefaultEscalationTarget(t *task.AssignmentTarget) Option {
	return func(e *Engine) {
		e.defaultEscalateTo = t
	}
}

func NewEngine(substrate Substrate, activities Activities, resolver *assignment.Resolver, opts ...Option) *Engine {
	e := &Engine{
		substrate:  substrate,
		activities: activities,
		resolver:   resolver,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WaitForTask creates the task and blocks until it resolves. It returns the
// completion result, a TaskCancelledError when the task is cancelled by
// signal or by a breach-cancel action, or ctx.Err when the caller gives up.
func (e *Engine) WaitForTask(ctx context.Context, req TaskRequest) (*task.Result, error) {
	return e.waitForTask(ctx, req, nil)
}

// waitForTask is the combinator-facing variant: onCreated, when non-nil,
// observes the task id as soon as creation succeeds so AnyTask can cancel
// stragglers it never saw resolve.
func (e *Engine) waitForTask(ctx context.Context, req TaskRequest, onCreated func(taskID string)) (*task.Result, error) {
	if req.Title == "" {
		return nil, errors.New("task title is required")
	}

	res, err := e.resolver.Resolve(ctx, req.Assignment, req.StrategyOverride)
	if err != nil {
		return nil, err
	}

	createdAt := e.substrate.Now()
	dueAt, hasDeadline := sla.ComputeDeadline(createdAt, req.SLA)

	in := CreateTaskInput{
		TenantID:    req.TenantID,
		ProcessID:   req.ProcessID,
		RunID:       req.RunID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Form:        req.Form,
		Assignment:  req.Assignment,
		AssigneeID:  res.PersonID,
		Priority:    req.Priority,
		Context:     req.Context,
		Metadata:    req.Metadata,
		SLA:         req.SLA,
	}
	if hasDeadline {
		due := dueAt
		in.DueAt = &due
		if req.SLA != nil {
			in.WarnBefore = req.SLA.WarnBefore
		}
	}

	taskID, err := e.activities.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	if onCreated != nil {
		onCreated(taskID)
	}

	return e.runWait(ctx, taskID, req.SLA, createdAt, dueAt, hasDeadline)
}

// ResumeTask re-attaches a wait to a task that already exists, rebuilding the
// timer schedule from its original creation instant. Schedule entries that
// elapsed while nobody was watching fire immediately, in order, so a missed
// breach action still happens.
func (e *Engine) ResumeTask(ctx context.Context, taskID string, cfg *task.SLAConfig, createdAt time.Time) (*task.Result, error) {
	if taskID == "" {
		return nil, errors.New("task id is required")
	}
	dueAt, hasDeadline := sla.ComputeDeadline(createdAt, cfg)
	return e.runWait(ctx, taskID, cfg, createdAt, dueAt, hasDeadline)
}

// runWait is the shared wait loop behind WaitForTask and ResumeTask.
func (e *Engine) runWait(ctx context.Context, taskID string, cfg *task.SLAConfig, createdAt, dueAt time.Time, hasDeadline bool) (*task.Result, error) {
	state := stateCreated
	slog.DebugContext(ctx, "entering task wait",
		"task_id", taskID, "state", state.String(), "has_deadline", hasDeadline)

	completedCh, stopCompleted := e.substrate.CompletedSignals(taskID)
	defer stopCompleted()
	cancelledCh, stopCancelled := e.substrate.CancelledSignals(taskID)
	defer stopCancelled()

	schedule := buildSchedule(createdAt, cfg, dueAt, hasDeadline)
	next := 0
	var timerCh <-chan time.Time
	if next < len(schedule) {
		timerCh = e.substrate.Timer(ctx, schedule[next].at)
	}

	state = stateWaiting
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case sig, ok := <-completedCh:
			if !ok {
				completedCh = nil
				if cancelledCh == nil {
					return nil, &TaskResolutionError{TaskID: taskID}
				}
				continue
			}
			state = stateCompleted
			slog.InfoContext(ctx, "task completed",
				"task_id", taskID, "completed_by", sig.CompletedBy, "state", state.String())
			return &task.Result{
				TaskID:      taskID,
				Data:        sig.Data,
				CompletedBy: sig.CompletedBy,
				CompletedAt: sig.CompletedAt,
			}, nil

		case sig, ok := <-cancelledCh:
			if !ok {
				cancelledCh = nil
				if completedCh == nil {
					return nil, &TaskResolutionError{TaskID: taskID}
				}
				continue
			}
			state = stateCancelled
			slog.InfoContext(ctx, "task cancelled",
				"task_id", taskID, "cancelled_by", sig.CancelledBy, "reason", sig.Reason, "state", state.String())
			return nil, &TaskCancelledError{
				TaskID:      taskID,
				Reason:      sig.Reason,
				CancelledBy: sig.CancelledBy,
			}

		case now := <-timerCh:
			w := schedule[next]
			next++
			if next < len(schedule) {
				timerCh = e.substrate.Timer(ctx, schedule[next].at)
			} else {
				timerCh = nil
			}

			state = stateBreachHandled
			elapsed := now.Sub(createdAt)
			if w.deadline {
				if err := e.handleBreach(ctx, taskID, cfg, elapsed); err != nil {
					return nil, err
				}
			} else {
				e.applyStep(ctx, taskID, w.step, cfg, elapsed)
			}
			state = stateWaiting
		}
	}
}

// buildSchedule merges the escalation chain offsets with the single deadline
// instant into one ascending wake-up schedule. Chain steps sharing the
// deadline instant fire before the breach action.
func buildSchedule(createdAt time.Time, cfg *task.SLAConfig, dueAt time.Time, hasDeadline bool) []wakeup {
	if cfg == nil {
		return nil
	}
	var schedule []wakeup
	for _, step := range sla.SortedChain(cfg.Chain) {
		s := step
		schedule = append(schedule, wakeup{at: createdAt.Add(s.After), step: &s})
	}
	if hasDeadline {
		i := 0
		for i < len(schedule) && !schedule[i].at.After(dueAt) {
			i++
		}
		schedule = append(schedule[:i:i], append([]wakeup{{at: dueAt, deadline: true}}, schedule[i:]...)...)
	}
	return schedule
}

// handleBreach performs exactly one breach action. A non-nil return is
// terminal: only the cancel action (or its infrastructure failure) ends the
// wait; notify and escalate log failures and let the wait resume.
func (e *Engine) handleBreach(ctx context.Context, taskID string, cfg *task.SLAConfig, elapsed time.Duration) error {
	elapsedDesc := duration.Format(elapsed)

	switch cfg.OnBreach {
	case task.BreachCancel:
		reason := sla.BreachReason(nil, elapsedDesc)
		if err := e.activities.CancelTask(ctx, taskID, reason); err != nil {
			return err
		}
		return &TaskCancelledError{TaskID: taskID, Reason: reason}

	case task.BreachEscalate:
		// An inline escalate breach consults the chain first: the most
		// advanced due step wins, then the SLA's escalateTo, then the
		// engine default.
		step := sla.ApplicableStep(cfg.Chain, elapsed)
		fallback := cfg.EscalateTo
		if fallback == nil || fallback.IsZero() {
			fallback = e.defaultEscalateTo
		}
		target := sla.StepTarget(step, fallback)
		slog.InfoContext(ctx, "SLA breached, escalating",
			"task_id", taskID, "elapsed", elapsedDesc)
		if err := e.activities.EscalateTask(ctx, taskID, target); err != nil {
			slog.ErrorContext(ctx, "escalation on breach failed", "task_id", taskID, "error", err)
		}

	default:
		// Notify is the default breach action when the SLA names none.
		msg := sla.BreachReason(nil, elapsedDesc)
		slog.InfoContext(ctx, "SLA breached, notifying",
			"task_id", taskID, "elapsed", elapsedDesc)
		if err := e.activities.NotifyTaskUrgent(ctx, taskID, msg); err != nil {
			slog.ErrorContext(ctx, "breach notification failed", "task_id", taskID, "error", err)
		}
	}
	return nil
}

// applyStep executes one escalation chain step. Step failures never end the
// wait; the task can still resolve by signal.
func (e *Engine) applyStep(ctx context.Context, taskID string, step *task.EscalationStep, cfg *task.SLAConfig, elapsed time.Duration) {
	elapsedDesc := duration.Format(elapsed)

	switch step.Action {
	case task.StepEscalate:
		fallback := e.defaultEscalateTo
		if cfg != nil && cfg.EscalateTo != nil && !cfg.EscalateTo.IsZero() {
			fallback = cfg.EscalateTo
		}
		target := sla.StepTarget(step, fallback)
		slog.InfoContext(ctx, "escalation step due",
			"task_id", taskID, "elapsed", elapsedDesc)
		if err := e.activities.EscalateTask(ctx, taskID, target); err != nil {
			slog.ErrorContext(ctx, "escalation step failed", "task_id", taskID, "error", err)
		}

	case task.StepReassign:
		target := sla.StepTarget(step, nil)
		if target == nil {
			slog.WarnContext(ctx, "reassign step has no target, skipping", "task_id", taskID)
			return
		}
		slog.InfoContext(ctx, "reassignment step due",
			"task_id", taskID, "elapsed", elapsedDesc)
		if err := e.activities.ReassignTask(ctx, taskID, *target); err != nil {
			slog.ErrorContext(ctx, "reassignment step failed", "task_id", taskID, "error", err)
		}

	default:
		msg := step.Message
		if msg == "" {
			msg = sla.BreachReason(step, elapsedDesc)
		}
		if err := e.activities.NotifyTaskUrgent(ctx, taskID, msg); err != nil {
			slog.ErrorContext(ctx, "notification step failed", "task_id", taskID, "error", err)
		}
	}
}
