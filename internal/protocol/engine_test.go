package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humangate/humangate/internal/assignment"
	"github.com/humangate/humangate/internal/task"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type waitOutcome struct {
	result *task.Result
	err    error
}

func newTestEngine(sub *fakeSubstrate, acts *fakeActivities, opts ...Option) *Engine {
	return NewEngine(sub, acts, assignment.NewResolver(nil, nil), opts...)
}

// startWait launches the wait in the background and blocks until the
// protocol has created the task and registered its signal subscriptions.
func startWait(t *testing.T, ctx context.Context, e *Engine, sub *fakeSubstrate, req TaskRequest) (string, <-chan waitOutcome) {
	t.Helper()
	done := make(chan waitOutcome, 1)
	go func() {
		r, err := e.WaitForTask(ctx, req)
		done <- waitOutcome{result: r, err: err}
	}()

	var taskID string
	require.Eventually(t, func() bool {
		acts, ok := e.activities.(*fakeActivities)
		if !ok {
			return false
		}
		acts.mu.Lock()
		defer acts.mu.Unlock()
		if len(acts.createdIDs) == 0 {
			return false
		}
		taskID = acts.createdIDs[len(acts.createdIDs)-1]
		return sub.completedSubscribers(taskID) > 0
	}, time.Second, time.Millisecond, "wait never registered its subscriptions")
	return taskID, done
}

func TestWaitForTaskCompletedBySignal(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		ProcessID:  "proc-1",
		RunID:      "run-1",
		Title:      "Approve expense",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
	})

	completedAt := testStart.Add(5 * time.Minute)
	delivered := sub.deliverCompleted(CompletedSignal{
		TaskID:      taskID,
		Data:        map[string]any{"approved": true},
		CompletedBy: "alice",
		CompletedAt: completedAt,
	})
	require.True(t, delivered)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, taskID, out.result.TaskID)
	assert.Equal(t, "alice", out.result.CompletedBy)
	assert.Equal(t, completedAt, out.result.CompletedAt)
	assert.Equal(t, map[string]any{"approved": true}, out.result.Data)

	// The created task carries the resolved assignee, no deadline.
	require.Len(t, acts.created, 1)
	assert.Equal(t, "alice", acts.created[0].AssigneeID)
	assert.Nil(t, acts.created[0].DueAt)
}

func TestWaitForTaskCancelledBySignal(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		Title:      "Review contract",
		Assignment: task.AssignmentTarget{PersonID: "bob"},
	})

	sub.deliverCancelled(CancelledSignal{TaskID: taskID, Reason: "no longer needed", CancelledBy: "ops"})

	out := <-done
	var cancelled *TaskCancelledError
	require.ErrorAs(t, out.err, &cancelled)
	assert.Equal(t, taskID, cancelled.TaskID)
	assert.Equal(t, "no longer needed", cancelled.Reason)
	assert.Equal(t, "ops", cancelled.CancelledBy)
	assert.Nil(t, out.result)
}

func TestWaitForTaskNotifyOnBreachThenComplete(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		Title:      "Answer question",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		SLA: &task.SLAConfig{
			DeadlineIn: 30 * time.Minute,
			OnBreach:   task.BreachNotify,
		},
	})

	require.Len(t, acts.created, 1)
	require.NotNil(t, acts.created[0].DueAt)
	assert.Equal(t, testStart.Add(30*time.Minute), *acts.created[0].DueAt)

	sub.advanceTo(testStart.Add(30 * time.Minute))
	require.Eventually(t, func() bool { return acts.notifyCount() == 1 }, time.Second, time.Millisecond)

	// Still waiting after the breach; the deadline never re-arms.
	assert.Equal(t, 0, sub.pendingTimers())

	sub.advanceTo(testStart.Add(45 * time.Minute))
	sub.deliverCompleted(CompletedSignal{
		TaskID:      taskID,
		CompletedBy: "alice",
		CompletedAt: testStart.Add(45 * time.Minute),
	})

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, taskID, out.result.TaskID)
	assert.Equal(t, 1, acts.notifyCount(), "exactly one breach notification")
}

func TestWaitForTaskCancelOnBreach(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		Title:      "Sign document",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		SLA: &task.SLAConfig{
			DeadlineIn: time.Hour,
			OnBreach:   task.BreachCancel,
		},
	})

	sub.advanceTo(testStart.Add(time.Hour))

	out := <-done
	var cancelled *TaskCancelledError
	require.ErrorAs(t, out.err, &cancelled)
	assert.Equal(t, taskID, cancelled.TaskID)
	assert.Contains(t, cancelled.Reason, "SLA breached after 1h")

	reason, ok := acts.cancelledReason(taskID)
	require.True(t, ok, "cancel activity must run before the failure is raised")
	assert.Equal(t, cancelled.Reason, reason)
	assert.Equal(t, 0, sub.pendingTimers(), "no timer survives a breach-cancel")
}

func TestWaitForTaskEscalateOnBreachUsesChainTarget(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	l2 := &task.AssignmentTarget{GroupID: "support-l2"}
	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		Title:      "Investigate incident",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		SLA: &task.SLAConfig{
			DeadlineIn: 45 * time.Minute,
			OnBreach:   task.BreachEscalate,
			EscalateTo: &task.AssignmentTarget{GroupID: "managers"},
			Chain: []task.EscalationStep{
				{After: 15 * time.Minute, Action: task.StepNotify, Message: "still waiting"},
				{After: 30 * time.Minute, Action: task.StepEscalate, Target: l2},
			},
		},
	})

	sub.advanceTo(testStart.Add(15 * time.Minute))
	require.Eventually(t, func() bool { return acts.notifyCount() == 1 }, time.Second, time.Millisecond)
	acts.mu.Lock()
	assert.Equal(t, "still waiting", acts.notified[0])
	acts.mu.Unlock()

	sub.advanceTo(testStart.Add(30 * time.Minute))
	require.Eventually(t, func() bool { return acts.escalateCount() == 1 }, time.Second, time.Millisecond)

	// Breach escalation picks the most advanced due chain step's target
	// over the SLA's escalateTo.
	sub.advanceTo(testStart.Add(45 * time.Minute))
	require.Eventually(t, func() bool { return acts.escalateCount() == 2 }, time.Second, time.Millisecond)
	acts.mu.Lock()
	assert.Equal(t, l2, acts.escalated[1])
	acts.mu.Unlock()

	sub.deliverCompleted(CompletedSignal{TaskID: taskID, CompletedBy: "bob", CompletedAt: sub.Now()})
	out := <-done
	require.NoError(t, out.err)
}

func TestWaitForTaskReassignStep(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		Title:      "Triage ticket",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		SLA: &task.SLAConfig{
			Chain: []task.EscalationStep{
				{After: 10 * time.Minute, Action: task.StepReassign, Target: &task.AssignmentTarget{GroupID: "oncall"}},
			},
		},
	})

	sub.advanceTo(testStart.Add(10 * time.Minute))
	require.Eventually(t, func() bool {
		acts.mu.Lock()
		defer acts.mu.Unlock()
		return len(acts.reassigned) == 1
	}, time.Second, time.Millisecond)
	acts.mu.Lock()
	assert.Equal(t, task.AssignmentTarget{GroupID: "oncall"}, acts.reassigned[0])
	acts.mu.Unlock()

	sub.deliverCompleted(CompletedSignal{TaskID: taskID, CompletedBy: "carol", CompletedAt: sub.Now()})
	out := <-done
	require.NoError(t, out.err)
}

func TestWaitForTaskCallerCancellation(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	ctx, cancel := context.WithCancel(context.Background())
	_, done := startWait(t, ctx, e, sub, TaskRequest{
		Title:      "Never answered",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
	})

	cancel()
	out := <-done
	require.ErrorIs(t, out.err, context.Canceled)
}

func TestWaitForTaskRejectsEmptyTitle(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	_, err := e.WaitForTask(context.Background(), TaskRequest{
		Assignment: task.AssignmentTarget{PersonID: "alice"},
	})
	require.Error(t, err)
	assert.Equal(t, 0, acts.createdCount())
}

func TestWaitForTaskUnknownStrategyOverride(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	_, err := e.WaitForTask(context.Background(), TaskRequest{
		Title:            "Pick someone",
		Assignment:       task.AssignmentTarget{GroupID: "support"},
		StrategyOverride: "no-such-strategy",
	})
	require.ErrorIs(t, err, assignment.ErrUnknownStrategy)
	assert.Equal(t, 0, acts.createdCount(), "resolution failures must precede task creation")
}

func TestDuplicateCompletedSignalIsDropped(t *testing.T) {
	sub := newFakeSubstrate(testStart)
	acts := newFakeActivities()
	e := newTestEngine(sub, acts)

	taskID, done := startWait(t, context.Background(), e, sub, TaskRequest{
		Title:      "One shot",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
	})

	sig := CompletedSignal{TaskID: taskID, CompletedBy: "alice", CompletedAt: sub.Now()}
	require.True(t, sub.deliverCompleted(sig))
	out := <-done
	require.NoError(t, out.err)

	// The wait has unsubscribed; redelivery finds no listener.
	require.Eventually(t, func() bool {
		return sub.completedSubscribers(taskID) == 0
	}, time.Second, time.Millisecond)
	assert.False(t, sub.deliverCompleted(sig))
}

func TestBuildScheduleMergesChainAndDeadline(t *testing.T) {
	cfg := &task.SLAConfig{
		DeadlineIn: 30 * time.Minute,
		Chain: []task.EscalationStep{
			{After: 45 * time.Minute, Action: task.StepNotify},
			{After: 15 * time.Minute, Action: task.StepNotify},
		},
	}
	due := testStart.Add(30 * time.Minute)
	schedule := buildSchedule(testStart, cfg, due, true)

	require.Len(t, schedule, 3)
	assert.Equal(t, testStart.Add(15*time.Minute), schedule[0].at)
	assert.False(t, schedule[0].deadline)
	assert.Equal(t, due, schedule[1].at)
	assert.True(t, schedule[1].deadline)
	assert.Equal(t, testStart.Add(45*time.Minute), schedule[2].at)
	assert.False(t, schedule[2].deadline)
}
