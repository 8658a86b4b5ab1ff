package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/humangate/humangate/internal/task"
)

// fakeSubstrate is a manual clock. Tests register waits, then advance the
// clock or inject signals and observe the protocol's reactions.
type fakeSubstrate struct {
	mu        sync.Mutex
	now       time.Time
	timers    []pendingTimer
	completed map[string][]chan CompletedSignal
	cancelled map[string][]chan CancelledSignal
}

type pendingTimer struct {
	at time.Time
	ch chan time.Time
}

func newFakeSubstrate(start time.Time) *fakeSubstrate {
	return &fakeSubstrate{
		now:       start,
		completed: make(map[string][]chan CompletedSignal),
		cancelled: make(map[string][]chan CancelledSignal),
	}
}

func (s *fakeSubstrate) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSubstrate) Timer(_ context.Context, at time.Time) <-chan time.Time {
	ch := make(chan time.Time, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !at.After(s.now) {
		ch <- s.now
		return ch
	}
	s.timers = append(s.timers, pendingTimer{at: at, ch: ch})
	return ch
}

func (s *fakeSubstrate) CompletedSignals(taskID string) (<-chan CompletedSignal, func()) {
	ch := make(chan CompletedSignal, 4)
	s.mu.Lock()
	s.completed[taskID] = append(s.completed[taskID], ch)
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.completed[taskID]
		for i := range subs {
			if subs[i] == ch {
				s.completed[taskID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

func (s *fakeSubstrate) CancelledSignals(taskID string) (<-chan CancelledSignal, func()) {
	ch := make(chan CancelledSignal, 4)
	s.mu.Lock()
	s.cancelled[taskID] = append(s.cancelled[taskID], ch)
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.cancelled[taskID]
		for i := range subs {
			if subs[i] == ch {
				s.cancelled[taskID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// advanceTo moves the clock and fires every timer due at or before t.
func (s *fakeSubstrate) advanceTo(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
	remaining := s.timers[:0]
	for _, pt := range s.timers {
		if !pt.at.After(t) {
			pt.ch <- pt.at
		} else {
			remaining = append(remaining, pt)
		}
	}
	s.timers = remaining
}

// deliverCompleted reports whether anyone was listening, mirroring the
// at-least-once delivery contract where unconsumed duplicates are dropped.
func (s *fakeSubstrate) deliverCompleted(sig CompletedSignal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.completed[sig.TaskID]
	for _, ch := range subs {
		ch <- sig
	}
	return len(subs) > 0
}

func (s *fakeSubstrate) deliverCancelled(sig CancelledSignal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.cancelled[sig.TaskID]
	for _, ch := range subs {
		ch <- sig
	}
	return len(subs) > 0
}

func (s *fakeSubstrate) pendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeSubstrate) completedSubscribers(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed[taskID])
}

// fakeActivities records every side effect the protocol schedules.
type fakeActivities struct {
	mu     sync.Mutex
	nextID int

	created    []CreateTaskInput
	createdIDs []string
	notified   []string
	escalated  []*task.AssignmentTarget
	reassigned []task.AssignmentTarget
	cancelled  map[string]string
}

func newFakeActivities() *fakeActivities {
	return &fakeActivities{cancelled: make(map[string]string)}
}

func (a *fakeActivities) CreateTask(_ context.Context, in CreateTaskInput) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := fmt.Sprintf("task-%d", a.nextID)
	a.created = append(a.created, in)
	a.createdIDs = append(a.createdIDs, id)
	return id, nil
}

func (a *fakeActivities) ReassignTask(_ context.Context, _ string, target task.AssignmentTarget) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reassigned = append(a.reassigned, target)
	return nil
}

func (a *fakeActivities) NotifyTaskUrgent(_ context.Context, _ string, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notified = append(a.notified, message)
	return nil
}

func (a *fakeActivities) EscalateTask(_ context.Context, _ string, target *task.AssignmentTarget) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.escalated = append(a.escalated, target)
	return nil
}

func (a *fakeActivities) CancelTask(_ context.Context, taskID, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled[taskID] = reason
	return nil
}

func (a *fakeActivities) notifyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.notified)
}

func (a *fakeActivities) escalateCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.escalated)
}

func (a *fakeActivities) cancelledReason(taskID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.cancelled[taskID]
	return r, ok
}

func (a *fakeActivities) createdCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.created)
}
