// Package sla computes deadline, warning, and breach state for tasks. Every
// function is pure over its inputs; callers inside workflow code must pass
// the substrate's deterministic time, never the wall clock.
package sla

import (
	"time"

	"github.com/humangate/humangate/internal/task"
)

// State classifies a task's position relative to its deadline. The
// classification itself lives on the task entity so serialization code can
// reach it without depending on this package.
type State = task.SLAState

const (
	StateOnTrack  = task.SLAOnTrack
	StateWarning  = task.SLAWarning
	StateBreached = task.SLABreached
)

// ComputeDeadline resolves the configured deadline to an absolute instant.
// An absolute DeadlineAt wins over a relative DeadlineIn. ok is false when
// the config carries no deadline at all.
func ComputeDeadline(createdAt time.Time, cfg *task.SLAConfig) (deadline time.Time, ok bool) {
	return cfg.DeadlineFrom(createdAt)
}

// IsBreached reports whether now has reached the deadline.
func IsBreached(deadline, now time.Time) bool {
	return !now.Before(deadline)
}

// TimeRemaining returns the signed time until the deadline; negative once
// breached.
func TimeRemaining(deadline, now time.Time) time.Duration {
	return deadline.Sub(now)
}

// IsInWarningPeriod reports whether now is within warnBefore of the deadline
// but not yet past it.
func IsInWarningPeriod(deadline time.Time, warnBefore time.Duration, now time.Time) bool {
	if warnBefore <= 0 {
		return false
	}
	if IsBreached(deadline, now) {
		return false
	}
	return !now.Before(deadline.Add(-warnBefore))
}

// StatusAt classifies now against the deadline and warning offset.
func StatusAt(deadline time.Time, warnBefore time.Duration, now time.Time) State {
	return task.SLAStateAt(deadline, warnBefore, now)
}
