package sla

import (
	"fmt"
	"sort"
	"time"

	"github.com/humangate/humangate/internal/task"
)

// SortedChain returns the chain ordered ascending by offset. The sort is
// stable so steps sharing an offset keep their declared order. Callers may
// hand over unsorted configuration.
func SortedChain(chain []task.EscalationStep) []task.EscalationStep {
	sorted := make([]task.EscalationStep, len(chain))
	copy(sorted, chain)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].After < sorted[j].After
	})
	return sorted
}

// ApplicableStep returns the most advanced step whose offset has already
// elapsed, or nil when none is due yet.
func ApplicableStep(chain []task.EscalationStep, elapsed time.Duration) *task.EscalationStep {
	sorted := SortedChain(chain)
	var due *task.EscalationStep
	for i := range sorted {
		if sorted[i].After <= elapsed {
			due = &sorted[i]
		}
	}
	return due
}

// NextStep returns the first step still in the future, for scheduling the
// next wake-up timer, or nil when the chain is exhausted.
func NextStep(chain []task.EscalationStep, elapsed time.Duration) *task.EscalationStep {
	sorted := SortedChain(chain)
	for i := range sorted {
		if sorted[i].After > elapsed {
			return &sorted[i]
		}
	}
	return nil
}

// StepTarget resolves the step's target, falling back to the configured
// default escalation target when the step names none.
func StepTarget(step *task.EscalationStep, defaultTarget *task.AssignmentTarget) *task.AssignmentTarget {
	if step != nil && step.Target != nil && !step.Target.IsZero() {
		return step.Target
	}
	return defaultTarget
}

// ShouldEscalateOnBreach reports whether a deadline breach consults the
// escalation machinery. Notify and cancel breach actions never do.
func ShouldEscalateOnBreach(cfg *task.SLAConfig) bool {
	return cfg != nil && cfg.OnBreach == task.BreachEscalate
}

// BreachReason builds the human-readable audit string recorded with a breach
// action, e.g. "SLA breached after 45m, escalating to support-l2".
func BreachReason(step *task.EscalationStep, elapsed string) string {
	if step == nil {
		return fmt.Sprintf("SLA breached after %s", elapsed)
	}
	target := ""
	if step.Target != nil {
		if step.Target.GroupID != "" {
			target = step.Target.GroupID
		} else {
			target = step.Target.PersonID
		}
	}
	switch step.Action {
	case task.StepEscalate:
		if target != "" {
			return fmt.Sprintf("SLA breached after %s, escalating to %s", elapsed, target)
		}
		return fmt.Sprintf("SLA breached after %s, escalating", elapsed)
	case task.StepReassign:
		if target != "" {
			return fmt.Sprintf("SLA breached after %s, reassigning to %s", elapsed, target)
		}
		return fmt.Sprintf("SLA breached after %s, reassigning", elapsed)
	default:
		return fmt.Sprintf("SLA breached after %s, notifying", elapsed)
	}
}
