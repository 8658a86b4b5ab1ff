package protocol

import (
	"context"
	"time"
)

// Substrate is the slice of the durable execution engine the wait protocol
// depends on: deterministic time, durable timers, and named signal delivery.
// The engine guarantees that timers and signals survive crashes and replay in
// the same order; the protocol must therefore never read the wall clock or
// make non-deterministic choices inside the wait loop.
type Substrate interface {
	// Now returns the current deterministic time.
	Now() time.Time

	// Timer returns a channel that fires once at the given instant.
	// Instants already in the past fire immediately. The channel is
	// abandoned, not drained, when the wait resolves first.
	Timer(ctx context.Context, at time.Time) <-chan time.Time

	// CompletedSignals delivers "taskCompleted" signals scoped to the task.
	// The returned stop function releases the subscription.
	CompletedSignals(taskID string) (<-chan CompletedSignal, func())

	// CancelledSignals delivers "taskCancelled" signals scoped to the task.
	CancelledSignals(taskID string) (<-chan CancelledSignal, func())
}
