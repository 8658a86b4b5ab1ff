// Package substrate provides the in-process reference implementation of the
// wait protocol's execution contract: wall-clock time, time.After timers, and
// signal channels backed by the signal bus. It offers none of the durability
// guarantees a real workflow engine would; a process crash loses in-flight
// waits.
package substrate

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/humangate/humangate/internal/protocol"
	"github.com/humangate/humangate/internal/signalbus"
	"github.com/humangate/humangate/pkg/panicerr"
)

const signalBuffer = 8

type Local struct {
	bus *signalbus.Bus
}

func NewLocal(bus *signalbus.Bus) *Local {
	return &Local{bus: bus}
}

func (l *Local) Now() time.Time {
	return time.Now()
}

func (l *Local) Timer(ctx context.Context, at time.Time) <-chan time.Time {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	ch := make(chan time.Time, 1)
	timer := time.NewTimer(d)
	panicerr.Go(func() {
		defer timer.Stop()
		select {
		case t := <-timer.C:
			ch <- t
		case <-ctx.Done():
		}
	})
	return ch
}

func (l *Local) CompletedSignals(taskID string) (<-chan protocol.CompletedSignal, func()) {
	id, raw := l.bus.Subscribe(signalbus.SignalTaskCompleted, taskID, signalBuffer)
	out := make(chan protocol.CompletedSignal, signalBuffer)
	panicerr.Go(func() {
		defer close(out)
		for sig := range raw {
			var payload protocol.CompletedSignal
			if err := json.Unmarshal(sig.Payload, &payload); err != nil {
				slog.Warn("dropping malformed completion signal",
					"task_id", taskID, "signal_id", sig.ID, "error", err)
				continue
			}
			out <- payload
		}
	})
	return out, func() {
		l.bus.Unsubscribe(signalbus.SignalTaskCompleted, taskID, id)
	}
}

func (l *Local) CancelledSignals(taskID string) (<-chan protocol.CancelledSignal, func()) {
	id, raw := l.bus.Subscribe(signalbus.SignalTaskCancelled, taskID, signalBuffer)
	out := make(chan protocol.CancelledSignal, signalBuffer)
	panicerr.Go(func() {
		defer close(out)
		for sig := range raw {
			var payload protocol.CancelledSignal
			if err := json.Unmarshal(sig.Payload, &payload); err != nil {
				slog.Warn("dropping malformed cancellation signal",
					"task_id", taskID, "signal_id", sig.ID, "error", err)
				continue
			}
			out <- payload
		}
	})
	return out, func() {
		l.bus.Unsubscribe(signalbus.SignalTaskCancelled, taskID, id)
	}
}

var _ protocol.Substrate = (*Local)(nil)
