package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/humangate/humangate/internal/task"
	"github.com/humangate/humangate/pkg/panicerr"
)

// TaskSource lists the open tasks whose SLAs need enforcement.
type TaskSource interface {
	List(ctx context.Context, filter task.ListFilter) ([]*task.Task, int, error)
}

// Supervisor periodically sweeps the task store and attaches an engine wait
// to every open task carrying an SLA, so deadline and escalation timers keep
// running for tasks created over HTTP and for tasks left open by a previous
// run of the process.
type Supervisor struct {
	engine   *Engine
	source   TaskSource
	interval time.Duration

	mu       sync.Mutex
	watching map[string]struct{}
}

func NewSupervisor(engine *Engine, source TaskSource, interval time.Duration) *Supervisor {
	return &Supervisor{
		engine:   engine,
		source:   source,
		interval: interval,
		watching: make(map[string]struct{}),
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context) {
	tasks, _, err := s.source.List(ctx, task.ListFilter{Status: task.StatusOpen})
	if err != nil {
		slog.WarnContext(ctx, "task sweep failed", "error", err)
		return
	}
	for _, t := range tasks {
		// Tasks without an SLA have no timers to enforce; they resolve
		// through their completion or cancellation endpoints alone.
		if t.SLA == nil {
			continue
		}
		s.watch(ctx, t)
	}
}

func (s *Supervisor) watch(ctx context.Context, t *task.Task) {
	s.mu.Lock()
	if _, ok := s.watching[t.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.watching[t.ID] = struct{}{}
	s.mu.Unlock()

	taskID, cfg, createdAt := t.ID, t.SLA, t.CreatedAt
	panicerr.Go(func() {
		defer func() {
			s.mu.Lock()
			delete(s.watching, taskID)
			s.mu.Unlock()
		}()

		_, err := s.engine.ResumeTask(ctx, taskID, cfg, createdAt)
		var cancelled *TaskCancelledError
		switch {
		case err == nil:
			slog.InfoContext(ctx, "supervised task completed", "task_id", taskID)
		case errors.As(err, &cancelled):
			slog.InfoContext(ctx, "supervised task cancelled", "task_id", taskID, "reason", cancelled.Reason)
		case errors.Is(err, context.Canceled):
		default:
			slog.WarnContext(ctx, "supervised task wait failed", "task_id", taskID, "error", err)
		}
	})
}
