package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/humangate/humangate/internal/task"
)

// AllTasks creates every task concurrently and waits for all of them to
// complete. The first cancellation or failure anywhere in the set aborts the
// sibling waits immediately and surfaces that task's failure. External tasks
// the siblings were waiting on stay open for their assignees; only the waits
// are torn down.
func (e *Engine) AllTasks(ctx context.Context, reqs []TaskRequest) ([]*task.Result, error) {
	if len(reqs) == 0 {
		return nil, errors.New("allTasks requires at least one task")
	}

	results := make([]*task.Result, len(reqs))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, req := range reqs {
		i, req := i, req
		p.Go(func(ctx context.Context) error {
			r, err := e.WaitForTask(ctx, req)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AnyTask creates every task concurrently and returns the first to complete.
// Once a winner resolves, the remaining waits are torn down and their tasks
// cancelled best-effort; cleanup failures are swallowed so they never mask
// the winning result. Cancelled losers do not abort the race as long as at
// least one task can still complete.
func (e *Engine) AnyTask(ctx context.Context, reqs []TaskRequest) (*task.Result, error) {
	if len(reqs) == 0 {
		return nil, errors.New("anyTask requires at least one task")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	created := make([]string, 0, len(reqs))
	record := func(id string) {
		mu.Lock()
		created = append(created, id)
		mu.Unlock()
	}

	type outcome struct {
		result *task.Result
		err    error
	}
	outcomes := make(chan outcome, len(reqs))

	var wg conc.WaitGroup
	for _, req := range reqs {
		req := req
		wg.Go(func() {
			r, err := e.waitForTask(raceCtx, req, record)
			outcomes <- outcome{result: r, err: err}
		})
	}

	var winner *task.Result
	var firstErr error
	for i := 0; i < len(reqs); i++ {
		o := <-outcomes
		if o.err == nil {
			winner = o.result
			break
		}
		if firstErr == nil {
			firstErr = o.err
		}
	}
	cancel()
	wg.Wait()

	if winner == nil {
		return nil, firstErr
	}

	mu.Lock()
	stragglers := make([]string, 0, len(created))
	for _, id := range created {
		if id != winner.TaskID {
			stragglers = append(stragglers, id)
		}
	}
	mu.Unlock()

	for _, id := range stragglers {
		if err := e.activities.CancelTask(ctx, id, "superseded by sibling task"); err != nil {
			slog.DebugContext(ctx, "straggler cancellation failed",
				"task_id", id, "error", err)
		}
	}
	return winner, nil
}
