package activityimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humangate/humangate/internal/assignment"
	"github.com/humangate/humangate/internal/notification"
	"github.com/humangate/humangate/internal/protocol"
	"github.com/humangate/humangate/internal/signalbus"
	"github.com/humangate/humangate/internal/task"
	"github.com/humangate/humangate/internal/task/repositoryimpl"
	"github.com/humangate/humangate/pkg/storage"
)

func newTestProvider(t *testing.T) (*Provider, task.Repository, *signalbus.Bus) {
	t.Helper()
	store, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(store)
	bus := signalbus.New()
	p := NewProvider(repo, assignment.NewResolver(nil, nil), notification.NewLogNotifier(), bus)
	return p, repo, bus
}

func TestCreateTaskPersistsOpenTask(t *testing.T) {
	p, repo, _ := newTestProvider(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	id, err := p.CreateTask(ctx, protocol.CreateTaskInput{
		ProcessID:  "proc-1",
		RunID:      "run-1",
		Title:      "Approve budget",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		AssigneeID: "alice",
		DueAt:      &due,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusOpen, got.Status)
	assert.Equal(t, "alice", got.AssigneeID)
	assert.Equal(t, task.PriorityMedium, got.Priority, "priority defaults to medium")
	require.NotNil(t, got.DueAt)
	assert.Equal(t, due, got.DueAt.UTC())
}

func TestReassignTaskUpdatesAssignee(t *testing.T) {
	p, repo, _ := newTestProvider(t)
	ctx := context.Background()

	id, err := p.CreateTask(ctx, protocol.CreateTaskInput{
		Title:      "Review PR",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		AssigneeID: "alice",
	})
	require.NoError(t, err)

	require.NoError(t, p.ReassignTask(ctx, id, task.AssignmentTarget{PersonID: "bob"}))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.AssigneeID)
}

func TestEscalateTaskRaisesPriority(t *testing.T) {
	p, repo, _ := newTestProvider(t)
	ctx := context.Background()

	id, err := p.CreateTask(ctx, protocol.CreateTaskInput{
		Title:      "Handle incident",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		AssigneeID: "alice",
		Priority:   task.PriorityLow,
	})
	require.NoError(t, err)

	require.NoError(t, p.EscalateTask(ctx, id, &task.AssignmentTarget{PersonID: "boss"}))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityUrgent, got.Priority)
	assert.Equal(t, "boss", got.AssigneeID)
}

func TestEscalateWithoutTargetKeepsAssignee(t *testing.T) {
	p, repo, _ := newTestProvider(t)
	ctx := context.Background()

	id, err := p.CreateTask(ctx, protocol.CreateTaskInput{
		Title:      "Look into alert",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		AssigneeID: "alice",
	})
	require.NoError(t, err)

	require.NoError(t, p.EscalateTask(ctx, id, nil))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AssigneeID)
	assert.Equal(t, task.PriorityUrgent, got.Priority)
}

func TestCancelTaskPublishesSignalAndIsIdempotent(t *testing.T) {
	p, repo, bus := newTestProvider(t)
	ctx := context.Background()

	id, err := p.CreateTask(ctx, protocol.CreateTaskInput{
		Title:      "Obsolete request",
		Assignment: task.AssignmentTarget{PersonID: "alice"},
		AssigneeID: "alice",
	})
	require.NoError(t, err)

	subID, ch := bus.Subscribe(signalbus.SignalTaskCancelled, id, 4)
	defer bus.Unsubscribe(signalbus.SignalTaskCancelled, id, subID)

	require.NoError(t, p.CancelTask(ctx, id, "workflow aborted"))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, got.Status)
	assert.Equal(t, "workflow aborted", got.CancelReason)
	require.Len(t, ch, 1)

	// Second cancel is a no-op: no state change, no second signal.
	require.NoError(t, p.CancelTask(ctx, id, "duplicate"))
	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "workflow aborted", got.CancelReason)
	assert.Len(t, ch, 1)
}
