package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humangate/humangate/internal/group"
	"github.com/humangate/humangate/pkg/cerr"
	"github.com/humangate/humangate/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	store, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(store)
}

func TestGroupRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	g := &group.Group{
		ID:         "g1",
		Name:       "Support",
		Assignable: true,
		Strategy:   group.StrategyRoundRobin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	g.AddMember("alice", now)
	g.AddMember("bob", now.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, g))

	got, err := repo.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Support", got.Name)
	assert.Equal(t, 2, got.MemberCount)
	assert.Equal(t, []string{"alice", "bob"}, got.EligibleMembers())
}

func TestMemberCountSyncedOnWrite(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	g := &group.Group{ID: "g1", Name: "Ops", Assignable: true, Strategy: group.StrategyDirect}
	g.AddMember("alice", now)
	// Deliberately desync the denormalized count; the repository restores
	// the invariant on write.
	g.MemberCount = 42
	require.NoError(t, repo.Create(ctx, g))

	got, err := repo.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)
}

func TestListAndDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &group.Group{ID: "g1", Name: "A"}))
	require.NoError(t, repo.Create(ctx, &group.Group{ID: "g2", Name: "B"}))

	groups, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	require.NoError(t, repo.Delete(ctx, "g1"))
	_, err = repo.Get(ctx, "g1")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
