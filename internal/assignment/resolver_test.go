package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humangate/humangate/internal/group"
	"github.com/humangate/humangate/internal/task"
)

type fakeGroupRepo struct {
	groups map[string]*group.Group
}

func (r *fakeGroupRepo) Create(_ context.Context, g *group.Group) error {
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) Get(_ context.Context, id string) (*group.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, errors.New("group not found")
	}
	return g, nil
}

func (r *fakeGroupRepo) List(_ context.Context) ([]*group.Group, error) {
	var out []*group.Group
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out, nil
}

func (r *fakeGroupRepo) Update(_ context.Context, g *group.Group) error {
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroupRepo) Delete(_ context.Context, id string) error {
	delete(r.groups, id)
	return nil
}

type fakeCounter struct {
	counts map[string]int
}

func (c *fakeCounter) CountActive(_ context.Context, personID string) (int, error) {
	return c.counts[personID], nil
}

func testGroup(strategy group.Strategy, members ...string) *group.Group {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &group.Group{
		ID:         "support",
		Name:       "Support",
		Assignable: true,
		Strategy:   strategy,
	}
	for i, m := range members {
		g.Members = append(g.Members, group.Member{
			PersonID: m,
			JoinedAt: base.Add(time.Duration(i) * time.Hour),
			Active:   true,
		})
	}
	g.SyncMemberCount()
	return g
}

func newTestResolver(g *group.Group, counts map[string]int) *Resolver {
	repo := &fakeGroupRepo{groups: map[string]*group.Group{}}
	if g != nil {
		repo.groups[g.ID] = g
	}
	return NewResolver(repo, &fakeCounter{counts: counts})
}

func TestResolveDirectPersonWins(t *testing.T) {
	r := newTestResolver(testGroup(group.StrategyRoundRobin, "alice", "bob"), nil)

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{PersonID: "carol", GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Equal(t, "carol", res.PersonID)
	assert.Equal(t, "support", res.GroupID)
	assert.Equal(t, StrategyDirect, res.Strategy)
}

func TestResolveEmptyTargetIsUnassigned(t *testing.T) {
	r := newTestResolver(nil, nil)

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{}, "")
	require.NoError(t, err)
	assert.Empty(t, res.PersonID)
	assert.Empty(t, res.GroupID)
	assert.Equal(t, StrategyDirect, res.Strategy)
}

func TestResolveRoundRobinCyclesInJoinOrder(t *testing.T) {
	g := testGroup(group.StrategyRoundRobin, "alice", "bob", "carol")
	r := newTestResolver(g, nil)

	var picked []string
	for i := 0; i < 6; i++ {
		res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
		require.NoError(t, err)
		assert.Equal(t, StrategyRoundRobin, res.Strategy)
		picked = append(picked, res.PersonID)
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "alice", "bob", "carol"}, picked)
}

func TestResolveRoundRobinSkipsInactiveMembers(t *testing.T) {
	g := testGroup(group.StrategyRoundRobin, "alice", "bob", "carol")
	g.RemoveMember("bob")
	r := newTestResolver(g, nil)

	var picked []string
	for i := 0; i < 4; i++ {
		res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
		require.NoError(t, err)
		picked = append(picked, res.PersonID)
	}
	assert.Equal(t, []string{"alice", "carol", "alice", "carol"}, picked)
}

func TestResolveRoundRobinEmptyGroup(t *testing.T) {
	g := testGroup(group.StrategyRoundRobin)
	r := newTestResolver(g, nil)

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Empty(t, res.PersonID)
	assert.Equal(t, "support", res.GroupID)
}

func TestResolveLoadBalancedPicksLeastLoaded(t *testing.T) {
	g := testGroup(group.StrategyLoadBalanced, "alice", "bob", "carol")
	r := newTestResolver(g, map[string]int{"alice": 3, "bob": 1, "carol": 2})

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", res.PersonID)
	assert.Equal(t, StrategyLoadBalanced, res.Strategy)
}

func TestResolveLoadBalancedTieBreaksByMemberOrder(t *testing.T) {
	g := testGroup(group.StrategyLoadBalanced, "alice", "bob", "carol")
	r := newTestResolver(g, map[string]int{"alice": 1, "bob": 1, "carol": 1})

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.PersonID)
}

func TestResolveUnknownGroupTagFallsBackToRoundRobin(t *testing.T) {
	g := testGroup(group.Strategy("fancy_ml_ranker"), "alice", "bob")
	r := newTestResolver(g, nil)

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyRoundRobin, res.Strategy)
	assert.Equal(t, "alice", res.PersonID)
}

func TestResolveUnknownOverrideFails(t *testing.T) {
	g := testGroup(group.StrategyRoundRobin, "alice")
	r := newTestResolver(g, nil)

	_, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "no_such_strategy")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestResolveUnknownOverrideSkipsGroupLookup(t *testing.T) {
	r := NewResolver(nil, nil)

	_, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "missing"}, "no_such_strategy")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestResolveNonAssignableGroup(t *testing.T) {
	g := testGroup(group.StrategyRoundRobin, "alice")
	g.Assignable = false
	r := newTestResolver(g, nil)

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Empty(t, res.PersonID)
	assert.Equal(t, "support", res.GroupID)
}

func TestRegisterCustomStrategy(t *testing.T) {
	g := testGroup(group.Strategy("always_bob"), "alice", "bob")
	r := newTestResolver(g, nil)
	r.Register(staticStrategy{name: "always_bob", pick: "bob"})

	res, err := r.Resolve(context.Background(), task.AssignmentTarget{GroupID: "support"}, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", res.PersonID)
	assert.Equal(t, "always_bob", res.Strategy)
}

type staticStrategy struct {
	name string
	pick string
}

func (s staticStrategy) Name() string { return s.name }

func (s staticStrategy) Pick(_ context.Context, _ *group.Group) (string, error) {
	return s.pick, nil
}
