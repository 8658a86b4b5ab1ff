package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/humangate/humangate/internal/group"
	"github.com/humangate/humangate/internal/task"
)

// Resolution is the outcome of resolving an assignment target: the person to
// notify (empty when the task sits unassigned on a group queue), the group
// it belongs to, and the strategy that made the call.
type Resolution struct {
	PersonID string
	GroupID  string
	Strategy string
}

// Resolver turns an AssignmentTarget into a concrete person.
type Resolver struct {
	groups group.Repository

	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewResolver registers the built-in strategies. counter feeds the
// load-balanced strategy.
func NewResolver(groups group.Repository, counter ActiveTaskCounter) *Resolver {
	r := &Resolver{
		groups:     groups,
		strategies: make(map[string]Strategy),
	}
	r.Register(direct{})
	r.Register(newRoundRobin())
	r.Register(newLoadBalanced(counter))
	return r
}

// Register adds or replaces a strategy under its own name.
func (r *Resolver) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Resolve picks the person for target. override, when non-empty, replaces
// the group's configured strategy and must name a registered strategy.
//
// A pre-selected person always wins; a target with no group resolves to
// unassigned rather than erroring, and an unknown strategy tag on the group
// itself falls back to round-robin so a naming mismatch never blocks
// assignment.
func (r *Resolver) Resolve(ctx context.Context, target task.AssignmentTarget, override string) (Resolution, error) {
	if target.PersonID != "" {
		return Resolution{PersonID: target.PersonID, GroupID: target.GroupID, Strategy: StrategyDirect}, nil
	}
	if target.GroupID == "" {
		return Resolution{Strategy: StrategyDirect}, nil
	}

	// An explicit override must name a registered strategy. Checked before
	// the group lookup so a bad name surfaces immediately.
	var strat Strategy
	if override != "" {
		r.mu.RLock()
		s, ok := r.strategies[override]
		r.mu.RUnlock()
		if !ok {
			return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, override)
		}
		strat = s
	}

	g, err := r.groups.Get(ctx, target.GroupID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve group %s: %w", target.GroupID, err)
	}
	if !g.Assignable {
		slog.Warn("assignment target group is not assignable, leaving task unassigned", "group_id", g.ID)
		return Resolution{GroupID: g.ID, Strategy: StrategyDirect}, nil
	}

	if strat == nil {
		name := string(g.Strategy)
		r.mu.RLock()
		s, ok := r.strategies[name]
		r.mu.RUnlock()
		if !ok {
			// Legacy or misspelled tag on the group record.
			slog.Warn("unknown group strategy tag, falling back to round-robin", "group_id", g.ID, "strategy", name)
			r.mu.RLock()
			s = r.strategies[StrategyRoundRobin]
			r.mu.RUnlock()
		}
		strat = s
	}

	personID, err := strat.Pick(ctx, g)
	if err != nil {
		return Resolution{}, fmt.Errorf("strategy %s failed for group %s: %w", strat.Name(), g.ID, err)
	}
	return Resolution{PersonID: personID, GroupID: g.ID, Strategy: strat.Name()}, nil
}

// ResolvePerson is the narrow form consumed by the HTTP layer.
func (r *Resolver) ResolvePerson(ctx context.Context, target task.AssignmentTarget, override string) (string, error) {
	res, err := r.Resolve(ctx, target, override)
	return res.PersonID, err
}
