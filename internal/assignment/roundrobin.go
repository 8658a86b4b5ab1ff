package assignment

import (
	"context"
	"sync"

	"github.com/humangate/humangate/internal/group"
)

// roundRobin rotates through a group's eligible members in join-time order.
// The per-group cursor lives in process memory only: rotation fairness holds
// within one process lifetime and resets on restart. The mutex matters
// because one resolver serves every workflow instance in the process.
type roundRobin struct {
	mu      sync.Mutex
	cursors map[string]int // group id -> last selected index
}

func newRoundRobin() *roundRobin {
	return &roundRobin{cursors: make(map[string]int)}
}

func (s *roundRobin) Name() string {
	return StrategyRoundRobin
}

func (s *roundRobin) Pick(_ context.Context, g *group.Group) (string, error) {
	members := g.EligibleMembers()
	if len(members) == 0 {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.cursors[g.ID]
	if !ok {
		last = -1
	}
	next := (last + 1) % len(members)
	s.cursors[g.ID] = next
	return members[next], nil
}
