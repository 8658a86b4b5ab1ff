package assignment

import (
	"context"

	"github.com/humangate/humangate/internal/group"
)

// loadBalanced picks the eligible member with the fewest unresolved tasks.
// Ties go to the earliest member in join-time order.
type loadBalanced struct {
	counter ActiveTaskCounter
}

func newLoadBalanced(counter ActiveTaskCounter) *loadBalanced {
	return &loadBalanced{counter: counter}
}

func (s *loadBalanced) Name() string {
	return StrategyLoadBalanced
}

func (s *loadBalanced) Pick(ctx context.Context, g *group.Group) (string, error) {
	members := g.EligibleMembers()
	if len(members) == 0 {
		return "", nil
	}

	best := ""
	bestCount := 0
	for _, personID := range members {
		count, err := s.counter.CountActive(ctx, personID)
		if err != nil {
			return "", err
		}
		if best == "" || count < bestCount {
			best = personID
			bestCount = count
		}
	}
	return best, nil
}
