// Package assignment picks the person who receives a task. Strategies are a
// closed set of built-ins plus a registration hook for custom variants.
package assignment

import (
	"context"
	"errors"

	"github.com/humangate/humangate/internal/group"
)

const (
	StrategyDirect       = "direct"
	StrategyRoundRobin   = "round_robin"
	StrategyLoadBalanced = "load_balanced"
)

// ErrUnknownStrategy is returned only for an explicit override naming a
// strategy the resolver has no implementation for. Unknown tags on groups
// fall back to round-robin instead.
var ErrUnknownStrategy = errors.New("unknown assignment strategy")

// Strategy selects one eligible member of a group, or "" when the group has
// no eligible members.
type Strategy interface {
	Name() string
	Pick(ctx context.Context, g *group.Group) (string, error)
}

// ActiveTaskCounter reports how many unresolved tasks a person currently
// holds. Implemented by the task repository.
type ActiveTaskCounter interface {
	CountActive(ctx context.Context, personID string) (int, error)
}
