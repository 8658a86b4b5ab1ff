package assignment

import (
	"context"

	"github.com/humangate/humangate/internal/group"
)

// direct never selects a member; it is used when the caller has already
// chosen a person, or when a task should sit on the group queue unassigned.
type direct struct{}

func (direct) Name() string {
	return StrategyDirect
}

func (direct) Pick(_ context.Context, _ *group.Group) (string, error) {
	return "", nil
}
