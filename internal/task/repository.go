package task

import "context"

// ListFilter narrows List results; zero values match everything.
type ListFilter struct {
	TenantID   string
	ProcessID  string
	Status     Status
	AssigneeID string
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]*Task, int, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	// CountActive returns how many unresolved tasks are assigned to the
	// person. Feeds the load-balanced assignment strategy.
	CountActive(ctx context.Context, personID string) (int, error)
}
