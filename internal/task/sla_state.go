package task

import "time"

// SLAState classifies an open task's position relative to its deadline.
type SLAState string

const (
	SLAOnTrack  SLAState = "on_track"
	SLAWarning  SLAState = "warning"
	SLABreached SLAState = "breached"
)

// DeadlineFrom resolves the configured deadline to an absolute instant. An
// absolute DeadlineAt wins over a relative DeadlineIn. ok is false when the
// config carries no deadline at all.
func (c *SLAConfig) DeadlineFrom(createdAt time.Time) (deadline time.Time, ok bool) {
	if c == nil {
		return time.Time{}, false
	}
	if c.DeadlineAt != nil {
		return *c.DeadlineAt, true
	}
	if c.DeadlineIn > 0 {
		return createdAt.Add(c.DeadlineIn), true
	}
	return time.Time{}, false
}

// SLAStateAt classifies now against the deadline and warning offset.
func SLAStateAt(deadline time.Time, warnBefore time.Duration, now time.Time) SLAState {
	switch {
	case !now.Before(deadline):
		return SLABreached
	case warnBefore > 0 && !now.Before(deadline.Add(-warnBefore)):
		return SLAWarning
	default:
		return SLAOnTrack
	}
}
