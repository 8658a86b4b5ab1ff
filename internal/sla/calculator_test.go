package sla

import (
	"testing"
	"time"

	"github.com/humangate/humangate/internal/task"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", s, err)
	}
	return ts
}

func TestComputeDeadline(t *testing.T) {
	createdAt := mustParse(t, "2024-01-01T00:00:00Z")
	absolute := mustParse(t, "2024-01-02T12:00:00Z")

	tests := []struct {
		name     string
		cfg      *task.SLAConfig
		expected time.Time
		ok       bool
	}{
		{
			name:     "relative deadline",
			cfg:      &task.SLAConfig{DeadlineIn: 30 * time.Minute},
			expected: mustParse(t, "2024-01-01T00:30:00Z"),
			ok:       true,
		},
		{
			name:     "absolute deadline",
			cfg:      &task.SLAConfig{DeadlineAt: &absolute},
			expected: absolute,
			ok:       true,
		},
		{
			name:     "absolute wins over relative",
			cfg:      &task.SLAConfig{DeadlineIn: time.Hour, DeadlineAt: &absolute},
			expected: absolute,
			ok:       true,
		},
		{name: "nil config", cfg: nil, ok: false},
		{name: "empty config", cfg: &task.SLAConfig{}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComputeDeadline(createdAt, tt.cfg)
			if ok != tt.ok {
				t.Fatalf("ComputeDeadline ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.expected) {
				t.Errorf("ComputeDeadline = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBreachAndRemaining(t *testing.T) {
	deadline := mustParse(t, "2024-01-01T01:00:00Z")

	before := deadline.Add(-10 * time.Minute)
	after := deadline.Add(10 * time.Minute)

	if IsBreached(deadline, before) {
		t.Error("IsBreached before deadline = true, want false")
	}
	if !IsBreached(deadline, deadline) {
		t.Error("IsBreached at deadline = false, want true")
	}
	if !IsBreached(deadline, after) {
		t.Error("IsBreached after deadline = false, want true")
	}

	if got := TimeRemaining(deadline, before); got != 10*time.Minute {
		t.Errorf("TimeRemaining before = %v, want 10m", got)
	}
	if got := TimeRemaining(deadline, after); got != -10*time.Minute {
		t.Errorf("TimeRemaining after = %v, want -10m", got)
	}
}

func TestStatusAt(t *testing.T) {
	deadline := mustParse(t, "2024-01-01T01:00:00Z")
	warn := 15 * time.Minute

	tests := []struct {
		name     string
		now      time.Time
		expected State
	}{
		{name: "on track", now: deadline.Add(-30 * time.Minute), expected: StateOnTrack},
		{name: "warning window opens", now: deadline.Add(-15 * time.Minute), expected: StateWarning},
		{name: "inside warning window", now: deadline.Add(-5 * time.Minute), expected: StateWarning},
		{name: "at deadline", now: deadline, expected: StateBreached},
		{name: "past deadline", now: deadline.Add(time.Hour), expected: StateBreached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusAt(deadline, warn, tt.now); got != tt.expected {
				t.Errorf("StatusAt = %v, want %v", got, tt.expected)
			}
		})
	}

	// No warning offset configured: never in warning.
	if got := StatusAt(deadline, 0, deadline.Add(-time.Minute)); got != StateOnTrack {
		t.Errorf("StatusAt without warn offset = %v, want on_track", got)
	}
}
