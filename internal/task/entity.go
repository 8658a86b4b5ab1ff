package task

import "time"

// Priority is informational only; it never alters scheduling.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status tracks the task lifecycle. A task resolves to exactly one of
// completed or cancelled, exactly once.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// FormField describes one input the assignee must fill. Fields keep their
// declaration order; rendering is a consumer concern.
type FormField struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`
	Label    string   `yaml:"label,omitempty" json:"label,omitempty"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Options  []string `yaml:"options,omitempty" json:"options,omitempty"`
	Min      *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// FormSchema is the ordered list of fields shown to the assignee.
type FormSchema []FormField

// Field returns the schema entry named name, or nil.
func (s FormSchema) Field(name string) *FormField {
	for i := range s {
		if s[i].Name == name {
			return &s[i]
		}
	}
	return nil
}

// AssignmentTarget names who may act on a task: a specific person, a group,
// or a person pre-selected within a group. Both fields empty means
// unassigned, which is a modeling error for new tasks.
type AssignmentTarget struct {
	PersonID string `yaml:"person_id,omitempty" json:"personId,omitempty"`
	GroupID  string `yaml:"group_id,omitempty" json:"groupId,omitempty"`
}

// IsZero reports whether the target names neither a person nor a group.
func (t AssignmentTarget) IsZero() bool {
	return t.PersonID == "" && t.GroupID == ""
}

// BreachAction selects what happens when the SLA deadline passes unresolved.
type BreachAction string

const (
	BreachEscalate BreachAction = "escalate"
	BreachNotify   BreachAction = "notify"
	BreachCancel   BreachAction = "cancel"
)

// StepAction selects what an escalation chain step does when it fires.
type StepAction string

const (
	StepNotify   StepAction = "notify"
	StepEscalate StepAction = "escalate"
	StepReassign StepAction = "reassign"
)

// EscalationStep is one time-offset entry in an escalation chain. After is
// measured from task creation.
type EscalationStep struct {
	After   time.Duration     `yaml:"after" json:"after"`
	Action  StepAction        `yaml:"action" json:"action"`
	Target  *AssignmentTarget `yaml:"target,omitempty" json:"target,omitempty"`
	Message string            `yaml:"message,omitempty" json:"message,omitempty"`
}

// SLAConfig attaches a service deadline to a task. Exactly one of DeadlineIn
// and DeadlineAt should be set; DeadlineAt wins when both are.
type SLAConfig struct {
	DeadlineIn time.Duration     `yaml:"deadline_in,omitempty" json:"deadlineIn,omitempty"`
	DeadlineAt *time.Time        `yaml:"deadline_at,omitempty" json:"deadlineAt,omitempty"`
	WarnBefore time.Duration     `yaml:"warn_before,omitempty" json:"warnBefore,omitempty"`
	OnBreach   BreachAction      `yaml:"on_breach,omitempty" json:"onBreach,omitempty"`
	EscalateTo *AssignmentTarget `yaml:"escalate_to,omitempty" json:"escalateTo,omitempty"`
	Chain      []EscalationStep  `yaml:"chain,omitempty" json:"chain,omitempty"`
}

// Task is the unit of human work blocking a workflow.
type Task struct {
	ID          string `yaml:"id"`
	TenantID    string `yaml:"tenant_id,omitempty"`
	ProcessID   string `yaml:"process_id"`
	RunID       string `yaml:"run_id"`
	Type        string `yaml:"type,omitempty"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`

	Form       FormSchema       `yaml:"form,omitempty"`
	Assignment AssignmentTarget `yaml:"assignment"`
	// AssigneeID is the person the resolver picked, if any.
	AssigneeID string `yaml:"assignee_id,omitempty"`

	SLA      *SLAConfig        `yaml:"sla,omitempty"`
	Context  map[string]string `yaml:"context,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
	Priority Priority          `yaml:"priority,omitempty"`

	Status       Status         `yaml:"status"`
	Data         map[string]any `yaml:"data,omitempty"`
	CompletedBy  string         `yaml:"completed_by,omitempty"`
	CancelledBy  string         `yaml:"cancelled_by,omitempty"`
	CancelReason string         `yaml:"cancel_reason,omitempty"`

	CreatedAt   time.Time  `yaml:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at"`
	DueAt       *time.Time `yaml:"due_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
}

// Resolved reports whether the task already reached a terminal status.
func (t *Task) Resolved() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// Result is produced exactly once, by the signal that completes a task.
type Result struct {
	TaskID      string         `json:"taskId"`
	Data        map[string]any `json:"data"`
	CompletedBy string         `json:"completedBy"`
	CompletedAt time.Time      `json:"completedAt"`
}
