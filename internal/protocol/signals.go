package protocol

import "time"

// CompletedSignal is the payload of the "taskCompleted" signal: the submitted
// form data plus who completed the task and when.
type CompletedSignal struct {
	TaskID      string         `json:"taskId"`
	Data        map[string]any `json:"data"`
	CompletedBy string         `json:"completedBy"`
	CompletedAt time.Time      `json:"completedAt"`
}

// CancelledSignal is the payload of the "taskCancelled" signal.
type CancelledSignal struct {
	TaskID      string `json:"taskId"`
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelledBy,omitempty"`
}
