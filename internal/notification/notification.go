// Package notification delivers task alerts to assignees. The web-push
// sender is the production channel; the log notifier backs development and
// tests.
package notification

import "context"

// Payload is one rendered notification.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Notifier fans a notification out to a person's registered channels.
// personID may be empty when the task sits unassigned on a group queue, in
// which case the notifier broadcasts.
type Notifier interface {
	Notify(ctx context.Context, personID string, payload *Payload) error
}
