package notification

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, personID string, payload *Payload) error {
	slog.InfoContext(ctx, "notification",
		"person_id", personID, "title", payload.Title, "body", payload.Body, "tag", payload.Tag)
	return nil
}
