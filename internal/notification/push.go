package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/humangate/humangate/internal/config"
	"github.com/humangate/humangate/internal/pushsubscription"
)

// PushSender delivers notifications over the Web Push protocol to the
// browser endpoints registered in the subscription store.
type PushSender struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
}

func NewPushSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *PushSender {
	return &PushSender{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

// Notify sends to the person's endpoints, or to every endpoint when personID
// is empty. Individual endpoint failures are logged, not surfaced; losing
// one browser must not fail the escalation that triggered the send.
func (s *PushSender) Notify(ctx context.Context, personID string, payload *Payload) error {
	if s.vapidEnv.VAPIDPrivateKey == "" || s.vapidEnv.VAPIDPublicKey == "" {
		slog.Warn("push notification: VAPID keys not configured, skipping")
		return nil
	}

	var subs []*pushsubscription.Subscription
	var err error
	if personID == "" {
		subs, err = s.repo.List(ctx)
	} else {
		subs, err = s.repo.ListByPerson(ctx, personID)
	}
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		s.sendToSubscription(ctx, sub, data)
	}
	return nil
}

func (s *PushSender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotification(data, wpSub, &webpush.Options{
		VAPIDPublicKey:  s.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapidEnv.VAPIDPrivateKey,
		Subscriber:      s.vapidEnv.VAPIDContact,
		TTL:             86400,
	})
	if err != nil {
		slog.Error("push notification: failed to send", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.Info("push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.Error("push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return
	}

	if resp.StatusCode >= 400 {
		slog.Warn("push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	}
}

var _ Notifier = (*PushSender)(nil)
