package notify

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"ticket-market/models"
)

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
	ClientID     string
}

// PubNubNotifier publishes notifications to the client's toast channel.
type PubNubNotifier struct {
	channel string
	publish func(channel string, msg map[string]any) error
}

func NewPubNubNotifier(cfg PubNubConfig) *PubNubNotifier {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey
	pn := pubnub.NewPubNub(pnCfg)

	return &PubNubNotifier{
		channel: Channel(cfg.ClientID),
		publish: func(channel string, msg map[string]any) error {
			_, _, err := pn.Publish().Channel(channel).Message(msg).Execute()
			return err
		},
	}
}

func Channel(clientID string) string {
	return fmt.Sprintf("market-%s", clientID)
}

// ToastMessage is the payload published for a notification.
func ToastMessage(n models.Notification) map[string]any {
	return map[string]any{
		"type":       "toast",
		"id":         n.ID,
		"level":      string(n.Level),
		"message":    n.Message,
		"account":    n.Account,
		"created_at": n.CreatedAt.Unix(),
	}
}

// Notify publishes in the background; failures are logged.
func (p *PubNubNotifier) Notify(_ context.Context, n models.Notification) {
	msg := ToastMessage(n)

	go func() {
		if err := p.publish(p.channel, msg); err != nil {
			slog.Error("Failed to publish notification", "error", err, "channel", p.channel, "id", n.ID)
		}
	}()
}
