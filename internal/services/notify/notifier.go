package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticket-market/models"
)

// Notifier delivers user-visible, non-blocking messages (toasts).
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

func New(level models.NotificationLevel, message string) models.Notification {
	return models.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

func Success(message string) models.Notification { return New(models.LevelSuccess, message) }
func Error(message string) models.Notification   { return New(models.LevelError, message) }
func Info(message string) models.Notification    { return New(models.LevelInfo, message) }

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n models.Notification) {
	slog.Info("notification", "level", string(n.Level), "message", n.Message, "account", n.Account, "id", n.ID)
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n models.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Feed keeps the most recent notifications for clients that poll.
type Feed struct {
	mu    sync.Mutex
	limit int
	items []models.Notification
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 50
	}
	return &Feed{limit: limit}
}

func (f *Feed) Notify(_ context.Context, n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, n)
	if len(f.items) > f.limit {
		f.items = append([]models.Notification(nil), f.items[len(f.items)-f.limit:]...)
	}
}

// List returns notifications newest first.
func (f *Feed) List() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Notification, len(f.items))
	for i, n := range f.items {
		out[len(f.items)-1-i] = n
	}
	return out
}
