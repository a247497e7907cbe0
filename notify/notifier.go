package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log. Used when no delivery
// channel is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{Log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, ownerID, eventType string, payload map[string]string) error {
	ev := n.Log.Info().Str("owner_id", ownerID).Str("event", eventType)
	for k, v := range payload {
		ev = ev.Str(k, v)
	}
	ev.Msg("Owner notification")
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ownerID, eventType string, payload map[string]string) error

func (f NotifierFunc) Notify(ctx context.Context, ownerID, eventType string, payload map[string]string) error {
	return f(ctx, ownerID, eventType, payload)
}
