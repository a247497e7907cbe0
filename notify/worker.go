package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hosthub/owner-ledger/metrics"
)

type Worker struct {
	Queue       Queue
	Notifier    Notifier
	MaxAttempts int
	RetryDelay  time.Duration
	PollTimeout time.Duration
	Log         zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorker(q Queue, n Notifier, maxAttempts int, retryDelay time.Duration, log zerolog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		Queue:       q,
		Notifier:    n,
		MaxAttempts: maxAttempts,
		RetryDelay:  retryDelay,
		PollTimeout: 2 * time.Second,
		Log:         log.With().Str("component", "notify_worker").Logger(),
	}
}

func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Log.Info().Msg("Notification worker started")
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if _, err := w.Process(ctx); err != nil && ctx.Err() == nil {
					w.Log.Error().Err(err).Msg("Failed to process notification")
				}
			}
		}
	}()
}

// Shutdown stops polling and drains what is already queued.
func (w *Worker) Shutdown() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()

	ctx := context.Background()
	n, _ := w.Queue.Len(ctx)
	w.Log.Info().Int64("remaining", n).Msg("Draining notifications before shutdown")
	for i := int64(0); i < n; i++ {
		m, err := w.Queue.Dequeue(ctx, 0)
		if err != nil || m == nil {
			break
		}
		w.deliver(ctx, *m, false)
	}
	w.Log.Info().Msg("Notification worker stopped")
}

// Process delivers at most one message. Returns false when the queue was empty.
func (w *Worker) Process(ctx context.Context) (bool, error) {
	m, err := w.Queue.Dequeue(ctx, w.PollTimeout)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	w.deliver(ctx, *m, true)

	if n, err := w.Queue.Len(ctx); err == nil {
		metrics.SetQueueLength(int(n))
	}
	return true, nil
}

func (w *Worker) deliver(ctx context.Context, m Message, retry bool) {
	m.Attempts++
	err := w.Notifier.Notify(ctx, m.OwnerID, m.Event, m.Payload)
	if err == nil {
		metrics.RecordNotification(m.Event, "sent")
		w.Log.Debug().Str("event", m.Event).Str("owner_id", m.OwnerID).Int("attempt", m.Attempts).Msg("Notification sent")
		return
	}

	m.LastError = err.Error()
	w.Log.Warn().Err(err).Str("event", m.Event).Str("owner_id", m.OwnerID).Int("attempt", m.Attempts).Msg("Notification failed")

	if retry && m.Attempts < w.MaxAttempts {
		if w.RetryDelay > 0 {
			select {
			case <-time.After(w.RetryDelay):
			case <-ctx.Done():
			}
		}
		if err := w.Queue.Enqueue(context.Background(), m); err == nil {
			metrics.RecordNotification(m.Event, "retried")
			return
		}
	}

	metrics.RecordNotification(m.Event, "failed")
	if err := w.Queue.DeadLetter(context.Background(), m); err != nil {
		w.Log.Error().Err(err).Str("message_id", m.ID.String()).Msg("Failed to dead-letter notification")
		return
	}
	w.Log.Error().Str("event", m.Event).Str("owner_id", m.OwnerID).Int("attempts", m.Attempts).Msg("Notification moved to failed queue")
}
