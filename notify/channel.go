package notify

import (
	"context"
	"sync"
	"time"
)

// ChannelQueue is an in-process Queue backed by a buffered channel.
type ChannelQueue struct {
	ch chan Message

	mu     sync.Mutex
	failed []Message
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 100
	}
	return &ChannelQueue{ch: make(chan Message, size)}
}

// Enqueue never blocks. A full queue returns ErrQueueFull.
func (q *ChannelQueue) Enqueue(_ context.Context, m Message) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		select {
		case m := <-q.ch:
			return &m, nil
		default:
			return nil, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-q.ch:
		return &m, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *ChannelQueue) DeadLetter(_ context.Context, m Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, m)
	return nil
}

func (q *ChannelQueue) Len(_ context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Failed returns the dead-lettered messages.
func (q *ChannelQueue) Failed() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.failed...)
}
