/*
Package notify carries outbound owner notifications off the financial path.

FLOW:
  Finalizer commits ──▶ Queue.Enqueue(msg) ──▶ Worker ──▶ Notifier.Notify
                                                  │
                                     failure ─────┤ attempts < max: re-enqueue
                                                  └ attempts = max: dead letter

  Enqueue never blocks a commit. A full in-process queue drops the message
  and the caller logs it.

QUEUES:
  ChannelQueue: buffered channel, in-process, lost on restart
  RedisQueue:   LPUSH/BRPOP list with a :failed dead-letter list
*/
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventStatementFinalized = "statement.finalized"
	EventCommissionPaid     = "wallet.commission_paid"
	EventBalancePaid        = "wallet.balance_paid"
)

var ErrQueueFull = errors.New("notification queue full")

type Message struct {
	ID        uuid.UUID         `json:"id"`
	Event     string            `json:"event"`
	OwnerID   string            `json:"owner_id"`
	Payload   map[string]string `json:"payload,omitempty"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type MessageOption func(*Message)

func WithEvent(event string) MessageOption {
	return func(m *Message) {
		m.Event = event
	}
}

func WithOwner(ownerID string) MessageOption {
	return func(m *Message) {
		m.OwnerID = ownerID
	}
}

func WithPayload(key, value string) MessageOption {
	return func(m *Message) {
		m.Payload[key] = value
	}
}

func NewMessage(opts ...MessageOption) Message {
	m := Message{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Payload:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Queue holds messages until the worker delivers them.
type Queue interface {
	Enqueue(ctx context.Context, m Message) error
	// Dequeue waits up to timeout. Returns nil, nil when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
	DeadLetter(ctx context.Context, m Message) error
	Len(ctx context.Context) (int64, error)
}

// Notifier delivers one message to the owner (email, SMS, WhatsApp...).
type Notifier interface {
	Notify(ctx context.Context, ownerID, eventType string, payload map[string]string) error
}
