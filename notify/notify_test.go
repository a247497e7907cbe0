package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosthub/owner-ledger/notify"
)

// recorder is a Notifier that fails the first failures calls.
type recorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
}

func (r *recorder) Notify(_ context.Context, ownerID, eventType string, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, ownerID+":"+eventType)
	return nil
}

func finalizedMsg() notify.Message {
	return notify.NewMessage(
		notify.WithEvent(notify.EventStatementFinalized),
		notify.WithOwner("owner-1"),
		notify.WithPayload("statement_id", "st-1"),
	)
}

func TestNewMessage_Options(t *testing.T) {
	m := finalizedMsg()

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", m.ID.String())
	assert.Equal(t, notify.EventStatementFinalized, m.Event)
	assert.Equal(t, "owner-1", m.OwnerID)
	assert.Equal(t, "st-1", m.Payload["statement_id"])
	assert.Zero(t, m.Attempts)
}

func TestChannelQueue_FullQueueDrops(t *testing.T) {
	q := notify.NewChannelQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, finalizedMsg()))
	assert.ErrorIs(t, q.Enqueue(ctx, finalizedMsg()), notify.ErrQueueFull)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChannelQueue_DequeueTimeout(t *testing.T) {
	q := notify.NewChannelQueue(1)

	m, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestWorker_DeliversMessage(t *testing.T) {
	q := notify.NewChannelQueue(10)
	rec := &recorder{}
	w := notify.NewWorker(q, rec, 3, 0, zerolog.Nop())
	w.PollTimeout = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, finalizedMsg()))

	processed, err := w.Process(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []string{"owner-1:statement.finalized"}, rec.sent)

	processed, err = w.Process(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	q := notify.NewChannelQueue(10)
	rec := &recorder{failures: 2}
	w := notify.NewWorker(q, rec, 3, 0, zerolog.Nop())
	w.PollTimeout = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, finalizedMsg()))
	for i := 0; i < 3; i++ {
		_, err := w.Process(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, rec.calls)
	assert.Len(t, rec.sent, 1)
	assert.Empty(t, q.Failed())
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	q := notify.NewChannelQueue(10)
	rec := &recorder{failures: 100}
	w := notify.NewWorker(q, rec, 3, 0, zerolog.Nop())
	w.PollTimeout = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, finalizedMsg()))
	for i := 0; i < 4; i++ {
		_, err := w.Process(ctx)
		require.NoError(t, err)
	}

	failed := q.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Equal(t, "smtp unavailable", failed[0].LastError)
	assert.Equal(t, 3, rec.calls)
}

func TestWorker_ShutdownDrainsQueue(t *testing.T) {
	q := notify.NewChannelQueue(10)
	rec := &recorder{}
	w := notify.NewWorker(q, rec, 3, 0, zerolog.Nop())
	w.PollTimeout = 5 * time.Millisecond

	w.Start()
	w.Shutdown()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, finalizedMsg()))
	}
	w.Start()
	w.Shutdown()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.sent, 3)
}

// =============================================================================
// REDIS QUEUE
// =============================================================================

func TestRedisQueue_Enqueue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := notify.NewRedisQueue(db, "")

	mock.Regexp().ExpectLPush(notify.DefaultRedisKey, `.*`).SetVal(1)

	require.NoError(t, q.Enqueue(context.Background(), finalizedMsg()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisQueue_EnqueueError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := notify.NewRedisQueue(db, "notifications")

	mock.Regexp().ExpectLPush("notifications", `.*`).SetErr(errors.New("connection refused"))

	err := q.Enqueue(context.Background(), finalizedMsg())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisQueue_Dequeue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := notify.NewRedisQueue(db, "notifications")

	msg := finalizedMsg()
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	mock.ExpectBRPop(time.Second, "notifications").SetVal([]string{"notifications", string(data)})
	mock.ExpectBRPop(time.Second, "notifications").RedisNil()

	got, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "st-1", got.Payload["statement_id"])

	got, err = q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisQueue_DeadLetterAndLen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := notify.NewRedisQueue(db, "notifications")

	mock.Regexp().ExpectLPush("notifications:failed", `.*`).SetVal(1)
	mock.ExpectLLen("notifications").SetVal(4)

	require.NoError(t, q.DeadLetter(context.Background(), finalizedMsg()))
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
