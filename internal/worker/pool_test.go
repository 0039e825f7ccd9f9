package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	q := queue.NewLocalQueue(16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var (
		current atomic.Int32
		peak    atomic.Int32
		done    atomic.Int32
	)
	handler := func(context.Context, domain.TaskMessage) error {
		now := current.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		done.Add(1)
		return nil
	}

	pool := NewPool(q, handler, Config{Concurrency: 2}, zerolog.Nop())
	pool.Start(ctx)

	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(ctx, domain.TaskMessage{TaskID: "t"}))
	}

	require.Eventually(t, func() bool { return done.Load() == 8 }, 3*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	cancel()
	pool.Wait()
	assert.Equal(t, 0, pool.InFlight())
}

func TestPoolConvertsPanicIntoFailure(t *testing.T) {
	q := queue.NewLocalQueue(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		reasons = map[string]string{}
	)
	onPanic := func(_ context.Context, message domain.TaskMessage, reason string) {
		mu.Lock()
		reasons[message.TaskID] = reason
		mu.Unlock()
	}
	handler := func(_ context.Context, message domain.TaskMessage) error {
		if message.TaskID == "explode" {
			panic("index out of range")
		}
		return nil
	}

	pool := NewPool(q, handler, Config{Concurrency: 1, OnPanic: onPanic}, zerolog.Nop())
	pool.Start(ctx)

	require.NoError(t, q.Enqueue(ctx, domain.TaskMessage{TaskID: "explode"}))
	require.NoError(t, q.Enqueue(ctx, domain.TaskMessage{TaskID: "fine"}))

	require.Eventually(t, func() bool { return q.DLQSize() == 1 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "panic: index out of range", reasons["explode"])
	_, calledForFine := reasons["fine"]
	mu.Unlock()
	assert.False(t, calledForFine)

	letters := q.DeadLetters()
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Error, "explode")
}

type flakyConsumer struct {
	calls atomic.Int32
}

func (c *flakyConsumer) Consume(ctx context.Context, _ queue.Handler) error {
	if c.calls.Add(1) == 1 {
		return errors.New("connection reset")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestPoolStopsOnCancel(t *testing.T) {
	consumer := &flakyConsumer{}
	ctx, cancel := context.WithCancel(context.Background())

	pool := NewPool(consumer, nil, Config{Concurrency: 1}, zerolog.Nop())
	pool.Start(ctx)
	pool.Start(ctx)

	waited := make(chan struct{})
	go func() {
		pool.Wait()
		close(waited)
	}()

	cancel()
	select {
	case <-waited:
	case <-time.After(3 * time.Second):
		t.Fatalf("pool did not stop after cancel")
	}
	assert.LessOrEqual(t, consumer.calls.Load(), int32(1))
}
