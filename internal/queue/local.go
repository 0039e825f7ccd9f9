package queue

import (
	"context"
	"sync"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/rs/zerolog"
)

// DeadLetter is a message a handler rejected, with the reason.
type DeadLetter struct {
	Message domain.TaskMessage
	Error   string
}

// LocalQueue is an in-process queue used when Redis is not configured.
// Enqueue never blocks: a full buffer is reported as ErrQueueFull.
type LocalQueue struct {
	ch     chan domain.TaskMessage
	logger zerolog.Logger

	dlqMu sync.Mutex
	dlq   []DeadLetter
}

func NewLocalQueue(capacity int, logger zerolog.Logger) *LocalQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &LocalQueue{
		ch:     make(chan domain.TaskMessage, capacity),
		logger: logger,
		dlq:    make([]DeadLetter, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message domain.TaskMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- message:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			if err := handler(ctx, message); err != nil {
				q.deadLetter(message, err)
			}
		}
	}
}

func (q *LocalQueue) deadLetter(message domain.TaskMessage, err error) {
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, DeadLetter{Message: message, Error: err.Error()})
	q.dlqMu.Unlock()

	q.logger.Warn().
		Str("task_id", message.TaskID).
		Err(err).
		Msg("local queue moved message to DLQ")
}

// Len is the number of messages waiting for a worker.
func (q *LocalQueue) Len() int {
	return len(q.ch)
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

func (q *LocalQueue) DeadLetters() []DeadLetter {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]DeadLetter(nil), q.dlq...)
}
