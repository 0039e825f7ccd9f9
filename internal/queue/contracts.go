package queue

import (
	"context"
	"errors"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

// ErrQueueFull is returned by Enqueue when the backend is at capacity.
// Callers reject the submission instead of waiting.
var ErrQueueFull = errors.New("queue is full")

// Handler processes one task message. A returned error moves the message
// to the dead-letter store; messages are never retried.
type Handler func(context.Context, domain.TaskMessage) error

// Producer sends task messages to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.TaskMessage) error
}

// Consumer receives task messages and executes handlers until ctx is done.
// It is safe to call Consume from several goroutines.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}
