// Package worker runs queued pipeline tasks on a fixed number of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/queue"
	"github.com/rs/zerolog"
)

const restartDelay = 2 * time.Second

// PanicHandler is told about a task whose handler panicked so the task can
// be closed as failed.
type PanicHandler func(ctx context.Context, message domain.TaskMessage, reason string)

type Config struct {
	Concurrency int
	OnPanic     PanicHandler
}

// Pool consumes task messages with Concurrency workers. Each worker handles
// one message at a time, which bounds the number of tasks in flight.
type Pool struct {
	consumer    queue.Consumer
	handler     queue.Handler
	concurrency int
	onPanic     PanicHandler
	logger      zerolog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
	started  atomic.Bool
}

func NewPool(consumer queue.Consumer, handler queue.Handler, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Pool{
		consumer:    consumer,
		handler:     handler,
		concurrency: cfg.Concurrency,
		onPanic:     cfg.OnPanic,
		logger:      logger,
	}
}

// Start launches the workers and returns immediately. Workers stop when ctx
// is cancelled; Wait blocks until they have all returned.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i + 1)
	}
	p.logger.Info().Int("workers", p.concurrency).Msg("worker pool started")
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight is the number of tasks currently being handled.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *Pool) Concurrency() int {
	return p.concurrency
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With().Int("worker", id).Logger()
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.handle)
		if err == nil || ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("worker consume loop error")

		timer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Pool) handle(ctx context.Context, message domain.TaskMessage) (err error) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		reason := fmt.Sprintf("panic: %v", recovered)
		p.logger.Error().
			Str("task_id", message.TaskID).
			Str("panic", fmt.Sprint(recovered)).
			Bytes("stack", debug.Stack()).
			Msg("task handler panicked")
		if p.onPanic != nil {
			p.onPanic(context.WithoutCancel(ctx), message, reason)
		}
		err = fmt.Errorf("task %s: %s", message.TaskID, reason)
	}()

	return p.handler(ctx, message)
}
