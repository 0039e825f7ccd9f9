// Package pipeline drives a procurement document through the nine
// processing stages and owns the task lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extractor"
	"github.com/iago/licitacao-pipeline/internal/queue"
	"github.com/iago/licitacao-pipeline/internal/repository"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = fmt.Errorf("task not found: %w", repository.ErrNotFound)
	ErrNotReady = errors.New("task result not ready")
	// ErrResultGone means the task completed but its stored result expired
	// or was removed from the result store.
	ErrResultGone = errors.New("task result no longer available")
)

type Config struct {
	StoragePrefix string
	Now           func() time.Time
	NewID         func() string
}

type Orchestrator struct {
	tasks     repository.TaskRepository
	results   repository.ResultStore
	producer  queue.Producer
	extractor extractor.Extractor
	analyzer  *Analyzer
	notifier  Notifier
	prefix    string
	now       func() time.Time
	newID     func() string
	logger    zerolog.Logger
}

func NewOrchestrator(
	tasks repository.TaskRepository,
	results repository.ResultStore,
	producer queue.Producer,
	documentExtractor extractor.Extractor,
	analyzer *Analyzer,
	notifier Notifier,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.StoragePrefix == "" {
		cfg.StoragePrefix = "results"
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if analyzer == nil {
		analyzer = NewAnalyzer(nil)
	}
	return &Orchestrator{
		tasks:     tasks,
		results:   results,
		producer:  producer,
		extractor: documentExtractor,
		analyzer:  analyzer,
		notifier:  notifier,
		prefix:    cfg.StoragePrefix,
		now:       cfg.Now,
		newID:     cfg.NewID,
		logger:    logger,
	}
}

// Submit records a pending task and queues it. The task is visible to
// GetStatus before any worker picks it up. When the queue refuses the
// message the task is closed as failed and the queue error is returned.
func (o *Orchestrator) Submit(ctx context.Context, content []byte, pc domain.ProcessingContext) (string, error) {
	pc.TaskID = o.newID()
	pc.CreatedAt = o.now()

	state := domain.NewTaskState(pc)
	if err := o.tasks.CreateTask(ctx, state); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	message := domain.TaskMessage{
		TaskID:      pc.TaskID,
		Content:     content,
		Context:     pc,
		RequestedAt: pc.CreatedAt,
	}
	if err := o.producer.Enqueue(ctx, message); err != nil {
		o.logger.Warn().Err(err).Str("task_id", pc.TaskID).Msg("task rejected by queue")
		o.closeFailed(context.WithoutCancel(ctx), state, fmt.Sprintf("task %s was not queued: %v", pc.TaskID, err))
		return pc.TaskID, fmt.Errorf("enqueue task: %w", err)
	}

	o.logger.Info().
		Str("task_id", pc.TaskID).
		Str("filename", pc.FileName).
		Int("bytes", len(content)).
		Msg("task submitted")
	return pc.TaskID, nil
}

func (o *Orchestrator) GetStatus(ctx context.Context, taskID string) (*domain.TaskState, error) {
	state, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	return state, nil
}

func (o *Orchestrator) GetResult(ctx context.Context, taskID string) (domain.PipelineResult, error) {
	state, err := o.GetStatus(ctx, taskID)
	if err != nil {
		return domain.PipelineResult{}, err
	}
	if state.Status != domain.TaskStatusCompleted {
		return domain.PipelineResult{}, fmt.Errorf("%w: task %s is %s", ErrNotReady, taskID, state.Status)
	}
	result, err := o.results.Get(ctx, state.ResultPath)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.PipelineResult{}, fmt.Errorf("%w: %s", ErrResultGone, state.ResultPath)
	}
	if err != nil {
		return domain.PipelineResult{}, fmt.Errorf("load result %s: %w", state.ResultPath, err)
	}
	return result, nil
}

func (o *Orchestrator) GetQuality(ctx context.Context, taskID string) (domain.QualityReport, error) {
	result, err := o.GetResult(ctx, taskID)
	if err != nil {
		return domain.QualityReport{}, err
	}
	return result.QualityReport(), nil
}

func (o *Orchestrator) ListTasks(ctx context.Context, filter domain.TaskListFilter) ([]domain.TaskListItem, int, error) {
	items, total, err := o.tasks.ListTasks(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return items, total, nil
}

// progress serialises stage updates for one running task.
type progress struct {
	mu     sync.Mutex
	state  *domain.TaskState
	tasks  repository.TaskRepository
	logger zerolog.Logger
}

func (p *progress) advance(ctx context.Context, stage int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := p.state.CurrentStage
	p.state.AdvanceTo(stage)
	if p.state.CurrentStage == before {
		return
	}
	if err := p.tasks.UpdateTask(ctx, p.state); err != nil {
		p.logger.Error().Err(err).Int("stage", stage).Msg("persist stage failed")
		return
	}
	p.logger.Debug().
		Int("stage", p.state.CurrentStage).
		Str("stage_name", p.state.StageName).
		Msg("stage started")
}

func (p *progress) snapshot() *domain.TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes one queued task to completion or failure. It is the worker
// pool handler; a returned error means the task failed.
func (o *Orchestrator) Run(ctx context.Context, message domain.TaskMessage) error {
	logger := o.logger.With().Str("task_id", message.TaskID).Logger()

	state, err := o.tasks.GetTask(ctx, message.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", message.TaskID, err)
	}
	if state.Status != domain.TaskStatusPending {
		logger.Warn().Str("status", string(state.Status)).Msg("skipping task that is not pending")
		return nil
	}
	if err := state.MarkProcessing(o.now()); err != nil {
		return err
	}
	if err := o.tasks.UpdateTask(ctx, state); err != nil {
		err = fmt.Errorf("mark processing: %w", err)
		logger.Error().Err(err).Msg("pipeline failed")
		o.closeFailed(context.WithoutCancel(ctx), state, fmt.Sprintf("pipeline failed for task %s: %v", message.TaskID, err))
		return err
	}

	tracker := &progress{state: state, tasks: o.tasks, logger: logger}
	started := time.Now()
	logger.Info().Str("filename", message.Context.FileName).Msg("pipeline started")

	location, runErr := o.execute(ctx, message, tracker)
	if runErr != nil {
		reason := fmt.Sprintf("pipeline failed for task %s: %v", message.TaskID, runErr)
		logger.Error().Err(runErr).Int("stage", tracker.snapshot().CurrentStage).Msg("pipeline failed")
		o.closeFailed(context.WithoutCancel(ctx), tracker.snapshot(), reason)
		return runErr
	}

	// The completed copy is only kept once it is persisted; otherwise the
	// processing state is closed as failed.
	processing := tracker.snapshot()
	final := processing.Clone()
	if err := final.MarkCompleted(o.now(), location); err != nil {
		return err
	}
	if err := o.tasks.UpdateTask(ctx, final); err != nil {
		err = fmt.Errorf("mark completed: %w", err)
		logger.Error().Err(err).Msg("pipeline failed")
		o.closeFailed(context.WithoutCancel(ctx), processing, fmt.Sprintf("pipeline failed for task %s: %v", message.TaskID, err))
		return err
	}
	logger.Info().
		Str("result_path", location).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("pipeline completed")

	o.notify(context.WithoutCancel(ctx), message.Context.CallbackURL, domain.CallbackPayload{
		TaskID:     message.TaskID,
		Status:     domain.TaskStatusCompleted,
		ResultPath: location,
	})
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, message domain.TaskMessage, tracker *progress) (string, error) {
	extractStarted := time.Now()
	extracted, err := o.extractor.Extract(ctx, message.Content, message.Context.FileName)
	if err != nil {
		return "", err
	}
	extractionTime := time.Since(extractStarted)
	tracker.advance(ctx, domain.StageExtraction)
	o.logger.Info().
		Str("task_id", message.TaskID).
		Int("stage", domain.StageExtraction).
		Int("pages", extracted.Pages).
		Int("tables", len(extracted.Tables)).
		Int64("duration_ms", extractionTime.Milliseconds()).
		Msg("extraction finished")

	result, err := o.analyzer.Analyze(ctx, AnalysisInput{
		Context:        message.Context,
		Extraction:     extracted,
		ExtractionTime: extractionTime,
	}, func(stage int) { tracker.advance(ctx, stage) })
	if err != nil {
		return "", err
	}

	location, err := o.results.Put(ctx, repository.ResultKey(o.prefix, message.Context), result)
	if err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}
	return location, nil
}

// Fail closes a task whose handler crashed. It is the worker pool panic hook.
func (o *Orchestrator) Fail(ctx context.Context, message domain.TaskMessage, reason string) {
	state, err := o.tasks.GetTask(ctx, message.TaskID)
	if err != nil {
		o.logger.Error().Err(err).Str("task_id", message.TaskID).Msg("load crashed task")
		return
	}
	if state.Status.Terminal() {
		return
	}
	o.closeFailed(ctx, state, fmt.Sprintf("pipeline failed for task %s: %s", message.TaskID, reason))
}

func (o *Orchestrator) closeFailed(ctx context.Context, state *domain.TaskState, reason string) {
	if err := state.MarkFailed(o.now(), reason); err != nil {
		o.logger.Error().Err(err).Str("task_id", state.TaskID).Msg("mark failed")
		return
	}
	if err := o.tasks.UpdateTask(ctx, state); err != nil {
		o.logger.Error().Err(err).Str("task_id", state.TaskID).Msg("persist failed task")
	}
	o.notify(ctx, state.Context.CallbackURL, domain.CallbackPayload{
		TaskID: state.TaskID,
		Status: domain.TaskStatusFailed,
		Error:  reason,
	})
}

// notify never changes the task outcome; failures are only logged.
func (o *Orchestrator) notify(ctx context.Context, url string, payload domain.CallbackPayload) {
	if url == "" || o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, url, payload); err != nil {
		o.logger.Error().Err(err).Str("task_id", payload.TaskID).Str("callback_url", url).Msg("callback failed")
		return
	}
	o.logger.Info().Str("task_id", payload.TaskID).Str("status", string(payload.Status)).Msg("callback sent")
}
