package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extractor"
	"github.com/iago/licitacao-pipeline/internal/queue"
	"github.com/iago/licitacao-pipeline/internal/repository"
	"github.com/iago/licitacao-pipeline/internal/worker"
)

const noticeText = `PREGÃO ELETRÔNICO Nº 90001/2024
UASG: 986531
Órgão: Secretaria Municipal de Saúde
Objeto: Aquisição de equipamentos hospitalares
Valor estimado: R$ 1.234.567,89
Data de abertura: 15/03/2024
Modalidade: Pregão Eletrônico
Local de entrega: Almoxarifado Central
Prazo de entrega: 30 dias corridos
Condições de pagamento: 30 dias após o aceite
`

type failingExtractor struct{}

func (failingExtractor) Extract(_ context.Context, _ []byte, fileName string) (domain.Extraction, error) {
	return domain.Extraction{}, &extractor.Error{FileName: fileName, Err: errors.New("service unavailable")}
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(context.Context, []byte, string) (domain.Extraction, error) {
	panic("converter crashed")
}

type rejectingProducer struct{}

func (rejectingProducer) Enqueue(context.Context, domain.TaskMessage) error {
	return queue.ErrQueueFull
}

type callbackRecorder struct {
	mu       sync.Mutex
	payloads []domain.CallbackPayload
}

func (r *callbackRecorder) server(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload domain.CallbackPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.payloads = append(r.payloads, payload)
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	return server
}

func (r *callbackRecorder) received() []domain.CallbackPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CallbackPayload(nil), r.payloads...)
}

type harness struct {
	orchestrator *Orchestrator
	queue        *queue.LocalQueue
	results      *repository.MemoryResultStore
}

func newHarness(t *testing.T, documentExtractor extractor.Extractor, withWorkers bool) *harness {
	t.Helper()

	q := queue.NewLocalQueue(8, zerolog.Nop())
	results := repository.NewMemoryResultStore()
	orchestrator := NewOrchestrator(
		repository.NewMemoryTaskRepository(),
		results,
		q,
		documentExtractor,
		NewAnalyzer(nil),
		NewHTTPNotifier(time.Second, nil),
		Config{},
		zerolog.Nop(),
	)

	if withWorkers {
		ctx, cancel := context.WithCancel(context.Background())
		pool := worker.NewPool(q, orchestrator.Run, worker.Config{Concurrency: 2, OnPanic: orchestrator.Fail}, zerolog.Nop())
		pool.Start(ctx)
		t.Cleanup(func() {
			cancel()
			pool.Wait()
		})
	}

	return &harness{orchestrator: orchestrator, queue: q, results: results}
}

func waitForStatus(t *testing.T, o *Orchestrator, taskID string, want domain.TaskStatus) *domain.TaskState {
	t.Helper()
	var state *domain.TaskState
	require.Eventually(t, func() bool {
		current, err := o.GetStatus(context.Background(), taskID)
		if err != nil {
			return false
		}
		state = current
		return current.Status == want
	}, 3*time.Second, 10*time.Millisecond)
	return state
}

func TestOrchestratorCompletesTask(t *testing.T) {
	recorder := &callbackRecorder{}
	callback := recorder.server(t)
	h := newHarness(t, extractor.NewTextExtractor(), true)

	taskID, err := h.orchestrator.Submit(context.Background(), []byte(noticeText), domain.ProcessingContext{
		FileName:     "edital.pdf",
		Year:         2024,
		UASG:         "986531",
		TenderNumber: "90001/2024",
		CallbackURL:  callback.URL,
	})
	require.NoError(t, err)

	state := waitForStatus(t, h.orchestrator, taskID, domain.TaskStatusCompleted)
	assert.Equal(t, domain.StageCompilation, state.CurrentStage)
	assert.Equal(t, "Result Compilation", state.StageName)
	assert.InDelta(t, 100.0, state.ProgressPercentage, 0.001)
	assert.Equal(t, "results/2024/986531/90001_2024/result_"+taskID+".json", state.ResultPath)
	assert.NotNil(t, state.StartedAt)
	assert.NotNil(t, state.CompletedAt)
	assert.Empty(t, state.Error)

	result, err := h.orchestrator.GetResult(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "986531", result.StructuredData.UASG)
	require.NotNil(t, result.StructuredData.EstimatedValue)
	assert.InDelta(t, 1234567.89, *result.StructuredData.EstimatedValue, 0.001)
	assert.Equal(t, domain.TotalStages, result.Metadata.StagesCompleted)
	for stage := domain.StageExtraction; stage <= domain.StageCompilation; stage++ {
		assert.Contains(t, result.ProcessingTimes, domain.StageKey(stage))
	}
	assert.NotContains(t, result.ProcessingTimes, domain.StageKey(domain.StageUpload))
	assert.NotEmpty(t, result.Quality.Grade)
	assert.GreaterOrEqual(t, result.Quality.FinalScore, 0.0)
	assert.LessOrEqual(t, result.Quality.FinalScore, 1.0)

	for i := 1; i < len(result.Risks); i++ {
		assert.GreaterOrEqual(t, result.Risks[i-1].Criticality, result.Risks[i].Criticality)
	}

	report, err := h.orchestrator.GetQuality(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, result.Quality, report.Quality)

	require.Eventually(t, func() bool { return len(recorder.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	payload := recorder.received()[0]
	assert.Equal(t, domain.TaskStatusCompleted, payload.Status)
	assert.Equal(t, state.ResultPath, payload.ResultPath)
}

func TestOrchestratorExtractionFailure(t *testing.T) {
	recorder := &callbackRecorder{}
	callback := recorder.server(t)
	h := newHarness(t, failingExtractor{}, true)

	taskID, err := h.orchestrator.Submit(context.Background(), []byte("%PDF-1.4"), domain.ProcessingContext{
		FileName:    "edital.pdf",
		CallbackURL: callback.URL,
	})
	require.NoError(t, err)

	state := waitForStatus(t, h.orchestrator, taskID, domain.TaskStatusFailed)
	assert.Contains(t, state.Error, "extract edital.pdf: service unavailable")
	assert.NotNil(t, state.StartedAt)

	_, err = h.orchestrator.GetResult(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = h.orchestrator.GetQuality(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrNotReady)

	require.Eventually(t, func() bool { return h.queue.DLQSize() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(recorder.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	payload := recorder.received()[0]
	assert.Equal(t, domain.TaskStatusFailed, payload.Status)
	assert.Equal(t, state.Error, payload.Error)
	assert.Empty(t, payload.ResultPath)
}

func TestOrchestratorPanicFailsTask(t *testing.T) {
	h := newHarness(t, panickingExtractor{}, true)

	taskID, err := h.orchestrator.Submit(context.Background(), []byte("x"), domain.ProcessingContext{FileName: "a.pdf"})
	require.NoError(t, err)

	state := waitForStatus(t, h.orchestrator, taskID, domain.TaskStatusFailed)
	assert.Contains(t, state.Error, "panic: converter crashed")
}

func TestOrchestratorPendingTask(t *testing.T) {
	h := newHarness(t, extractor.NewTextExtractor(), false)

	taskID, err := h.orchestrator.Submit(context.Background(), []byte(noticeText), domain.ProcessingContext{FileName: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.queue.Len())

	state, err := h.orchestrator.GetStatus(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, state.Status)
	assert.Equal(t, domain.StageUpload, state.CurrentStage)
	assert.InDelta(t, 100.0/9.0, state.ProgressPercentage, 0.001)

	_, err = h.orchestrator.GetResult(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestOrchestratorUnknownTask(t *testing.T) {
	h := newHarness(t, extractor.NewTextExtractor(), false)

	_, err := h.orchestrator.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = h.orchestrator.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrNotReady)
}

func TestOrchestratorQueueFullFailsTask(t *testing.T) {
	tasks := repository.NewMemoryTaskRepository()
	o := NewOrchestrator(tasks, repository.NewMemoryResultStore(), rejectingProducer{}, extractor.NewTextExtractor(), nil, nil, Config{}, zerolog.Nop())

	taskID, err := o.Submit(context.Background(), []byte(noticeText), domain.ProcessingContext{FileName: "a.pdf"})
	require.ErrorIs(t, err, queue.ErrQueueFull)

	state, err := o.GetStatus(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, state.Status)
	assert.Contains(t, state.Error, "not queued")
}

func TestRunSkipsTaskThatIsNotPending(t *testing.T) {
	h := newHarness(t, extractor.NewTextExtractor(), false)
	ctx := context.Background()

	taskID, err := h.orchestrator.Submit(ctx, []byte(noticeText), domain.ProcessingContext{FileName: "a.pdf"})
	require.NoError(t, err)

	message := domain.TaskMessage{TaskID: taskID, Content: []byte(noticeText), Context: domain.ProcessingContext{TaskID: taskID, FileName: "a.pdf"}}
	require.NoError(t, h.orchestrator.Run(ctx, message))
	require.NoError(t, h.orchestrator.Run(ctx, message))

	state, err := h.orchestrator.GetStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, state.Status)
}

func TestAnalyzerProductTablesAndProgress(t *testing.T) {
	var (
		mu     sync.Mutex
		stages []int
	)
	extracted := domain.Extraction{
		Text:       noticeText,
		Confidence: domain.DefaultConfidence(),
		Pages:      2,
		Tables: []domain.Table{
			{ID: 1, Rows: []map[string]any{{"item": "parafuso", "descrição": "parafuso M6", "quantidade": 500}}},
			{ID: 2, Rows: []map[string]any{{"coluna": "observação geral"}}},
		},
	}

	result, err := NewAnalyzer(nil).Analyze(context.Background(), AnalysisInput{
		Context:        domain.ProcessingContext{TaskID: "t1", FileName: "edital.pdf"},
		Extraction:     extracted,
		ExtractionTime: 1500 * time.Millisecond,
	}, func(stage int) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Len(t, result.ProductTables, 1)
	assert.Equal(t, 1, result.ProductTables[0].TableID)
	assert.Equal(t, "produtos_servicos", result.ProductTables[0].Type)
	assert.Equal(t, 1, result.ProductTables[0].EstimatedProducts)
	assert.InDelta(t, 1.5, result.ProcessingTimes["stage_3"], 0.0001)
	assert.Equal(t, 2, result.Analysis.ExtractionMetadata.Pages)
	assert.Equal(t, domain.GradeGood, result.Analysis.ExtractionMetadata.Grade)
	assert.Len(t, result.Analysis.Classification.Tables, 2)
	assert.ElementsMatch(t, []int{4, 5, 6, 7, 8, 9}, stages)
	assert.NotNil(t, result.Errors)
	assert.NotNil(t, result.Warnings)
}

func TestHTTPNotifierReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewHTTPNotifier(time.Second, nil).Notify(context.Background(), server.URL, domain.CallbackPayload{TaskID: "t"})
	assert.ErrorContains(t, err, "callback status 500")
}

func TestHTTPNotifierTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	err := NewHTTPNotifier(50*time.Millisecond, nil).Notify(context.Background(), server.URL, domain.CallbackPayload{TaskID: "t"})
	assert.Error(t, err)
}

// statusFailingRepository refuses to persist tasks in one status.
type statusFailingRepository struct {
	*repository.MemoryTaskRepository
	refuse domain.TaskStatus
}

func (r statusFailingRepository) UpdateTask(ctx context.Context, task *domain.TaskState) error {
	if task.Status == r.refuse {
		return errors.New("db down")
	}
	return r.MemoryTaskRepository.UpdateTask(ctx, task)
}

// expiredResults accepts results but has always lost them on read.
type expiredResults struct {
	*repository.MemoryResultStore
}

func (expiredResults) Get(context.Context, string) (domain.PipelineResult, error) {
	return domain.PipelineResult{}, repository.ErrNotFound
}

func TestRunFailsTaskWhenStatusCannotBePersisted(t *testing.T) {
	cases := []struct {
		name   string
		refuse domain.TaskStatus
		reason string
	}{
		{name: "processing", refuse: domain.TaskStatusProcessing, reason: "mark processing: db down"},
		{name: "completed", refuse: domain.TaskStatusCompleted, reason: "mark completed: db down"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &callbackRecorder{}
			callback := recorder.server(t)
			o := NewOrchestrator(
				statusFailingRepository{MemoryTaskRepository: repository.NewMemoryTaskRepository(), refuse: tc.refuse},
				repository.NewMemoryResultStore(),
				queue.NewLocalQueue(4, zerolog.Nop()),
				extractor.NewTextExtractor(),
				nil,
				NewHTTPNotifier(time.Second, nil),
				Config{},
				zerolog.Nop(),
			)
			ctx := context.Background()

			taskID, err := o.Submit(ctx, []byte(noticeText), domain.ProcessingContext{FileName: "a.pdf", CallbackURL: callback.URL})
			require.NoError(t, err)
			submitted, err := o.GetStatus(ctx, taskID)
			require.NoError(t, err)

			err = o.Run(ctx, domain.TaskMessage{TaskID: taskID, Content: []byte(noticeText), Context: submitted.Context})
			require.ErrorContains(t, err, tc.reason)

			state, err := o.GetStatus(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, domain.TaskStatusFailed, state.Status)
			assert.Contains(t, state.Error, tc.reason)
			assert.Empty(t, state.ResultPath)

			received := recorder.received()
			require.Len(t, received, 1)
			assert.Equal(t, domain.TaskStatusFailed, received[0].Status)
			assert.Equal(t, state.Error, received[0].Error)
		})
	}
}

func TestGetResultReportsExpiredResult(t *testing.T) {
	o := NewOrchestrator(
		repository.NewMemoryTaskRepository(),
		expiredResults{MemoryResultStore: repository.NewMemoryResultStore()},
		queue.NewLocalQueue(4, zerolog.Nop()),
		extractor.NewTextExtractor(),
		nil,
		nil,
		Config{},
		zerolog.Nop(),
	)
	ctx := context.Background()

	taskID, err := o.Submit(ctx, []byte(noticeText), domain.ProcessingContext{FileName: "a.pdf"})
	require.NoError(t, err)
	require.NoError(t, o.Run(ctx, domain.TaskMessage{TaskID: taskID, Content: []byte(noticeText), Context: domain.ProcessingContext{TaskID: taskID, FileName: "a.pdf"}}))

	_, err = o.GetResult(ctx, taskID)
	assert.ErrorIs(t, err, ErrResultGone)
	assert.NotErrorIs(t, err, ErrNotFound)
	_, err = o.GetQuality(ctx, taskID)
	assert.ErrorIs(t, err, ErrResultGone)
}

func TestAnalyzerStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAnalyzer(nil).Analyze(ctx, AnalysisInput{
		Context:    domain.ProcessingContext{TaskID: "t1", FileName: "edital.pdf"},
		Extraction: domain.Extraction{Text: noticeText, Confidence: domain.DefaultConfidence()},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
