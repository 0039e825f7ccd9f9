package handlers

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/http/middleware"
	"github.com/rs/zerolog"
)

// Processor is the part of the pipeline the HTTP layer talks to.
type Processor interface {
	Submit(ctx context.Context, content []byte, pc domain.ProcessingContext) (string, error)
	GetStatus(ctx context.Context, taskID string) (*domain.TaskState, error)
	GetResult(ctx context.Context, taskID string) (domain.PipelineResult, error)
	GetQuality(ctx context.Context, taskID string) (domain.QualityReport, error)
	ListTasks(ctx context.Context, filter domain.TaskListFilter) ([]domain.TaskListItem, int, error)
}

type Limits struct {
	MaxFileSize int64
	MaxPages    int
}

type API struct {
	processor   Processor
	limits      Limits
	idempotency *idempotencyStore
	backends    Backends
	logger      zerolog.Logger
}

func NewAPI(processor Processor, limits Limits, logger zerolog.Logger) *API {
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 50_000_000
	}
	api := &API{
		processor:   processor,
		limits:      limits,
		idempotency: newIdempotencyStore(24 * time.Hour),
		logger:      logger,
	}
	return api.WithBackends(Backends{})
}

// requestLogger prefers the request-scoped logger set by the Trace
// middleware and falls back to the API logger.
func (api *API) requestLogger(r *http.Request) *zerolog.Logger {
	if logger := zerolog.Ctx(r.Context()); logger.GetLevel() != zerolog.Disabled {
		return logger
	}
	return &api.logger
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// idempotencyEntry has an empty TaskID while the first request holding the
// key is still submitting.
type idempotencyEntry struct {
	PayloadHash uint64
	TaskID      string
	CreatedAt   time.Time
}

// idempotencyStore remembers which task an Idempotency-Key produced so a
// retried upload does not start a second pipeline run.
type idempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idempotencyEntry
}

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{
		ttl:     ttl,
		entries: make(map[string]idempotencyEntry),
	}
}

// Reserve claims key for the caller. When the key is already held it
// returns the existing entry and false.
func (s *idempotencyStore) Reserve(key string, payloadHash uint64) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for existing, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, existing)
		}
	}
	if entry, ok := s.entries[key]; ok {
		return entry, false
	}
	entry := idempotencyEntry{PayloadHash: payloadHash, CreatedAt: now}
	s.entries[key] = entry
	return entry, true
}

func (s *idempotencyStore) Complete(key, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return
	}
	entry.TaskID = taskID
	s.entries[key] = entry
}

// Release drops a reservation whose submission failed so the key can be
// retried.
func (s *idempotencyStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && entry.TaskID == "" {
		delete(s.entries, key)
	}
}

func hashSubmission(content []byte, pc domain.ProcessingContext) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write(content)
	meta, _ := json.Marshal(pc)
	_, _ = hasher.Write(meta)
	return hasher.Sum64()
}
