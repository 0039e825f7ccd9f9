package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

// ResultStore persists finished pipeline results. Put overwrites an
// existing key and returns the location recorded on the task.
type ResultStore interface {
	Put(ctx context.Context, key string, result domain.PipelineResult) (string, error)
	Get(ctx context.Context, location string) (domain.PipelineResult, error)
}

// MemoryResultStore keeps encoded results in memory for local development.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		results: make(map[string][]byte),
	}
}

func (s *MemoryResultStore) Put(_ context.Context, key string, result domain.PipelineResult) (string, error) {
	data, err := encodeResult(result)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = data
	return key, nil
}

func (s *MemoryResultStore) Get(_ context.Context, location string) (domain.PipelineResult, error) {
	s.mu.RLock()
	data, ok := s.results[location]
	s.mu.RUnlock()

	if !ok {
		return domain.PipelineResult{}, ErrNotFound
	}
	return decodeResult(data)
}

func encodeResult(result domain.PipelineResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (domain.PipelineResult, error) {
	var result domain.PipelineResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.PipelineResult{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

var (
	unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

const maxSegmentLength = 100

// ResultKey builds <prefix>/<year>/<uasg>/<pregao>/result_<task>.json.
// Without a tender number the document lands in <uasg>/diversos, and
// without a UASG in diversos/<first 8 chars of the task id>. The year
// falls back to the year the task was created.
func ResultKey(prefix string, pc domain.ProcessingContext) string {
	year := pc.Year
	if year == 0 {
		year = pc.CreatedAt.Year()
	}

	segments := []string{strings.Trim(prefix, "/"), strconv.Itoa(year)}
	uasg := CleanSegment(pc.UASG)
	tender := CleanSegment(pc.TenderNumber)
	switch {
	case uasg != "" && tender != "":
		segments = append(segments, uasg, tender)
	case uasg != "":
		segments = append(segments, uasg, "diversos")
	default:
		short := pc.TaskID
		if len(short) > 8 {
			short = short[:8]
		}
		segments = append(segments, "diversos", short)
	}
	segments = append(segments, "result_"+pc.TaskID+".json")

	return path.Join(segments...)
}

// CleanSegment makes a user supplied value safe to use as one path segment.
func CleanSegment(value string) string {
	clean := unsafePathChars.ReplaceAllString(strings.TrimSpace(value), "_")
	clean = whitespaceRun.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, ".")
	if len(clean) > maxSegmentLength {
		clean = clean[:maxSegmentLength]
	}
	return clean
}
