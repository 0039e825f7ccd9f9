package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// TaskRepository abstracts task state persistence and listing.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *domain.TaskState) error
	UpdateTask(ctx context.Context, task *domain.TaskState) error
	GetTask(ctx context.Context, taskID string) (*domain.TaskState, error)
	ListTasks(ctx context.Context, filter domain.TaskListFilter) ([]domain.TaskListItem, int, error)
}

// MemoryTaskRepository stores task states in memory for local development.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*domain.TaskState
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks: make(map[string]*domain.TaskState),
	}
}

func (r *MemoryTaskRepository) CreateTask(_ context.Context, task *domain.TaskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.TaskID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) UpdateTask(_ context.Context, task *domain.TaskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.TaskID]; !ok {
		return ErrNotFound
	}
	r.tasks[task.TaskID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) GetTask(_ context.Context, taskID string) (*domain.TaskState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) ListTasks(
	_ context.Context,
	filter domain.TaskListFilter,
) ([]domain.TaskListItem, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = normalizeFilter(filter)

	items := make([]domain.TaskListItem, 0)
	for _, task := range r.tasks {
		if !filter.Matches(task) {
			continue
		}
		items = append(items, task.ListItem())
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].TaskID < items[j].TaskID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.TaskListItem{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return items[start:end], total, nil
}

func normalizeFilter(filter domain.TaskListFilter) domain.TaskListFilter {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	return filter
}
