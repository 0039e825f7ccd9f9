package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied by EnsureSchema at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS pipeline_tasks (
	task_id        TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	current_stage  INTEGER NOT NULL,
	stage_name     TEXT NOT NULL,
	progress       DOUBLE PRECISION NOT NULL,
	error_message  TEXT NOT NULL DEFAULT '',
	result_path    TEXT NOT NULL DEFAULT '',
	uasg           TEXT NOT NULL DEFAULT '',
	year           INTEGER NOT NULL DEFAULT 0,
	context        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS pipeline_tasks_created_at_idx ON pipeline_tasks (created_at DESC);
`

type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTaskRepository(ctx context.Context, databaseURL string) (*PostgresTaskRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresTaskRepository{pool: pool}, nil
}

func (r *PostgresTaskRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepository) Close() {
	r.pool.Close()
}

func (r *PostgresTaskRepository) CreateTask(ctx context.Context, task *domain.TaskState) error {
	contextJSON, err := json.Marshal(task.Context)
	if err != nil {
		return fmt.Errorf("encode task context: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO pipeline_tasks (
			task_id,
			status,
			current_stage,
			stage_name,
			progress,
			error_message,
			result_path,
			uasg,
			year,
			context,
			created_at,
			started_at,
			completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		task.TaskID,
		string(task.Status),
		task.CurrentStage,
		task.StageName,
		task.ProgressPercentage,
		task.Error,
		task.ResultPath,
		task.Context.UASG,
		task.Context.Year,
		contextJSON,
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepository) UpdateTask(ctx context.Context, task *domain.TaskState) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE pipeline_tasks
		SET status = $2,
			current_stage = $3,
			stage_name = $4,
			progress = $5,
			error_message = $6,
			result_path = $7,
			started_at = $8,
			completed_at = $9
		WHERE task_id = $1
	`,
		task.TaskID,
		string(task.Status),
		task.CurrentStage,
		task.StageName,
		task.ProgressPercentage,
		task.Error,
		task.ResultPath,
		task.StartedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresTaskRepository) GetTask(ctx context.Context, taskID string) (*domain.TaskState, error) {
	var (
		task        domain.TaskState
		status      string
		contextJSON []byte
		createdAt   time.Time
		startedAt   *time.Time
		completedAt *time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT task_id, status, current_stage, stage_name, progress, error_message, result_path,
			context, created_at, started_at, completed_at
		FROM pipeline_tasks
		WHERE task_id = $1
	`, taskID).Scan(
		&task.TaskID,
		&status,
		&task.CurrentStage,
		&task.StageName,
		&task.ProgressPercentage,
		&task.Error,
		&task.ResultPath,
		&contextJSON,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	if err := json.Unmarshal(contextJSON, &task.Context); err != nil {
		return nil, fmt.Errorf("decode task context: %w", err)
	}

	task.Status = domain.TaskStatus(status)
	task.TotalStages = domain.TotalStages
	task.CreatedAt = createdAt
	task.StartedAt = startedAt
	task.CompletedAt = completedAt
	return &task, nil
}

func (r *PostgresTaskRepository) ListTasks(
	ctx context.Context,
	filter domain.TaskListFilter,
) ([]domain.TaskListItem, int, error) {
	filter = normalizeFilter(filter)
	baseQuery, args := buildTaskFilters(filter)

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	listQuery := fmt.Sprintf(
		`SELECT task_id, status, current_stage, result_path, context, created_at
		%s
		ORDER BY created_at DESC, task_id
		LIMIT $%d OFFSET $%d`,
		baseQuery,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]domain.TaskListItem, 0)
	for rows.Next() {
		var (
			task        domain.TaskState
			status      string
			contextJSON []byte
		)
		if err := rows.Scan(&task.TaskID, &status, &task.CurrentStage, &task.ResultPath, &contextJSON, &task.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan task item: %w", err)
		}
		if err := json.Unmarshal(contextJSON, &task.Context); err != nil {
			return nil, 0, fmt.Errorf("decode task context: %w", err)
		}
		task.Status = domain.TaskStatus(status)
		items = append(items, task.ListItem())
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate task items: %w", rows.Err())
	}

	return items, total, nil
}

func buildTaskFilters(filter domain.TaskListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM pipeline_tasks WHERE TRUE")

	args := make([]any, 0, 3)
	argIndex := 1

	if filter.Status != "" {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}

	if uasg := strings.TrimSpace(filter.UASG); uasg != "" {
		query.WriteString(fmt.Sprintf(" AND uasg = $%d", argIndex))
		args = append(args, uasg)
		argIndex++
	}

	if filter.Year != 0 {
		query.WriteString(fmt.Sprintf(" AND year = $%d", argIndex))
		args = append(args, filter.Year)
		argIndex++
	}

	return query.String(), args
}
