package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

const TotalStages = 9

const (
	StageUpload = iota + 1
	StageLayout
	StageExtraction
	StageClassification
	StageRisk
	StageOpportunity
	StageValidation
	StageStructuredOutput
	StageCompilation
)

var stageNames = [TotalStages + 1]string{
	"",
	"Document Upload & Validation",
	"Layout Analysis",
	"Text & Table Extraction",
	"Content Classification",
	"Risk Analysis",
	"Opportunity Identification",
	"Data Validation",
	"Structured Output",
	"Result Compilation",
}

func StageName(stage int) string {
	if stage < 1 || stage > TotalStages {
		return ""
	}
	return stageNames[stage]
}

func StageKey(stage int) string {
	return fmt.Sprintf("stage_%d", stage)
}

// ProcessingContext is fixed at submission and never mutated afterwards.
type ProcessingContext struct {
	TaskID       string    `json:"task_id"`
	FileName     string    `json:"filename"`
	Year         int       `json:"ano,omitempty"`
	UASG         string    `json:"uasg,omitempty"`
	TenderNumber string    `json:"numero_pregao,omitempty"`
	CallbackURL  string    `json:"callback_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TaskState is the mutable progress record owned by the orchestrator.
// Status only moves pending -> processing -> completed|failed and
// CurrentStage never decreases.
type TaskState struct {
	TaskID             string            `json:"task_id"`
	Status             TaskStatus        `json:"status"`
	CurrentStage       int               `json:"current_stage"`
	TotalStages        int               `json:"total_stages"`
	StageName          string            `json:"stage_name"`
	ProgressPercentage float64           `json:"progress_percentage"`
	CreatedAt          time.Time         `json:"created_at"`
	StartedAt          *time.Time        `json:"started_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	Error              string            `json:"error,omitempty"`
	ResultPath         string            `json:"result_path,omitempty"`
	Context            ProcessingContext `json:"context"`
}

// NewTaskState starts a task at stage 1: the upload already happened when
// the task is created.
func NewTaskState(pc ProcessingContext) *TaskState {
	state := &TaskState{
		TaskID:      pc.TaskID,
		Status:      TaskStatusPending,
		TotalStages: TotalStages,
		CreatedAt:   pc.CreatedAt,
		Context:     pc,
	}
	state.AdvanceTo(StageUpload)
	return state
}

// AdvanceTo moves the task to stage. Lower stages are ignored.
func (s *TaskState) AdvanceTo(stage int) {
	if stage < s.CurrentStage || stage < 1 || stage > TotalStages {
		return
	}
	s.CurrentStage = stage
	s.StageName = StageName(stage)
	s.ProgressPercentage = float64(stage) / float64(TotalStages) * 100
}

func (s *TaskState) MarkProcessing(now time.Time) error {
	if err := s.transition(TaskStatusProcessing); err != nil {
		return err
	}
	s.StartedAt = &now
	return nil
}

func (s *TaskState) MarkCompleted(now time.Time, resultPath string) error {
	if err := s.transition(TaskStatusCompleted); err != nil {
		return err
	}
	s.AdvanceTo(StageCompilation)
	s.CompletedAt = &now
	s.ResultPath = resultPath
	s.Error = ""
	return nil
}

// MarkFailed is also accepted from pending so a task that never reached a
// worker can still be closed.
func (s *TaskState) MarkFailed(now time.Time, reason string) error {
	if err := s.transition(TaskStatusFailed); err != nil {
		return err
	}
	s.CompletedAt = &now
	s.Error = reason
	return nil
}

func (s *TaskState) transition(next TaskStatus) error {
	allowed := false
	switch s.Status {
	case TaskStatusPending:
		allowed = next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		allowed = next == TaskStatusCompleted || next == TaskStatusFailed
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}

// Clone returns a deep copy safe to hand to readers.
func (s *TaskState) Clone() *TaskState {
	if s == nil {
		return nil
	}
	clone := *s
	if s.StartedAt != nil {
		startedAt := *s.StartedAt
		clone.StartedAt = &startedAt
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}

// TaskMessage is the transport format sent to queue backends.
type TaskMessage struct {
	TaskID      string            `json:"task_id"`
	Content     []byte            `json:"content"`
	Context     ProcessingContext `json:"context"`
	Attempt     int               `json:"attempt"`
	RequestedAt time.Time         `json:"requested_at"`
}

// CallbackPayload is posted to the task callback URL once the task is terminal.
type CallbackPayload struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	ResultPath string     `json:"result_path,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TaskListFilter narrows ListTasks. Zero values match everything.
type TaskListFilter struct {
	Status   TaskStatus
	UASG     string
	Year     int
	Page     int
	PageSize int
}

// TaskListItem is the summary row returned by ListTasks.
type TaskListItem struct {
	TaskID       string     `json:"task_id"`
	FileName     string     `json:"filename"`
	Status       TaskStatus `json:"status"`
	CurrentStage int        `json:"current_stage"`
	UASG         string     `json:"uasg,omitempty"`
	TenderNumber string     `json:"numero_pregao,omitempty"`
	ResultPath   string     `json:"result_path,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (s *TaskState) ListItem() TaskListItem {
	return TaskListItem{
		TaskID:       s.TaskID,
		FileName:     s.Context.FileName,
		Status:       s.Status,
		CurrentStage: s.CurrentStage,
		UASG:         s.Context.UASG,
		TenderNumber: s.Context.TenderNumber,
		ResultPath:   s.ResultPath,
		CreatedAt:    s.CreatedAt,
	}
}

// Matches reports whether the task passes the filter.
func (f TaskListFilter) Matches(s *TaskState) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.UASG != "" && s.Context.UASG != f.UASG {
		return false
	}
	if f.Year != 0 && s.Context.Year != f.Year {
		return false
	}
	return true
}
