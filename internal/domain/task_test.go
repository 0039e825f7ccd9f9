package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask() *TaskState {
	return NewTaskState(ProcessingContext{
		TaskID:    "task-1",
		FileName:  "edital.pdf",
		UASG:      "986531",
		Year:      2024,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestNewTaskStateStartsAtUpload(t *testing.T) {
	state := newTestTask()

	assert.Equal(t, TaskStatusPending, state.Status)
	assert.Equal(t, StageUpload, state.CurrentStage)
	assert.Equal(t, "Document Upload & Validation", state.StageName)
	assert.InDelta(t, 100.0/9, state.ProgressPercentage, 1e-9)
	assert.Equal(t, TotalStages, state.TotalStages)
}

func TestAdvanceToIsMonotonic(t *testing.T) {
	state := newTestTask()

	state.AdvanceTo(StageRisk)
	state.AdvanceTo(StageClassification)
	state.AdvanceTo(0)
	state.AdvanceTo(TotalStages + 1)

	assert.Equal(t, StageRisk, state.CurrentStage)
	assert.Equal(t, "Risk Analysis", state.StageName)
	assert.InDelta(t, 500.0/9, state.ProgressPercentage, 1e-9)
}

func TestTaskTransitions(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("happy path", func(t *testing.T) {
		state := newTestTask()
		require.NoError(t, state.MarkProcessing(now))
		require.NoError(t, state.MarkCompleted(now.Add(time.Second), "results/x.json"))

		assert.Equal(t, TaskStatusCompleted, state.Status)
		assert.Equal(t, StageCompilation, state.CurrentStage)
		assert.Equal(t, 100.0, state.ProgressPercentage)
		assert.Equal(t, "results/x.json", state.ResultPath)
		require.NotNil(t, state.StartedAt)
		require.NotNil(t, state.CompletedAt)
	})

	t.Run("pending can fail", func(t *testing.T) {
		state := newTestTask()
		require.NoError(t, state.MarkFailed(now, "not queued"))
		assert.Equal(t, "not queued", state.Error)
		assert.True(t, state.Status.Terminal())
	})

	t.Run("pending cannot complete", func(t *testing.T) {
		state := newTestTask()
		assert.ErrorIs(t, state.MarkCompleted(now, "x"), ErrInvalidTransition)
		assert.Equal(t, TaskStatusPending, state.Status)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		state := newTestTask()
		require.NoError(t, state.MarkProcessing(now))
		require.NoError(t, state.MarkFailed(now, "boom"))

		assert.ErrorIs(t, state.MarkProcessing(now), ErrInvalidTransition)
		assert.ErrorIs(t, state.MarkCompleted(now, "x"), ErrInvalidTransition)
		assert.ErrorIs(t, state.MarkFailed(now, "again"), ErrInvalidTransition)
		assert.Equal(t, "boom", state.Error)
	})
}

func TestCloneCopiesTimestamps(t *testing.T) {
	state := newTestTask()
	require.NoError(t, state.MarkProcessing(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)))

	clone := state.Clone()
	*clone.StartedAt = clone.StartedAt.Add(time.Hour)
	clone.AdvanceTo(StageValidation)

	assert.Equal(t, 13, state.StartedAt.Hour())
	assert.Equal(t, StageUpload, state.CurrentStage)
	assert.Nil(t, (*TaskState)(nil).Clone())
}

func TestTaskListFilterMatches(t *testing.T) {
	state := newTestTask()

	assert.True(t, TaskListFilter{}.Matches(state))
	assert.True(t, TaskListFilter{Status: TaskStatusPending, UASG: "986531", Year: 2024}.Matches(state))
	assert.False(t, TaskListFilter{Status: TaskStatusCompleted}.Matches(state))
	assert.False(t, TaskListFilter{UASG: "123"}.Matches(state))
	assert.False(t, TaskListFilter{Year: 2023}.Matches(state))

	item := state.ListItem()
	assert.Equal(t, "edital.pdf", item.FileName)
	assert.Equal(t, StageUpload, item.CurrentStage)
}

func TestTableDimensionsFallback(t *testing.T) {
	table := Table{Rows: []map[string]any{{"item": "1", "descrição": "cadeira"}}}
	rows, cols := table.Dimensions()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, `[{"descrição":"cadeira","item":"1"}]`, table.Text())
}

func TestAnalysisTextPrefersMarkdown(t *testing.T) {
	assert.Equal(t, "# md", Extraction{Markdown: "# md", Text: "txt"}.AnalysisText())
	assert.Equal(t, "txt", Extraction{Markdown: "  ", Text: "txt"}.AnalysisText())
}
