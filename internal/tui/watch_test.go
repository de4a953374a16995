package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/statestore"
)

// mockExperimentLister implements ExperimentLister for testing.
type mockExperimentLister struct {
	experiments []dashboard.ExperimentSummary
	listErr     error
}

func (m *mockExperimentLister) List(_ context.Context) ([]dashboard.ExperimentSummary, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.experiments, nil
}

func attemptStatusPtr(s statestore.AttemptStatus) *statestore.AttemptStatus {
	return &s
}

func TestNewWatchModel(t *testing.T) {
	t.Parallel()

	mockLister := &mockExperimentLister{}
	cfg := WatchConfig{
		Interval:    2 * time.Second,
		BellEnabled: true,
		Quiet:       false,
	}

	model := NewWatchModel(context.Background(), mockLister, cfg)

	assert.NotNil(t, model)
	assert.NotNil(t, model.previousAttempt)
	assert.Equal(t, 2*time.Second, model.config.Interval)
	assert.True(t, model.config.BellEnabled)
	assert.False(t, model.config.Quiet)
	assert.False(t, model.quitting)
	assert.Equal(t, 80, model.width)
	assert.Equal(t, 24, model.height)
}

func TestDefaultWatchConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultWatchConfig()

	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.True(t, cfg.BellEnabled)
	assert.False(t, cfg.Quiet)
}

func TestWatchModel_Init(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	cmd := model.Init()
	assert.NotNil(t, cmd)
}

func TestWatchModel_Update_KeyQuit(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updatedModel, cmd := model.Update(msg)

	watchModel, ok := updatedModel.(*WatchModel)
	require.True(t, ok)
	assert.True(t, watchModel.quitting)
	assert.NotNil(t, cmd)
}

func TestWatchModel_Update_KeyCtrlC(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	msg := tea.KeyMsg{Type: tea.KeyCtrlC}
	updatedModel, cmd := model.Update(msg)

	watchModel, ok := updatedModel.(*WatchModel)
	require.True(t, ok)
	assert.True(t, watchModel.quitting)
	assert.NotNil(t, cmd)
}

func TestWatchModel_Update_WindowResize(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	msg := tea.WindowSizeMsg{Width: 120, Height: 40}
	updatedModel, cmd := model.Update(msg)

	watchModel, ok := updatedModel.(*WatchModel)
	require.True(t, ok)
	assert.Equal(t, 120, watchModel.width)
	assert.Equal(t, 40, watchModel.height)
	assert.Nil(t, cmd)
}

func TestWatchModel_Update_TickMsg(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	msg := TickMsg(time.Now())
	_, cmd := model.Update(msg)

	assert.NotNil(t, cmd)
}

func TestWatchModel_Update_RefreshMsg(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	testRows := []StatusRow{
		{Namespace: "pipelines.TrainModel", Hash: "abc123", Result: statestore.ResultIncomplete, Attempt: statestore.AttemptRunning},
	}

	msg := RefreshMsg{Rows: testRows, Err: nil}
	updatedModel, cmd := model.Update(msg)

	watchModel, ok := updatedModel.(*WatchModel)
	require.True(t, ok)
	assert.Len(t, watchModel.rows, 1)
	assert.Equal(t, "pipelines.TrainModel", watchModel.rows[0].Namespace)
	assert.False(t, watchModel.lastUpdate.IsZero())
	assert.NotNil(t, cmd)
}

func TestWatchModel_Update_RefreshMsgError(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	msg := RefreshMsg{Rows: nil, Err: assert.AnError}
	updatedModel, cmd := model.Update(msg)

	watchModel, ok := updatedModel.(*WatchModel)
	require.True(t, ok)
	require.Error(t, watchModel.err)
	assert.NotNil(t, cmd)
}

func TestWatchModel_View_Empty(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	view := model.View()

	assert.Contains(t, view, "furu watch")
	assert.Contains(t, view, "No cached steps found")
	assert.Contains(t, view, "Press 'q' to quit")
}

func TestWatchModel_View_Quitting(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
	model.quitting = true

	view := model.View()

	assert.Empty(t, view)
}

func TestWatchModel_View_WithData(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
	model.rows = []StatusRow{
		{Namespace: "pipelines.TrainModel", Hash: "hash1", Result: statestore.ResultIncomplete, Attempt: statestore.AttemptRunning},
		{Namespace: "pipelines.EvalModel", Hash: "hash2", Result: statestore.ResultFailed, Attempt: statestore.AttemptFailed},
	}
	model.lastUpdate = time.Now()

	view := model.View()

	assert.Contains(t, view, "furu watch")
	assert.Contains(t, view, "pipelines.TrainModel")
	assert.Contains(t, view, "pipelines.EvalModel")
	assert.Contains(t, view, "Last updated:")
	assert.Contains(t, view, "Press 'q' to quit")
	assert.Contains(t, view, "2 steps")
}

func TestWatchModel_View_Quiet(t *testing.T) {
	t.Parallel()

	cfg := WatchConfig{
		Interval:    2 * time.Second,
		BellEnabled: false,
		Quiet:       true,
	}
	model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)
	model.rows = []StatusRow{
		{Namespace: "pipelines.TrainModel", Hash: "hash1", Result: statestore.ResultIncomplete, Attempt: statestore.AttemptRunning},
	}
	model.lastUpdate = time.Now()

	view := model.View()

	assert.NotContains(t, view, "furu watch")
	assert.NotContains(t, view, "steps")
	assert.Contains(t, view, "Press 'q' to quit")
	assert.Contains(t, view, "Last updated:")
}

func TestWatchModel_View_WithError(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
	model.err = assert.AnError

	view := model.View()

	assert.Contains(t, view, "Error:")
}

func TestWatchModel_BellNotification_OnNewAttention(t *testing.T) {
	t.Parallel()

	cfg := WatchConfig{Interval: 2 * time.Second, BellEnabled: true, Quiet: false}
	model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)

	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Hash: "h1", Attempt: statestore.AttemptRunning},
	}
	cmd := model.checkForBell()
	assert.Nil(t, cmd, "should not bell for non-attention status")

	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Hash: "h1", Attempt: statestore.AttemptFailed},
	}
	cmd = model.checkForBell()
	assert.NotNil(t, cmd, "should bell on transition to attention status")
}

func TestWatchModel_BellNotification_NoRepeatBell(t *testing.T) {
	t.Parallel()

	cfg := WatchConfig{Interval: 2 * time.Second, BellEnabled: true, Quiet: false}
	model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)

	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Hash: "h1", Attempt: statestore.AttemptFailed},
	}
	cmd := model.checkForBell()
	assert.NotNil(t, cmd, "first transition should bell")

	cmd = model.checkForBell()
	assert.Nil(t, cmd, "repeat attention status should not bell again")
}

func TestWatchModel_BellNotification_Disabled(t *testing.T) {
	t.Parallel()

	cfg := WatchConfig{Interval: 2 * time.Second, BellEnabled: false, Quiet: false}
	model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)

	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Hash: "h1", Attempt: statestore.AttemptFailed},
	}
	cmd := model.checkForBell()

	assert.Nil(t, cmd, "bell disabled should not emit")
}

func TestWatchModel_BellNotification_QuietModeSuppresses(t *testing.T) {
	t.Parallel()

	cfg := WatchConfig{Interval: 2 * time.Second, BellEnabled: true, Quiet: true}
	model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)

	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Hash: "h1", Attempt: statestore.AttemptFailed},
	}
	cmd := model.checkForBell()

	assert.Nil(t, cmd, "quiet mode should suppress bell even when bell is enabled")
}

func TestWatchModel_BellNotification_AllAttentionStatuses(t *testing.T) {
	t.Parallel()

	attentionStatuses := []statestore.AttemptStatus{
		statestore.AttemptFailed,
		statestore.AttemptCrashed,
	}

	for _, status := range attentionStatuses {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			cfg := WatchConfig{Interval: 2 * time.Second, BellEnabled: true, Quiet: false}
			model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)

			model.rows = []StatusRow{
				{Namespace: "pipelines.Test", Hash: "h1", Attempt: status},
			}
			cmd := model.checkForBell()

			assert.NotNil(t, cmd, "attention status %s should trigger bell", status)
		})
	}
}

func TestWatchModel_ExperimentsToRows(t *testing.T) {
	t.Parallel()

	experiments := []dashboard.ExperimentSummary{
		{
			Namespace:     "pipelines.TrainModel",
			Hash:          "hash1",
			ResultStatus:  statestore.ResultIncomplete,
			AttemptStatus: attemptStatusPtr(statestore.AttemptRunning),
		},
		{
			Namespace:    "pipelines.PrepareDataset",
			Hash:         "hash2",
			ResultStatus: statestore.ResultSuccess,
		},
	}

	rows := ExperimentsToRows(experiments)
	require.Len(t, rows, 2)

	assert.Equal(t, "pipelines.TrainModel", rows[0].Namespace)
	assert.Equal(t, statestore.AttemptRunning, rows[0].Attempt)
	assert.Equal(t, "pipelines.PrepareDataset", rows[1].Namespace)
	assert.Empty(t, rows[1].Attempt)
}

func TestWatchModel_AttemptPrioritySorting(t *testing.T) {
	t.Parallel()

	rows := []StatusRow{
		{Namespace: "completed", Attempt: statestore.AttemptSuccess},
		{Namespace: "attention", Attempt: statestore.AttemptFailed},
		{Namespace: "running", Attempt: statestore.AttemptRunning},
		{Namespace: "queued", Attempt: statestore.AttemptQueued},
	}

	SortByAttemptPriority(rows)

	assert.Equal(t, "attention", rows[0].Namespace, "attention should be first")
	assert.Equal(t, "running", rows[1].Namespace, "running should be second")
}

func TestWatchModel_Accessors(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Attempt: statestore.AttemptRunning},
	}
	model.lastUpdate = time.Now()
	model.err = assert.AnError

	assert.Len(t, model.Rows(), 1)
	assert.False(t, model.LastUpdate().IsZero())
	assert.False(t, model.IsQuitting())
	assert.Error(t, model.Error())
}

func TestWatchModel_Footer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rows     []StatusRow
		wantSubs []string
	}{
		{
			name:     "empty rows",
			rows:     []StatusRow{},
			wantSubs: []string{"0 steps"},
		},
		{
			name: "single step no attention",
			rows: []StatusRow{
				{Namespace: "pipelines.A", Attempt: statestore.AttemptRunning},
			},
			wantSubs: []string{"1 step"},
		},
		{
			name: "multiple steps no attention",
			rows: []StatusRow{
				{Namespace: "pipelines.A", Attempt: statestore.AttemptRunning},
				{Namespace: "pipelines.B", Attempt: statestore.AttemptSuccess},
			},
			wantSubs: []string{"2 steps"},
		},
		{
			name: "with attention needed singular",
			rows: []StatusRow{
				{Namespace: "pipelines.A", Hash: "h1", Attempt: statestore.AttemptFailed},
			},
			wantSubs: []string{"1 step", "1 needs attention", "furu show", "pipelines.A"},
		},
		{
			name: "with attention needed plural",
			rows: []StatusRow{
				{Namespace: "pipelines.A", Attempt: statestore.AttemptFailed},
				{Namespace: "pipelines.B", Attempt: statestore.AttemptCrashed},
			},
			wantSubs: []string{"2 steps", "2 need attention"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
			model.rows = tt.rows

			footer := model.buildFooter()
			for _, want := range tt.wantSubs {
				assert.Contains(t, footer, want)
			}
		})
	}
}

func TestWatchModel_CleanupRemovedSteps(t *testing.T) {
	t.Parallel()

	cfg := WatchConfig{Interval: 2 * time.Second, BellEnabled: true, Quiet: false}
	model := NewWatchModel(context.Background(), &mockExperimentLister{}, cfg)

	model.rows = []StatusRow{
		{Namespace: "old", Hash: "h1", Attempt: statestore.AttemptRunning},
		{Namespace: "keep", Hash: "h2", Attempt: statestore.AttemptRunning},
	}
	model.checkForBell()

	_, oldExists := model.previousAttempt["old/h1"]
	_, keepExists := model.previousAttempt["keep/h2"]
	assert.True(t, oldExists)
	assert.True(t, keepExists)

	model.rows = []StatusRow{
		{Namespace: "keep", Hash: "h2", Attempt: statestore.AttemptRunning},
	}
	model.checkForBell()

	_, oldExists = model.previousAttempt["old/h1"]
	_, keepExists = model.previousAttempt["keep/h2"]
	assert.False(t, oldExists, "removed step should be cleaned from tracking")
	assert.True(t, keepExists, "remaining step should still be tracked")
}

func TestWatchModel_RefreshData(t *testing.T) {
	t.Parallel()

	lister := &mockExperimentLister{
		experiments: []dashboard.ExperimentSummary{
			{Namespace: "pipelines.TrainModel", Hash: "hash1", ResultStatus: statestore.ResultIncomplete, AttemptStatus: attemptStatusPtr(statestore.AttemptRunning)},
		},
	}

	model := NewWatchModel(context.Background(), lister, DefaultWatchConfig())

	cmd := model.refreshData()
	require.NotNil(t, cmd)

	msg := cmd()
	require.NotNil(t, msg)

	refreshMsg, ok := msg.(RefreshMsg)
	require.True(t, ok, "should return RefreshMsg")
	require.NoError(t, refreshMsg.Err)
	require.Len(t, refreshMsg.Rows, 1)
	assert.Equal(t, "pipelines.TrainModel", refreshMsg.Rows[0].Namespace)
}

func TestWatchModel_RefreshDataError(t *testing.T) {
	t.Parallel()

	lister := &mockExperimentLister{listErr: assert.AnError}
	model := NewWatchModel(context.Background(), lister, DefaultWatchConfig())

	cmd := model.refreshData()
	require.NotNil(t, cmd)

	msg := cmd()
	require.NotNil(t, msg)

	refreshMsg, ok := msg.(RefreshMsg)
	require.True(t, ok, "should return RefreshMsg")
	require.Error(t, refreshMsg.Err)
	assert.Contains(t, refreshMsg.Err.Error(), "failed to list experiments")
}

func TestEmitBell(t *testing.T) {
	t.Parallel()

	cmd := emitBell()
	require.NotNil(t, cmd)

	msg := cmd()
	_, ok := msg.(BellMsg)
	assert.True(t, ok, "emitBell should return BellMsg")
}

func TestWatchModel_ViewContainsTimestamp(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
	model.rows = []StatusRow{
		{Namespace: "pipelines.A", Attempt: statestore.AttemptRunning},
	}

	testTime := time.Date(2025, 12, 31, 14, 30, 45, 0, time.UTC)
	model.lastUpdate = testTime

	view := model.View()

	assert.Contains(t, view, "Last updated: 14:30:45")
}

func TestWatchModel_NoTimestampBeforeFirstRefresh(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	view := model.View()

	assert.NotContains(t, view, "Last updated:")
}

func TestWatchModel_ActionableSuggestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    statestore.AttemptStatus
		wantCmd   string
		wantInCmd bool
	}{
		{
			name:      "failed suggests show",
			status:    statestore.AttemptFailed,
			wantCmd:   "furu show",
			wantInCmd: true,
		},
		{
			name:      "crashed suggests show",
			status:    statestore.AttemptCrashed,
			wantCmd:   "furu show",
			wantInCmd: true,
		},
		{
			name:      "running has no suggestion",
			status:    statestore.AttemptRunning,
			wantCmd:   "Run:",
			wantInCmd: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
			model.rows = []StatusRow{
				{Namespace: "pipelines.Test", Hash: "h1", Attempt: tt.status},
			}

			footer := model.buildFooter()
			if tt.wantInCmd {
				assert.Contains(t, footer, tt.wantCmd)
				assert.Contains(t, footer, "pipelines.Test")
			} else {
				assert.NotContains(t, footer, tt.wantCmd)
			}
		})
	}
}

func TestWatchModel_MultipleRefreshes(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())

	msg1 := RefreshMsg{Rows: []StatusRow{{Namespace: "pipelines.A", Attempt: statestore.AttemptRunning}}}
	updatedModel1, _ := model.Update(msg1)
	watchModel1, ok := updatedModel1.(*WatchModel)
	require.True(t, ok)

	firstUpdate := watchModel1.lastUpdate

	time.Sleep(10 * time.Millisecond)
	msg2 := RefreshMsg{Rows: []StatusRow{{Namespace: "pipelines.A", Attempt: statestore.AttemptSuccess}}}
	updatedModel2, _ := watchModel1.Update(msg2)
	watchModel2, ok := updatedModel2.(*WatchModel)
	require.True(t, ok)

	secondUpdate := watchModel2.lastUpdate

	assert.True(t, secondUpdate.After(firstUpdate), "second refresh should have later timestamp")
	assert.Equal(t, statestore.AttemptSuccess, watchModel2.rows[0].Attempt)
}

func TestWatchModel_AttemptPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   statestore.AttemptStatus
		expected int
	}{
		{statestore.AttemptFailed, 2},
		{statestore.AttemptCrashed, 2},
		{statestore.AttemptRunning, 1},
		{statestore.AttemptQueued, 0},
		{statestore.AttemptSuccess, 0},
		{statestore.AttemptCancelled, 0},
		{statestore.AttemptPreempted, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, AttemptPriority(tt.status))
		})
	}
}

func TestWatchModel_TableRendering(t *testing.T) {
	t.Parallel()

	model := NewWatchModel(context.Background(), &mockExperimentLister{}, DefaultWatchConfig())
	model.rows = []StatusRow{
		{Namespace: "pipelines.TrainModel", Hash: "hash1", Result: statestore.ResultIncomplete, Attempt: statestore.AttemptRunning},
	}
	model.lastUpdate = time.Now()
	model.width = 120

	view := model.View()

	assert.True(t, strings.Contains(view, "pipelines.TrainModel") && strings.Contains(view, "hash1"),
		"view should contain namespace and hash")
	assert.Contains(t, view, "running")
}
