package tui

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mrz1836/furu/internal/dashboard"
	"github.com/mrz1836/furu/internal/statestore"
)

// WatchConfig holds configuration for the watch mode.
type WatchConfig struct {
	// Interval is the refresh interval for watch mode.
	Interval time.Duration
	// BellEnabled controls whether terminal bell notifications are enabled.
	BellEnabled bool
	// Quiet suppresses header and footer output.
	Quiet bool
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Interval:    2 * time.Second,
		BellEnabled: true,
		Quiet:       false,
	}
}

// ExperimentLister lists the current set of step attempts to watch.
type ExperimentLister interface {
	List(ctx context.Context) ([]dashboard.ExperimentSummary, error)
}

// WatchModel is the Bubble Tea model for `furu watch`.
// It implements the tea.Model interface (Init, Update, View).
type WatchModel struct {
	rows []StatusRow
	// previousAttempt tracks the last-seen attempt status per namespace/hash,
	// used to detect new transitions into an attention state.
	previousAttempt map[string]statestore.AttemptStatus
	lastUpdate      time.Time
	config          WatchConfig
	width, height   int
	quitting        bool
	err             error
	lister          ExperimentLister
	// baseCtx is stored for use in async Bubble Tea commands. Storing
	// context in structs is generally discouraged, but Bubble Tea's async
	// command model requires it for proper context propagation.
	baseCtx context.Context //nolint:containedctx // required for Bubble Tea async commands
}

// TickMsg signals time for a refresh.
type TickMsg time.Time

// RefreshMsg carries new data from a refresh operation.
type RefreshMsg struct {
	Rows []StatusRow
	Err  error
}

// BellMsg signals that a bell should be emitted.
type BellMsg struct{}

// NewWatchModel creates a new WatchModel with the given dependencies.
// If ctx is nil, context.Background() is used as a fallback.
//
//nolint:contextcheck // fallback to Background is intentional for nil-safety
func NewWatchModel(ctx context.Context, lister ExperimentLister, cfg WatchConfig) *WatchModel {
	if ctx == nil {
		ctx = context.Background()
	}
	return &WatchModel{
		previousAttempt: make(map[string]statestore.AttemptStatus),
		config:          cfg,
		width:           DefaultTerminalWidth,
		height:          24,
		lister:          lister,
		baseCtx:         ctx,
	}
}

// Init returns the initial command to run when the program starts.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(
		m.refreshData(),
		m.tick(),
	)
}

// Update handles messages and returns the updated model and any commands.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m, m.refreshData()

	case RefreshMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, m.tick()
		}
		m.rows = msg.Rows
		m.lastUpdate = time.Now()
		m.err = nil

		bellCmd := m.checkForBell()
		return m, tea.Batch(m.tick(), bellCmd)

	case BellMsg:
		return m, nil
	}

	return m, nil
}

// View renders the current state to a string.
func (m *WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	if !m.config.Quiet {
		b.WriteString(RenderStyledHeader("◆", "furu watch", ColorPrimary))
		b.WriteString("\n")
	}

	if m.err != nil {
		fmt.Fprintf(&b, "Error: %v\n", m.err)
	}

	if len(m.rows) == 0 {
		b.WriteString("No cached steps found.\n")
	} else {
		table := NewStatusTable(m.rows, WithTerminalWidth(m.width))
		_ = table.Render(&b)
	}

	if !m.config.Quiet {
		b.WriteString("\n")
		b.WriteString(m.buildFooter())
		b.WriteString("\n")
	}

	if !m.lastUpdate.IsZero() {
		fmt.Fprintf(&b, "\nLast updated: %s", m.lastUpdate.Format("15:04:05"))
	}
	b.WriteString("\nPress 'q' to quit")

	return b.String()
}

// Rows returns the current status rows (useful for testing).
func (m *WatchModel) Rows() []StatusRow {
	return m.rows
}

// LastUpdate returns the last update timestamp.
func (m *WatchModel) LastUpdate() time.Time {
	return m.lastUpdate
}

// IsQuitting returns true if the model is in quitting state.
func (m *WatchModel) IsQuitting() bool {
	return m.quitting
}

// Error returns the last error from a refresh operation.
func (m *WatchModel) Error() error {
	return m.err
}

// tick returns a command that sends a TickMsg after the configured interval.
func (m *WatchModel) tick() tea.Cmd {
	return tea.Tick(m.config.Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refreshData loads fresh rows from the lister.
func (m *WatchModel) refreshData() tea.Cmd {
	return func() tea.Msg {
		experiments, err := m.lister.List(m.baseCtx)
		if err != nil {
			return RefreshMsg{Err: fmt.Errorf("failed to list experiments: %w", err)}
		}

		rows := ExperimentsToRows(experiments)
		SortByAttemptPriority(rows)
		return RefreshMsg{Rows: rows}
	}
}

// ExperimentsToRows converts dashboard summaries into status rows.
func ExperimentsToRows(experiments []dashboard.ExperimentSummary) []StatusRow {
	rows := make([]StatusRow, 0, len(experiments))
	for _, e := range experiments {
		row := StatusRow{
			Namespace: e.Namespace,
			Hash:      e.Hash,
			Result:    e.ResultStatus,
		}
		if e.AttemptStatus != nil {
			row.Attempt = *e.AttemptStatus
		}
		rows = append(rows, row)
	}
	return rows
}

// SortByAttemptPriority sorts rows by attention state first, running second.
// Uses sort.SliceStable to preserve the scan's updated-at ordering within a
// priority band.
func SortByAttemptPriority(rows []StatusRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return AttemptPriority(rows[i].Attempt) > AttemptPriority(rows[j].Attempt)
	})
}

func AttemptPriority(status statestore.AttemptStatus) int {
	if IsAttentionAttemptStatus(status) {
		return 2
	}
	if status == statestore.AttemptRunning {
		return 1
	}
	return 0
}

// checkForBell checks if any row transitioned to an attention state.
// Returns a command to emit a bell if needed. Bell is suppressed if
// BellEnabled is false or Quiet mode is active.
func (m *WatchModel) checkForBell() tea.Cmd {
	if !m.config.BellEnabled || m.config.Quiet {
		return nil
	}

	for _, row := range m.rows {
		key := row.Namespace + "/" + row.Hash
		prevAttempt, exists := m.previousAttempt[key]
		currentIsAttention := IsAttentionAttemptStatus(row.Attempt)

		if currentIsAttention {
			if !exists || !IsAttentionAttemptStatus(prevAttempt) {
				m.previousAttempt[key] = row.Attempt
				return emitBell()
			}
		}
		m.previousAttempt[key] = row.Attempt
	}

	current := make(map[string]bool, len(m.rows))
	for _, row := range m.rows {
		current[row.Namespace+"/"+row.Hash] = true
	}
	for key := range m.previousAttempt {
		if !current[key] {
			delete(m.previousAttempt, key)
		}
	}

	return nil
}

// emitBell returns a command that emits a terminal bell.
func emitBell() tea.Cmd {
	return func() tea.Msg {
		_, _ = os.Stdout.WriteString("\a")
		return BellMsg{}
	}
}

// buildFooter creates the footer summary and actionable command.
func (m *WatchModel) buildFooter() string {
	attentionCount, firstAttention := m.countAttention()

	stepWord := "steps"
	if len(m.rows) == 1 {
		stepWord = "step"
	}
	summary := fmt.Sprintf("%d %s", len(m.rows), stepWord)

	if attentionCount > 0 {
		needWord := "need"
		if attentionCount == 1 {
			needWord = "needs"
		}
		summary += fmt.Sprintf(", %d %s attention", attentionCount, needWord)
	}

	if firstAttention != nil {
		summary += m.buildActionableSuggestion(firstAttention)
	}

	return summary
}

// countAttention counts rows needing attention and returns the first one.
func (m *WatchModel) countAttention() (int, *StatusRow) {
	var count int
	var first *StatusRow

	for i := range m.rows {
		if IsAttentionAttemptStatus(m.rows[i].Attempt) {
			count++
			if first == nil {
				first = &m.rows[i]
			}
		}
	}

	return count, first
}

// buildActionableSuggestion builds the "Run: ..." suggestion for a row.
func (m *WatchModel) buildActionableSuggestion(row *StatusRow) string {
	action := SuggestedAction(row.Attempt)
	if action == "" {
		return ""
	}

	return "\nRun: " + action + " " + row.Namespace + " " + row.Hash
}
