package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mrz1836/furu/internal/statestore"
)

// TableColumn defines a column in a table.
type TableColumn struct {
	Name  string
	Width int
	Align Alignment
}

// Alignment defines text alignment in a column.
type Alignment int

// Alignment constants.
const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Table provides styled table rendering.
type Table struct {
	w       io.Writer
	styles  *TableStyles
	columns []TableColumn
}

// NewTable creates a new table with the given columns.
func NewTable(w io.Writer, columns []TableColumn) *Table {
	return &Table{
		w:       w,
		styles:  NewTableStyles(),
		columns: columns,
	}
}

// WriteHeader writes the table header row.
func (t *Table) WriteHeader() {
	header := ""
	for i, col := range t.columns {
		if i > 0 {
			header += " "
		}
		format := t.formatSpec(col)
		header += fmt.Sprintf(format, col.Name)
	}
	_, _ = fmt.Fprintln(t.w, t.styles.Header.Render(header))
}

// WriteRow writes a data row to the table.
func (t *Table) WriteRow(values ...string) {
	row := ""
	for i, col := range t.columns {
		if i > 0 {
			row += " "
		}
		format := t.formatSpec(col)
		value := ""
		if i < len(values) {
			value = values[i]
		}
		if len(value) > col.Width {
			value = value[:col.Width-1] + "…"
		}
		row += fmt.Sprintf(format, value)
	}
	_, _ = fmt.Fprintln(t.w, row)
}

// WriteStyledRow writes a data row with one styled cell.
func (t *Table) WriteStyledRow(values []string, styledIndex int, styledValue, plainValue string) {
	row := ""
	for i, col := range t.columns {
		if i > 0 {
			row += " "
		}
		format := t.formatSpec(col)

		if i == styledIndex {
			offset := len(styledValue) - len(plainValue)
			adjustedFormat := t.formatSpecWithOffset(col, offset)
			row += fmt.Sprintf(adjustedFormat, styledValue)
		} else {
			value := ""
			if i < len(values) {
				value = values[i]
			}
			if len(value) > col.Width {
				value = value[:col.Width-1] + "…"
			}
			row += fmt.Sprintf(format, value)
		}
	}
	_, _ = fmt.Fprintln(t.w, row)
}

// formatSpec returns the format specifier for a column.
func (t *Table) formatSpec(col TableColumn) string {
	switch col.Align {
	case AlignRight:
		return fmt.Sprintf("%%%ds", col.Width)
	case AlignLeft, AlignCenter:
		return fmt.Sprintf("%%-%ds", col.Width)
	default:
		return fmt.Sprintf("%%-%ds", col.Width)
	}
}

// formatSpecWithOffset returns the format specifier with width adjusted for ANSI codes.
func (t *Table) formatSpecWithOffset(col TableColumn, offset int) string {
	width := col.Width + offset
	switch col.Align {
	case AlignRight:
		return fmt.Sprintf("%%%ds", width)
	case AlignLeft, AlignCenter:
		return fmt.Sprintf("%%-%ds", width)
	default:
		return fmt.Sprintf("%%-%ds", width)
	}
}

// ColorOffset calculates the difference in visible vs actual length due to ANSI codes.
func ColorOffset(rendered, plain string) int {
	return len(rendered) - len(plain)
}

// ========================================
// StatusTable - step/attempt status display
// ========================================

// MinColumnWidths defines the minimum width for each status table column.
// Used to ensure readability even with short content.
//
//nolint:gochecknoglobals // Intentional package-level constant for status table minimum widths
var MinColumnWidths = StatusColumnWidths{
	Namespace: 24,
	Hash:      12,
	Status:    18,
	Attempt:   6,
	Action:    10,
}

// StatusColumnWidths holds the widths for each status table column.
type StatusColumnWidths struct {
	Namespace int
	Hash      int
	Status    int
	Attempt   int
	Action    int
}

// StatusRow represents one row in the status table: a single step
// directory's result and current (or most recent) attempt.
type StatusRow struct {
	Namespace string
	Hash      string
	Result    statestore.ResultStatus
	Attempt   statestore.AttemptStatus
	// Action is the suggested action, if any. If empty, uses SuggestedAction().
	Action string
}

// StatusTableConfig holds configuration for the status table.
type StatusTableConfig struct {
	// TerminalWidth is the detected terminal width (or forced width for testing).
	TerminalWidth int
	// Narrow indicates whether to use abbreviated headers (< 80 cols).
	Narrow bool
}

// StatusTableOption is a functional option for StatusTable configuration.
type StatusTableOption func(*StatusTable)

// WithTerminalWidth sets a specific terminal width (useful for testing).
func WithTerminalWidth(width int) StatusTableOption {
	return func(t *StatusTable) {
		t.config.TerminalWidth = width
		t.config.Narrow = width > 0 && width < 80
	}
}

// StatusTable renders step status in a formatted table.
// Supports both TTY and JSON output via the ToTableData method.
type StatusTable struct {
	rows   []StatusRow
	styles *TableStyles
	config StatusTableConfig
}

// NewStatusTable creates a new status table with the given rows.
// Automatically detects terminal width and narrow mode.
func NewStatusTable(rows []StatusRow, opts ...StatusTableOption) *StatusTable {
	t := &StatusTable{
		rows:   rows,
		styles: NewTableStyles(),
		config: StatusTableConfig{
			TerminalWidth: TerminalWidth(),
		},
	}

	t.config.Narrow = t.config.TerminalWidth > 0 && t.config.TerminalWidth < 80

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// IsNarrow returns true if the terminal is in narrow mode (< 80 cols).
func (t *StatusTable) IsNarrow() bool {
	return t.config.Narrow
}

// Headers returns the column headers, abbreviated if in narrow mode.
func (t *StatusTable) Headers() []string {
	if t.config.Narrow {
		return []string{"NS", "HASH", "RESULT", "ATMPT", "ACT"}
	}
	return []string{"NAMESPACE", "HASH", "RESULT", "ATTEMPT", "ACTION"}
}

// FullHeaders returns the full (non-abbreviated) column headers.
// Used for JSON output which should always use full names.
func (t *StatusTable) FullHeaders() []string {
	return []string{"NAMESPACE", "HASH", "RESULT", "ATTEMPT", "ACTION"}
}

// Render writes the formatted table to the writer.
// Uses bold header styling and proper column alignment.
func (t *StatusTable) Render(w io.Writer) error {
	headers := t.Headers()
	widths := t.calculateColumnWidths()
	widthsSlice := []int{widths.Namespace, widths.Hash, widths.Status, widths.Attempt, widths.Action}

	headerParts := make([]string, len(headers))
	for i, h := range headers {
		headerParts[i] = t.styles.Header.Render(padRight(h, widthsSlice[i]))
	}
	_, err := fmt.Fprintln(w, strings.Join(headerParts, "  "))
	if err != nil {
		return err
	}

	for _, row := range t.rows {
		rowCells := []string{
			padRight(row.Namespace, widths.Namespace),
			padRight(row.Hash, widths.Hash),
			padRight(string(row.Result), widths.Status),
			t.renderAttemptCellPadded(row.Attempt, widths.Attempt),
			padRight(t.renderActionCell(row.Attempt, row.Action), widths.Action),
		}
		_, err = fmt.Fprintln(w, strings.Join(rowCells, "  "))
		if err != nil {
			return err
		}
	}

	return nil
}

// ToTableData converts the table to a headers/rows pair suitable for
// non-TTY tabular rendering. Uses abbreviated headers in narrow mode.
func (t *StatusTable) ToTableData() ([]string, [][]string) {
	headers := t.Headers()

	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rows[i] = []string{
			row.Namespace,
			row.Hash,
			string(row.Result),
			t.renderAttemptCellPlain(row.Attempt),
			t.renderActionCell(row.Attempt, row.Action),
		}
	}
	return headers, rows
}

// ToJSONData converts the table to JSON-compatible format.
// Returns headers and rows with full (non-abbreviated) header names.
func (t *StatusTable) ToJSONData() ([]string, [][]string) {
	headers := t.FullHeaders()

	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rows[i] = []string{
			row.Namespace,
			row.Hash,
			string(row.Result),
			t.renderAttemptCellPlain(row.Attempt),
			t.renderActionCell(row.Attempt, row.Action),
		}
	}
	return headers, rows
}

// Rows returns a copy of the status rows (useful for iteration).
// Returns a copy to prevent external mutation of internal state.
func (t *StatusTable) Rows() []StatusRow {
	if t.rows == nil {
		return nil
	}
	result := make([]StatusRow, len(t.rows))
	copy(result, t.rows)
	return result
}

// WideTerminalThreshold is the minimum terminal width for proportional column expansion.
const WideTerminalThreshold = 120

// calculateColumnWidths calculates widths for each column based on content.
// Uses runewidth.StringWidth for proper Unicode handling.
// For wide terminals (120+ cols), applies proportional width expansion.
func (t *StatusTable) calculateColumnWidths() StatusColumnWidths {
	widths := StatusColumnWidths{
		Namespace: MinColumnWidths.Namespace,
		Hash:      MinColumnWidths.Hash,
		Status:    MinColumnWidths.Status,
		Attempt:   MinColumnWidths.Attempt,
		Action:    MinColumnWidths.Action,
	}

	headers := t.Headers()
	widthsSlice := []int{
		max(widths.Namespace, runewidth.StringWidth(headers[0])),
		max(widths.Hash, runewidth.StringWidth(headers[1])),
		max(widths.Status, runewidth.StringWidth(headers[2])),
		max(widths.Attempt, runewidth.StringWidth(headers[3])),
		max(widths.Action, runewidth.StringWidth(headers[4])),
	}

	for _, row := range t.rows {
		if w := runewidth.StringWidth(row.Namespace); w > widthsSlice[0] {
			widthsSlice[0] = w
		}
		if w := runewidth.StringWidth(row.Hash); w > widthsSlice[1] {
			widthsSlice[1] = w
		}
		if w := runewidth.StringWidth(string(row.Result)); w > widthsSlice[2] {
			widthsSlice[2] = w
		}
		attemptCell := t.renderAttemptCellPlain(row.Attempt)
		if w := runewidth.StringWidth(attemptCell); w > widthsSlice[3] {
			widthsSlice[3] = w
		}
		actionCell := t.renderActionCell(row.Attempt, row.Action)
		if w := runewidth.StringWidth(actionCell); w > widthsSlice[4] {
			widthsSlice[4] = w
		}
	}

	if t.config.TerminalWidth >= WideTerminalThreshold {
		widthsSlice = t.applyProportionalExpansion(widthsSlice)
	}

	return StatusColumnWidths{
		Namespace: widthsSlice[0],
		Hash:      widthsSlice[1],
		Status:    widthsSlice[2],
		Attempt:   widthsSlice[3],
		Action:    widthsSlice[4],
	}
}

// applyProportionalExpansion distributes extra terminal width among columns.
// Only expands variable-width columns (Namespace, Hash, Action).
// Fixed-width columns (Status, Attempt) remain unchanged for consistency.
func (t *StatusTable) applyProportionalExpansion(widths []int) []int {
	const separatorWidth = 8
	totalContentWidth := 0
	for _, w := range widths {
		totalContentWidth += w
	}
	totalWidth := totalContentWidth + separatorWidth

	extraSpace := t.config.TerminalWidth - totalWidth
	if extraSpace <= 0 {
		return widths
	}

	expandableIndices := []int{0, 1, 4}
	expandableTotal := widths[0] + widths[1] + widths[4]

	if expandableTotal == 0 {
		return widths
	}

	result := make([]int, len(widths))
	copy(result, widths)

	for _, idx := range expandableIndices {
		proportion := float64(widths[idx]) / float64(expandableTotal)
		expansion := int(float64(extraSpace) * proportion)

		maxExpansion := widths[idx] / 2
		if expansion > maxExpansion {
			expansion = maxExpansion
		}

		result[idx] = widths[idx] + expansion
	}

	return result
}

// renderAttemptCell creates the attempt cell content with icon and colored text.
// Uses triple redundancy: icon + color + text.
func (t *StatusTable) renderAttemptCell(status statestore.AttemptStatus) string {
	icon := AttemptStatusIcon(status)
	color := AttemptStatusColors()[status]
	style := lipgloss.NewStyle().Foreground(color)
	return icon + " " + style.Render(string(status))
}

// renderAttemptCellPlain creates the attempt cell content without ANSI color codes.
// Used for JSON output and width calculations.
func (t *StatusTable) renderAttemptCellPlain(status statestore.AttemptStatus) string {
	if status == "" {
		return "—"
	}
	icon := AttemptStatusIcon(status)
	return icon + " " + string(status)
}

// renderActionCell creates the action cell content.
// Returns the suggested action or em-dash if no action is needed.
func (t *StatusTable) renderActionCell(status statestore.AttemptStatus, customAction string) string {
	if customAction != "" {
		return customAction
	}

	action := SuggestedAction(status)
	if action == "" {
		return "—"
	}
	return action
}

// renderAttemptCellPadded renders the attempt cell with proper padding.
// Padding is calculated based on visible character width (excluding ANSI codes).
func (t *StatusTable) renderAttemptCellPadded(status statestore.AttemptStatus, width int) string {
	plainText := t.renderAttemptCellPlain(status)
	plainWidth := runewidth.StringWidth(plainText)

	if status == "" {
		return padRight(plainText, width)
	}

	styledText := t.renderAttemptCell(status)
	if plainWidth >= width {
		return styledText
	}
	return styledText + strings.Repeat(" ", width-plainWidth)
}
