package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Output format constants.
const (
	// FormatAuto auto-detects the output format based on TTY status.
	FormatAuto = ""
	// FormatText forces human-readable styled output.
	FormatText = "text"
	// FormatJSON forces machine-readable JSON output.
	FormatJSON = "json"
)

// Output is the interface commands use for human-friendly or
// machine-readable output, selected once at startup by NewOutput.
type Output interface {
	// Success outputs a success message with green styling (TTY) or structured JSON.
	Success(msg string)
	// Error outputs an error with red styling (TTY) or structured JSON.
	Error(err error)
	// Warning outputs a warning message with yellow styling (TTY) or structured JSON.
	Warning(msg string)
	// Info outputs an informational message with blue styling (TTY) or structured JSON.
	Info(msg string)
	// Table outputs tabular data with aligned columns (TTY) or an array of objects (JSON).
	Table(headers []string, rows [][]string)
	// JSON outputs an arbitrary value as JSON. Returns an error if encoding fails.
	JSON(v any) error
}

// NewOutput creates the appropriate Output implementation based on format.
// FormatAuto detects based on whether w is a terminal.
func NewOutput(w io.Writer, format string) Output {
	switch format {
	case FormatJSON:
		return NewJSONOutput(w)
	case FormatText:
		return NewTTYOutput(w)
	default:
		if isTTY(w) {
			return NewTTYOutput(w)
		}
		return NewJSONOutput(w)
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// TTYOutput provides styled terminal output using lipgloss.
type TTYOutput struct {
	w      io.Writer
	styles *OutputStyles
	table  *TableStyles
}

// NewTTYOutput creates a TTYOutput, respecting NO_COLOR via CheckNoColor.
func NewTTYOutput(w io.Writer) *TTYOutput {
	CheckNoColor()
	return &TTYOutput{
		w:      w,
		styles: NewOutputStyles(),
		table:  NewTableStyles(),
	}
}

func (o *TTYOutput) Success(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Success.Render("✓ "+msg))
}

func (o *TTYOutput) Error(err error) {
	_, _ = fmt.Fprintln(o.w, o.styles.Error.Render("✗ "+err.Error()))
}

func (o *TTYOutput) Warning(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Warning.Render("⚠ "+msg))
}

func (o *TTYOutput) Info(msg string) {
	_, _ = fmt.Fprintln(o.w, o.styles.Info.Render("ℹ "+msg))
}

// Table renders headers/rows with content-based column widths.
func (o *TTYOutput) Table(headers []string, rows [][]string) {
	if len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := runewidth.StringWidth(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	headerParts := make([]string, 0, len(headers))
	for i, h := range headers {
		headerParts = append(headerParts, o.table.Header.Render(padRight(h, widths[i])))
	}
	_, _ = fmt.Fprintln(o.w, strings.Join(headerParts, "  "))

	for _, row := range rows {
		rowParts := make([]string, 0, len(headers))
		for i := 0; i < len(headers); i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			rowParts = append(rowParts, o.table.Cell.Render(padRight(cell, widths[i])))
		}
		_, _ = fmt.Fprintln(o.w, strings.Join(rowParts, "  "))
	}
}

func (o *TTYOutput) JSON(v any) error {
	encoder := json.NewEncoder(o.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// JSONOutput provides structured JSON output for non-TTY environments.
type JSONOutput struct {
	encoder *json.Encoder
}

// NewJSONOutput creates a JSONOutput writing to w.
func NewJSONOutput(w io.Writer) *JSONOutput {
	return &JSONOutput{encoder: json.NewEncoder(w)}
}

type jsonMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (o *JSONOutput) Success(msg string) {
	//nolint:errchkjson // Output has no error return per interface contract
	_ = o.encoder.Encode(jsonMessage{Type: "success", Message: msg})
}

type jsonError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (o *JSONOutput) Error(err error) {
	//nolint:errchkjson // Output has no error return per interface contract
	_ = o.encoder.Encode(jsonError{Type: "error", Message: err.Error()})
}

func (o *JSONOutput) Warning(msg string) {
	//nolint:errchkjson // Output has no error return per interface contract
	_ = o.encoder.Encode(jsonMessage{Type: "warning", Message: msg})
}

func (o *JSONOutput) Info(msg string) {
	//nolint:errchkjson // Output has no error return per interface contract
	_ = o.encoder.Encode(jsonMessage{Type: "info", Message: msg})
}

// Table outputs rows as an array of header-keyed objects.
func (o *JSONOutput) Table(headers []string, rows [][]string) {
	if len(headers) == 0 {
		//nolint:errchkjson // Output has no error return per interface contract
		_ = o.encoder.Encode([]map[string]string{})
		return
	}

	result := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				obj[h] = row[i]
			} else {
				obj[h] = ""
			}
		}
		result = append(result, obj)
	}
	//nolint:errchkjson // Output has no error return per interface contract
	_ = o.encoder.Encode(result)
}

func (o *JSONOutput) JSON(v any) error {
	return o.encoder.Encode(v)
}
