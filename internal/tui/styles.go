// Package tui provides terminal user interface components for furu's
// `watch` and `status` commands.
//
// This package provides a centralized style system using Lip Gloss for consistent
// TUI component styling. All colors use AdaptiveColor for light/dark terminal support.
//
// # Semantic Colors
//
// Five semantic colors are exported for use across TUI components:
//   - ColorPrimary (Blue): Active states, links, primary actions
//   - ColorSuccess (Green): Success states, completed items
//   - ColorWarning (Yellow): Warning states, attention required
//   - ColorError (Red): Error states, failed items
//   - ColorMuted (Gray): Dim/inactive states, secondary text
//
// # Status Icons
//
// Triple redundancy is maintained for all status displays: icon + color + text.
// See AttemptStatusIcon and ResultStatusIcon for icon mappings.
//
// # NO_COLOR Support
//
// Call CheckNoColor() at the start of commands to respect the NO_COLOR environment
// variable. Colors are also disabled when TERM=dumb.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/mrz1836/furu/internal/statestore"
)

//nolint:gochecknoglobals // Intentional package-level constants for TUI styling API
var (
	// ColorPrimary is blue, used for active states, links, and primary actions.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for success states and completed items.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for warning states and attention-required items.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for error states and failed items.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for dim/inactive states and secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// StyleBold applies bold formatting to text.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies dim/faint formatting to text.
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleUnderline applies underline formatting to text.
	StyleUnderline = lipgloss.NewStyle().Underline(true)

	// StyleReverse applies reverse video (inverted colors) formatting to text.
	StyleReverse = lipgloss.NewStyle().Reverse(true)
)

// ResultStatusColors returns the semantic color definitions for step-level
// result statuses.
func ResultStatusColors() map[statestore.ResultStatus]lipgloss.AdaptiveColor {
	return map[statestore.ResultStatus]lipgloss.AdaptiveColor{
		statestore.ResultAbsent:     ColorMuted,
		statestore.ResultIncomplete: ColorPrimary,
		statestore.ResultSuccess:    ColorSuccess,
		statestore.ResultFailed:     ColorError,
	}
}

// AttemptStatusColors returns the semantic color definitions for attempt
// lifecycle statuses.
func AttemptStatusColors() map[statestore.AttemptStatus]lipgloss.AdaptiveColor {
	return map[statestore.AttemptStatus]lipgloss.AdaptiveColor{
		statestore.AttemptQueued:    ColorMuted,
		statestore.AttemptRunning:   ColorPrimary,
		statestore.AttemptSuccess:   ColorSuccess,
		statestore.AttemptFailed:    ColorError,
		statestore.AttemptCrashed:   ColorError,
		statestore.AttemptCancelled: ColorWarning,
		statestore.AttemptPreempted: ColorWarning,
	}
}

// TableStyles holds lipgloss styles for table rendering.
type TableStyles struct {
	Header       lipgloss.Style
	Cell         lipgloss.Style
	Dim          lipgloss.Style
	StatusColors map[statestore.AttemptStatus]lipgloss.AdaptiveColor
}

// NewTableStyles creates styles for table rendering.
func NewTableStyles() *TableStyles {
	return &TableStyles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}),
		Cell: lipgloss.NewStyle(),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
		StatusColors: AttemptStatusColors(),
	}
}

// OutputStyles holds common output styles.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates common output styles using AdaptiveColor for light/dark terminal support.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Info: lipgloss.NewStyle().
			Foreground(ColorPrimary),
		Dim: lipgloss.NewStyle().
			Foreground(ColorMuted),
	}
}

// CheckNoColor respects the NO_COLOR environment variable.
// Call this at the start of commands that output styled text.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns true if the terminal supports colors.
// Returns false if NO_COLOR is set (any value including empty string) or TERM=dumb.
// This follows the NO_COLOR standard: https://no-color.org/
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// AttemptStatusIcon returns the icon/symbol for a given attempt status.
// Used for visual status indicators in status displays.
func AttemptStatusIcon(status statestore.AttemptStatus) string {
	icons := map[statestore.AttemptStatus]string{
		statestore.AttemptQueued:    "○", // Empty circle - waiting
		statestore.AttemptRunning:   "●", // Filled circle - active
		statestore.AttemptSuccess:   "✓", // Checkmark - success
		statestore.AttemptFailed:    "✗", // X mark - failed
		statestore.AttemptCrashed:   "✗", // X mark - crashed
		statestore.AttemptCancelled: "◌", // Dashed circle - cancelled
		statestore.AttemptPreempted: "◌", // Dashed circle - preempted
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// ResultStatusIcon returns the icon/symbol for a given step result status.
func ResultStatusIcon(status statestore.ResultStatus) string {
	icons := map[statestore.ResultStatus]string{
		statestore.ResultAbsent:     "○",
		statestore.ResultIncomplete: "⟳",
		statestore.ResultSuccess:    "✓",
		statestore.ResultFailed:     "✗",
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// IsAttentionAttemptStatus returns true if the attempt status requires user
// attention (a terminal outcome that did not succeed). These statuses should
// be highlighted and sorted to the top of status lists.
func IsAttentionAttemptStatus(status statestore.AttemptStatus) bool {
	switch status {
	case statestore.AttemptFailed, statestore.AttemptCrashed:
		return true
	default:
		return false
	}
}

// SuggestedAction returns the suggested CLI command for a given attempt
// status. Returns empty string if no action is needed or available.
func SuggestedAction(status statestore.AttemptStatus) string {
	switch status {
	case statestore.AttemptFailed, statestore.AttemptCrashed:
		return "furu show"
	default:
		return ""
	}
}

// ActionStyle returns a lipgloss.Style for action indicators in attention states.
// Uses ColorWarning for visibility. Supports NO_COLOR via HasColorSupport().
// For NO_COLOR mode, returns an unstyled style (plain text indicators handled by caller).
func ActionStyle() lipgloss.Style {
	if !HasColorSupport() {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(ColorWarning)
}

// DefaultBoxWidth is the default width for TUI boxes.
const DefaultBoxWidth = 100

// BoxBorder defines the characters used for box borders.
type BoxBorder struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Top         string
	Bottom      string
	Left        string
	Right       string
	MiddleLeft  string // For divider lines
	MiddleRight string
}

// DefaultBorder is the default border style with square corners.
//
//nolint:gochecknoglobals // Intentional package-level constant for TUI border styling
var DefaultBorder = BoxBorder{
	TopLeft:     "┌",
	TopRight:    "┐",
	BottomLeft:  "└",
	BottomRight: "┘",
	Top:         "─",
	Bottom:      "─",
	Left:        "│",
	Right:       "│",
	MiddleLeft:  "├",
	MiddleRight: "┤",
}

// RoundedBorder is an alternative border style with rounded corners.
// Use DefaultBorder for standard boxes.
//
//nolint:gochecknoglobals // Intentional package-level constant for TUI border styling
var RoundedBorder = BoxBorder{
	TopLeft:     "╭",
	TopRight:    "╮",
	BottomLeft:  "╰",
	BottomRight: "╯",
	Top:         "─",
	Bottom:      "─",
	Left:        "│",
	Right:       "│",
	MiddleLeft:  "├",
	MiddleRight: "┤",
}

// BoxStyle holds configuration for rendering bordered boxes.
type BoxStyle struct {
	Width  int
	Border *BoxBorder
}

// NewBoxStyle creates a new BoxStyle with defaults (square border, 100 char width).
func NewBoxStyle() *BoxStyle {
	border := DefaultBorder
	return &BoxStyle{
		Width:  DefaultBoxWidth,
		Border: &border,
	}
}

// WithWidth returns a new BoxStyle with the specified width.
func (b *BoxStyle) WithWidth(width int) *BoxStyle {
	return &BoxStyle{
		Width:  width,
		Border: b.Border,
	}
}

// Render renders a box with the given title and content.
// Supports multi-line content by splitting on newlines.
func (b *BoxStyle) Render(title, content string) string {
	innerWidth := b.Width - 2

	topLine := b.Border.TopLeft + strings.Repeat(b.Border.Top, innerWidth) + b.Border.TopRight
	titleLine := b.Border.Left + " " + padRight(title, innerWidth-1) + b.Border.Right
	dividerLine := b.Border.MiddleLeft + strings.Repeat(b.Border.Top, innerWidth) + b.Border.MiddleRight

	splitLines := strings.Split(content, "\n")
	contentLines := make([]string, 0, len(splitLines))
	for _, line := range splitLines {
		contentLines = append(contentLines, b.Border.Left+" "+padRight(line, innerWidth-1)+b.Border.Right)
	}

	bottomLine := b.Border.BottomLeft + strings.Repeat(b.Border.Bottom, innerWidth) + b.Border.BottomRight

	result := topLine + "\n" + titleLine + "\n" + dividerLine + "\n"
	result += strings.Join(contentLines, "\n")
	result += "\n" + bottomLine

	return result
}

// stripANSI removes ANSI escape codes from a string.
// Used to calculate visible character count (excluding color codes).
// Handles both CSI sequences (\x1b[...letter) and OSC sequences (\x1b]...ST).
func stripANSI(s string) string {
	var result strings.Builder
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		if newI := trySkipANSI(runes, i); newI != i {
			i = newI
			continue
		}
		result.WriteRune(runes[i])
		i++
	}
	return result.String()
}

// trySkipANSI attempts to skip an ANSI escape sequence starting at position i.
// Returns the new position after the sequence, or i if no sequence was found.
func trySkipANSI(runes []rune, i int) int {
	if i >= len(runes) || runes[i] != '\x1b' || i+1 >= len(runes) {
		return i
	}

	next := runes[i+1]
	if next == '[' {
		return skipCSISequence(runes, i)
	}
	if next == ']' {
		return skipOSCSequence(runes, i)
	}
	return i
}

// skipCSISequence skips a CSI sequence: \x1b[...letter
func skipCSISequence(runes []rune, i int) int {
	i += 2
	for i < len(runes) {
		c := runes[i]
		i++
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			break
		}
	}
	return i
}

// skipOSCSequence skips an OSC sequence: \x1b]...ST (where ST is \x1b\\ or \x07)
func skipOSCSequence(runes []rune, i int) int {
	i += 2
	for i < len(runes) {
		c := runes[i]
		if c == '\x07' {
			i++
			break
		}
		if c == '\x1b' && i+1 < len(runes) && runes[i+1] == '\\' {
			i += 2
			break
		}
		i++
	}
	return i
}

// padRight pads a string to the right to reach the target display width.
// Uses go-runewidth's column width (excluding ANSI escape codes), so
// wide runes (CJK, emoji) consume two columns instead of one and table
// alignment holds even with non-Latin namespace names.
func padRight(s string, width int) string {
	visible := stripANSI(s)
	visibleWidth := runewidth.StringWidth(visible)
	if visibleWidth >= width {
		return runewidth.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-visibleWidth)
}

// HeaderStyle creates a styled header with the given color.
func HeaderStyle(color lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(color).
		MarginBottom(1)
}

// RenderStyledHeader renders a styled header with icon and text.
func RenderStyledHeader(icon, text string, color lipgloss.TerminalColor) string {
	style := HeaderStyle(color)
	return style.Render(icon + " " + text)
}

// NarrowTerminalWidth is the threshold for narrow terminal mode.
const NarrowTerminalWidth = 80

// DefaultTerminalWidth is used when terminal width cannot be determined.
const DefaultTerminalWidth = 80

// TerminalWidth returns the current terminal width, or 0 if detection fails.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// IsNarrowTerminal returns true if terminal width is below the narrow threshold.
// Use this to adapt output format for narrow terminals.
func IsNarrowTerminal() bool {
	width := TerminalWidth()
	if width == 0 {
		return true
	}
	return width < NarrowTerminalWidth
}
