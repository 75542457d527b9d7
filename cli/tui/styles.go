// Package tui provides Bubble Tea views for the sliderule CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - The stream view draws on stderr so rendered records on stdout stay clean
//   - TUI shows the same data as non-TUI rendering
package tui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sliderule/recdef"
)

// columnWidth is the width of one definition table column.
const columnWidth = 16

var (
	accentColor = lipgloss.Color("#7C3AED")
	okColor     = lipgloss.Color("#10B981")
	busyColor   = lipgloss.Color("#F59E0B")
	failColor   = lipgloss.Color("#EF4444")
	dimColor    = lipgloss.Color("#6B7280")
	totalColor  = lipgloss.Color("#3B82F6")
	textColor   = lipgloss.Color("#FFFFFF")

	// recordTypeColors tint per-type stat boxes. A type keeps its color
	// across runs, so atl06rec looks the same every time.
	recordTypeColors = []lipgloss.Color{"#7C3AED", "#0EA5E9", "#14B8A6", "#EC4899", "#84CC16", "#F97316"}
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(dimColor).Width(columnWidth)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)
	BoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dimColor).Padding(1, 2)
	HelpStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(dimColor).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

// FieldStyle colors the type column of a definition row: nested record
// types stand out, and pointer fields, which the decoder skips, are dimmed.
func FieldStyle(class recdef.FieldClass) lipgloss.Style {
	switch class {
	case recdef.ClassNested:
		return lipgloss.NewStyle().Foreground(busyColor)
	case recdef.ClassPointer:
		return lipgloss.NewStyle().Foreground(dimColor).Strikethrough(true)
	default:
		return ValueStyle
	}
}

// streamState is the phase of a streamed request in the stream view.
type streamState int

const (
	streamRunning streamState = iota
	streamComplete
	streamFailed
)

func (s streamState) style() lipgloss.Style {
	switch s {
	case streamComplete:
		return lipgloss.NewStyle().Foreground(okColor)
	case streamFailed:
		return lipgloss.NewStyle().Foreground(failColor)
	default:
		return lipgloss.NewStyle().Foreground(busyColor)
	}
}

// RecordTypeColor picks a stable color for a record type name.
func RecordTypeColor(recordType string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recordType))
	return recordTypeColors[h.Sum32()%uint32(len(recordTypeColors))]
}
