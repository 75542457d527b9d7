package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sliderule/recdef"
)

// DefinitionModel is a Bubble Tea model showing one record definition.
type DefinitionModel struct {
	def      *recdef.Definition
	width    int
	height   int
	quitting bool
}

// NewDefinitionModel creates a new definition model.
func NewDefinitionModel(def *recdef.Definition) DefinitionModel {
	return DefinitionModel{def: def}
}

// Init implements tea.Model.
func (m DefinitionModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m DefinitionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m DefinitionModel) View() string {
	if m.quitting {
		return ""
	}
	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return m.renderDefinition() + "\n" + help
}

func (m DefinitionModel) renderDefinition() string {
	if m.def == nil {
		return "No definition"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Record Definition: " + m.def.Type))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n\n",
		LabelStyle.Render("Size:"),
		ValueStyle.Render(fmt.Sprintf("%d bytes", m.def.Size))))

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		LabelStyle.Render("Field"),
		LabelStyle.Render("Type"),
		LabelStyle.Render("Offset"),
		LabelStyle.Render("Elements"),
		LabelStyle.Render("Flags"),
	)
	b.WriteString(header)
	b.WriteString("\n")

	for _, f := range m.def.Fields {
		cell := ValueStyle.Width(columnWidth)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			cell.Render(f.Name),
			FieldStyle(f.Class).Width(columnWidth).Render(f.Type),
			cell.Render(fmt.Sprintf("%d", f.Offset)),
			cell.Render(elementsLabel(f)),
			ValueStyle.Render(strings.Join(f.Flags, ",")),
		))
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String())
}

func elementsLabel(f recdef.Field) string {
	if f.Computed() {
		return "*"
	}
	return fmt.Sprintf("%d", f.Elements)
}

// RunDefinitionTUI runs the definition TUI.
func RunDefinitionTUI(def *recdef.Definition) error {
	p := tea.NewProgram(NewDefinitionModel(def), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderDefinitionStatic renders a definition without full TUI (for fallback).
func RenderDefinitionStatic(def *recdef.Definition) string {
	model := NewDefinitionModel(def)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
