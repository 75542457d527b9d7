package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/sliderule/session"
	"github.com/pithecene-io/sliderule/types"
)

// RecordMsg reports one decoded record to the stream view.
type RecordMsg struct {
	Type    string
	Handled bool
}

// DoneMsg reports the end of the request.
type DoneMsg struct {
	Err error
}

// StreamModel is a Bubble Tea model showing live record counts for a
// streaming request.
type StreamModel struct {
	title    string
	spinner  spinner.Model
	order    []string
	counts   map[string]int
	total    int
	handled  int
	done     bool
	err      error
	width    int
	height   int
	quitting bool
}

// NewStreamModel creates a new stream model.
func NewStreamModel(title string) StreamModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)
	return StreamModel{
		title:   title,
		spinner: s,
		counts:  make(map[string]int),
	}
}

// Init implements tea.Model.
func (m StreamModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m StreamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case RecordMsg:
		if _, ok := m.counts[msg.Type]; !ok {
			m.order = append(m.order, msg.Type)
		}
		m.counts[msg.Type]++
		m.total++
		if msg.Handled {
			m.handled++
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Count returns the number of records seen for recordType.
func (m StreamModel) Count(recordType string) int {
	return m.counts[recordType]
}

// Total returns the number of records seen.
func (m StreamModel) Total() int {
	return m.total
}

// Quitting reports whether the user asked to quit.
func (m StreamModel) Quitting() bool {
	return m.quitting
}

// View implements tea.Model.
func (m StreamModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(streamFailed.style().Render("failed: " + m.err.Error()))
	case m.done:
		b.WriteString(streamComplete.style().Render("complete"))
	default:
		b.WriteString(m.spinner.View() + " " + streamRunning.style().Render("streaming"))
	}
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Total", m.total, totalColor),
		m.renderStatBox("Dispatched", m.handled, okColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if len(m.order) > 0 {
		b.WriteString("\n\n")
		typeBoxes := make([]string, 0, len(m.order))
		for _, recType := range m.order {
			typeBoxes = append(typeBoxes, m.renderStatBox(recType, m.counts[recType], RecordTypeColor(recType)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, typeBoxes...))
	}

	help := HelpStyle.Render("Press q or Ctrl+C to cancel")
	return b.String() + "\n" + help
}

func (m StreamModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStream runs fn while drawing live record counts on stderr. fn receives
// an observer to install on its session or request. Quitting the view
// cancels the context passed to fn. RunStream returns fn's error.
func RunStream(ctx context.Context, title string, fn func(ctx context.Context, observer session.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewStreamModel(title), tea.WithOutput(os.Stderr))

	errc := make(chan error, 1)
	go func() {
		err := fn(ctx, func(rec *types.Record, handled bool) {
			p.Send(RecordMsg{Type: rec.Type, Handled: handled})
		})
		errc <- err
		p.Send(DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-errc
		return err
	}
	if m, ok := final.(StreamModel); ok && m.Quitting() {
		cancel()
	}
	return <-errc
}
