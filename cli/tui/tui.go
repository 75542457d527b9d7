package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"

	"github.com/pithecene-io/sliderule/recdef"
)

// View types that support TUI mode.
const (
	ViewDefinition = "definition"
	ViewSource     = "source"
	ViewDecode     = "decode"
)

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Run starts the static TUI for viewType. Stream views are started with
// RunStream instead.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	switch viewType {
	case ViewDefinition:
		def, ok := data.(*recdef.Definition)
		if !ok {
			return fmt.Errorf("invalid data type %T for %s", data, viewType)
		}
		return RunDefinitionTUI(def)
	default:
		return fmt.Errorf("%s is a stream view", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewDefinition, ViewSource, ViewDecode}
}
