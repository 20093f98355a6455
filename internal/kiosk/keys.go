package kiosk

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the kiosk's key bindings.
type KeyMap struct {
	NewSession key.Binding
	Quit       key.Binding
}

var DefaultKeyMap = KeyMap{
	NewSession: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "new session"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
