package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Open       key.Binding
	Back       key.Binding
	Delete     key.Binding
	Add        key.Binding
	Refresh    key.Binding
	Cached     key.Binding
	SwitchKind key.Binding
	SignIn     key.Binding
	SignOut    key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:       key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
		Delete:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Add:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "fetch")),
		Cached:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cached")),
		SwitchKind: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "recipes/ingredients")),
		SignIn:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "sign in")),
		SignOut:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "sign out")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// listKeys extend the list's own help.
func (k keyMap) listKeys() []key.Binding {
	return []key.Binding{k.Open, k.Add, k.Delete, k.Refresh, k.Cached, k.SwitchKind, k.SignOut}
}

// detailKeys implements help.KeyMap for the selection view.
type detailKeys keyMap

func (k detailKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Back, k.Delete, k.SignOut, k.Quit}
}

func (k detailKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }
