package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/jxwalker/modshelf/internal/event"
)

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Top       key.Binding
	Bottom    key.Binding
	Search    key.Binding
	Info      key.Binding
	Close     key.Binding
	Bulk      key.Binding
	Toggle    key.Binding
	SelectAll key.Binding
	Favorite  key.Binding
	FavOnly   key.Binding
	Types     key.Binding
	Sort      key.Binding
	Copy      key.Binding
	Enrich    key.Binding
	Link      key.Binding
	Rescan    key.Binding
	Help      key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		PageUp:    key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
		Top:       key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:    key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Info:      key.NewBinding(key.WithKeys("enter", "i"), key.WithHelp("enter", "details")),
		Close:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Bulk:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bulk mode")),
		Toggle:    key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "select")),
		SelectAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
		Favorite:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		FavOnly:   key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "favorites only")),
		Types:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "filter type")),
		Sort:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Copy:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy path")),
		Enrich:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "look up")),
		Link:      key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "link to apps")),
		Rescan:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Search, k.Info, k.Bulk, k.Favorite, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Search, k.Types, k.Sort, k.FavOnly, k.Rescan},
		{k.Info, k.Favorite, k.Copy, k.Enrich, k.Link, k.Help, k.Quit},
		{k.Bulk, k.Toggle, k.SelectAll, k.Close},
	}
}

// matches reports whether ev is a key event for b.
func matches(ev *event.Event, b key.Binding) bool {
	if ev.Type != event.KeyDown || !b.Enabled() {
		return false
	}
	for _, k := range b.Keys() {
		if ev.Key == k {
			return true
		}
	}
	return false
}
