package configwizard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+u":
		return tea.KeyMsg{Type: tea.KeyCtrlU}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWizardBuildsConfig(t *testing.T) {
	w := New(nil)
	// move to library.roots and replace it
	w.Update(key("tab"))
	w.Update(key("tab"))
	w.Update(key("ctrl+u"))
	w.Update(key("/a, /b ,"))
	for i := 0; i < len(fields); i++ {
		w.Update(key("enter"))
	}
	c := w.Config()
	if c == nil {
		t.Fatal("expected config")
	}
	if c.Version != 1 || c.General.DataRoot != "~/.local/share/modshelf" {
		t.Fatalf("unexpected general: %+v", c.General)
	}
	if len(c.Library.Roots) != 2 || c.Library.Roots[0] != "/a" || c.Library.Roots[1] != "/b" {
		t.Fatalf("roots: %v", c.Library.Roots)
	}
	if !c.Previews.Enabled || c.Previews.MaxConcurrency != 2 || c.Previews.DelayMS != 120 {
		t.Fatalf("previews: %+v", c.Previews)
	}
	if !c.UI.PersistState {
		t.Fatal("defaults not carried over")
	}
}

func TestWizardCancel(t *testing.T) {
	w := New(nil)
	_, cmd := w.Update(key("esc"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if w.Config() != nil {
		t.Fatal("cancelled wizard must not produce a config")
	}
}

func TestParseHelpers(t *testing.T) {
	if !parseBool("Yes") || parseBool("nope") {
		t.Fatal("parseBool")
	}
	if parseInt("x", 3) != 3 || parseInt("-1", 3) != 3 || parseInt("4", 3) != 4 {
		t.Fatal("parseInt")
	}
}
