// Package configwizard is a small form for writing a first config file.
package configwizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jxwalker/modshelf/internal/config"
)

type field struct {
	label string
	hint  string
	apply func(c *config.Config, v string)
}

var fields = []field{
	{"general.data_root", "state db and logs", func(c *config.Config, v string) { c.General.DataRoot = v }},
	{"general.cache_root", "preview cache (blank: data_root/previews)", func(c *config.Config, v string) { c.General.CacheRoot = v }},
	{"library.roots", "comma separated model folders", func(c *config.Config, v string) { c.Library.Roots = splitList(v) }},
	{"previews.enabled", "true|false", func(c *config.Config, v string) { c.Previews.Enabled = parseBool(v) }},
	{"previews.max_concurrency", "parallel preview loads", func(c *config.Config, v string) { c.Previews.MaxConcurrency = parseInt(v, 2) }},
	{"ui.autoplay_on_hover", "true|false", func(c *config.Config, v string) { c.UI.AutoplayOnHover = parseBool(v) }},
	{"ui.mouse", "true|false", func(c *config.Config, v string) { c.UI.Mouse = parseBool(v) }},
}

// Wizard collects the handful of settings a new library needs.
type Wizard struct {
	inputs []textinput.Model
	focus  int
	done   bool
	base   config.Config
	out    *config.Config
}

// Defaults is the config the wizard starts from.
func Defaults() *config.Config {
	return &config.Config{
		Version:  1,
		General:  config.General{DataRoot: "~/.local/share/modshelf"},
		Library:  config.Library{Roots: []string{"~/models"}},
		Previews: config.Previews{Enabled: true, MaxConcurrency: 2, DelayMS: 120},
		UI:       config.UIOptions{AutoplayOnHover: true, Mouse: true, PersistState: true},
	}
}

func New(defaults *config.Config) *Wizard {
	if defaults == nil {
		defaults = Defaults()
	}
	vals := []string{
		defaults.General.DataRoot,
		defaults.General.CacheRoot,
		strings.Join(defaults.Library.Roots, ", "),
		strconv.FormatBool(defaults.Previews.Enabled),
		strconv.Itoa(defaults.Previews.MaxConcurrency),
		strconv.FormatBool(defaults.UI.AutoplayOnHover),
		strconv.FormatBool(defaults.UI.Mouse),
	}
	w := &Wizard{}
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.Placeholder = f.hint
		ti.CharLimit = 512
		ti.SetValue(vals[i])
		w.inputs = append(w.inputs, ti)
	}
	w.inputs[0].Focus()
	w.base = *defaults
	return w
}

func (w *Wizard) Init() tea.Cmd { return textinput.Blink }

func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "esc":
			w.done = true
			return w, tea.Quit
		case "enter":
			if w.focus == len(w.inputs)-1 {
				w.done = true
				w.out = w.build()
				return w, tea.Quit
			}
			w.move(1)
			return w, nil
		case "tab", "down":
			w.move(1)
			return w, nil
		case "shift+tab", "up":
			w.move(-1)
			return w, nil
		}
	}
	var cmd tea.Cmd
	w.inputs[w.focus], cmd = w.inputs[w.focus].Update(msg)
	return w, cmd
}

func (w *Wizard) move(d int) {
	w.inputs[w.focus].Blur()
	w.focus += d
	if w.focus < 0 {
		w.focus = 0
	}
	if w.focus >= len(w.inputs) {
		w.focus = len(w.inputs) - 1
	}
	w.inputs[w.focus].Focus()
}

func (w *Wizard) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("modshelf setup") + "\n")
	b.WriteString("Tab/Shift-Tab to move, Enter on the last field to save, Esc to cancel.\n\n")
	for i, f := range fields {
		marker := " "
		if i == w.focus {
			marker = ">"
		}
		b.WriteString(fmt.Sprintf("%s %-26s %s\n", marker, f.label+":", w.inputs[i].View()))
	}
	if w.out != nil {
		b.WriteString("\nSaving...\n")
	}
	return b.String()
}

func (w *Wizard) build() *config.Config {
	c := w.base
	c.Version = 1
	for i, f := range fields {
		f.apply(&c, strings.TrimSpace(w.inputs[i].Value()))
	}
	if c.Previews.DelayMS == 0 {
		c.Previews.DelayMS = 120
	}
	return &c
}

// Config is the result, or nil when the wizard was cancelled.
func (w *Wizard) Config() *config.Config { return w.out }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "y", "yes", "on":
		return true
	}
	return false
}

func parseInt(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}
