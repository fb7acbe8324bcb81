package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jxwalker/modshelf/internal/event"
	"github.com/jxwalker/modshelf/internal/library"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/media"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/uistate"
	"github.com/jxwalker/modshelf/internal/util"
)

func (m *Model) width() int {
	if m.w == 0 {
		return 100
	}
	return m.w
}

func (m *Model) View() string {
	switch {
	case m.modal != modalNone:
		return m.overlay(m.modalTitle(), m.info.View(), "esc close • j/k scroll")
	case m.store.Bool(uistate.NodeSelectorActive):
		return m.overlay("Filter by type", m.renderPicker(), "enter apply • esc cancel")
	}
	lines := []string{m.renderHeader(), m.renderSearch()}
	lines = append(lines, m.renderList()...)
	lines = append(lines, m.renderPreviewPane()...)
	lines = append(lines, m.renderFooter())
	return strings.Join(lines, "\n")
}

func (m *Model) overlay(title, body, hint string) string {
	box := m.th.border.Render(m.th.title.Render(title) + "\n\n" + body + "\n\n" + m.th.footer.Render(hint))
	if m.w == 0 || m.h == 0 {
		return box
	}
	return lipgloss.Place(m.w, m.h, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) modalTitle() string {
	if m.modal == modalHelp {
		return "Help"
	}
	if c := m.current(); c != nil {
		return c.Model.Name
	}
	return "Details"
}

func (m *Model) renderHeader() string {
	parts := []string{fmt.Sprintf("%d/%d models", m.lib.Len(), m.lib.Total()), "sort: " + m.lib.SortBy()}
	if t := m.store.String(keyType, ""); t != "" {
		parts = append(parts, "type: "+t)
	}
	if m.lib.FavoritesOnly() {
		parts = append(parts, "★ only")
	}
	if m.store.Bool(uistate.BulkMode) {
		parts = append(parts, fmt.Sprintf("BULK %d selected", m.lib.SelectedCount()))
	}
	if m.scanning {
		parts = append(parts, "scanning…")
	}
	if m.enriching {
		parts = append(parts, "looking up…")
	}
	return m.th.title.Render("modshelf") + "  " + m.th.label.Render(strings.Join(parts, " • "))
}

func (m *Model) renderSearch() string {
	if m.searching {
		return m.search.View()
	}
	if q := m.lib.Query(); q != "" {
		return m.th.label.Render("/ " + q)
	}
	return m.th.label.Render("/ to search")
}

func (m *Model) renderList() []string {
	h := m.listHeight()
	out := make([]string, 0, h)
	if m.lib.Total() == 0 {
		out = append(out, m.th.label.Render("  library is empty; press r to scan "+strings.Join(m.cfg.Library.Roots, ", ")))
	} else if m.lib.Len() == 0 {
		out = append(out, m.th.label.Render("  no models match"))
	}
	bulk := m.store.Bool(uistate.BulkMode)
	for i := m.top; i < m.lib.Len() && len(out) < h; i++ {
		out = append(out, m.renderRow(i, m.lib.At(i), bulk))
	}
	for len(out) < h {
		out = append(out, "")
	}
	return out
}

func (m *Model) renderRow(i int, c *library.Card, bulk bool) string {
	cursor := " "
	if i == m.cursor {
		cursor = "›"
	}
	mark := ""
	if bulk {
		mark = "○ "
		if m.lib.IsSelected(c.Model.Path) {
			mark = "● "
		}
	}
	star := " "
	if c.Model.Favorite {
		star = m.th.star.Render("★")
	}
	nameW := clamp(m.width()-52, 12, 80)
	cols := fmt.Sprintf("%s %s %-14s %-6s %9s",
		padRight(truncateMiddle(c.Model.Name, nameW), nameW),
		m.badge(c),
		truncateMiddle(c.Model.Type, 14),
		c.Model.BaseModel,
		humanize.Bytes(uint64(c.Model.Size)))
	style := m.th.row
	switch {
	case i == m.cursor:
		style = m.th.rowSelected
	case bulk && m.lib.IsSelected(c.Model.Path):
		style = m.th.rowMarked
	}
	return cursor + " " + mark + star + " " + style.Render(cols)
}

// badge is a one-cell preview indicator.
func (m *Model) badge(c *library.Card) string {
	p := c.Preview()
	switch p.Status {
	case library.PreviewFailed:
		return m.th.bad.Render("✗")
	case library.PreviewReady:
		if p.Playing {
			return m.th.ok.Render("▶")
		}
		return "■"
	case library.PreviewFetching:
		return "⇣"
	case library.PreviewPending:
		switch m.loader.State(c) {
		case media.Queued:
			return "…"
		case media.Loading:
			return "⇣"
		}
		return "·"
	}
	return " "
}

func (m *Model) renderPreviewPane() []string {
	out := make([]string, 0, previewLines)
	c := m.hovered
	if c == nil {
		out = append(out, m.th.label.Render("no preview"))
	} else {
		p := c.Preview()
		out = append(out, m.th.head.Render("Preview")+" "+c.Model.Name+" "+m.th.label.Render(p.Status.String()))
		switch {
		case p.Err != nil:
			out = append(out, m.th.bad.Render(truncateMiddle(p.Err.Error(), m.width()-2)))
		case p.Local != "":
			out = append(out, m.th.label.Render(truncateMiddle(p.Local, m.width()-2)))
		case c.Model.PreviewURL != "":
			out = append(out, m.th.label.Render(truncateMiddle(logging.SanitizeURL(c.Model.PreviewURL), m.width()-2)))
		}
		if p.Status == library.PreviewReady {
			out = append(out, playBar(p.Frame, clamp(m.width()-20, 10, 60), p.Playing))
		}
	}
	for len(out) < previewLines {
		out = append(out, "")
	}
	return out[:previewLines]
}

// playBar draws a looping position indicator for a playing preview.
func playBar(frame, width int, playing bool) string {
	pos := frame % width
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i == pos {
			b.WriteString("█")
		} else {
			b.WriteString("─")
		}
	}
	state := "paused"
	if playing {
		state = "playing"
	}
	return fmt.Sprintf("%s %s f%d", b.String(), state, frame)
}

func (m *Model) renderFooter() string {
	if n := len(m.toasts); n > 0 {
		return m.th.ok.Render(m.toasts[n-1].msg)
	}
	return m.help.View(m.keys)
}

func (m *Model) renderPicker() string {
	var b strings.Builder
	for i, t := range m.picker {
		if i == m.pickerIdx {
			b.WriteString(m.th.rowSelected.Render("› " + t))
		} else {
			b.WriteString("  " + t)
		}
		if i < len(m.picker)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) renderInfo(c *library.Card) string {
	if c == nil {
		return ""
	}
	md := c.Model
	var b strings.Builder
	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(m.th.label.Render(fmt.Sprintf("%-12s", label)) + value + "\n")
	}
	row("Name", md.Name)
	row("Path", md.Path)
	row("Folder", filepath.Dir(md.Path))
	row("Type", md.Type)
	row("Base model", md.BaseModel)
	row("Size", fmt.Sprintf("%s (%s bytes)", humanize.Bytes(uint64(md.Size)), humanize.Comma(md.Size)))
	if !md.ModTime.IsZero() {
		row("Modified", humanize.Time(md.ModTime))
	}
	row("Tags", strings.Join(md.Tags, ", "))
	if md.Favorite {
		row("Favorite", "★")
	}
	if info, err := metadata.ReadSidecar(util.ModelBase(md.Path)); err == nil && info != nil {
		row("CivitAI", strings.TrimSpace(info.Model.Name+" "+info.Name))
		row("Page", info.Homepage())
		row("Triggers", strings.Join(info.TrainedWords, ", "))
		if info.SHA256 != "" {
			row("AutoV2", util.AutoV2(info.SHA256))
		}
	}
	p := c.Preview()
	row("Preview", logging.SanitizeURL(md.PreviewURL))
	if md.PreviewURL != "" {
		row("Status", p.Status.String()+" / "+m.loader.State(c).String())
	}
	row("Cached", p.Local)
	if p.Err != nil {
		row("Error", p.Err.Error())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderHelpModal() string {
	var b strings.Builder
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n" + m.th.head.Render("Handlers") + "\n")
	for _, t := range m.mgr.EventTypes() {
		var parts []string
		for _, r := range m.mgr.Registrations(t) {
			s := fmt.Sprintf("%s(%d)", r.Source, r.Priority)
			if r.Selector != "" {
				s += "@" + r.Selector
			}
			for _, c := range r.Conditions {
				s += " " + c.String()
			}
			parts = append(parts, s)
		}
		b.WriteString(fmt.Sprintf("%-10s %s\n", t, strings.Join(parts, ", ")))
	}
	st := m.mgr.Stats()
	ls := m.loader.Stats()
	b.WriteString(fmt.Sprintf("\nevents %d • handler faults %d • previews loaded %d, discarded %d, peak %d",
		st.Dispatched, st.Faults, ls.Loaded, ls.Discarded, ls.PeakActive))
	if files, size, err := m.fetcher.CacheSize(); err == nil && files > 0 {
		b.WriteString(fmt.Sprintf("\npreview cache %d files, %s", files, humanize.Bytes(uint64(size))))
	}
	return b.String()
}

var _ event.Target = (*document)(nil)
