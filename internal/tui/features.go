package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxwalker/modshelf/internal/event"
	"github.com/jxwalker/modshelf/internal/library"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/uistate"
)

// Handler priorities. Focused overlays claim keys before the list does.
const (
	prioForceQuit = 2000
	prioModal     = 1000
	prioPicker    = 900
	prioSearch    = 800
	prioBulkExit  = 500
	prioBulk      = 100
	prioMarquee   = 100
	prioFavorites = 50
	prioNav       = 0
	prioHover     = -10
)

// registerFeatures wires every feature module into the event manager.
func registerFeatures(m *Model) {
	for _, register := range []func(*Model){
		registerApp,
		registerModal,
		registerPicker,
		registerSearch,
		registerBulk,
		registerMarquee,
		registerFavorites,
		registerNav,
		registerPreview,
	} {
		register(m)
	}
}

func (m *Model) on(eventType, source string, fn event.HandlerFunc, opts ...event.Option) {
	if err := m.mgr.Register(eventType, source, fn, opts...); err != nil {
		m.log.Errorf("register %s/%s: %v", eventType, source, err)
	}
}

func registerApp(m *Model) {
	m.on(event.KeyDown, "app.forcequit", func(ev *event.Event) bool {
		if !matches(ev, m.keys.ForceQuit) {
			return false
		}
		m.queue(tea.Quit)
		return true
	}, event.WithPriority(prioForceQuit))
}

// Modal: the details and help overlays. Any key or click inside the modal
// region is claimed here.
func registerModal(m *Model) {
	m.on(event.KeyDown, "modal", func(ev *event.Event) bool {
		switch {
		case matches(ev, m.keys.Close), matches(ev, m.keys.Quit), matches(ev, m.keys.Info), matches(ev, m.keys.Help):
			m.closeModal()
		case matches(ev, m.keys.Down):
			m.info.LineDown(1)
		case matches(ev, m.keys.Up):
			m.info.LineUp(1)
		case matches(ev, m.keys.PageDown):
			m.info.HalfViewDown()
		case matches(ev, m.keys.PageUp):
			m.info.HalfViewUp()
		case matches(ev, m.keys.Top):
			m.info.GotoTop()
		}
		return true
	}, event.WithPriority(prioModal), event.WithTargetSelector(regionModal))

	m.on(event.MouseDown, "modal", func(*event.Event) bool {
		m.closeModal()
		return true
	}, event.WithPriority(prioModal), event.WithTargetSelector(regionModal))

	m.on(event.Wheel, "modal", func(ev *event.Event) bool {
		if ev.Button == "up" {
			m.info.LineUp(3)
		} else {
			m.info.LineDown(3)
		}
		return true
	}, event.WithPriority(prioModal), event.WithTargetSelector(regionModal))
}

func (m *Model) openModal(kind modalKind) {
	m.modal = kind
	switch kind {
	case modalInfo:
		m.info.SetContent(m.renderInfo(m.current()))
	case modalHelp:
		m.info.SetContent(m.renderHelpModal())
	}
	m.info.GotoTop()
	m.mgr.SetSharedState(uistate.ModalOpen, true)
}

func (m *Model) closeModal() {
	m.modal = modalNone
	m.mgr.SetSharedState(uistate.ModalOpen, false)
}

// Picker: the artifact type selector.
func registerPicker(m *Model) {
	m.on(event.KeyDown, "picker", func(ev *event.Event) bool {
		switch {
		case matches(ev, m.keys.Close), matches(ev, m.keys.Quit):
			m.closePicker()
		case matches(ev, m.keys.Down):
			if m.pickerIdx < len(m.picker)-1 {
				m.pickerIdx++
			}
		case matches(ev, m.keys.Up):
			if m.pickerIdx > 0 {
				m.pickerIdx--
			}
		case ev.Key == "enter":
			t := ""
			if m.pickerIdx > 0 && m.pickerIdx < len(m.picker) {
				t = m.picker[m.pickerIdx]
			}
			m.lib.SetTypeFilter(t)
			_ = m.store.Set(keyType, t)
			m.closePicker()
		}
		return true
	}, event.WithPriority(prioPicker), event.WithTargetSelector(regionPicker))
}

func (m *Model) openPicker() {
	m.picker = append([]string{"all types"}, m.lib.Types()...)
	m.pickerIdx = 0
	cur := m.store.String(keyType, "")
	for i, t := range m.picker {
		if i > 0 && t == cur {
			m.pickerIdx = i
		}
	}
	m.mgr.SetSharedState(uistate.NodeSelectorActive, true)
}

func (m *Model) closePicker() {
	m.picker = nil
	m.mgr.SetSharedState(uistate.NodeSelectorActive, false)
}

// Search: while the search line has focus it receives every key.
func registerSearch(m *Model) {
	m.on(event.KeyDown, "search", func(ev *event.Event) bool {
		switch ev.Key {
		case "enter":
			m.blurSearch()
		case "esc":
			m.search.SetValue("")
			m.applyQuery("")
			m.blurSearch()
		default:
			if msg, ok := ev.Payload.(tea.KeyMsg); ok {
				var cmd tea.Cmd
				m.search, cmd = m.search.Update(msg)
				m.queue(cmd)
				m.applyQuery(m.search.Value())
			}
		}
		return true
	}, event.WithPriority(prioSearch), event.WithTargetSelector(regionSearch))

	m.on(event.MouseDown, "search", func(*event.Event) bool {
		m.focusSearch()
		return true
	}, event.WithPriority(prioSearch), event.WithTargetSelector(regionSearch), event.SkipWhenModalOpen())
}

func (m *Model) focusSearch() {
	m.searching = true
	m.queue(m.search.Focus())
}

func (m *Model) blurSearch() {
	m.searching = false
	m.search.Blur()
}

func (m *Model) applyQuery(q string) {
	m.lib.SetQuery(q)
	_ = m.store.Set(keyQuery, strings.TrimSpace(q))
	m.cursor = 0
}

// Bulk mode: multi-selection and batch actions.
func registerBulk(m *Model) {
	m.on(event.KeyDown, "bulk.exit", func(ev *event.Event) bool {
		if !matches(ev, m.keys.Close) && !matches(ev, m.keys.Bulk) {
			return false
		}
		m.setBulk(false)
		return true
	}, event.WithPriority(prioBulkExit), event.OnlyInBulkMode(), event.SkipWhenModalOpen())

	m.on(event.KeyDown, "bulk", func(ev *event.Event) bool {
		switch {
		case matches(ev, m.keys.Toggle):
			if c := m.current(); c != nil {
				m.lib.Toggle(c.Model.Path)
				m.cursor++
			}
		case matches(ev, m.keys.SelectAll):
			if m.lib.SelectedCount() == m.lib.Len() {
				m.lib.ClearSelection()
			} else {
				m.lib.SelectAll()
			}
		case matches(ev, m.keys.Favorite):
			m.favoriteSelected()
		case matches(ev, m.keys.Copy):
			var paths []string
			for _, c := range m.lib.Selected() {
				paths = append(paths, c.Model.Path)
			}
			m.copyText(strings.Join(paths, "\n"), fmt.Sprintf("%d paths", len(paths)))
		case matches(ev, m.keys.Enrich):
			var models []state.Model
			for _, c := range m.lib.Selected() {
				models = append(models, c.Model)
			}
			m.queue(m.enrichCmd(models))
		case matches(ev, m.keys.Link):
			var models []state.Model
			for _, c := range m.lib.Selected() {
				models = append(models, c.Model)
			}
			m.queue(m.linkCmd(models))
		default:
			return false
		}
		return true
	}, event.WithPriority(prioBulk), event.OnlyInBulkMode(), event.SkipWhenModalOpen(), event.SkipWhenNodeSelectorActive())
}

func (m *Model) setBulk(on bool) {
	if !on {
		m.lib.ClearSelection()
		m.mgr.SetSharedState(uistate.MarqueeActive, false)
	}
	m.mgr.SetSharedState(uistate.BulkMode, on)
}

// favoriteSelected stars every selected card, or unstars them all when they
// already are.
func (m *Model) favoriteSelected() {
	sel := m.lib.Selected()
	if len(sel) == 0 {
		return
	}
	all := true
	for _, c := range sel {
		all = all && c.Model.Favorite
	}
	for _, c := range sel {
		m.setFavorite(c, !all)
	}
	verb := "starred"
	if all {
		verb = "unstarred"
	}
	m.addToast(fmt.Sprintf("%s %d models", verb, len(sel)))
}

// Marquee: press on a card in bulk mode and drag to select a range.
func registerMarquee(m *Model) {
	m.on(event.MouseDown, "marquee", func(ev *event.Event) bool {
		i, ok := cardIndex(ev)
		if !ok || ev.Button != "left" {
			return false
		}
		m.anchor = i
		m.cursor = i
		m.lib.SelectRange(i, i, true)
		m.mgr.SetSharedState(uistate.MarqueeActive, true)
		return true
	}, event.WithPriority(prioMarquee), event.OnlyInBulkMode(), event.WithTargetSelector(regionLibrary))

	m.on(event.MouseMove, "marquee", func(ev *event.Event) bool {
		if i, ok := cardIndex(ev); ok {
			m.lib.SelectRange(m.anchor, i, true)
			m.cursor = i
		}
		return true
	}, event.WithPriority(prioMarquee), event.OnlyWhenMarqueeActive())

	m.on(event.MouseUp, "marquee", func(*event.Event) bool {
		m.mgr.SetSharedState(uistate.MarqueeActive, false)
		return true
	}, event.WithPriority(prioMarquee), event.OnlyWhenMarqueeActive())
}

func registerFavorites(m *Model) {
	m.on(event.KeyDown, "favorites", func(ev *event.Event) bool {
		switch {
		case matches(ev, m.keys.Favorite):
			if c := m.current(); c != nil {
				m.setFavorite(c, !c.Model.Favorite)
			}
		case matches(ev, m.keys.FavOnly):
			on := !m.lib.FavoritesOnly()
			m.lib.SetFavoritesOnly(on)
			_ = m.store.Set(keyFavorites, on)
		default:
			return false
		}
		return true
	}, event.WithPriority(prioFavorites), event.SkipWhenModalOpen(), event.SkipWhenNodeSelectorActive())
}

func (m *Model) setFavorite(c *library.Card, on bool) {
	if m.db != nil {
		if err := m.db.SetFavorite(c.Model.Path, on); err != nil {
			m.log.Errorf("favorite %s: %v", c.Model.Path, err)
			m.addToast("favorite failed: " + err.Error())
			return
		}
	}
	m.lib.SetFavorite(c.Model.Path, on)
}

// Navigation and the remaining list commands.
func registerNav(m *Model) {
	m.on(event.KeyDown, "nav", func(ev *event.Event) bool {
		page := m.listHeight()
		switch {
		case matches(ev, m.keys.Down):
			m.cursor++
		case matches(ev, m.keys.Up):
			m.cursor--
		case matches(ev, m.keys.PageDown):
			m.cursor += page
		case matches(ev, m.keys.PageUp):
			m.cursor -= page
		case matches(ev, m.keys.Top):
			m.cursor = 0
		case matches(ev, m.keys.Bottom):
			m.cursor = m.lib.Len() - 1
		case matches(ev, m.keys.Search):
			m.focusSearch()
		case matches(ev, m.keys.Info):
			if m.current() != nil {
				m.openModal(modalInfo)
			}
		case matches(ev, m.keys.Help):
			m.openModal(modalHelp)
		case matches(ev, m.keys.Bulk):
			m.setBulk(true)
		case matches(ev, m.keys.Types):
			m.openPicker()
		case matches(ev, m.keys.Sort):
			by := m.lib.NextSort()
			_ = m.store.Set(keySort, by)
		case matches(ev, m.keys.Copy):
			if c := m.current(); c != nil {
				m.copyText(c.Model.Path, c.Model.Name)
			}
		case matches(ev, m.keys.Rescan):
			m.queue(m.scanCmd())
		case matches(ev, m.keys.Enrich):
			if c := m.current(); c != nil {
				m.queue(m.enrichCmd([]state.Model{c.Model}))
			}
		case matches(ev, m.keys.Link):
			if c := m.current(); c != nil {
				m.queue(m.linkCmd([]state.Model{c.Model}))
			}
		case matches(ev, m.keys.Quit):
			m.queue(tea.Quit)
		case ev.Key == "o":
			if c := m.current(); c != nil {
				if err := openInFileManager(c.Model.Path, true); err != nil {
					m.addToast(err.Error())
				}
			}
		default:
			return false
		}
		return true
	}, event.WithPriority(prioNav), event.SkipWhenModalOpen(), event.SkipWhenNodeSelectorActive())

	m.on(event.MouseDown, "nav", func(ev *event.Event) bool {
		i, ok := cardIndex(ev)
		if !ok {
			return false
		}
		m.cursor = i
		m.syncHover()
		if ev.Button == "right" {
			m.openModal(modalInfo)
		}
		return true
	}, event.WithPriority(prioNav), event.WithTargetSelector(regionLibrary), event.SkipWhenModalOpen())

	m.on(event.Wheel, "nav", func(ev *event.Event) bool {
		if ev.Button == "up" {
			m.cursor -= 3
		} else {
			m.cursor += 3
		}
		m.syncHover()
		return true
	}, event.WithPriority(prioNav), event.WithTargetSelector(regionLibrary), event.SkipWhenModalOpen())
}

// Preview: the pointer hovers cards; focus loss pauses playback.
func registerPreview(m *Model) {
	m.on(event.MouseMove, "preview.hover", func(ev *event.Event) bool {
		if i, ok := cardIndex(ev); ok {
			m.setHover(m.lib.At(i))
		}
		return false
	}, event.WithPriority(prioHover), event.WithTargetSelector(regionLibrary), event.SkipWhenModalOpen())

	m.on(event.Blur, "preview.focus", func(*event.Event) bool {
		m.blurred = true
		if m.hovered != nil {
			m.loader.HoverLeave(m.hovered)
		}
		return false
	})
	m.on(event.Focus, "preview.focus", func(*event.Event) bool {
		m.blurred = false
		if m.hovered != nil && m.previews {
			m.loader.HoverEnter(m.hovered)
		}
		return false
	})
}

func (m *Model) copyText(s, what string) {
	if s == "" {
		return
	}
	if err := m.clip(s); err != nil {
		m.addToast("copy failed: " + err.Error())
		return
	}
	m.addToast("copied " + what)
}
