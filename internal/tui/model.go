package tui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/event"
	"github.com/jxwalker/modshelf/internal/library"
	"github.com/jxwalker/modshelf/internal/linker"
	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/media"
	"github.com/jxwalker/modshelf/internal/metrics"
	"github.com/jxwalker/modshelf/internal/preview"
	"github.com/jxwalker/modshelf/internal/scanner"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/uistate"
)

// Persisted UI state keys.
const (
	keySort      = "library.sort"
	keyQuery     = "library.query"
	keyType      = "library.type"
	keyFavorites = "library.favoritesOnly"
	// Session keys are never persisted.
	keyCursor = "session.cursor"
)

type tickMsg time.Time

// runMsg carries a callback posted by the media scheduler or a preview
// fetch into the update loop.
type runMsg struct{ fn func() }

type reloadMsg struct {
	models []state.Model
	err    error
}

type linkDoneMsg struct{ res linker.Result }

type enrichDoneMsg struct {
	res metadata.EnrichResult
	err error
}

type scanDoneMsg struct {
	res *scanner.Result
	err error
	dur time.Duration
}

type modalKind int

const (
	modalNone modalKind = iota
	modalInfo
	modalHelp
)

type toast struct {
	msg  string
	when time.Time
	ttl  time.Duration
}

// Model is the bubbletea model for the library browser.
type Model struct {
	cfg     *config.Config
	db      *state.DB
	log     *logging.Logger
	th      Theme
	keys    keyMap
	help    help.Model
	metrics *metrics.Manager
	clip    func(string) error

	doc     *document
	mgr     *event.Manager
	store   *uistate.Store
	lib     *library.Library
	fetcher *preview.Fetcher
	loader  *media.Loader
	vp      *media.Viewport
	scan    *scanner.Scanner
	enrich  *metadata.Enricher
	lookup  metadata.Lookup

	posts chan func()
	cmds  []tea.Cmd

	w, h      int
	cursor    int
	top       int
	rows      map[*library.Card]int
	hovered   *library.Card
	blurred   bool
	previews  bool
	searching bool
	search    textinput.Model
	modal     modalKind
	info      viewport.Model
	picker    []string
	pickerIdx int
	anchor    int
	toasts    []toast
	ticks     int
	scanning  bool
	enriching bool
}

// Option configures a Model.
type Option func(*Model)

func WithLogger(l *logging.Logger) Option { return func(m *Model) { m.log = l } }

func WithMetrics(mm *metrics.Manager) Option { return func(m *Model) { m.metrics = mm } }

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option { return func(m *Model) { m.clip = fn } }

// WithLookup enables metadata enrichment against src instead of CivitAI.
func WithLookup(src metadata.Lookup) Option { return func(m *Model) { m.lookup = src } }

// WithFetcher replaces the preview fetcher built from the config.
func WithFetcher(f *preview.Fetcher) Option { return func(m *Model) { m.fetcher = f } }

// New builds the model. db may be nil, in which case the library stays empty
// and nothing is persisted.
func New(cfg *config.Config, db *state.DB, opts ...Option) *Model {
	if cfg == nil {
		cfg = &config.Config{}
	}
	m := &Model{
		cfg:      cfg,
		db:       db,
		th:       defaultTheme(),
		keys:     defaultKeys(),
		help:     help.New(),
		clip:     clipboard.WriteAll,
		posts:    make(chan func(), 256),
		rows:     map[*library.Card]int{},
		previews: cfg.Previews.Enabled,
	}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = logging.Discard()
	}
	if m.fetcher == nil {
		m.fetcher = preview.NewFetcher(cfg, preview.WithLogger(m.log))
	}

	storeOpts := []uistate.Option{uistate.WithLogger(m.log.Named("uistate"))}
	if db != nil && cfg.UI.PersistState {
		storeOpts = append(storeOpts, uistate.WithMirror(state.UIMirror{DB: db}))
	}
	m.store = uistate.New(storeOpts...)
	if err := m.store.Restore(); err != nil {
		m.log.Warnf("restore ui state: %v", err)
	}

	m.doc = newDocument()
	m.doc.onEmit = m.metrics.IncDispatched
	m.mgr = event.NewManager(m.doc,
		event.WithState(m.store),
		event.WithLogger(m.log.Named("event")),
		event.WithFaultHook(func(f *event.HandlerFault) {
			m.metrics.IncHandlerFaults()
			m.addToast("internal error in " + f.Source)
		}),
	)

	libOpts := []library.Option{
		library.WithFetch(m.fetcher.Fetch),
		library.OnChange(func(*library.Card) { m.post(func() {}) }),
		library.WithAutoplay(!cfg.UI.AutoplayOnHover),
	}
	if !m.previews {
		libOpts = append(libOpts, library.WithoutPreviews())
	}
	m.lib = library.New(libOpts...)
	m.lib.SetSort(m.store.String(keySort, cfg.UI.SortBy))
	m.lib.SetTypeFilter(m.store.String(keyType, ""))
	m.lib.SetFavoritesOnly(m.store.Bool(keyFavorites))
	m.lib.SetQuery(m.store.String(keyQuery, ""))

	margin := cfg.UI.MarginRows
	if margin == 0 {
		margin = 5
	}
	sched := media.NewLoopScheduler(m.post, 0)
	m.loader = media.NewLoader(media.Config{
		MaxConcurrency: cfg.Previews.MaxConcurrency,
		Delay:          time.Duration(cfg.Previews.DelayMS) * time.Millisecond,
	}, sched, func(cb media.IntersectFunc) media.Observer {
		m.vp = media.NewViewport(margin, cb)
		return m.vp
	}, media.WithLoaderLogger(m.log.Named("media")))
	m.vp.SetLayout(m.rowOf)

	m.scan = scanner.New(db, cfg, scanner.WithLogger(m.log))
	if m.lookup == nil && cfg.Metadata.CivitAI.Enabled {
		m.lookup = metadata.NewCivitAI(cfg)
	}
	if m.lookup != nil {
		m.enrich = metadata.NewEnricher(cfg, db, m.lookup, metadata.WithLogger(m.log), metadata.WithForce(true))
	}

	m.search = textinput.New()
	m.search.Placeholder = "fuzzy search name, type, tags"
	m.search.Prompt = "/ "
	m.search.SetValue(m.lib.Query())
	m.info = viewport.New(60, 16)

	registerFeatures(m)
	return m
}

// Manager exposes the event manager, e.g. for plugins registering handlers.
func (m *Model) Manager() *event.Manager { return m.mgr }

// State is the shared UI state store.
func (m *Model) State() *uistate.Store { return m.store }

func (m *Model) Library() *library.Library { return m.lib }

func (m *Model) Loader() *media.Loader { return m.loader }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitPost(), m.reloadCmd(), m.tickCmd())
}

// post hands fn to the update loop. It never blocks the caller.
func (m *Model) post(fn func()) {
	select {
	case m.posts <- fn:
	default:
		go func() { m.posts <- fn }()
	}
}

func (m *Model) waitPost() tea.Cmd {
	ch := m.posts
	return func() tea.Msg { return runMsg{fn: <-ch} }
}

func (m *Model) tickCmd() tea.Cmd {
	hz := m.cfg.UI.RefreshHz
	if hz <= 0 {
		hz = 4
	}
	if hz > 30 {
		hz = 30
	}
	return tea.Tick(time.Second/time.Duration(hz), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) reloadCmd() tea.Cmd {
	db := m.db
	return func() tea.Msg {
		if db == nil {
			return reloadMsg{}
		}
		models, err := db.ListModels(state.ModelFilter{})
		return reloadMsg{models: models, err: err}
	}
}

func (m *Model) scanCmd() tea.Cmd {
	if m.db == nil || m.scanning {
		return nil
	}
	if len(m.cfg.Library.Roots) == 0 {
		m.addToast("no library roots configured")
		return nil
	}
	m.scanning = true
	roots := append([]string(nil), m.cfg.Library.Roots...)
	s := m.scan
	return func() tea.Msg {
		start := time.Now()
		res, err := s.Scan(context.Background(), roots)
		return scanDoneMsg{res: res, err: err, dur: time.Since(start)}
	}
}

// enrichCmd looks models up by hash in the background.
func (m *Model) enrichCmd(models []state.Model) tea.Cmd {
	if m.enrich == nil {
		m.addToast("metadata lookups are disabled (metadata.civitai.enabled)")
		return nil
	}
	if m.enriching || len(models) == 0 {
		return nil
	}
	m.enriching = true
	e := m.enrich
	return func() tea.Msg {
		res, err := e.Enrich(context.Background(), models)
		return enrichDoneMsg{res: res, err: err}
	}
}

// linkCmd exposes models in the configured app folders.
func (m *Model) linkCmd(models []state.Model) tea.Cmd {
	if len(m.cfg.Links.Mapping) == 0 {
		m.addToast("no link targets configured (links.mapping)")
		return nil
	}
	if len(models) == 0 {
		return nil
	}
	cfg := m.cfg
	return func() tea.Msg {
		return linkDoneMsg{res: linker.LinkModels(cfg, models)}
	}
}

// queue adds a command to run after the current event.
func (m *Model) queue(c tea.Cmd) {
	if c != nil {
		m.cmds = append(m.cmds, c)
	}
}

func (m *Model) flush() tea.Cmd {
	if len(m.cmds) == 0 {
		return nil
	}
	c := tea.Batch(m.cmds...)
	m.cmds = nil
	return c
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.w, m.h = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.info.Width, m.info.Height = clamp(msg.Width-10, 20, 100), clamp(msg.Height-8, 5, 40)
		m.search.Width = clamp(msg.Width-4, 10, 200)
		m.doc.emit(&event.Event{Type: event.Resize, X: msg.Width, Y: msg.Height, Path: []string{regionRoot}, Payload: msg, Time: time.Now()})
		m.relayout()

	case tea.KeyMsg:
		m.doc.emit(keyEvent(msg, m.keyPath()))
		m.afterInput(true)

	case tea.MouseMsg:
		if ev, ok := mouseEvent(msg, m.hitPath(msg.X, msg.Y)); ok {
			m.doc.emit(ev)
			m.afterInput(false)
		}

	case tea.FocusMsg:
		m.doc.emit(&event.Event{Type: event.Focus, Path: []string{regionRoot}, Time: time.Now()})

	case tea.BlurMsg:
		m.doc.emit(&event.Event{Type: event.Blur, Path: []string{regionRoot}, Time: time.Now()})

	case runMsg:
		if msg.fn != nil {
			msg.fn()
		}
		m.queue(m.waitPost())

	case tickMsg:
		m.lib.Tick()
		m.gcToasts()
		m.ticks++
		st := m.loader.Stats()
		m.metrics.ObserveLoader(st.Loaded, st.Discarded, st.HoverLoads, st.PeakActive)
		if m.ticks%40 == 0 {
			if err := m.metrics.Write(); err != nil {
				m.log.Warnf("write metrics: %v", err)
			}
		}
		m.queue(m.tickCmd())

	case reloadMsg:
		if msg.err != nil {
			m.log.Errorf("load library: %v", msg.err)
			m.addToast("load library failed: " + msg.err.Error())
			break
		}
		m.applyModels(msg.models)

	case linkDoneMsg:
		for _, err := range msg.res.Errors {
			m.log.Warnf("link: %v", err)
		}
		m.addToast(linkSummary(msg.res))

	case enrichDoneMsg:
		m.enriching = false
		if msg.err != nil {
			m.addToast("lookup failed: " + msg.err.Error())
			break
		}
		m.addToast(enrichSummary(msg.res))
		m.queue(m.reloadCmd())

	case scanDoneMsg:
		m.scanning = false
		if msg.err != nil {
			m.addToast("scan failed: " + msg.err.Error())
			break
		}
		m.metrics.ObserveScan(msg.res.FilesScanned, msg.dur)
		m.addToast(scanSummary(msg.res))
		m.queue(m.reloadCmd())
	}
	return m, m.flush()
}

// applyModels swaps in a new model set, releasing cards that went away.
func (m *Model) applyModels(models []state.Model) {
	for _, c := range m.lib.Load(models) {
		m.loader.Forget(c)
		if c == m.hovered {
			m.setHover(nil)
		}
	}
	m.relayout()
	m.syncHover()
}

// relayout recomputes row positions after the view changed and lets the
// loader observe every visible card.
func (m *Model) relayout() {
	view := m.lib.View()
	rows := make(map[*library.Card]int, len(view))
	for i, c := range view {
		rows[c] = i
	}
	m.rows = rows
	m.clampCursor()
	m.ensureVisible()
	m.vp.Scroll(m.top, m.listHeight())
	m.vp.SetLayout(m.rowOf)
	if m.previews {
		for _, c := range view {
			m.loader.Observe(c)
		}
	}
}

func (m *Model) rowOf(el media.Element) (int, bool) {
	c, ok := el.(*library.Card)
	if !ok {
		return 0, false
	}
	i, ok := m.rows[c]
	return i, ok
}

// afterInput keeps cursor, scroll window and hover consistent after an
// event was handled.
func (m *Model) afterInput(fromKeyboard bool) {
	if len(m.rows) != m.lib.Len() || m.viewChanged() {
		m.relayout()
	} else {
		m.clampCursor()
		m.ensureVisible()
		m.vp.Scroll(m.top, m.listHeight())
	}
	if fromKeyboard {
		m.syncHover()
	}
	_ = m.store.Set(keyCursor, m.cursor)
}

func (m *Model) viewChanged() bool {
	for i, c := range m.lib.View() {
		if r, ok := m.rows[c]; !ok || r != i {
			return true
		}
	}
	return false
}

func (m *Model) clampCursor() {
	n := m.lib.Len()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) ensureVisible() {
	h := m.listHeight()
	if m.cursor < m.top {
		m.top = m.cursor
	}
	if m.cursor >= m.top+h {
		m.top = m.cursor - h + 1
	}
	if last := m.lib.Len() - h; m.top > last {
		m.top = last
	}
	if m.top < 0 {
		m.top = 0
	}
}

// Layout: header, search line, list, preview pane, footer.
const (
	headerLines  = 1
	searchLine   = 1
	previewLines = 3
	footerLines  = 1
)

func (m *Model) listTop() int { return headerLines + searchLine }

func (m *Model) listHeight() int {
	if m.h == 0 {
		return 10
	}
	return clamp(m.h-headerLines-searchLine-previewLines-footerLines, 1, m.h)
}

// keyPath is the region path for keyboard events: the focused region first.
func (m *Model) keyPath() []string {
	switch {
	case m.modal != modalNone:
		return []string{regionModal, regionRoot}
	case m.store.Bool(uistate.NodeSelectorActive):
		return []string{regionPicker, regionRoot}
	case m.searching:
		return []string{regionSearch, regionLibrary, regionRoot}
	case m.lib.Len() > 0:
		return []string{cardRegion(m.cursor), regionLibrary, regionRoot}
	}
	return []string{regionLibrary, regionRoot}
}

// hitPath maps a screen cell to the regions under it.
func (m *Model) hitPath(x, y int) []string {
	switch {
	case m.modal != modalNone:
		return []string{regionModal, regionRoot}
	case m.store.Bool(uistate.NodeSelectorActive):
		return []string{regionPicker, regionRoot}
	case y == headerLines:
		return []string{regionSearch, regionRoot}
	}
	top := m.listTop()
	if y >= top && y < top+m.listHeight() {
		if i := m.top + y - top; i < m.lib.Len() {
			return []string{cardRegion(i), regionLibrary, regionRoot}
		}
		return []string{regionLibrary, regionRoot}
	}
	return []string{regionRoot}
}

// setHover moves the preview hover to c, pausing the previous card.
func (m *Model) setHover(c *library.Card) {
	if c == m.hovered {
		return
	}
	if m.hovered != nil {
		m.loader.HoverLeave(m.hovered)
	}
	m.hovered = c
	if c != nil && m.previews && !m.blurred {
		m.loader.HoverEnter(c)
	}
}

func (m *Model) syncHover() {
	if m.modal != modalNone {
		return
	}
	m.setHover(m.lib.At(m.cursor))
}

func (m *Model) current() *library.Card { return m.lib.At(m.cursor) }

func (m *Model) addToast(s string) {
	m.toasts = append(m.toasts, toast{msg: s, when: time.Now(), ttl: 5 * time.Second})
	m.gcToasts()
}

func (m *Model) gcToasts() {
	now := time.Now()
	dst := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Sub(t.when) < t.ttl {
			dst = append(dst, t)
		}
	}
	m.toasts = dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
