package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxwalker/modshelf/internal/config"
	"github.com/jxwalker/modshelf/internal/event"
	"github.com/jxwalker/modshelf/internal/library"
	"github.com/jxwalker/modshelf/internal/media"
	"github.com/jxwalker/modshelf/internal/metadata"
	"github.com/jxwalker/modshelf/internal/state"
	"github.com/jxwalker/modshelf/internal/testutil"
	"github.com/jxwalker/modshelf/internal/uistate"
)

type harness struct {
	*Model
	db     *state.DB
	copied []string
}

func seedModels() []state.Model {
	return []state.Model{
		{Path: "/lib/loras/flux-detail-lora.safetensors", Name: "flux-detail-lora", Type: "sd.lora", BaseModel: "flux", Size: 150 << 20},
		{Path: "/lib/checkpoints/sdxl-base.safetensors", Name: "sdxl-base", Type: "sd.checkpoint", BaseModel: "sdxl", Size: 6 << 30},
		{Path: "/lib/loras/pony-style.safetensors", Name: "pony-style", Type: "sd.lora", BaseModel: "pony", Size: 200 << 20},
	}
}

// setupTestModel builds a sized model over an in-memory database seeded
// with models (seedModels when none are given).
func setupTestModel(t *testing.T, mutate func(*config.Config), models ...state.Model) *harness {
	t.Helper()
	if len(models) == 0 {
		models = seedModels()
	}
	db := testutil.TestDB(t)
	testutil.SeedModels(t, db, models...)

	cfg := &config.Config{
		Version:  1,
		General:  config.General{DataRoot: t.TempDir()},
		Previews: config.Previews{Enabled: true, DelayMS: 1},
		UI:       config.UIOptions{PersistState: true, AutoplayOnHover: true},
	}
	if mutate != nil {
		mutate(cfg)
	}
	h := &harness{db: db}
	h.Model = New(cfg, db, WithClipboard(func(s string) error {
		h.copied = append(h.copied, s)
		return nil
	}))
	h.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	h.Update(h.reloadCmd()())
	return h
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func (h *harness) press(keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = h.Update(keyMsg(k))
	}
	return cmd
}

func (h *harness) mouse(typ tea.MouseEventType, row int) {
	h.Update(tea.MouseMsg{X: 4, Y: h.listTop() + row, Type: typ})
}

// drain runs posted loop callbacks until cond holds.
func (h *harness) drain(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for loop callbacks")
		}
		select {
		case fn := <-h.posts:
			h.Update(runMsg{fn: fn})
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// collect runs cmd and flattens batches. Only use on commands that do not
// block.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if b, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range b {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func (h *harness) names() []string {
	var out []string
	for _, c := range h.lib.View() {
		out = append(out, c.Model.Name)
	}
	return out
}

func TestNavigationMovesCursor(t *testing.T) {
	h := setupTestModel(t, nil)
	if got := strings.Join(h.names(), ","); got != "flux-detail-lora,pony-style,sdxl-base" {
		t.Fatalf("unexpected order: %s", got)
	}
	tests := []struct {
		key  string
		want int
	}{
		{"j", 1},
		{"down", 2},
		{"j", 2},
		{"k", 1},
		{"g", 0},
		{"G", 2},
	}
	for _, tt := range tests {
		h.press(tt.key)
		if h.cursor != tt.want {
			t.Fatalf("after %q cursor=%d, want %d", tt.key, h.cursor, tt.want)
		}
	}
	if h.hovered != h.lib.At(2) {
		t.Fatal("keyboard navigation should move the hover")
	}
}

func TestModalClaimsKeys(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("enter")
	if h.modal != modalInfo || !h.store.Bool(uistate.ModalOpen) {
		t.Fatal("enter should open the details modal")
	}
	if v := h.View(); !strings.Contains(v, "flux-detail-lora") || !strings.Contains(v, "Base model") {
		t.Fatalf("modal view missing details:\n%s", v)
	}
	h.press("j", "f", "b")
	if h.cursor != 0 {
		t.Fatal("navigation must be skipped while the modal is open")
	}
	if h.store.Bool(uistate.BulkMode) || h.lib.At(0).Model.Favorite {
		t.Fatal("list handlers ran behind the modal")
	}
	h.press("esc")
	if h.modal != modalNone || h.store.Bool(uistate.ModalOpen) {
		t.Fatal("esc should close the modal")
	}
	h.press("j")
	if h.cursor != 1 {
		t.Fatal("navigation should resume after the modal closes")
	}
}

func TestHelpModalListsHandlers(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("?")
	if h.modal != modalHelp {
		t.Fatal("? should open help")
	}
	content := h.renderHelpModal()
	for _, want := range []string{"keydown", "modal(1000)@modal", "nav(0)", "skipWhenModalOpen"} {
		if !strings.Contains(content, want) {
			t.Errorf("help missing %q:\n%s", want, content)
		}
	}
}

func TestBulkSelectionAndFavorite(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("b")
	if !h.store.Bool(uistate.BulkMode) {
		t.Fatal("b should enter bulk mode")
	}
	h.press("space")
	if h.lib.SelectedCount() != 1 || h.cursor != 1 {
		t.Fatalf("space should select and advance, selected=%d cursor=%d", h.lib.SelectedCount(), h.cursor)
	}
	h.press("a")
	if h.lib.SelectedCount() != 3 {
		t.Fatalf("a should select all, got %d", h.lib.SelectedCount())
	}
	h.press("f")
	for _, md := range seedModels() {
		got, err := h.db.GetModel(md.Path)
		if err != nil || got == nil || !got.Favorite {
			t.Fatalf("%s not starred in db: %+v %v", md.Path, got, err)
		}
	}
	h.press("y")
	if len(h.copied) != 1 || strings.Count(h.copied[0], "\n") != 2 {
		t.Fatalf("bulk copy should copy every selected path: %q", h.copied)
	}
	h.press("esc")
	if h.store.Bool(uistate.BulkMode) || h.lib.SelectedCount() != 0 {
		t.Fatal("esc should leave bulk mode and clear the selection")
	}
}

func TestMarqueeDragSelectsRange(t *testing.T) {
	h := setupTestModel(t, nil)

	// outside bulk mode a click only moves the cursor
	h.mouse(tea.MouseLeft, 1)
	if h.cursor != 1 || h.store.Bool(uistate.MarqueeActive) {
		t.Fatal("click should select the row without starting a marquee")
	}

	h.press("b")
	h.mouse(tea.MouseLeft, 0)
	if !h.store.Bool(uistate.MarqueeActive) {
		t.Fatal("press in bulk mode should start a marquee")
	}
	h.mouse(tea.MouseMotion, 2)
	if h.lib.SelectedCount() != 3 {
		t.Fatalf("drag should select rows 0..2, got %d", h.lib.SelectedCount())
	}
	h.mouse(tea.MouseRelease, 2)
	if h.store.Bool(uistate.MarqueeActive) {
		t.Fatal("release should end the marquee")
	}
	h.mouse(tea.MouseMotion, 0)
	if h.lib.SelectedCount() != 3 {
		t.Fatal("motion after release must not change the selection")
	}
}

func TestSearchFilters(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("/")
	if !h.searching {
		t.Fatal("/ should focus search")
	}
	h.press("flux")
	if h.lib.Len() != 1 || h.lib.At(0).Model.Name != "flux-detail-lora" {
		t.Fatalf("unexpected results: %v", h.names())
	}
	h.press("enter")
	if h.searching {
		t.Fatal("enter should leave the search line")
	}
	if got := h.store.String(keyQuery, ""); got != "flux" {
		t.Fatalf("query not stored: %q", got)
	}
	saved, err := h.db.LoadUIState()
	if err != nil {
		t.Fatal(err)
	}
	if saved[keyQuery] != "flux" {
		t.Fatalf("query not mirrored: %v", saved)
	}

	h.press("/", "esc")
	if h.lib.Len() != 3 || h.lib.Query() != "" {
		t.Fatal("esc in search should clear the query")
	}
}

func TestPickerFiltersByType(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("t")
	if !h.store.Bool(uistate.NodeSelectorActive) {
		t.Fatal("t should open the type picker")
	}
	h.press("j")
	if h.cursor != 0 || h.pickerIdx != 1 {
		t.Fatalf("picker should own j, cursor=%d idx=%d", h.cursor, h.pickerIdx)
	}
	want := h.picker[1]
	h.press("enter")
	if h.store.Bool(uistate.NodeSelectorActive) {
		t.Fatal("enter should close the picker")
	}
	for _, c := range h.lib.View() {
		if c.Model.Type != want {
			t.Fatalf("filter %q let through %s", want, c.Model.Type)
		}
	}
	if h.lib.Len() == 0 {
		t.Fatal("filter removed everything")
	}
}

func TestFavoritesAndSortPersist(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("f")
	got, _ := h.db.GetModel(seedModels()[0].Path)
	if got == nil || !got.Favorite {
		t.Fatal("favorite not persisted")
	}
	h.press("F")
	if h.lib.Len() != 1 {
		t.Fatalf("favorites only should show one model, got %d", h.lib.Len())
	}
	h.press("F", "s")
	if h.lib.SortBy() != library.SortSize || h.store.String(keySort, "") != library.SortSize {
		t.Fatalf("sort not cycled/stored: %s", h.lib.SortBy())
	}
	if h.lib.At(0).Model.Name != "sdxl-base" {
		t.Fatalf("size sort should put the largest first: %v", h.names())
	}
}

func TestCopyPath(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("y")
	if len(h.copied) != 1 || h.copied[0] != seedModels()[0].Path {
		t.Fatalf("copied %q", h.copied)
	}
}

func TestForceQuit(t *testing.T) {
	h := setupTestModel(t, nil)
	h.press("enter")
	var quit bool
	for _, msg := range collect(h.press("ctrl+c")) {
		if _, ok := msg.(tea.QuitMsg); ok {
			quit = true
		}
	}
	if !quit {
		t.Fatal("ctrl+c should quit even with the modal open")
	}
}

func TestHandlerFaultIsolated(t *testing.T) {
	h := setupTestModel(t, nil)
	err := h.Manager().Register(event.KeyDown, "plugin.broken", func(*event.Event) bool {
		panic("boom")
	}, event.WithPriority(5000))
	if err != nil {
		t.Fatal(err)
	}
	h.press("j")
	if h.cursor != 1 {
		t.Fatal("a panicking handler must not stop later handlers")
	}
	if h.Manager().Stats().Faults != 1 {
		t.Fatalf("faults = %d", h.Manager().Stats().Faults)
	}
	if !strings.Contains(h.renderFooter(), "plugin.broken") {
		t.Fatalf("fault should be surfaced: %q", h.renderFooter())
	}
}

func TestDocumentListenersFollowRegistrations(t *testing.T) {
	h := setupTestModel(t, nil)
	before := h.doc.attaches
	noop := func(*event.Event) bool { return false }
	_ = h.mgr.Register("custom", "a", noop)
	_ = h.mgr.Register("custom", "b", noop)
	if h.doc.attaches != before+1 || !h.doc.listening("custom") {
		t.Fatal("first registration should attach exactly once")
	}
	h.mgr.Unregister("custom", "a")
	if !h.doc.listening("custom") {
		t.Fatal("listener detached while a registration remains")
	}
	h.mgr.Unregister("custom", "b")
	if h.doc.listening("custom") {
		t.Fatal("listener should detach with the last registration")
	}
}

func previewModels(t *testing.T) []state.Model {
	ms := seedModels()
	for i := range ms {
		ms[i].PreviewURL = testutil.TempFile(t, ms[i].Name+".preview.mp4", "video")
	}
	return ms
}

func TestHoverLoadsAndPlaysPreview(t *testing.T) {
	h := setupTestModel(t, nil, previewModels(t)...)
	c := h.lib.At(0)
	if h.hovered != c {
		t.Fatal("first row should be hovered after load")
	}
	h.drain(t, func() bool { return c.Preview().Status == library.PreviewReady })
	p := c.Preview()
	if !p.Playing || p.Local == "" {
		t.Fatalf("hovered preview should play: %+v", p)
	}
	if h.loader.State(c) != media.Loaded {
		t.Fatalf("state = %v", h.loader.State(c))
	}

	h.press("j")
	if c.Preview().Playing {
		t.Fatal("leaving a card should pause it")
	}
	h.drain(t, func() bool { return h.lib.At(1).Preview().Playing })
}

func TestBlurPausesPreview(t *testing.T) {
	h := setupTestModel(t, nil, previewModels(t)...)
	c := h.lib.At(0)
	h.drain(t, func() bool { return c.Preview().Status == library.PreviewReady })
	h.Update(tea.BlurMsg{})
	if c.Preview().Playing {
		t.Fatal("blur should pause the hovered preview")
	}
	h.Update(tea.FocusMsg{})
	if !c.Preview().Playing {
		t.Fatal("focus should resume the hovered preview")
	}
}

func TestVisibleCardsLoadThroughQueue(t *testing.T) {
	h := setupTestModel(t, func(c *config.Config) {
		c.Previews.MaxConcurrency = 1
	}, previewModels(t)...)
	h.drain(t, func() bool {
		for _, c := range h.lib.View() {
			if h.loader.State(c) != media.Loaded {
				return false
			}
		}
		return true
	})
	if st := h.loader.Stats(); st.PeakActive > 1 {
		t.Fatalf("concurrency cap exceeded: %d", st.PeakActive)
	}
	for i, c := range h.lib.View() {
		if i > 0 && c.Preview().Playing {
			t.Fatalf("%s plays without hover", c.Model.Name)
		}
	}
}

func TestPreviewsDisabled(t *testing.T) {
	h := setupTestModel(t, func(c *config.Config) { c.Previews.Enabled = false }, previewModels(t)...)
	c := h.lib.At(0)
	if c.Preview().Status != library.PreviewNone {
		t.Fatal("previews should stay off")
	}
	if h.loader.QueueLen() != 0 || h.loader.State(c) == media.Loaded {
		t.Fatal("loader should not be fed when previews are disabled")
	}
}

func TestRescanPicksUpFiles(t *testing.T) {
	root := t.TempDir()
	h := setupTestModel(t, func(c *config.Config) {
		c.Library.Roots = []string{root}
	})
	if err := os.WriteFile(filepath.Join(root, "new-model.safetensors"), []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}

	msgs := collect(h.press("r"))
	if len(msgs) != 1 {
		t.Fatalf("expected a scan result, got %v", msgs)
	}
	done, ok := msgs[0].(scanDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("scan failed: %+v", msgs[0])
	}
	if !h.scanning {
		t.Fatal("scan should be marked in progress")
	}
	_, cmd := h.Update(done)
	for _, msg := range collect(cmd) {
		h.Update(msg)
	}
	if h.scanning || h.lib.Total() != 4 || h.lib.Card(filepath.Join(root, "new-model.safetensors")) == nil {
		t.Fatalf("library after rescan: %v", h.names())
	}
}

func TestViewLayout(t *testing.T) {
	h := setupTestModel(t, nil)
	v := h.View()
	if !strings.Contains(v, "3/3 models") || !strings.Contains(v, "sdxl-base") {
		t.Fatalf("unexpected view:\n%s", v)
	}
	if n := strings.Count(v, "\n") + 1; n != 30 {
		t.Fatalf("view has %d lines, want 30", n)
	}
	h.press("b")
	if !strings.Contains(h.View(), "BULK 0 selected") {
		t.Fatal("header should show bulk mode")
	}
}

type stubLookup struct{ info *metadata.Info }

func (s stubLookup) LookupByHash(context.Context, string) (*metadata.Info, error) {
	if s.info == nil {
		return nil, metadata.ErrNotFound
	}
	cp := *s.info
	return &cp, nil
}

func TestEnrichCurrentCard(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "inkwash.safetensors")
	if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}
	info := &metadata.Info{ID: 7, ModelID: 70, Name: "v1", BaseModel: "Pony", TrainedWords: []string{"inkwash"}, Model: metadata.ModelRef{Name: "Ink Wash", Type: "LORA"}}

	db := testutil.TestDB(t)
	testutil.SeedModels(t, db, state.Model{Path: p, Name: "inkwash", Type: "sd.checkpoint", Size: 7})
	cfg := &config.Config{Version: 1, General: config.General{DataRoot: t.TempDir()}}
	h := &harness{db: db, Model: New(cfg, db, WithLookup(stubLookup{info: info}))}
	h.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	h.Update(h.reloadCmd()())

	msgs := collect(h.press("e"))
	if len(msgs) != 1 {
		t.Fatalf("expected a lookup result, got %v", msgs)
	}
	_, cmd := h.Update(msgs[0])
	for _, msg := range collect(cmd) {
		h.Update(msg)
	}
	c := h.lib.At(0)
	if c.Model.Type != "sd.lora" || c.Model.BaseModel != "pony" {
		t.Fatalf("card not refreshed: %+v", c.Model)
	}
	if !strings.Contains(h.renderInfo(c), "Ink Wash v1") {
		t.Fatalf("details should show the sidecar:\n%s", h.renderInfo(c))
	}
}

func TestEnrichDisabled(t *testing.T) {
	h := setupTestModel(t, nil)
	if cmd := h.press("e"); cmd != nil {
		t.Fatal("lookup should not run when disabled")
	}
	if !strings.Contains(h.renderFooter(), "disabled") {
		t.Fatalf("footer: %q", h.renderFooter())
	}
}

func TestBulkLinkSelected(t *testing.T) {
	root := t.TempDir()
	apps := t.TempDir()
	var models []state.Model
	for _, name := range []string{"ink", "moss"} {
		p := filepath.Join(root, name+".safetensors")
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		models = append(models, state.Model{Path: p, Name: name, Type: "sd.lora", Size: 4})
	}
	h := setupTestModel(t, func(c *config.Config) {
		c.Links = config.Links{
			Apps:    map[string]config.LinkApp{"comfyui": {Base: apps, Paths: map[string]string{"loras": "models/loras"}}},
			Mapping: []config.LinkRule{{Match: "sd.lora", Targets: []config.LinkTarget{{App: "comfyui", PathKey: "loras"}}}},
		}
	}, models...)

	h.press("b", "a")
	msgs := collect(h.press("L"))
	if len(msgs) != 1 {
		t.Fatalf("expected a link result, got %v", msgs)
	}
	h.Update(msgs[0])
	for _, name := range []string{"ink", "moss"} {
		if _, err := os.Lstat(filepath.Join(apps, "models", "loras", name+".safetensors")); err != nil {
			t.Fatalf("%s not linked: %v", name, err)
		}
	}
	if !strings.Contains(h.renderFooter(), "linked 2") {
		t.Fatalf("footer: %q", h.renderFooter())
	}
}

func TestLinkWithoutMapping(t *testing.T) {
	h := setupTestModel(t, nil)
	if cmd := h.press("L"); cmd != nil {
		t.Fatal("link should not run without targets")
	}
}

func TestPointerMotionHoversCard(t *testing.T) {
	h := setupTestModel(t, nil, previewModels(t)...)
	first := h.lib.At(0)
	h.drain(t, func() bool { return first.Preview().Playing })

	h.mouse(tea.MouseMotion, 2)
	target := h.lib.At(2)
	if h.hovered != target {
		t.Fatalf("pointer motion should hover row 2, hovered %v", h.hovered)
	}
	if first.Preview().Playing {
		t.Fatal("the previously hovered card should pause")
	}
	h.drain(t, func() bool { return target.Preview().Playing })
	if h.cursor != 0 {
		t.Fatalf("hover must not move the cursor, cursor=%d", h.cursor)
	}
}

func TestAutoplayWithoutHover(t *testing.T) {
	h := setupTestModel(t, func(c *config.Config) {
		c.UI.AutoplayOnHover = false
	}, previewModels(t)...)
	other := h.lib.At(1)
	if v, _ := other.Attr(media.AttrAutoplay); v != "true" {
		t.Fatal("cards should carry data-autoplay when autoplay_on_hover is off")
	}
	h.drain(t, func() bool { return other.Preview().Playing })
	if h.hovered == other {
		t.Fatal("row 1 should play without being hovered")
	}
}
