package tui

import (
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxwalker/modshelf/internal/event"
)

// Region names used on event paths.
const (
	regionRoot    = "root"
	regionLibrary = "library"
	regionSearch  = "search"
	regionModal   = "modal"
	regionPicker  = "picker"
	cardPrefix    = "card:"
)

// document is the event.Target for the TUI: one listener slot per event
// type, fed from bubbletea messages.
type document struct {
	mu        sync.Mutex
	listeners map[string]func(*event.Event)
	attaches  int
	onEmit    func(eventType string)
}

func newDocument() *document {
	return &document{listeners: map[string]func(*event.Event){}}
}

func (d *document) Listen(eventType string, fn func(*event.Event)) {
	d.mu.Lock()
	d.listeners[eventType] = fn
	d.attaches++
	d.mu.Unlock()
}

func (d *document) Unlisten(eventType string) {
	d.mu.Lock()
	delete(d.listeners, eventType)
	d.mu.Unlock()
}

func (d *document) listening(eventType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.listeners[eventType]
	return ok
}

// emit delivers ev to the listener for its type and reports whether there
// was one.
func (d *document) emit(ev *event.Event) bool {
	d.mu.Lock()
	fn := d.listeners[ev.Type]
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	if d.onEmit != nil {
		d.onEmit(ev.Type)
	}
	fn(ev)
	return true
}

func keyEvent(msg tea.KeyMsg, path []string) *event.Event {
	return &event.Event{Type: event.KeyDown, Key: msg.String(), Path: path, Payload: msg, Time: time.Now()}
}

// mouseEvent maps a mouse message to an event; ok is false for messages we
// do not forward.
func mouseEvent(msg tea.MouseMsg, path []string) (*event.Event, bool) {
	ev := &event.Event{X: msg.X, Y: msg.Y, Path: path, Payload: msg, Time: time.Now()}
	switch msg.Type {
	case tea.MouseLeft:
		ev.Type, ev.Button = event.MouseDown, "left"
	case tea.MouseRight:
		ev.Type, ev.Button = event.MouseDown, "right"
	case tea.MouseMotion:
		ev.Type = event.MouseMove
	case tea.MouseRelease:
		ev.Type = event.MouseUp
	case tea.MouseWheelUp:
		ev.Type, ev.Button = event.Wheel, "up"
	case tea.MouseWheelDown:
		ev.Type, ev.Button = event.Wheel, "down"
	default:
		return nil, false
	}
	return ev, true
}

func cardRegion(i int) string { return cardPrefix + strconv.Itoa(i) }

// cardIndex parses the innermost card region on ev's path.
func cardIndex(ev *event.Event) (int, bool) {
	r, ok := ev.Region(cardPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(r[len(cardPrefix):])
	if err != nil {
		return 0, false
	}
	return i, true
}
