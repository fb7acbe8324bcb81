package event

import "time"

// Common event types produced by the terminal front-end.
const (
	KeyDown   = "keydown"
	MouseDown = "mousedown"
	MouseMove = "mousemove"
	MouseUp   = "mouseup"
	Wheel     = "wheel"
	Focus     = "focus"
	Blur      = "blur"
	Resize    = "resize"
)

// Event is one occurrence of an input event.
type Event struct {
	Type string
	// Key is the key name for keyboard events ("enter", "ctrl+c", "j").
	Key string
	// X, Y are cell coordinates for mouse events.
	X, Y   int
	Button string
	// Path lists the UI regions under the event, innermost first
	// ("card:3", "library", "root").
	Path []string
	// Payload carries source-specific data (the raw tea message, sizes).
	Payload any
	Time    time.Time

	defaultPrevented bool
}

// Closest reports whether selector names any region on the event path.
func (e *Event) Closest(selector string) bool {
	for _, p := range e.Path {
		if p == selector {
			return true
		}
	}
	return false
}

// Region returns the innermost region with the given prefix (e.g. "card:")
// and whether one was found.
func (e *Event) Region(prefix string) (string, bool) {
	for _, p := range e.Path {
		if len(p) >= len(prefix) && p[:len(prefix)] == prefix {
			return p, true
		}
	}
	return "", false
}

// PreventDefault tells the front-end not to run its built-in behavior for
// this event (for example, forwarding a key to a focused text input).
func (e *Event) PreventDefault() { e.defaultPrevented = true }

func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }
