package media

import (
	"sort"
	"sync"
)

// IntersectFunc is called when an observed element enters or leaves the
// observation area.
type IntersectFunc func(el Element, intersecting bool)

// Observer watches elements for proximity to the visible area.
type Observer interface {
	Observe(el Element)
	Unobserve(el Element)
}

// RowFunc reports the layout row of el, or false if it is not laid out.
type RowFunc func(el Element) (row int, ok bool)

// Viewport is an Observer for a vertically scrolling list. An element
// intersects when its row lies within [top-margin, top+height+margin).
type Viewport struct {
	mu       sync.Mutex
	margin   int
	top      int
	height   int
	rowOf    RowFunc
	cb       IntersectFunc
	observed map[Element]bool // value: last reported intersecting state
}

// NewViewport creates a viewport with the given margin in rows.
func NewViewport(margin int, cb IntersectFunc) *Viewport {
	if margin < 0 {
		margin = 0
	}
	return &Viewport{margin: margin, cb: cb, observed: map[Element]bool{}}
}

// Observe starts watching el. Like an intersection observer, the current
// state is reported immediately if el is already inside the area.
func (v *Viewport) Observe(el Element) {
	v.mu.Lock()
	if _, ok := v.observed[el]; ok {
		v.mu.Unlock()
		return
	}
	in := v.inside(el)
	v.observed[el] = in
	cb := v.cb
	v.mu.Unlock()
	if in && cb != nil {
		cb(el, true)
	}
}

func (v *Viewport) Unobserve(el Element) {
	v.mu.Lock()
	delete(v.observed, el)
	v.mu.Unlock()
}

// Observing reports whether el is watched.
func (v *Viewport) Observing(el Element) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.observed[el]
	return ok
}

// SetLayout replaces the row lookup and re-evaluates every element.
func (v *Viewport) SetLayout(rowOf RowFunc) {
	v.mu.Lock()
	v.rowOf = rowOf
	v.mu.Unlock()
	v.evaluate()
}

// Scroll moves the visible window and reports transitions.
func (v *Viewport) Scroll(top, height int) {
	v.mu.Lock()
	v.top, v.height = top, height
	v.mu.Unlock()
	v.evaluate()
}

type transition struct {
	el  Element
	in  bool
	row int
}

func (v *Viewport) evaluate() {
	v.mu.Lock()
	var changed []transition
	for el, was := range v.observed {
		in := v.inside(el)
		if in != was {
			v.observed[el] = in
			var row int
			if v.rowOf != nil {
				row, _ = v.rowOf(el)
			}
			changed = append(changed, transition{el: el, in: in, row: row})
		}
	}
	// Report top to bottom so the loader queues in layout order.
	sort.SliceStable(changed, func(i, j int) bool { return changed[i].row < changed[j].row })
	cb := v.cb
	v.mu.Unlock()
	if cb == nil {
		return
	}
	for _, t := range changed {
		cb(t.el, t.in)
	}
}

func (v *Viewport) inside(el Element) bool {
	if v.rowOf == nil || v.height <= 0 {
		return false
	}
	row, ok := v.rowOf(el)
	if !ok {
		return false
	}
	return row >= v.top-v.margin && row < v.top+v.height+v.margin
}
