package media

import (
	"sync"
	"time"

	"github.com/jxwalker/modshelf/internal/logging"
)

// Defaults observed to keep bursts of preview loads smooth.
const (
	DefaultMaxConcurrency = 2
	DefaultDelay          = 120 * time.Millisecond
)

// Config tunes the Loader.
type Config struct {
	// MaxConcurrency caps loads in flight. Zero means DefaultMaxConcurrency.
	MaxConcurrency int
	// Delay separates pump passes while the queue is non-empty. Zero means
	// DefaultDelay; use a negative value for no delay.
	Delay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Delay == 0 {
		c.Delay = DefaultDelay
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}

// Stats are cumulative Loader counters.
type Stats struct {
	Enqueued   uint64
	Loaded     uint64
	Discarded  uint64
	HoverLoads uint64
	PeakActive int
}

// Loader is the bounded, throttled preview load queue.
type Loader struct {
	cfg   Config
	sched Scheduler
	obs   Observer
	log   *logging.Logger

	mu          sync.Mutex
	queue       []Element
	states      map[Element]TaskState // only Observed, Queued and Loading are tracked
	active      int
	pumpPending bool
	stats       Stats
	onLoaded    func(Element)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger.
func WithLoaderLogger(l *logging.Logger) LoaderOption {
	return func(ld *Loader) { ld.log = l }
}

// OnLoaded is called after a source has been attached.
func OnLoaded(fn func(Element)) LoaderOption {
	return func(ld *Loader) { ld.onLoaded = fn }
}

// NewLoader creates a Loader. newObserver receives the Loader's intersection
// callback and returns the Observer to use.
func NewLoader(cfg Config, sched Scheduler, newObserver func(IntersectFunc) Observer, opts ...LoaderOption) *Loader {
	l := &Loader{
		cfg:    cfg.withDefaults(),
		sched:  sched,
		states: map[Element]TaskState{},
	}
	for _, o := range opts {
		o(l)
	}
	l.obs = newObserver(l.intersect)
	return l
}

// Observe starts proximity tracking for el. It is a no-op for loaded
// elements and for elements already observed, queued or loading.
func (l *Loader) Observe(el Element) {
	if el == nil || IsLoaded(el) {
		return
	}
	l.mu.Lock()
	if _, tracked := l.states[el]; tracked {
		l.mu.Unlock()
		return
	}
	l.states[el] = Observed
	l.mu.Unlock()
	l.obs.Observe(el)
}

// intersect is the Observer callback. Once an element is queued its load
// proceeds even if it scrolls away again.
func (l *Loader) intersect(el Element, intersecting bool) {
	if !intersecting {
		return
	}
	l.mu.Lock()
	if l.states[el] != Observed {
		l.mu.Unlock()
		return
	}
	if IsLoaded(el) {
		delete(l.states, el)
		l.mu.Unlock()
		l.obs.Unobserve(el)
		return
	}
	l.states[el] = Queued
	l.queue = append(l.queue, el)
	l.stats.Enqueued++
	schedule := !l.pumpPending && l.active < l.cfg.MaxConcurrency
	if schedule {
		l.pumpPending = true
	}
	l.mu.Unlock()

	l.obs.Unobserve(el)
	if schedule {
		l.sched.After(0, l.pump)
	}
}

// pump drains the queue up to the concurrency cap. Stale entries are
// dropped here rather than when they go stale.
func (l *Loader) pump() {
	l.mu.Lock()
	l.pumpPending = false
	var batch []Element
	for l.active < l.cfg.MaxConcurrency && len(l.queue) > 0 {
		el := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		if l.states[el] != Queued {
			continue
		}
		if !el.Connected() || IsLoaded(el) {
			if !IsLoaded(el) {
				l.stats.Discarded++
			}
			delete(l.states, el)
			continue
		}
		l.states[el] = Loading
		l.active++
		if l.active > l.stats.PeakActive {
			l.stats.PeakActive = l.active
		}
		batch = append(batch, el)
	}
	if len(l.queue) == 0 {
		l.queue = nil
	}
	l.mu.Unlock()

	for _, el := range batch {
		el := el
		l.sched.NextFrame(func() { l.finish(el) })
	}
}

// finish attaches the source inside a frame, frees the slot and schedules
// the next pass.
func (l *Loader) finish(el Element) {
	if el.Connected() {
		l.AttachSource(el)
	} else {
		l.mu.Lock()
		l.stats.Discarded++
		l.mu.Unlock()
	}

	l.mu.Lock()
	delete(l.states, el)
	if l.active > 0 {
		l.active--
	}
	schedule := len(l.queue) > 0 && !l.pumpPending
	if schedule {
		l.pumpPending = true
	}
	delay := l.cfg.Delay
	l.mu.Unlock()

	if schedule {
		l.sched.After(delay, l.pump)
	}
}

// AttachSource swaps the deferred URL into the live source, starts the
// load and marks el loaded. Loaded elements and elements without a deferred
// URL are left alone. It reports whether a load was started.
func (l *Loader) AttachSource(el Element) bool {
	if el == nil || IsLoaded(el) {
		return false
	}
	holder, src := deferredSource(el)
	if holder == nil {
		return false
	}
	if holder != el {
		// A src on the media element itself would shadow its sources.
		el.RemoveAttr(AttrSrc)
	}
	holder.RemoveAttr(AttrSrc)
	holder.SetAttr(AttrSrc, src)
	el.Load()
	el.SetAttr(AttrLoaded, "true")

	l.mu.Lock()
	l.stats.Loaded++
	cb := l.onLoaded
	l.mu.Unlock()
	l.log.Debugf("attached preview %s", logging.SanitizeURL(src))

	if isAutoplay(el) {
		_ = el.Play()
	}
	if cb != nil {
		cb(el)
	}
	return true
}

// HoverEnter loads and plays el immediately, bypassing the queue.
func (l *Loader) HoverEnter(el Element) {
	if el == nil {
		return
	}
	l.mu.Lock()
	st, tracked := l.states[el]
	if tracked && st != Loading {
		delete(l.states, el)
		if st == Queued {
			l.removeQueued(el)
		}
	}
	l.mu.Unlock()
	if tracked && st != Loading {
		l.obs.Unobserve(el)
	}

	// A pending frame attach for a Loading element becomes a no-op.
	if l.AttachSource(el) {
		l.mu.Lock()
		l.stats.HoverLoads++
		l.mu.Unlock()
		if isAutoplay(el) {
			return
		}
	}
	if IsLoaded(el) {
		_ = el.Play()
	}
}

// HoverLeave pauses el and rewinds it to the start.
func (l *Loader) HoverLeave(el Element) {
	if el == nil {
		return
	}
	el.Pause()
	el.Rewind()
}

// Forget drops el from all tracking, e.g. when its card is destroyed.
func (l *Loader) Forget(el Element) {
	l.mu.Lock()
	st, tracked := l.states[el]
	if tracked && st != Loading {
		delete(l.states, el)
		if st == Queued {
			l.removeQueued(el)
		}
	}
	l.mu.Unlock()
	if tracked {
		l.obs.Unobserve(el)
	}
}

func isAutoplay(el Element) bool {
	v, ok := el.Attr(AttrAutoplay)
	return ok && v == "true"
}

func (l *Loader) removeQueued(el Element) {
	for i, q := range l.queue {
		if q == el {
			l.queue = append(l.queue[:i:i], l.queue[i+1:]...)
			return
		}
	}
}

// State reports where el is in its lifecycle. Elements that left the
// document without loading report Discarded.
func (l *Loader) State(el Element) TaskState {
	if IsLoaded(el) {
		return Loaded
	}
	l.mu.Lock()
	st, ok := l.states[el]
	l.mu.Unlock()
	if ok && (st == Loading || el.Connected()) {
		return st
	}
	if !el.Connected() {
		return Discarded
	}
	return Unobserved
}

// Active is the number of loads in flight.
func (l *Loader) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// QueueLen is the number of queued entries, including stale ones not yet
// inspected by the pump.
func (l *Loader) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
