package event

import (
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jxwalker/modshelf/internal/logging"
	"github.com/jxwalker/modshelf/internal/uistate"
)

// HandlerFunc handles one event. Returning true stops dispatch: no lower
// priority handler sees this occurrence.
type HandlerFunc func(ev *Event) bool

// Target is the input source the Manager attaches to. The Manager holds at
// most one listener per event type.
type Target interface {
	Listen(eventType string, fn func(*Event))
	Unlisten(eventType string)
}

// Registration is a read-only view of a registered handler.
type Registration struct {
	EventType  string
	Source     string
	Priority   int
	Conditions []Condition
	Selector   string
}

type registration struct {
	eventType string
	source    string
	priority  int
	seq       uint64
	fn        HandlerFunc
	conds     []Condition
	selector  string
}

func (r *registration) has(c Condition) bool {
	for _, x := range r.conds {
		if x == c {
			return true
		}
	}
	return false
}

func (r *registration) view() Registration {
	conds := make([]Condition, len(r.conds))
	copy(conds, r.conds)
	return Registration{
		EventType:  r.eventType,
		Source:     r.source,
		Priority:   r.priority,
		Conditions: conds,
		Selector:   r.selector,
	}
}

// Stats are cumulative dispatch counters.
type Stats struct {
	Dispatched uint64 // events that reached at least one registered type
	Invoked    uint64 // handler invocations
	Skipped    uint64 // handlers skipped by a precondition or selector
	Claimed    uint64 // events stopped by a handler returning true
	Faults     uint64 // handlers that panicked
}

// Manager owns the handler registry. It is safe for concurrent use; the
// application creates one per UI and passes it to every feature module.
type Manager struct {
	mu       sync.RWMutex
	target   Target
	handlers map[string][]*registration
	seq      uint64

	state   *uistate.Store
	log     *logging.Logger
	onFault func(*HandlerFault)

	dispatched atomic.Uint64
	invoked    atomic.Uint64
	skipped    atomic.Uint64
	claimed    atomic.Uint64
	faults     atomic.Uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithState shares an existing UI state store.
func WithState(s *uistate.Store) ManagerOption {
	return func(m *Manager) { m.state = s }
}

// WithLogger sets the logger used for faults and rejected registrations.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithFaultHook is called after a handler panic has been recovered.
func WithFaultHook(fn func(*HandlerFault)) ManagerOption {
	return func(m *Manager) { m.onFault = fn }
}

// NewManager creates a Manager attached to target. A nil target is allowed;
// events can then only arrive through Dispatch.
func NewManager(target Target, opts ...ManagerOption) *Manager {
	m := &Manager{
		target:   target,
		handlers: map[string][]*registration{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.state == nil {
		m.state = uistate.New()
	}
	return m
}

// Register adds fn for eventType under source. Registering an existing
// (eventType, source) pair replaces the earlier handler; the replacement
// sorts as if newly registered. The first registration for a type attaches
// a listener on the target.
func (m *Manager) Register(eventType, source string, fn HandlerFunc, opts ...Option) error {
	if eventType == "" || source == "" || fn == nil {
		m.log.Warnf("ignoring registration type=%q source=%q nil=%t", eventType, source, fn == nil)
		return ErrInvalidRegistration
	}
	r := &registration{eventType: eventType, source: source, fn: fn}
	for _, o := range opts {
		o(r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	r.seq = m.seq

	list, attached := m.handlers[eventType]
	list = removeSource(list, source)
	list = append(list, r)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	m.handlers[eventType] = list

	if !attached && m.target != nil {
		m.target.Listen(eventType, m.listener(eventType))
	}
	m.log.Debugf("registered %s/%s priority=%d", eventType, source, r.priority)
	return nil
}

// Unregister removes the handler for (eventType, source). Removing the last
// handler for a type detaches the target listener. Unknown pairs are ignored.
func (m *Manager) Unregister(eventType, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.handlers[eventType]
	if !ok {
		return
	}
	next := removeSource(list, source)
	if len(next) == len(list) {
		return
	}
	if len(next) > 0 {
		m.handlers[eventType] = next
		return
	}
	delete(m.handlers, eventType)
	if m.target != nil {
		m.target.Unlisten(eventType)
	}
	m.log.Debugf("detached %s", eventType)
}

// UnregisterSource removes every handler registered under source.
func (m *Manager) UnregisterSource(source string) {
	for _, t := range m.EventTypes() {
		m.Unregister(t, source)
	}
}

// SetSharedState updates a shared UI state value. It affects dispatches
// that start afterwards.
func (m *Manager) SetSharedState(name string, value any) {
	if err := m.state.Set(name, value); err != nil {
		m.log.Warnf("set shared state %q: %v", name, err)
	}
}

// SharedState returns the store read by preconditions.
func (m *Manager) SharedState() *uistate.Store { return m.state }

// Registrations returns the handlers for eventType in dispatch order.
func (m *Manager) Registrations(eventType string) []Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.handlers[eventType]
	out := make([]Registration, len(list))
	for i, r := range list {
		out[i] = r.view()
	}
	return out
}

// EventTypes returns the types that currently have handlers.
func (m *Manager) EventTypes() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		out = append(out, t)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Stats returns a snapshot of the dispatch counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Dispatched: m.dispatched.Load(),
		Invoked:    m.invoked.Load(),
		Skipped:    m.skipped.Load(),
		Claimed:    m.claimed.Load(),
		Faults:     m.faults.Load(),
	}
}

// Dispatch runs the handlers for ev.Type and reports whether one claimed
// the event. It never panics because of a handler.
func (m *Manager) Dispatch(ev *Event) bool {
	if ev == nil {
		return false
	}
	m.mu.RLock()
	list := m.handlers[ev.Type]
	snapshot := make([]*registration, len(list))
	copy(snapshot, list)
	m.mu.RUnlock()
	if len(snapshot) == 0 {
		return false
	}
	m.dispatched.Add(1)

	for _, r := range snapshot {
		if !m.allowed(r, ev) {
			m.skipped.Add(1)
			continue
		}
		m.invoked.Add(1)
		if m.invoke(r, ev) {
			m.claimed.Add(1)
			return true
		}
	}
	return false
}

func (m *Manager) listener(eventType string) func(*Event) {
	return func(ev *Event) {
		if ev.Type == "" {
			ev.Type = eventType
		}
		m.Dispatch(ev)
	}
}

func (m *Manager) allowed(r *registration, ev *Event) bool {
	for _, c := range r.conds {
		if !c.Satisfied(m.state) {
			return false
		}
	}
	if r.selector != "" && !ev.Closest(r.selector) {
		return false
	}
	return true
}

func (m *Manager) invoke(r *registration, ev *Event) (stop bool) {
	defer func() {
		if v := recover(); v != nil {
			stop = false
			fault := &HandlerFault{EventType: r.eventType, Source: r.source, Value: v}
			m.faults.Add(1)
			m.log.Errorf("%v\n%s", fault, debug.Stack())
			if m.onFault != nil {
				m.onFault(fault)
			}
		}
	}()
	return r.fn(ev)
}

func removeSource(list []*registration, source string) []*registration {
	for i, r := range list {
		if r.source == source {
			out := make([]*registration, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	return list
}
