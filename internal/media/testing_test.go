package media

import "errors"

// fakeElement is a minimal in-memory media node.
type fakeElement struct {
	name      string
	attrs     map[string]string
	children  []Element
	connected bool
	loads     int
	plays     int
	pauses    int
	rewinds   int
	playErr   error
	onLoad    func()
}

func newFake(name, src string) *fakeElement {
	attrs := map[string]string{}
	if src != "" {
		attrs[AttrDeferredSrc] = src
	}
	return &fakeElement{name: name, attrs: attrs, connected: true}
}

func (f *fakeElement) Connected() bool { return f.connected }

func (f *fakeElement) Attr(name string) (string, bool) {
	v, ok := f.attrs[name]
	return v, ok
}

func (f *fakeElement) SetAttr(name, value string) { f.attrs[name] = value }
func (f *fakeElement) RemoveAttr(name string)     { delete(f.attrs, name) }
func (f *fakeElement) Sources() []Element         { return f.children }

func (f *fakeElement) Load() {
	f.loads++
	if f.onLoad != nil {
		f.onLoad()
	}
}

func (f *fakeElement) Play() error {
	f.plays++
	return f.playErr
}

func (f *fakeElement) Pause()  { f.pauses++ }
func (f *fakeElement) Rewind() { f.rewinds++ }

var errAutoplayBlocked = errors.New("autoplay blocked")

// manualObserver lets tests decide when elements intersect.
type manualObserver struct {
	cb       IntersectFunc
	observed map[Element]int
}

func newManualObserver(cb IntersectFunc) *manualObserver {
	return &manualObserver{cb: cb, observed: map[Element]int{}}
}

func (o *manualObserver) Observe(el Element)   { o.observed[el]++ }
func (o *manualObserver) Unobserve(el Element) { delete(o.observed, el) }

func (o *manualObserver) enter(els ...Element) {
	for _, el := range els {
		if _, ok := o.observed[el]; ok {
			o.cb(el, true)
		}
	}
}

func newTestLoader(cfg Config) (*Loader, *FakeScheduler, *manualObserver) {
	sched := NewFakeScheduler()
	var obs *manualObserver
	l := NewLoader(cfg, sched, func(cb IntersectFunc) Observer {
		obs = newManualObserver(cb)
		return obs
	})
	return l, sched, obs
}
