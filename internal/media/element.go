package media

// Attribute names read and written by the Loader.
const (
	AttrDeferredSrc = "data-src"
	AttrSrc         = "src"
	AttrLoaded      = "data-loaded"
	AttrAutoplay    = "data-autoplay"
)

// Element is a media node awaiting source activation. Implementations must
// be comparable (pointer types); the Loader keys its bookkeeping on them.
type Element interface {
	// Connected reports whether the element is still part of the document.
	Connected() bool
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)
	// Sources returns child source nodes, which may carry the deferred URL
	// instead of the element itself.
	Sources() []Element
	// Load starts fetching the current source. It must not block.
	Load()
	// Play may be rejected; the Loader ignores the error.
	Play() error
	Pause()
	Rewind()
}

// TaskState is the lifecycle of one element inside the Loader.
type TaskState int

const (
	Unobserved TaskState = iota
	Observed
	Queued
	Loading
	Loaded
	Discarded
)

func (s TaskState) String() string {
	switch s {
	case Unobserved:
		return "unobserved"
	case Observed:
		return "observed"
	case Queued:
		return "queued"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// IsLoaded reports whether el carries the loaded marker.
func IsLoaded(el Element) bool {
	v, ok := el.Attr(AttrLoaded)
	return ok && v == "true"
}

// deferredSource finds the element holding the deferred URL: el itself, or
// its first child source with one.
func deferredSource(el Element) (Element, string) {
	if v, ok := el.Attr(AttrDeferredSrc); ok && v != "" {
		return el, v
	}
	for _, s := range el.Sources() {
		if v, ok := s.Attr(AttrDeferredSrc); ok && v != "" {
			return s, v
		}
	}
	return nil, ""
}
