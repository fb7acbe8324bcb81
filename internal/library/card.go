package library

import (
	"context"
	"errors"
	"sync"

	"github.com/jxwalker/modshelf/internal/media"
	"github.com/jxwalker/modshelf/internal/state"
)

// ErrPlaybackRejected is returned by Play when the preview cannot be shown.
var ErrPlaybackRejected = errors.New("preview playback rejected")

// PreviewStatus tracks the card's preview media.
type PreviewStatus int

const (
	PreviewNone PreviewStatus = iota
	PreviewPending
	PreviewFetching
	PreviewReady
	PreviewFailed
)

func (s PreviewStatus) String() string {
	switch s {
	case PreviewNone:
		return "none"
	case PreviewPending:
		return "pending"
	case PreviewFetching:
		return "fetching"
	case PreviewReady:
		return "ready"
	case PreviewFailed:
		return "failed"
	}
	return "unknown"
}

// FetchFunc materializes a preview source into a local file.
type FetchFunc func(ctx context.Context, src string) (string, error)

// Card is one model row. It is the media element the preview Loader works
// on: data-src carries the model's preview URL until the card comes near
// the visible rows.
type Card struct {
	Model state.Model

	lib *Library

	mu        sync.Mutex
	attrs     map[string]string
	connected bool
	status    PreviewStatus
	local     string
	err       error
	playing   bool
	frame     int
}

func newCard(lib *Library, m state.Model) *Card {
	c := &Card{Model: m, lib: lib, attrs: map[string]string{}}
	c.resetPreview()
	return c
}

// resetPreview re-arms the deferred source, e.g. after the preview URL
// changed on rescan.
func (c *Card) resetPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs = map[string]string{}
	c.status, c.local, c.err, c.playing, c.frame = PreviewNone, "", nil, false, 0
	if c.Model.PreviewURL == "" || !c.lib.previews {
		return
	}
	c.attrs[media.AttrDeferredSrc] = c.Model.PreviewURL
	c.status = PreviewPending
	if c.lib.autoplay {
		c.attrs[media.AttrAutoplay] = "true"
	}
}

func (c *Card) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Card) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Card) Attr(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[name]
	return v, ok
}

func (c *Card) SetAttr(name, value string) {
	c.mu.Lock()
	c.attrs[name] = value
	c.mu.Unlock()
}

func (c *Card) RemoveAttr(name string) {
	c.mu.Lock()
	delete(c.attrs, name)
	c.mu.Unlock()
}

func (c *Card) Sources() []media.Element { return nil }

// Load fetches the src attribute in the background and notifies the
// library when done.
func (c *Card) Load() {
	c.mu.Lock()
	src := c.attrs[media.AttrSrc]
	if src == "" || c.status == PreviewFetching || c.status == PreviewReady {
		c.mu.Unlock()
		return
	}
	c.status = PreviewFetching
	c.mu.Unlock()

	fetch := c.lib.fetch
	go func() {
		local, err := fetch(context.Background(), src)
		c.mu.Lock()
		if err != nil {
			c.status, c.err = PreviewFailed, err
		} else {
			c.status, c.local = PreviewReady, local
		}
		c.mu.Unlock()
		c.lib.changed(c)
	}()
}

// Play starts the preview. It is rejected once the fetch has failed.
func (c *Card) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == PreviewFailed || c.status == PreviewNone {
		return ErrPlaybackRejected
	}
	c.playing = true
	return nil
}

func (c *Card) Pause() {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
}

func (c *Card) Rewind() {
	c.mu.Lock()
	c.frame = 0
	c.mu.Unlock()
}

// advance moves a playing, ready preview forward one frame.
func (c *Card) advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || c.status != PreviewReady {
		return false
	}
	c.frame++
	return true
}

// Preview is a snapshot of the card's preview state for rendering.
type Preview struct {
	Status  PreviewStatus
	Local   string
	Err     error
	Playing bool
	Frame   int
}

func (c *Card) Preview() Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Preview{Status: c.status, Local: c.local, Err: c.err, Playing: c.playing, Frame: c.frame}
}
