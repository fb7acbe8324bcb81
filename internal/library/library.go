package library

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/jxwalker/modshelf/internal/state"
)

// Sort orders.
const (
	SortName     = "name"
	SortSize     = "size"
	SortType     = "type"
	SortModified = "modified"
)

// SortOrders lists the orders in cycling order.
var SortOrders = []string{SortName, SortSize, SortType, SortModified}

// Library holds every card and the filtered, sorted view the TUI renders.
// Cards outside the view are disconnected.
type Library struct {
	fetch    FetchFunc
	onChange func(*Card)
	previews bool
	autoplay bool

	mu        sync.RWMutex
	byPath    map[string]*Card
	all       []*Card
	view      []*Card
	query     string
	sortBy    string
	typeOnly  string
	favorites bool
	selected  map[string]bool
}

type Option func(*Library)

// WithFetch sets how cards materialize their preview.
func WithFetch(fn FetchFunc) Option { return func(l *Library) { l.fetch = fn } }

// OnChange is called from the fetch goroutine when a card's preview
// finishes loading.
func OnChange(fn func(*Card)) Option { return func(l *Library) { l.onChange = fn } }

// WithAutoplay marks every card for playback as soon as it loads instead of
// only while selected.
func WithAutoplay(v bool) Option { return func(l *Library) { l.autoplay = v } }

// WithoutPreviews leaves every card without a deferred source.
func WithoutPreviews() Option { return func(l *Library) { l.previews = false } }

func New(opts ...Option) *Library {
	l := &Library{
		previews: true,
		byPath:   map[string]*Card{},
		selected: map[string]bool{},
		sortBy:   SortName,
		fetch: func(context.Context, string) (string, error) {
			return "", errors.New("no preview fetcher")
		},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Library) changed(c *Card) {
	if l.onChange != nil {
		l.onChange(c)
	}
}

// Load replaces the model set. Cards for paths already present are kept so
// their preview state survives a reload; a card whose preview URL changed
// is re-armed. It returns cards that were dropped.
func (l *Library) Load(models []state.Model) (removed []*Card) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make(map[string]*Card, len(models))
	all := make([]*Card, 0, len(models))
	for _, m := range models {
		c, ok := l.byPath[m.Path]
		if ok {
			rearm := c.Model.PreviewURL != m.PreviewURL
			c.Model = m
			if rearm {
				c.resetPreview()
			}
		} else {
			c = newCard(l, m)
		}
		next[m.Path] = c
		all = append(all, c)
	}
	for p, c := range l.byPath {
		if _, ok := next[p]; !ok {
			c.setConnected(false)
			delete(l.selected, p)
			removed = append(removed, c)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Model.Path < removed[j].Model.Path })
	l.byPath, l.all = next, all
	l.refreshLocked()
	return removed
}

// Card returns the card for path, or nil.
func (l *Library) Card(path string) *Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byPath[path]
}

// Total is the number of cards, including those filtered out.
func (l *Library) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.all)
}

// View returns the visible cards in display order.
func (l *Library) View() []*Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Card(nil), l.view...)
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.view)
}

// At returns the i-th visible card, or nil when out of range.
func (l *Library) At(i int) *Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.view) {
		return nil
	}
	return l.view[i]
}

// Index is the row of c in the view, or -1.
func (l *Library) Index(c *Card) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, v := range l.view {
		if v == c {
			return i
		}
	}
	return -1
}

func (l *Library) Query() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.query
}

// SetQuery fuzzy-filters the view on name, type, base model and tags.
func (l *Library) SetQuery(q string) {
	l.mu.Lock()
	l.query = strings.TrimSpace(q)
	l.refreshLocked()
	l.mu.Unlock()
}

func (l *Library) SortBy() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortBy
}

// SetSort changes the order; unknown orders fall back to name.
func (l *Library) SetSort(by string) {
	l.mu.Lock()
	switch by {
	case SortName, SortSize, SortType, SortModified:
	default:
		by = SortName
	}
	l.sortBy = by
	l.refreshLocked()
	l.mu.Unlock()
}

// NextSort cycles through SortOrders and returns the new order.
func (l *Library) NextSort() string {
	cur := l.SortBy()
	next := SortOrders[0]
	for i, s := range SortOrders {
		if s == cur {
			next = SortOrders[(i+1)%len(SortOrders)]
		}
	}
	l.SetSort(next)
	return next
}

// SetTypeFilter limits the view to one artifact type; "" shows all.
func (l *Library) SetTypeFilter(t string) {
	l.mu.Lock()
	l.typeOnly = t
	l.refreshLocked()
	l.mu.Unlock()
}

func (l *Library) SetFavoritesOnly(v bool) {
	l.mu.Lock()
	l.favorites = v
	l.refreshLocked()
	l.mu.Unlock()
}

func (l *Library) FavoritesOnly() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.favorites
}

// SetFavorite updates the in-memory flag for path.
func (l *Library) SetFavorite(path string, v bool) {
	l.mu.Lock()
	if c := l.byPath[path]; c != nil {
		c.Model.Favorite = v
		if l.favorites {
			l.refreshLocked()
		}
	}
	l.mu.Unlock()
}

// Types lists the distinct artifact types present, sorted.
func (l *Library) Types() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, c := range l.all {
		if t := c.Model.Type; t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Tick advances every playing preview by one frame and reports whether
// anything changed.
func (l *Library) Tick() bool {
	l.mu.RLock()
	view := l.view
	l.mu.RUnlock()
	moved := false
	for _, c := range view {
		if c.advance() {
			moved = true
		}
	}
	return moved
}

func (l *Library) refreshLocked() {
	view := make([]*Card, 0, len(l.all))
	for _, c := range l.all {
		if l.typeOnly != "" && c.Model.Type != l.typeOnly {
			continue
		}
		if l.favorites && !c.Model.Favorite {
			continue
		}
		if l.query != "" && !fuzzy.MatchNormalizedFold(l.query, haystack(c.Model)) {
			continue
		}
		view = append(view, c)
	}
	less := lessFunc(l.sortBy)
	sort.SliceStable(view, func(i, j int) bool { return less(view[i].Model, view[j].Model) })

	in := make(map[*Card]bool, len(view))
	for _, c := range view {
		in[c] = true
	}
	for _, c := range l.all {
		c.setConnected(in[c])
	}
	l.view = view
}

func haystack(m state.Model) string {
	parts := []string{m.Name, m.Type, m.BaseModel}
	parts = append(parts, m.Tags...)
	return strings.Join(parts, " ")
}

func lessFunc(by string) func(a, b state.Model) bool {
	byName := func(a, b state.Model) bool {
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.Path < b.Path
	}
	switch by {
	case SortSize:
		return func(a, b state.Model) bool {
			if a.Size != b.Size {
				return a.Size > b.Size
			}
			return byName(a, b)
		}
	case SortType:
		return func(a, b state.Model) bool {
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			return byName(a, b)
		}
	case SortModified:
		return func(a, b state.Model) bool {
			if !a.ModTime.Equal(b.ModTime) {
				return a.ModTime.After(b.ModTime)
			}
			return byName(a, b)
		}
	}
	return byName
}
