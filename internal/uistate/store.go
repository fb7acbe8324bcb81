// Package uistate holds the shared UI state: a small, process-wide table of
// named values read by event preconditions and by the views.
//
// Keys are dotted paths ("library.sort", "library.filter.type"). Top-level
// flags such as modalOpen or bulkMode are plain keys. Values may be mirrored
// to persistent storage; keys under "session." and keys marked transient are
// never mirrored.
package uistate

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/jxwalker/modshelf/internal/logging"
)

// Well-known flags read by event preconditions.
const (
	ModalOpen          = "modalOpen"
	BulkMode           = "bulkMode"
	MarqueeActive      = "marqueeActive"
	NodeSelectorActive = "nodeSelectorActive"
)

// SessionPrefix marks keys that live only for the current process.
const SessionPrefix = "session."

// ErrInvalidKey is returned for empty keys or keys with empty path segments.
var ErrInvalidKey = errors.New("uistate: invalid key")

// Mirror persists state values. Values handed to Save are JSON-encodable.
type Mirror interface {
	Save(key string, value any) error
	Delete(key string) error
	LoadAll() (map[string]any, error)
}

// ChangeFunc observes a committed change. old is nil for new keys; value is
// nil for deleted keys.
type ChangeFunc func(key string, old, value any)

// Store is safe for concurrent use. Subscribers run after the lock is
// released, in subscription order.
type Store struct {
	mu        sync.RWMutex
	values    map[string]any
	transient map[string]bool
	subs      []subscriber
	nextSub   int
	mirror    Mirror
	log       *logging.Logger
}

type subscriber struct {
	id int
	fn ChangeFunc
}

// Option configures a Store.
type Option func(*Store)

// WithMirror persists non-transient values through m.
func WithMirror(m Mirror) Option { return func(s *Store) { s.mirror = m } }

// WithTransient marks keys that are never mirrored.
func WithTransient(keys ...string) Option {
	return func(s *Store) {
		for _, k := range keys {
			s.transient[k] = true
		}
	}
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(l *logging.Logger) Option { return func(s *Store) { s.log = l } }

// New creates a store. The dispatcher flags are always transient.
func New(opts ...Option) *Store {
	s := &Store{
		values: map[string]any{},
		transient: map[string]bool{
			ModalOpen:          true,
			BulkMode:           true,
			MarqueeActive:      true,
			NodeSelectorActive: true,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidKey reports whether key is a usable dotted path.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for _, seg := range strings.Split(key, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

// Restore loads mirrored values, overwriting in-memory ones. Subscribers are
// not notified.
func (s *Store) Restore() error {
	if s.mirror == nil {
		return nil
	}
	vals, err := s.mirror.LoadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	for k, v := range vals {
		if ValidKey(k) && !s.isTransient(k) {
			s.values[k] = v
		}
	}
	s.mu.Unlock()
	return nil
}

// Set stores value under key. Setting an equal value is a no-op.
func (s *Store) Set(key string, value any) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	if value == nil {
		return s.Delete(key)
	}
	s.mu.Lock()
	old, existed := s.values[key]
	if existed && reflect.DeepEqual(old, value) {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = value
	subs := s.snapshotSubs()
	mirror := s.mirror != nil && !s.isTransient(key)
	s.mu.Unlock()

	if mirror {
		if err := s.mirror.Save(key, value); err != nil {
			s.log.Warnf("mirror %s: %v", key, err)
		}
	}
	notify(subs, key, old, value)
	return nil
}

// Delete removes key. Missing keys are a no-op.
func (s *Store) Delete(key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	s.mu.Lock()
	old, existed := s.values[key]
	if !existed {
		s.mu.Unlock()
		return nil
	}
	delete(s.values, key)
	subs := s.snapshotSubs()
	mirror := s.mirror != nil && !s.isTransient(key)
	s.mu.Unlock()

	if mirror {
		if err := s.mirror.Delete(key); err != nil {
			s.log.Warnf("mirror delete %s: %v", key, err)
		}
	}
	notify(subs, key, old, nil)
	return nil
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Bool returns the value as a bool. Missing or non-bool values are false.
func (s *Store) Bool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// String returns the value as a string, or def when missing or not a string.
func (s *Store) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// Int returns the value as an int. Mirrored numbers come back as float64.
func (s *Store) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// Subtree returns a copy of every value at or below prefix, keyed by the
// full path.
func (s *Store) Subtree(prefix string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]any{}
	for k, v := range s.values {
		if prefix == "" || k == prefix || strings.HasPrefix(k, prefix+".") {
			out[k] = v
		}
	}
	return out
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Subscribe registers fn for future changes and returns a cancel func.
func (s *Store) Subscribe(fn ChangeFunc) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) isTransient(key string) bool {
	return s.transient[key] || strings.HasPrefix(key, SessionPrefix)
}

func (s *Store) snapshotSubs() []subscriber {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]subscriber, len(s.subs))
	copy(out, s.subs)
	return out
}

func notify(subs []subscriber, key string, old, value any) {
	for _, sub := range subs {
		sub.fn(key, old, value)
	}
}
