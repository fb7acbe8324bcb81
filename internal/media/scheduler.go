package media

import (
	"sync"
	"time"
)

// Scheduler runs callbacks later. After is a timer; NextFrame batches DOM
// writes into the next render frame.
type Scheduler interface {
	After(d time.Duration, fn func())
	NextFrame(fn func())
}

// DefaultFrame is the frame interval used by LoopScheduler.
const DefaultFrame = 16 * time.Millisecond

// LoopScheduler posts every callback to a UI loop so that Loader state is
// only touched from that loop's goroutine.
type LoopScheduler struct {
	post  func(func())
	frame time.Duration

	mu      sync.Mutex
	pending []func()
	armed   bool
}

// NewLoopScheduler creates a scheduler that hands callbacks to post. post
// must be safe to call from any goroutine.
func NewLoopScheduler(post func(func()), frame time.Duration) *LoopScheduler {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &LoopScheduler{post: post, frame: frame}
}

func (s *LoopScheduler) After(d time.Duration, fn func()) {
	if d <= 0 {
		s.post(fn)
		return
	}
	time.AfterFunc(d, func() { s.post(fn) })
}

// NextFrame queues fn; all callbacks queued before the frame fires run
// together in one post.
func (s *LoopScheduler) NextFrame(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	arm := !s.armed
	s.armed = true
	s.mu.Unlock()
	if arm {
		time.AfterFunc(s.frame, s.flush)
	}
}

func (s *LoopScheduler) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.armed = false
	s.mu.Unlock()
	s.post(func() {
		for _, fn := range batch {
			fn()
		}
	})
}
