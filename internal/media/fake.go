package media

import (
	"sort"
	"time"
)

// FakeScheduler is a deterministic Scheduler for tests. Nothing runs until
// the test calls Advance, Frame or RunUntilIdle.
type FakeScheduler struct {
	now    time.Duration
	seq    int
	timers []fakeTimer
	frames []func()
}

type fakeTimer struct {
	at  time.Duration
	seq int
	fn  func()
}

func NewFakeScheduler() *FakeScheduler { return &FakeScheduler{} }

func (f *FakeScheduler) After(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	f.seq++
	f.timers = append(f.timers, fakeTimer{at: f.now + d, seq: f.seq, fn: fn})
}

func (f *FakeScheduler) NextFrame(fn func()) { f.frames = append(f.frames, fn) }

// Now is the fake elapsed time.
func (f *FakeScheduler) Now() time.Duration { return f.now }

// PendingTimers is the number of timers not yet fired.
func (f *FakeScheduler) PendingTimers() int { return len(f.timers) }

// PendingFrames is the number of frame callbacks waiting.
func (f *FakeScheduler) PendingFrames() int { return len(f.frames) }

// Frame runs the callbacks queued so far. Callbacks queued while running
// wait for the next frame. It returns how many ran.
func (f *FakeScheduler) Frame() int {
	batch := f.frames
	f.frames = nil
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Advance moves the clock forward by d, firing due timers in time order
// (ties in scheduling order), including timers scheduled by them.
func (f *FakeScheduler) Advance(d time.Duration) {
	deadline := f.now + d
	for {
		i := f.nextDue(deadline)
		if i < 0 {
			break
		}
		t := f.timers[i]
		f.timers = append(f.timers[:i], f.timers[i+1:]...)
		f.now = t.at
		t.fn()
	}
	f.now = deadline
}

// RunUntilIdle alternates frames and timers until nothing is pending or
// maxSteps is reached. It returns the number of steps taken.
func (f *FakeScheduler) RunUntilIdle(maxSteps int) int {
	steps := 0
	for steps < maxSteps {
		if len(f.frames) > 0 {
			f.Frame()
			steps++
			continue
		}
		if len(f.timers) == 0 {
			break
		}
		sort.SliceStable(f.timers, func(i, j int) bool { return f.less(f.timers[i], f.timers[j]) })
		f.Advance(f.timers[0].at - f.now)
		steps++
	}
	return steps
}

func (f *FakeScheduler) nextDue(deadline time.Duration) int {
	best := -1
	for i, t := range f.timers {
		if t.at > deadline {
			continue
		}
		if best < 0 || f.less(t, f.timers[best]) {
			best = i
		}
	}
	return best
}

func (f *FakeScheduler) less(a, b fakeTimer) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.seq < b.seq
}
