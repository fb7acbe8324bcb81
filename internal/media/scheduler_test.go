package media

import (
	"testing"
	"time"
)

func TestLoopSchedulerBatchesFrames(t *testing.T) {
	posts := make(chan func(), 8)
	s := NewLoopScheduler(func(fn func()) { posts <- fn }, 5*time.Millisecond)
	var ran []int
	s.NextFrame(func() { ran = append(ran, 1) })
	s.NextFrame(func() { ran = append(ran, 2) })

	select {
	case fn := <-posts:
		fn()
	case <-time.After(time.Second):
		t.Fatalf("frame never posted")
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Fatalf("ran=%v", ran)
	}
	select {
	case <-posts:
		t.Fatalf("frame callbacks should be posted once")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLoopSchedulerAfter(t *testing.T) {
	posts := make(chan func(), 2)
	s := NewLoopScheduler(func(fn func()) { posts <- fn }, 0)
	done := false
	s.After(0, func() { done = true })
	(<-posts)()
	if !done {
		t.Fatalf("zero delay callback not posted")
	}
	s.After(5*time.Millisecond, func() { done = false })
	select {
	case fn := <-posts:
		fn()
	case <-time.After(time.Second):
		t.Fatalf("timer never fired")
	}
	if done {
		t.Fatalf("delayed callback did not run")
	}
}

func TestFakeSchedulerOrdering(t *testing.T) {
	f := NewFakeScheduler()
	var got []string
	f.After(20*time.Millisecond, func() { got = append(got, "b") })
	f.After(10*time.Millisecond, func() {
		got = append(got, "a")
		f.After(5*time.Millisecond, func() { got = append(got, "a2") })
	})
	f.After(20*time.Millisecond, func() { got = append(got, "c") })
	f.Advance(20 * time.Millisecond)
	if join(got) != "a,a2,b,c" {
		t.Fatalf("order=%v", got)
	}
	if f.Now() != 20*time.Millisecond || f.PendingTimers() != 0 {
		t.Fatalf("now=%v pending=%d", f.Now(), f.PendingTimers())
	}
}
