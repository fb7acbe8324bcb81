// Package media defers loading of preview media until a card is about to be
// shown, then loads a bounded number at a time.
//
// An Observer reports when an element comes within a margin of the visible
// area. The Loader queues it (once), and a pump drains the queue FIFO with
// at most MaxConcurrency loads in flight, attaching each source on the next
// frame and waiting Delay between passes. Elements that leave the document
// while queued are dropped when the pump reaches them.
//
// Timers and frames go through a Scheduler so tests can drive the loader
// with FakeScheduler. Loader callbacks are expected to run on one goroutine
// (the UI loop); LoopScheduler arranges that for the terminal front-end.
package media
