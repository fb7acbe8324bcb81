// Package event multiplexes UI input onto a single listener per event type.
//
// Feature modules register named handlers with a Manager instead of hooking
// the input source directly. For every occurrence of an event type the
// Manager runs the handlers in descending priority order (ties in
// registration order), skips handlers whose preconditions fail against the
// shared UI state, and stops at the first handler that returns true.
//
// Basic usage:
//
//	m := event.NewManager(target, event.WithState(store))
//	_ = m.Register("keydown", "modal.close", closeModal,
//		event.WithPriority(200))
//	_ = m.Register("keydown", "library.nav", navigate,
//		event.WithPriority(10), event.SkipWhenModalOpen())
//
// Dispatch works on a snapshot of the handler list taken when the event
// arrives: registering or unregistering from inside a handler affects only
// later events. A handler that panics is recovered and logged, and dispatch
// continues with the next handler.
//
// Target implementations must not call back into the Manager from Listen or
// Unlisten; those run with the registry lock held.
package event
