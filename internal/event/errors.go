package event

import (
	"errors"
	"fmt"
)

// ErrInvalidRegistration is returned by Register for an empty event type,
// empty source or nil handler. The registration is ignored.
var ErrInvalidRegistration = errors.New("event: invalid registration")

// HandlerFault describes a handler that panicked during dispatch.
type HandlerFault struct {
	EventType string
	Source    string
	Value     any
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("handler %s for %s panicked: %v", f.Source, f.EventType, f.Value)
}

// Unwrap exposes a panicked error value.
func (f *HandlerFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}
