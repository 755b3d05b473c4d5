package types

import "fmt"

// ValidationError is a recoverable, user-visible rejection of a command.
// It never changes controller state.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

var (
	ErrEmptyPrompt    = &ValidationError{Reason: "please enter a message"}
	ErrTurnInProgress = &ValidationError{Reason: "please wait for the current response to finish"}
)

// TransportError reports a stream that failed to open or died mid-flight.
type TransportError struct {
	SessionID SessionID
	Op        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s stream for %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError reports a history backend failure. It is never fatal.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s history %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProtocolError reports an event name outside the known vocabulary.
type ProtocolError struct {
	Event string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unrecognized stream event %q", e.Event)
}
