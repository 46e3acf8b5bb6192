package models

import "fmt"

// StateError reports that a document is in a state that forbids the
// requested operation (already received, already cancelled, immutable).
type StateError struct {
	msg string
}

func (e *StateError) Error() string { return e.msg }

func stateErrorf(format string, args ...interface{}) error {
	return &StateError{msg: fmt.Sprintf(format, args...)}
}
