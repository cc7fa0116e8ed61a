package spec

import (
	"errors"
	"fmt"
)

// MissingEventNameError is returned when a step has no resolvable name.
type MissingEventNameError struct {
	// Index is the position of the offending step in its chain.
	Index int
}

// Error implements the error interface.
func (e *MissingEventNameError) Error() string {
	return fmt.Sprintf("step %d: missing event name", e.Index)
}

// IsMissingEventNameError returns true if err is or wraps a
// MissingEventNameError.
func IsMissingEventNameError(err error) bool {
	var me *MissingEventNameError
	return errors.As(err, &me)
}
