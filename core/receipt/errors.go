package receipt

import (
	"errors"
	"fmt"
)

// ErrDuplicateSettlement is returned when another receipt for the same
// (store, order id) has already been accepted. Callers use it to tell
// "already settled" apart from a new success.
var ErrDuplicateSettlement = errors.New("receipt: order already settled")

// ValidationFailure is a definitive rejection by the store. The receipt
// terminates as INVALID.
type ValidationFailure struct {
	Store  Store
	Reason string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("receipt: %s validation failed: %s", e.Store, e.Reason)
}

// TransientFailure is an ambiguous outcome (timeout, 5xx, cancellation).
// The receipt stays in VALIDATION_REQUEST and may be retried.
type TransientFailure struct {
	Store  Store
	Reason string
	Err    error
}

func (e *TransientFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("receipt: %s transient failure: %s: %v", e.Store, e.Reason, e.Err)
	}
	return fmt.Sprintf("receipt: %s transient failure: %s", e.Store, e.Reason)
}

func (e *TransientFailure) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientFailure.
func IsTransient(err error) bool {
	var tf *TransientFailure
	return errors.As(err, &tf)
}
