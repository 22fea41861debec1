package receipt

import (
	"errors"
	"fmt"
	"strconv"
)

// State is the validation status of a receipt. The numeric values are
// persisted and must not change.
type State int

const (
	StateInit                State = 0
	StateValidationRequest   State = 1
	StateValid               State = 10
	StateRefundedByAdmin     State = 20
	StateInvalid             State = 91
	StateRefundedByBuyer     State = 92
	StatePurchaseLimitExceed State = 93
	StateTimeLimit           State = 94
	StateUnknown             State = 99
)

// ErrIllegalTransition is returned when a state change breaks the lifecycle.
var ErrIllegalTransition = errors.New("receipt: illegal state transition")

var stateNames = map[State]string{
	StateInit:                "INIT",
	StateValidationRequest:   "VALIDATION_REQUEST",
	StateValid:               "VALID",
	StateRefundedByAdmin:     "REFUNDED_BY_ADMIN",
	StateInvalid:             "INVALID",
	StateRefundedByBuyer:     "REFUNDED_BY_BUYER",
	StatePurchaseLimitExceed: "PURCHASE_LIMIT_EXCEED",
	StateTimeLimit:           "TIME_LIMIT",
	StateUnknown:             "UNKNOWN",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "STATE(" + strconv.Itoa(int(s)) + ")"
}

func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// Terminal reports whether no further transition is allowed out of s.
func (s State) Terminal() bool {
	return s != StateInit && s != StateValidationRequest && s.Valid()
}

// CanTransition reports whether the lifecycle allows moving from s to next.
//
//	INIT -> VALIDATION_REQUEST
//	VALIDATION_REQUEST -> VALIDATION_REQUEST (retry) | any terminal state
//
// INIT may also fail straight to INVALID when a receipt is rejected before any
// store round trip (unknown product, malformed payload).
func (s State) CanTransition(next State) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case StateInit:
		return next == StateValidationRequest || next == StateInvalid
	case StateValidationRequest:
		return next != StateInit
	default:
		return false
	}
}

// CheckTransition is CanTransition returning a descriptive error.
func CheckTransition(from, to State) error {
	if from.CanTransition(to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
