// Package failure defines the closed set of error kinds that abort a transaction.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies why a transaction was rejected.
type Kind int32

const (
	KindUnknown Kind = iota
	KindArithmetic
	KindImpossibleState
	KindPrecondition
	KindCapacity
)

var (
	ErrArithmetic      = errors.New("arithmetic")
	ErrImpossibleState = errors.New("impossible state")
	ErrPrecondition    = errors.New("precondition")
	ErrCapacity        = errors.New("capacity")
)

func (k Kind) String() string {
	switch k {
	case KindArithmetic:
		return "arithmetic"
	case KindImpossibleState:
		return "impossible_state"
	case KindPrecondition:
		return "precondition"
	case KindCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Arithmetic reports a checked-math overflow, underflow or division by zero.
func Arithmetic(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArithmetic, fmt.Sprintf(format, args...))
}

// ImpossibleState reports a broken internal invariant.
func ImpossibleState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrImpossibleState, fmt.Sprintf(format, args...))
}

// Precondition reports caller-supplied state that is invalid for the operation.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// Capacity reports a bounded collection that would exceed its maximum.
func Capacity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCapacity, fmt.Sprintf(format, args...))
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrArithmetic):
		return KindArithmetic
	case errors.Is(err, ErrImpossibleState):
		return KindImpossibleState
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, ErrCapacity):
		return KindCapacity
	default:
		return KindUnknown
	}
}
