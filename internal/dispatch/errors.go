package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOperation   = errors.New("undefined operation")
	ErrDuplicateOperation = errors.New("operation served by more than one endpoint")
)

// ArityKind tells which bound an argument count violated
type ArityKind int

const (
	// ArityExact is reported for operations with a fixed argument count
	ArityExact ArityKind = iota
	// ArityTooFew is reported when fewer than MinArgs arguments were passed
	ArityTooFew
	// ArityTooMany is reported when more than MaxArgs arguments were passed
	ArityTooMany
)

// ArityError rejects an invocation with the wrong number of arguments
type ArityError struct {
	Operation string
	Kind      ArityKind
	Min       int
	Max       int
	Received  int
}

// Expected returns the bound the invocation was checked against
func (e *ArityError) Expected() int {
	if e.Kind == ArityTooMany {
		return e.Max
	}
	return e.Min
}

func (e *ArityError) Error() string {
	switch e.Kind {
	case ArityTooFew:
		return fmt.Sprintf("too few arguments for operation %s: expected at least %d, received %d", e.Operation, e.Min, e.Received)
	case ArityTooMany:
		return fmt.Sprintf("too many arguments for operation %s: expected at most %d, received %d", e.Operation, e.Max, e.Received)
	default:
		return fmt.Sprintf("invalid number of arguments for operation '%s': expected %d, received %d", e.Operation, e.Min, e.Received)
	}
}

// UndefinedArgumentError rejects an invocation that passed Undefined
type UndefinedArgumentError struct {
	Operation string
	Argument  string
	Index     int
}

func (e *UndefinedArgumentError) Error() string {
	return fmt.Sprintf("error in invocation of operation %s: argument '%s' is undefined", e.Operation, e.Argument)
}
