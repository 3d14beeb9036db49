package tensor

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a backend wraps exactly one of these.
var (
	ErrPrecondition    = errors.New("precondition violation")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrUnsupported     = errors.New("unsupported operation")
	ErrDeviceExecution = errors.New("device execution failure")
	ErrAllocation      = errors.New("allocation failure")
)

// OpError provides detailed information about a failed operation.
type OpError struct {
	Op      string // Operation name (e.g. "cellActivity")
	Operand string // Operand involved, if any
	Kind    error  // One of the Err* kinds
	Detail  string // Failing predicate or device message
	Caller  string // file:line of the call site that issued the operation
	Err     error  // Underlying error, if any
}

// Error implements the error interface.
func (e *OpError) Error() string {
	msg := e.Op + ": "
	if e.Operand != "" {
		msg += e.Operand + ": "
	}
	msg += e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Caller != "" {
		msg += " (at " + e.Caller + ")"
	}
	return msg
}

// Unwrap exposes both the kind and the underlying error to errors.Is/As.
func (e *OpError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Errorf builds an *OpError of the given kind.
func Errorf(op string, kind error, format string, args ...any) error {
	return &OpError{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...), Caller: callSite(2)}
}

// WrapError wraps err as an *OpError of the given kind unless it already is one.
func WrapError(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Kind: kind, Err: err, Caller: callSite(2)}
}

// Rekind reports err as an *OpError of kind. An *OpError of another kind keeps its
// message but not its kind, so a failure observed later (a queued launch surfacing
// at Sync) is classified by the stage that observed it.
func Rekind(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if !errors.As(err, &opErr) {
		return &OpError{Op: op, Kind: kind, Err: err, Caller: callSite(2)}
	}
	if opErr.Kind == kind {
		return err
	}
	return &OpError{Op: op, Kind: kind, Detail: opErr.Error(), Err: opErr.Err, Caller: opErr.Caller}
}

// Assert panics when an internal invariant does not hold.
// It guards states that already-validated inputs cannot reach.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic("cortex: internal error: " + fmt.Sprintf(format, args...))
	}
}
