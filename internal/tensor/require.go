package tensor

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Operand names a view taking part in an operation.
type Operand struct {
	Name string
	View *View
}

// Arg pairs an operand name with its view.
func Arg(name string, v *View) Operand {
	return Operand{Name: name, View: v}
}

// Requirement is a single declarative precondition.
// It returns nil when satisfied, otherwise a *OpError without Op and Caller filled in.
type Requirement func() *OpError

// Check evaluates reqs in order and returns the first violation as an error.
// Backends call it before any side effect.
func Check(op string, reqs ...Requirement) error {
	for _, req := range reqs {
		if err := req(); err != nil {
			err.Op = op
			err.Caller = callSite(2)
			return err
		}
	}
	return nil
}

func violation(operand string, kind error, format string, args ...any) *OpError {
	return &OpError{Operand: operand, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// NotNil requires every operand to carry a live view.
func NotNil(operands ...Operand) Requirement {
	return func() *OpError {
		for _, o := range operands {
			if o.View == nil {
				return violation(o.Name, ErrPrecondition, "operand is nil")
			}
			if o.View.Released() {
				return violation(o.Name, ErrPrecondition, "operand was released")
			}
		}
		return nil
	}
}

// OnBackend requires every operand to live on b.
func OnBackend(b Backend, operands ...Operand) Requirement {
	return func() *OpError {
		for _, o := range operands {
			if o.View == nil {
				return violation(o.Name, ErrPrecondition, "operand is nil")
			}
			if o.View.Backend() != b {
				return violation(o.Name, ErrPrecondition, "operand lives on backend %s, operation runs on %s",
					describeBackend(o.View.Backend()), describeBackend(b))
			}
		}
		return nil
	}
}

// DTypeIn requires the operand's element type to be one of types.
func DTypeIn(o Operand, types ...DataType) Requirement {
	return func() *OpError {
		dt := o.View.DType()
		for _, t := range types {
			if dt == t {
				return nil
			}
		}
		return violation(o.Name, ErrPrecondition, "expected dtype %v, got %s", types, dt)
	}
}

// Contiguous requires the operand to be laid out in canonical row-major order.
func Contiguous(operands ...Operand) Requirement {
	return func() *OpError {
		for _, o := range operands {
			if !o.View.IsContiguous() {
				return violation(o.Name, ErrPrecondition, "view must be contiguous (shape %v, stride %v)",
					o.View.Shape(), o.View.Strides())
			}
		}
		return nil
	}
}

// Writable requires the operand not to alias one element from several positions.
func Writable(o Operand) Requirement {
	return func() *OpError {
		shape, stride := o.View.Shape(), o.View.Strides()
		for i := range shape {
			if shape[i] > 1 && stride[i] == 0 {
				return violation(o.Name, ErrPrecondition, "broadcast view (stride 0 on axis %d) cannot be written", i)
			}
		}
		return nil
	}
}

// SameShape requires both operands to have identical shapes.
func SameShape(a, b Operand) Requirement {
	return func() *OpError {
		if !a.View.Shape().Equal(b.View.Shape()) {
			return violation(b.Name, ErrShapeMismatch, "shape %v does not match %s shape %v",
				b.View.Shape(), a.Name, a.View.Shape())
		}
		return nil
	}
}

// ShapeIs requires the operand to have exactly shape s.
func ShapeIs(o Operand, s Shape) Requirement {
	return func() *OpError {
		if !o.View.Shape().Equal(s) {
			return violation(o.Name, ErrShapeMismatch, "expected shape %v, got %v", s, o.View.Shape())
		}
		return nil
	}
}

// MinRank requires the operand to have at least n axes.
func MinRank(o Operand, n int) Requirement {
	return func() *OpError {
		if len(o.View.Shape()) < n {
			return violation(o.Name, ErrShapeMismatch, "expected at least %d dimensions, got %v", n, o.View.Shape())
		}
		return nil
	}
}

// NumElementsIs requires the operand volume to equal n.
func NumElementsIs(o Operand, n int) Requirement {
	return func() *OpError {
		if o.View.NumElements() != n {
			return violation(o.Name, ErrShapeMismatch, "expected %d elements, got %d (shape %v)",
				n, o.View.NumElements(), o.View.Shape())
		}
		return nil
	}
}

// That turns an arbitrary predicate into a requirement.
func That(cond bool, operand string, format string, args ...any) Requirement {
	return func() *OpError {
		if !cond {
			return violation(operand, ErrPrecondition, format, args...)
		}
		return nil
	}
}

// Supported reports an unsupported capability when cond is false.
func Supported(cond bool, format string, args ...any) Requirement {
	return func() *OpError {
		if !cond {
			return violation("", ErrUnsupported, format, args...)
		}
		return nil
	}
}

func describeBackend(b Backend) string {
	if b == nil {
		return "<nil>"
	}
	return b.Name() + "/" + b.ID()
}

// callSite returns file:line of the caller skip frames above its caller,
// skipping frames inside the backend packages themselves.
func callSite(skip int) string {
	for i := skip + 1; i < skip+12; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/internal/") {
			continue
		}
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
