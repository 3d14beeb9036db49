package tensor

import "fmt"

type rangeKind int

const (
	rangeAll rangeKind = iota
	rangeSpan
	rangeAt
)

// Range selects positions along one axis of a view.
// Negative positions count from the back of the axis.
type Range struct {
	kind        rangeKind
	start, stop int
}

// All selects the whole axis.
func All() Range {
	return Range{kind: rangeAll}
}

// Span selects [start, stop).
func Span(start, stop int) Range {
	return Range{kind: rangeSpan, start: start, stop: stop}
}

// At selects the single position i.
func At(i int) Range {
	return Range{kind: rangeAt, start: i}
}

// String formats the range for diagnostics.
func (r Range) String() string {
	switch r.kind {
	case rangeAll:
		return "all()"
	case rangeAt:
		return fmt.Sprintf("at(%d)", r.start)
	default:
		return fmt.Sprintf("range(%d, %d)", r.start, r.stop)
	}
}

// resolve returns the first position and the number of positions selected on an axis of size dim.
func (r Range) resolve(dim int) (start, size int, err error) {
	switch r.kind {
	case rangeAll:
		return 0, dim, nil
	case rangeAt:
		i := r.start
		if i < 0 {
			i += dim
		}
		if i < 0 || i >= dim {
			return 0, 0, fmt.Errorf("index %d out of range for axis of size %d", r.start, dim)
		}
		return i, 1, nil
	default:
		start, stop := r.start, r.stop
		if start < 0 {
			start += dim
		}
		if stop < 0 {
			stop += dim
		}
		if start < 0 || stop > dim || start > stop {
			return 0, 0, fmt.Errorf("%v out of range for axis of size %d", r, dim)
		}
		return start, stop - start, nil
	}
}
