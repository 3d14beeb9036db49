package tensor

import (
	"math"
	"math/rand/v2"
)

// Sentinel marks an unused synapse slot in a connections table.
const Sentinel int32 = -1

// SortKey orders source indices so that Sentinel sorts after every valid index.
func SortKey(idx int32) uint32 {
	return uint32(idx) //nolint:gosec // G115: the wrap-around is the ordering.
}

// SynapseTable requires a connections/permanences pair: Int32 source indices and
// Float32 strengths, both contiguous, with identical <cells...> x maxSynapses shapes.
func SynapseTable(connections, permanences Operand) Requirement {
	return func() *OpError {
		reqs := []Requirement{
			NotNil(connections, permanences),
			DTypeIn(connections, Int32),
			DTypeIn(permanences, Float32),
			MinRank(connections, 2),
			SameShape(connections, permanences),
			Contiguous(connections, permanences),
			Writable(connections),
		}
		for _, r := range reqs {
			if err := r(); err != nil {
				return err
			}
		}
		return nil
	}
}

// CellMask requires a contiguous Bool operand with one element per row of connections.
func CellMask(o Operand, connections *View) Requirement {
	return func() *OpError {
		reqs := []Requirement{
			NotNil(o),
			DTypeIn(o, Bool),
			Contiguous(o),
			NumElementsIs(o, connections.Shape().Leading().NumElements()),
		}
		for _, r := range reqs {
			if err := r(); err != nil {
				return err
			}
		}
		return nil
	}
}

// BitInput requires a contiguous Bool operand.
func BitInput(o Operand) Requirement {
	return func() *OpError {
		if err := NotNil(o)(); err != nil {
			return err
		}
		if err := DTypeIn(o, Bool)(); err != nil {
			return err
		}
		return Contiguous(o)()
	}
}

// InhibitionCount returns how many of n cells global inhibition selects:
// round(n*fraction), halves rounded away from zero.
func InhibitionCount(n int, fraction float32) int {
	return int(math.Round(float64(n) * float64(fraction)))
}

// Outranks reports whether activity b of cell j ranks ahead of activity a of cell i
// in global inhibition: larger activity first, the lower index on ties. NaN ranks as
// zero, so it neither wins selection nor displaces another cell.
func Outranks[T Number](b T, j int, a T, i int) bool {
	b, a = rankValue(b), rankValue(a)
	return b > a || (b == a && j < i)
}

func rankValue[T Number](v T) T {
	if v != v {
		return 0
	}
	return v
}

// DrawColumns makes the reverse-burst draws: one r.IntN(cells) per column, in column order.
func DrawColumns(r *rand.Rand, columns, cells int) []int32 {
	draws := make([]int32, columns)
	if cells == 0 {
		return draws
	}
	for i := range draws {
		draws[i] = int32(r.IntN(cells)) //nolint:gosec // G115: bounded by cells.
	}
	return draws
}
