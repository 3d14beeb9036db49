package tensor

import "math/rand/v2"

// UnaryOp selects an element-wise unary operation.
type UnaryOp int

// Unary operations.
const (
	Exp UnaryOp = iota
	Negate
	Inverse
	Log
	LogicalNot
)

// String returns the operation name.
func (op UnaryOp) String() string {
	switch op {
	case Exp:
		return "exp"
	case Negate:
		return "negate"
	case Inverse:
		return "inverse"
	case Log:
		return "log"
	case LogicalNot:
		return "logical_not"
	default:
		return "unknown"
	}
}

// BinaryOp selects an element-wise binary operation.
type BinaryOp int

// Binary operations.
const (
	Add BinaryOp = iota
	Subtract
	Mul
	Div
	Equal
	Greater
	Lesser
	LogicalAnd
	LogicalOr
)

// String returns the operation name.
func (op BinaryOp) String() string {
	switch op {
	case Add:
		return "add"
	case Subtract:
		return "subtract"
	case Mul:
		return "mul"
	case Div:
		return "div"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	case Lesser:
		return "lesser"
	case LogicalAnd:
		return "logical_and"
	case LogicalOr:
		return "logical_or"
	default:
		return "unknown"
	}
}

// IsPredicate reports whether the operation produces a Bool result.
func (op BinaryOp) IsPredicate() bool {
	return op >= Equal
}

// IsLogical reports whether the operands are read as truth values.
func (op BinaryOp) IsLogical() bool {
	return op == LogicalAnd || op == LogicalOr
}

// Backend defines the capability contract every execution backend implements.
//
// All operands of one call must live on the receiving backend; every operation
// validates its preconditions with Check before any side effect. Operations that
// return a view return a new plain view over freshly allocated memory unless
// documented otherwise.
//
// Implementations:
//   - internal/backend/cpu: data-parallel host execution
//   - internal/backend/gpu: device execution with generated, cached kernels
//
// Connections/permanences pairs are <cells...> x maxSynapsesPerCell tensors of Int32
// source indices (-1 marks an unused slot) and Float32 strengths in [0, 1]. Each row
// keeps its valid entries sorted ascending at the front.
type Backend interface {
	// Metadata
	Name() string
	ID() string
	SupportsHalf() bool

	// Memory
	CreateView(shape Shape, dtype DataType, data []byte) (*View, error) // allocate, optional host copy-in
	Realize(x *View) (*View, error)                                     // contiguous copy with identical values
	Assign(dst, src *View) error                                        // broadcast + convert src into dst's memory
	Copy(x *View) (*View, error)                                        // always a new buffer
	Cast(x *View, dtype DataType) (*View, error)                        // element type conversion
	From(x *View) (*View, error)                                        // transfer from any backend
	ReadBytes(x *View) ([]byte, error)                                  // host copy of logical values
	Sync() error                                                        // wait for issued work

	// Element-wise and reduction
	Unary(op UnaryOp, x *View) (*View, error)
	Binary(op BinaryOp, a, b *View) (*View, error)
	Sum(x *View, chunkSize int, dtype DataType) (*View, error)

	// Sparse-synapse primitives
	CellActivity(input, connections, permanences *View, connectedPermanence float32, activeThreshold int) (*View, error)
	LearnCorrelation(input, learn, connections, permanences *View, incStep, decStep float32) error
	GlobalInhibition(activity *View, fraction float32) (*View, error)
	SortSynapse(connections, permanences *View) error
	Burst(input, prior *View) (*View, error)
	ReverseBurst(active *View, rng *rand.Rand) (*View, error)
	GrowSynapses(input, target, connections, permanences *View, initialPermanence float32) error
	DecaySynapses(connections, permanences *View, threshold float32) error

	// Release frees backend resources. Views must not be used afterwards.
	Release()
}
