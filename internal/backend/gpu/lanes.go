package gpu

import (
	"github.com/born-ml/cortex/internal/tensor"
)

// Device lanes: Bool is widened to a u32 lane because WGSL storage has no 8-bit type.
// Int32, Float32 and Float16 keep their host layout.

// laneSize returns the device bytes per element of dt.
func laneSize(dt tensor.DataType) int {
	if dt == tensor.Bool {
		return 4
	}
	return dt.Size()
}

// laneType is the WGSL storage type of dt.
func laneType(dt tensor.DataType) string {
	switch dt {
	case tensor.Bool:
		return "u32"
	case tensor.Int32:
		return "i32"
	case tensor.Float16:
		return "f16"
	default:
		return "f32"
	}
}

// toLanes converts host bytes of n elements into device lanes.
func toLanes(data []byte, dt tensor.DataType) []byte {
	if dt != tensor.Bool {
		return data
	}
	out := make([]byte, len(data)*4)
	lanes := tensor.Slice[uint32](out)
	for i, b := range data {
		if b != 0 {
			lanes[i] = 1
		}
	}
	return out
}

// fromLanes converts device lanes back into host bytes.
func fromLanes(lanes []byte, dt tensor.DataType) []byte {
	if dt != tensor.Bool {
		return lanes
	}
	words := tensor.Slice[uint32](lanes)
	out := make([]byte, len(words))
	for i, w := range words {
		if w != 0 {
			out[i] = 1
		}
	}
	return out
}

// laneStorage maps a lane layout onto the host storage type that reads it:
// a Bool lane holds 0 or 1 as a 32-bit integer.
func laneStorage(dt tensor.DataType) tensor.DataType {
	if dt == tensor.Bool {
		return tensor.Int32
	}
	return dt
}

// loadLane reads lane i of mem holding elements of type dt.
func loadLane[T tensor.Number](mem []byte, dt tensor.DataType, i int) T {
	return tensor.LoadAs[T](mem, laneStorage(dt), i)
}

// storeLane writes v into lane i of mem holding elements of type dt.
func storeLane[T tensor.Number](mem []byte, dt tensor.DataType, i int, v T) {
	if dt == tensor.Bool {
		if v != 0 {
			v = 1
		}
	}
	tensor.StoreAs(mem, laneStorage(dt), i, v)
}
