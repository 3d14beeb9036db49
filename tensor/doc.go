// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API of the cortex tensor engine.
//
// A Tensor is a handle on a view into backend-owned memory. Views created by
// Index, BroadcastTo, SwapAxes and Reshape alias their parent's buffer without
// copying; Set writes through such a view into the shared memory. Every other
// operation returns a new tensor over freshly allocated, contiguous memory.
//
// Handles release their memory when they become unreachable. Release frees it
// immediately.
//
// Operations run on the backend owning their operands. Constructors take the
// backend explicitly; a nil backend selects DefaultBackend, which is a CPU
// backend unless SetDefaultBackend installed another one.
//
// Example:
//
//	input, _ := tensor.FromSlice([]bool{true, false, true, true}, tensor.Shape{4}, nil)
//	connections, _ := tensor.FromSlice([]int32{0, 2, -1, 1, 3, -1}, tensor.Shape{2, 3}, nil)
//	permanences, _ := tensor.FromSlice([]float32{0.5, 0.3, 0, 0.9, 0.2, 0}, tensor.Shape{2, 3}, nil)
//	activity, _ := tensor.CellActivity(input, connections, permanences, 0.25, 1)
//	scores, _ := tensor.ToSlice[int32](activity) // [1 0]
//
// Sparse synapse tables are pairs of <cells...> x maxSynapses tensors: Int32
// source indices with -1 marking unused slots, and Float32 permanences in [0, 1].
package tensor
