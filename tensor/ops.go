// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/cortex/internal/tensor"
)

func (t *Tensor) unary(op tensor.UnaryOp) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.Backend().Unary(op, t.view))
}

func (t *Tensor) binary(op tensor.BinaryOp, other *Tensor) (*Tensor, error) {
	defer keepAlive(t, other)
	return wrapResult(t.Backend().Binary(op, t.view, viewOf(other)))
}

// Exp returns e raised to each element.
func (t *Tensor) Exp() (*Tensor, error) { return t.unary(tensor.Exp) }

// Negate returns the element-wise negation.
func (t *Tensor) Negate() (*Tensor, error) { return t.unary(tensor.Negate) }

// Inverse returns 1/x for each element.
func (t *Tensor) Inverse() (*Tensor, error) { return t.unary(tensor.Inverse) }

// Log returns the natural logarithm of each element.
func (t *Tensor) Log() (*Tensor, error) { return t.unary(tensor.Log) }

// Not returns the logical negation as Bool.
func (t *Tensor) Not() (*Tensor, error) { return t.unary(tensor.LogicalNot) }

// Add returns t + other, broadcasting both operands.
func (t *Tensor) Add(other *Tensor) (*Tensor, error) { return t.binary(tensor.Add, other) }

// Sub returns t - other.
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) { return t.binary(tensor.Subtract, other) }

// Mul returns t * other.
func (t *Tensor) Mul(other *Tensor) (*Tensor, error) { return t.binary(tensor.Mul, other) }

// Div returns t / other. Integer division by zero yields the dividend.
func (t *Tensor) Div(other *Tensor) (*Tensor, error) { return t.binary(tensor.Div, other) }

// Equal returns t == other as Bool.
func (t *Tensor) Equal(other *Tensor) (*Tensor, error) { return t.binary(tensor.Equal, other) }

// Greater returns t > other as Bool.
func (t *Tensor) Greater(other *Tensor) (*Tensor, error) { return t.binary(tensor.Greater, other) }

// Lesser returns t < other as Bool.
func (t *Tensor) Lesser(other *Tensor) (*Tensor, error) { return t.binary(tensor.Lesser, other) }

// And returns the logical conjunction as Bool.
func (t *Tensor) And(other *Tensor) (*Tensor, error) { return t.binary(tensor.LogicalAnd, other) }

// Or returns the logical disjunction as Bool.
func (t *Tensor) Or(other *Tensor) (*Tensor, error) { return t.binary(tensor.LogicalOr, other) }

// Sum adds consecutive chunks of chunkSize elements, returning NumElements()/chunkSize
// values of dtype (Infer follows the promotion rules).
func (t *Tensor) Sum(chunkSize int, dtype DataType) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.Backend().Sum(t.view, chunkSize, dtype))
}

// SumAll returns the sum of every element as a one-element tensor.
func (t *Tensor) SumAll() (*Tensor, error) {
	return t.Sum(max(t.NumElements(), 1), Infer)
}
