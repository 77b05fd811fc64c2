// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
)

// Op represents the output of an operation, during the computation building time.
//
// It is opaque from the compiler perspective: it passes Op as input to the other methods.
type Op any

// Builder defines the set of ops to support building a computation.
//
// Binary ops take operands of the same dtype, and either the same shape, or one of them a scalar,
// which is then implicitly broadcast.
type Builder interface {
	// Name of the computation being built.
	Name() string

	// OpShape returns the shape of a computation Op.
	// Notice this is not an operation and doesn't change the computation being built.
	OpShape(op Op) (shapes.Shape, error)

	// Parameter creates an input parameter for the computation.
	// During execution of the computation this value will need to be fed in the same order it is created.
	// Parameters can be tuples.
	Parameter(name string, shape shapes.Shape) (Op, error)

	// Constant creates a constant in the computation with the given flat values, and the shape defined by dims.
	//
	// The flat value must be a slice of a basic type supported -- that can be converted to a DType.
	Constant(flat any, dims ...int) (Op, error)

	// Identity returns an Op whose output is the same as its input.
	Identity(x Op) (Op, error)

	// Add returns the element-wise sum of the two values.
	Add(lhs, rhs Op) (Op, error)

	// Sub returns the element-wise subtraction of the two values.
	Sub(lhs, rhs Op) (Op, error)

	// Mul returns the element-wise multiplication of the two values.
	Mul(lhs, rhs Op) (Op, error)

	// Div returns the element-wise division of the two values.
	Div(lhs, rhs Op) (Op, error)

	// Max returns the element-wise max of the two values.
	Max(lhs, rhs Op) (Op, error)

	// Min returns the element-wise min of the two values.
	Min(lhs, rhs Op) (Op, error)

	// Neg returns the element-wise negation.
	Neg(x Op) (Op, error)

	// Abs returns the element-wise absolute value.
	Abs(x Op) (Op, error)

	// ConvertDType of x to the given dtype.
	ConvertDType(x Op, dtype dtypes.DType) (Op, error)

	// Reshape x to the given dimensions. The total number of elements must be preserved.
	Reshape(x Op, dimensions ...int) (Op, error)

	// Broadcast x by prefixing it with new axes of the given dimensions.
	Broadcast(x Op, prefixDimensions ...int) (Op, error)

	// DynamicSlice extracts a slice of size sliceDims from operand, starting at the given startIndices
	// (one scalar integer Op per axis). Start indices are clamped so the slice fits the operand.
	DynamicSlice(operand Op, startIndices []Op, sliceDims []int) (Op, error)

	// DynamicUpdateSlice returns operand with the update written starting at the given startIndices
	// (one scalar integer Op per axis). Start indices are clamped so the update fits the operand.
	DynamicUpdateSlice(operand, update Op, startIndices []Op) (Op, error)

	// Tuple creates a tuple of the given elements.
	Tuple(elements ...Op) (Op, error)

	// GetTupleElement extracts the element at the given index of a tuple.
	GetTupleElement(tuple Op, index int) (Op, error)

	// Build finishes the computation with the given root, and returns it.
	// The Builder can no longer be used afterward.
	Build(root Op) (Computation, error)
}
