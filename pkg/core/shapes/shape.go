// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the logical (or physical) layout of a value flowing through a
// dataflow graph or through a compiled computation.
//
// A Shape is a DType plus its dimensions, or a tuple of other shapes. Tuples are used for the
// root of compiled computations and for resources that carry sub-values (e.g., a tensor array
// and its gradients).
//
// Example: the multi-dimensional array `[][]int32{{0, 1, 2}, {3, 4, 5}}` has shape `(Int32)[2 3]`,
// created with `shapes.Make(dtypes.Int32, 2, 3)`.
package shapes

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Shape represents the shape of either a Tensor or the expected shape of a value in a computation.
//
// Use Make to create a new shape, and MakeTuple for tuples.
type Shape struct {
	DType       dtypes.DType
	Dimensions  []int
	TupleShapes []Shape // Shapes of the tuple, if this is a tuple: non-nil even for an empty tuple.
}

// Make returns a Shape structure filled with the values given.
// It panics if any of the dimensions is negative. Dimensions of 0 are valid, and yield an empty value.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension < 0", s)
		}
	}
	return s
}

// Scalar returns a scalar Shape for the given Go type.
func Scalar[T dtypes.Supported]() Shape {
	return Shape{DType: dtypes.FromGenericsType[T]()}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// MakeTuple returns a shape representing a tuple of elements with the given shapes.
// An empty list of elements yields a valid empty tuple.
func MakeTuple(elements ...Shape) Shape {
	return Shape{DType: dtypes.InvalidDType, TupleShapes: append([]Shape{}, elements...)}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{},
// is invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType || s.TupleShapes != nil }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.DType != dtypes.InvalidDType && s.Rank() == 0 }

// IsTuple returns whether the shape represents a tuple.
func (s Shape) IsTuple() bool { return s.DType == dtypes.InvalidDType && s.TupleShapes != nil }

// TupleSize returns the number of elements in the tuple, if it is a tuple.
func (s Shape) TupleSize() int { return len(s.TupleShapes) }

// Dim returns the dimension of the given axis. Negative axes count from the end.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// HasShape is implemented by anything that carries a Shape.
type HasShape interface {
	Shape() Shape
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.IsTuple() {
		parts := make([]string, 0, s.TupleSize())
		for _, tuple := range s.TupleShapes {
			parts = append(parts, tuple.String())
		}
		return fmt.Sprintf("Tuple<%s>", strings.Join(parts, ", "))
	}
	if !s.Ok() {
		return "(invalid)"
	}
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
// For tuples, it returns the sum of the sizes of its elements.
func (s Shape) Size() (size int) {
	if s.IsTuple() {
		for _, element := range s.TupleShapes {
			size += element.Size()
		}
		return
	}
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// CheckedSize returns the number of elements of an array with the given dimensions. It fails if any
// dimension is negative, or if the number of elements overflows an int.
func CheckedSize(dimensions ...int) (int, error) {
	for _, d := range dimensions {
		if d < 0 {
			return 0, errors.Errorf("negative dimension in %v", dimensions)
		}
	}
	if slices.Contains(dimensions, 0) {
		return 0, nil
	}
	size := 1
	for _, d := range dimensions {
		if size > math.MaxInt/d {
			return 0, errors.Errorf("the number of elements of dimensions %v overflows", dimensions)
		}
		size *= d
	}
	return size, nil
}

// Memory returns the memory used to store an array of the given shape, the same as the size in bytes.
func (s Shape) Memory() uintptr {
	if s.IsTuple() {
		var total uintptr
		for _, element := range s.TupleShapes {
			total += element.Memory()
		}
		return total
	}
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared, recursively for tuples.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType || s.IsTuple() != s2.IsTuple() {
		return false
	}
	if s.IsTuple() {
		if s.TupleSize() != s2.TupleSize() {
			return false
		}
		for ii, element := range s.TupleShapes {
			if !element.Equal(s2.TupleShapes[ii]) {
				return false
			}
		}
		return true
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualDimensions compares two shapes for equality of dimensions. DTypes can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.IsTuple() || s2.IsTuple() {
		return false
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	if s.TupleShapes != nil {
		s2.TupleShapes = make([]Shape, 0, len(s.TupleShapes))
		for _, subShape := range s.TupleShapes {
			s2.TupleShapes = append(s2.TupleShapes, subShape.Clone())
		}
	}
	return
}

// WithDimensions returns a copy of the shape, with the same DType, but with the given dimensions.
func (s Shape) WithDimensions(dimensions ...int) Shape {
	return Make(s.DType, dimensions...)
}

// CheckCompatibleReshape returns an error if a value of shape `from` cannot be reshaped to `to`:
// that is, if their dtypes or their number of elements differ.
func CheckCompatibleReshape(from, to Shape) error {
	if from.IsTuple() || to.IsTuple() {
		return errors.Errorf("cannot reshape tuples: %s -> %s", from, to)
	}
	if from.DType != to.DType {
		return errors.Errorf("cannot reshape %s to %s: dtypes differ", from, to)
	}
	if _, err := CheckedSize(to.Dimensions...); err != nil {
		return errors.WithMessagef(err, "cannot reshape %s to %s", from, to)
	}
	if from.Size() != to.Size() {
		return errors.Errorf("cannot reshape %s (%d elements) to %s (%d elements)", from, from.Size(), to, to.Size())
	}
	return nil
}

// ConcatenateDimensions of two shapes. The resulting rank is the sum of both ranks. They must
// have the same dtype. It doesn't work for tuples, in which case it returns an invalid shape.
func ConcatenateDimensions(s1, s2 Shape) (shape Shape) {
	if s1.IsTuple() || s2.IsTuple() || s1.DType != s2.DType {
		return Invalid()
	}
	shape.DType = s1.DType
	shape.Dimensions = make([]int, s1.Rank()+s2.Rank())
	copy(shape.Dimensions, s1.Dimensions)
	copy(shape.Dimensions[s1.Rank():], s2.Dimensions)
	return
}
