// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
)

// ShapeRepresentationFn maps the logical shape of a value to the physical shape used at the
// computation boundary. The physical shape must have the same number of elements.
type ShapeRepresentationFn func(shape shapes.Shape, dtype dtypes.DType) (shapes.Shape, error)

// IdentityShapeRepresentation is the default ShapeRepresentationFn: the physical shape is the logical one.
func IdentityShapeRepresentation(shape shapes.Shape, dtype dtypes.DType) (shapes.Shape, error) {
	return shapes.Make(dtype, shape.Dimensions...), nil
}

// FlattenShapeRepresentation represents every value as a vector.
func FlattenShapeRepresentation(shape shapes.Shape, dtype dtypes.DType) (shapes.Shape, error) {
	return shapes.Make(dtype, shape.Size()), nil
}

// physicalShape applies the compiler's shape representation function to the logical shape, and checks
// the result is compatible.
func (c *Compiler) physicalShape(logical shapes.Shape) (shapes.Shape, error) {
	fn := c.options.ShapeRepresentationFn
	if fn == nil {
		fn = IdentityShapeRepresentation
	}
	physical, err := fn(logical, logical.DType)
	if err != nil {
		return shapes.Invalid(), wrapErrorf(ShapeRepresentation, err, "shape representation of %s failed", logical)
	}
	if physical.IsTuple() {
		return shapes.Invalid(), Errorf(ShapeRepresentation, "shape representation of %s is a tuple %s", logical, physical)
	}
	if physical.DType == dtypes.InvalidDType {
		physical.DType = logical.DType
	}
	if physical.DType != logical.DType {
		return shapes.Invalid(), Errorf(ShapeRepresentation,
			"shape representation of %s changed the dtype to %s", logical, physical.DType)
	}
	if physical.Size() != logical.Size() {
		return shapes.Invalid(), Errorf(ShapeRepresentation,
			"shape representation of %s has %d elements, but the logical shape has %d elements (physical shape %s)",
			logical, physical.Size(), logical.Size(), physical)
	}
	return physical, nil
}

// reshapeIfNeeded emits a Reshape from op's shape to the given dimensions, if they differ.
func reshapeIfNeeded(b backends.Builder, op backends.Op, from, to shapes.Shape) (backends.Op, error) {
	if from.EqualDimensions(to) {
		return op, nil
	}
	return b.Reshape(op, to.Dimensions...)
}
