// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements host-side literal values: the concrete tensors fed to and fetched
// from compiled computations, the values of compile-time constants, and tuples of those.
//
// A Tensor is immutable after construction, except through the explicit MutableFlatData accessor
// used by constructors and host kernels.
package tensors

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Tensor is a host value with a fixed shape. Tuples hold their elements instead of a flat slice.
type Tensor struct {
	shape shapes.Shape

	// flat is a slice of dtype.GoType() with shape.Size() elements. Nil for tuples.
	flat any

	// elements of a tuple.
	elements []*Tensor
}

// FromShape returns a zero-initialized tensor with the given shape.
// For tuple shapes, each element is zero-initialized recursively.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	if shape.IsTuple() {
		elements := make([]*Tensor, shape.TupleSize())
		for ii, elementShape := range shape.TupleShapes {
			elements[ii] = FromShape(elementShape)
		}
		return MakeTuple(elements...)
	}
	goType := shape.DType.GoType()
	size := shape.Size()
	return &Tensor{
		shape: shape.Clone(),
		flat:  reflect.MakeSlice(reflect.SliceOf(goType), size, size).Interface(),
	}
}

// MakeTuple creates a tuple tensor holding the given elements (not copied).
func MakeTuple(elements ...*Tensor) *Tensor {
	elementShapes := make([]shapes.Shape, len(elements))
	for ii, element := range elements {
		elementShapes[ii] = element.Shape()
	}
	return &Tensor{
		shape:    shapes.MakeTuple(elementShapes...),
		elements: append([]*Tensor{}, elements...),
	}
}

// FromScalar creates a scalar tensor with the given value. The DType is inferred from the value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromFlatDataAndDimensions([]T{value})
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor. The DType is inferred from the `data` type.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	dst := reflect.ValueOf(t.flat)
	for ii, v := range data {
		dst.Index(ii).Set(reflect.ValueOf(v).Convert(dst.Type().Elem()))
	}
	return t
}

// FromAnyValue converts a scalar or a (regular) multi-dimensional slice to a Tensor.
// If value is already a *Tensor it is returned as is. Go `int` values are stored as Int64.
//
// It panics with an error if the value type is unsupported or the shape is not regular.
func FromAnyValue(value any) *Tensor {
	if t, ok := value.(*Tensor); ok {
		return t
	}
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	t := FromShape(shape)
	dst := reflect.ValueOf(t.flat)
	pos := 0
	copyRecursively(dst, reflect.ValueOf(value), &pos)
	return t
}

func copyRecursively(dst, src reflect.Value, pos *int) {
	if src.Kind() == reflect.Slice || src.Kind() == reflect.Array {
		for ii := range src.Len() {
			copyRecursively(dst, src.Index(ii), pos)
		}
		return
	}
	dst.Index(*pos).Set(src.Convert(dst.Type().Elem()))
	*pos++
}

func shapeForValue(v any) (shape shapes.Shape, err error) {
	valueV := reflect.ValueOf(v)
	for valueV.Kind() == reflect.Slice || valueV.Kind() == reflect.Array {
		if valueV.Len() == 0 {
			return shape, errors.Errorf("empty slices can't be converted to tensors, use tensors.FromShape instead")
		}
		shape.Dimensions = append(shape.Dimensions, valueV.Len())
		valueV = valueV.Index(0)
	}
	shape.DType = dtypes.FromGoType(valueV.Type())
	if shape.DType == dtypes.InvalidDType {
		return shape, errors.Errorf("cannot convert type %s to a tensor dtype", valueV.Type())
	}
	if err = checkRegular(reflect.ValueOf(v), shape.Dimensions); err != nil {
		return
	}
	return
}

func checkRegular(v reflect.Value, dims []int) error {
	if len(dims) == 0 {
		return nil
	}
	if v.Len() != dims[0] {
		return errors.Errorf("sub-slices have irregular shapes: got length %d, wanted %d", v.Len(), dims[0])
	}
	for ii := range v.Len() {
		if err := checkRegular(v.Index(ii), dims[1:]); err != nil {
			return err
		}
	}
	return nil
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor. InvalidDType for tuples.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size is the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory used by the tensor data, in bytes.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// IsTuple returns whether the tensor is a tuple of other tensors.
func (t *Tensor) IsTuple() bool { return t.shape.IsTuple() }

// TupleElements returns the elements of a tuple tensor. The slice is owned by the tensor.
func (t *Tensor) TupleElements() []*Tensor { return t.elements }

// ConstFlatData calls accessFn with the flat data of the tensor, which must not be modified.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	if t.IsTuple() {
		exceptions.Panicf("ConstFlatData called on a tuple tensor %s", t.shape)
	}
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flat data of the tensor, which can be modified in place.
// Only to be used while constructing a tensor: tensors are treated as immutable afterward.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	if t.IsTuple() {
		exceptions.Panicf("MutableFlatData called on a tuple tensor %s", t.shape)
	}
	accessFn(t.flat)
}

// CopyFlatData returns a copy of the flat data of the tensor, as a slice of T.
// It panics if T doesn't match the tensor dtype.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("CopyFlatData[%T] called on a tensor of shape %s", *new(T), t.shape)
	}
	return append([]T{}, flat...)
}

// ToScalar returns the scalar value of the tensor.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if !t.shape.IsScalar() {
		exceptions.Panicf("ToScalar called on a non-scalar tensor of shape %s", t.shape)
	}
	return CopyFlatData[T](t)[0]
}

// Value returns a multidimensional slice (or a scalar) containing a copy of the values stored in the tensor.
// For tuples, it returns a []any with the values of each element.
func (t *Tensor) Value() any {
	if t.IsTuple() {
		values := make([]any, len(t.elements))
		for ii, element := range t.elements {
			values[ii] = element.Value()
		}
		return values
	}
	flatV := reflect.ValueOf(t.flat)
	if t.shape.IsScalar() {
		return flatV.Index(0).Interface()
	}
	return buildSlices(flatV, t.shape.Dimensions).Interface()
}

func buildSlices(flatV reflect.Value, dims []int) reflect.Value {
	if len(dims) == 1 {
		out := reflect.MakeSlice(flatV.Type(), dims[0], dims[0])
		reflect.Copy(out, flatV)
		return out
	}
	sliceType := flatV.Type()
	for range dims[1:] {
		sliceType = reflect.SliceOf(sliceType)
	}
	stride := 1
	for _, dim := range dims[1:] {
		stride *= dim
	}
	out := reflect.MakeSlice(sliceType, dims[0], dims[0])
	for ii := range dims[0] {
		out.Index(ii).Set(buildSlices(flatV.Slice(ii*stride, (ii+1)*stride), dims[1:]))
	}
	return out
}

// AsInts returns the values of an integer tensor (scalar or vector) converted to []int.
// It's used for values that represent shapes, dimensions or indices.
func (t *Tensor) AsInts() ([]int, error) {
	if t.IsTuple() || t.Rank() > 1 {
		return nil, errors.Errorf("expected an integer scalar or vector, got shape %s", t.shape)
	}
	if !t.DType().IsInt() && !t.DType().IsUnsigned() {
		return nil, errors.Errorf("expected an integer tensor, got dtype %s", t.DType())
	}
	flatV := reflect.ValueOf(t.flat)
	values := make([]int, flatV.Len())
	for ii := range values {
		elem := flatV.Index(ii)
		if elem.CanInt() {
			values[ii] = int(elem.Int())
		} else {
			values[ii] = int(elem.Uint())
		}
	}
	return values, nil
}

// Equal checks whether t == other: same shape and same values, recursively for tuples.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || !t.shape.Equal(other.shape) {
		return false
	}
	if t.IsTuple() {
		for ii, element := range t.elements {
			if !element.Equal(other.elements[ii]) {
				return false
			}
		}
		return true
	}
	t0V, t1V := reflect.ValueOf(t.flat), reflect.ValueOf(other.flat)
	for ii := range t0V.Len() {
		if !t0V.Index(ii).Equal(t1V.Index(ii)) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	if t.IsTuple() {
		elements := make([]*Tensor, len(t.elements))
		for ii, element := range t.elements {
			elements[ii] = element.Clone()
		}
		return MakeTuple(elements...)
	}
	t2 := FromShape(t.shape)
	reflect.Copy(reflect.ValueOf(t2.flat), reflect.ValueOf(t.flat))
	return t2
}

// String implements fmt.Stringer. Large tensors are summarized.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if t.IsTuple() {
		parts := make([]string, len(t.elements))
		for ii, element := range t.elements {
			parts[ii] = element.String()
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
	}
	const maxValues = 16
	if t.Size() > maxValues {
		return fmt.Sprintf("%s{...%d values}", t.shape, t.Size())
	}
	return fmt.Sprintf("%s%v", t.shape, t.Value())
}
