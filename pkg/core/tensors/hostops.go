// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"reflect"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// This file holds the host implementation of the handful of element-wise and structural operations
// needed to evaluate values on the host: both the constant folding done at compile time and the
// pure Go executor use them.

// BinaryOp enumerates the element-wise binary operations supported by Binary.
type BinaryOp int

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMax
	BinaryMin
)

var binaryOpNames = []string{"Add", "Sub", "Mul", "Div", "Max", "Min"}

// String implements fmt.Stringer.
func (op BinaryOp) String() string {
	if int(op) < 0 || int(op) >= len(binaryOpNames) {
		return "BinaryOp(?)"
	}
	return binaryOpNames[op]
}

// UnaryOp enumerates the element-wise unary operations supported by Unary.
type UnaryOp int

const (
	UnaryNeg UnaryOp = iota
	UnaryAbs
)

// String implements fmt.Stringer.
func (op UnaryOp) String() string {
	switch op {
	case UnaryNeg:
		return "Neg"
	case UnaryAbs:
		return "Abs"
	}
	return "UnaryOp(?)"
}

type number interface {
	constraints.Integer | constraints.Float
}

// BinaryOutputShape returns the shape of a binary op between lhs and rhs: shapes must be equal,
// or one of them must be a scalar, in which case it is broadcast.
func BinaryOutputShape(lhs, rhs shapes.Shape) (shapes.Shape, error) {
	if lhs.IsTuple() || rhs.IsTuple() {
		return shapes.Invalid(), errors.Errorf("binary ops don't accept tuples: %s, %s", lhs, rhs)
	}
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("binary op with mismatched dtypes: %s, %s", lhs, rhs)
	}
	switch {
	case lhs.Equal(rhs):
		return lhs.Clone(), nil
	case lhs.IsScalar():
		return rhs.Clone(), nil
	case rhs.IsScalar():
		return lhs.Clone(), nil
	}
	return shapes.Invalid(), errors.Errorf("incompatible shapes for binary op: %s, %s", lhs, rhs)
}

// Binary evaluates the element-wise op on the host. Scalars are broadcast to the other operand's shape.
func Binary(op BinaryOp, lhs, rhs *Tensor) (*Tensor, error) {
	outShape, err := BinaryOutputShape(lhs.Shape(), rhs.Shape())
	if err != nil {
		return nil, errors.WithMessagef(err, "host %s", op)
	}
	out := FromShape(outShape)
	switch lhsFlat := lhs.flat.(type) {
	case []int8:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]int8), out.flat.([]int8))
	case []int16:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]int16), out.flat.([]int16))
	case []int32:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]int32), out.flat.([]int32))
	case []int64:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]int64), out.flat.([]int64))
	case []uint8:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]uint8), out.flat.([]uint8))
	case []uint16:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]uint16), out.flat.([]uint16))
	case []uint32:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]uint32), out.flat.([]uint32))
	case []uint64:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]uint64), out.flat.([]uint64))
	case []float32:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]float32), out.flat.([]float32))
	case []float64:
		err = binaryGeneric(op, lhsFlat, rhs.flat.([]float64), out.flat.([]float64))
	case []float16.Float16:
		lhs32, rhs32 := float16ToFloat32(lhsFlat), float16ToFloat32(rhs.flat.([]float16.Float16))
		out32 := make([]float32, outShape.Size())
		err = binaryGeneric(op, lhs32, rhs32, out32)
		float32ToFloat16(out32, out.flat.([]float16.Float16))
	default:
		err = errors.Errorf("dtype %s not supported", lhs.DType())
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "host %s(%s, %s)", op, lhs.Shape(), rhs.Shape())
	}
	return out, nil
}

func broadcastIndex(length, ii int) int {
	if length == 1 {
		return 0
	}
	return ii
}

func binaryGeneric[T number](op BinaryOp, lhs, rhs, out []T) error {
	isInteger := T(1)/T(2) == 0
	for ii := range out {
		a, b := lhs[broadcastIndex(len(lhs), ii)], rhs[broadcastIndex(len(rhs), ii)]
		switch op {
		case BinaryAdd:
			out[ii] = a + b
		case BinarySub:
			out[ii] = a - b
		case BinaryMul:
			out[ii] = a * b
		case BinaryDiv:
			if isInteger && b == 0 {
				return errors.Errorf("integer division by zero")
			}
			out[ii] = a / b
		case BinaryMax:
			out[ii] = max(a, b)
		case BinaryMin:
			out[ii] = min(a, b)
		default:
			return errors.Errorf("unknown binary op %d", op)
		}
	}
	return nil
}

// Unary evaluates the element-wise op on the host.
func Unary(op UnaryOp, operand *Tensor) (*Tensor, error) {
	if operand.IsTuple() {
		return nil, errors.Errorf("host %s doesn't accept tuples", op)
	}
	out := FromShape(operand.Shape())
	var err error
	switch flat := operand.flat.(type) {
	case []int8:
		unaryGeneric(op, flat, out.flat.([]int8))
	case []int16:
		unaryGeneric(op, flat, out.flat.([]int16))
	case []int32:
		unaryGeneric(op, flat, out.flat.([]int32))
	case []int64:
		unaryGeneric(op, flat, out.flat.([]int64))
	case []uint8:
		unaryGeneric(op, flat, out.flat.([]uint8))
	case []uint16:
		unaryGeneric(op, flat, out.flat.([]uint16))
	case []uint32:
		unaryGeneric(op, flat, out.flat.([]uint32))
	case []uint64:
		unaryGeneric(op, flat, out.flat.([]uint64))
	case []float32:
		unaryGeneric(op, flat, out.flat.([]float32))
	case []float64:
		unaryGeneric(op, flat, out.flat.([]float64))
	case []float16.Float16:
		out32 := make([]float32, len(flat))
		unaryGeneric(op, float16ToFloat32(flat), out32)
		float32ToFloat16(out32, out.flat.([]float16.Float16))
	default:
		err = errors.Errorf("host %s: dtype %s not supported", op, operand.DType())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func unaryGeneric[T number](op UnaryOp, operand, out []T) {
	for ii, x := range operand {
		switch op {
		case UnaryNeg:
			out[ii] = -x
		case UnaryAbs:
			if x < 0 {
				x = -x
			}
			out[ii] = x
		}
	}
}

func float16ToFloat32(flat []float16.Float16) []float32 {
	out := make([]float32, len(flat))
	for ii, v := range flat {
		out[ii] = v.Float32()
	}
	return out
}

func float32ToFloat16(flat []float32, out []float16.Float16) {
	for ii, v := range flat {
		out[ii] = float16.Fromfloat32(v)
	}
}

// ConvertDType returns a copy of operand converted to dtype.
func ConvertDType(operand *Tensor, dtype dtypes.DType) (*Tensor, error) {
	if operand.IsTuple() {
		return nil, errors.Errorf("cannot convert dtype of a tuple")
	}
	if operand.DType() == dtype {
		return operand.Clone(), nil
	}
	if dtype.IsComplex() || operand.DType().IsComplex() || dtype == dtypes.BFloat16 || operand.DType() == dtypes.BFloat16 {
		return nil, errors.Errorf("host conversion from %s to %s not supported", operand.DType(), dtype)
	}
	outShape := operand.Shape().Clone()
	outShape.DType = dtype
	out := FromShape(outShape)
	srcV, dstV := reflect.ValueOf(operand.flat), reflect.ValueOf(out.flat)
	goType := dtype.GoType()
	for ii := range srcV.Len() {
		src := srcV.Index(ii)
		switch {
		case dtype == dtypes.Bool:
			dstV.Index(ii).SetBool(elementAsFloat64(src) != 0)
		case dtype == dtypes.Float16:
			dstV.Index(ii).Set(reflect.ValueOf(float16.Fromfloat32(float32(elementAsFloat64(src)))))
		case (dtype.IsInt() || dtype.IsUnsigned()) && src.CanInt():
			dstV.Index(ii).Set(reflect.ValueOf(src.Int()).Convert(goType))
		case (dtype.IsInt() || dtype.IsUnsigned()) && src.CanUint():
			dstV.Index(ii).Set(reflect.ValueOf(src.Uint()).Convert(goType))
		default:
			dstV.Index(ii).Set(reflect.ValueOf(elementAsFloat64(src)).Convert(goType))
		}
	}
	return out, nil
}

func elementAsFloat64(v reflect.Value) float64 {
	switch x := v.Interface().(type) {
	case float16.Float16:
		return float64(x.Float32())
	case bool:
		if x {
			return 1
		}
		return 0
	}
	switch {
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	case v.CanFloat():
		return v.Float()
	}
	return 0
}

// Reshape returns a copy of operand with new dimensions. The number of elements must be preserved.
func Reshape(operand *Tensor, dimensions ...int) (*Tensor, error) {
	if operand.IsTuple() {
		return nil, errors.Errorf("cannot reshape a tuple")
	}
	newShape := shapes.Make(operand.DType(), dimensions...)
	if err := shapes.CheckCompatibleReshape(operand.Shape(), newShape); err != nil {
		return nil, err
	}
	out := operand.Clone()
	out.shape = newShape
	return out, nil
}

// Broadcast returns operand replicated along new leading axes with the given prefix dimensions.
func Broadcast(operand *Tensor, prefixDimensions ...int) (*Tensor, error) {
	if operand.IsTuple() {
		return nil, errors.Errorf("cannot broadcast a tuple")
	}
	outShape := shapes.Make(operand.DType(), append(slices.Clone(prefixDimensions), operand.Shape().Dimensions...)...)
	out := FromShape(outShape)
	srcV, dstV := reflect.ValueOf(operand.flat), reflect.ValueOf(out.flat)
	if srcV.Len() == 0 {
		return out, nil
	}
	for ii := range dstV.Len() {
		dstV.Index(ii).Set(srcV.Index(ii % srcV.Len()))
	}
	return out, nil
}

func stridesFor(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= dims[axis]
	}
	return strides
}

// clampStarts clamps start indices such that a slice of the given sizes fits in dims, the same way XLA does.
func clampStarts(dims, starts, sizes []int) ([]int, error) {
	if len(starts) != len(dims) || len(sizes) != len(dims) {
		return nil, errors.Errorf("dynamic slice requires one start index and size per axis: dims=%v, starts=%v, sizes=%v",
			dims, starts, sizes)
	}
	clamped := make([]int, len(dims))
	for axis, dim := range dims {
		if sizes[axis] > dim || sizes[axis] < 0 {
			return nil, errors.Errorf("slice size %d out of range for axis %d with dimension %d", sizes[axis], axis, dim)
		}
		clamped[axis] = min(max(starts[axis], 0), dim-sizes[axis])
	}
	return clamped, nil
}

// DynamicSlice extracts a slice of the given sizes starting at the given (clamped) indices.
func DynamicSlice(operand *Tensor, starts, sizes []int) (*Tensor, error) {
	if operand.IsTuple() {
		return nil, errors.Errorf("cannot slice a tuple")
	}
	dims := operand.Shape().Dimensions
	starts, err := clampStarts(dims, starts, sizes)
	if err != nil {
		return nil, err
	}
	out := FromShape(shapes.Make(operand.DType(), sizes...))
	srcStrides := stridesFor(dims)
	srcV, dstV := reflect.ValueOf(operand.flat), reflect.ValueOf(out.flat)
	forEachIndex(sizes, func(dstIdx int, index []int) {
		srcIdx := 0
		for axis, ii := range index {
			srcIdx += (starts[axis] + ii) * srcStrides[axis]
		}
		dstV.Index(dstIdx).Set(srcV.Index(srcIdx))
	})
	return out, nil
}

// DynamicUpdateSlice returns a copy of operand with the update written starting at the given (clamped) indices.
func DynamicUpdateSlice(operand, update *Tensor, starts []int) (*Tensor, error) {
	if operand.IsTuple() || update.IsTuple() {
		return nil, errors.Errorf("cannot update-slice tuples")
	}
	if operand.DType() != update.DType() || operand.Rank() != update.Rank() {
		return nil, errors.Errorf("update %s incompatible with operand %s", update.Shape(), operand.Shape())
	}
	dims := operand.Shape().Dimensions
	starts, err := clampStarts(dims, starts, update.Shape().Dimensions)
	if err != nil {
		return nil, err
	}
	out := operand.Clone()
	dstStrides := stridesFor(dims)
	srcV, dstV := reflect.ValueOf(update.flat), reflect.ValueOf(out.flat)
	forEachIndex(update.Shape().Dimensions, func(srcIdx int, index []int) {
		dstIdx := 0
		for axis, ii := range index {
			dstIdx += (starts[axis] + ii) * dstStrides[axis]
		}
		dstV.Index(dstIdx).Set(srcV.Index(srcIdx))
	})
	return out, nil
}

// forEachIndex calls fn for every multi-dimensional index of dims, in row-major order.
func forEachIndex(dims []int, fn func(flatIdx int, index []int)) {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	index := make([]int, len(dims))
	for flatIdx := range size {
		fn(flatIdx, index)
		for axis := len(dims) - 1; axis >= 0; axis-- {
			index[axis]++
			if index[axis] < dims[axis] {
				break
			}
			index[axis] = 0
		}
	}
}
