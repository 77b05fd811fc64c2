// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromValue(t *testing.T) {
	tensor := FromAnyValue([][]int32{{1, 2, 3}, {4, 5, 6}})
	assert.True(t, tensor.Shape().Equal(shapes.Make(dtypes.Int32, 2, 3)))
	assert.Equal(t, [][]int32{{1, 2, 3}, {4, 5, 6}}, tensor.Value())
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, CopyFlatData[int32](tensor))

	scalar := FromScalar(float32(3))
	assert.True(t, scalar.Shape().IsScalar())
	assert.Equal(t, float32(3), ToScalar[float32](scalar))
	assert.Equal(t, float32(3), scalar.Value())

	require.Panics(t, func() { FromAnyValue([][]int32{{1, 2}, {3}}) })
	require.Panics(t, func() { FromAnyValue([]int32{}) })

	zeros := FromShape(shapes.Make(dtypes.Float64, 2))
	assert.Equal(t, []float64{0, 0}, zeros.Value())
	empty := FromShape(shapes.Make(dtypes.Float32, 0))
	assert.Equal(t, 0, empty.Size())
}

func TestTuple(t *testing.T) {
	tuple := MakeTuple(FromScalar(int32(1)), FromAnyValue([]float32{2, 3}))
	require.True(t, tuple.IsTuple())
	assert.Equal(t, 2, tuple.Shape().TupleSize())
	assert.Equal(t, []any{int32(1), []float32{2, 3}}, tuple.Value())
	assert.True(t, tuple.Equal(tuple.Clone()))
	assert.False(t, tuple.Equal(MakeTuple(FromScalar(int32(1)))))

	zeros := FromShape(tuple.Shape())
	assert.Equal(t, []any{int32(0), []float32{0, 0}}, zeros.Value())
	assert.Equal(t, "((Int32)1, (Float32)[2][2 3])", tuple.String())
}

func TestAsInts(t *testing.T) {
	assert.Equal(t, []int{2, 3}, must.M1(FromAnyValue([]int64{2, 3}).AsInts()))
	assert.Equal(t, []int{7}, must.M1(FromScalar(uint8(7)).AsInts()))
	_, err := FromAnyValue([]float32{2, 3}).AsInts()
	require.Error(t, err)
	_, err = FromAnyValue([][]int32{{1}}).AsInts()
	require.Error(t, err)
}

func TestBinary(t *testing.T) {
	a, b := FromAnyValue([]int32{7, 42}), FromAnyValue([]int32{-3, 101})
	assert.Equal(t, []int32{4, 143}, must.M1(Binary(BinaryAdd, a, b)).Value())
	assert.Equal(t, []int32{10, -59}, must.M1(Binary(BinarySub, a, b)).Value())
	assert.Equal(t, []int32{-3, 42}, must.M1(Binary(BinaryMin, a, b)).Value())
	assert.Equal(t, []int32{7, 101}, must.M1(Binary(BinaryMax, a, b)).Value())

	// Scalar broadcast.
	assert.Equal(t, []int32{8, 43}, must.M1(Binary(BinaryAdd, a, FromScalar(int32(1)))).Value())
	assert.Equal(t, []int32{14, 84}, must.M1(Binary(BinaryMul, FromScalar(int32(2)), a)).Value())

	_, err := Binary(BinaryDiv, a, FromScalar(int32(0)))
	require.ErrorContains(t, err, "division by zero")
	_, err = Binary(BinaryAdd, a, FromAnyValue([]int32{1, 2, 3}))
	require.Error(t, err)
	_, err = Binary(BinaryAdd, a, FromAnyValue([]float32{1, 2}))
	require.Error(t, err)

	half := FromAnyValue([]float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(2)})
	sum := must.M1(Binary(BinaryAdd, half, half))
	assert.Equal(t, []float16.Float16{float16.Fromfloat32(3), float16.Fromfloat32(4)}, sum.Value())
}

func TestUnary(t *testing.T) {
	assert.Equal(t, []float32{-1, 2}, must.M1(Unary(UnaryNeg, FromAnyValue([]float32{1, -2}))).Value())
	assert.Equal(t, []int64{1, 2}, must.M1(Unary(UnaryAbs, FromAnyValue([]int64{1, -2}))).Value())
}

func TestConvertDType(t *testing.T) {
	converted := must.M1(ConvertDType(FromAnyValue([]float32{1.7, -2.2}), dtypes.Int32))
	assert.Equal(t, []int32{1, -2}, converted.Value())
	converted = must.M1(ConvertDType(FromAnyValue([]int32{0, 3}), dtypes.Bool))
	assert.Equal(t, []bool{false, true}, converted.Value())
	converted = must.M1(ConvertDType(FromAnyValue([]int64{1 << 40}), dtypes.Uint64))
	assert.Equal(t, []uint64{1 << 40}, converted.Value())
	converted = must.M1(ConvertDType(FromAnyValue([]int32{3}), dtypes.Float16))
	assert.Equal(t, []float16.Float16{float16.Fromfloat32(3)}, converted.Value())
}

func TestStructural(t *testing.T) {
	x := FromAnyValue([]int32{1, 2, 3, 4})
	reshaped := must.M1(Reshape(x, 2, 2))
	assert.Equal(t, [][]int32{{1, 2}, {3, 4}}, reshaped.Value())
	_, err := Reshape(x, 3)
	require.Error(t, err)

	filled := must.M1(Broadcast(FromScalar(int32(5)), 2, 3))
	assert.Equal(t, [][]int32{{5, 5, 5}, {5, 5, 5}}, filled.Value())

	matrix := FromAnyValue([][]int32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	slice := must.M1(DynamicSlice(matrix, []int{1, 1}, []int{2, 2}))
	assert.Equal(t, [][]int32{{5, 6}, {8, 9}}, slice.Value())
	// Clamped to fit.
	slice = must.M1(DynamicSlice(matrix, []int{5, -1}, []int{1, 2}))
	assert.Equal(t, [][]int32{{7, 8}}, slice.Value())

	updated := must.M1(DynamicUpdateSlice(matrix, FromAnyValue([][]int32{{0, 0}}), []int{0, 1}))
	assert.Equal(t, [][]int32{{1, 0, 0}, {4, 5, 6}, {7, 8, 9}}, updated.Value())
	// The original is unchanged.
	assert.Equal(t, int32(2), CopyFlatData[int32](matrix)[1])
}
