// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())
	require.False(t, invalidShape.IsTuple())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.False(t, shape0.IsTuple())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(dtypes.Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))
	require.Equal(t, 2, shape1.Dim(-1))

	empty := Make(dtypes.Float32, 0)
	require.True(t, empty.Ok())
	require.Equal(t, 0, empty.Size())

	require.Panics(t, func() { _ = Make(dtypes.Int32, -1) })
}

func TestTuple(t *testing.T) {
	emptyTuple := MakeTuple()
	require.True(t, emptyTuple.Ok())
	require.True(t, emptyTuple.IsTuple())
	require.Equal(t, 0, emptyTuple.TupleSize())
	require.Equal(t, "Tuple<>", emptyTuple.String())

	tuple := MakeTuple(Make(dtypes.Int32, 2), Make(dtypes.Int32, 4))
	require.Equal(t, 2, tuple.TupleSize())
	require.Equal(t, 6, tuple.Size())
	require.True(t, tuple.Equal(tuple.Clone()))
	require.False(t, tuple.Equal(MakeTuple(Make(dtypes.Int32, 2))))
	require.False(t, tuple.Equal(Make(dtypes.Int32, 2)))
	require.True(t, emptyTuple.Clone().IsTuple())
}

func TestCheckCompatibleReshape(t *testing.T) {
	require.NoError(t, CheckCompatibleReshape(Make(dtypes.Int32, 2, 2), Make(dtypes.Int32, 4)))
	require.Error(t, CheckCompatibleReshape(Make(dtypes.Int32, 2, 2), Make(dtypes.Int32, 3)))
	require.Error(t, CheckCompatibleReshape(Make(dtypes.Int32, 2), Make(dtypes.Float32, 2)))
}

func TestCheckedSize(t *testing.T) {
	size, err := CheckedSize(4, 3, 2)
	require.NoError(t, err)
	require.Equal(t, 24, size)
	size, err = CheckedSize()
	require.NoError(t, err)
	require.Equal(t, 1, size)
	size, err = CheckedSize(1<<40, 1<<40, 0)
	require.NoError(t, err)
	require.Equal(t, 0, size)

	_, err = CheckedSize(1<<32, 1<<32)
	require.ErrorContains(t, err, "overflows")
	_, err = CheckedSize(2, -1)
	require.ErrorContains(t, err, "negative")

	err = CheckCompatibleReshape(Make(dtypes.Float32, 4), Make(dtypes.Float32, 1<<32, 1<<32, 0, 1<<32))
	require.Error(t, err)
	err = CheckCompatibleReshape(Make(dtypes.Float32, 4), Make(dtypes.Float32, 1<<32, 1<<32))
	require.ErrorContains(t, err, "overflows")
}
