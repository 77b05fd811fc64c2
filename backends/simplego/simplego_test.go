// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"os"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var backend backends.Backend

func init() {
	klog.InitFlags(nil)
}

func setup() {
	if os.Getenv(backends.GRAPHCOMPILER_BACKEND) == "" {
		must.M(os.Setenv(backends.GRAPHCOMPILER_BACKEND, BackendName))
	} else {
		fmt.Printf("\t$%s=%q\n", backends.GRAPHCOMPILER_BACKEND, os.Getenv(backends.GRAPHCOMPILER_BACKEND))
	}
	backend = must.M1(backends.New())
	fmt.Printf("Backend: %s, %s\n", backend.Name(), backend.Description())
}

func teardown() {
	backend.Finalize()
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run() // Run all tests in the file
	teardown()
	os.Exit(code)
}

// execute compiles the computation and runs it with the given host inputs.
func execute(t *testing.T, computation backends.Computation, inputs ...*tensors.Tensor) *tensors.Tensor {
	exec, err := backend.Compile(computation)
	require.NoError(t, err)
	defer exec.Finalize()
	buffers := make([]backends.Buffer, len(inputs))
	for ii, input := range inputs {
		buffers[ii] = must.M1(backend.BufferFromTensor(input))
	}
	output, err := exec.Execute(buffers...)
	require.NoError(t, err)
	result := must.M1(backend.BufferToTensor(output))
	for _, buf := range append(buffers, output) {
		require.NoError(t, backend.BufferFinalize(buf))
	}
	return result
}

func TestAdd(t *testing.T) {
	builder := backend.Builder("add")
	vecShape := shapes.Make(dtypes.Int32, 2)
	a := must.M1(builder.Parameter("a", vecShape))
	b := must.M1(builder.Parameter("b", vecShape))
	c := must.M1(builder.Add(a, b))
	root := must.M1(builder.Tuple(c))
	computation := must.M1(builder.Build(root))

	ps := computation.ProgramShape()
	assert.Equal(t, []string{"a", "b"}, ps.ParameterNames)
	assert.True(t, ps.Result.Equal(shapes.MakeTuple(vecShape)))

	result := execute(t, computation,
		tensors.FromAnyValue([]int32{7, 42}), tensors.FromAnyValue([]int32{-3, 101}))
	require.True(t, result.IsTuple())
	assert.Equal(t, []int32{4, 143}, result.TupleElements()[0].Value())

	// Builder can't be used after Build.
	_, err := builder.Add(a, b)
	require.ErrorContains(t, err, "already been built")
}

func TestEmptyTuple(t *testing.T) {
	builder := backend.Builder("empty")
	root := must.M1(builder.Tuple())
	computation := must.M1(builder.Build(root))
	assert.Empty(t, computation.ProgramShape().Parameters)
	result := execute(t, computation)
	assert.Equal(t, 0, result.Shape().TupleSize())
}

func TestTupleParameter(t *testing.T) {
	builder := backend.Builder("tuple_param")
	param := must.M1(builder.Parameter("p", shapes.MakeTuple(
		shapes.Make(dtypes.Float32, 2, 2), shapes.Make(dtypes.Float32))))
	x := must.M1(builder.GetTupleElement(param, 0))
	y := must.M1(builder.GetTupleElement(param, 1))
	flat := must.M1(builder.Reshape(x, 4))
	sum := must.M1(builder.Mul(flat, y))
	computation := must.M1(builder.Build(must.M1(builder.Tuple(sum))))

	input := tensors.MakeTuple(
		tensors.FromAnyValue([][]float32{{1, 2}, {3, 4}}),
		tensors.FromScalar(float32(10)))
	result := execute(t, computation, input)
	assert.Equal(t, []float32{10, 20, 30, 40}, result.TupleElements()[0].Value())

	_, err := builder.GetTupleElement(param, 2)
	require.Error(t, err)
}

func TestDynamicUpdateSlice(t *testing.T) {
	builder := backend.Builder("dus")
	buffer := must.M1(builder.Parameter("buffer", shapes.Make(dtypes.Int32, 3, 2)))
	index := must.M1(builder.Parameter("index", shapes.Make(dtypes.Int32)))
	zero := must.M1(builder.Constant([]int32{0}))
	update := must.M1(builder.Constant([]int32{5, 6}, 1, 2))
	starts := []backends.Op{index, zero}
	current := must.M1(builder.DynamicSlice(buffer, starts, []int{1, 2}))
	accumulated := must.M1(builder.Add(current, update))
	updated := must.M1(builder.DynamicUpdateSlice(buffer, accumulated, starts))
	computation := must.M1(builder.Build(must.M1(builder.Tuple(updated))))

	result := execute(t, computation,
		tensors.FromAnyValue([][]int32{{1, 1}, {2, 2}, {3, 3}}), tensors.FromScalar(int32(1)))
	assert.Equal(t, [][]int32{{1, 1}, {7, 8}, {3, 3}}, result.TupleElements()[0].Value())

	// Out-of-range start indices are clamped.
	result = execute(t, computation,
		tensors.FromAnyValue([][]int32{{1, 1}, {2, 2}, {3, 3}}), tensors.FromScalar(int32(7)))
	assert.Equal(t, [][]int32{{1, 1}, {2, 2}, {8, 9}}, result.TupleElements()[0].Value())
}

func TestInstructions(t *testing.T) {
	builder := backend.Builder("instructions")
	x := must.M1(builder.Parameter("x", shapes.Make(dtypes.Float32, 3)))
	one := must.M1(builder.Constant([]float32{1}))
	y := must.M1(builder.Add(x, one))
	b := must.M1(builder.Broadcast(y, 2))
	computation := must.M1(builder.Build(must.M1(builder.Tuple(b))))
	instructions := computation.Instructions()
	require.Len(t, instructions, 5)
	assert.Equal(t, backends.OpTypeAdd, instructions[2].OpType)
	assert.Equal(t, []int{0, 1}, instructions[2].Operands)
	assert.Equal(t, "add.2", instructions[2].Name)
	assert.Equal(t, "prefix_dims=[2]", instructions[3].Attributes)
	assert.True(t, instructions[3].Shape.Equal(shapes.Make(dtypes.Float32, 2, 3)))
}

func TestBuilderErrors(t *testing.T) {
	builder := backend.Builder("errors")
	x := must.M1(builder.Parameter("x", shapes.Make(dtypes.Float32, 3)))
	y := must.M1(builder.Parameter("y", shapes.Make(dtypes.Float32, 2)))
	_, err := builder.Add(x, y)
	require.ErrorContains(t, err, "incompatible shapes")
	_, err = builder.Reshape(x, 2)
	require.Error(t, err)
	_, err = builder.Constant([]float32{1, 2}, 3)
	require.Error(t, err)
	_, err = builder.Add(x, nil)
	require.Error(t, err)
	other := backend.Builder("other")
	z := must.M1(other.Parameter("z", shapes.Make(dtypes.Float32, 3)))
	_, err = builder.Add(x, z)
	require.ErrorContains(t, err, "different builder")
}

func TestBuffers(t *testing.T) {
	goBackend := backend.(*Backend)
	numLive := goBackend.NumLiveBuffers()
	buf := must.M1(backend.BufferFromTensor(tensors.FromAnyValue([]int64{1, 2, 3})))
	assert.Equal(t, numLive+1, goBackend.NumLiveBuffers())
	shape := must.M1(backend.BufferShape(buf))
	assert.True(t, shape.Equal(shapes.Make(dtypes.Int64, 3)))
	require.NoError(t, backend.BufferFinalize(buf))
	assert.Equal(t, numLive, goBackend.NumLiveBuffers())
	_, err := backend.BufferToTensor(buf)
	require.Error(t, err)
}
