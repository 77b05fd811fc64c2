// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/backends/simplego"
	"github.com/gomlx/graphcompiler/compiler"
	_ "github.com/gomlx/graphcompiler/compiler/kernels"
	"github.com/gomlx/graphcompiler/pkg/core/resourcemgr"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var backend backends.Backend

// dummyResource is stored in the resource manager, and counted by the DummyReadResource kernel.
type dummyResource struct {
	reads   int
	devices []compiler.DeviceType
}

func init() {
	klog.InitFlags(nil)

	// DummyReadResource forwards its tensor input, and counts its lowerings in the "dummy" resource.
	must.M(dataflow.RegisterOp(dataflow.OpDef{
		Name:       "DummyReadResource",
		Inputs:     []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}},
		Outputs:    []dataflow.ArgDef{{Name: "y", TypeAttr: "T"}},
		Attrs:      []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType}},
		IsStateful: true,
	}))
	must.M(compiler.RegisterKernel(compiler.KernelDef{
		Op: "DummyReadResource",
		Lower: func(ctx *compiler.KernelContext) error {
			if ctx.IsResourceInput(0) {
				return compiler.Errorf(compiler.InvalidArgument, "%s reads a tensor, not a resource handle", ctx.Node().Op())
			}
			r, err := resourcemgr.Lookup[*dummyResource](ctx.ResourceManager(), "", "dummy")
			if err != nil {
				return err
			}
			r.reads++
			r.devices = append(r.devices, ctx.DeviceType())
			for ii := range ctx.NumOutputs() {
				if err = ctx.ForwardInput(0, ii); err != nil {
					return err
				}
			}
			return nil
		},
	}))

	// InvalidOp is a registered op without kernels.
	must.M(dataflow.RegisterOp(dataflow.OpDef{Name: "InvalidOp"}))

	// GPUOnlyOp only has a GPU kernel.
	must.M(dataflow.RegisterOp(dataflow.OpDef{
		Name:    "GPUOnlyOp",
		Inputs:  []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}},
		Outputs: []dataflow.ArgDef{{Name: "y", TypeAttr: "T"}},
		Attrs:   []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType}},
	}))
	must.M(compiler.RegisterKernel(compiler.KernelDef{
		Op:          "GPUOnlyOp",
		DeviceTypes: []compiler.DeviceType{compiler.DeviceGPU},
		Lower:       func(ctx *compiler.KernelContext) error { return ctx.ForwardInput(0, 0) },
	}))
}

func setup() {
	if os.Getenv(backends.GRAPHCOMPILER_BACKEND) == "" {
		must.M(os.Setenv(backends.GRAPHCOMPILER_BACKEND, simplego.BackendName))
	} else {
		fmt.Printf("\t$%s=%q\n", backends.GRAPHCOMPILER_BACKEND, os.Getenv(backends.GRAPHCOMPILER_BACKEND))
	}
	backend = must.M1(backends.New())
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	backend.Finalize()
	os.Exit(code)
}

// newCompiler creates a CPU compiler on the test backend. The options can be further configured by configFns.
func newCompiler(t *testing.T, configFns ...func(opts *compiler.Options)) *compiler.Compiler {
	t.Helper()
	opts := compiler.Options{DeviceType: compiler.DeviceCPU, Backend: backend}
	for _, fn := range configFns {
		fn(&opts)
	}
	c, err := compiler.New(opts)
	require.NoError(t, err)
	return c
}

// execute runs the compiled computation with the given inputs, and returns the elements of its root tuple.
func execute(t *testing.T, result *compiler.CompilationResult, inputs ...*tensors.Tensor) []*tensors.Tensor {
	t.Helper()
	exec, err := backend.Compile(result.Computation)
	require.NoError(t, err)
	defer exec.Finalize()
	buffers := make([]backends.Buffer, len(inputs))
	for ii, input := range inputs {
		buffers[ii] = must.M1(backend.BufferFromTensor(input))
	}
	output, err := exec.Execute(buffers...)
	require.NoError(t, err)
	root := must.M1(backend.BufferToTensor(output))
	for _, buf := range append(buffers, output) {
		require.NoError(t, backend.BufferFinalize(buf))
	}
	require.True(t, root.IsTuple(), "root of the computation must be a tuple, got %s", root.Shape())
	return root.TupleElements()
}

func param(dtype dtypes.DType, dims ...int) compiler.Argument {
	return compiler.Argument{Kind: compiler.ParameterArg, DType: dtype, Shape: shapes.Make(dtype, dims...)}
}

func constant(value any) compiler.Argument {
	t := tensors.FromAnyValue(value)
	return compiler.Argument{Kind: compiler.ConstantArg, DType: t.DType(), Shape: t.Shape(), ConstantValue: t}
}

func entryOptions() compiler.CompileOptions { return compiler.DefaultCompileOptions() }

func resolvingOptions() compiler.CompileOptions {
	opts := compiler.DefaultCompileOptions()
	opts.ResolveCompileTimeConstants = true
	return opts
}

func TestNew(t *testing.T) {
	_, err := compiler.New(compiler.Options{Backend: backend})
	require.Error(t, err)
	_, err = compiler.New(compiler.Options{DeviceType: compiler.DeviceCPU})
	require.Error(t, err)
	c := newCompiler(t)
	assert.Equal(t, compiler.DeviceCPU, c.Options().DeviceType)
	assert.Empty(t, c.LocalFunctionLibrary().Names())
}

func TestEmptyReturnValues(t *testing.T) {
	c := newCompiler(t)
	g := dataflow.NewGraph(nil)
	result, err := c.CompileGraph(entryOptions(), "empty", g, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Outputs)
	assert.Empty(t, result.ResourceUpdates)
	assert.Empty(t, result.InputMapping)
	assert.Empty(t, result.XlaInputShapes)
	assert.True(t, result.XlaOutputShape.IsTuple())
	assert.Equal(t, 0, result.XlaOutputShape.TupleSize())
	assert.Empty(t, execute(t, result))
}

// addGraph builds C = Add(A, B) with both A and B Int32 arguments.
func addGraph(t *testing.T) *dataflow.Graph {
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Int32, 0)
	bArg := b.Arg("B", dtypes.Int32, 1)
	c := b.Op("C", "Add", nil, a, bArg)
	b.Retval("D", c, 0)
	return must.M1(b.Build())
}

func TestSimple(t *testing.T) {
	c := newCompiler(t)
	args := []compiler.Argument{param(dtypes.Int32, 2), param(dtypes.Int32, 2)}
	result, err := c.CompileGraph(entryOptions(), "add", addGraph(t), args)
	require.NoError(t, err)
	fmt.Printf("%s", result)

	require.Len(t, result.Outputs, 1)
	assert.False(t, result.Outputs[0].IsConstant)
	assert.Equal(t, dtypes.Int32, result.Outputs[0].DType)
	assert.Equal(t, []int{2}, result.Outputs[0].Shape.Dimensions)
	assert.Equal(t, []int{0, 1}, result.InputMapping)
	assert.Empty(t, result.ResourceUpdates)

	outputs := execute(t, result,
		tensors.FromAnyValue([]int32{7, 42}),
		tensors.FromAnyValue([]int32{-3, 101}))
	require.Len(t, outputs, 1)
	assert.Equal(t, []int32{4, 143}, outputs[0].Value())
}

func TestArgumentNames(t *testing.T) {
	c := newCompiler(t)
	a := param(dtypes.Int32, 2)
	a.Name = "lhs"
	result := must.M1(c.CompileGraph(entryOptions(), "add", addGraph(t), []compiler.Argument{a, param(dtypes.Int32, 2)}))
	assert.Equal(t, []string{"lhs", "arg1"}, result.Computation.ProgramShape().ParameterNames)
}

// reshapeGraph builds C = Reshape(A, B).
func reshapeGraph(t *testing.T) *dataflow.Graph {
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Int32, 0)
	shape := b.Arg("B", dtypes.Int32, 1)
	c := b.Op("C", "Reshape", nil, a, shape)
	b.Retval("D", c, 0)
	return must.M1(b.Build())
}

func TestHasCompileTimeConstantInputs(t *testing.T) {
	c := newCompiler(t)

	// The shape of the Reshape is a runtime parameter: it can't be compiled.
	args := []compiler.Argument{param(dtypes.Int32, 4), param(dtypes.Int32, 2)}
	_, err := c.CompileGraph(entryOptions(), "reshape", reshapeGraph(t), args)
	require.Error(t, err)
	fmt.Printf("Expected error: %v\n", err)
	assert.True(t, compiler.IsKind(err, compiler.ConstantFolding))
	assert.ErrorContains(t, err, "depends on a parameter")
	assert.ErrorContains(t, err, "[[Node: C = Reshape(A, B)]]")

	// As a constant argument, it is known at compile time.
	args = []compiler.Argument{param(dtypes.Int32, 4), constant([]int32{2, 2})}
	result, err := c.CompileGraph(entryOptions(), "reshape", reshapeGraph(t), args)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.InputMapping)
	assert.Equal(t, []int{2, 2}, result.Outputs[0].Shape.Dimensions)
	outputs := execute(t, result, tensors.FromAnyValue([]int32{1, 2, 3, 4}))
	assert.Equal(t, [][]int32{{1, 2}, {3, 4}}, outputs[0].Value())
}

func TestShapeOfParameterIsConstant(t *testing.T) {
	c := newCompiler(t)
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Float32, 0)
	other := b.Arg("B", dtypes.Float32, 1)
	shape := b.Op("shape", "Shape", nil, other)
	reshaped := b.Op("reshape", "Reshape", nil, a, shape)
	b.Retval("retval", reshaped, 0)
	b.Retval("rank_retval", b.Op("rank", "Rank", nil, other), 1)
	g := must.M1(b.Build())

	result, err := c.CompileGraph(resolvingOptions(), "reshape", g, []compiler.Argument{param(dtypes.Float32, 6), param(dtypes.Float32, 3, 2)})
	require.NoError(t, err)
	require.Len(t, result.Outputs, 2)
	assert.True(t, result.Outputs[1].IsConstant)
	assert.Equal(t, int32(2), result.Outputs[1].ConstantValue.Value())
	outputs := execute(t, result,
		tensors.FromAnyValue([]float32{1, 2, 3, 4, 5, 6}),
		tensors.FromAnyValue([][]float32{{0, 0}, {0, 0}, {0, 0}}))
	require.Len(t, outputs, 1)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, outputs[0].Value())
}

// constantOutputsGraph returns 7 (a constant) and Neg(A).
func constantOutputsGraph(t *testing.T) *dataflow.Graph {
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Int32, 0)
	seven := b.Const("C", int32(7))
	neg := b.Op("D", "Neg", nil, a)
	b.Retval("E", seven, 0)
	b.Retval("F", neg, 1)
	return must.M1(b.Build())
}

func TestConstantOutputs(t *testing.T) {
	c := newCompiler(t)
	args := []compiler.Argument{param(dtypes.Int32, 2)}
	input := tensors.FromAnyValue([]int32{7, 42})

	t.Run("resolved", func(t *testing.T) {
		result, err := c.CompileGraph(resolvingOptions(), "constants", constantOutputsGraph(t), args)
		require.NoError(t, err)
		require.Len(t, result.Outputs, 2)
		assert.True(t, result.Outputs[0].IsConstant)
		assert.Equal(t, int32(7), result.Outputs[0].ConstantValue.Value())
		assert.False(t, result.Outputs[1].IsConstant)
		assert.Equal(t, 1, result.XlaOutputShape.TupleSize())
		outputs := execute(t, result, input)
		require.Len(t, outputs, 1)
		assert.Equal(t, []int32{-7, -42}, outputs[0].Value())
	})

	t.Run("computed", func(t *testing.T) {
		result, err := c.CompileGraph(entryOptions(), "constants", constantOutputsGraph(t), args)
		require.NoError(t, err)
		require.Len(t, result.Outputs, 2)
		assert.False(t, result.Outputs[0].IsConstant)
		assert.False(t, result.Outputs[1].IsConstant)
		outputs := execute(t, result, input)
		require.Len(t, outputs, 2)
		assert.Equal(t, int32(7), outputs[0].Value())
		assert.Equal(t, []int32{-7, -42}, outputs[1].Value())
	})
}

func TestTokenArgument(t *testing.T) {
	c := newCompiler(t)
	b := dataflow.NewGraphBuilder(nil)
	b.Arg("token", dtypes.InvalidDType, 0)
	a := b.Arg("A", dtypes.Float32, 1)
	b.Retval("retval", b.Op("neg", "Neg", nil, a), 0)
	g := must.M1(b.Build())

	args := []compiler.Argument{{Kind: compiler.TokenArg}, param(dtypes.Float32)}
	result, err := c.CompileGraph(entryOptions(), "token", g, args)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, result.InputMapping)
	outputs := execute(t, result, tensors.FromScalar(float32(3)))
	assert.Equal(t, float32(-3), outputs[0].Value())

	// Returning the token itself is not supported.
	b = dataflow.NewGraphBuilder(nil)
	b.Retval("retval", b.Arg("token", dtypes.InvalidDType, 0), 0)
	g = must.M1(b.Build())
	_, err = c.CompileGraph(entryOptions(), "token", g, args[:1])
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.InvalidArgument))
}

func TestResourceManager(t *testing.T) {
	var populated int
	c := newCompiler(t, func(opts *compiler.Options) {
		opts.PopulateResourceManager = func(mgr *resourcemgr.Manager) error {
			populated++
			return mgr.Create("", "dummy", &dummyResource{})
		}
	})
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Int32, 0)
	read := b.Op("B", "DummyReadResource", nil, a)
	b.Retval("C", read, 0)
	g := must.M1(b.Build())
	args := []compiler.Argument{param(dtypes.Int32, 2)}

	for range 2 {
		result, err := c.CompileGraph(entryOptions(), "dummy", g, args)
		require.NoError(t, err)
		outputs := execute(t, result, tensors.FromAnyValue([]int32{7, 42}))
		assert.Equal(t, []int32{7, 42}, outputs[0].Value())
	}
	assert.Equal(t, 1, populated)
	mgr := must.M1(c.ResourceManager())
	dummy := must.M1(resourcemgr.Lookup[*dummyResource](mgr, "", "dummy"))
	assert.Equal(t, 2, dummy.reads)
	assert.Equal(t, []compiler.DeviceType{compiler.DeviceCPU, compiler.DeviceCPU}, dummy.devices)

	// Resource handles are rejected by the kernel.
	b = dataflow.NewGraphBuilder(nil)
	v := b.Arg("V", dtypes.InvalidDType, 0)
	b.Retval("C", b.Op("B", "DummyReadResource", dataflow.Attrs{"T": dtypes.Int32}, v), 0)
	g = must.M1(b.Build())
	_, err := c.CompileGraph(entryOptions(), "dummy_resource", g, []compiler.Argument{variable(dtypes.Int32, 2)})
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.InvalidArgument))
	assert.ErrorContains(t, err, "DummyReadResource reads a tensor, not a resource handle")
	assert.Equal(t, 2, dummy.reads)
}

// fanGraph builds a graph with many independent branches, whose lowering order must not depend
// on map iteration order.
func fanGraph(t *testing.T) *dataflow.Graph {
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Float32, 0)
	sum := b.Const("zero", float32(0))
	for ii := range 20 {
		neg := b.Op(fmt.Sprintf("neg_%d", ii), "Neg", nil, a)
		abs := b.Op(fmt.Sprintf("abs_%d", ii), "Abs", nil, neg)
		sum = b.Op(fmt.Sprintf("sum_%d", ii), "Add", nil, sum, abs)
	}
	b.Retval("retval", sum, 0)
	return must.M1(b.Build())
}

func TestDeterministicCompilation(t *testing.T) {
	args := []compiler.Argument{param(dtypes.Float32, 3)}
	var previous []backends.Instruction
	for ii := range 5 {
		c := newCompiler(t)
		result, err := c.CompileGraph(entryOptions(), "fan", fanGraph(t), args)
		require.NoError(t, err)
		instructions := result.Computation.Instructions()
		if ii > 0 {
			if diff := cmp.Diff(previous, instructions); diff != "" {
				t.Fatalf("compilation #%d differs from the previous one (-previous +current):\n%s", ii, diff)
			}
		}
		previous = instructions
	}
}

func TestNodeWithInvalidDataType(t *testing.T) {
	c := newCompiler(t)
	g := dataflow.NewGraph(nil)
	shape := must.M1(g.AddNode("Shape", "Shape", dataflow.Attrs{"T": dtypes.Int32, "out_type": dtypes.Bool}))
	must.M1(g.AddControlEdge(g.Source(), shape))
	_, err := c.CompileGraph(entryOptions(), "invalid_type", g, nil)
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.InvalidAttribute))
	assert.ErrorContains(t, err, "is not in the list of allowed values")
	assert.ErrorContains(t, err, "[[Node: Shape = Shape()]]")
}

func TestSingleOpWithoutInputs(t *testing.T) {
	c := newCompiler(t)
	g := dataflow.NewGraph(nil)
	must.M1(g.AddNode("NoOp", "NoOp", nil))

	// The node is not connected to the source: it's unreachable.
	_, err := c.CompileGraph(entryOptions(), "noop", g, nil)
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.UnreachableNode))
	assert.ErrorContains(t, err, "The following nodes are unreachable from the source in the graph: NoOp")

	fixed := g.Clone()
	assert.True(t, dataflow.FixupSourceAndSinkEdges(fixed))
	result, err := c.CompileGraph(entryOptions(), "noop", fixed, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Outputs)
}

func TestGraphWithCycle(t *testing.T) {
	c := newCompiler(t)
	g := dataflow.NewGraph(nil)
	a := must.M1(g.AddNode("a", "NoOp", nil))
	b := must.M1(g.AddNode("b", "NoOp", nil))
	must.M1(g.AddControlEdge(g.Source(), a))
	must.M1(g.AddControlEdge(a, b))
	must.M1(g.AddControlEdge(b, a))
	dataflow.FixupSourceAndSinkEdges(g)

	_, err := c.CompileGraph(entryOptions(), "cycle", g, nil)
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.InvalidArgument))
	assert.ErrorContains(t, err, "graph has a cycle: a -> b -> a")
}

func TestUnsupportedOperations(t *testing.T) {
	c := newCompiler(t)
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Float32, 0)
	b.Op("invalid", "InvalidOp", nil)
	b.Retval("retval", b.Op("gpu_only", "GPUOnlyOp", nil, a), 0)
	g := must.M1(b.Build())

	_, err := c.CompileGraph(entryOptions(), "unsupported", g, []compiler.Argument{param(dtypes.Float32)})
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.UnsupportedOperation))
	assert.ErrorContains(t, err,
		`Detected unsupported operations when trying to compile graph "unsupported" on XLA_CPU_JIT: InvalidOp, GPUOnlyOp`)
}

func TestControlFlowIsNotLowered(t *testing.T) {
	c := newCompiler(t)
	b := dataflow.NewGraphBuilder(nil)
	a := b.Arg("A", dtypes.Float32, 0)
	pred := b.Const("pred", true)
	sw := b.Op("switch", "Switch", nil, a, pred)
	b.Retval("retval", sw.OutputAt(1), 0)
	g := must.M1(b.Build())

	_, err := c.CompileGraph(entryOptions(), "switch", g, []compiler.Argument{param(dtypes.Float32)})
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.UnsupportedOperation))
	assert.ErrorContains(t, err, "must be functionalized")
}

func TestKernelRegistry(t *testing.T) {
	err := compiler.RegisterKernel(compiler.KernelDef{
		Op:    "Add",
		Lower: func(ctx *compiler.KernelContext) error { return nil },
	})
	require.Error(t, err)
	require.Error(t, compiler.RegisterKernel(compiler.KernelDef{Op: "NoLowering"}))
	err = compiler.RegisterKernel(compiler.KernelDef{
		Op:          "GPUOnlyOp",
		DeviceTypes: []compiler.DeviceType{compiler.DeviceCPU, compiler.DeviceGPU},
		Lower:       func(ctx *compiler.KernelContext) error { return nil },
	})
	require.ErrorContains(t, err, "already registered for device XLA_GPU_JIT")

	assert.True(t, compiler.HasKernel("Add", compiler.DeviceCPU))
	assert.True(t, compiler.HasKernel("Add", compiler.DeviceGPU))
	assert.False(t, compiler.HasKernel("GPUOnlyOp", compiler.DeviceCPU))
	assert.True(t, compiler.HasKernel("GPUOnlyOp", compiler.DeviceGPU))
	assert.False(t, compiler.HasKernel("InvalidOp", compiler.DeviceCPU))
}

func TestShapeRepresentationErrors(t *testing.T) {
	c := newCompiler(t, func(opts *compiler.Options) {
		opts.ShapeRepresentationFn = func(shape shapes.Shape, dtype dtypes.DType) (shapes.Shape, error) {
			return shapes.Make(dtype, shape.Size()+1), nil
		}
	})
	_, err := c.CompileGraph(entryOptions(), "add", addGraph(t), []compiler.Argument{param(dtypes.Int32, 2), param(dtypes.Int32, 2)})
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.ShapeRepresentation))

	// Non-entry computations don't use the representation for parameters.
	opts := entryOptions()
	opts.IsEntryComputation = false
	_, err = c.CompileGraph(opts, "add", addGraph(t), []compiler.Argument{param(dtypes.Int32, 2), param(dtypes.Int32, 2)})
	require.NoError(t, err)
}

func TestArgumentValidate(t *testing.T) {
	valid := []compiler.Argument{
		param(dtypes.Float32, 2, 3),
		constant([]int64{1, 2}),
		{Kind: compiler.TokenArg},
		{Kind: compiler.ResourceArg, ResourceKind: compiler.Variable},
		{Kind: compiler.ResourceArg, ResourceKind: compiler.Variable, DType: dtypes.Int32, Shape: shapes.Make(dtypes.Int32, 2), Initialized: true},
		{Kind: compiler.ResourceArg, ResourceKind: compiler.TensorArray, DType: dtypes.Float32, TensorArraySize: 3,
			Initialized: true, TensorArrayGradients: []string{"a", "b"}},
		{Kind: compiler.ResourceArg, ResourceKind: compiler.Stack, DType: dtypes.Float32, TensorArraySize: 3, Initialized: true},
	}
	for _, arg := range valid {
		assert.NoError(t, arg.Validate(), "argument %s", &arg)
	}

	invalid := map[string]compiler.Argument{
		"parameter without dtype": {Kind: compiler.ParameterArg},
		"constant without value":  {Kind: compiler.ConstantArg, DType: dtypes.Int32},
		"constant shape mismatch": {Kind: compiler.ConstantArg, DType: dtypes.Int32, Shape: shapes.Make(dtypes.Int32, 3),
			ConstantValue: tensors.FromAnyValue([]int32{1, 2})},
		"value on parameter":    {Kind: compiler.ParameterArg, DType: dtypes.Int32, ConstantValue: tensors.FromScalar(int32(1))},
		"size on parameter":     {Kind: compiler.ParameterArg, DType: dtypes.Int32, TensorArraySize: 2},
		"token with dtype":      {Kind: compiler.TokenArg, DType: dtypes.Int32},
		"gradients on variable": {Kind: compiler.ResourceArg, ResourceKind: compiler.Variable, DType: dtypes.Int32, TensorArrayGradients: []string{"a"}},
		"size on variable":      {Kind: compiler.ResourceArg, ResourceKind: compiler.Variable, DType: dtypes.Int32, TensorArraySize: 2},
		"uninitialized gradients": {Kind: compiler.ResourceArg, ResourceKind: compiler.TensorArray, DType: dtypes.Int32,
			TensorArrayGradients: []string{"a"}},
		"duplicate gradients": {Kind: compiler.ResourceArg, ResourceKind: compiler.TensorArray, DType: dtypes.Int32,
			Initialized: true, TensorArrayGradients: []string{"a", "a"}},
		"tensor array without dtype": {Kind: compiler.ResourceArg, ResourceKind: compiler.TensorArray},
		"invalid kind":               {Kind: compiler.ArgumentKind(17)},
		"too many elements":          param(dtypes.Float32, 1<<40, 1<<40),
	}
	for name, arg := range invalid {
		err := arg.Validate()
		require.Error(t, err, name)
		assert.True(t, compiler.IsKind(err, compiler.InvalidArgument), name)
	}

	// CompileGraph validates its arguments.
	c := newCompiler(t)
	_, err := c.CompileGraph(entryOptions(), "add", addGraph(t), []compiler.Argument{param(dtypes.Int32, 2), {Kind: compiler.ParameterArg}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "argument #1")
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, compiler.KindUnknown, compiler.KindOf(fmt.Errorf("plain error")))
	assert.False(t, compiler.IsKind(nil, compiler.KindUnknown))
	err := compiler.Errorf(compiler.FunctionNotFound, "function %q", "foo")
	assert.Equal(t, compiler.FunctionNotFound, compiler.KindOf(err))
	assert.Equal(t, `FunctionNotFound: function "foo"`, err.Error())
	assert.Equal(t, "ErrorKind(99)", compiler.ErrorKind(99).String())
	wrapped := fmt.Errorf("while testing: %w", err)
	assert.True(t, compiler.IsKind(wrapped, compiler.FunctionNotFound))
}
