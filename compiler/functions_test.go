// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allowedFillTypes = []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Int32, dtypes.Int64}

// fillFn returns a function FillFn(x T, dims int32) -> y T filling a tensor of shape dims with x.
// Extra body nodes are appended to the function body.
func fillFn(extra ...dataflow.NodeDef) *dataflow.FunctionDef {
	return &dataflow.FunctionDef{
		Signature: dataflow.OpDef{
			Name:    "FillFn",
			Inputs:  []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}, {Name: "dims", Type: dtypes.Int32}},
			Outputs: []dataflow.ArgDef{{Name: "y", TypeAttr: "T"}},
			Attrs:   []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType, AllowedValues: allowedFillTypes}},
		},
		Nodes: append([]dataflow.NodeDef{
			{Name: "y", Op: "Fill", Inputs: []string{"dims", "x"}, Attrs: dataflow.Attrs{"T": dataflow.AttrPlaceholder("T")}},
		}, extra...),
		Ret: map[string]string{"y": "y:0"},
	}
}

// constNegFn returns a function ConstNegFn(x T) -> (c int32, n T) returning the constant 7 and -x.
func constNegFn() *dataflow.FunctionDef {
	return &dataflow.FunctionDef{
		Signature: dataflow.OpDef{
			Name:    "ConstNegFn",
			Inputs:  []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}},
			Outputs: []dataflow.ArgDef{{Name: "c", Type: dtypes.Int32}, {Name: "n", TypeAttr: "T"}},
			Attrs:   []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType}},
		},
		Nodes: []dataflow.NodeDef{
			{Name: "c", Op: "Const", Attrs: dataflow.Attrs{"value": tensors.FromScalar(int32(7)), "dtype": dtypes.Int32}},
			{Name: "n", Op: "Neg", Inputs: []string{"x"}, Attrs: dataflow.Attrs{"T": dataflow.AttrPlaceholder("T")}},
		},
		Ret: map[string]string{"c": "c:0", "n": "n:0"},
	}
}

func withLibrary(lib *dataflow.FunctionLibrary) func(opts *compiler.Options) {
	return func(opts *compiler.Options) { opts.FunctionLibrary = lib }
}

func TestUndefinedFunction(t *testing.T) {
	c := newCompiler(t)
	_, err := c.CompileFunction(entryOptions(), dataflow.NameAttrs{Name: "Missing"}, nil)
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.FunctionNotFound))
	assert.ErrorContains(t, err, `Function "Missing" is not defined.`)
}

func TestLocalFunctionWithWrongArgs(t *testing.T) {
	c := newCompiler(t)
	require.NoError(t, c.LocalFunctionLibrary().AddFunction(fillFn()))
	args := []compiler.Argument{param(dtypes.Int32), constant([]int32{5})}

	// Without the attribute T, the local function can't be instantiated.
	_, err := c.CompileFunction(entryOptions(), dataflow.NameAttrs{Name: "FillFn"}, args)
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.FunctionNotFound))
	assert.ErrorContains(t, err, "Attr T is not found")
	assert.ErrorContains(t, err, `Function "FillFn" is not defined.`)

	// The number of arguments must match the function.
	fn := dataflow.NameAttrs{Name: "FillFn", Attrs: dataflow.Attrs{"T": dtypes.Int32}}
	_, err = c.CompileFunction(entryOptions(), fn, args[:1])
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.InvalidArgument))
}

func TestCompileFunction(t *testing.T) {
	lib := must.M1(dataflow.NewFunctionLibrary(fillFn()))
	c := newCompiler(t, withLibrary(lib))
	fn := dataflow.NameAttrs{Name: "FillFn", Attrs: dataflow.Attrs{"T": dtypes.Int32}}
	args := []compiler.Argument{param(dtypes.Int32), constant([]int32{3})}

	result, err := c.CompileFunction(entryOptions(), fn, args)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.InputMapping)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, []int{3}, result.Outputs[0].Shape.Dimensions)
	outputs := execute(t, result, tensors.FromScalar(int32(4)))
	assert.Equal(t, []int32{4, 4, 4}, outputs[0].Value())

	// Same function, options and arguments: the cached result is returned.
	again, err := c.CompileFunction(entryOptions(), fn, args)
	require.NoError(t, err)
	assert.Same(t, result, again)

	// A different constant value is a different compilation.
	other, err := c.CompileFunction(entryOptions(), fn, []compiler.Argument{param(dtypes.Int32), constant([]int32{2})})
	require.NoError(t, err)
	assert.NotSame(t, result, other)
	assert.Equal(t, []int{2}, other.Outputs[0].Shape.Dimensions)
}

func TestFunctionCallWithConstants(t *testing.T) {
	lib := must.M1(dataflow.NewFunctionLibrary(fillFn()))
	c := newCompiler(t, withLibrary(lib))
	b := dataflow.NewGraphBuilder(lib)
	value := b.Const("value", int32(1))
	shape := b.Const("shape", []int32{5})
	fill := b.Op("fill", "FillFn", nil, value, shape)
	b.Retval("retval", fill, 0)
	g := must.M1(b.Build())

	result, err := c.CompileGraph(resolvingOptions(), "fill", g, nil)
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	assert.True(t, result.Outputs[0].IsConstant)
	assert.Equal(t, []int32{1, 1, 1, 1, 1}, result.Outputs[0].ConstantValue.Value())

	result, err = c.CompileGraph(entryOptions(), "fill", g, nil)
	require.NoError(t, err)
	assert.False(t, result.Outputs[0].IsConstant)
	outputs := execute(t, result)
	assert.Equal(t, []int32{1, 1, 1, 1, 1}, outputs[0].Value())
}

func TestConstantOutputsOfFunctionCall(t *testing.T) {
	c := newCompiler(t)
	require.NoError(t, c.LocalFunctionLibrary().AddFunction(constNegFn()))

	// There is no global library: the call is resolved with the compiler's local library.
	b := dataflow.NewGraphBuilder(c.LocalFunctionLibrary())
	a := b.Arg("A", dtypes.Int32, 0)
	call := b.Op("call", "ConstNegFn", nil, a)
	b.Retval("c", call, 0)
	b.Retval("n", call.OutputAt(1), 1)
	g := must.M1(b.Build())

	result, err := c.CompileGraph(resolvingOptions(), "const_neg", g, []compiler.Argument{param(dtypes.Int32, 2)})
	require.NoError(t, err)
	require.Len(t, result.Outputs, 2)
	assert.True(t, result.Outputs[0].IsConstant)
	assert.Equal(t, int32(7), result.Outputs[0].ConstantValue.Value())
	assert.False(t, result.Outputs[1].IsConstant)
	outputs := execute(t, result, tensors.FromAnyValue([]int32{7, 42}))
	require.Len(t, outputs, 1)
	assert.Equal(t, []int32{-7, -42}, outputs[0].Value())
}

func TestFunctionWithInvalidOp(t *testing.T) {
	fn := fillFn(
		dataflow.NodeDef{Name: "invalid", Op: "InvalidOp"},
		dataflow.NodeDef{Name: "switch", Op: "Switch", Inputs: []string{"x", "pred"}},
	)
	lib := must.M1(dataflow.NewFunctionLibrary(fn))
	c := newCompiler(t, withLibrary(lib))
	b := dataflow.NewGraphBuilder(lib)
	value := b.Const("value", int32(1))
	shape := b.Const("shape", []int32{5})
	fill := b.Op("fill", "FillFn", nil, value, shape)
	b.Retval("retval", fill, 0)
	g := must.M1(b.Build())

	_, err := c.CompileGraph(entryOptions(), "fill", g, nil)
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.UnsupportedOperation))
	assert.ErrorContains(t, err, "FillFn:{InvalidOp}")
	assert.NotContains(t, err.Error(), "Switch")
}

func TestFunctionBodyErrors(t *testing.T) {
	// The body reshapes x with its dims argument, a runtime value.
	reshapeFn := &dataflow.FunctionDef{
		Signature: dataflow.OpDef{
			Name:    "ReshapeFn",
			Inputs:  []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}, {Name: "dims", Type: dtypes.Int32}},
			Outputs: []dataflow.ArgDef{{Name: "y", TypeAttr: "T"}},
			Attrs:   []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType}},
		},
		Nodes: []dataflow.NodeDef{
			{Name: "y", Op: "Reshape", Inputs: []string{"x", "dims"}, Attrs: dataflow.Attrs{"T": dataflow.AttrPlaceholder("T")}},
		},
		Ret: map[string]string{"y": "y:0"},
	}
	lib := must.M1(dataflow.NewFunctionLibrary(reshapeFn))
	c := newCompiler(t, withLibrary(lib))
	b := dataflow.NewGraphBuilder(lib)
	x := b.Arg("x", dtypes.Float32, 0)
	dims := b.Arg("dims", dtypes.Int32, 1)
	b.Retval("retval", b.Op("call", "ReshapeFn", nil, x, dims), 0)
	g := must.M1(b.Build())

	_, err := c.CompileGraph(entryOptions(), "reshape_fn", g, []compiler.Argument{param(dtypes.Float32, 4), param(dtypes.Int32, 2)})
	require.Error(t, err)
	assert.True(t, compiler.IsKind(err, compiler.ConstantFolding))
	assert.ErrorContains(t, err, "ReshapeFn: ")
	assert.ErrorContains(t, err, "[[Node: y = Reshape(_arg_x, _arg_dims)]]")
	assert.ErrorContains(t, err, "[[Node: call = ReshapeFn(x, dims)]]")

	// With a constant dims argument it compiles.
	result, err := c.CompileGraph(entryOptions(), "reshape_fn", g, []compiler.Argument{param(dtypes.Float32, 4), constant([]int32{2, 2})})
	require.NoError(t, err)
	outputs := execute(t, result, tensors.FromAnyValue([]float32{1, 2, 3, 4}))
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, outputs[0].Value())
}

func TestRecursiveFunction(t *testing.T) {
	recurseFn := &dataflow.FunctionDef{
		Signature: dataflow.OpDef{
			Name:    "Recurse",
			Inputs:  []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}},
			Outputs: []dataflow.ArgDef{{Name: "y", TypeAttr: "T"}},
			Attrs:   []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType}},
		},
		Nodes: []dataflow.NodeDef{
			{Name: "y", Op: "Recurse", Inputs: []string{"x"}, Attrs: dataflow.Attrs{"T": dataflow.AttrPlaceholder("T")}},
		},
		Ret: map[string]string{"y": "y:0"},
	}
	lib := must.M1(dataflow.NewFunctionLibrary(recurseFn))
	c := newCompiler(t, withLibrary(lib))
	_, err := c.CompileFunction(entryOptions(), dataflow.NameAttrs{Name: "Recurse", Attrs: dataflow.Attrs{"T": dtypes.Float32}},
		[]compiler.Argument{param(dtypes.Float32)})
	require.Error(t, err)
	assert.ErrorContains(t, err, `recursive call of function "Recurse"`)
}
