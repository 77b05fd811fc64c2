// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
)

// sample is a demo graph, with the description of its arguments and inputs to run it.
type sample struct {
	description string

	// build returns the graph and its arguments. lib holds the functions the graph may call.
	build func(lib *dataflow.FunctionLibrary) (*dataflow.Graph, []compiler.Argument, error)

	// inputs has one value per argument: nil for arguments that are not computation parameters.
	inputs func() []*tensors.Tensor
}

var samples = map[string]sample{
	"add": {
		description: "C = Add(A, B) of two int32 vectors.",
		build: func(_ *dataflow.FunctionLibrary) (*dataflow.Graph, []compiler.Argument, error) {
			b := dataflow.NewGraphBuilder(nil)
			a := b.Arg("A", dtypes.Int32, 0)
			bArg := b.Arg("B", dtypes.Int32, 1)
			b.Retval("D", b.Op("C", "Add", nil, a, bArg), 0)
			g, err := b.Build()
			return g, []compiler.Argument{parameter("A", dtypes.Int32, 2), parameter("B", dtypes.Int32, 2)}, err
		},
		inputs: func() []*tensors.Tensor {
			return []*tensors.Tensor{tensors.FromAnyValue([]int32{7, 42}), tensors.FromAnyValue([]int32{-3, 101})}
		},
	},

	"variables": {
		description: "Adds a parameter to a variable, and returns the updated value plus one.",
		build: func(_ *dataflow.FunctionLibrary) (*dataflow.Graph, []compiler.Argument, error) {
			b := dataflow.NewGraphBuilder(nil)
			a := b.Arg("a", dtypes.Int32, 0)
			v := b.Arg("var", dtypes.InvalidDType, 1)
			write := b.Op("assign_add", "AssignAddVariableOp", nil, v, a)
			var read dataflow.Output
			b.WithControlDependencies([]dataflow.Output{write}, func() {
				read = b.Op("read", "ReadVariableOp", dataflow.Attrs{"dtype": dtypes.Int32}, v)
			})
			b.Retval("d", b.Op("read_plus_one", "Add", nil, read, b.Const("one", int32(1))), 0)
			g, err := b.Build()
			args := []compiler.Argument{
				parameter("a", dtypes.Int32, 2, 2),
				{Kind: compiler.ResourceArg, ResourceKind: compiler.Variable, Name: "var", DType: dtypes.Int32,
					Shape: shapes.Make(dtypes.Int32, 2, 2), Initialized: true},
			}
			return g, args, err
		},
		inputs: func() []*tensors.Tensor {
			return []*tensors.Tensor{
				tensors.FromAnyValue([][]int32{{4, 55}, {1, -3}}),
				tensors.FromAnyValue([][]int32{{22, 11}, {33, 404}}),
			}
		},
	},

	"constants": {
		description: "Fills a vector through a function call; with -resolve_constants the output is known at compile time.",
		build: func(lib *dataflow.FunctionLibrary) (*dataflow.Graph, []compiler.Argument, error) {
			if lib.Find(fillFn.Name()) == nil {
				if err := lib.AddFunction(fillFn); err != nil {
					return nil, nil, err
				}
			}
			b := dataflow.NewGraphBuilder(lib)
			value := b.Const("value", int32(1))
			dims := b.Const("dims", []int32{5})
			b.Retval("retval", b.Op("fill", fillFn.Name(), nil, value, dims), 0)
			b.Retval("neg_retval", b.Op("neg", "Neg", nil, b.Arg("x", dtypes.Int32, 0)), 1)
			g, err := b.Build()
			return g, []compiler.Argument{parameter("x", dtypes.Int32, 3)}, err
		},
		inputs: func() []*tensors.Tensor {
			return []*tensors.Tensor{tensors.FromAnyValue([]int32{1, 2, 3})}
		},
	},

	"tensorarray": {
		description: "Creates gradients of a tensor array argument and writes to one of them.",
		build: func(_ *dataflow.FunctionLibrary) (*dataflow.Graph, []compiler.Argument, error) {
			b := dataflow.NewGraphBuilder(nil)
			arg := b.Arg("arg", dtypes.InvalidDType, 0)
			flow := b.Const("flow", float32(0))
			grad1 := b.Op("grad1", "TensorArrayGradV3", dataflow.Attrs{"source": "grad1"}, arg, flow)
			grad2 := b.Op("grad2", "TensorArrayGradV3", dataflow.Attrs{"source": "grad2"}, arg, grad1.OutputAt(1))
			index := b.Const("index", int32(1))
			write := b.Op("write", "TensorArrayWriteV3", nil, grad1, index, index, grad2.OutputAt(1))
			read := b.Op("read", "TensorArrayReadV3", dataflow.Attrs{"dtype": dtypes.Int32}, arg, index, write)
			b.Retval("retval", read, 0)
			g, err := b.Build()
			args := []compiler.Argument{{
				Kind: compiler.ResourceArg, ResourceKind: compiler.TensorArray, Name: "arg",
				DType: dtypes.Int32, Shape: shapes.Make(dtypes.Int32), TensorArraySize: 2,
				Initialized: true, TensorArrayGradients: []string{"grad2"},
			}}
			return g, args, err
		},
		inputs: func() []*tensors.Tensor {
			return []*tensors.Tensor{tensors.MakeTuple(
				tensors.FromAnyValue([]int32{7, 42}),
				tensors.FromAnyValue([]int32{-3, 101}))}
		},
	},
}

// fillFn fills a tensor of shape dims with x.
var fillFn = &dataflow.FunctionDef{
	Signature: dataflow.OpDef{
		Name:    "FillFn",
		Inputs:  []dataflow.ArgDef{{Name: "x", TypeAttr: "T"}, {Name: "dims", Type: dtypes.Int32}},
		Outputs: []dataflow.ArgDef{{Name: "y", TypeAttr: "T"}},
		Attrs:   []dataflow.AttrDef{{Name: "T", Type: dataflow.AttrTypeDType}},
	},
	Nodes: []dataflow.NodeDef{
		{Name: "y", Op: "Fill", Inputs: []string{"dims", "x"}, Attrs: dataflow.Attrs{"T": dataflow.AttrPlaceholder("T")}},
	},
	Ret: map[string]string{"y": "y:0"},
}

func parameter(name string, dtype dtypes.DType, dims ...int) compiler.Argument {
	return compiler.Argument{Kind: compiler.ParameterArg, Name: name, DType: dtype, Shape: shapes.Make(dtype, dims...)}
}

func sampleNames() []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
