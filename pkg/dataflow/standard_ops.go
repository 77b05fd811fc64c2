// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Names of ops with special meaning to the graph or the compiler.
const (
	// ArgOp is the op of nodes that feed an argument into the graph. Attrs: "index" (int), "T" (dtype, optional for resources).
	ArgOp = "_Arg"

	// RetvalOp is the op of nodes that collect a return value of the graph. Attrs: "index" (int), "T" (dtype, optional).
	RetvalOp = "_Retval"

	// SourceOp and SinkOp are the ops of the canonical source and sink markers.
	SourceOp = "_SOURCE"
	SinkOp   = "_SINK"
)

var (
	// NumberDTypes are the dtypes accepted by arithmetic ops.
	NumberDTypes = []dtypes.DType{
		dtypes.Float16, dtypes.Float32, dtypes.Float64,
		dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64,
	}

	// IndexDTypes are the dtypes accepted for shapes and indices.
	IndexDTypes = []dtypes.DType{dtypes.Int32, dtypes.Int64}
)

func tArg(name string) ArgDef           { return ArgDef{Name: name, TypeAttr: "T"} }
func typedArg(name string, dtype dtypes.DType) ArgDef {
	return ArgDef{Name: name, Type: dtype}
}
func resourceArg(name string) ArgDef { return ArgDef{Name: name, IsResource: true} }
func typeAttr(name string, allowed ...dtypes.DType) AttrDef {
	return AttrDef{Name: name, Type: AttrTypeDType, AllowedValues: allowed}
}

func binaryOpDef(name string) OpDef {
	return OpDef{
		Name:    name,
		Inputs:  []ArgDef{tArg("x"), tArg("y")},
		Outputs: []ArgDef{tArg("z")},
		Attrs:   []AttrDef{typeAttr("T", NumberDTypes...)},
	}
}

func unaryOpDef(name string) OpDef {
	return OpDef{
		Name:    name,
		Inputs:  []ArgDef{tArg("x")},
		Outputs: []ArgDef{tArg("y")},
		Attrs:   []AttrDef{typeAttr("T", NumberDTypes...)},
	}
}

// standardOps are registered on initialization.
var standardOps = []OpDef{
	{Name: ArgOp, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{{Name: "index", Type: AttrTypeInt}, {Name: "T", Type: AttrTypeDType, Default: dtypes.InvalidDType}}},
	{Name: RetvalOp, Inputs: []ArgDef{tArg("input")},
		Attrs: []AttrDef{{Name: "index", Type: AttrTypeInt}, {Name: "T", Type: AttrTypeDType, Default: dtypes.InvalidDType}}},
	{Name: "NoOp"},
	{Name: "Const", Outputs: []ArgDef{{Name: "output", TypeAttr: "dtype"}},
		Attrs: []AttrDef{{Name: "value", Type: AttrTypeTensor}, {Name: "dtype", Type: AttrTypeDType}}},
	{Name: "Identity", Inputs: []ArgDef{tArg("input")}, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{{Name: "T", Type: AttrTypeDType, Default: dtypes.InvalidDType}}},
	binaryOpDef("Add"),
	binaryOpDef("AddV2"),
	binaryOpDef("Sub"),
	binaryOpDef("Mul"),
	binaryOpDef("RealDiv"),
	binaryOpDef("Maximum"),
	binaryOpDef("Minimum"),
	unaryOpDef("Neg"),
	unaryOpDef("Abs"),
	{Name: "Reshape", Inputs: []ArgDef{tArg("tensor"), {Name: "shape", TypeAttr: "Tshape"}}, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{typeAttr("T"), {Name: "Tshape", Type: AttrTypeDType, AllowedValues: IndexDTypes, Default: dtypes.Int32}}},
	{Name: "Fill", Inputs: []ArgDef{{Name: "dims", TypeAttr: "index_type"}, tArg("value")}, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{typeAttr("T"), {Name: "index_type", Type: AttrTypeDType, AllowedValues: IndexDTypes, Default: dtypes.Int32}}},
	{Name: "Shape", Inputs: []ArgDef{tArg("input")}, Outputs: []ArgDef{{Name: "output", TypeAttr: "out_type"}},
		Attrs: []AttrDef{typeAttr("T"), {Name: "out_type", Type: AttrTypeDType, AllowedValues: IndexDTypes, Default: dtypes.Int32}}},
	{Name: "Size", Inputs: []ArgDef{tArg("input")}, Outputs: []ArgDef{{Name: "output", TypeAttr: "out_type"}},
		Attrs: []AttrDef{typeAttr("T"), {Name: "out_type", Type: AttrTypeDType, AllowedValues: IndexDTypes, Default: dtypes.Int32}}},
	{Name: "Rank", Inputs: []ArgDef{tArg("input")}, Outputs: []ArgDef{typedArg("output", dtypes.Int32)},
		Attrs: []AttrDef{typeAttr("T")}},
	{Name: "Cast", Inputs: []ArgDef{{Name: "x", TypeAttr: "SrcT"}}, Outputs: []ArgDef{{Name: "y", TypeAttr: "DstT"}},
		Attrs: []AttrDef{typeAttr("SrcT"), typeAttr("DstT")}},
	{Name: "Pack", Inputs: []ArgDef{tArg("values")}, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{typeAttr("T"), {Name: "N", Type: AttrTypeInt, Default: 0}}},

	// Variables.
	{Name: "ReadVariableOp", Inputs: []ArgDef{resourceArg("resource")}, Outputs: []ArgDef{{Name: "value", TypeAttr: "dtype"}},
		Attrs: []AttrDef{typeAttr("dtype")}, IsStateful: true},
	{Name: "AssignVariableOp", Inputs: []ArgDef{resourceArg("resource"), {Name: "value", TypeAttr: "dtype"}},
		Attrs: []AttrDef{typeAttr("dtype")}, IsStateful: true},
	{Name: "AssignAddVariableOp", Inputs: []ArgDef{resourceArg("resource"), {Name: "value", TypeAttr: "dtype"}},
		Attrs: []AttrDef{typeAttr("dtype")}, IsStateful: true},
	{Name: "AssignSubVariableOp", Inputs: []ArgDef{resourceArg("resource"), {Name: "value", TypeAttr: "dtype"}},
		Attrs: []AttrDef{typeAttr("dtype")}, IsStateful: true},

	// Tensor arrays.
	{Name: "TensorArrayV3", Inputs: []ArgDef{typedArg("size", dtypes.Int32)},
		Outputs: []ArgDef{resourceArg("handle"), typedArg("flow", dtypes.Float32)},
		Attrs: []AttrDef{typeAttr("dtype"), {Name: "element_shape", Type: AttrTypeShape}}, IsStateful: true},
	{Name: "TensorArrayGradV3", Inputs: []ArgDef{resourceArg("handle"), typedArg("flow_in", dtypes.Float32)},
		Outputs: []ArgDef{resourceArg("grad_handle"), typedArg("flow_out", dtypes.Float32)},
		Attrs: []AttrDef{{Name: "source", Type: AttrTypeString}}, IsStateful: true},
	{Name: "TensorArrayWriteV3", Inputs: []ArgDef{resourceArg("handle"), typedArg("index", dtypes.Int32), tArg("value"), typedArg("flow_in", dtypes.Float32)},
		Outputs: []ArgDef{typedArg("flow_out", dtypes.Float32)},
		Attrs: []AttrDef{typeAttr("T")}, IsStateful: true},
	{Name: "TensorArrayReadV3", Inputs: []ArgDef{resourceArg("handle"), typedArg("index", dtypes.Int32), typedArg("flow_in", dtypes.Float32)},
		Outputs: []ArgDef{{Name: "value", TypeAttr: "dtype"}},
		Attrs: []AttrDef{typeAttr("dtype")}, IsStateful: true},
	{Name: "TensorArraySizeV3", Inputs: []ArgDef{resourceArg("handle"), typedArg("flow_in", dtypes.Float32)},
		Outputs: []ArgDef{typedArg("size", dtypes.Int32)}, IsStateful: true},

	// Stacks.
	{Name: "StackPushV2", Inputs: []ArgDef{resourceArg("handle"), tArg("elem")}, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{typeAttr("T")}, IsStateful: true},
	{Name: "StackPopV2", Inputs: []ArgDef{resourceArg("handle")}, Outputs: []ArgDef{{Name: "elem", TypeAttr: "elem_type"}},
		Attrs: []AttrDef{typeAttr("elem_type")}, IsStateful: true},

	// Accumulators.
	{Name: "ResourceAccumulatorApplyGradient", Inputs: []ArgDef{resourceArg("handle"), typedArg("local_step", dtypes.Int64), {Name: "gradient", TypeAttr: "dtype"}},
		Attrs: []AttrDef{typeAttr("dtype")}, IsStateful: true},

	// Control flow.
	{Name: "Switch", Inputs: []ArgDef{tArg("data"), typedArg("pred", dtypes.Bool)}, Outputs: []ArgDef{tArg("output_false"), tArg("output_true")},
		Attrs: []AttrDef{typeAttr("T")}},
	{Name: "Merge", Inputs: []ArgDef{tArg("inputs")}, Outputs: []ArgDef{tArg("output"), typedArg("value_index", dtypes.Int32)},
		Attrs: []AttrDef{typeAttr("T")}},
	{Name: "Enter", Inputs: []ArgDef{tArg("data")}, Outputs: []ArgDef{tArg("output")},
		Attrs: []AttrDef{typeAttr("T"), {Name: "frame_name", Type: AttrTypeString}}},
	{Name: "Exit", Inputs: []ArgDef{tArg("data")}, Outputs: []ArgDef{tArg("output")}, Attrs: []AttrDef{typeAttr("T")}},
	{Name: "NextIteration", Inputs: []ArgDef{tArg("data")}, Outputs: []ArgDef{tArg("output")}, Attrs: []AttrDef{typeAttr("T")}},
}

func init() {
	for _, def := range standardOps {
		if err := RegisterOp(def); err != nil {
			panic(errors.WithMessage(err, "registering standard ops"))
		}
	}
}
