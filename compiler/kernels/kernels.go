// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels registers the standard kernels of the compiler: constants, arithmetic, shape
// manipulation, variables, tensor arrays and stacks.
//
// Import it anonymously to make the kernels available:
//
//	import _ "github.com/gomlx/graphcompiler/compiler/kernels"
package kernels

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/janpfeifer/must"
)

func register(defs ...compiler.KernelDef) {
	for _, def := range defs {
		must.M(compiler.RegisterKernel(def))
	}
}

func init() {
	register(
		compiler.KernelDef{Op: "NoOp", Lower: func(*compiler.KernelContext) error { return nil }},
		compiler.KernelDef{Op: "Const", Fold: foldConst, Lower: lowerConst},
		compiler.KernelDef{Op: "Identity", Fold: foldIdentity, Lower: lowerIdentity},
	)
}

func foldConst(node *dataflow.Node, _ []*tensors.Tensor) ([]*tensors.Tensor, error) {
	value, err := node.Attrs().Tensor("value")
	if err != nil {
		return nil, err
	}
	dtype, err := node.Attrs().DType("dtype")
	if err != nil {
		return nil, err
	}
	if value.DType() != dtype {
		return nil, compiler.Errorf(compiler.InvalidAttribute, "Const node %q has value of dtype %s, but attr dtype=%s",
			node.Name(), value.DType(), dtype)
	}
	return []*tensors.Tensor{value}, nil
}

func lowerConst(ctx *compiler.KernelContext) error {
	outputs, err := foldConst(ctx.Node(), nil)
	if err != nil {
		return err
	}
	return ctx.SetConstantOutput(0, outputs[0])
}

func foldIdentity(_ *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	return inputs[:1], nil
}

// lowerIdentity forwards its input as is: a tensor, a resource handle or a token.
func lowerIdentity(ctx *compiler.KernelContext) error {
	return ctx.ForwardInput(0, 0)
}

// scalarConstant emits a scalar constant of the given dtype, from an int value.
func scalarConstant(ctx *compiler.KernelContext, dtype dtypes.DType, v int) (backends.Op, error) {
	t, err := tensors.ConvertDType(tensors.FromScalar(int64(v)), dtype)
	if err != nil {
		return nil, err
	}
	return ctx.Constant(t)
}

// startIndices returns the start indices [index, 0, 0, ...] for slicing one element of a buffer of
// the given rank along its first axis.
func startIndices(ctx *compiler.KernelContext, index backends.Op, indexDType dtypes.DType, rank int) ([]backends.Op, error) {
	starts := make([]backends.Op, rank)
	starts[0] = index
	if rank > 1 {
		zero, err := scalarConstant(ctx, indexDType, 0)
		if err != nil {
			return nil, err
		}
		for ii := 1; ii < rank; ii++ {
			starts[ii] = zero
		}
	}
	return starts, nil
}

// elementDims returns the dimensions [1, element...] of one element of a buffer.
func elementDims(elementShape shapes.Shape) []int {
	return append([]int{1}, elementShape.Dimensions...)
}

// checkIndex checks that input i is an integer scalar.
func checkIndex(ctx *compiler.KernelContext, i int) (dtypes.DType, error) {
	shape := ctx.InputShape(i)
	if !shape.IsScalar() || !(shape.DType.IsInt() || shape.DType.IsUnsigned()) {
		return dtypes.InvalidDType, compiler.Errorf(compiler.InvalidArgument,
			"input %d of %s must be an integer scalar, got %s", i, ctx.Node().Op(), shape)
	}
	return shape.DType, nil
}

// checkDTypeAttr checks that the dtype attribute, if set, matches the given dtype.
func checkDTypeAttr(ctx *compiler.KernelContext, attr string, dtype dtypes.DType) error {
	want, err := ctx.Attrs().DType(attr)
	if err != nil || want == dtypes.InvalidDType || dtype == dtypes.InvalidDType || want == dtype {
		return nil
	}
	return compiler.Errorf(compiler.InvalidArgument, "%s: attr %s=%s, but the value has dtype %s",
		ctx.Node().Op(), attr, want, dtype)
}
