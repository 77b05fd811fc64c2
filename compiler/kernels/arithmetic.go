// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
)

type binaryBuilderFn func(b backends.Builder, lhs, rhs backends.Op) (backends.Op, error)
type unaryBuilderFn func(b backends.Builder, x backends.Op) (backends.Op, error)

func init() {
	register(
		binaryKernel("Add", tensors.BinaryAdd, backends.Builder.Add),
		binaryKernel("AddV2", tensors.BinaryAdd, backends.Builder.Add),
		binaryKernel("Sub", tensors.BinarySub, backends.Builder.Sub),
		binaryKernel("Mul", tensors.BinaryMul, backends.Builder.Mul),
		binaryKernel("RealDiv", tensors.BinaryDiv, backends.Builder.Div),
		binaryKernel("Maximum", tensors.BinaryMax, backends.Builder.Max),
		binaryKernel("Minimum", tensors.BinaryMin, backends.Builder.Min),
		unaryKernel("Neg", tensors.UnaryNeg, backends.Builder.Neg),
		unaryKernel("Abs", tensors.UnaryAbs, backends.Builder.Abs),
	)
}

func binaryKernel(op string, hostOp tensors.BinaryOp, builderFn binaryBuilderFn) compiler.KernelDef {
	return compiler.KernelDef{
		Op: op,
		Fold: func(_ *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
			result, err := tensors.Binary(hostOp, inputs[0], inputs[1])
			if err != nil {
				return nil, err
			}
			return []*tensors.Tensor{result}, nil
		},
		Lower: func(ctx *compiler.KernelContext) error {
			lhs, err := ctx.Input(0)
			if err != nil {
				return err
			}
			rhs, err := ctx.Input(1)
			if err != nil {
				return err
			}
			result, err := builderFn(ctx.Builder(), lhs, rhs)
			if err != nil {
				return err
			}
			return ctx.SetOutput(0, result)
		},
	}
}

func unaryKernel(op string, hostOp tensors.UnaryOp, builderFn unaryBuilderFn) compiler.KernelDef {
	return compiler.KernelDef{
		Op: op,
		Fold: func(_ *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
			result, err := tensors.Unary(hostOp, inputs[0])
			if err != nil {
				return nil, err
			}
			return []*tensors.Tensor{result}, nil
		},
		Lower: func(ctx *compiler.KernelContext) error {
			x, err := ctx.Input(0)
			if err != nil {
				return err
			}
			result, err := builderFn(ctx.Builder(), x)
			if err != nil {
				return err
			}
			return ctx.SetOutput(0, result)
		},
	}
}
