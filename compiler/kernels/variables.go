// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/compiler"
)

func init() {
	register(
		compiler.KernelDef{Op: "ReadVariableOp", Lower: lowerReadVariable},
		compiler.KernelDef{Op: "AssignVariableOp", Lower: lowerAssignVariable},
		compiler.KernelDef{Op: "AssignAddVariableOp", Lower: func(ctx *compiler.KernelContext) error {
			return lowerUpdateVariable(ctx, backends.Builder.Add)
		}},
		compiler.KernelDef{Op: "AssignSubVariableOp", Lower: func(ctx *compiler.KernelContext) error {
			return lowerUpdateVariable(ctx, backends.Builder.Sub)
		}},
		compiler.KernelDef{Op: "ResourceAccumulatorApplyGradient", Lower: lowerAccumulatorApplyGradient},
	)
}

func variableInput(ctx *compiler.KernelContext) (*compiler.Resource, error) {
	r, err := ctx.InputResource(0)
	if err != nil {
		return nil, err
	}
	if r.Kind() != compiler.Variable {
		return nil, compiler.Errorf(compiler.InvalidArgument, "%s requires a variable, got %s", ctx.Node().Op(), r)
	}
	if r.Initialized() {
		if err = checkDTypeAttr(ctx, "dtype", r.DType()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func lowerReadVariable(ctx *compiler.KernelContext) error {
	r, err := variableInput(ctx)
	if err != nil {
		return err
	}
	value, err := ctx.ReadResource(r)
	if err != nil {
		return err
	}
	return ctx.SetOutput(0, value)
}

// lowerAssignVariable replaces the value of the variable.
func lowerAssignVariable(ctx *compiler.KernelContext) error {
	r, err := variableInput(ctx)
	if err != nil {
		return err
	}
	if err = checkDTypeAttr(ctx, "dtype", ctx.InputDType(1)); err != nil {
		return err
	}
	value, err := ctx.Input(1)
	if err != nil {
		return err
	}
	return ctx.WriteResource(r, value)
}

func lowerUpdateVariable(ctx *compiler.KernelContext, updateFn binaryBuilderFn) error {
	r, err := variableInput(ctx)
	if err != nil {
		return err
	}
	current, err := ctx.ReadResource(r)
	if err != nil {
		return err
	}
	delta, err := ctx.Input(1)
	if err != nil {
		return err
	}
	updated, err := updateFn(ctx.Builder(), current, delta)
	if err != nil {
		return err
	}
	return ctx.WriteResource(r, updated)
}

// lowerAccumulatorApplyGradient always fails: accumulators can be bound as arguments, but not accessed.
func lowerAccumulatorApplyGradient(ctx *compiler.KernelContext) error {
	if _, err := ctx.InputResource(0); err != nil {
		return err
	}
	return compiler.Errorf(compiler.UnsupportedOperation, "%s requires an accumulator", ctx.Node().Op())
}
