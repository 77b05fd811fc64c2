// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/compiler"
)

// Stacks are lowered onto a buffer of shape [capacity, element...] and an Int32 position with the
// number of elements pushed. The position is kept within [0, capacity]: pushing onto a full stack
// overwrites its top element, and popping from an empty stack returns its first one.

func init() {
	register(
		compiler.KernelDef{Op: "StackPushV2", Lower: lowerStackPush},
		compiler.KernelDef{Op: "StackPopV2", Lower: lowerStackPop},
	)
}

func stackInput(ctx *compiler.KernelContext) (r *compiler.Resource, buffer, position backends.Op, err error) {
	r, err = ctx.InputResource(0)
	if err != nil {
		return
	}
	if r.Kind() != compiler.Stack {
		err = compiler.Errorf(compiler.InvalidArgument, "%s requires a stack, got %s", ctx.Node().Op(), r)
		return
	}
	if buffer, err = ctx.ReadResource(r); err != nil {
		return
	}
	position, err = r.Position()
	return
}

func lowerStackPush(ctx *compiler.KernelContext) error {
	r, buffer, position, err := stackInput(ctx)
	if err != nil {
		return err
	}
	if elementShape := ctx.InputShape(1); !elementShape.Equal(r.Shape()) {
		return compiler.Errorf(compiler.InvalidArgument, "element pushed to %s has shape %s, but elements have shape %s",
			r, elementShape, r.Shape())
	}
	element, err := ctx.Input(1)
	if err != nil {
		return err
	}
	b := ctx.Builder()
	update, err := b.Reshape(element, elementDims(r.Shape())...)
	if err != nil {
		return err
	}
	starts, err := startIndices(ctx, position, dtypes.Int32, r.ValueShape().Rank())
	if err != nil {
		return err
	}
	if buffer, err = b.DynamicUpdateSlice(buffer, update, starts); err != nil {
		return err
	}
	one, err := scalarConstant(ctx, dtypes.Int32, 1)
	if err != nil {
		return err
	}
	if position, err = b.Add(position, one); err != nil {
		return err
	}
	capacity, err := scalarConstant(ctx, dtypes.Int32, r.ValueShape().Dimensions[0])
	if err != nil {
		return err
	}
	if position, err = b.Min(position, capacity); err != nil {
		return err
	}
	if err = ctx.WriteResource(r, buffer); err != nil {
		return err
	}
	if err = r.SetPosition(position); err != nil {
		return err
	}
	return ctx.ForwardInput(1, 0)
}

func lowerStackPop(ctx *compiler.KernelContext) error {
	r, buffer, position, err := stackInput(ctx)
	if err != nil {
		return err
	}
	if err = checkDTypeAttr(ctx, "elem_type", r.DType()); err != nil {
		return err
	}
	b := ctx.Builder()
	one, err := scalarConstant(ctx, dtypes.Int32, 1)
	if err != nil {
		return err
	}
	if position, err = b.Sub(position, one); err != nil {
		return err
	}
	zero, err := scalarConstant(ctx, dtypes.Int32, 0)
	if err != nil {
		return err
	}
	if position, err = b.Max(position, zero); err != nil {
		return err
	}
	starts, err := startIndices(ctx, position, dtypes.Int32, r.ValueShape().Rank())
	if err != nil {
		return err
	}
	element, err := b.DynamicSlice(buffer, starts, elementDims(r.Shape()))
	if err != nil {
		return err
	}
	if element, err = b.Reshape(element, r.Shape().Dimensions...); err != nil {
		return err
	}
	if err = r.SetPosition(position); err != nil {
		return err
	}
	return ctx.SetOutput(0, element)
}
