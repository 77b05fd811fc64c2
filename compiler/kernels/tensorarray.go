// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
)

// Tensor arrays are lowered onto a buffer of shape [size, element...]. Writes accumulate (add) into
// the slot of the element, so gradients can be written by several ops. The flow values only carry
// ordering in the dataflow graph and are compile-time constant zeros.

func init() {
	register(
		compiler.KernelDef{Op: "TensorArrayV3", CompileTimeConstInputs: []int{0}, Lower: lowerTensorArray},
		compiler.KernelDef{Op: "TensorArrayGradV3", Lower: lowerTensorArrayGrad},
		compiler.KernelDef{Op: "TensorArrayWriteV3", Lower: lowerTensorArrayWrite},
		compiler.KernelDef{Op: "TensorArrayReadV3", Lower: lowerTensorArrayRead},
		compiler.KernelDef{Op: "TensorArraySizeV3", Lower: lowerTensorArraySize},
	)
}

func flowValue() *tensors.Tensor { return tensors.FromScalar(float32(0)) }

func lowerTensorArray(ctx *compiler.KernelContext) error {
	sizes, err := ctx.ConstantInputAsInts(0)
	if err != nil {
		return err
	}
	if len(sizes) != 1 {
		return compiler.Errorf(compiler.InvalidArgument, "TensorArrayV3 size must be a scalar, got %v", sizes)
	}
	dtype, err := ctx.Attrs().DType("dtype")
	if err != nil {
		return err
	}
	elementShape, err := ctx.Attrs().Shape("element_shape")
	if err != nil {
		return err
	}
	r, err := ctx.NewTensorArray(dtype, elementShape, sizes[0])
	if err != nil {
		return err
	}
	if err = ctx.SetResourceOutput(0, r); err != nil {
		return err
	}
	return ctx.SetConstantOutput(1, flowValue())
}

func tensorArrayInput(ctx *compiler.KernelContext) (*compiler.Resource, error) {
	r, err := ctx.InputResource(0)
	if err != nil {
		return nil, err
	}
	if r.Kind() != compiler.TensorArray {
		return nil, compiler.Errorf(compiler.InvalidArgument, "%s requires a tensor array, got %s", ctx.Node().Op(), r)
	}
	return r, nil
}

func lowerTensorArrayGrad(ctx *compiler.KernelContext) error {
	r, err := tensorArrayInput(ctx)
	if err != nil {
		return err
	}
	source, err := ctx.Attrs().Str("source")
	if err != nil {
		return err
	}
	grad, err := ctx.TensorArrayGradient(r, source)
	if err != nil {
		return err
	}
	if err = ctx.SetResourceOutput(0, grad); err != nil {
		return err
	}
	return ctx.SetConstantOutput(1, flowValue())
}

// elementSlice returns the start indices and the slice dimensions of the element at index (input 1).
func elementSlice(ctx *compiler.KernelContext, r *compiler.Resource) (starts []backends.Op, sliceDims []int, err error) {
	indexDType, err := checkIndex(ctx, 1)
	if err != nil {
		return nil, nil, err
	}
	index, err := ctx.Input(1)
	if err != nil {
		return nil, nil, err
	}
	starts, err = startIndices(ctx, index, indexDType, r.ValueShape().Rank())
	if err != nil {
		return nil, nil, err
	}
	return starts, elementDims(r.Shape()), nil
}

func lowerTensorArrayWrite(ctx *compiler.KernelContext) error {
	r, err := tensorArrayInput(ctx)
	if err != nil {
		return err
	}
	buffer, err := ctx.ReadResource(r)
	if err != nil {
		return err
	}
	if valueShape := ctx.InputShape(2); !valueShape.Equal(r.Shape()) {
		return compiler.Errorf(compiler.InvalidArgument, "value written to %s has shape %s, but elements have shape %s",
			r, valueShape, r.Shape())
	}
	starts, sliceDims, err := elementSlice(ctx, r)
	if err != nil {
		return err
	}
	value, err := ctx.Input(2)
	if err != nil {
		return err
	}
	b := ctx.Builder()
	update, err := b.Reshape(value, sliceDims...)
	if err != nil {
		return err
	}
	current, err := b.DynamicSlice(buffer, starts, sliceDims)
	if err != nil {
		return err
	}
	if update, err = b.Add(current, update); err != nil {
		return err
	}
	if buffer, err = b.DynamicUpdateSlice(buffer, update, starts); err != nil {
		return err
	}
	if err = ctx.WriteResource(r, buffer); err != nil {
		return err
	}
	return ctx.SetConstantOutput(0, flowValue())
}

func lowerTensorArrayRead(ctx *compiler.KernelContext) error {
	r, err := tensorArrayInput(ctx)
	if err != nil {
		return err
	}
	if err = checkDTypeAttr(ctx, "dtype", r.DType()); err != nil {
		return err
	}
	buffer, err := ctx.ReadResource(r)
	if err != nil {
		return err
	}
	starts, sliceDims, err := elementSlice(ctx, r)
	if err != nil {
		return err
	}
	b := ctx.Builder()
	element, err := b.DynamicSlice(buffer, starts, sliceDims)
	if err != nil {
		return err
	}
	if element, err = b.Reshape(element, r.Shape().Dimensions...); err != nil {
		return err
	}
	return ctx.SetOutput(0, element)
}

func lowerTensorArraySize(ctx *compiler.KernelContext) error {
	r, err := tensorArrayInput(ctx)
	if err != nil {
		return err
	}
	return ctx.SetConstantOutput(0, tensors.FromScalar(int32(r.ArraySize())))
}
