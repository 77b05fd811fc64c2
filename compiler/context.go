// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/resourcemgr"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
)

type valueKind int

const (
	tensorValue valueKind = iota
	resourceValue
	tokenValue
)

// value is the lowered form of one node output.
//
// Tensors known at compile time carry their literal, and are only emitted into the computation
// (as a constant) when some kernel needs them as an op. The emitted op is cached.
type value struct {
	kind     valueKind
	shape    shapes.Shape
	op       backends.Op
	literal  *tensors.Tensor
	resource ResourceHandle
}

func literalValue(t *tensors.Tensor) *value {
	return &value{kind: tensorValue, shape: t.Shape(), literal: t}
}

func opValue(op backends.Op, shape shapes.Shape) *value {
	return &value{kind: tensorValue, shape: shape, op: op}
}

func resourceHandleValue(handle ResourceHandle) *value {
	return &value{kind: resourceValue, resource: handle}
}

func (v *value) isLiteral() bool { return v.kind == tensorValue && v.literal != nil }

// KernelContext gives a kernel access to the node being lowered, its inputs, and where to set its outputs.
type KernelContext struct {
	comp    *compilation
	node    *dataflow.Node
	attrs   dataflow.Attrs
	inputs  []*value
	outputs []*value
}

// Node being lowered.
func (ctx *KernelContext) Node() *dataflow.Node { return ctx.node }

// Attrs of the node, with the op defaults filled in.
func (ctx *KernelContext) Attrs() dataflow.Attrs { return ctx.attrs }

// Builder of the computation being built.
func (ctx *KernelContext) Builder() backends.Builder { return ctx.comp.builder }

// DeviceType of the compilation.
func (ctx *KernelContext) DeviceType() DeviceType { return ctx.comp.compiler.options.DeviceType }

// ResourceManager of the compiler, populated before the first compilation.
func (ctx *KernelContext) ResourceManager() *resourcemgr.Manager { return ctx.comp.compiler.resourceMgr }

// NumInputs returns the number of data inputs of the node.
func (ctx *KernelContext) NumInputs() int { return len(ctx.inputs) }

// NumOutputs returns the number of outputs of the node.
func (ctx *KernelContext) NumOutputs() int { return len(ctx.outputs) }

func (ctx *KernelContext) checkInput(i int, kind valueKind) (*value, error) {
	if i < 0 || i >= len(ctx.inputs) {
		return nil, Errorf(InvalidArgument, "node %q has %d inputs, input %d requested", ctx.node.Name(), len(ctx.inputs), i)
	}
	v := ctx.inputs[i]
	if v.kind != kind {
		switch v.kind {
		case resourceValue:
			return nil, Errorf(InvalidArgument, "input %d of node %q is a resource handle, but a tensor was expected", i, ctx.node.Name())
		case tokenValue:
			return nil, Errorf(InvalidArgument, "input %d of node %q is a token, but a tensor was expected", i, ctx.node.Name())
		default:
			return nil, Errorf(InvalidArgument, "input %d of node %q is a tensor, but a resource handle was expected", i, ctx.node.Name())
		}
	}
	return v, nil
}

// IsResourceInput returns whether input i is a resource handle.
func (ctx *KernelContext) IsResourceInput(i int) bool {
	return i >= 0 && i < len(ctx.inputs) && ctx.inputs[i].kind == resourceValue
}

// InputShape returns the shape of tensor input i. It returns an invalid shape for resources and tokens.
func (ctx *KernelContext) InputShape(i int) shapes.Shape {
	if i < 0 || i >= len(ctx.inputs) || ctx.inputs[i].kind != tensorValue {
		return shapes.Invalid()
	}
	return ctx.inputs[i].shape
}

// InputDType returns the dtype of tensor input i.
func (ctx *KernelContext) InputDType(i int) dtypes.DType { return ctx.InputShape(i).DType }

// Input returns tensor input i as an op of the computation, emitting its constant if it's a literal.
func (ctx *KernelContext) Input(i int) (backends.Op, error) {
	v, err := ctx.checkInput(i, tensorValue)
	if err != nil {
		return nil, err
	}
	return ctx.comp.materialize(v)
}

// InputLiteral returns the value of input i if it's known at compile time.
func (ctx *KernelContext) InputLiteral(i int) (*tensors.Tensor, bool) {
	if i < 0 || i >= len(ctx.inputs) || !ctx.inputs[i].isLiteral() {
		return nil, false
	}
	return ctx.inputs[i].literal, true
}

// ConstantInput returns the value of input i, which must be listed in KernelDef.CompileTimeConstInputs
// or otherwise known at compile time.
func (ctx *KernelContext) ConstantInput(i int) (*tensors.Tensor, error) {
	if _, err := ctx.checkInput(i, tensorValue); err != nil {
		return nil, err
	}
	literal, ok := ctx.InputLiteral(i)
	if !ok {
		return nil, ctx.comp.constantFoldingError(ctx.node, i)
	}
	return literal, nil
}

// ConstantInputAsInts returns the value of the integer scalar or vector input i, known at compile time.
func (ctx *KernelContext) ConstantInputAsInts(i int) ([]int, error) {
	literal, err := ctx.ConstantInput(i)
	if err != nil {
		return nil, err
	}
	ints, err := literal.AsInts()
	if err != nil {
		return nil, wrapErrorf(InvalidArgument, err, "input %d of node %q", i, ctx.node.Name())
	}
	return ints, nil
}

func (ctx *KernelContext) checkOutput(i int) error {
	if i < 0 || i >= len(ctx.outputs) {
		return Errorf(Internal, "node %q has %d outputs, output %d set", ctx.node.Name(), len(ctx.outputs), i)
	}
	return nil
}

// SetOutput sets output i to op. Its shape is queried from the builder.
func (ctx *KernelContext) SetOutput(i int, op backends.Op) error {
	if err := ctx.checkOutput(i); err != nil {
		return err
	}
	shape, err := ctx.comp.builder.OpShape(op)
	if err != nil {
		return wrapErrorf(Internal, err, "output %d of node %q", i, ctx.node.Name())
	}
	ctx.outputs[i] = opValue(op, shape)
	return nil
}

// SetConstantOutput sets output i to a value known at compile time.
func (ctx *KernelContext) SetConstantOutput(i int, t *tensors.Tensor) error {
	if err := ctx.checkOutput(i); err != nil {
		return err
	}
	ctx.outputs[i] = literalValue(t)
	return nil
}

// ForwardInput sets output i to be exactly input j: tensor, literal, resource handle or token.
func (ctx *KernelContext) ForwardInput(j, i int) error {
	if err := ctx.checkOutput(i); err != nil {
		return err
	}
	if j < 0 || j >= len(ctx.inputs) {
		return Errorf(InvalidArgument, "node %q has %d inputs, input %d forwarded", ctx.node.Name(), len(ctx.inputs), j)
	}
	ctx.outputs[i] = ctx.inputs[j]
	return nil
}

// InputResource returns the resource referenced by input i.
// Accumulator resources are not supported and return an UnsupportedOperation error.
func (ctx *KernelContext) InputResource(i int) (*Resource, error) {
	v, err := ctx.checkInput(i, resourceValue)
	if err != nil {
		return nil, err
	}
	r := ctx.comp.resource(v.resource)
	if r.kind == Accumulator {
		return nil, Errorf(UnsupportedOperation, "op %s on accumulator resource %q is not supported", ctx.node.Op(), r.name)
	}
	return r, nil
}

// SetResourceOutput sets output i to a handle to the resource.
func (ctx *KernelContext) SetResourceOutput(i int, r *Resource) error {
	if err := ctx.checkOutput(i); err != nil {
		return err
	}
	ctx.outputs[i] = resourceHandleValue(r.handle)
	return nil
}

// Constant emits t as a constant of the computation.
func (ctx *KernelContext) Constant(t *tensors.Tensor) (backends.Op, error) {
	return ctx.comp.materialize(literalValue(t))
}

// Zeros emits a value of the given shape filled with zeros.
func (ctx *KernelContext) Zeros(shape shapes.Shape) (backends.Op, error) {
	return ctx.comp.zeros(shape)
}

// ReadResource returns the current value of an initialized resource.
func (ctx *KernelContext) ReadResource(r *Resource) (backends.Op, error) {
	return r.read()
}

// WriteResource replaces the value of the resource, which must be initialized and keep its shape.
func (ctx *KernelContext) WriteResource(r *Resource, op backends.Op) error {
	shape, err := ctx.comp.builder.OpShape(op)
	if err != nil {
		return wrapErrorf(Internal, err, "writing resource %q", r.name)
	}
	return r.write(op, shape)
}

// NewTensorArray creates a tensor array local to the computation, filled with zeros.
func (ctx *KernelContext) NewTensorArray(dtype dtypes.DType, elementShape shapes.Shape, size int) (*Resource, error) {
	return ctx.comp.newLocalTensorArray(ctx.node.Name(), dtype, elementShape, size)
}

// TensorArrayGradient returns the gradient of the tensor array for the given source, creating it
// (filled with zeros) if it doesn't exist yet.
func (ctx *KernelContext) TensorArrayGradient(r *Resource, source string) (*Resource, error) {
	return ctx.comp.tensorArrayGradient(r, source)
}
