// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"k8s.io/klog/v2"
)

// ResourceHandle addresses a Resource in the arena of one compilation.
type ResourceHandle int

// Resource is the compile-time record of a stateful resource: an argument or a tensor array created
// by the graph. Its value is the op currently holding its contents.
type Resource struct {
	handle ResourceHandle
	kind   ResourceKind
	name   string

	// argIndex is the index of the argument, or -1 for resources created during lowering.
	argIndex int

	dtype dtypes.DType

	// shape of a variable or accumulator value, or of one element of a tensor array or stack.
	shape shapes.Shape

	// arraySize is the number of elements of a tensor array, or the capacity of a stack.
	arraySize int

	initialized         bool
	value, initialValue backends.Op

	// Stacks only: number of elements pushed.
	position, initialPosition backends.Op

	// Tensor arrays only: gradients, pre-declared first (in declaration order), then created during lowering.
	gradientSources      []string
	gradients            []ResourceHandle
	numDeclaredGradients int

	// parent is the tensor array a gradient belongs to, or -1.
	parent ResourceHandle
}

// Kind of the resource.
func (r *Resource) Kind() ResourceKind { return r.kind }

// Name of the resource, for debugging.
func (r *Resource) Name() string { return r.name }

// DType of the resource contents.
func (r *Resource) DType() dtypes.DType { return r.dtype }

// Shape of a variable value, or of one element of a tensor array or stack.
func (r *Resource) Shape() shapes.Shape { return r.shape }

// ArraySize is the number of elements of a tensor array, or the capacity of a stack.
func (r *Resource) ArraySize() int { return r.arraySize }

// Initialized returns whether the resource holds a value.
func (r *Resource) Initialized() bool { return r.initialized }

// ValueShape is the shape of the value held by the resource: the variable shape, or [size, element...] for tensor
// arrays and stacks.
func (r *Resource) ValueShape() shapes.Shape {
	if r.kind == TensorArray || r.kind == Stack {
		return shapes.Make(r.dtype, append([]int{r.arraySize}, r.shape.Dimensions...)...)
	}
	return shapes.Make(r.dtype, r.shape.Dimensions...)
}

// Position of a stack: the number of elements pushed, an Int32 scalar.
func (r *Resource) Position() (backends.Op, error) {
	if r.kind != Stack {
		return nil, Errorf(InvalidArgument, "resource %q is a %s, not a stack", r.name, r.kind)
	}
	if !r.initialized {
		return nil, r.uninitializedError()
	}
	return r.position, nil
}

// SetPosition of a stack.
func (r *Resource) SetPosition(position backends.Op) error {
	if _, err := r.Position(); err != nil {
		return err
	}
	r.position = position
	return nil
}

func (r *Resource) uninitializedError() error {
	return Errorf(UninitializedResource, "access to uninitialized resource %q (%s)", r.name, r.kind)
}

func (r *Resource) read() (backends.Op, error) {
	if !r.initialized {
		return nil, r.uninitializedError()
	}
	return r.value, nil
}

func (r *Resource) write(op backends.Op, shape shapes.Shape) error {
	if !r.initialized {
		return r.uninitializedError()
	}
	if want := r.ValueShape(); !want.Equal(shape) {
		return Errorf(InvalidArgument, "trying to assign a value of shape %s to %s %q of shape %s",
			shape, r.kind, r.name, want)
	}
	r.value = op
	return nil
}

func (r *Resource) changed() bool {
	return r.value != r.initialValue || r.position != r.initialPosition
}

// String implements fmt.Stringer.
func (r *Resource) String() string {
	return fmt.Sprintf("%s %q %s", r.kind, r.name, r.ValueShape())
}

// resource returns the resource record of the handle.
func (c *compilation) resource(handle ResourceHandle) *Resource {
	return c.resources[handle]
}

func (c *compilation) newResource(kind ResourceKind, name string, argIndex int, dtype dtypes.DType, shape shapes.Shape) *Resource {
	r := &Resource{
		handle:   ResourceHandle(len(c.resources)),
		kind:     kind,
		name:     name,
		argIndex: argIndex,
		dtype:    dtype,
		shape:    shapes.Make(dtype, shape.Dimensions...),
		parent:   -1,
	}
	c.resources = append(c.resources, r)
	return r
}

// zeros emits a value filled with zeros.
func (c *compilation) zeros(shape shapes.Shape) (backends.Op, error) {
	goType := shape.DType.GoType()
	if goType == nil {
		return nil, Errorf(InvalidArgument, "cannot create zeros of dtype %s", shape.DType)
	}
	zero, err := c.builder.Constant(reflect.MakeSlice(reflect.SliceOf(goType), 1, 1).Interface())
	if err != nil {
		return nil, wrapErrorf(Internal, err, "creating zeros of shape %s", shape)
	}
	if shape.IsScalar() {
		return zero, nil
	}
	return c.builder.Broadcast(zero, shape.Dimensions...)
}

// bindResourceArgument creates the resource record for argument argIdx and, if it's initialized, its parameter.
func (c *compilation) bindResourceArgument(argIdx int, arg *Argument) (*value, error) {
	name := arg.Name
	if name == "" {
		name = fmt.Sprintf("arg%d", argIdx)
	}
	r := c.newResource(arg.ResourceKind, name, argIdx, arg.DType, arg.Shape)
	if arg.ResourceKind == TensorArray || arg.ResourceKind == Stack {
		r.arraySize = arg.TensorArraySize
	}
	handleValue := resourceHandleValue(r.handle)
	if !arg.Initialized {
		return handleValue, nil
	}

	logical := r.ValueShape()
	physical, err := c.compiler.physicalShape(logical)
	if err != nil {
		return nil, err
	}
	var paramShape shapes.Shape
	switch {
	case r.kind == Stack:
		paramShape = shapes.MakeTuple(physical, shapes.Make(dtypes.Int32))
	case r.kind == TensorArray && len(arg.TensorArrayGradients) > 0:
		elements := make([]shapes.Shape, 1+len(arg.TensorArrayGradients))
		for ii := range elements {
			elements[ii] = physical
		}
		paramShape = shapes.MakeTuple(elements...)
	default:
		paramShape = physical
	}
	param, err := c.newParameter(argIdx, name, paramShape)
	if err != nil {
		return nil, err
	}

	// element returns the ii-th element of the parameter (or the parameter itself if it's not a tuple),
	// in its logical shape.
	element := func(ii int, elementPhysical, elementLogical shapes.Shape) (backends.Op, error) {
		op := param
		if paramShape.IsTuple() {
			op, err = c.builder.GetTupleElement(param, ii)
			if err != nil {
				return nil, err
			}
		}
		return reshapeIfNeeded(c.builder, op, elementPhysical, elementLogical)
	}
	r.initialized = true
	if r.value, err = element(0, physical, logical); err != nil {
		return nil, wrapErrorf(Internal, err, "binding resource %s", r)
	}
	r.initialValue = r.value
	if r.kind == Stack {
		if r.position, err = element(1, shapes.Make(dtypes.Int32), shapes.Make(dtypes.Int32)); err != nil {
			return nil, wrapErrorf(Internal, err, "binding resource %s", r)
		}
		r.initialPosition = r.position
	}
	for ii, source := range arg.TensorArrayGradients {
		grad := c.newGradient(r, source)
		if grad.value, err = element(ii+1, physical, logical); err != nil {
			return nil, wrapErrorf(Internal, err, "binding gradient %q of resource %s", source, r)
		}
		grad.initialValue = grad.value
		r.numDeclaredGradients++
	}
	return handleValue, nil
}

// newGradient creates the record of a new gradient of the tensor array r. Its value is not set.
func (c *compilation) newGradient(r *Resource, source string) *Resource {
	grad := c.newResource(TensorArray, fmt.Sprintf("%s@%s", r.name, source), -1, r.dtype, r.shape)
	grad.arraySize = r.arraySize
	grad.initialized = true
	grad.parent = r.handle
	r.gradientSources = append(r.gradientSources, source)
	r.gradients = append(r.gradients, grad.handle)
	return grad
}

// tensorArrayGradient returns the gradient of the tensor array for the source, creating it if needed.
func (c *compilation) tensorArrayGradient(r *Resource, source string) (*Resource, error) {
	if r.kind != TensorArray {
		return nil, Errorf(InvalidArgument, "resource %q is a %s, gradients are only defined for tensor arrays", r.name, r.kind)
	}
	if r.parent >= 0 {
		r = c.resource(r.parent)
	}
	if !r.initialized {
		return nil, r.uninitializedError()
	}
	if idx := slices.Index(r.gradientSources, source); idx >= 0 {
		return c.resource(r.gradients[idx]), nil
	}
	zeros, err := c.zeros(r.ValueShape())
	if err != nil {
		return nil, err
	}
	grad := c.newGradient(r, source)
	grad.value, grad.initialValue = zeros, zeros
	klog.V(2).Infof("compiler: created gradient %q of %s", source, r)
	return grad, nil
}

// newLocalTensorArray creates a tensor array that is not an argument, filled with zeros.
func (c *compilation) newLocalTensorArray(name string, dtype dtypes.DType, elementShape shapes.Shape, size int) (*Resource, error) {
	if size < 0 {
		return nil, Errorf(InvalidArgument, "tensor array %q with negative size %d", name, size)
	}
	r := c.newResource(TensorArray, name, -1, dtype, elementShape)
	r.arraySize = size
	zeros, err := c.zeros(r.ValueShape())
	if err != nil {
		return nil, err
	}
	r.initialized = true
	r.value, r.initialValue = zeros, zeros
	return r, nil
}

// resourceUpdate is one resource update and the op (or tuple of ops) holding its physical value.
type resourceUpdate struct {
	update ResourceUpdate
	op     backends.Op
}

// resourceUpdates returns the updates of the resource arguments, in argument order.
func (c *compilation) resourceUpdates() ([]resourceUpdate, error) {
	var updates []resourceUpdate
	for _, r := range c.resources {
		if r.argIndex < 0 {
			continue
		}
		modified := r.changed()
		gradientsChanged := len(r.gradients) > r.numDeclaredGradients
		for _, gradHandle := range r.gradients {
			if c.resource(gradHandle).changed() {
				gradientsChanged = true
			}
		}
		if !modified && !gradientsChanged && !c.opts.ReturnUpdatedValuesForAllResources {
			continue
		}
		if !r.initialized {
			klog.Warningf("compiler: resource %s was never initialized, no update is returned for it", r)
			continue
		}

		logical := r.ValueShape()
		physical, err := c.compiler.physicalShape(logical)
		if err != nil {
			return nil, err
		}
		toPhysical := func(op backends.Op) (backends.Op, error) {
			return reshapeIfNeeded(c.builder, op, logical, physical)
		}
		op, err := toPhysical(r.value)
		if err != nil {
			return nil, wrapErrorf(Internal, err, "resource update of %s", r)
		}
		switch {
		case r.kind == Stack:
			op, err = c.builder.Tuple(op, r.position)
		case len(r.gradients) > 0:
			elements := []backends.Op{op}
			for _, gradHandle := range r.gradients {
				gradOp, err := toPhysical(c.resource(gradHandle).value)
				if err != nil {
					return nil, wrapErrorf(Internal, err, "resource update of %s", r)
				}
				elements = append(elements, gradOp)
			}
			op, err = c.builder.Tuple(elements...)
		}
		if err != nil {
			return nil, wrapErrorf(Internal, err, "resource update of %s", r)
		}
		updates = append(updates, resourceUpdate{
			update: ResourceUpdate{
				InputIndex:                   r.argIndex,
				DType:                        r.dtype,
				Shape:                        r.shape.Clone(),
				Modified:                     modified,
				TensorArrayGradientsAccessed: slices.Clone(r.gradientSources),
			},
			op: op,
		})
	}
	return updates, nil
}
