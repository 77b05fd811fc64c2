// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
)

// OutputDescription describes one return value of the compiled graph.
type OutputDescription struct {
	// IsConstant outputs are known at compile time: they are not part of the computation's root tuple.
	IsConstant    bool
	ConstantValue *tensors.Tensor

	DType dtypes.DType

	// Shape is the logical shape of the output.
	Shape shapes.Shape
}

// ResourceUpdate describes a resource argument whose final value is an output of the computation.
type ResourceUpdate struct {
	// InputIndex is the index of the resource argument.
	InputIndex int

	DType dtypes.DType

	// Shape of the variable, or of one element of the tensor array or stack.
	Shape shapes.Shape

	// Modified is true if the value of the resource changed. It's false if only its gradients changed,
	// or if the update was requested with CompileOptions.ReturnUpdatedValuesForAllResources.
	Modified bool

	// TensorArrayGradientsAccessed lists the gradients of a tensor array: pre-declared ones in declaration order,
	// then the ones created during the computation in creation order. The value of the update is then
	// a tuple of the tensor array buffer followed by the gradients in this order.
	TensorArrayGradientsAccessed []string
}

// CompilationResult is the output of a compilation.
type CompilationResult struct {
	// Computation built. Its root is a tuple with the non-constant outputs (in order) followed by the
	// resource updates (in InputIndex order).
	Computation backends.Computation

	// Outputs describe every return value of the graph, in order, including constant ones.
	Outputs []OutputDescription

	// ResourceUpdates in InputIndex order.
	ResourceUpdates []ResourceUpdate

	// InputMapping maps each computation parameter to the index of its argument.
	// Constant and token arguments, and uninitialized resources, have no parameter.
	InputMapping []int

	// XlaInputShapes are the physical shapes of the computation parameters.
	XlaInputShapes []shapes.Shape

	// XlaOutputShape is the physical shape of the computation's root tuple.
	XlaOutputShape shapes.Shape
}

// String returns a multi-line summary of the result.
func (r *CompilationResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CompilationResult %q:\n", r.Computation.Name())
	for ii, shape := range r.XlaInputShapes {
		fmt.Fprintf(&sb, "  parameter #%d (argument #%d): %s\n", ii, r.InputMapping[ii], shape)
	}
	for ii, output := range r.Outputs {
		if output.IsConstant {
			fmt.Fprintf(&sb, "  output #%d: constant %s\n", ii, output.ConstantValue)
		} else {
			fmt.Fprintf(&sb, "  output #%d: %s\n", ii, shapes.Make(output.DType, output.Shape.Dimensions...))
		}
	}
	for _, update := range r.ResourceUpdates {
		fmt.Fprintf(&sb, "  update of argument #%d: %s modified=%v", update.InputIndex,
			shapes.Make(update.DType, update.Shape.Dimensions...), update.Modified)
		if len(update.TensorArrayGradientsAccessed) > 0 {
			fmt.Fprintf(&sb, " gradients=%v", update.TensorArrayGradientsAccessed)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  result: %s\n", r.XlaOutputShape)
	return sb.String()
}

// assemble builds the computation from the return values and the resource updates.
func (c *compilation) assemble(retvals []*value) (*CompilationResult, error) {
	result := &CompilationResult{InputMapping: c.inputMapping}
	var elements []backends.Op
	for ii, v := range retvals {
		if v.kind != tensorValue {
			return nil, Errorf(InvalidArgument, "return value %d of %q is not a tensor: returning resource handles or tokens is not supported",
				ii, c.name)
		}
		desc := OutputDescription{DType: v.shape.DType, Shape: v.shape.Clone()}
		if c.opts.ResolveCompileTimeConstants && v.isLiteral() {
			desc.IsConstant = true
			desc.ConstantValue = v.literal.Clone()
			result.Outputs = append(result.Outputs, desc)
			continue
		}
		op, err := c.materialize(v)
		if err != nil {
			return nil, err
		}
		if c.opts.IsEntryComputation {
			physical, err := c.compiler.physicalShape(v.shape)
			if err != nil {
				return nil, err
			}
			if op, err = reshapeIfNeeded(c.builder, op, v.shape, physical); err != nil {
				return nil, wrapErrorf(Internal, err, "return value %d", ii)
			}
		}
		elements = append(elements, op)
		result.Outputs = append(result.Outputs, desc)
	}
	numOutputs := len(elements)

	updates, err := c.resourceUpdates()
	if err != nil {
		return nil, err
	}
	for _, update := range updates {
		result.ResourceUpdates = append(result.ResourceUpdates, update.update)
		elements = append(elements, update.op)
	}

	root, err := c.builder.Tuple(elements...)
	if err != nil {
		return nil, wrapErrorf(Internal, err, "building the root tuple of %q", c.name)
	}
	result.Computation, err = c.builder.Build(root)
	if err != nil {
		return nil, wrapErrorf(Internal, err, "building computation %q", c.name)
	}

	programShape := result.Computation.ProgramShape()
	if !programShape.Result.IsTuple() || programShape.Result.TupleSize() != numOutputs+len(updates) {
		return nil, Errorf(OutputCountMismatch, "computation %q returns %s, but %d outputs and %d resource updates were expected",
			c.name, programShape.Result, numOutputs, len(updates))
	}
	if len(programShape.Parameters) != len(c.inputMapping) {
		return nil, Errorf(Internal, "computation %q has %d parameters, but %d were bound",
			c.name, len(programShape.Parameters), len(c.inputMapping))
	}
	result.XlaInputShapes = programShape.Parameters
	result.XlaOutputShape = programShape.Result
	return result, nil
}
