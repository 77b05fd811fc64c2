// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
)

// ArgumentKind discriminates what an Argument describes.
type ArgumentKind int

const (
	// ParameterArg is a runtime value, fed as a computation parameter.
	ParameterArg ArgumentKind = iota

	// ConstantArg is a value known at compile time. It's not a computation parameter.
	ConstantArg

	// ResourceArg is a stateful resource (variable, tensor array, stack or accumulator).
	ResourceArg

	// TokenArg is an ordering token. It carries no value and it's not a computation parameter.
	TokenArg
)

// String implements fmt.Stringer.
func (k ArgumentKind) String() string {
	switch k {
	case ParameterArg:
		return "Parameter"
	case ConstantArg:
		return "Constant"
	case ResourceArg:
		return "Resource"
	case TokenArg:
		return "Token"
	}
	return fmt.Sprintf("ArgumentKind(%d)", int(k))
}

// ResourceKind is the kind of stateful resource of a ResourceArg.
type ResourceKind int

const (
	Variable ResourceKind = iota
	TensorArray
	Stack
	Accumulator
)

// String implements fmt.Stringer.
func (k ResourceKind) String() string {
	switch k {
	case Variable:
		return "Variable"
	case TensorArray:
		return "TensorArray"
	case Stack:
		return "Stack"
	case Accumulator:
		return "Accumulator"
	}
	return fmt.Sprintf("ResourceKind(%d)", int(k))
}

// Argument describes one input of the unit being compiled.
type Argument struct {
	Kind ArgumentKind

	// Name is used for debugging and to name the computation parameter. Optional.
	Name string

	// DType and Shape of the value: of the parameter, constant or resource body.
	// For TensorArray and Stack resources, Shape is the shape of one element.
	DType dtypes.DType
	Shape shapes.Shape

	// ConstantValue for ConstantArg.
	ConstantValue *tensors.Tensor

	// Resource fields, only for ResourceArg.
	ResourceKind ResourceKind
	Initialized  bool

	// TensorArraySize is the number of elements of a TensorArray, or the capacity of a Stack.
	TensorArraySize int

	// TensorArrayGradients are the names of the gradients of a TensorArray that exist on entry, in order.
	TensorArrayGradients []string
}

// Validate checks that only the fields meaningful to the argument's kind are set, and that they are consistent.
func (a *Argument) Validate() error {
	if a.Kind != ResourceArg && (a.TensorArraySize != 0 || len(a.TensorArrayGradients) != 0 || a.Initialized) {
		return Errorf(InvalidArgument, "argument %s: resource fields set on a %s argument", a, a.Kind)
	}
	if a.Kind != ConstantArg && a.ConstantValue != nil {
		return Errorf(InvalidArgument, "argument %s: constant value set on a %s argument", a, a.Kind)
	}
	if a.Kind != TokenArg && !a.Shape.IsTuple() {
		if _, err := shapes.CheckedSize(a.Shape.Dimensions...); err != nil {
			return Errorf(InvalidArgument, "argument %s: %v", a, err)
		}
	}
	switch a.Kind {
	case ParameterArg, ConstantArg:
		if a.DType == dtypes.InvalidDType {
			return Errorf(InvalidArgument, "argument %s: %s requires a valid dtype", a, a.Kind)
		}
		if a.Shape.IsTuple() {
			return Errorf(InvalidArgument, "argument %s: tuple shapes are not supported", a)
		}
		if a.Kind == ConstantArg {
			if a.ConstantValue == nil {
				return Errorf(InvalidArgument, "argument %s: constant requires a value", a)
			}
			want := shapes.Make(a.DType, a.Shape.Dimensions...)
			if !a.ConstantValue.Shape().Equal(want) {
				return Errorf(InvalidArgument, "argument %s: constant value has shape %s, but %s was declared",
					a, a.ConstantValue.Shape(), want)
			}
		}
	case ResourceArg:
		if a.ResourceKind < Variable || a.ResourceKind > Accumulator {
			return Errorf(InvalidArgument, "argument %s: invalid resource kind %s", a, a.ResourceKind)
		}
		if a.DType == dtypes.InvalidDType && (a.Initialized || a.ResourceKind != Variable) {
			return Errorf(InvalidArgument, "argument %s: resource requires a valid dtype", a)
		}
		if a.ResourceKind != TensorArray && len(a.TensorArrayGradients) > 0 {
			return Errorf(InvalidArgument, "argument %s: only tensor arrays have gradients", a)
		}
		if (a.ResourceKind == TensorArray || a.ResourceKind == Stack) && a.TensorArraySize < 0 {
			return Errorf(InvalidArgument, "argument %s: negative size %d", a, a.TensorArraySize)
		}
		if a.ResourceKind != TensorArray && a.ResourceKind != Stack && a.TensorArraySize != 0 {
			return Errorf(InvalidArgument, "argument %s: only tensor arrays and stacks have a size", a)
		}
		if !a.Initialized && len(a.TensorArrayGradients) > 0 {
			return Errorf(InvalidArgument, "argument %s: uninitialized tensor array cannot have gradients", a)
		}
		seen := make([]string, 0, len(a.TensorArrayGradients))
		for _, source := range a.TensorArrayGradients {
			if slices.Contains(seen, source) {
				return Errorf(InvalidArgument, "argument %s: duplicate gradient %q", a, source)
			}
			seen = append(seen, source)
		}
	case TokenArg:
		if a.DType != dtypes.InvalidDType || a.Shape.Ok() {
			return Errorf(InvalidArgument, "argument %s: token arguments carry no value", a)
		}
	default:
		return Errorf(InvalidArgument, "argument %s: invalid kind", a)
	}
	return nil
}

// logicalShape returns the argument's shape with its dtype.
func (a *Argument) logicalShape() shapes.Shape {
	return shapes.Make(a.DType, a.Shape.Dimensions...)
}

// String implements fmt.Stringer.
func (a *Argument) String() string {
	var sb strings.Builder
	sb.WriteString(a.Kind.String())
	if a.Name != "" {
		fmt.Fprintf(&sb, " %q", a.Name)
	}
	switch a.Kind {
	case ParameterArg:
		fmt.Fprintf(&sb, " %s", a.logicalShape())
	case ConstantArg:
		fmt.Fprintf(&sb, " %s", a.ConstantValue)
	case ResourceArg:
		fmt.Fprintf(&sb, " %s %s initialized=%v", a.ResourceKind, a.logicalShape(), a.Initialized)
		if a.ResourceKind == TensorArray || a.ResourceKind == Stack {
			fmt.Fprintf(&sb, " size=%d", a.TensorArraySize)
		}
		if len(a.TensorArrayGradients) > 0 {
			fmt.Fprintf(&sb, " gradients=%v", a.TensorArrayGradients)
		}
	}
	return sb.String()
}
