// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
)

// Builder keeps track of the computation being defined.
//
// Internally ops are validated with panics (exceptions.Panicf), and converted to errors at
// each public method.
type Builder struct {
	name    string
	backend *Backend
	built   bool

	// nodes are only created when their inputs have already been created. So this is a natural DAG (Directed Acyclic Graph)
	// ordering of the computation. The executor relies on this invariance.
	nodes []*Node

	// inputs will have nodeParameter as data.
	inputs []*Node
}

// Compile-time check.
var _ backends.Builder = (*Builder)(nil)

// Name implements backends.Builder.
func (b *Builder) Name() string {
	return b.name
}

// Node in the SimpleGo computation.
type Node struct {
	// builderIdx in Builder.nodes
	builderIdx int
	inputs     []*Node

	opType  backends.OpType
	shape   shapes.Shape
	builder *Builder

	// data for the specific node type.
	data any
}

type nodeParameter struct {
	name     string
	inputIdx int
}

// newNode adds a new node of the given opType and shape to the Builder.
// It's used by the other ops when creating new nodes.
func (b *Builder) newNode(opType backends.OpType, shape shapes.Shape, inputs ...*Node) *Node {
	n := &Node{
		builder:    b,
		opType:     opType,
		builderIdx: len(b.nodes),
		shape:      shape,
		inputs:     slices.Clone(inputs),
	}
	b.nodes = append(b.nodes, n)
	return n
}

// checkOps validates that the ops are from SimpleGo and from this builder.
// It also checks whether the Builder is not yet built.
func (b *Builder) checkOps(opType string, ops ...backends.Op) []*Node {
	if b == nil {
		exceptions.Panicf("%s: Builder is nil (!?), cannot build a computation", opType)
	}
	if b.built {
		exceptions.Panicf("cannot add new op (%s) to Builder %q, it has already been built", opType, b.name)
	}
	nodes := make([]*Node, len(ops))
	var ok bool
	for idx, op := range ops {
		if op == nil {
			exceptions.Panicf("%s: input op #%d is nil!?", opType, idx)
		}
		nodes[idx], ok = op.(*Node)
		if !ok {
			exceptions.Panicf("cannot use input op #%d in backend %q that was created on a different backend for %s", idx, b.backend.Name(), opType)
		}
		if nodes[idx].builder != b {
			exceptions.Panicf("%s: input op #%d was created with a different builder (%q), cannot use it with builder %q",
				opType, idx, nodes[idx].builder.name, b.name)
		}
	}
	return nodes
}

// checkNotTuple panics if any of the nodes is a tuple.
func checkNotTuple(opType backends.OpType, nodes ...*Node) {
	for idx, node := range nodes {
		if node.shape.IsTuple() {
			exceptions.Panicf("%s: operand #%d cannot be a tuple, got %s", opType, idx, node.shape)
		}
	}
}

// build runs buildFn converting any panic to an error.
func build(buildFn func() *Node) (op backends.Op, err error) {
	err = exceptions.TryCatch[error](func() { op = buildFn() })
	if err != nil {
		return nil, err
	}
	return
}

// OpShape returns the shape of a computation Op.
func (b *Builder) OpShape(op backends.Op) (shape shapes.Shape, err error) {
	err = exceptions.TryCatch[error](func() {
		inputs := b.checkOps("OpShape", op)
		shape = inputs[0].shape
	})
	return
}

// Parameter implements backends.Builder.
func (b *Builder) Parameter(name string, shape shapes.Shape) (backends.Op, error) {
	return build(func() *Node {
		b.checkOps("Parameter")
		if !shape.Ok() {
			exceptions.Panicf("Parameter(%q): invalid shape %s", name, shape)
		}
		n := b.newNode(backends.OpTypeParameter, shape.Clone())
		n.data = &nodeParameter{name: name, inputIdx: len(b.inputs)}
		b.inputs = append(b.inputs, n)
		return n
	})
}

// checkFlat throws an exception if flat is not a slice of one of the dtypes supported.
// It returns the supported dtype and the length of the flat slice.
func checkFlat(flat any) (dtypes.DType, int) {
	flatType := reflect.TypeOf(flat)
	if flatType == nil || flatType.Kind() != reflect.Slice {
		exceptions.Panicf("flat data should be a slice, not %v", flatType)
	}
	dtype := dtypes.FromGoType(flatType.Elem())
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("flat is a slice of %s, not a valid data type", flatType.Elem())
	}
	flatValue := reflect.ValueOf(flat)
	return dtype, flatValue.Len()
}

// Constant implements backends.Builder.
func (b *Builder) Constant(flat any, dims ...int) (backends.Op, error) {
	return build(func() *Node {
		b.checkOps("Constant")
		dtype, flatLen := checkFlat(flat)
		shape := shapes.Make(dtype, dims...)
		if shape.Size() != flatLen {
			exceptions.Panicf("flat ([%d]%s) and shape size (%d) mismatch for constant value",
				flatLen, dtype, shape.Size())
		}
		value := tensors.FromShape(shape)
		value.MutableFlatData(func(dst any) {
			reflect.Copy(reflect.ValueOf(dst), reflect.ValueOf(flat))
		})
		n := b.newNode(backends.OpTypeConstant, shape)
		n.data = value
		return n
	})
}

// Identity implements backends.Builder.
func (b *Builder) Identity(x backends.Op) (backends.Op, error) {
	return build(func() *Node {
		inputs := b.checkOps("Identity", x)
		return b.newNode(backends.OpTypeIdentity, inputs[0].shape, inputs[0])
	})
}

// addBinaryOp adds a generic binary op.
func (b *Builder) addBinaryOp(opType backends.OpType, lhsOp, rhsOp backends.Op) (backends.Op, error) {
	return build(func() *Node {
		inputs := b.checkOps(opType.String(), lhsOp, rhsOp)
		lhs, rhs := inputs[0], inputs[1]
		shape, err := tensors.BinaryOutputShape(lhs.shape, rhs.shape)
		if err != nil {
			panic(err)
		}
		return b.newNode(opType, shape, lhs, rhs)
	})
}

// addUnaryOp adds a generic unary op.
func (b *Builder) addUnaryOp(opType backends.OpType, operandOp backends.Op) (backends.Op, error) {
	return build(func() *Node {
		inputs := b.checkOps(opType.String(), operandOp)
		checkNotTuple(opType, inputs...)
		return b.newNode(opType, inputs[0].shape.Clone(), inputs[0])
	})
}

// Add implements backends.Builder.
func (b *Builder) Add(lhs, rhs backends.Op) (backends.Op, error) {
	return b.addBinaryOp(backends.OpTypeAdd, lhs, rhs)
}

// Sub implements backends.Builder.
func (b *Builder) Sub(lhs, rhs backends.Op) (backends.Op, error) {
	return b.addBinaryOp(backends.OpTypeSub, lhs, rhs)
}

// Mul implements backends.Builder.
func (b *Builder) Mul(lhs, rhs backends.Op) (backends.Op, error) {
	return b.addBinaryOp(backends.OpTypeMul, lhs, rhs)
}

// Div implements backends.Builder.
func (b *Builder) Div(lhs, rhs backends.Op) (backends.Op, error) {
	return b.addBinaryOp(backends.OpTypeDiv, lhs, rhs)
}

// Max implements backends.Builder.
func (b *Builder) Max(lhs, rhs backends.Op) (backends.Op, error) {
	return b.addBinaryOp(backends.OpTypeMax, lhs, rhs)
}

// Min implements backends.Builder.
func (b *Builder) Min(lhs, rhs backends.Op) (backends.Op, error) {
	return b.addBinaryOp(backends.OpTypeMin, lhs, rhs)
}

// Neg implements backends.Builder.
func (b *Builder) Neg(x backends.Op) (backends.Op, error) {
	return b.addUnaryOp(backends.OpTypeNeg, x)
}

// Abs implements backends.Builder.
func (b *Builder) Abs(x backends.Op) (backends.Op, error) {
	return b.addUnaryOp(backends.OpTypeAbs, x)
}

// ConvertDType implements backends.Builder.
func (b *Builder) ConvertDType(x backends.Op, dtype dtypes.DType) (backends.Op, error) {
	return build(func() *Node {
		opType := backends.OpTypeConvertDType
		inputs := b.checkOps(opType.String(), x)
		checkNotTuple(opType, inputs...)
		if dtype == dtypes.InvalidDType {
			exceptions.Panicf("ConvertDType: invalid target dtype")
		}
		shape := inputs[0].shape.Clone()
		shape.DType = dtype
		return b.newNode(opType, shape, inputs[0])
	})
}

// Reshape implements backends.Builder.
func (b *Builder) Reshape(x backends.Op, dimensions ...int) (backends.Op, error) {
	return build(func() *Node {
		opType := backends.OpTypeReshape
		inputs := b.checkOps(opType.String(), x)
		checkNotTuple(opType, inputs...)
		shape := shapes.Make(inputs[0].shape.DType, dimensions...)
		if err := shapes.CheckCompatibleReshape(inputs[0].shape, shape); err != nil {
			panic(err)
		}
		return b.newNode(opType, shape, inputs[0])
	})
}

// Broadcast implements backends.Builder.
func (b *Builder) Broadcast(x backends.Op, prefixDimensions ...int) (backends.Op, error) {
	return build(func() *Node {
		opType := backends.OpTypeBroadcast
		inputs := b.checkOps(opType.String(), x)
		checkNotTuple(opType, inputs...)
		operand := inputs[0]
		shape := shapes.Make(operand.shape.DType, append(slices.Clone(prefixDimensions), operand.shape.Dimensions...)...)
		n := b.newNode(opType, shape, operand)
		n.data = slices.Clone(prefixDimensions)
		return n
	})
}

// checkStartIndices validates that the start indices are integer scalars, one per axis of the operand.
func checkStartIndices(opType backends.OpType, operand *Node, startIndices []*Node) {
	if len(startIndices) != operand.shape.Rank() {
		exceptions.Panicf("%s: operand %s requires %d start indices, got %d", opType, operand.shape,
			operand.shape.Rank(), len(startIndices))
	}
	for axis, start := range startIndices {
		if !start.shape.IsScalar() || !(start.shape.DType.IsInt() || start.shape.DType.IsUnsigned()) {
			exceptions.Panicf("%s: start index for axis %d must be an integer scalar, got %s", opType, axis, start.shape)
		}
	}
}

// DynamicSlice implements backends.Builder.
func (b *Builder) DynamicSlice(operandOp backends.Op, startIndices []backends.Op, sliceDims []int) (backends.Op, error) {
	return build(func() *Node {
		opType := backends.OpTypeDynamicSlice
		inputs := b.checkOps(opType.String(), append([]backends.Op{operandOp}, startIndices...)...)
		checkNotTuple(opType, inputs...)
		operand := inputs[0]
		checkStartIndices(opType, operand, inputs[1:])
		if len(sliceDims) != operand.shape.Rank() {
			exceptions.Panicf("%s: operand %s requires %d slice dimensions, got %v", opType, operand.shape,
				operand.shape.Rank(), sliceDims)
		}
		for axis, dim := range sliceDims {
			if dim < 0 || dim > operand.shape.Dimensions[axis] {
				exceptions.Panicf("%s: slice dimension %d for axis %d out of range for operand %s", opType, dim, axis, operand.shape)
			}
		}
		return b.newNode(opType, shapes.Make(operand.shape.DType, sliceDims...), inputs...)
	})
}

// DynamicUpdateSlice implements backends.Builder.
func (b *Builder) DynamicUpdateSlice(operandOp, updateOp backends.Op, startIndices []backends.Op) (backends.Op, error) {
	return build(func() *Node {
		opType := backends.OpTypeDynamicUpdateSlice
		inputs := b.checkOps(opType.String(), append([]backends.Op{operandOp, updateOp}, startIndices...)...)
		checkNotTuple(opType, inputs...)
		operand, update := inputs[0], inputs[1]
		checkStartIndices(opType, operand, inputs[2:])
		if update.shape.DType != operand.shape.DType || update.shape.Rank() != operand.shape.Rank() {
			exceptions.Panicf("%s: update %s incompatible with operand %s", opType, update.shape, operand.shape)
		}
		for axis, dim := range update.shape.Dimensions {
			if dim > operand.shape.Dimensions[axis] {
				exceptions.Panicf("%s: update %s larger than operand %s", opType, update.shape, operand.shape)
			}
		}
		return b.newNode(opType, operand.shape.Clone(), inputs...)
	})
}

// Tuple implements backends.Builder.
func (b *Builder) Tuple(elements ...backends.Op) (backends.Op, error) {
	return build(func() *Node {
		inputs := b.checkOps("Tuple", elements...)
		elementShapes := make([]shapes.Shape, len(inputs))
		for ii, input := range inputs {
			elementShapes[ii] = input.shape
		}
		return b.newNode(backends.OpTypeTuple, shapes.MakeTuple(elementShapes...), inputs...)
	})
}

// GetTupleElement implements backends.Builder.
func (b *Builder) GetTupleElement(tupleOp backends.Op, index int) (backends.Op, error) {
	return build(func() *Node {
		opType := backends.OpTypeGetTupleElement
		inputs := b.checkOps(opType.String(), tupleOp)
		tuple := inputs[0]
		if !tuple.shape.IsTuple() {
			exceptions.Panicf("%s: operand must be a tuple, got %s", opType, tuple.shape)
		}
		if index < 0 || index >= tuple.shape.TupleSize() {
			exceptions.Panicf("%s: index %d out of range for %s", opType, index, tuple.shape)
		}
		n := b.newNode(opType, tuple.shape.TupleShapes[index].Clone(), tuple)
		n.data = index
		return n
	})
}

// Build implements backends.Builder.
func (b *Builder) Build(rootOp backends.Op) (computation backends.Computation, err error) {
	err = exceptions.TryCatch[error](func() {
		inputs := b.checkOps("Build", rootOp)
		b.built = true
		computation = newComputation(b, inputs[0])
	})
	if err != nil {
		return nil, err
	}
	return
}

// attributes returns the textual representation of the static attributes of the node.
func (n *Node) attributes() string {
	switch n.opType {
	case backends.OpTypeParameter:
		param := n.data.(*nodeParameter)
		return fmt.Sprintf("parameter=%d, name=%q", param.inputIdx, param.name)
	case backends.OpTypeConstant:
		return n.data.(*tensors.Tensor).String()
	case backends.OpTypeGetTupleElement:
		return fmt.Sprintf("index=%d", n.data.(int))
	case backends.OpTypeBroadcast:
		return fmt.Sprintf("prefix_dims=%v", n.data.([]int))
	case backends.OpTypeReshape, backends.OpTypeDynamicSlice:
		return fmt.Sprintf("dims=%v", n.shape.Dimensions)
	case backends.OpTypeConvertDType:
		return fmt.Sprintf("dtype=%s", n.shape.DType)
	}
	return ""
}
