// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/pkg/errors"
)

var _ backends.Executable = (*Executable)(nil)

// Executable holds a frozen Computation. It assumes the computation is valid: shapes and data types
// were checked by the Builder.
//
// If any inconsistencies are found, please fix in the Builder, so Executable can be written without the need
// of any duplicate checks.
type Executable struct {
	backend     *Backend
	computation *Computation

	// needed marks the nodes that contribute to the root. Others are never evaluated.
	needed []bool
}

// newExecutable creates an Executable ready to run the computation.
func newExecutable(c *Computation) *Executable {
	e := &Executable{
		backend:     c.backend,
		computation: c,
		needed:      make([]bool, c.root.builderIdx+1),
	}
	e.needed[c.root.builderIdx] = true
	for idx := c.root.builderIdx; idx >= 0; idx-- {
		if !e.needed[idx] {
			continue
		}
		for _, input := range c.nodes[idx].inputs {
			e.needed[input.builderIdx] = true
		}
	}
	return e
}

// Finalize immediately frees resources associated with the executable.
func (e *Executable) Finalize() {
	e.computation = nil
}

// Inputs returns the list of parameters names and shapes, in order created by the Builder.Parameter calls.
func (e *Executable) Inputs() (names []string, inputShapes []shapes.Shape) {
	ps := e.computation.ProgramShape()
	return ps.ParameterNames, ps.Parameters
}

// Output returns the shape of the root of the computation.
func (e *Executable) Output() shapes.Shape {
	return e.computation.root.shape
}

// Execute implements backends.Executable.
func (e *Executable) Execute(inputs ...backends.Buffer) (backends.Buffer, error) {
	if e.computation == nil {
		return nil, errors.New("Execute called on a finalized executable")
	}
	c := e.computation
	if len(inputs) != len(c.inputs) {
		return nil, errors.Errorf("computation %q takes %d inputs, %d given", c.name, len(c.inputs), len(inputs))
	}
	inputValues := make([]*tensors.Tensor, len(inputs))
	for ii, input := range inputs {
		buf, err := e.backend.checkBuffer(input)
		if err != nil {
			return nil, errors.WithMessagef(err, "input #%d of computation %q", ii, c.name)
		}
		if !buf.value.Shape().Equal(c.inputs[ii].shape) {
			return nil, errors.Errorf("input #%d of computation %q: expected shape %s, got %s",
				ii, c.name, c.inputs[ii].shape, buf.value.Shape())
		}
		inputValues[ii] = buf.value
	}

	results := make([]*tensors.Tensor, len(e.needed))
	err := exceptions.TryCatch[error](func() {
		for idx, node := range c.nodes[:len(e.needed)] {
			if !e.needed[idx] {
				continue
			}
			results[idx] = execNode(node, results, inputValues)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "while executing computation %q", c.name)
	}
	return e.backend.newBuffer(results[c.root.builderIdx])
}

// checked panics with err, if not nil.
func checked[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

// execNode evaluates one node given the results of its inputs. It panics on errors.
func execNode(node *Node, results []*tensors.Tensor, inputValues []*tensors.Tensor) *tensors.Tensor {
	operands := make([]*tensors.Tensor, len(node.inputs))
	for ii, input := range node.inputs {
		operands[ii] = results[input.builderIdx]
	}
	switch node.opType {
	case backends.OpTypeParameter:
		return inputValues[node.data.(*nodeParameter).inputIdx]
	case backends.OpTypeConstant:
		return node.data.(*tensors.Tensor)
	case backends.OpTypeIdentity:
		return operands[0]
	case backends.OpTypeAdd:
		return checked(tensors.Binary(tensors.BinaryAdd, operands[0], operands[1]))
	case backends.OpTypeSub:
		return checked(tensors.Binary(tensors.BinarySub, operands[0], operands[1]))
	case backends.OpTypeMul:
		return checked(tensors.Binary(tensors.BinaryMul, operands[0], operands[1]))
	case backends.OpTypeDiv:
		return checked(tensors.Binary(tensors.BinaryDiv, operands[0], operands[1]))
	case backends.OpTypeMax:
		return checked(tensors.Binary(tensors.BinaryMax, operands[0], operands[1]))
	case backends.OpTypeMin:
		return checked(tensors.Binary(tensors.BinaryMin, operands[0], operands[1]))
	case backends.OpTypeNeg:
		return checked(tensors.Unary(tensors.UnaryNeg, operands[0]))
	case backends.OpTypeAbs:
		return checked(tensors.Unary(tensors.UnaryAbs, operands[0]))
	case backends.OpTypeConvertDType:
		return checked(tensors.ConvertDType(operands[0], node.shape.DType))
	case backends.OpTypeReshape:
		return checked(tensors.Reshape(operands[0], node.shape.Dimensions...))
	case backends.OpTypeBroadcast:
		return checked(tensors.Broadcast(operands[0], node.data.([]int)...))
	case backends.OpTypeDynamicSlice:
		return checked(tensors.DynamicSlice(operands[0], startIndices(operands[1:]), node.shape.Dimensions))
	case backends.OpTypeDynamicUpdateSlice:
		return checked(tensors.DynamicUpdateSlice(operands[0], operands[1], startIndices(operands[2:])))
	case backends.OpTypeTuple:
		return tensors.MakeTuple(operands...)
	case backends.OpTypeGetTupleElement:
		return operands[0].TupleElements()[node.data.(int)]
	}
	exceptions.Panicf("simplego: op %s not implemented by the executor", node.opType)
	return nil
}

func startIndices(operands []*tensors.Tensor) []int {
	starts := make([]int, len(operands))
	for ii, operand := range operands {
		starts[ii] = checked(operand.AsInts())[0]
	}
	return starts
}
