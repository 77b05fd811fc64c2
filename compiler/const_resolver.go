// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
)

// foldNode evaluates the node on the host, if its kernel can fold it and all its inputs are literals.
// It returns nil outputs if the node can't be folded.
func (c *compilation) foldNode(k *KernelDef, node *dataflow.Node, def *dataflow.OpDef, inputs []*value) ([]*value, error) {
	if k.Fold == nil || (def != nil && def.IsStateful) {
		return nil, nil
	}
	literals := make([]*tensors.Tensor, len(inputs))
	for ii, v := range inputs {
		if !v.isLiteral() {
			return nil, nil
		}
		literals[ii] = v.literal
	}
	results, err := k.Fold(node, literals)
	if err != nil {
		return nil, wrapErrorf(InvalidArgument, err, "constant folding of node %q failed", node.Name())
	}
	if results == nil {
		return nil, nil
	}
	outputs := make([]*value, len(results))
	for ii, result := range results {
		outputs[ii] = literalValue(result)
	}
	return outputs, nil
}

// checkCompileTimeConstInputs verifies the inputs the kernel requires at compile time are literals.
func (c *compilation) checkCompileTimeConstInputs(k *KernelDef, node *dataflow.Node, inputs []*value) error {
	for _, idx := range k.CompileTimeConstInputs {
		if idx >= len(inputs) {
			return Errorf(InvalidArgument, "node %q has %d inputs, but input %d must be a compile-time constant",
				node.Name(), len(inputs), idx)
		}
		if !inputs[idx].isLiteral() {
			return c.constantFoldingError(node, idx)
		}
	}
	return nil
}

// constantFoldingError reports that input `input` of the node is not known at compile time, naming
// the node in its fan-in responsible for it: a parameter if there is one, or else an op that can't
// be evaluated at compile time.
func (c *compilation) constantFoldingError(node *dataflow.Node, input int) error {
	frame := c.currentFrame()
	edges, err := node.InputEdges()
	if err != nil || input >= len(edges) {
		return Errorf(ConstantFolding, "input %d to node %q with op %s must be a compile-time constant",
			input, node.Name(), node.Op())
	}
	cause, isParameter := frame.nonConstantCause(edges[input].Src)
	if isParameter {
		return Errorf(ConstantFolding,
			"input %d to node %q with op %s must be a compile-time constant, but it depends on a parameter: %q (%s)",
			input, node.Name(), node.Op(), cause.Name(), cause.Op())
	}
	if cause != nil {
		return Errorf(ConstantFolding,
			"input %d to node %q with op %s must be a compile-time constant, but it depends on node %q (%s) "+
				"that can't be evaluated at compile time",
			input, node.Name(), node.Op(), cause.Name(), cause.Op())
	}
	return Errorf(ConstantFolding, "input %d to node %q with op %s must be a compile-time constant",
		input, node.Name(), node.Op())
}

// nonConstantCause walks the fan-in of a node whose value is not known at compile time, in input
// order. It returns the first ArgOp node found, or else the first node whose inputs are all known
// but which was still not folded.
func (f *frame) nonConstantCause(start *dataflow.Node) (cause *dataflow.Node, isParameter bool) {
	visited := make(map[int]bool)
	stack := []*dataflow.Node{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n.ID()] {
			continue
		}
		visited[n.ID()] = true
		if n.Op() == dataflow.ArgOp {
			return n, true
		}
		edges, _ := n.InputEdges()
		allKnown := true
		for ii := len(edges) - 1; ii >= 0; ii-- {
			e := edges[ii]
			if v := f.output(e.Src, e.SrcOutput); v == nil || !v.isLiteral() {
				allKnown = false
				stack = append(stack, e.Src)
			}
		}
		if allKnown && cause == nil {
			cause = n
		}
	}
	return cause, false
}
