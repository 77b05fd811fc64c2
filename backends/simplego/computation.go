// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"strings"

	"github.com/gomlx/graphcompiler/backends"
)

// Computation is a frozen Builder: the instructions it built plus the selected root.
type Computation struct {
	backend *Backend
	name    string
	nodes   []*Node
	inputs  []*Node
	root    *Node

	instructions []backends.Instruction
}

var _ backends.Computation = (*Computation)(nil)

func newComputation(b *Builder, root *Node) *Computation {
	c := &Computation{
		backend: b.backend,
		name:    b.name,
		nodes:   b.nodes,
		inputs:  b.inputs,
		root:    root,
	}
	c.instructions = make([]backends.Instruction, len(c.nodes))
	for idx, node := range c.nodes {
		operands := make([]int, len(node.inputs))
		for ii, input := range node.inputs {
			operands[ii] = input.builderIdx
		}
		c.instructions[idx] = backends.Instruction{
			Name:       fmt.Sprintf("%s.%d", strings.ToLower(node.opType.String()), idx),
			OpType:     node.opType,
			Shape:      node.shape.Clone(),
			Operands:   operands,
			Attributes: node.attributes(),
		}
	}
	return c
}

// Name implements backends.Computation.
func (c *Computation) Name() string { return c.name }

// ProgramShape implements backends.Computation.
func (c *Computation) ProgramShape() backends.ProgramShape {
	ps := backends.ProgramShape{Result: c.root.shape.Clone()}
	for _, input := range c.inputs {
		ps.ParameterNames = append(ps.ParameterNames, input.data.(*nodeParameter).name)
		ps.Parameters = append(ps.Parameters, input.shape.Clone())
	}
	return ps
}

// Instructions implements backends.Computation. The returned slice is a copy.
func (c *Computation) Instructions() []backends.Instruction {
	out := make([]backends.Instruction, len(c.instructions))
	copy(out, c.instructions)
	return out
}

// Root returns the index of the root instruction.
func (c *Computation) Root() int { return c.root.builderIdx }
