// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Output references one output of a node created by a GraphBuilder.
type Output struct {
	Node  *Node
	Index int
}

// GraphBuilder builds a Graph with a convenient API.
//
// Errors are sticky: the first error is recorded and all later calls are no-ops, returning an empty Output.
// The error is returned by Build (or Err).
//
// When an op input is bound to a dtype attribute (e.g.: "T" of "Add") that is not given, the attribute is
// inferred from the dtype of the input.
type GraphBuilder struct {
	graph *Graph
	err   error

	controlDeps []*Node
}

// NewGraphBuilder creates a builder for a new graph, whose function calls are resolved with library (it can be nil).
func NewGraphBuilder(library *FunctionLibrary) *GraphBuilder {
	return &GraphBuilder{graph: NewGraph(library)}
}

// Err returns the first error that happened while building, if any.
func (b *GraphBuilder) Err() error { return b.err }

// Graph returns the graph being built, without fixing up the source and sink edges.
func (b *GraphBuilder) Graph() *Graph { return b.graph }

// Build connects nodes without inputs (outputs) to the source (sink) marker and returns the graph,
// or the first error that happened while building.
func (b *GraphBuilder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	FixupSourceAndSinkEdges(b.graph)
	return b.graph, nil
}

// WithControlDependencies makes every node created by fn depend (control edge) on the given outputs' nodes.
func (b *GraphBuilder) WithControlDependencies(deps []Output, fn func()) {
	saved := b.controlDeps
	for _, dep := range deps {
		if dep.Node != nil {
			b.controlDeps = append(b.controlDeps, dep.Node)
		}
	}
	fn()
	b.controlDeps = saved
}

// Op adds a node with the given name, op, attributes and data inputs. It returns the node's output 0.
// Use Output.Node with OutputAt for the other outputs.
func (b *GraphBuilder) Op(name, op string, attrs Attrs, inputs ...Output) Output {
	if b.err != nil {
		return Output{}
	}
	def := b.graph.opDef(op)
	if def == nil {
		b.err = errors.Errorf("node %q: op %q is neither a registered op nor a function in the library", name, op)
		return Output{}
	}
	attrs = attrs.Clone()
	if attrs == nil {
		attrs = make(Attrs)
	}
	for ii, input := range inputs {
		if input.Node == nil {
			b.err = errors.Errorf("node %q: input #%d is not set", name, ii)
			return Output{}
		}
		if ii >= len(def.Inputs) {
			continue
		}
		typeAttr := def.Inputs[ii].TypeAttr
		if typeAttr == "" {
			continue
		}
		if current, found := attrs[typeAttr]; found && current != dtypes.InvalidDType {
			continue
		}
		if dtype, ok := input.Node.OutputDType(input.Index); ok {
			attrs[typeAttr] = dtype
		}
	}
	node, err := b.graph.AddNode(name, op, attrs)
	if err != nil {
		b.err = err
		return Output{}
	}
	for ii, input := range inputs {
		if _, err = b.graph.AddEdge(input.Node, input.Index, node, ii); err != nil {
			b.err = err
			return Output{}
		}
	}
	for _, dep := range b.controlDeps {
		if _, err = b.graph.AddControlEdge(dep, node); err != nil {
			b.err = err
			return Output{}
		}
	}
	return Output{Node: node}
}

// OutputAt returns the output with the given index of the same node.
func (o Output) OutputAt(index int) Output {
	return Output{Node: o.Node, Index: index}
}

// Arg adds an ArgOp node for the argument with the given index. Use dtypes.InvalidDType for resources.
func (b *GraphBuilder) Arg(name string, dtype dtypes.DType, index int) Output {
	return b.Op(name, ArgOp, Attrs{"T": dtype, "index": index})
}

// Retval adds a RetvalOp node returning input as the return value with the given index.
func (b *GraphBuilder) Retval(name string, input Output, index int) Output {
	return b.Op(name, RetvalOp, Attrs{"index": index}, input)
}

// Const adds a Const node with the given value.
func (b *GraphBuilder) Const(name string, value any) Output {
	tensor, err := toTensor(value)
	if err != nil {
		if b.err == nil {
			b.err = errors.WithMessagef(err, "node %q", name)
		}
		return Output{}
	}
	return b.Op(name, "Const", Attrs{"value": tensor, "dtype": tensor.DType()})
}

func toTensor(value any) (tensor *tensors.Tensor, err error) {
	err = exceptions.TryCatch[error](func() { tensor = tensors.FromAnyValue(value) })
	return
}
