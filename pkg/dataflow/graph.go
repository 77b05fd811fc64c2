// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataflow implements the dataflow graph representation consumed by the compiler:
// nodes with named ops and static attributes, data and control edges, the canonical
// source and sink markers, op definitions and a library of functions that nodes can call.
//
// Graphs are built either directly (Graph.AddNode, Graph.AddEdge) or with a GraphBuilder, which
// infers dtype attributes from the inputs and connects the source and sink markers on Build.
package dataflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ControlSlot is the output/input index used by control edges.
const ControlSlot = -1

// Graph is a dataflow graph: nodes connected by data and control edges.
//
// Node ids are assigned in order of creation, starting with the source (0) and sink (1) markers.
type Graph struct {
	nodes     []*Node
	edges     []*Edge
	nameToIdx map[string]int

	library *FunctionLibrary
}

// Node is one operation in a Graph.
type Node struct {
	id    int
	name  string
	op    string
	attrs Attrs
	graph *Graph

	inEdges, outEdges []*Edge
}

// Edge connects an output of a node to an input of another node.
// For control edges both SrcOutput and DstInput are ControlSlot.
type Edge struct {
	id        int
	Src       *Node
	SrcOutput int
	Dst       *Node
	DstInput  int
}

// IsControlEdge returns whether the edge only expresses an execution order dependency.
func (e *Edge) IsControlEdge() bool { return e.SrcOutput == ControlSlot }

// ID of the edge, in order of creation.
func (e *Edge) ID() int { return e.id }

// NewGraph creates an empty graph (only the source and sink markers) whose function calls are resolved
// with the given library. The library can be nil.
func NewGraph(library *FunctionLibrary) *Graph {
	g := &Graph{nameToIdx: make(map[string]int), library: library}
	g.newNode(SourceOp, SourceOp, nil)
	g.newNode(SinkOp, SinkOp, nil)
	return g
}

func (g *Graph) newNode(name, op string, attrs Attrs) *Node {
	n := &Node{id: len(g.nodes), name: name, op: op, attrs: attrs.Clone(), graph: g}
	if n.attrs == nil {
		n.attrs = make(Attrs)
	}
	g.nodes = append(g.nodes, n)
	g.nameToIdx[name] = n.id
	return n
}

// Library of functions callable from the graph. It may be nil.
func (g *Graph) Library() *FunctionLibrary { return g.library }

// Source returns the canonical source marker.
func (g *Graph) Source() *Node { return g.nodes[0] }

// Sink returns the canonical sink marker.
func (g *Graph) Sink() *Node { return g.nodes[1] }

// NumNodes returns the number of nodes, including the source and sink markers.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns all nodes in order of id, including the source and sink markers.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// OpNodes returns all nodes in order of id, excluding the source and sink markers.
func (g *Graph) OpNodes() []*Node { return slices.Clone(g.nodes[2:]) }

// Node returns the node with the given id.
func (g *Graph) Node(id int) *Node { return g.nodes[id] }

// FindNode returns the node with the given name, or nil if not found.
func (g *Graph) FindNode(name string) *Node {
	idx, found := g.nameToIdx[name]
	if !found {
		return nil
	}
	return g.nodes[idx]
}

// AddNode adds a node with the given unique name, op and attributes. The attributes are copied.
//
// The op is not validated here: the compiler validates ops and attributes when lowering.
func (g *Graph) AddNode(name, op string, attrs Attrs) (*Node, error) {
	if name == "" || op == "" {
		return nil, errors.Errorf("node name (%q) and op (%q) must be given", name, op)
	}
	if _, found := g.nameToIdx[name]; found {
		return nil, errors.Errorf("duplicate node name %q", name)
	}
	return g.newNode(name, op, attrs), nil
}

// AddEdge adds a data edge from output srcOutput of src to input dstInput of dst.
func (g *Graph) AddEdge(src *Node, srcOutput int, dst *Node, dstInput int) (*Edge, error) {
	if src.graph != g || dst.graph != g {
		return nil, errors.Errorf("cannot connect nodes %q -> %q from different graphs", src.name, dst.name)
	}
	if (srcOutput == ControlSlot) != (dstInput == ControlSlot) {
		return nil, errors.Errorf("edge %q:%d -> %q:%d mixes control and data slots", src.name, srcOutput, dst.name, dstInput)
	}
	if srcOutput < ControlSlot || dstInput < ControlSlot {
		return nil, errors.Errorf("invalid edge slots %q:%d -> %q:%d", src.name, srcOutput, dst.name, dstInput)
	}
	if dstInput != ControlSlot {
		for _, e := range dst.inEdges {
			if e.DstInput == dstInput {
				return nil, errors.Errorf("input %d of node %q already connected to %q", dstInput, dst.name, e.Src.name)
			}
		}
	}
	e := &Edge{id: len(g.edges), Src: src, SrcOutput: srcOutput, Dst: dst, DstInput: dstInput}
	g.edges = append(g.edges, e)
	src.outEdges = append(src.outEdges, e)
	dst.inEdges = append(dst.inEdges, e)
	return e, nil
}

// AddControlEdge adds a control edge from src to dst, if one doesn't exist yet.
func (g *Graph) AddControlEdge(src, dst *Node) (*Edge, error) {
	for _, e := range dst.inEdges {
		if e.IsControlEdge() && e.Src == src {
			return e, nil
		}
	}
	return g.AddEdge(src, ControlSlot, dst, ControlSlot)
}

// FixupSourceAndSinkEdges connects every op node without inputs to the source marker, and every op node
// without outputs to the sink marker, with control edges. It returns whether any edge was added.
func FixupSourceAndSinkEdges(g *Graph) bool {
	changed := false
	for _, n := range g.nodes[2:] {
		if len(n.inEdges) == 0 {
			_, _ = g.AddEdge(g.Source(), ControlSlot, n, ControlSlot)
			changed = true
		}
		if len(n.outEdges) == 0 {
			_, _ = g.AddEdge(n, ControlSlot, g.Sink(), ControlSlot)
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy of the graph. Nodes and edges keep their ids. The library is shared.
func (g *Graph) Clone() *Graph {
	g2 := &Graph{nameToIdx: make(map[string]int, len(g.nodes)), library: g.library}
	for _, n := range g.nodes {
		g2.newNode(n.name, n.op, n.attrs)
	}
	for _, e := range g.edges {
		_, _ = g2.AddEdge(g2.nodes[e.Src.id], e.SrcOutput, g2.nodes[e.Dst.id], e.DstInput)
	}
	return g2
}

// ID of the node, unique within the graph.
func (n *Node) ID() int { return n.id }

// Name of the node, unique within the graph.
func (n *Node) Name() string { return n.name }

// Op name of the node.
func (n *Node) Op() string { return n.op }

// Attrs returns the node attributes. It must not be modified.
func (n *Node) Attrs() Attrs { return n.attrs }

// SetAttr sets or replaces an attribute of the node.
func (n *Node) SetAttr(name string, value any) { n.attrs[name] = value }

// Graph the node belongs to.
func (n *Node) Graph() *Graph { return n.graph }

// IsSource returns whether the node is the canonical source marker.
func (n *Node) IsSource() bool { return n.id == 0 }

// IsSink returns whether the node is the canonical sink marker.
func (n *Node) IsSink() bool { return n.id == 1 }

// IsOp returns whether the node is a real op (not the source or sink markers).
func (n *Node) IsOp() bool { return n.id > 1 }

// InEdges returns the incoming edges, in order of creation.
func (n *Node) InEdges() []*Edge { return slices.Clone(n.inEdges) }

// OutEdges returns the outgoing edges, in order of creation.
func (n *Node) OutEdges() []*Edge { return slices.Clone(n.outEdges) }

// NumInputs returns the number of data inputs: one more than the largest connected input index.
func (n *Node) NumInputs() int {
	numInputs := 0
	for _, e := range n.inEdges {
		numInputs = max(numInputs, e.DstInput+1)
	}
	return numInputs
}

// InputEdges returns the data input edges ordered by input index. It returns an error if any input is missing.
func (n *Node) InputEdges() ([]*Edge, error) {
	inputs := make([]*Edge, n.NumInputs())
	for _, e := range n.inEdges {
		if !e.IsControlEdge() {
			inputs[e.DstInput] = e
		}
	}
	for ii, e := range inputs {
		if e == nil {
			return nil, errors.Errorf("input %d of node %q is not connected", ii, n.name)
		}
	}
	return inputs, nil
}

// ControlInputs returns the sources of the control edges into the node, excluding the source marker.
func (n *Node) ControlInputs() []*Node {
	var inputs []*Node
	for _, e := range n.inEdges {
		if e.IsControlEdge() && !e.Src.IsSource() {
			inputs = append(inputs, e.Src)
		}
	}
	return inputs
}

// OutputDType returns the dtype of the given output of the node, inferred from its op definition
// (a registered op or a function in the graph library) and its attributes.
// It returns false if the dtype can't be inferred (e.g.: a resource handle or a missing attribute).
func (n *Node) OutputDType(output int) (dtypes.DType, bool) {
	def := n.graph.opDef(n.op)
	if def == nil || output < 0 || output >= len(def.Outputs) {
		return dtypes.InvalidDType, false
	}
	arg := def.Outputs[output]
	if arg.IsResource {
		return dtypes.InvalidDType, false
	}
	if arg.TypeAttr == "" {
		return arg.Type, true
	}
	dtype, err := n.attrs.DType(arg.TypeAttr)
	if err != nil || dtype == dtypes.InvalidDType {
		return dtypes.InvalidDType, false
	}
	return dtype, true
}

// opDef returns the definition of the op: a registered op, or the signature of a function in the library.
func (g *Graph) opDef(op string) *OpDef {
	if def, err := LookupOp(op); err == nil {
		return def
	}
	if g.library != nil {
		if fn := g.library.Find(op); fn != nil {
			return &fn.Signature
		}
	}
	return nil
}

// Summary returns a one-line description of the node and its inputs, e.g.: "C = Reshape(A, B:1, ^D)".
func (n *Node) Summary() string {
	var inputs []string
	if edges, err := n.InputEdges(); err == nil {
		for _, e := range edges {
			if e.SrcOutput == 0 {
				inputs = append(inputs, e.Src.name)
			} else {
				inputs = append(inputs, fmt.Sprintf("%s:%d", e.Src.name, e.SrcOutput))
			}
		}
	}
	for _, control := range n.ControlInputs() {
		inputs = append(inputs, "^"+control.name)
	}
	return fmt.Sprintf("%s = %s(%s)", n.name, n.op, strings.Join(inputs, ", "))
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("{name:%q id:%d op:%s}", n.name, n.id, n.op)
}
