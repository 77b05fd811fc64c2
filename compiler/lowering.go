// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// compilation holds the state of one CompileGraph call.
type compilation struct {
	compiler *Compiler
	opts     CompileOptions
	name     string
	builder  backends.Builder

	// resources is the arena of resources, addressed by ResourceHandle.
	resources []*Resource

	// frames is the stack of graphs being lowered: the top graph, then inlined function bodies.
	frames []*frame

	// inputMapping maps each computation parameter to the index of its argument.
	inputMapping []int
}

// frame is the lowering state of one graph.
type frame struct {
	graph    *dataflow.Graph
	function string

	// outputs of each node, indexed by node id.
	outputs [][]*value
}

func (f *frame) output(n *dataflow.Node, idx int) *value {
	outputs := f.outputs[n.ID()]
	if idx < 0 || idx >= len(outputs) {
		return nil
	}
	return outputs[idx]
}

func (c *compilation) currentFrame() *frame { return c.frames[len(c.frames)-1] }

func (c *compilation) newParameter(argIdx int, name string, shape shapes.Shape) (backends.Op, error) {
	op, err := c.builder.Parameter(name, shape)
	if err != nil {
		return nil, wrapErrorf(Internal, err, "creating parameter for argument #%d", argIdx)
	}
	c.inputMapping = append(c.inputMapping, argIdx)
	return op, nil
}

// materialize returns the op holding the tensor value, emitting the constant of a literal the first time.
func (c *compilation) materialize(v *value) (backends.Op, error) {
	switch v.kind {
	case resourceValue:
		return nil, Errorf(InvalidArgument, "a resource handle can't be used as a tensor")
	case tokenValue:
		return nil, Errorf(InvalidArgument, "a token can't be used as a tensor")
	}
	if v.op != nil {
		return v.op, nil
	}
	if v.literal == nil {
		return nil, Errorf(Internal, "tensor value of shape %s has neither an op nor a literal", v.shape)
	}
	var flat any
	v.literal.ConstFlatData(func(data any) { flat = data })
	op, err := c.builder.Constant(flat, v.literal.Shape().Dimensions...)
	if err != nil {
		return nil, wrapErrorf(Internal, err, "emitting constant %s", v.literal)
	}
	v.op = op
	return op, nil
}

// nodeError adds the node context to err.
func nodeError(err error, node *dataflow.Node) error {
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = InvalidArgument
	}
	msg := err.Error()
	var inner *Error
	if errors.As(err, &inner) {
		msg = inner.Msg
	}
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf("%s\n\t[[Node: %s]]", msg, node.Summary()), cause: err})
}

// findFunction resolves a function called by a node of a graph with library lib: first in lib,
// then in the compiler's local library, then in the global library.
func (c *compilation) findFunction(lib *dataflow.FunctionLibrary, op string) (*dataflow.FunctionLibrary, *dataflow.FunctionDef) {
	if _, err := dataflow.LookupOp(op); err == nil {
		return nil, nil
	}
	for _, candidate := range []*dataflow.FunctionLibrary{lib, c.compiler.localLibrary, c.compiler.options.FunctionLibrary} {
		if fn := candidate.Find(op); fn != nil {
			return candidate, fn
		}
	}
	return nil, nil
}

// isBuiltinOp returns whether the op is handled by the lowering engine itself, or is left to
// functionalization.
func isBuiltinOp(op string) bool {
	return op == dataflow.ArgOp || op == dataflow.RetvalOp || dataflow.IsControlFlowOp(op)
}

// checkSupportedOps reports every op of the graph, and of the function bodies it calls, without a kernel
// for the device.
func (c *compilation) checkSupportedOps(g *dataflow.Graph) error {
	scanned := make(map[*dataflow.FunctionDef][]string)
	var scanFunction func(lib *dataflow.FunctionLibrary, fn *dataflow.FunctionDef) []string
	scanOp := func(lib *dataflow.FunctionLibrary, op string, unsupported []string) []string {
		var entry string
		switch {
		case isBuiltinOp(op):
			return unsupported
		case lookupKernel(op, c.compiler.options.DeviceType) != nil:
			return unsupported
		default:
			if fnLib, fn := c.findFunction(lib, op); fn != nil {
				bodyUnsupported := scanFunction(fnLib, fn)
				if len(bodyUnsupported) == 0 {
					return unsupported
				}
				entry = fmt.Sprintf("%s:{%s}", fn.Name(), strings.Join(bodyUnsupported, ", "))
			} else {
				entry = op
			}
		}
		if !slices.Contains(unsupported, entry) {
			unsupported = append(unsupported, entry)
		}
		return unsupported
	}
	scanFunction = func(lib *dataflow.FunctionLibrary, fn *dataflow.FunctionDef) []string {
		if result, found := scanned[fn]; found {
			return result
		}
		// Mark as scanned before recursing, so recursive functions terminate.
		scanned[fn] = nil
		var unsupported []string
		for _, nodeDef := range fn.Nodes {
			unsupported = scanOp(lib, nodeDef.Op, unsupported)
		}
		scanned[fn] = unsupported
		return unsupported
	}

	var unsupported []string
	for _, node := range g.OpNodes() {
		unsupported = scanOp(g.Library(), node.Op(), unsupported)
	}
	if len(unsupported) > 0 {
		return Errorf(UnsupportedOperation, "Detected unsupported operations when trying to compile graph %q on %s: %s",
			c.name, c.compiler.options.DeviceType, strings.Join(unsupported, ", "))
	}
	return nil
}

// checkStructure reports cycles, and op nodes not reachable from the source marker.
func checkStructure(g *dataflow.Graph) error {
	if cycle := dataflow.FindCycle(g); cycle != nil {
		names := make([]string, 0, len(cycle)+1)
		for _, n := range cycle {
			names = append(names, n.Name())
		}
		names = append(names, cycle[0].Name())
		return Errorf(InvalidArgument, "graph has a cycle: %s", strings.Join(names, " -> "))
	}
	unreachable := dataflow.UnreachableNodes(g)
	if len(unreachable) == 0 {
		return nil
	}
	names := make([]string, len(unreachable))
	for ii, n := range unreachable {
		names[ii] = n.Name()
	}
	return Errorf(UnreachableNode, "The following nodes are unreachable from the source in the graph: %s",
		strings.Join(names, ", "))
}

// lowerGraph lowers the graph with the given argument values, and returns the values of its return values.
func (c *compilation) lowerGraph(g *dataflow.Graph, args []*value, function string) ([]*value, error) {
	for _, f := range c.frames {
		if function != "" && f.function == function {
			return nil, Errorf(InvalidArgument, "recursive call of function %q", function)
		}
	}
	if err := checkStructure(g); err != nil {
		return nil, err
	}
	f := &frame{graph: g, function: function, outputs: make([][]*value, g.NumNodes())}
	c.frames = append(c.frames, f)
	defer func() { c.frames = c.frames[:len(c.frames)-1] }()

	retvals := make(map[int]*value)
	for _, node := range dataflow.ReversePostOrder(g) {
		if !node.IsOp() {
			continue
		}
		outputs, err := c.lowerNode(f, node, args, retvals)
		if err != nil {
			return nil, nodeError(err, node)
		}
		f.outputs[node.ID()] = outputs
	}

	results := make([]*value, len(retvals))
	for idx, v := range retvals {
		if idx >= len(results) {
			return nil, Errorf(InvalidArgument, "return value indices of graph are not contiguous: %d is out of range for %d return values",
				idx, len(retvals))
		}
		results[idx] = v
	}
	return results, nil
}

// nodeInputs returns the values of the data inputs of the node.
func (c *compilation) nodeInputs(f *frame, node *dataflow.Node) ([]*value, error) {
	edges, err := node.InputEdges()
	if err != nil {
		return nil, Errorf(InvalidArgument, "%s", err)
	}
	inputs := make([]*value, len(edges))
	for ii, e := range edges {
		inputs[ii] = f.output(e.Src, e.SrcOutput)
		if inputs[ii] == nil {
			return nil, Errorf(InvalidArgument, "input %d of node %q references output %d of node %q, which doesn't exist",
				ii, node.Name(), e.SrcOutput, e.Src.Name())
		}
	}
	return inputs, nil
}

func (c *compilation) lowerNode(f *frame, node *dataflow.Node, args []*value, retvals map[int]*value) ([]*value, error) {
	inputs, err := c.nodeInputs(f, node)
	if err != nil {
		return nil, err
	}
	switch node.Op() {
	case dataflow.ArgOp:
		return c.lowerArg(node, args)
	case dataflow.RetvalOp:
		idx, err := node.Attrs().Int("index")
		if err != nil {
			return nil, Errorf(InvalidAttribute, "%s", err)
		}
		if len(inputs) != 1 {
			return nil, Errorf(InvalidArgument, "return value node %q must have exactly one input, got %d", node.Name(), len(inputs))
		}
		if _, found := retvals[idx]; found || idx < 0 {
			return nil, Errorf(InvalidArgument, "invalid or duplicate return value index %d", idx)
		}
		retvals[idx] = inputs[0]
		return nil, nil
	}
	if dataflow.IsControlFlowOp(node.Op()) {
		return nil, Errorf(UnsupportedOperation, "control flow op %s must be functionalized before compilation", node.Op())
	}
	if lib, fn := c.findFunction(f.graph.Library(), node.Op()); fn != nil {
		return c.lowerCall(node, lib, fn, inputs)
	}

	def, err := dataflow.LookupOp(node.Op())
	if err != nil {
		return nil, Errorf(UnsupportedOperation, "%s", err)
	}
	if err = def.ValidateAttrs(node.Attrs()); err != nil {
		return nil, Errorf(InvalidAttribute, "%s", err)
	}
	device := c.compiler.options.DeviceType
	k := lookupKernel(node.Op(), device)
	if k == nil {
		return nil, Errorf(UnsupportedOperation, "no kernel registered for op %s on device %s", node.Op(), device)
	}

	outputs, err := c.foldNode(k, node, def, inputs)
	if err != nil {
		return nil, err
	}
	if outputs != nil {
		klog.V(2).Infof("compiler: folded %s", node.Summary())
		return outputs, nil
	}
	if err = c.checkCompileTimeConstInputs(k, node, inputs); err != nil {
		return nil, err
	}
	ctx := &KernelContext{
		comp:    c,
		node:    node,
		attrs:   def.WithDefaults(node.Attrs()),
		inputs:  inputs,
		outputs: make([]*value, len(def.Outputs)),
	}
	if err = k.Lower(ctx); err != nil {
		return nil, err
	}
	for ii, v := range ctx.outputs {
		if v == nil {
			return nil, Errorf(Internal, "kernel for op %s didn't set output %d", node.Op(), ii)
		}
	}
	klog.V(2).Infof("compiler: lowered %s", node.Summary())
	return ctx.outputs, nil
}

// lowerArg returns the value of the argument referenced by an ArgOp node.
func (c *compilation) lowerArg(node *dataflow.Node, args []*value) ([]*value, error) {
	idx, err := node.Attrs().Int("index")
	if err != nil {
		return nil, Errorf(InvalidAttribute, "%s", err)
	}
	if idx < 0 || idx >= len(args) {
		return nil, Errorf(InvalidArgument, "argument index %d of node %q out of range: %d arguments given",
			idx, node.Name(), len(args))
	}
	v := args[idx]
	if dtype, err := node.Attrs().DType("T"); err == nil && dtype != dtypes.InvalidDType &&
		v.kind == tensorValue && v.shape.DType != dtype {
		return nil, Errorf(InvalidArgument, "argument %d has dtype %s, but node %q expects %s",
			idx, v.shape.DType, node.Name(), dtype)
	}
	return []*value{v}, nil
}

// lowerCall inlines the body of the function called by node.
func (c *compilation) lowerCall(node *dataflow.Node, lib *dataflow.FunctionLibrary, fn *dataflow.FunctionDef, inputs []*value) ([]*value, error) {
	attrs := node.Attrs().Clone()
	for ii, input := range fn.Signature.Inputs {
		if input.TypeAttr == "" || ii >= len(inputs) || inputs[ii].kind != tensorValue {
			continue
		}
		if current, found := attrs[input.TypeAttr]; found && current != dtypes.InvalidDType {
			continue
		}
		attrs[input.TypeAttr] = inputs[ii].shape.DType
	}
	inst, err := lib.Instantiate(fn.Name(), attrs)
	if err != nil {
		return nil, Errorf(InvalidArgument, "%s", err)
	}
	if len(inputs) != len(inst.ArgTypes) {
		return nil, Errorf(InvalidArgument, "function %s takes %d arguments, %d given", fn.Name(), len(inst.ArgTypes), len(inputs))
	}
	results, err := c.lowerGraph(inst.Graph, inputs, fn.Name())
	if err != nil {
		return nil, wrapErrorf(InvalidArgument, err, "%s", fn.Name())
	}
	if len(results) != len(inst.RetTypes) {
		return nil, Errorf(InvalidArgument, "function %s returned %d values, %d declared", fn.Name(), len(results), len(inst.RetTypes))
	}
	return results, nil
}
