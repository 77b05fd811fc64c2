// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// NodeDef describes a node in a FunctionDef body.
//
// Inputs reference either a function input argument by name ("x"), a node output ("node" for output 0,
// "node:1" for others) or, prefixed with "^", a control dependency on a node.
type NodeDef struct {
	Name   string
	Op     string
	Inputs []string
	Attrs  Attrs
}

// FunctionDef defines a function: its signature (an OpDef) and its body.
//
// Attribute values in the body can be AttrPlaceholder referencing the function attributes
// declared in the signature.
type FunctionDef struct {
	Signature OpDef
	Nodes     []NodeDef

	// Ret maps each output argument name to the node output returned, e.g.: "y" -> "fill:0".
	Ret map[string]string
}

// Name of the function.
func (fn *FunctionDef) Name() string { return fn.Signature.Name }

// FunctionLibrary holds function definitions by name. It's safe for concurrent use.
type FunctionLibrary struct {
	mu        sync.RWMutex
	functions map[string]*FunctionDef
}

// NewFunctionLibrary creates a library with the given functions.
func NewFunctionLibrary(functions ...*FunctionDef) (*FunctionLibrary, error) {
	lib := &FunctionLibrary{functions: make(map[string]*FunctionDef)}
	for _, fn := range functions {
		if err := lib.AddFunction(fn); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

// AddFunction adds a function to the library. It fails if a different function with the same name exists,
// or if the name clashes with a registered op.
func (lib *FunctionLibrary) AddFunction(fn *FunctionDef) error {
	name := fn.Name()
	if name == "" {
		return errors.New("cannot add a function without a name")
	}
	if _, err := LookupOp(name); err == nil {
		return errors.Errorf("cannot add function %q because an op with the same name already exists", name)
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.functions == nil {
		lib.functions = make(map[string]*FunctionDef)
	}
	if existing, found := lib.functions[name]; found && existing != fn {
		return errors.Errorf("cannot add function %q because a different function with the same name already exists", name)
	}
	lib.functions[name] = fn
	return nil
}

// Find returns the function with the given name, or nil if not found. It's safe to call on a nil library.
func (lib *FunctionLibrary) Find(name string) *FunctionDef {
	if lib == nil {
		return nil
	}
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.functions[name]
}

// Names returns the names of the functions in the library, sorted.
func (lib *FunctionLibrary) Names() []string {
	if lib == nil {
		return nil
	}
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	names := make([]string, 0, len(lib.functions))
	for name := range lib.functions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// InstantiatedFunction is a function body materialized as a Graph for a given set of attributes.
//
// The graph has one ArgOp node per input (attrs "index" and "T") and one RetvalOp node per output.
type InstantiatedFunction struct {
	Graph    *Graph
	ArgTypes []dtypes.DType
	RetTypes []dtypes.DType
}

// Instantiate the named function with the given attributes, creating its body graph.
// The body graph resolves nested function calls with the same library.
func (lib *FunctionLibrary) Instantiate(name string, attrs Attrs) (*InstantiatedFunction, error) {
	fn := lib.Find(name)
	if fn == nil {
		return nil, errors.Errorf("Function %q is not defined.", name)
	}
	inst, err := fn.instantiate(lib, attrs)
	if err != nil {
		return nil, errors.WithMessagef(err, "while instantiating function %q", name)
	}
	return inst, nil
}

func (fn *FunctionDef) argType(arg ArgDef, attrs Attrs) (dtypes.DType, error) {
	if arg.IsResource {
		return dtypes.InvalidDType, nil
	}
	if arg.TypeAttr == "" {
		return arg.Type, nil
	}
	value, found := attrs[arg.TypeAttr]
	if !found {
		return dtypes.InvalidDType, errors.Errorf("Attr %s is not found from %s", arg.TypeAttr, fn.Signature.String())
	}
	dtype, ok := value.(dtypes.DType)
	if !ok {
		return dtypes.InvalidDType, errors.Errorf("Attr %s of function %s must be a dtype, got %T", arg.TypeAttr, fn.Name(), value)
	}
	return dtype, nil
}

// substituteAttrs replaces AttrPlaceholder values with the function attributes.
func (fn *FunctionDef) substituteAttrs(nodeAttrs, attrs Attrs) (Attrs, error) {
	result := make(Attrs, len(nodeAttrs))
	for _, key := range nodeAttrs.Keys() {
		value := nodeAttrs[key]
		if placeholder, ok := value.(AttrPlaceholder); ok {
			var found bool
			value, found = attrs[string(placeholder)]
			if !found {
				return nil, errors.Errorf("Attr %s is not found from %s", placeholder, fn.Signature.String())
			}
		}
		result[key] = value
	}
	return result, nil
}

func (fn *FunctionDef) instantiate(lib *FunctionLibrary, attrs Attrs) (*InstantiatedFunction, error) {
	attrs = fn.Signature.WithDefaults(attrs)
	inst := &InstantiatedFunction{Graph: NewGraph(lib)}
	g := inst.Graph

	type nodeOutput struct {
		node   *Node
		output int
	}
	argOutputs := make(map[string]nodeOutput, len(fn.Signature.Inputs))
	for idx, arg := range fn.Signature.Inputs {
		dtype, err := fn.argType(arg, attrs)
		if err != nil {
			return nil, err
		}
		inst.ArgTypes = append(inst.ArgTypes, dtype)
		argNode, err := g.AddNode("_arg_"+arg.Name, ArgOp, Attrs{"index": idx, "T": dtype})
		if err != nil {
			return nil, err
		}
		argOutputs[arg.Name] = nodeOutput{node: argNode}
	}
	if err := fn.Signature.ValidateAttrs(attrs); err != nil {
		return nil, err
	}

	// Create all body nodes first, so inputs can reference nodes defined later.
	for _, def := range fn.Nodes {
		nodeAttrs, err := fn.substituteAttrs(def.Attrs, attrs)
		if err != nil {
			return nil, errors.WithMessagef(err, "in node %q", def.Name)
		}
		if _, err = g.AddNode(def.Name, def.Op, nodeAttrs); err != nil {
			return nil, err
		}
	}
	resolve := func(ref string) (nodeOutput, error) {
		if out, found := argOutputs[ref]; found {
			return out, nil
		}
		name, output := ref, 0
		if idx := strings.LastIndex(ref, ":"); idx >= 0 {
			var err error
			name = ref[:idx]
			output, err = strconv.Atoi(ref[idx+1:])
			if err != nil {
				return nodeOutput{}, errors.Errorf("invalid input reference %q", ref)
			}
		}
		node := g.FindNode(name)
		if node == nil || !node.IsOp() {
			return nodeOutput{}, errors.Errorf("input reference %q not found in function %q", ref, fn.Name())
		}
		return nodeOutput{node: node, output: output}, nil
	}
	for _, def := range fn.Nodes {
		dst := g.FindNode(def.Name)
		dataIdx := 0
		for _, ref := range def.Inputs {
			if control, ok := strings.CutPrefix(ref, "^"); ok {
				src, err := resolve(control)
				if err != nil {
					return nil, err
				}
				if _, err = g.AddControlEdge(src.node, dst); err != nil {
					return nil, err
				}
				continue
			}
			src, err := resolve(ref)
			if err != nil {
				return nil, err
			}
			if _, err = g.AddEdge(src.node, src.output, dst, dataIdx); err != nil {
				return nil, err
			}
			dataIdx++
		}
	}

	for idx, arg := range fn.Signature.Outputs {
		dtype, err := fn.argType(arg, attrs)
		if err != nil {
			return nil, err
		}
		inst.RetTypes = append(inst.RetTypes, dtype)
		ref, found := fn.Ret[arg.Name]
		if !found {
			return nil, errors.Errorf("output %q of function %q is not bound to any node", arg.Name, fn.Name())
		}
		src, err := resolve(ref)
		if err != nil {
			return nil, err
		}
		retNode, err := g.AddNode("_retval_"+arg.Name, RetvalOp, Attrs{"index": idx, "T": dtype})
		if err != nil {
			return nil, err
		}
		if _, err = g.AddEdge(src.node, src.output, retNode, 0); err != nil {
			return nil, err
		}
	}
	FixupSourceAndSinkEdges(g)
	return inst, nil
}
