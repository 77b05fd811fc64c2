// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compiler lowers a dataflow graph, along with a description of its arguments, into one
// backend computation.
//
// Each op is lowered by a kernel (see RegisterKernel), in a deterministic order: a reverse post-order
// traversal of the graph from its source marker. Values known at compile time are tracked as literals,
// so ops that require compile-time constants (e.g. the shape of a Reshape) can be lowered. Stateful
// resources (variables, tensor arrays and stacks) are threaded through the computation: their initial
// values are parameters and their final values, if changed, are extra outputs.
//
// The standard kernels are in the package compiler/kernels, which must be imported (usually anonymously)
// by users of the compiler.
package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomlx/graphcompiler/pkg/core/resourcemgr"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// Compiler compiles graphs and functions for one device type and backend.
//
// It is not safe for concurrent use: callers must serialize calls.
type Compiler struct {
	options Options

	// localLibrary holds functions private to the compiler.
	localLibrary *dataflow.FunctionLibrary

	// resourceMgr is created and populated before the first compilation.
	resourceMgr *resourcemgr.Manager

	// cache of CompileFunction results.
	cache map[string]*CompilationResult
}

// New creates a compiler with the given options.
func New(options Options) (*Compiler, error) {
	if options.DeviceType == "" {
		return nil, errors.New("compiler.New: Options.DeviceType must be set")
	}
	if options.Backend == nil {
		return nil, errors.New("compiler.New: Options.Backend must be set")
	}
	localLibrary, err := dataflow.NewFunctionLibrary()
	if err != nil {
		return nil, err
	}
	return &Compiler{
		options:      options,
		localLibrary: localLibrary,
		cache:        make(map[string]*CompilationResult),
	}, nil
}

// Options returns the options the compiler was created with.
func (c *Compiler) Options() Options { return c.options }

// LocalFunctionLibrary returns the library of functions private to this compiler. Functions added to it
// can be called from graphs, and compiled with CompileFunction.
func (c *Compiler) LocalFunctionLibrary() *dataflow.FunctionLibrary { return c.localLibrary }

// ResourceManager returns the compiler's resource manager, creating and populating it if needed.
func (c *Compiler) ResourceManager() (*resourcemgr.Manager, error) {
	if c.resourceMgr != nil {
		return c.resourceMgr, nil
	}
	mgr := resourcemgr.New()
	if c.options.PopulateResourceManager != nil {
		if err := c.options.PopulateResourceManager(mgr); err != nil {
			return nil, errors.WithMessage(err, "failed to populate the resource manager")
		}
	}
	c.resourceMgr = mgr
	return mgr, nil
}

// CompileGraph compiles the graph with the given arguments into a computation named name.
//
// The graph's ArgOp nodes reference the arguments by index, and its RetvalOp nodes define the outputs.
func (c *Compiler) CompileGraph(opts CompileOptions, name string, g *dataflow.Graph, args []Argument) (*CompilationResult, error) {
	start := time.Now()
	if g == nil {
		return nil, Errorf(InvalidArgument, "CompileGraph(%q): nil graph", name)
	}
	for ii := range args {
		if err := args[ii].Validate(); err != nil {
			return nil, errors.WithMessagef(err, "CompileGraph(%q): argument #%d", name, ii)
		}
	}
	if _, err := c.ResourceManager(); err != nil {
		return nil, err
	}

	comp := &compilation{
		compiler: c,
		opts:     opts,
		name:     name,
		builder:  c.options.Backend.Builder(name),
	}
	if err := comp.checkSupportedOps(g); err != nil {
		return nil, err
	}
	argValues, err := comp.bindArguments(args)
	if err != nil {
		return nil, err
	}
	retvals, err := comp.lowerGraph(g, argValues, "")
	if err != nil {
		return nil, err
	}
	result, err := comp.assemble(retvals)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("compiler: compiled %q for %s in %s: %d parameters, %d outputs, %d resource updates",
		name, c.options.DeviceType, time.Since(start), len(result.InputMapping), len(result.Outputs), len(result.ResourceUpdates))
	return result, nil
}

// bindArguments creates the values of the arguments: parameters for runtime values and resources, literals for
// constants.
func (c *compilation) bindArguments(args []Argument) ([]*value, error) {
	values := make([]*value, len(args))
	for ii := range args {
		arg := &args[ii]
		switch arg.Kind {
		case ConstantArg:
			values[ii] = literalValue(arg.ConstantValue)
		case TokenArg:
			values[ii] = &value{kind: tokenValue}
		case ResourceArg:
			v, err := c.bindResourceArgument(ii, arg)
			if err != nil {
				return nil, errors.WithMessagef(err, "argument #%d", ii)
			}
			values[ii] = v
		case ParameterArg:
			logical := arg.logicalShape()
			physical := logical
			if c.opts.IsEntryComputation {
				var err error
				if physical, err = c.compiler.physicalShape(logical); err != nil {
					return nil, errors.WithMessagef(err, "argument #%d", ii)
				}
			}
			name := arg.Name
			if name == "" {
				name = fmt.Sprintf("arg%d", ii)
			}
			param, err := c.newParameter(ii, name, physical)
			if err != nil {
				return nil, err
			}
			op, err := reshapeIfNeeded(c.builder, param, physical, logical)
			if err != nil {
				return nil, wrapErrorf(Internal, err, "argument #%d", ii)
			}
			values[ii] = opValue(op, logical)
		}
	}
	return values, nil
}

// CompileFunction compiles the function with the given arguments. The function is looked up in the
// global library, then in the compiler's local library.
//
// Results are cached by function, attributes, arguments and options: the same result is returned by repeated
// calls, and must not be modified.
func (c *Compiler) CompileFunction(opts CompileOptions, fn dataflow.NameAttrs, args []Argument) (*CompilationResult, error) {
	key := cacheKey(opts, fn, args)
	if result, found := c.cache[key]; found {
		klog.V(1).Infof("compiler: function %s found in cache", fn)
		return result, nil
	}
	inst, err := c.instantiate(fn)
	if err != nil {
		return nil, err
	}
	if len(args) != len(inst.ArgTypes) {
		return nil, Errorf(InvalidArgument, "function %s takes %d arguments, %d given", fn.Name, len(inst.ArgTypes), len(args))
	}
	result, err := c.CompileGraph(opts, fn.Name, inst.Graph, args)
	if err != nil {
		return nil, err
	}
	c.cache[key] = result
	return result, nil
}

// instantiate the function from the global library, or else from the local library.
func (c *Compiler) instantiate(fn dataflow.NameAttrs) (*dataflow.InstantiatedFunction, error) {
	inst, globalErr := c.options.FunctionLibrary.Instantiate(fn.Name, fn.Attrs)
	if globalErr == nil {
		return inst, nil
	}
	inst, localErr := c.localLibrary.Instantiate(fn.Name, fn.Attrs)
	if localErr == nil {
		return inst, nil
	}
	return nil, Errorf(FunctionNotFound, "%s", multierr.Combine(globalErr, localErr))
}

func cacheKey(opts CompileOptions, fn dataflow.NameAttrs, args []Argument) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s;%s", fn, opts.cacheKey())
	for ii := range args {
		fmt.Fprintf(&sb, ";%s", &args[ii])
		if args[ii].ConstantValue != nil {
			fmt.Fprintf(&sb, "=%v", args[ii].ConstantValue.Value())
		}
	}
	return sb.String()
}
