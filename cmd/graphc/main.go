// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// graphc compiles one of the demo dataflow graphs and reports the compilation result: parameters,
// outputs, resource updates and, optionally, the instructions of the computation and the result of running it.
//
// Usage:
//
//	graphc -graph=variables -flatten -run
//	graphc -graph=constants -resolve_constants -repeat=100
//	graphc -list
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/graphcompiler/backends"
	_ "github.com/gomlx/graphcompiler/backends/simplego"
	"github.com/gomlx/graphcompiler/compiler"
	_ "github.com/gomlx/graphcompiler/compiler/kernels"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagGraph  = flag.String("graph", "add", "Name of the demo graph to compile. See -list.")
	flagList   = flag.Bool("list", false, "Lists the demo graphs available.")
	flagDevice = flag.String("device", "cpu", `Device type to compile for: "cpu" or "gpu". It selects the kernels used.`)
	flagEntry  = flag.Bool("entry", true, "Compile as an entry computation: the shape representation also applies "+
		"to parameters and return values, not only to resources.")
	flagResolveConstants = flag.Bool("resolve_constants", false, "Return values known at compile time are reported as "+
		"constants, instead of being computed.")
	flagAllResources = flag.Bool("all_resources", false, "Return an update for every resource, even if unchanged.")
	flagFlatten      = flag.Bool("flatten", false, "Use a shape representation that flattens every value to a vector.")
	flagInstructions = flag.Bool("instructions", false, "Lists the instructions of the computation built.")
	flagRun          = flag.Bool("run", false, "Runs the computation with the demo inputs, and prints the results.")
	flagRepeat       = flag.Int("repeat", 0, "If > 0, compiles the graph this many more times, with new compilers, "+
		"and checks that every compilation builds the same instructions.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
	if *flagList {
		listSamples()
		return
	}
	s, found := samples[*flagGraph]
	if !found {
		klog.Errorf("Unknown graph %q, see 'graphc -list'.", *flagGraph)
		os.Exit(1)
	}
	if err := compileSample(*flagGraph, s); err != nil {
		klog.Errorf("Failed to compile %q: %+v", *flagGraph, err)
		os.Exit(1)
	}
}

func deviceType() (compiler.DeviceType, error) {
	switch *flagDevice {
	case "cpu":
		return compiler.DeviceCPU, nil
	case "gpu":
		return compiler.DeviceGPU, nil
	}
	return "", errors.Errorf("invalid -device=%q, valid values are \"cpu\" or \"gpu\"", *flagDevice)
}

func compileSample(name string, s sample) error {
	device, err := deviceType()
	if err != nil {
		return err
	}
	backend, err := backends.New()
	if err != nil {
		return err
	}
	defer backend.Finalize()

	lib := must.M1(dataflow.NewFunctionLibrary())
	options := compiler.Options{DeviceType: device, Backend: backend, FunctionLibrary: lib}
	if *flagFlatten {
		options.ShapeRepresentationFn = compiler.FlattenShapeRepresentation
	}
	c, err := compiler.New(options)
	if err != nil {
		return err
	}
	g, args, err := s.build(lib)
	if err != nil {
		return errors.WithMessagef(err, "building graph %q", name)
	}
	opts := compiler.CompileOptions{
		ReturnUpdatedValuesForAllResources: *flagAllResources,
		ResolveCompileTimeConstants:        *flagResolveConstants,
		IsEntryComputation:                 *flagEntry,
	}
	result, err := c.CompileGraph(opts, name, g, args)
	if err != nil {
		return err
	}
	reportResult(name, args, result)
	if *flagInstructions {
		reportInstructions(result)
	}
	if *flagRepeat > 0 {
		mean, err := compileRepeatedly(*flagRepeat, options, opts, name, g, args, result.Computation.Instructions())
		if err != nil {
			return err
		}
		reportRepeat(*flagRepeat, mean)
	}
	if *flagRun {
		outputs, err := run(backend, result, s.inputs())
		if err != nil {
			return err
		}
		reportRun(result, outputs)
	}
	return nil
}

// run executes the computation: the inputs (one per argument) are mapped to the computation parameters,
// and reshaped to their physical shapes.
func run(backend backends.Backend, result *compiler.CompilationResult, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	exec, err := backend.Compile(result.Computation)
	if err != nil {
		return nil, err
	}
	defer exec.Finalize()
	buffers := make([]backends.Buffer, len(result.InputMapping))
	defer func() {
		for _, buf := range buffers {
			if buf != nil {
				_ = backend.BufferFinalize(buf)
			}
		}
	}()
	for ii, argIdx := range result.InputMapping {
		input := inputs[argIdx]
		if physical := result.XlaInputShapes[ii]; !physical.IsTuple() {
			if input, err = tensors.Reshape(input, physical.Dimensions...); err != nil {
				return nil, errors.WithMessagef(err, "input for argument #%d", argIdx)
			}
		}
		if buffers[ii], err = backend.BufferFromTensor(input); err != nil {
			return nil, err
		}
	}
	output, err := exec.Execute(buffers...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = backend.BufferFinalize(output) }()
	root, err := backend.BufferToTensor(output)
	if err != nil {
		return nil, err
	}
	return root.TupleElements(), nil
}

func listSamples() {
	fmt.Println(titleStyle.Render("Demo graphs"))
	table := newPlainTable(true)
	table.Headers("name", "description")
	for _, name := range sampleNames() {
		table.Row(name, samples[name].description)
	}
	fmt.Println(table.Render())
}
