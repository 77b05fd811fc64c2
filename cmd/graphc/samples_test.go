// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"
	"time"

	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/backends/simplego"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamples(t *testing.T) {
	backend := must.M1(backends.NewWithConfig(simplego.BackendName))
	defer backend.Finalize()

	for _, flatten := range []bool{false, true} {
		for _, name := range sampleNames() {
			s := samples[name]
			lib := must.M1(dataflow.NewFunctionLibrary())
			options := compiler.Options{DeviceType: compiler.DeviceCPU, Backend: backend, FunctionLibrary: lib}
			if flatten {
				options.ShapeRepresentationFn = compiler.FlattenShapeRepresentation
			}
			c := must.M1(compiler.New(options))
			g, args, err := s.build(lib)
			require.NoError(t, err, "building %q", name)
			result, err := c.CompileGraph(compiler.DefaultCompileOptions(), name, g, args)
			require.NoError(t, err, "compiling %q", name)
			outputs, err := run(backend, result, s.inputs())
			require.NoError(t, err, "running %q", name)
			assert.Len(t, outputs, len(result.Outputs)+len(result.ResourceUpdates), "outputs of %q", name)
		}
	}
}

func TestVariablesSample(t *testing.T) {
	backend := must.M1(backends.NewWithConfig(simplego.BackendName))
	defer backend.Finalize()
	c := must.M1(compiler.New(compiler.Options{DeviceType: compiler.DeviceCPU, Backend: backend,
		ShapeRepresentationFn: compiler.FlattenShapeRepresentation}))
	s := samples["variables"]
	g, args, err := s.build(nil)
	require.NoError(t, err)
	result := must.M1(c.CompileGraph(compiler.DefaultCompileOptions(), "variables", g, args))
	outputs := must.M1(run(backend, result, s.inputs()))
	require.Len(t, outputs, 2)
	assert.Equal(t, []int32{27, 67, 35, 402}, outputs[0].Value())
	assert.Equal(t, []int32{26, 66, 34, 401}, outputs[1].Value())
}

func TestCompileRepeatedly(t *testing.T) {
	backend := must.M1(backends.NewWithConfig(simplego.BackendName))
	defer backend.Finalize()
	lib := must.M1(dataflow.NewFunctionLibrary())
	options := compiler.Options{DeviceType: compiler.DeviceCPU, Backend: backend, FunctionLibrary: lib}
	opts := compiler.DefaultCompileOptions()
	opts.ResolveCompileTimeConstants = true
	g, args, err := samples["constants"].build(lib)
	require.NoError(t, err)
	first := must.M1(must.M1(compiler.New(options)).CompileGraph(opts, "constants", g, args))
	mean, err := compileRepeatedly(3, options, opts, "constants", g, args, first.Computation.Instructions())
	require.NoError(t, err)
	assert.Greater(t, mean, time.Duration(0))

	// A different reference listing must be reported.
	_, err = compileRepeatedly(1, options, opts, "constants", g, args, nil)
	require.ErrorContains(t, err, "differs from the first one")
}
