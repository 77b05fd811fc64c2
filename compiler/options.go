// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"

	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/resourcemgr"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
)

// DeviceType names the compilation device. Kernels are registered per device type.
type DeviceType string

const (
	// DeviceCPU is the device type for CPU compilation.
	DeviceCPU DeviceType = "XLA_CPU_JIT"

	// DeviceGPU is the device type for GPU compilation.
	DeviceGPU DeviceType = "XLA_GPU_JIT"
)

// Options configure a Compiler. They are fixed for the lifetime of the Compiler.
type Options struct {
	// DeviceType selects the kernels used for lowering. Required.
	DeviceType DeviceType

	// Backend creates the computation builders. Required.
	Backend backends.Backend

	// FunctionLibrary is the global library of functions. Optional.
	FunctionLibrary *dataflow.FunctionLibrary

	// PopulateResourceManager is called once, before the first compilation, to populate the
	// compiler's resource manager. Optional.
	PopulateResourceManager func(mgr *resourcemgr.Manager) error

	// ShapeRepresentationFn maps logical shapes to the physical shapes of parameters, return values
	// and resources. Defaults to IdentityShapeRepresentation.
	ShapeRepresentationFn ShapeRepresentationFn
}

// CompileOptions configure one compilation.
type CompileOptions struct {
	// ReturnUpdatedValuesForAllResources emits an update for every resource argument, changed or not.
	ReturnUpdatedValuesForAllResources bool

	// ResolveCompileTimeConstants turns return values known at compile time into constant outputs,
	// instead of computation outputs.
	ResolveCompileTimeConstants bool

	// IsEntryComputation applies the shape representation function to parameters and return values.
	// Resources always use the shape representation function.
	IsEntryComputation bool
}

// DefaultCompileOptions returns the options of an entry computation that doesn't resolve constants.
func DefaultCompileOptions() CompileOptions {
	return CompileOptions{IsEntryComputation: true}
}

// cacheKey is the part of the cache key from the options.
func (o CompileOptions) cacheKey() string {
	return fmt.Sprintf("all_resources=%v,resolve=%v,entry=%v",
		o.ReturnUpdatedValuesForAllResources, o.ResolveCompileTimeConstants, o.IsEntryComputation)
}
