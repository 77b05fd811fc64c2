// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"slices"
	"sync"

	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/pkg/errors"
)

// KernelDef is the lowering of one op, for a set of device types.
type KernelDef struct {
	// Op name, as in dataflow.OpDef.
	Op string

	// DeviceTypes the kernel is available for. Empty means all device types.
	DeviceTypes []DeviceType

	// CompileTimeConstInputs lists the inputs whose values must be known at compile time.
	// They are available to Lower with KernelContext.ConstantInput.
	CompileTimeConstInputs []int

	// Fold evaluates the op on the host when all its data inputs are compile-time constants. Optional.
	// It's never used for stateful ops. Returning no outputs and no error leaves the node to Lower.
	Fold func(node *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error)

	// Lower emits the op into the computation being built. Required.
	Lower func(ctx *KernelContext) error
}

func (k *KernelDef) supportsDevice(device DeviceType) bool {
	return len(k.DeviceTypes) == 0 || slices.Contains(k.DeviceTypes, device)
}

var (
	kernelsMu sync.RWMutex
	kernels   = make(map[string][]*KernelDef)
)

// RegisterKernel makes the kernel available to all compilers.
// It fails if a kernel for the same op is already registered for an overlapping set of device types.
func RegisterKernel(def KernelDef) error {
	if def.Op == "" || def.Lower == nil {
		return errors.Errorf("kernel for op %q requires a name and a Lower function", def.Op)
	}
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	for _, existing := range kernels[def.Op] {
		if len(existing.DeviceTypes) == 0 || len(def.DeviceTypes) == 0 {
			return errors.Errorf("kernel for op %q already registered", def.Op)
		}
		for _, device := range def.DeviceTypes {
			if existing.supportsDevice(device) {
				return errors.Errorf("kernel for op %q already registered for device %s", def.Op, device)
			}
		}
	}
	kernels[def.Op] = append(kernels[def.Op], &def)
	return nil
}

// lookupKernel returns the kernel for the op on the device, or nil if there is none.
func lookupKernel(op string, device DeviceType) *KernelDef {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	for _, k := range kernels[op] {
		if k.supportsDevice(device) {
			return k
		}
	}
	return nil
}

// HasKernel returns whether there is a kernel for the op on the device.
func HasKernel(op string, device DeviceType) bool {
	return lookupKernel(op, device) != nil
}
