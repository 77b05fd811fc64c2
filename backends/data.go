// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
)

// Buffer represents actual data (a tensor, or a tuple of them) stored in the backend.
// It's used as input/output of computation execution.
//
// It is opaque from the compiler perspective.
type Buffer any

// DataInterface is the Backend's subinterface that defines the API to transfer Buffer to/from the backend.
type DataInterface interface {
	// BufferFinalize allows the client to inform backend that buffer is no longer needed and associated resources can be
	// freed immediately.
	//
	// A finalized buffer should never be used again.
	BufferFinalize(buffer Buffer) error

	// BufferShape returns the shape for the buffer.
	BufferShape(buffer Buffer) (shapes.Shape, error)

	// BufferFromTensor transfers a host tensor (possibly a tuple) to the backend.
	BufferFromTensor(tensor *tensors.Tensor) (Buffer, error)

	// BufferToTensor transfers the buffer contents back to a new host tensor.
	BufferToTensor(buffer Buffer) (*tensors.Tensor, error)
}
