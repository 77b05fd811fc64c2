// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable backend for the graph compiler.
//
// Computations are interpreted on the host, one instruction at a time, using the host
// operations of package tensors. It's the reference client used to execute compiled graphs
// in tests and in the graphc tool.
package simplego

import (
	"sync"

	"github.com/gomlx/graphcompiler/backends"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BackendName to be used in GRAPHCOMPILER_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the default constructor for "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// New constructs a new SimpleGo Backend.
// There are no configurations, the string is simply ignored.
func New(_ string) (backends.Backend, error) {
	return newBackend(), nil
}

func newBackend() *Backend {
	return &Backend{buffers: make(map[uuid.UUID]*Buffer)}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	// mu protects buffers, the table of live buffers: transfers can happen concurrently.
	mu      sync.Mutex
	buffers map[uuid.UUID]*Buffer

	finalized bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// String implement backends.Backend.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend"
}

// Builder creates a new builder used to define a new named computation.
func (b *Backend) Builder(name string) backends.Builder {
	return &Builder{
		backend: b,
		name:    name,
	}
}

// Compile implements backends.Backend.
func (b *Backend) Compile(computation backends.Computation) (backends.Executable, error) {
	c, ok := computation.(*Computation)
	if !ok {
		return nil, errors.Errorf("backend %q cannot compile computation of type %T", b.Name(), computation)
	}
	if c.backend != b {
		return nil, errors.Errorf("computation %q was built by a different backend instance", c.name)
	}
	return newExecutable(c), nil
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, buffer := range b.buffers {
		buffer.value = nil
	}
	clear(b.buffers)
	b.finalized = true
}
