// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Compile-time check:
var _ backends.DataInterface = (*Backend)(nil)

// Buffer for SimpleGo backend holds a handle to a host value (possibly a tuple).
//
// Buffers are registered in the backend table of live buffers until finalized.
type Buffer struct {
	id    uuid.UUID
	value *tensors.Tensor
}

// ID returns the unique handle of the buffer.
func (buf *Buffer) ID() uuid.UUID { return buf.id }

// newBuffer registers value as a new live buffer. The value is owned by the buffer.
func (b *Backend) newBuffer(value *tensors.Tensor) (*Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, errors.Errorf("backend %q already finalized", b.Name())
	}
	buf := &Buffer{id: uuid.New(), value: value}
	b.buffers[buf.id] = buf
	if klog.V(2).Enabled() {
		klog.Infof("simplego: new buffer %s, shape=%s, %s (%d live buffers)",
			buf.id, value.Shape(), humanize.Bytes(uint64(value.Memory())), len(b.buffers))
	}
	return buf, nil
}

// checkBuffer returns the live buffer, or an error if it's not a valid buffer of this backend.
func (b *Backend) checkBuffer(buffer backends.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok || buf == nil {
		return nil, errors.Errorf("backend %q: invalid buffer type %T", b.Name(), buffer)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if live, found := b.buffers[buf.id]; !found || live != buf || buf.value == nil {
		return nil, errors.Errorf("backend %q: buffer %s is not valid, maybe it has already been finalized", b.Name(), buf.id)
	}
	return buf, nil
}

// BufferFinalize implements backends.DataInterface.
func (b *Backend) BufferFinalize(buffer backends.Buffer) error {
	buf, err := b.checkBuffer(buffer)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, buf.id)
	buf.value = nil
	return nil
}

// BufferShape implements backends.DataInterface.
func (b *Backend) BufferShape(buffer backends.Buffer) (shapes.Shape, error) {
	buf, err := b.checkBuffer(buffer)
	if err != nil {
		return shapes.Invalid(), err
	}
	return buf.value.Shape(), nil
}

// BufferFromTensor implements backends.DataInterface. The tensor is copied.
func (b *Backend) BufferFromTensor(tensor *tensors.Tensor) (backends.Buffer, error) {
	if tensor == nil {
		return nil, errors.New("BufferFromTensor: nil tensor")
	}
	return b.newBuffer(tensor.Clone())
}

// BufferToTensor implements backends.DataInterface. It returns a copy of the buffer contents.
func (b *Backend) BufferToTensor(buffer backends.Buffer) (*tensors.Tensor, error) {
	buf, err := b.checkBuffer(buffer)
	if err != nil {
		return nil, err
	}
	return buf.value.Clone(), nil
}

// NumLiveBuffers returns the number of buffers not yet finalized.
func (b *Backend) NumLiveBuffers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers)
}
