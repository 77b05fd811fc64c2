// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Attrs holds the static attributes of a node, or of a function instantiation.
//
// Values are one of: dtypes.DType, int, []int, bool, string, shapes.Shape, *tensors.Tensor,
// NameAttrs or, inside a FunctionDef body, an AttrPlaceholder.
type Attrs map[string]any

// AttrPlaceholder is an attribute value in a FunctionDef body that refers to one of the
// function's attributes by name. It's replaced by the concrete value on instantiation.
type AttrPlaceholder string

// NameAttrs references a function by name, along with the attributes to instantiate it with.
type NameAttrs struct {
	Name  string
	Attrs Attrs
}

// String implements fmt.Stringer.
func (na NameAttrs) String() string {
	if len(na.Attrs) == 0 {
		return na.Name
	}
	return fmt.Sprintf("%s[%s]", na.Name, na.Attrs)
}

// Keys returns the attribute names sorted.
func (attrs Attrs) Keys() []string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy of the attributes.
func (attrs Attrs) Clone() Attrs {
	if attrs == nil {
		return nil
	}
	attrs2 := make(Attrs, len(attrs))
	for key, value := range attrs {
		attrs2[key] = value
	}
	return attrs2
}

// String returns the attributes sorted by name, e.g.: "T=Int32, value=(Int32)7".
func (attrs Attrs) String() string {
	parts := make([]string, 0, len(attrs))
	for _, key := range attrs.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", key, attrs[key]))
	}
	return strings.Join(parts, ", ")
}

// lookupAttr returns the attribute value converted to T.
func lookupAttr[T any](attrs Attrs, name string) (value T, err error) {
	anyValue, found := attrs[name]
	if !found {
		err = errors.Errorf("attr %q not found", name)
		return
	}
	value, ok := anyValue.(T)
	if !ok {
		err = errors.Errorf("attr %q is of type %T, wanted %T", name, anyValue, value)
	}
	return
}

// DType returns the dtype attribute with the given name.
func (attrs Attrs) DType(name string) (dtypes.DType, error) { return lookupAttr[dtypes.DType](attrs, name) }

// Int returns the int attribute with the given name.
func (attrs Attrs) Int(name string) (int, error) { return lookupAttr[int](attrs, name) }

// Ints returns the []int attribute with the given name.
func (attrs Attrs) Ints(name string) ([]int, error) { return lookupAttr[[]int](attrs, name) }

// Bool returns the bool attribute with the given name.
func (attrs Attrs) Bool(name string) (bool, error) { return lookupAttr[bool](attrs, name) }

// Str returns the string attribute with the given name.
func (attrs Attrs) Str(name string) (string, error) { return lookupAttr[string](attrs, name) }

// Shape returns the shape attribute with the given name.
func (attrs Attrs) Shape(name string) (shapes.Shape, error) { return lookupAttr[shapes.Shape](attrs, name) }

// Tensor returns the tensor attribute with the given name.
func (attrs Attrs) Tensor(name string) (*tensors.Tensor, error) {
	return lookupAttr[*tensors.Tensor](attrs, name)
}

// Func returns the function reference attribute with the given name.
func (attrs Attrs) Func(name string) (NameAttrs, error) { return lookupAttr[NameAttrs](attrs, name) }
