// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataflow

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ArgDef describes one input or output of an op.
//
// The dtype is either fixed (Type) or given by an attribute of the node (TypeAttr).
// Resource handles have Type == dtypes.InvalidDType and IsResource set.
type ArgDef struct {
	Name       string
	Type       dtypes.DType
	TypeAttr   string
	IsResource bool
}

// AttrType enumerates the kinds of attribute values.
type AttrType int

const (
	AttrTypeDType AttrType = iota
	AttrTypeInt
	AttrTypeInts
	AttrTypeBool
	AttrTypeString
	AttrTypeShape
	AttrTypeTensor
	AttrTypeFunc
)

// AttrDef describes an attribute of an op.
type AttrDef struct {
	Name string
	Type AttrType

	// AllowedValues restricts the dtypes an AttrTypeDType attribute can take. Empty means any dtype.
	AllowedValues []dtypes.DType

	// Default value, used when the attribute is not set in the node. Nil means the attribute is required.
	Default any
}

// OpDef is the definition of an op: its name, inputs, outputs and attributes.
type OpDef struct {
	Name    string
	Inputs  []ArgDef
	Outputs []ArgDef
	Attrs   []AttrDef

	// IsStateful ops are never constant folded.
	IsStateful bool
}

// FindAttr returns the definition of the attribute with the given name, or nil if not found.
func (def *OpDef) FindAttr(name string) *AttrDef {
	for ii := range def.Attrs {
		if def.Attrs[ii].Name == name {
			return &def.Attrs[ii]
		}
	}
	return nil
}

// ValidateAttrs checks that the attributes are consistent with the op definition: required attributes are present
// and dtype attributes are within their allowed values.
//
// Attributes not declared by the op are allowed (e.g.: "_class" style annotations).
func (def *OpDef) ValidateAttrs(attrs Attrs) error {
	for _, attrDef := range def.Attrs {
		value, found := attrs[attrDef.Name]
		if !found {
			if attrDef.Default == nil {
				return errors.Errorf("NodeDef missing attr '%s' from Op<name=%s>", attrDef.Name, def.Name)
			}
			continue
		}
		if attrDef.Type != AttrTypeDType || len(attrDef.AllowedValues) == 0 {
			continue
		}
		dtype, ok := value.(dtypes.DType)
		if !ok {
			return errors.Errorf("attr '%s' of op %s must be a dtype, got %T", attrDef.Name, def.Name, value)
		}
		if !slices.Contains(attrDef.AllowedValues, dtype) {
			return errors.Errorf("Value for attr '%s' of %s is not in the list of allowed values: %s",
				attrDef.Name, dtype, formatDTypes(attrDef.AllowedValues))
		}
	}
	return nil
}

func formatDTypes(dtypesList []dtypes.DType) string {
	parts := make([]string, len(dtypesList))
	for ii, dtype := range dtypesList {
		parts[ii] = dtype.String()
	}
	return strings.Join(parts, ", ")
}

// WithDefaults returns a copy of attrs with the default values of missing attributes filled in.
func (def *OpDef) WithDefaults(attrs Attrs) Attrs {
	attrs = attrs.Clone()
	if attrs == nil {
		attrs = make(Attrs)
	}
	for _, attrDef := range def.Attrs {
		if _, found := attrs[attrDef.Name]; !found && attrDef.Default != nil {
			attrs[attrDef.Name] = attrDef.Default
		}
	}
	return attrs
}

// String implements fmt.Stringer, e.g.: "Add(x: T, y: T) -> (z: T)".
func (def *OpDef) String() string {
	formatArgs := func(args []ArgDef) string {
		parts := make([]string, len(args))
		for ii, arg := range args {
			switch {
			case arg.IsResource:
				parts[ii] = fmt.Sprintf("%s: resource", arg.Name)
			case arg.TypeAttr != "":
				parts[ii] = fmt.Sprintf("%s: %s", arg.Name, arg.TypeAttr)
			default:
				parts[ii] = fmt.Sprintf("%s: %s", arg.Name, arg.Type)
			}
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s(%s) -> (%s)", def.Name, formatArgs(def.Inputs), formatArgs(def.Outputs))
}

var (
	opRegistryMu sync.RWMutex
	opRegistry   = make(map[string]*OpDef)
)

// RegisterOp makes the op definition available to all graphs. It returns an error if an op with the same name
// was already registered.
func RegisterOp(def OpDef) error {
	opRegistryMu.Lock()
	defer opRegistryMu.Unlock()
	if _, found := opRegistry[def.Name]; found {
		return errors.Errorf("op %q already registered", def.Name)
	}
	opRegistry[def.Name] = &def
	return nil
}

// LookupOp returns the registered op definition with the given name, or an error if not registered.
func LookupOp(name string) (*OpDef, error) {
	opRegistryMu.RLock()
	defer opRegistryMu.RUnlock()
	def, found := opRegistry[name]
	if !found {
		return nil, errors.Errorf("Op type not registered '%s'", name)
	}
	return def, nil
}

// Control flow primitives: they are rewritten into functional form before compilation, so they
// don't need kernels of their own.
var controlFlowOps = []string{"Switch", "Merge", "Enter", "Exit", "NextIteration"}

// IsControlFlowOp returns whether the op is one of the dataflow control-flow primitives.
func IsControlFlowOp(op string) bool {
	return slices.Contains(controlFlowOps, op)
}
