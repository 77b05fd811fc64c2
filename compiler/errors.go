// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies compilation failures.
type ErrorKind int

const (
	// KindUnknown is returned by KindOf for errors that don't carry a kind.
	KindUnknown ErrorKind = iota

	// ConstantFolding means an input required to be a compile-time constant depends on a parameter or on an
	// op that can't be evaluated at compile time.
	ConstantFolding

	// UnsupportedOperation means there is no kernel for an op on the device.
	UnsupportedOperation

	// InvalidAttribute means a node attribute is not valid for its op.
	InvalidAttribute

	// UnreachableNode means some nodes are not reachable from the source marker.
	UnreachableNode

	// FunctionNotFound means a function is not defined in any of the function libraries.
	FunctionNotFound

	// UninitializedResource means a resource argument with Initialized=false was accessed.
	UninitializedResource

	// OutputCountMismatch is an internal inconsistency between the declared outputs and the computation built.
	OutputCountMismatch

	// InvalidArgument means the arguments, the graph or one of its nodes is malformed.
	InvalidArgument

	// ShapeRepresentation means the shape representation function returned an incompatible shape.
	ShapeRepresentation

	// Internal errors are bugs: in the compiler, a kernel or the backend builder.
	Internal
)

var errorKindNames = []string{
	"Unknown", "ConstantFolding", "UnsupportedOperation", "InvalidAttribute", "UnreachableNode", "FunctionNotFound",
	"UninitializedResource", "OutputCountMismatch", "InvalidArgument", "ShapeRepresentation", "Internal",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindNames[k]
}

// Error is the structured error returned by the compiler.
type Error struct {
	Kind ErrorKind
	Msg  string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Errorf creates an Error of the given kind, with a stack trace. Kernels use it to report classified errors.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// wrapErrorf creates an Error of the given kind whose message is the formatted text followed by the message of err.
// If err already carries a kind, it's preserved.
func wrapErrorf(kind ErrorKind, err error, format string, args ...any) error {
	if k := KindOf(err); k != KindUnknown {
		kind = k
	}
	msg := fmt.Sprintf(format, args...)
	var inner *Error
	if errors.As(err, &inner) {
		msg = fmt.Sprintf("%s: %s", msg, inner.Msg)
	} else {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return errors.WithStack(&Error{Kind: kind, Msg: msg, cause: err})
}

// KindOf returns the kind of the first Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind returns whether err is an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
