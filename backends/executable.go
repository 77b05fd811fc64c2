// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
)

// ProgramShape describes the inputs and the (tuple) output of a computation.
type ProgramShape struct {
	ParameterNames []string
	Parameters     []shapes.Shape
	Result         shapes.Shape
}

// Instruction is a read-only view of one instruction of a built computation, in the order they were built.
type Instruction struct {
	// Name is a synthetic unique name, e.g.: "add.3".
	Name string

	OpType OpType
	Shape  shapes.Shape

	// Operands are indices into the computation instructions.
	Operands []int

	// Attributes is a textual representation of the static attributes of the instruction (e.g.: the
	// dimensions of a Reshape, the index of a GetTupleElement or the value of a Constant).
	Attributes string
}

// Computation is a finished program returned by Builder.Build.
type Computation interface {
	// Name of the computation.
	Name() string

	// ProgramShape returns the parameters and result shapes of the computation.
	ProgramShape() ProgramShape

	// Instructions returns the instructions of the computation, in the order they were built.
	Instructions() []Instruction
}

// Executable is the API for compiled programs ready to execute.
type Executable interface {
	// Finalize immediately frees resources associated to the executable.
	Finalize()

	// Inputs returns the list of parameters names and shapes, in order created by the Builder.Parameter calls.
	Inputs() (names []string, inputShapes []shapes.Shape)

	// Output returns the shape of the root of the computation.
	Output() shapes.Shape

	// Execute the executable. The number and shapes of the inputs must match those returned by Inputs.
	// It returns one buffer holding the root (usually a tuple) of the computation.
	Execute(inputs ...Buffer) (Buffer, error)
}
