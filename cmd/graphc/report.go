// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(withHeader bool, alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

// memory returns the human-readable size of a shape, including tuples.
func memory(shape shapes.Shape) string {
	var bytes uintptr
	if shape.IsTuple() {
		for _, element := range shape.TupleShapes {
			bytes += element.Memory()
		}
	} else {
		bytes = shape.Memory()
	}
	return humanize.Bytes(uint64(bytes))
}

func reportResult(name string, args []compiler.Argument, result *compiler.CompilationResult) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Compilation of %q", name)))
	table := newPlainTable(true, lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("parameter", "argument", "physical shape", "memory")
	for ii, argIdx := range result.InputMapping {
		shape := result.XlaInputShapes[ii]
		table.Row(fmt.Sprintf("#%d", ii), args[argIdx].String(), shape.String(), memory(shape))
	}
	fmt.Println(table.Render())

	table = newPlainTable(true, lipgloss.Right, lipgloss.Left, lipgloss.Left)
	table.Headers("output", "shape", "value")
	for ii, output := range result.Outputs {
		value := "(computed)"
		if output.IsConstant {
			value = output.ConstantValue.String()
		}
		table.Row(fmt.Sprintf("#%d", ii), output.Shape.String(), value)
	}
	for _, update := range result.ResourceUpdates {
		value := fmt.Sprintf("(update of argument #%d, modified=%v)", update.InputIndex, update.Modified)
		if len(update.TensorArrayGradientsAccessed) > 0 {
			value += fmt.Sprintf(" gradients: %s", strings.Join(update.TensorArrayGradientsAccessed, ", "))
		}
		table.Row("update", update.Shape.String(), value)
	}
	fmt.Println(table.Render())
	fmt.Printf("  result: %s, %s\n", result.XlaOutputShape, memory(result.XlaOutputShape))
}

func reportInstructions(result *compiler.CompilationResult) {
	instructions := result.Computation.Instructions()
	fmt.Println(titleStyle.Render(fmt.Sprintf("Instructions (%s)", humanize.Comma(int64(len(instructions))))))
	table := newPlainTable(true, lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Left)
	table.Headers("#", "name", "shape", "operands", "attributes")
	for ii, inst := range instructions {
		operands := make([]string, len(inst.Operands))
		for jj, operand := range inst.Operands {
			operands[jj] = instructions[operand].Name
		}
		table.Row(fmt.Sprintf("%d", ii), inst.Name, inst.Shape.String(), strings.Join(operands, ", "), inst.Attributes)
	}
	fmt.Println(table.Render())
}

func reportRun(result *compiler.CompilationResult, outputs []*tensors.Tensor) {
	fmt.Println(titleStyle.Render("Results"))
	table := newPlainTable(true, lipgloss.Right, lipgloss.Left)
	table.Headers("element", "value")
	for ii, output := range outputs {
		label := fmt.Sprintf("#%d", ii)
		if updateIdx := ii - (len(outputs) - len(result.ResourceUpdates)); updateIdx >= 0 {
			label = fmt.Sprintf("argument #%d", result.ResourceUpdates[updateIdx].InputIndex)
		}
		table.Row(label, output.String())
	}
	fmt.Println(table.Render())
}
