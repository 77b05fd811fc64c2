// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/graphcompiler/backends"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
	"github.com/google/go-cmp/cmp"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle used by -repeat. Consider progressbar.ThemeUnicode for a prettier version.
var ProgressbarStyle = progressbar.ThemeASCII

// compileRepeatedly compiles the graph n times, each time with a new compiler (so no cached function is reused),
// and checks that every compilation builds exactly the same instructions as the reference one.
//
// It returns the mean time per compilation.
func compileRepeatedly(n int, options compiler.Options, opts compiler.CompileOptions, name string,
	g *dataflow.Graph, args []compiler.Argument, reference []backends.Instruction) (time.Duration, error) {
	var bar *progressbar.ProgressBar
	if n > 1 {
		term := termenv.NewOutput(os.Stdout)
		term.HideCursor()
		defer term.ShowCursor()
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("      [bold]compiling[reset]"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("compilations"),
			progressbar.OptionSetTheme(ProgressbarStyle),
			progressbar.OptionClearOnFinish())
	}

	var total time.Duration
	for ii := range n {
		c, err := compiler.New(options)
		if err != nil {
			return 0, err
		}
		start := time.Now()
		result, err := c.CompileGraph(opts, name, g, args)
		if err != nil {
			return 0, errors.WithMessagef(err, "compilation #%d", ii)
		}
		total += time.Since(start)
		if diff := cmp.Diff(reference, result.Computation.Instructions()); diff != "" {
			return 0, errors.Errorf("compilation #%d differs from the first one (-first +current):\n%s", ii, diff)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return total / time.Duration(n), nil
}

func reportRepeat(n int, mean time.Duration) {
	fmt.Println(titleStyle.Render("Repeated compilations"))
	table := newPlainTable(false, lipgloss.Right, lipgloss.Left)
	table.Row("compilations", humanize.Comma(int64(n)))
	table.Row("mean time", mean.String())
	table.Row("instructions", "identical")
	fmt.Println(table.Render())
}
