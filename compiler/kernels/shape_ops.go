// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"reflect"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphcompiler/compiler"
	"github.com/gomlx/graphcompiler/pkg/core/shapes"
	"github.com/gomlx/graphcompiler/pkg/core/tensors"
	"github.com/gomlx/graphcompiler/pkg/dataflow"
)

func init() {
	register(
		compiler.KernelDef{Op: "Reshape", CompileTimeConstInputs: []int{1}, Fold: foldReshape, Lower: lowerReshape},
		compiler.KernelDef{Op: "Fill", CompileTimeConstInputs: []int{0}, Fold: foldFill, Lower: lowerFill},
		compiler.KernelDef{Op: "Shape", Lower: lowerShape},
		compiler.KernelDef{Op: "Size", Lower: lowerSize},
		compiler.KernelDef{Op: "Rank", Lower: lowerRank},
		compiler.KernelDef{Op: "Cast", Fold: foldCast, Lower: lowerCast},
		compiler.KernelDef{Op: "Pack", Fold: foldPack, Lower: lowerPack},
	)
}

// reshapeDims resolves the requested dimensions of a reshape, where at most one can be -1.
func reshapeDims(operand shapes.Shape, requested []int) ([]int, error) {
	dims := slices.Clone(requested)
	inferred := -1
	for ii, dim := range requested {
		switch {
		case dim == -1 && inferred == -1:
			inferred = ii
		case dim < 0:
			return nil, compiler.Errorf(compiler.InvalidArgument, "invalid reshape dimensions %v", requested)
		}
	}
	knownDims := dims
	if inferred >= 0 {
		knownDims = slices.Delete(slices.Clone(dims), inferred, inferred+1)
	}
	known, err := shapes.CheckedSize(knownDims...)
	if err != nil {
		return nil, compiler.Errorf(compiler.InvalidArgument, "cannot reshape %s to %v: %v", operand, requested, err)
	}
	if inferred >= 0 {
		if known == 0 || operand.Size()%known != 0 {
			return nil, compiler.Errorf(compiler.InvalidArgument, "cannot reshape %s to %v", operand, requested)
		}
		dims[inferred] = operand.Size() / known
	}
	if err := shapes.CheckCompatibleReshape(operand, operand.WithDimensions(dims...)); err != nil {
		return nil, compiler.Errorf(compiler.InvalidArgument, "%s", err)
	}
	return dims, nil
}

func foldReshape(_ *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	requested, err := inputs[1].AsInts()
	if err != nil {
		return nil, err
	}
	dims, err := reshapeDims(inputs[0].Shape(), requested)
	if err != nil {
		return nil, err
	}
	result, err := tensors.Reshape(inputs[0], dims...)
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{result}, nil
}

func lowerReshape(ctx *compiler.KernelContext) error {
	requested, err := ctx.ConstantInputAsInts(1)
	if err != nil {
		return err
	}
	dims, err := reshapeDims(ctx.InputShape(0), requested)
	if err != nil {
		return err
	}
	x, err := ctx.Input(0)
	if err != nil {
		return err
	}
	result, err := ctx.Builder().Reshape(x, dims...)
	if err != nil {
		return err
	}
	return ctx.SetOutput(0, result)
}

// maxFoldedFillSize is the largest Fill, in number of elements, evaluated on the host. Larger ones are
// lowered into the computation.
const maxFoldedFillSize = 1 << 20

// checkFillDims returns the number of elements of the filled value.
func checkFillDims(dims []int, value shapes.Shape) (int, error) {
	if !value.IsScalar() {
		return 0, compiler.Errorf(compiler.InvalidArgument, "Fill value must be a scalar, got %s", value)
	}
	size, err := shapes.CheckedSize(dims...)
	if err != nil {
		return 0, compiler.Errorf(compiler.InvalidArgument, "invalid Fill dimensions: %v", err)
	}
	return size, nil
}

func foldFill(_ *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	dims, err := inputs[0].AsInts()
	if err != nil {
		return nil, err
	}
	size, err := checkFillDims(dims, inputs[1].Shape())
	if err != nil {
		return nil, err
	}
	if size > maxFoldedFillSize {
		return nil, nil
	}
	result, err := tensors.Broadcast(inputs[1], dims...)
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{result}, nil
}

func lowerFill(ctx *compiler.KernelContext) error {
	dims, err := ctx.ConstantInputAsInts(0)
	if err != nil {
		return err
	}
	if _, err = checkFillDims(dims, ctx.InputShape(1)); err != nil {
		return err
	}
	value, err := ctx.Input(1)
	if err != nil {
		return err
	}
	if len(dims) == 0 {
		return ctx.SetOutput(0, value)
	}
	result, err := ctx.Builder().Broadcast(value, dims...)
	if err != nil {
		return err
	}
	return ctx.SetOutput(0, result)
}

// intsTensor converts the values to a tensor of the given integer dtype, as a vector or, if scalar is set, a scalar.
func intsTensor(values []int, dtype dtypes.DType, scalar bool) (*tensors.Tensor, error) {
	flat := make([]int64, len(values))
	for ii, v := range values {
		flat[ii] = int64(v)
	}
	var t *tensors.Tensor
	if scalar {
		t = tensors.FromScalar(flat[0])
	} else {
		t = tensors.FromFlatDataAndDimensions(flat, len(flat))
	}
	return tensors.ConvertDType(t, dtype)
}

func outTypeAttr(ctx *compiler.KernelContext) (dtypes.DType, error) {
	return ctx.Attrs().DType("out_type")
}

func tensorInputShape(ctx *compiler.KernelContext) (shapes.Shape, error) {
	shape := ctx.InputShape(0)
	if !shape.Ok() {
		return shape, compiler.Errorf(compiler.InvalidArgument, "%s requires a tensor input", ctx.Node().Op())
	}
	return shape, nil
}

// lowerShape outputs the shape of its input. Shapes are static, so it's always known at compile time.
func lowerShape(ctx *compiler.KernelContext) error {
	shape, err := tensorInputShape(ctx)
	if err != nil {
		return err
	}
	dtype, err := outTypeAttr(ctx)
	if err != nil {
		return err
	}
	t, err := intsTensor(shape.Dimensions, dtype, false)
	if err != nil {
		return err
	}
	return ctx.SetConstantOutput(0, t)
}

func lowerSize(ctx *compiler.KernelContext) error {
	shape, err := tensorInputShape(ctx)
	if err != nil {
		return err
	}
	dtype, err := outTypeAttr(ctx)
	if err != nil {
		return err
	}
	t, err := intsTensor([]int{shape.Size()}, dtype, true)
	if err != nil {
		return err
	}
	return ctx.SetConstantOutput(0, t)
}

func lowerRank(ctx *compiler.KernelContext) error {
	shape, err := tensorInputShape(ctx)
	if err != nil {
		return err
	}
	return ctx.SetConstantOutput(0, tensors.FromScalar(int32(shape.Rank())))
}

func foldCast(node *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	dtype, err := node.Attrs().DType("DstT")
	if err != nil {
		return nil, err
	}
	result, err := tensors.ConvertDType(inputs[0], dtype)
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{result}, nil
}

func lowerCast(ctx *compiler.KernelContext) error {
	dtype, err := ctx.Attrs().DType("DstT")
	if err != nil {
		return err
	}
	x, err := ctx.Input(0)
	if err != nil {
		return err
	}
	if ctx.InputDType(0) == dtype {
		return ctx.SetOutput(0, x)
	}
	result, err := ctx.Builder().ConvertDType(x, dtype)
	if err != nil {
		return err
	}
	return ctx.SetOutput(0, result)
}

// packShape checks the inputs of a Pack have all the same shape, and returns the shape of the output.
func packShape(inputs []shapes.Shape) (shapes.Shape, error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), compiler.Errorf(compiler.InvalidArgument, "Pack requires at least one input")
	}
	for _, shape := range inputs[1:] {
		if !shape.Equal(inputs[0]) {
			return shapes.Invalid(), compiler.Errorf(compiler.InvalidArgument,
				"Pack inputs must have the same shape, got %s and %s", inputs[0], shape)
		}
	}
	return shapes.Make(inputs[0].DType, append([]int{len(inputs)}, inputs[0].Dimensions...)...), nil
}

func foldPack(_ *dataflow.Node, inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	inputShapes := make([]shapes.Shape, len(inputs))
	for ii, input := range inputs {
		inputShapes[ii] = input.Shape()
	}
	outShape, err := packShape(inputShapes)
	if err != nil {
		return nil, err
	}
	result := tensors.FromShape(outShape)
	result.MutableFlatData(func(dst any) {
		dstV := reflect.ValueOf(dst)
		pos := 0
		for _, input := range inputs {
			input.ConstFlatData(func(src any) {
				pos += reflect.Copy(dstV.Slice(pos, dstV.Len()), reflect.ValueOf(src))
			})
		}
	})
	return []*tensors.Tensor{result}, nil
}

// lowerPack writes each input into its slot of a zero-initialized buffer.
func lowerPack(ctx *compiler.KernelContext) error {
	inputShapes := make([]shapes.Shape, ctx.NumInputs())
	for ii := range inputShapes {
		inputShapes[ii] = ctx.InputShape(ii)
	}
	outShape, err := packShape(inputShapes)
	if err != nil {
		return err
	}
	b := ctx.Builder()
	buffer, err := ctx.Zeros(outShape)
	if err != nil {
		return err
	}
	for ii := range inputShapes {
		x, err := ctx.Input(ii)
		if err != nil {
			return err
		}
		if x, err = b.Reshape(x, elementDims(inputShapes[ii])...); err != nil {
			return err
		}
		index, err := scalarConstant(ctx, dtypes.Int32, ii)
		if err != nil {
			return err
		}
		starts, err := startIndices(ctx, index, dtypes.Int32, outShape.Rank())
		if err != nil {
			return err
		}
		if buffer, err = b.DynamicUpdateSlice(buffer, x, starts); err != nil {
			return err
		}
	}
	return ctx.SetOutput(0, buffer)
}
