// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "fmt"

// OpType is an enum of all generic operations that can be supported by a Backend.Builder.
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant
	OpTypeIdentity

	OpTypeAbs
	OpTypeAdd
	OpTypeBroadcast
	OpTypeConvertDType
	OpTypeDiv
	OpTypeDynamicSlice
	OpTypeDynamicUpdateSlice
	OpTypeGetTupleElement
	OpTypeMax
	OpTypeMin
	OpTypeMul
	OpTypeNeg
	OpTypeReshape
	OpTypeSub
	OpTypeTuple

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

var opTypeNames = [...]string{
	OpTypeInvalid:            "Invalid",
	OpTypeParameter:          "Parameter",
	OpTypeConstant:           "Constant",
	OpTypeIdentity:           "Identity",
	OpTypeAbs:                "Abs",
	OpTypeAdd:                "Add",
	OpTypeBroadcast:          "Broadcast",
	OpTypeConvertDType:       "ConvertDType",
	OpTypeDiv:                "Div",
	OpTypeDynamicSlice:       "DynamicSlice",
	OpTypeDynamicUpdateSlice: "DynamicUpdateSlice",
	OpTypeGetTupleElement:    "GetTupleElement",
	OpTypeMax:                "Max",
	OpTypeMin:                "Min",
	OpTypeMul:                "Mul",
	OpTypeNeg:                "Neg",
	OpTypeReshape:            "Reshape",
	OpTypeSub:                "Sub",
	OpTypeTuple:              "Tuple",
	OpTypeLast:               "Last",
}

// String implements fmt.Stringer.
func (i OpType) String() string {
	if i < 0 || int(i) >= len(opTypeNames) {
		return fmt.Sprintf("OpType(%d)", int(i))
	}
	return opTypeNames[i]
}
