// Package wasmir defines the input contract the translator consumes: one
// Operator per validated Wasm operator, in program order, exactly as the
// external (out of scope) binary parser/validator would emit them. This
// package has no dependency on the bytecode IR's instruction encoding - it
// is a plain decoded-event record, the Wasm-operator equivalent of a token
// stream.
package wasmir

import "github.com/wazeroir/regwasm/internal/ir"

// Op identifies the shape of an Operator; fields that don't apply to a
// given Op are simply left zero.
type Op uint16

const (
	OpUnreachable Op = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect
	OpReturnCall
	OpReturnCallIndirect
	OpDrop
	OpSelect
	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet
	OpLoad
	OpStore
	OpMemorySize
	OpMemoryGrow
	OpMemoryInit
	OpDataDrop
	OpMemoryCopy
	OpMemoryFill
	OpTableGet
	OpTableSet
	OpTableSize
	OpTableGrow
	OpTableFill
	OpTableCopy
	OpTableInit
	OpElemDrop
	OpRefNull
	OpRefIsNull
	OpRefFunc
	OpConstI32
	OpConstI64
	OpConstF32
	OpConstF64
	// OpNumeric covers every unary/binary/comparison/conversion operator;
	// Numeric names exactly which one via the shared ir.Op space, since the
	// translation for almost all of these is "allocate a result register,
	// emit one ir.Instruction of that Op" with no other bookkeeping needed.
	OpNumeric
)

// BlockType describes the arity of a block/loop/if construct. Either a
// single pre-MVP-style inline type (Results 0 or 1, described by ResultType)
// or, under multi-value, an index into the module's type section.
type BlockType struct {
	IsTypeIndex bool
	TypeIndex   uint32
	ResultType  ir.NumType // valid only when !IsTypeIndex && HasResult
	HasResult   bool
}

// MemArg is the alignment/offset pair carried by every load/store operator,
// plus the in-memory access width (e.g. i32.load8_s vs i32.load both produce
// an i32, but read a different number of bytes).
type MemArg struct {
	Align     uint32
	Offset    uint32
	MemoryIdx uint32
	Width     ir.MemWidth
}

// BrTableEntry is one label-depth target of a br_table operator, expressed
// relative to the control stack the translator itself maintains (depth 0 is
// the innermost enclosing block), exactly like the Wasm binary format
// encodes it.
type BrTableEntry struct {
	LabelDepth uint32
}

// Operator is one decoded, validated Wasm operator.
type Operator struct {
	Op Op

	// Numeric identifies the concrete arithmetic/compare/convert operation
	// when Op == OpNumeric. InType/OutType give the operand/result Wasm
	// numeric type(s); Signed/Saturating disambiguate variants that share an
	// Numeric value across signedness (e.g. division) or trapping behavior
	// (saturating truncation).
	Numeric    ir.Op
	InType     ir.NumType
	OutType    ir.NumType
	Signed     bool
	Saturating bool

	// Local/Global/Func/Table/Elem/Data/TypeIndex are index-space references.
	Local     uint32
	Global    uint32
	Func      uint32
	Table     uint32
	Table2    uint32 // second table operand (table.copy destination)
	Elem      uint32
	Data      uint32
	TypeIndex uint32

	Mem MemArg

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	Block BlockType

	// LabelDepth is the relative control-stack depth for Br/BrIf (0 = the
	// innermost enclosing block/loop).
	LabelDepth uint32
	// BrTable holds the full jump table for OpBrTable; the last entry is
	// always the default target.
	BrTable []BrTableEntry
}
