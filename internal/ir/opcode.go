package ir

// Op is the 16-bit discriminant of an Instruction.
type Op uint16

// NumType distinguishes which Wasm numeric type an arithmetic/compare/convert
// instruction operates over. Stored in Instruction.Flags for ops that need it.
type NumType uint8

const (
	TypeI32 NumType = iota
	TypeI64
	TypeF32
	TypeF64
)

//go:generate stringer -type=Op -output=opcode_string.go

const (
	// --- constants & copies ---
	OpConst    Op = iota // B = Body.Consts[Reg(Imm).ConstIndex()]; Imm holds a ConstReg-encoded index
	OpCopy               // result = A
	OpCopySpan           // copy Span at [A,A+Imm) to [result,result+Imm), overlap-safe

	// --- locals / globals ---
	OpGlobalGet
	OpGlobalSet

	// --- control ---
	OpBr          // pc += Imm
	OpBrIfNonzero // if A != 0: pc += Imm
	OpBrIfZero    // if A == 0: pc += Imm
	OpBrTable     // index = A; table = Body.BrTables[Imm]
	OpReturn      // return values in Span described by (A as head, Imm as len)
	OpUnreachable // trap TrapCodeUnreachable
	OpTrap        // trap with explicit code carried in Flags

	// --- calls ---
	OpCall         // call function Body-relative index Imm; args/results Span follows as OpParam
	OpCallImported // call via imported-function table, index Imm
	OpCallIndirect // table index in Flags, type index Imm, operand reg A (table slot), args/results Span follows
	OpReturnCall   // tail call: same as OpCall but reuses the caller's frame
	OpReturnCallIndirect
	OpParam // parameter word following a head instruction; interpretation is contextual

	// --- memory ---
	OpLoad // signedness, NumType and width packed in Flags (see MemAccessFlags)
	OpStore
	OpMemorySize
	OpMemoryGrow
	OpMemoryFill
	OpMemoryCopy
	OpMemoryInit
	OpDataDrop

	// --- table ---
	OpTableGet
	OpTableSet
	OpTableSize
	OpTableGrow
	OpTableFill
	OpTableCopy
	OpTableInit
	OpElemDrop
	OpRefFunc
	OpRefIsNull
	OpRefNull

	// --- stack shaping ---
	OpDrop
	OpSelect

	// --- arithmetic / logic (Flags carries NumType, B is rhs for binary) ---
	OpAdd
	OpSub
	OpMul
	OpDivS
	OpDivU
	OpRemS
	OpRemU
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShrS
	OpShrU
	OpRotl
	OpRotr
	OpClz
	OpCtz
	OpPopcnt

	// --- float unary/binary ---
	OpAbs
	OpNeg
	OpCeil
	OpFloor
	OpTrunc
	OpNearest
	OpSqrt
	OpMin
	OpMax
	OpCopysign

	// --- comparisons (result is i32 0/1) ---
	OpEq
	OpNe
	OpEqz
	OpLtS
	OpLtU
	OpGtS
	OpGtU
	OpLeS
	OpLeU
	OpGeS
	OpGeU
	OpLtF
	OpGtF
	OpLeF
	OpGeF

	// --- conversions ---
	OpWrap64To32
	OpExtendS32To64
	OpExtendU32To64
	OpExtend8S
	OpExtend16S
	OpExtend32S
	OpTruncF32ToI32S
	OpTruncF32ToI32U
	OpTruncF32ToI64S
	OpTruncF32ToI64U
	OpTruncF64ToI32S
	OpTruncF64ToI32U
	OpTruncF64ToI64S
	OpTruncF64ToI64U
	OpTruncSatF32ToI32S
	OpTruncSatF32ToI32U
	OpTruncSatF32ToI64S
	OpTruncSatF32ToI64U
	OpTruncSatF64ToI32S
	OpTruncSatF64ToI32U
	OpTruncSatF64ToI64S
	OpTruncSatF64ToI64U
	OpConvertI32SToF32
	OpConvertI32UToF32
	OpConvertI64SToF32
	OpConvertI64UToF32
	OpConvertI32SToF64
	OpConvertI32UToF64
	OpConvertI64SToF64
	OpConvertI64UToF64
	OpDemoteF64ToF32
	OpPromoteF32ToF64
	OpReinterpret // B = A: the bits pass through unchanged, only the NumType they are read as differs

	// --- fuel ---
	OpConsumeFuel // consume Imm units of fuel, or trap TrapCodeOutOfFuel
)

// OpTrap's Flags field carries a wasmruntime.TrapCode value; the type is
// defined in wasmruntime and not aliased here.
