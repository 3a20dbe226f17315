package interpreter

import (
	"math"
	"math/bits"

	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/moremath"
)

// evalUnary dispatches every unary arithmetic/compare/convert op. The
// operand's NumType (and, for the handful of ops that share one Op value
// across two widths, the width itself) comes from Flags; conversions
// instead get both their source and destination type from the Op identity,
// since the translator allocates a distinct Op per type combination there.
func evalUnary(op ir.Op, flags uint8, a cell.Cell) cell.Cell {
	t, _ := ir.DecodeLoadStoreFlags(flags)
	switch op {
	case ir.OpClz:
		if t == ir.TypeI32 {
			return cell.FromI32(int32(bits.LeadingZeros32(a.U32())))
		}
		return cell.FromI64(int64(bits.LeadingZeros64(a.U64())))
	case ir.OpCtz:
		if t == ir.TypeI32 {
			return cell.FromI32(int32(bits.TrailingZeros32(a.U32())))
		}
		return cell.FromI64(int64(bits.TrailingZeros64(a.U64())))
	case ir.OpPopcnt:
		if t == ir.TypeI32 {
			return cell.FromI32(int32(bits.OnesCount32(a.U32())))
		}
		return cell.FromI64(int64(bits.OnesCount64(a.U64())))
	case ir.OpAbs:
		if t == ir.TypeF32 {
			return cell.FromF32(float32(math.Abs(float64(a.F32()))))
		}
		return cell.FromF64(math.Abs(a.F64()))
	case ir.OpNeg:
		if t == ir.TypeF32 {
			return cell.FromF32(-a.F32())
		}
		return cell.FromF64(-a.F64())
	case ir.OpCeil:
		if t == ir.TypeF32 {
			return cell.FromF32(float32(math.Ceil(float64(a.F32()))))
		}
		return cell.FromF64(math.Ceil(a.F64()))
	case ir.OpFloor:
		if t == ir.TypeF32 {
			return cell.FromF32(float32(math.Floor(float64(a.F32()))))
		}
		return cell.FromF64(math.Floor(a.F64()))
	case ir.OpTrunc:
		if t == ir.TypeF32 {
			return cell.FromF32(float32(math.Trunc(float64(a.F32()))))
		}
		return cell.FromF64(math.Trunc(a.F64()))
	case ir.OpNearest:
		if t == ir.TypeF32 {
			return cell.FromF32(moremath.WasmCompatNearestF32(a.F32()))
		}
		return cell.FromF64(moremath.WasmCompatNearestF64(a.F64()))
	case ir.OpSqrt:
		if t == ir.TypeF32 {
			return cell.FromF32(float32(math.Sqrt(float64(a.F32()))))
		}
		return cell.FromF64(math.Sqrt(a.F64()))
	case ir.OpEqz:
		if t == ir.TypeI32 {
			return cell.FromBool(a.U32() == 0)
		}
		return cell.FromBool(a.U64() == 0)
	case ir.OpWrap64To32:
		return cell.FromI32(int32(a.U64()))
	case ir.OpExtendS32To64:
		return cell.FromI64(int64(a.I32()))
	case ir.OpExtendU32To64:
		return cell.FromI64(int64(a.U32()))
	case ir.OpExtend8S:
		if t == ir.TypeI32 {
			return cell.FromI32(int32(int8(a.U32())))
		}
		return cell.FromI64(int64(int8(a.U64())))
	case ir.OpExtend16S:
		if t == ir.TypeI32 {
			return cell.FromI32(int32(int16(a.U32())))
		}
		return cell.FromI64(int64(int16(a.U64())))
	case ir.OpExtend32S:
		return cell.FromI64(int64(int32(a.U64())))
	case ir.OpConvertI32SToF32:
		return cell.FromF32(float32(a.I32()))
	case ir.OpConvertI32UToF32:
		return cell.FromF32(float32(a.U32()))
	case ir.OpConvertI64SToF32:
		return cell.FromF32(float32(a.I64()))
	case ir.OpConvertI64UToF32:
		return cell.FromF32(float32(a.U64()))
	case ir.OpConvertI32SToF64:
		return cell.FromF64(float64(a.I32()))
	case ir.OpConvertI32UToF64:
		return cell.FromF64(float64(a.U32()))
	case ir.OpConvertI64SToF64:
		return cell.FromF64(float64(a.I64()))
	case ir.OpConvertI64UToF64:
		return cell.FromF64(float64(a.U64()))
	case ir.OpDemoteF64ToF32:
		return cell.FromF32(float32(a.F64()))
	case ir.OpPromoteF32ToF64:
		return cell.FromF64(float64(a.F32()))
	case ir.OpReinterpret:
		return a
	case ir.OpTruncF32ToI32S, ir.OpTruncF32ToI32U, ir.OpTruncF64ToI32S, ir.OpTruncF64ToI32U,
		ir.OpTruncF32ToI64S, ir.OpTruncF32ToI64U, ir.OpTruncF64ToI64S, ir.OpTruncF64ToI64U:
		return evalTrunc(op, a)
	case ir.OpTruncSatF32ToI32S, ir.OpTruncSatF32ToI32U, ir.OpTruncSatF64ToI32S, ir.OpTruncSatF64ToI32U,
		ir.OpTruncSatF32ToI64S, ir.OpTruncSatF32ToI64U, ir.OpTruncSatF64ToI64S, ir.OpTruncSatF64ToI64U:
		return evalTruncSat(op, a)
	}
	panic("interpreter: unhandled unary op")
}

// evalBinary dispatches every binary arithmetic/compare op. OpDivS doubles
// as the generic float divide (floats have no signed/unsigned distinction,
// so the translator never allocates a separate float-div Op); everything
// else is either integer-only or float-only, distinguished by Flags' type.
func evalBinary(op ir.Op, flags uint8, a, b cell.Cell) cell.Cell {
	t, _ := ir.DecodeLoadStoreFlags(flags)
	if t == ir.TypeF32 || t == ir.TypeF64 {
		return evalFloatBinary(op, t, a, b)
	}
	return evalIntBinary(op, t, a, b)
}

func evalIntBinary(op ir.Op, t ir.NumType, a, b cell.Cell) cell.Cell {
	is32 := t == ir.TypeI32
	switch op {
	case ir.OpAdd:
		if is32 {
			return cell.FromI32(a.I32() + b.I32())
		}
		return cell.FromI64(a.I64() + b.I64())
	case ir.OpSub:
		if is32 {
			return cell.FromI32(a.I32() - b.I32())
		}
		return cell.FromI64(a.I64() - b.I64())
	case ir.OpMul:
		if is32 {
			return cell.FromI32(a.I32() * b.I32())
		}
		return cell.FromI64(a.I64() * b.I64())
	case ir.OpDivS:
		if is32 {
			av, bv := a.I32(), b.I32()
			if bv == 0 {
				panic(errDivideByZero)
			}
			if av == math.MinInt32 && bv == -1 {
				panic(errIntegerOverflow)
			}
			return cell.FromI32(av / bv)
		}
		av, bv := a.I64(), b.I64()
		if bv == 0 {
			panic(errDivideByZero)
		}
		if av == math.MinInt64 && bv == -1 {
			panic(errIntegerOverflow)
		}
		return cell.FromI64(av / bv)
	case ir.OpDivU:
		if is32 {
			bv := b.U32()
			if bv == 0 {
				panic(errDivideByZero)
			}
			return cell.FromU32(a.U32() / bv)
		}
		bv := b.U64()
		if bv == 0 {
			panic(errDivideByZero)
		}
		return cell.FromU64(a.U64() / bv)
	case ir.OpRemS:
		if is32 {
			av, bv := a.I32(), b.I32()
			if bv == 0 {
				panic(errDivideByZero)
			}
			if av == math.MinInt32 && bv == -1 {
				return cell.FromI32(0)
			}
			return cell.FromI32(av % bv)
		}
		av, bv := a.I64(), b.I64()
		if bv == 0 {
			panic(errDivideByZero)
		}
		if av == math.MinInt64 && bv == -1 {
			return cell.FromI64(0)
		}
		return cell.FromI64(av % bv)
	case ir.OpRemU:
		if is32 {
			bv := b.U32()
			if bv == 0 {
				panic(errDivideByZero)
			}
			return cell.FromU32(a.U32() % bv)
		}
		bv := b.U64()
		if bv == 0 {
			panic(errDivideByZero)
		}
		return cell.FromU64(a.U64() % bv)
	case ir.OpAnd:
		if is32 {
			return cell.FromU32(a.U32() & b.U32())
		}
		return cell.FromU64(a.U64() & b.U64())
	case ir.OpOr:
		if is32 {
			return cell.FromU32(a.U32() | b.U32())
		}
		return cell.FromU64(a.U64() | b.U64())
	case ir.OpXor:
		if is32 {
			return cell.FromU32(a.U32() ^ b.U32())
		}
		return cell.FromU64(a.U64() ^ b.U64())
	case ir.OpShl:
		if is32 {
			return cell.FromU32(a.U32() << (b.U32() % 32))
		}
		return cell.FromU64(a.U64() << (b.U64() % 64))
	case ir.OpShrU:
		if is32 {
			return cell.FromU32(a.U32() >> (b.U32() % 32))
		}
		return cell.FromU64(a.U64() >> (b.U64() % 64))
	case ir.OpShrS:
		if is32 {
			return cell.FromI32(a.I32() >> (b.U32() % 32))
		}
		return cell.FromI64(a.I64() >> (b.U64() % 64))
	case ir.OpRotl:
		if is32 {
			return cell.FromU32(bits.RotateLeft32(a.U32(), int(b.U32()%32)))
		}
		return cell.FromU64(bits.RotateLeft64(a.U64(), int(b.U64()%64)))
	case ir.OpRotr:
		if is32 {
			return cell.FromU32(bits.RotateLeft32(a.U32(), -int(b.U32()%32)))
		}
		return cell.FromU64(bits.RotateLeft64(a.U64(), -int(b.U64()%64)))
	case ir.OpEq:
		if is32 {
			return cell.FromBool(a.U32() == b.U32())
		}
		return cell.FromBool(a.U64() == b.U64())
	case ir.OpNe:
		if is32 {
			return cell.FromBool(a.U32() != b.U32())
		}
		return cell.FromBool(a.U64() != b.U64())
	case ir.OpLtS:
		if is32 {
			return cell.FromBool(a.I32() < b.I32())
		}
		return cell.FromBool(a.I64() < b.I64())
	case ir.OpLtU:
		if is32 {
			return cell.FromBool(a.U32() < b.U32())
		}
		return cell.FromBool(a.U64() < b.U64())
	case ir.OpGtS:
		if is32 {
			return cell.FromBool(a.I32() > b.I32())
		}
		return cell.FromBool(a.I64() > b.I64())
	case ir.OpGtU:
		if is32 {
			return cell.FromBool(a.U32() > b.U32())
		}
		return cell.FromBool(a.U64() > b.U64())
	case ir.OpLeS:
		if is32 {
			return cell.FromBool(a.I32() <= b.I32())
		}
		return cell.FromBool(a.I64() <= b.I64())
	case ir.OpLeU:
		if is32 {
			return cell.FromBool(a.U32() <= b.U32())
		}
		return cell.FromBool(a.U64() <= b.U64())
	case ir.OpGeS:
		if is32 {
			return cell.FromBool(a.I32() >= b.I32())
		}
		return cell.FromBool(a.I64() >= b.I64())
	case ir.OpGeU:
		if is32 {
			return cell.FromBool(a.U32() >= b.U32())
		}
		return cell.FromBool(a.U64() >= b.U64())
	}
	panic("interpreter: unhandled integer binary op")
}

func evalFloatBinary(op ir.Op, t ir.NumType, a, b cell.Cell) cell.Cell {
	is32 := t == ir.TypeF32
	switch op {
	case ir.OpAdd:
		if is32 {
			return cell.FromF32(a.F32() + b.F32())
		}
		return cell.FromF64(a.F64() + b.F64())
	case ir.OpSub:
		if is32 {
			return cell.FromF32(a.F32() - b.F32())
		}
		return cell.FromF64(a.F64() - b.F64())
	case ir.OpMul:
		if is32 {
			return cell.FromF32(a.F32() * b.F32())
		}
		return cell.FromF64(a.F64() * b.F64())
	case ir.OpDivS: // generic float divide, see evalBinary's doc comment
		if is32 {
			return cell.FromF32(a.F32() / b.F32())
		}
		return cell.FromF64(a.F64() / b.F64())
	case ir.OpMin:
		if is32 {
			return cell.FromF32(float32(moremath.WasmCompatMin(float64(a.F32()), float64(b.F32()))))
		}
		return cell.FromF64(moremath.WasmCompatMin(a.F64(), b.F64()))
	case ir.OpMax:
		if is32 {
			return cell.FromF32(float32(moremath.WasmCompatMax(float64(a.F32()), float64(b.F32()))))
		}
		return cell.FromF64(moremath.WasmCompatMax(a.F64(), b.F64()))
	case ir.OpCopysign:
		if is32 {
			return cell.FromF32(float32(math.Copysign(float64(a.F32()), float64(b.F32()))))
		}
		return cell.FromF64(math.Copysign(a.F64(), b.F64()))
	case ir.OpEq:
		if is32 {
			return cell.FromBool(a.F32() == b.F32())
		}
		return cell.FromBool(a.F64() == b.F64())
	case ir.OpNe:
		if is32 {
			return cell.FromBool(a.F32() != b.F32())
		}
		return cell.FromBool(a.F64() != b.F64())
	case ir.OpLtF:
		if is32 {
			return cell.FromBool(a.F32() < b.F32())
		}
		return cell.FromBool(a.F64() < b.F64())
	case ir.OpGtF:
		if is32 {
			return cell.FromBool(a.F32() > b.F32())
		}
		return cell.FromBool(a.F64() > b.F64())
	case ir.OpLeF:
		if is32 {
			return cell.FromBool(a.F32() <= b.F32())
		}
		return cell.FromBool(a.F64() <= b.F64())
	case ir.OpGeF:
		if is32 {
			return cell.FromBool(a.F32() >= b.F32())
		}
		return cell.FromBool(a.F64() >= b.F64())
	}
	panic("interpreter: unhandled float binary op")
}

// Bounds below follow the usual runtime convention for trapping vs.
// saturating truncation: all are exact in float64, including the i64 ones,
// since every bound here is a power of two.
const (
	i32MinF = -2147483648.0
	i32MaxF = 2147483648.0
	i64MinF = -9223372036854775808.0
	i64MaxF = 9223372036854775808.0
	u32MaxF = 4294967296.0
	u64MaxF = 18446744073709551616.0
)

func evalTrunc(op ir.Op, a cell.Cell) cell.Cell {
	var f float64
	switch op {
	case ir.OpTruncF32ToI32S, ir.OpTruncF32ToI32U, ir.OpTruncF32ToI64S, ir.OpTruncF32ToI64U:
		f = float64(a.F32())
	default:
		f = a.F64()
	}
	if math.IsNaN(f) {
		panic(errInvalidConversion)
	}
	trunced := math.Trunc(f)
	switch op {
	case ir.OpTruncF32ToI32S, ir.OpTruncF64ToI32S:
		if trunced < i32MinF || trunced >= i32MaxF {
			panic(errInvalidConversion)
		}
		return cell.FromI32(int32(trunced))
	case ir.OpTruncF32ToI32U, ir.OpTruncF64ToI32U:
		if trunced < 0 || trunced >= u32MaxF {
			panic(errInvalidConversion)
		}
		return cell.FromU32(uint32(trunced))
	case ir.OpTruncF32ToI64S, ir.OpTruncF64ToI64S:
		if trunced < i64MinF || trunced >= i64MaxF {
			panic(errInvalidConversion)
		}
		return cell.FromI64(int64(trunced))
	default: // OpTruncF32ToI64U, OpTruncF64ToI64U
		if trunced < 0 || trunced >= u64MaxF {
			panic(errInvalidConversion)
		}
		return cell.FromU64(uint64(trunced))
	}
}

func evalTruncSat(op ir.Op, a cell.Cell) cell.Cell {
	var f float64
	switch op {
	case ir.OpTruncSatF32ToI32S, ir.OpTruncSatF32ToI32U, ir.OpTruncSatF32ToI64S, ir.OpTruncSatF32ToI64U:
		f = float64(a.F32())
	default:
		f = a.F64()
	}
	if math.IsNaN(f) {
		f = 0
	}
	switch op {
	case ir.OpTruncSatF32ToI32S, ir.OpTruncSatF64ToI32S:
		switch {
		case f <= i32MinF:
			return cell.FromI32(math.MinInt32)
		case f >= i32MaxF:
			return cell.FromI32(math.MaxInt32)
		default:
			return cell.FromI32(int32(math.Trunc(f)))
		}
	case ir.OpTruncSatF32ToI32U, ir.OpTruncSatF64ToI32U:
		switch {
		case f <= 0:
			return cell.FromU32(0)
		case f >= u32MaxF:
			return cell.FromU32(math.MaxUint32)
		default:
			return cell.FromU32(uint32(math.Trunc(f)))
		}
	case ir.OpTruncSatF32ToI64S, ir.OpTruncSatF64ToI64S:
		switch {
		case f <= i64MinF:
			return cell.FromI64(math.MinInt64)
		case f >= i64MaxF:
			return cell.FromI64(math.MaxInt64)
		default:
			return cell.FromI64(int64(math.Trunc(f)))
		}
	default: // OpTruncSatF32ToI64U, OpTruncSatF64ToI64U
		switch {
		case f <= 0:
			return cell.FromU64(0)
		case f >= u64MaxF:
			return cell.FromU64(math.MaxUint64)
		default:
			return cell.FromU64(uint64(math.Trunc(f)))
		}
	}
}
