package interpreter

import (
	"encoding/binary"
	"math"

	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/wasm"
)

func memWidthBytes(w ir.MemWidth) uint64 {
	switch w {
	case ir.Width8:
		return 1
	case ir.Width16:
		return 2
	case ir.Width32:
		return 4
	default:
		return 8
	}
}

// doLoad implements OpLoad: read memWidthBytes(width) bytes at addr+offset,
// sign/zero-extending (ints) or reinterpreting (floats) up to the result
// NumType's full width.
func doLoad(mem *wasm.MemoryInstance, offset uint32, ins ir.Instruction, addrReg cell.Cell) (cell.Cell, bool) {
	t, width, signed := ir.DecodeMemAccessFlags(ins.Flags)
	effective := uint64(addrReg.U32()) + uint64(offset)
	n := memWidthBytes(width)
	buf := mem.Buffer
	if effective+n > uint64(len(buf)) || effective+n < effective {
		return 0, false
	}
	switch t {
	case ir.TypeI32:
		switch width {
		case ir.Width8:
			b := buf[effective]
			if signed {
				return cell.FromI32(int32(int8(b))), true
			}
			return cell.FromI32(int32(b)), true
		case ir.Width16:
			v := binary.LittleEndian.Uint16(buf[effective:])
			if signed {
				return cell.FromI32(int32(int16(v))), true
			}
			return cell.FromI32(int32(v)), true
		default:
			v := binary.LittleEndian.Uint32(buf[effective:])
			return cell.FromI32(int32(v)), true
		}
	case ir.TypeI64:
		switch width {
		case ir.Width8:
			b := buf[effective]
			if signed {
				return cell.FromI64(int64(int8(b))), true
			}
			return cell.FromI64(int64(b)), true
		case ir.Width16:
			v := binary.LittleEndian.Uint16(buf[effective:])
			if signed {
				return cell.FromI64(int64(int16(v))), true
			}
			return cell.FromI64(int64(v)), true
		case ir.Width32:
			v := binary.LittleEndian.Uint32(buf[effective:])
			if signed {
				return cell.FromI64(int64(int32(v))), true
			}
			return cell.FromI64(int64(v)), true
		default:
			v := binary.LittleEndian.Uint64(buf[effective:])
			return cell.FromI64(int64(v)), true
		}
	case ir.TypeF32:
		v := binary.LittleEndian.Uint32(buf[effective:])
		return cell.FromF32(math.Float32frombits(v)), true
	default:
		v := binary.LittleEndian.Uint64(buf[effective:])
		return cell.FromF64(math.Float64frombits(v)), true
	}
}

// doStore implements OpStore: write the low memWidthBytes(width) bytes of
// val at addr+offset. The bit pattern is already in the right shape
// regardless of int/float, so only the width matters here.
func doStore(mem *wasm.MemoryInstance, offset uint32, ins ir.Instruction, addrReg, val cell.Cell) bool {
	_, width, _ := ir.DecodeMemAccessFlags(ins.Flags)
	effective := uint64(addrReg.U32()) + uint64(offset)
	n := memWidthBytes(width)
	buf := mem.Buffer
	if effective+n > uint64(len(buf)) || effective+n < effective {
		return false
	}
	switch width {
	case ir.Width8:
		buf[effective] = byte(val.U64())
	case ir.Width16:
		binary.LittleEndian.PutUint16(buf[effective:], uint16(val.U64()))
	case ir.Width32:
		binary.LittleEndian.PutUint32(buf[effective:], uint32(val.U64()))
	default:
		binary.LittleEndian.PutUint64(buf[effective:], val.U64())
	}
	return true
}
