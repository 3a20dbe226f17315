package wasm

import (
	"context"
	"encoding/binary"
	"math"
)

// memoryView adapts a *MemoryInstance to api.Memory, the restricted view an
// embedder gets back from CallContext.Memory()/ExportedMemory(). Every
// accessor bounds-checks against the current buffer length rather than
// trapping: out-of-range is reported as (zero, false), matching the
// api.Memory contract, not wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess -
// that trap is for Wasm-code-driven loads/stores, handled in the executor.
type memoryView struct{ m *MemoryInstance }

func (v memoryView) Size(context.Context) uint32 {
	if v.m == nil {
		return 0
	}
	return uint32(len(v.m.Buffer))
}

func (v memoryView) Grow(_ context.Context, deltaPages uint32) (uint32, bool) {
	if v.m == nil {
		return 0, false
	}
	return v.m.Grow(deltaPages)
}

func (v memoryView) bounds(offset, n uint32) bool {
	return v.m != nil && uint64(offset)+uint64(n) <= uint64(len(v.m.Buffer))
}

func (v memoryView) ReadByte(_ context.Context, offset uint32) (byte, bool) {
	if !v.bounds(offset, 1) {
		return 0, false
	}
	return v.m.Buffer[offset], true
}

func (v memoryView) ReadUint16Le(_ context.Context, offset uint32) (uint16, bool) {
	if !v.bounds(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(v.m.Buffer[offset:]), true
}

func (v memoryView) ReadUint32Le(_ context.Context, offset uint32) (uint32, bool) {
	if !v.bounds(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v.m.Buffer[offset:]), true
}

func (v memoryView) ReadUint64Le(_ context.Context, offset uint32) (uint64, bool) {
	if !v.bounds(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v.m.Buffer[offset:]), true
}

func (v memoryView) ReadFloat32Le(ctx context.Context, offset uint32) (float32, bool) {
	b, ok := v.ReadUint32Le(ctx, offset)
	return math.Float32frombits(b), ok
}

func (v memoryView) ReadFloat64Le(ctx context.Context, offset uint32) (float64, bool) {
	b, ok := v.ReadUint64Le(ctx, offset)
	return math.Float64frombits(b), ok
}

func (v memoryView) Read(_ context.Context, offset, byteCount uint32) ([]byte, bool) {
	if !v.bounds(offset, byteCount) {
		return nil, false
	}
	return v.m.Buffer[offset : offset+byteCount : offset+byteCount], true
}

func (v memoryView) WriteByte(_ context.Context, offset uint32, val byte) bool {
	if !v.bounds(offset, 1) {
		return false
	}
	v.m.Buffer[offset] = val
	return true
}

func (v memoryView) WriteUint16Le(_ context.Context, offset uint32, val uint16) bool {
	if !v.bounds(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(v.m.Buffer[offset:], val)
	return true
}

func (v memoryView) WriteUint32Le(_ context.Context, offset, val uint32) bool {
	if !v.bounds(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(v.m.Buffer[offset:], val)
	return true
}

func (v memoryView) WriteUint64Le(_ context.Context, offset uint32, val uint64) bool {
	if !v.bounds(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(v.m.Buffer[offset:], val)
	return true
}

func (v memoryView) WriteFloat32Le(ctx context.Context, offset uint32, val float32) bool {
	return v.WriteUint32Le(ctx, offset, math.Float32bits(val))
}

func (v memoryView) WriteFloat64Le(ctx context.Context, offset uint32, val float64) bool {
	return v.WriteUint64Le(ctx, offset, math.Float64bits(val))
}

func (v memoryView) Write(_ context.Context, offset uint32, val []byte) bool {
	if !v.bounds(offset, uint32(len(val))) {
		return false
	}
	copy(v.m.Buffer[offset:], val)
	return true
}
