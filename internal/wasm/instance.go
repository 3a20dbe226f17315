package wasm

import (
	"fmt"
	"reflect"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/experimental"
	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/code"
	"github.com/wazeroir/regwasm/internal/wasmir"
	"github.com/wazeroir/regwasm/internal/wasmruntime"
)

// FunctionInstance is a function instance in a Store: either a translated
// Wasm function body, reachable through its code.Func, or a host function.
//
// DebugName and GoFunc are accessed through methods, not fields, matching
// the api.FunctionDefinition contract this type satisfies (see below); the
// underlying storage is named debugName/hostFn to avoid a field/method
// collision.
type FunctionInstance struct {
	Type   *FunctionType
	TypeID FunctionTypeID

	Body   *code.Func // nil for a host function
	HostFn *reflect.Value

	Module *ModuleInstance
	Idx    Index

	debugName   string
	moduleName  string
	name        string
	exportNames []string

	FunctionListener experimental.FunctionListener
}

func (f *FunctionInstance) Index() uint32            { return f.Idx }
func (f *FunctionInstance) Name() string             { return f.name }
func (f *FunctionInstance) ModuleName() string       { return f.moduleName }
func (f *FunctionInstance) DebugName() string        { return f.debugName }
func (f *FunctionInstance) ExportNames() []string    { return f.exportNames }
func (f *FunctionInstance) ParamTypes() []ValueType  { return f.Type.Params }
func (f *FunctionInstance) ResultTypes() []ValueType { return f.Type.Results }
func (f *FunctionInstance) GoFunc() *reflect.Value   { return f.HostFn }
func (f *FunctionInstance) IsHostFunction() bool     { return f.HostFn != nil }

// Import always reports false: this engine resolves an import by reusing
// the exporting module's *FunctionInstance directly (see Store.resolveImports)
// rather than wrapping it, so there is no importing-module context to report
// here distinct from the function's defining module. A simplification versus
// wazero's FunctionDefinition.Import.
func (f *FunctionInstance) Import() (moduleName, name string, isImport bool) { return "", "", false }

// GlobalInstance is a global instance in a Store. Val is a cell.Cell rather
// than a bare uint64 so it round-trips through the register machine's
// untyped value representation without a conversion at every access.
type GlobalInstance struct {
	Type *GlobalType
	Val  cell.Cell
}

// MemoryInstance is one linear memory instance: a byte buffer whose size is
// always a multiple of the 64KiB page size, growable up to Max pages.
type MemoryInstance struct {
	Buffer []byte
	Min    uint32
	Max    uint32
}

const memoryPageSize = 65536

// MemoryMaxPages is the maximum number of pages (4GiB) addressable by a
// 32-bit memory.
const MemoryMaxPages = 65536

// NewMemoryInstance allocates a linear memory sized to t.Min pages. When
// capacityFromMax is set, the backing buffer's capacity is reserved up to
// t.Max pages up front (Module.MemoryCapacityFromMax), so a later
// memory.grow within that ceiling never reallocates the buffer - keeping any
// outstanding api.Memory.Read view stable across the grow.
func NewMemoryInstance(t *MemoryType, capacityFromMax bool) *MemoryInstance {
	capPages := t.Min
	if capacityFromMax {
		capPages = t.Max
	}
	buf := make([]byte, uint64(t.Min)*memoryPageSize, uint64(capPages)*memoryPageSize)
	return &MemoryInstance{Buffer: buf, Min: t.Min, Max: t.Max}
}

func (m *MemoryInstance) PageSize() uint32 { return uint32(len(m.Buffer) / memoryPageSize) }

// Grow attempts to grow the memory by delta pages. It returns the previous
// size in pages and true, or the current size and false (leaving the memory
// unchanged) if the new size would exceed Max or overflow uint32; the
// memory.grow instruction reports false, like a resource limiter's refusal,
// as -1. If the buffer's capacity already covers the new size
// (see NewMemoryInstance's capacityFromMax), append does not reallocate, so
// a live api.Memory.Read view stays valid.
func (m *MemoryInstance) Grow(delta uint32) (previousPages uint32, ok bool) {
	cur := m.PageSize()
	next := cur + delta
	if next < cur || next > m.Max {
		return cur, false
	}
	m.Buffer = append(m.Buffer, make([]byte, uint64(delta)*memoryPageSize)...)
	return cur, true
}

// TableInstance is one table instance: a dense slice of cell.Cell, each
// either a null reference or a RefID-encoded function/extern reference.
type TableInstance struct {
	References []cell.Cell
	Max        *uint32
}

func NewTableInstance(t *TableType) *TableInstance {
	refs := make([]cell.Cell, t.Min)
	return &TableInstance{References: refs, Max: t.Max}
}

func (t *TableInstance) Grow(delta uint32, fill cell.Cell) (previous uint32, ok bool) {
	cur := uint32(len(t.References))
	next := cur + delta
	if next < cur || (t.Max != nil && next > *t.Max) {
		return cur, false
	}
	grown := make([]cell.Cell, delta)
	for i := range grown {
		grown[i] = fill
	}
	t.References = append(t.References, grown...)
	return cur, true
}

// ElementInstance is a passive element segment retained at runtime for
// table.init, holding the function indices (as arena.ID-equivalent Index
// values) it was initialized with.
type ElementInstance struct {
	FuncIndices []Index
}

// ExportInstance is one named export, pointing at exactly one of the four
// kinds of instance.
type ExportInstance struct {
	Type     ExternType
	Function *FunctionInstance
	Global   *GlobalInstance
	Memory   *MemoryInstance
	Table    *TableInstance
}

// ModuleInstance is an instantiated module: resolved imports plus its own
// locally defined functions/globals/memory/tables, indexed exactly like the
// Wasm index spaces (imports first).
type ModuleInstance struct {
	Name string

	// Store tags this instance with the Store that created it, so a
	// FunctionInstance/GlobalInstance/TableInstance reached through it can
	// be checked against the Store a call is actually running in (see
	// Store.checkOwns) - the engine-level form of spec's "using a handle
	// from a different store" usage error.
	Store *Store

	Functions []*FunctionInstance
	Globals   []*GlobalInstance
	Tables    []*TableInstance
	Memory    *MemoryInstance
	Types     []*FunctionType
	TypeIDs   []FunctionTypeID

	Exports map[string]*ExportInstance

	DataInstances    []DataInstance
	ElementInstances []ElementInstance

	CallCtx *CallContext

	// Engine implements function calls for this module; set by Store right
	// after construction, once NewModuleEngine has compiled it.
	Engine ModuleEngine
}

type DataInstance = []byte

func (m *ModuleInstance) buildExports(exports []*Export) {
	m.Exports = make(map[string]*ExportInstance, len(exports))
	for _, exp := range exports {
		var ei *ExportInstance
		switch exp.Type {
		case api.ExternTypeFunc:
			ei = &ExportInstance{Type: exp.Type, Function: m.Functions[exp.Index]}
		case api.ExternTypeGlobal:
			ei = &ExportInstance{Type: exp.Type, Global: m.Globals[exp.Index]}
		case api.ExternTypeMemory:
			ei = &ExportInstance{Type: exp.Type, Memory: m.Memory}
		case api.ExternTypeTable:
			ei = &ExportInstance{Type: exp.Type, Table: m.Tables[exp.Index]}
		}
		m.Exports[exp.Name] = ei
	}
}

func (m *ModuleInstance) getExport(name string, et ExternType) (*ExportInstance, error) {
	exp, ok := m.Exports[name]
	if !ok {
		return nil, fmt.Errorf("%q is not exported in module %q", name, m.Name)
	}
	if exp.Type != et {
		return nil, fmt.Errorf("export %q in module %q is a %s, not a %s", name, m.Name, api.ExternTypeName(exp.Type), api.ExternTypeName(et))
	}
	return exp, nil
}

func (m *ModuleInstance) buildDataInstances(segments []*DataSegment) {
	for _, d := range segments {
		var b []byte
		if d.IsPassive() {
			b = d.Init
		}
		m.DataInstances = append(m.DataInstances, b)
	}
}

func (m *ModuleInstance) buildElementInstances(segments []*ElementSegment) {
	m.ElementInstances = make([]ElementInstance, len(segments))
	for i, seg := range segments {
		if seg.IsPassive() {
			m.ElementInstances[i] = ElementInstance{FuncIndices: seg.Init}
		}
	}
}

func (m *ModuleInstance) validateData(data []*DataSegment) error {
	for _, d := range data {
		if d.IsPassive() {
			continue
		}
		offset := int(evalConstI32(m.Globals, d.Offset))
		end := offset + len(d.Init)
		if offset < 0 || end > len(m.Memory.Buffer) {
			return wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess
		}
	}
	return nil
}

func (m *ModuleInstance) applyData(data []*DataSegment) {
	for _, d := range data {
		if d.IsPassive() {
			continue
		}
		offset := evalConstI32(m.Globals, d.Offset)
		copy(m.Memory.Buffer[offset:], d.Init)
	}
}

func (m *ModuleInstance) applyElements(segments []*ElementSegment) error {
	for _, seg := range segments {
		if seg.Mode != ElementModeActive {
			continue
		}
		table := m.Tables[seg.TableIndex]
		offset := evalConstI32(m.Globals, seg.Offset)
		for i, fnIdx := range seg.Init {
			if int(offset)+i >= len(table.References) {
				return wasmruntime.ErrRuntimeInvalidTableAccess
			}
			table.References[int(offset)+i] = cell.RefID(fnIdx+1, 0)
		}
	}
	return nil
}

// evalConstI32 evaluates a constant expression expected to produce an i32,
// used for active data/element segment offsets. Constant-expression
// initializers may only reference already-resolved (imported) globals, per
// https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#constant-expressions.
func evalConstI32(globals []*GlobalInstance, c ConstantExpression) int32 {
	return evalConstAny(globals, c, api.ValueTypeI32).I32()
}

// evalConstAny evaluates any constant-expression initializer (global
// initializers, and active data/element segment offsets) into a cell.Cell.
// A global.get operand may only reference an already-resolved (i.e.
// imported) global per the Wasm spec, which Store.Instantiate's ordering
// guarantees: imported globals are appended to ModuleInstance.Globals
// before any locally defined global's initializer runs.
func evalConstAny(globals []*GlobalInstance, c ConstantExpression, vt ValueType) cell.Cell {
	switch c.Opcode {
	case wasmir.OpConstI32:
		return cell.FromI32(c.I32)
	case wasmir.OpConstI64:
		return cell.FromI64(c.I64)
	case wasmir.OpConstF32:
		return cell.FromF32(c.F32)
	case wasmir.OpConstF64:
		return cell.FromF64(c.F64)
	case wasmir.OpGlobalGet:
		return globals[c.Global].Val
	case wasmir.OpRefNull:
		return cell.Zero
	default:
		return cell.Zero
	}
}
