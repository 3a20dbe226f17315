// Package wasm holds the store-side representation of a decoded module and
// its instantiated runtime objects: function/global/memory/table instances,
// the store that owns them, and import resolution between modules. Parsing
// a Wasm binary or text module into the Module type below is out of scope
// for this engine (see DESIGN.md) - Module is the contract an external
// decoder/validator is expected to produce.
package wasm

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/wasmir"
)

type ValueType = api.ValueType
type ExternType = api.ExternType

// Index is a raw index into one of a module's index spaces (types,
// functions, tables, memories, globals).
type Index = uint32

// FunctionType is a function signature, deduplicated within a Store by its
// String() so that call_indirect can type-check in O(1).
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

func (t *FunctionType) String() string {
	var sb strings.Builder
	for _, p := range t.Params {
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(p))
	}
	sb.WriteString(" ->")
	for _, r := range t.Results {
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(r))
	}
	return sb.String()
}

func (t *FunctionType) EqualsSignature(params, results []ValueType) bool {
	return sliceEq(t.Params, params) && sliceEq(t.Results, results)
}

func sliceEq(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NumTypesOf converts a Wasm value-type list into the register IR's numeric
// type list, dropping reference types to TypeI64 (references are encoded as
// cell.Cell-sized arena-ref payloads, same width as i64).
func NumTypesOf(vts []ValueType) []ir.NumType {
	out := make([]ir.NumType, len(vts))
	for i, vt := range vts {
		out[i] = NumTypeOf(vt)
	}
	return out
}

func NumTypeOf(vt ValueType) ir.NumType {
	switch vt {
	case api.ValueTypeI32:
		return ir.TypeI32
	case api.ValueTypeF32:
		return ir.TypeF32
	case api.ValueTypeF64:
		return ir.TypeF64
	default: // I64, Externref, Funcref - all stored as a 64-bit cell
		return ir.TypeI64
	}
}

// FunctionTypeID is a store-wide, dedup'd identifier for a FunctionType,
// used to type-check call_indirect in O(1) instead of comparing signatures.
type FunctionTypeID uint32

// FunctionDef is one module-local function definition prior to
// instantiation: either a Wasm-defined function body (as a decoded operator
// stream, ready for the translator) or a host function implemented in Go.
type FunctionDef struct {
	// TypeIndex is this function's index into the module's type section.
	TypeIndex Index

	// Body/LocalTypes are set for a Wasm-defined function.
	Body       []wasmir.Operator
	LocalTypes []ValueType

	// GoFunc is set for a host function; mutually exclusive with Body. Kept
	// as a raw *reflect.Value rather than introducing a distinct function
	// type: the store/executor fast path for a zero-allocation raw-stack
	// host call depends on reflect.Value.Call directly.
	GoFunc *reflect.Value

	DebugName   string
	ExportNames []string
}

func (f *FunctionDef) IsHostFunction() bool { return f.GoFunc != nil }

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ConstantExpression is a constant-expression initializer (i32.const,
// i64.const, f32.const, f64.const, or global.get of an imported global),
// used for global initializers and active element/data segment offsets.
type ConstantExpression struct {
	Opcode wasmir.Op
	I32    int32
	I64    int64
	F32    float32
	F64    float64
	Global Index // valid when Opcode == wasmir.OpGlobalGet
}

// GlobalDef is a module-local global definition prior to instantiation.
type GlobalDef struct {
	Type *GlobalType
	Init ConstantExpression
}

// TableType describes a table's element type and size bounds.
type TableType struct {
	Min uint32
	Max *uint32
}

// MemoryType describes a memory's size bounds, in 64KiB pages.
type MemoryType struct {
	Min uint32
	Max uint32
}

// ElementMode distinguishes how an element segment is applied.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// ElementSegment initializes a range of a table, or stands as a passive
// pool of function references for table.init.
type ElementSegment struct {
	TableIndex Index
	Mode       ElementMode
	Offset     ConstantExpression
	Init       []Index // function indices (funcref only)
}

// DataMode distinguishes how a data segment is applied.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment initializes a range of linear memory, or stands as a passive
// byte pool for memory.init.
type DataSegment struct {
	Mode   DataMode
	Offset ConstantExpression
	Init   []byte
}

// Import describes one imported function/table/memory/global, resolved by
// (Module, Name) against an already-instantiated module in the Store.
type Import struct {
	Type       ExternType
	Module     string
	Name       string
	DescFunc   Index // type index, when Type == ExternTypeFunc
	DescTable  TableType
	DescMem    MemoryType
	DescGlobal GlobalType
}

// Export describes one exported function/table/memory/global by its
// module-local index.
type Export struct {
	Type  ExternType
	Name  string
	Index Index
}

// Module is a fully decoded and validated module definition, ready for
// instantiation: the contract this engine expects from an external
// binary/text-format front end (out of scope here, see DESIGN.md).
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*Import
	FunctionSection []*FunctionDef
	TableSection    []*TableType
	MemorySection   *MemoryType
	GlobalSection   []*GlobalDef
	ExportSection   []*Export
	StartSection    *Index
	ElementSection  []*ElementSegment
	DataSection     []*DataSegment

	// FuelMetered enables fuel-consumption instruction insertion during
	// translation of this module's functions.
	FuelMetered bool

	// MaxStackHeight bounds the register-stack height any one function's
	// translation may require (RuntimeConfig.WithMaxStackHeight). Zero
	// means no ceiling beyond ir.Reg's own range.
	MaxStackHeight uint32

	// MemoryCapacityFromMax preallocates MemorySection.Max pages up front
	// instead of growing the buffer lazily on memory.grow
	// (RuntimeConfig.WithMemoryCapacityFromMax). This keeps a prior
	// api.Memory.Read view stable across a later grow, at the cost of
	// committing the full max up front.
	MemoryCapacityFromMax bool
}

func (m *Module) importCount(t ExternType) (n int) {
	for _, i := range m.ImportSection {
		if i.Type == t {
			n++
		}
	}
	return
}

func (d *DataSegment) IsPassive() bool { return d.Mode == DataModePassive }

func (e *ElementSegment) IsPassive() bool { return e.Mode == ElementModePassive }

func errorInvalidImport(i *Import, idx int, err error) error {
	return fmt.Errorf("import[%d] %s[%s.%s]: %w", idx, api.ExternTypeName(i.Type), i.Module, i.Name, err)
}
