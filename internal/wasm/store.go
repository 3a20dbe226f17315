package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/experimental"
	"github.com/wazeroir/regwasm/internal/arena"
	"github.com/wazeroir/regwasm/internal/code"
	"github.com/wazeroir/regwasm/internal/translator"
)

// maximumFunctionTypes bounds the number of distinct function signatures a
// Store will deduplicate, a fixed ceiling (2^27) rather than growing
// unbounded under adversarial input.
const maximumFunctionTypes = 1 << 27

// Store is the runtime home of every instantiated module: it resolves
// cross-module imports by name, deduplicates function types into
// FunctionTypeIDs for O(1) call_indirect checks, and enforces that a given
// module name is instantiated at most once at a time.
//
// Store itself is safe for concurrent Instantiate/Module calls; it does not
// make the ModuleInstances it returns safe for concurrent calls beyond what
// their own engine-level call machinery guarantees.
type Store struct {
	EnabledFeatures Features

	// Engine compiles and executes every module instantiated into this
	// Store. Set once at construction; internal/engine/interpreter supplies
	// the concrete implementation.
	Engine Engine

	moduleNames map[string]struct{}
	modules     map[string]*ModuleInstance
	typeIDs     map[string]FunctionTypeID
	types       *arena.Arena[*FunctionType]

	mux sync.RWMutex
}

func NewStore(features Features, engine Engine) *Store {
	return &Store{
		EnabledFeatures: features,
		Engine:          engine,
		moduleNames:     map[string]struct{}{},
		modules:         map[string]*ModuleInstance{},
		typeIDs:         map[string]FunctionTypeID{},
		types:           arena.NewArena[*FunctionType](16),
	}
}

// checkOwns reports an error if fn's defining module was not instantiated by
// s. Every call path that reaches a FunctionInstance from a CallContext
// should hold this invariant structurally (resolveImports only ever pulls
// from s.modules, never across Store instances), but nothing upstream of
// the engine enforces it type-wise, so this is the actual cross-store
// handle-misuse check spec's Store component requires: a FunctionInstance
// spliced in from a different Store's ModuleInstance (which no code in this
// tree does, but a caller of the internal/wasm API directly could) is
// rejected here rather than silently executed against the wrong store.
func (s *Store) checkOwns(fn *FunctionInstance) error {
	if fn.Module.Store != s {
		return fmt.Errorf("wasm: function %q belongs to a different store", fn.DebugName())
	}
	return nil
}

// FunctionTypeAt returns the FunctionType a prior getFunctionTypeID call
// deduplicated to id. Panics if id was never issued by this Store.
func (s *Store) FunctionTypeAt(id FunctionTypeID) *FunctionType {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return *s.types.Get(arena.ID(id + 1))
}

// Module returns the api.Module view of an already-instantiated module, or
// nil if no module of that name has been instantiated.
func (s *Store) Module(moduleName string) api.Module {
	if m := s.module(moduleName); m != nil {
		return m.CallCtx
	}
	return nil
}

func (s *Store) module(moduleName string) *ModuleInstance {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.modules[moduleName]
}

// ModuleNames returns the name of every currently instantiated module, used
// by Runtime.Close to tear all of them down.
func (s *Store) ModuleNames() []string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	return names
}

// Instantiate builds a ModuleInstance for module under name: resolves
// imports, allocates globals/memory/tables, lazily or eagerly translates
// every Wasm-defined function via internal/translator, runs active
// data/element segments, and finally invokes the start function if present.
func (s *Store) Instantiate(
	ctx context.Context,
	module *Module,
	name string,
	sys *SysContext,
	listenerFactory experimental.FunctionListenerFactory,
	eagerCompile bool,
) (*CallContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.requireModuleName(name); err != nil {
		return nil, err
	}

	typeIDs, err := s.getFunctionTypeIDs(module.TypeSection)
	if err != nil {
		s.deleteModule(name)
		return nil, err
	}

	importedFns, importedGlobals, importedTables, importedMemory, err := s.resolveImports(module)
	if err != nil {
		s.deleteModule(name)
		return nil, err
	}

	m := &ModuleInstance{Name: name, Store: s, Types: module.TypeSection, TypeIDs: typeIDs}
	m.Functions = append(m.Functions, importedFns...)
	m.Globals = append(m.Globals, importedGlobals...)

	for _, g := range module.GlobalSection {
		m.Globals = append(m.Globals, &GlobalInstance{Type: g.Type, Val: evalConstAny(m.Globals, g.Init, g.Type.ValType)})
	}

	m.Tables = append(m.Tables, importedTables...)
	for _, t := range module.TableSection {
		m.Tables = append(m.Tables, NewTableInstance(t))
	}

	if importedMemory != nil {
		m.Memory = importedMemory
	} else if module.MemorySection != nil {
		m.Memory = NewMemoryInstance(module.MemorySection, module.MemoryCapacityFromMax)
	}

	modImports := newImportCounts(module)
	for i, def := range module.FunctionSection {
		fn := &FunctionInstance{
			debugName:   def.DebugName,
			Type:        module.TypeSection[def.TypeIndex],
			TypeID:      typeIDs[def.TypeIndex],
			Module:      m,
			Idx:         Index(modImports.funcs + i),
			name:        def.DebugName,
			moduleName:  name,
			exportNames: def.ExportNames,
		}
		if listenerFactory != nil {
			fn.FunctionListener = listenerFactory.NewListener(fn)
		}
		if def.IsHostFunction() {
			fn.HostFn = def.GoFunc
		} else {
			src := translator.Input{
				Module: &translator.Module{
					Types:          funcTypesToTranslatorTypes(module.TypeSection),
					FuelMetered:    module.FuelMetered,
					MaxStackHeight: module.MaxStackHeight,
				},
				Ops:         def.Body,
				ParamTypes:  NumTypesOf(fn.Type.Params),
				LocalTypes:  NumTypesOf(def.LocalTypes),
				ResultTypes: NumTypesOf(fn.Type.Results),
			}
			if eagerCompile {
				body, terr := src.Translate()
				if terr != nil {
					s.deleteModule(name)
					return nil, fmt.Errorf("compiling %s: %w", fn.debugName, terr)
				}
				fn.Body = code.NewEager(body)
			} else {
				fn.Body = code.NewLazy(src)
			}
		}
		m.Functions = append(m.Functions, fn)
	}

	m.buildExports(module.ExportSection)
	m.buildDataInstances(module.DataSection)

	if err := m.validateData(module.DataSection); err != nil {
		s.deleteModule(name)
		return nil, err
	}
	m.buildElementInstances(module.ElementSection)
	if err := m.applyElements(module.ElementSection); err != nil {
		s.deleteModule(name)
		return nil, err
	}
	m.applyData(module.DataSection)

	m.CallCtx = NewCallContext(s, m, sys)

	m.Engine, err = s.Engine.NewModuleEngine(name, module, importedFns, m.Functions)
	if err != nil {
		s.deleteModule(name)
		return nil, fmt.Errorf("creating module engine: %w", err)
	}

	if module.StartSection != nil {
		f := m.Functions[*module.StartSection]
		if _, err := m.Engine.Call(ctx, m.CallCtx, f); err != nil {
			s.deleteModule(name)
			return nil, fmt.Errorf("start function failed: %w", err)
		}
	}

	s.addModule(m)
	return m.CallCtx, nil
}

type importCounts struct{ funcs, globals, tables, memories int }

func newImportCounts(m *Module) importCounts {
	var c importCounts
	for _, i := range m.ImportSection {
		switch i.Type {
		case api.ExternTypeFunc:
			c.funcs++
		case api.ExternTypeGlobal:
			c.globals++
		case api.ExternTypeTable:
			c.tables++
		case api.ExternTypeMemory:
			c.memories++
		}
	}
	return c
}

func (s *Store) deleteModule(name string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.modules, name)
	delete(s.moduleNames, name)
}

func (s *Store) requireModuleName(name string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.moduleNames[name]; ok {
		return fmt.Errorf("module %s has already been instantiated", name)
	}
	s.moduleNames[name] = struct{}{}
	return nil
}

func (s *Store) addModule(m *ModuleInstance) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.modules[m.Name] = m
}

func (s *Store) resolveImports(module *Module) (
	fns []*FunctionInstance, globals []*GlobalInstance, tables []*TableInstance, memory *MemoryInstance, err error,
) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for idx, i := range module.ImportSection {
		m, ok := s.modules[i.Module]
		if !ok {
			err = fmt.Errorf("module[%s] not instantiated", i.Module)
			return
		}
		var exp *ExportInstance
		exp, err = m.getExport(i.Name, i.Type)
		if err != nil {
			return
		}
		switch i.Type {
		case api.ExternTypeFunc:
			if int(i.DescFunc) >= len(module.TypeSection) {
				err = errorInvalidImport(i, idx, fmt.Errorf("function type out of range"))
				return
			}
			expected := module.TypeSection[i.DescFunc]
			actual := exp.Function.Type
			if !expected.EqualsSignature(actual.Params, actual.Results) {
				err = errorInvalidImport(i, idx, fmt.Errorf("signature mismatch: %s != %s", expected, actual))
				return
			}
			fns = append(fns, exp.Function)
		case api.ExternTypeTable:
			if i.DescTable.Min > uint32(len(exp.Table.References)) {
				err = errorInvalidImport(i, idx, fmt.Errorf("minimum size mismatch"))
				return
			}
			tables = append(tables, exp.Table)
		case api.ExternTypeMemory:
			if i.DescMem.Min > exp.Memory.Min {
				err = errorInvalidImport(i, idx, fmt.Errorf("minimum size mismatch"))
				return
			}
			memory = exp.Memory
		case api.ExternTypeGlobal:
			if i.DescGlobal.Mutable != exp.Global.Type.Mutable {
				err = errorInvalidImport(i, idx, fmt.Errorf("mutability mismatch"))
				return
			}
			globals = append(globals, exp.Global)
		}
	}
	return
}

func (s *Store) getFunctionTypeIDs(ts []*FunctionType) ([]FunctionTypeID, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := make([]FunctionTypeID, len(ts))
	for i, t := range ts {
		id, err := s.getFunctionTypeID(t)
		if err != nil {
			return nil, err
		}
		ret[i] = id
	}
	return ret, nil
}

func (s *Store) getFunctionTypeID(t *FunctionType) (FunctionTypeID, error) {
	key := t.String()
	id, ok := s.typeIDs[key]
	if !ok {
		if uint32(len(s.typeIDs)) >= maximumFunctionTypes {
			return 0, fmt.Errorf("too many function types in a store")
		}
		// types is the arena backing FunctionTypeAt; its IDs start at 1, so
		// shift down by one to keep FunctionTypeID's existing zero-based
		// numbering (callers already compare IDs for equality, never against
		// a reserved zero value).
		id = FunctionTypeID(s.types.Alloc(t) - 1)
		s.typeIDs[key] = id
	}
	return id, nil
}

func funcTypesToTranslatorTypes(ts []*FunctionType) []translator.FuncType {
	out := make([]translator.FuncType, len(ts))
	for i, t := range ts {
		out[i] = translator.FuncType{Params: NumTypesOf(t.Params), Results: NumTypesOf(t.Results)}
	}
	return out
}
