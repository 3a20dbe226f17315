package wasm

import "context"

// Engine is the store-wide compilation/execution backend. Defined here,
// rather than imported from internal/engine/interpreter, so that wasm and
// the engine package can depend on each other in exactly one direction
// (engine imports wasm for its types; wasm only knows this interface).
type Engine interface {
	// NewModuleEngine compiles (or schedules lazy compilation of) every
	// Wasm-defined function in module and returns the per-module call
	// surface for it.
	NewModuleEngine(name string, module *Module, importedFunctions, functions []*FunctionInstance) (ModuleEngine, error)
}

// ModuleEngine is the per-ModuleInstance call surface an Engine produces.
type ModuleEngine interface {
	// Call invokes f (which must belong to the module this ModuleEngine was
	// built for, or be reachable through it via import) with params encoded
	// per f.Type.Params, returning results encoded per f.Type.Results.
	Call(ctx context.Context, callCtx *CallContext, f *FunctionInstance, params ...uint64) ([]uint64, error)
}
