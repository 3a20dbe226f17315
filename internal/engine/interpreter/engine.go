// Package interpreter is the concrete wasm.Engine/wasm.ModuleEngine
// implementation: a register-machine dispatch loop (an explicit frame stack
// walked by one goroutine, traps propagated by panic/recover at the call
// boundary) built around internal/code's compiled Body and internal/stack's
// two flat stacks (register-windowed values, call frames) rather than a
// classic stack-machine operand stack.
package interpreter

import (
	"context"
	"fmt"

	"github.com/wazeroir/regwasm/internal/wasm"
)

// engine is the store-wide wasm.Engine: stateless beyond the feature set it
// was constructed with, since all per-module state lives in moduleEngine and
// all per-call state lives in callEngine.
type engine struct {
	enabledFeatures wasm.Features
}

// NewEngine returns the interpreter's wasm.Engine, wired into a Store via
// wasm.NewStore(features, interpreter.NewEngine(features)).
func NewEngine(enabledFeatures wasm.Features) wasm.Engine {
	return &engine{enabledFeatures: enabledFeatures}
}

// moduleEngine is the per-module call surface: nothing more than the
// module's own function table, since every FunctionInstance already carries
// its compiled code.Func (or host *reflect.Value) and its owning
// *wasm.ModuleInstance for memory/table/global access.
type moduleEngine struct {
	name      string
	functions []*wasm.FunctionInstance
}

func (e *engine) NewModuleEngine(name string, module *wasm.Module, importedFunctions, functions []*wasm.FunctionInstance) (wasm.ModuleEngine, error) {
	return &moduleEngine{name: name, functions: functions}, nil
}

// Call implements wasm.ModuleEngine. It encodes params into the callee's
// register window, runs a fresh callEngine's dispatch loop to completion (or
// until a fuel trap, see runToCompletion), and decodes the register window's
// result span back into the api.Function.Call return shape.
func (me *moduleEngine) Call(ctx context.Context, callCtx *wasm.CallContext, f *wasm.FunctionInstance, params ...uint64) ([]uint64, error) {
	if len(params) != len(f.Type.Params) {
		return nil, fmt.Errorf("expected %d params, but was %d", len(f.Type.Params), len(params))
	}
	ce := newCallEngine(ctx, callCtx)
	return ce.callFromHost(f, params)
}
