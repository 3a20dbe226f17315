package wazero

import (
	"context"
	"fmt"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/experimental"
	"github.com/wazeroir/regwasm/internal/engine/interpreter"
	"github.com/wazeroir/regwasm/internal/wasm"
)

// Runtime allows embedding of WebAssembly modules.
//
// The below is an example of basic initialization:
//
//	ctx := context.Background()
//	r := wazero.NewRuntime(ctx)
//	defer r.Close(ctx) // This closes everything this Runtime created.
//
//	compiled, _ := r.CompileModule(ctx, module)
//	module, _ := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
//	results, _ := module.ExportedFunction("add").Call(ctx, 1, 2)
type Runtime interface {
	// NewHostModuleBuilder returns a builder for host functions, e.g. "env",
	// that can be imported by CompileModule-d modules.
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// CompileModule checks an already decoded and validated module against this Runtime's configured limits,
	// preparing it for instantiation (InstantiateModule). It does not decode or validate the module itself.
	//
	// Note: The resulting CompiledModule can be instantiated any number of times.
	CompileModule(ctx context.Context, module *Module) (*CompiledModule, error)

	// InstantiateModule instantiates the module namespace, resolving its imports against already instantiated
	// modules in this Runtime, and runs any start function.
	//
	// # Errors
	//
	// This returns an error if the moduleConfig is invalid, the module's imports cannot be resolved, or a start
	// function traps.
	InstantiateModule(ctx context.Context, compiled *CompiledModule, mConfig *ModuleConfig) (api.Module, error)

	// Module returns exports from an instantiated module in this Runtime, or nil if there aren't any.
	Module(moduleName string) api.Module

	// Close closes every module instantiated in this Runtime, and any resources it owns. Has the same effect as
	// calling Close on every api.Module this Runtime returned.
	//
	// Note: Every module is closed even if one of their Close calls fails; the first such error is returned.
	Close(ctx context.Context) error

	// Closer closes this runtime. Note: Modules are closed in no defined order.
	api.Closer
}

// NewRuntime returns a Runtime with interpreter-only defaults.
//
// Ex.
//
//	r := wazero.NewRuntime(ctx)
func NewRuntime(ctx context.Context) Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a Runtime with the given configuration.
func NewRuntimeWithConfig(ctx context.Context, rConfig *RuntimeConfig) Runtime {
	if rConfig == nil {
		rConfig = NewRuntimeConfig()
	}
	store := wasm.NewStore(rConfig.enabledFeatures, interpreter.NewEngine(rConfig.enabledFeatures))
	return &runtime{
		store:                  store,
		enabledFeatures:        rConfig.enabledFeatures,
		memoryLimitPages:       rConfig.memoryMaxPages,
		memoryCapacityFromMax:  rConfig.memoryCapacityFromMax,
		fuel:                   rConfig.fuel,
		limiter:                rConfig.limiter,
		callStackLimit:         rConfig.callStackLimit,
		maxTableElements:       rConfig.maxTableElements,
		maxGlobals:             rConfig.maxGlobals,
		maxTables:              rConfig.maxTables,
		maxMemories:            rConfig.maxMemories,
		maxFunctions:           rConfig.maxFunctions,
		maxElementSegments:     rConfig.maxElementSegments,
		maxDataSegments:        rConfig.maxDataSegments,
		maxFunctionParams:      rConfig.maxFunctionParams,
		maxFunctionResults:     rConfig.maxFunctionResults,
		minAvgBytesPerFunction: rConfig.minAvgBytesPerFunction,
		maxStackHeight:         rConfig.maxStackHeight,
		ctx:                    rConfig.ctx,
	}
}

// runtime implements Runtime.
type runtime struct {
	store                 *wasm.Store
	enabledFeatures       wasm.Features
	memoryLimitPages      uint32
	memoryCapacityFromMax bool

	fuel           *int64
	limiter        api.ResourceLimiter
	callStackLimit int

	maxTableElements       uint32
	maxGlobals             int
	maxTables              int
	maxMemories            int
	maxFunctions           int
	maxElementSegments     int
	maxDataSegments        int
	maxFunctionParams      int
	maxFunctionResults     int
	minAvgBytesPerFunction int
	maxStackHeight         int

	ctx context.Context
}

// CompileModule implements Runtime.CompileModule.
//
// This engine has no binary/text-format decoder: module is assumed already decoded and validated by its caller
// (see Module's doc comment). CompileModule's remaining job is to apply the checks that depend on runtime
// configuration rather than the module alone: the memory max ceiling configured via
// RuntimeConfig.WithMemoryMaxPages and the structural limits checkResourceLimits applies.
func (r *runtime) CompileModule(_ context.Context, module *Module) (*CompiledModule, error) {
	if module == nil {
		return nil, fmt.Errorf("module is nil")
	}
	if module.MemorySection != nil && module.MemorySection.Max > r.memoryLimitPages {
		return nil, fmt.Errorf("memory max pages (%d) exceeds configured limit (%d)", module.MemorySection.Max, r.memoryLimitPages)
	}
	if module.MemorySection != nil && module.MemorySection.Max == 0 {
		module.MemorySection.Max = r.memoryLimitPages
	}
	if err := r.checkResourceLimits(module); err != nil {
		return nil, err
	}
	if r.maxTableElements > 0 {
		for _, t := range module.TableSection {
			if t.Max == nil {
				limit := r.maxTableElements
				t.Max = &limit
			}
		}
	}
	module.MaxStackHeight = uint32(r.maxStackHeight)
	module.MemoryCapacityFromMax = r.memoryCapacityFromMax
	return &CompiledModule{module: module}, nil
}

// checkResourceLimits applies every structural ceiling configured via
// RuntimeConfig's With* resource-limit methods against module's decoded
// sections. Each is skipped (zero value) unless explicitly configured.
func (r *runtime) checkResourceLimits(module *Module) error {
	for _, t := range module.TableSection {
		if r.maxTableElements > 0 && t.Min > r.maxTableElements {
			return fmt.Errorf("table min size (%d) exceeds configured limit (%d)", t.Min, r.maxTableElements)
		}
		if r.maxTableElements > 0 && t.Max != nil && *t.Max > r.maxTableElements {
			return fmt.Errorf("table max size (%d) exceeds configured limit (%d)", *t.Max, r.maxTableElements)
		}
	}
	var importedGlobals, importedTables, importedMemories, importedFuncs int
	for _, i := range module.ImportSection {
		switch i.Type {
		case api.ExternTypeGlobal:
			importedGlobals++
		case api.ExternTypeTable:
			importedTables++
		case api.ExternTypeMemory:
			importedMemories++
		case api.ExternTypeFunc:
			importedFuncs++
		}
	}
	if r.maxGlobals > 0 && importedGlobals+len(module.GlobalSection) > r.maxGlobals {
		return fmt.Errorf("module declares %d globals, exceeding configured limit (%d)", importedGlobals+len(module.GlobalSection), r.maxGlobals)
	}
	if r.maxTables > 0 && importedTables+len(module.TableSection) > r.maxTables {
		return fmt.Errorf("module declares %d tables, exceeding configured limit (%d)", importedTables+len(module.TableSection), r.maxTables)
	}
	memories := importedMemories
	if module.MemorySection != nil {
		memories++
	}
	if r.maxMemories > 0 && memories > r.maxMemories {
		return fmt.Errorf("module declares %d memories, exceeding configured limit (%d)", memories, r.maxMemories)
	}
	if r.maxFunctions > 0 && importedFuncs+len(module.FunctionSection) > r.maxFunctions {
		return fmt.Errorf("module declares %d functions, exceeding configured limit (%d)", importedFuncs+len(module.FunctionSection), r.maxFunctions)
	}
	if r.maxElementSegments > 0 && len(module.ElementSection) > r.maxElementSegments {
		return fmt.Errorf("module declares %d element segments, exceeding configured limit (%d)", len(module.ElementSection), r.maxElementSegments)
	}
	if r.maxDataSegments > 0 && len(module.DataSection) > r.maxDataSegments {
		return fmt.Errorf("module declares %d data segments, exceeding configured limit (%d)", len(module.DataSection), r.maxDataSegments)
	}
	if r.maxFunctionParams > 0 || r.maxFunctionResults > 0 {
		for i, ft := range module.TypeSection {
			if r.maxFunctionParams > 0 && len(ft.Params) > r.maxFunctionParams {
				return fmt.Errorf("type[%d] has %d params, exceeding configured limit (%d)", i, len(ft.Params), r.maxFunctionParams)
			}
			if r.maxFunctionResults > 0 && len(ft.Results) > r.maxFunctionResults {
				return fmt.Errorf("type[%d] has %d results, exceeding configured limit (%d)", i, len(ft.Results), r.maxFunctionResults)
			}
		}
	}
	if r.minAvgBytesPerFunction > 0 && len(module.FunctionSection) > 0 {
		total := 0
		for _, def := range module.FunctionSection {
			total += len(def.Body)
		}
		if avg := total / len(module.FunctionSection); avg < r.minAvgBytesPerFunction {
			return fmt.Errorf("average function body size (%d operators) is below configured minimum (%d)", avg, r.minAvgBytesPerFunction)
		}
	}
	return nil
}

// InstantiateModule implements Runtime.InstantiateModule.
func (r *runtime) InstantiateModule(ctx context.Context, compiled *CompiledModule, mConfig *ModuleConfig) (api.Module, error) {
	if ctx == nil {
		ctx = r.ctx
	}
	if compiled == nil {
		return nil, fmt.Errorf("compiled module is nil")
	}
	if mConfig == nil {
		mConfig = NewModuleConfig()
	}

	sys, err := mConfig.toSysContext()
	if err != nil {
		return nil, err
	}

	module := mConfig.replaceImports(compiled.module)

	ctx = r.withRuntimeConfig(ctx)

	var listenerFactory experimental.FunctionListenerFactory
	if lf, ok := ctx.Value(experimental.FunctionListenerFactoryKey{}).(experimental.FunctionListenerFactory); ok {
		listenerFactory = lf
	}

	callCtx, err := r.store.Instantiate(ctx, module, mConfig.name, sys, listenerFactory, false)
	if err != nil {
		return nil, err
	}

	for _, fn := range mConfig.startFunctions {
		start := callCtx.Module().Exports[fn]
		if start == nil || start.Type != api.ExternTypeFunc {
			continue
		}
		if _, err := start.Function.Module.Engine.Call(ctx, callCtx, start.Function); err != nil {
			return nil, fmt.Errorf("start function %q failed: %w", fn, err)
		}
	}

	return callCtx, nil
}

// withRuntimeConfig attaches this Runtime's fuel/resource-limiter/call-stack-limit configuration to ctx, the same
// context-key mechanism internal/engine/interpreter uses for per-call overrides.
func (r *runtime) withRuntimeConfig(ctx context.Context) context.Context {
	if r.fuel != nil {
		ctx = interpreter.WithFuel(ctx, *r.fuel)
	}
	if r.limiter != nil {
		ctx = interpreter.WithResourceLimiter(ctx, r.limiter)
	}
	if r.callStackLimit > 0 {
		ctx = interpreter.WithCallStackLimit(ctx, r.callStackLimit)
	}
	return ctx
}

// Module implements Runtime.Module.
func (r *runtime) Module(moduleName string) api.Module {
	return r.store.Module(moduleName)
}

// Close implements Runtime.Close.
func (r *runtime) Close(ctx context.Context) error {
	return r.CloseWithExitCode(ctx, 0)
}

// CloseWithExitCode mirrors every instantiated module's Close, but the Runtime interface only promises Close: this
// method is not part of the Runtime interface, since nothing in Runtime exposes an exit code at the runtime level,
// only per-module via api.Module.CloseWithExitCode.
func (r *runtime) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var firstErr error
	for _, name := range r.store.ModuleNames() {
		if m := r.store.Module(name); m != nil {
			if err := m.CloseWithExitCode(ctx, exitCode); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
