package wazero

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/engine/interpreter"
	"github.com/wazeroir/regwasm/internal/wasm"
)

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig.
//
// There is only one engine: internal/engine/interpreter. JIT/AOT engine
// selection (a build-constrained config_supported.go/config_unsupported.go
// pair) is dropped entirely - see DESIGN.md.
//
// The WithFeatureXxx methods record feature flags, but neither the store nor the interpreter consults them: every
// instruction the engine implements is accepted whichever flags are set.
type RuntimeConfig struct {
	enabledFeatures wasm.Features
	ctx             context.Context
	memoryMaxPages  uint32

	// memoryCapacityFromMax preallocates a memory's max pages instead of
	// growing lazily; see WithMemoryCapacityFromMax.
	memoryCapacityFromMax bool

	fuel           *int64
	limiter        api.ResourceLimiter
	callStackLimit int

	// The remaining limits are all zero (disabled) by default, same as
	// callStackLimit: each only rejects a module once an explicit With*
	// ceiling below is configured.
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
}

// NewRuntimeConfig returns a RuntimeConfig using WebAssembly 1.0 (20191205) features and the interpreter engine.
func NewRuntimeConfig() *RuntimeConfig {
	return engineLessConfig.clone()
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &RuntimeConfig{
	enabledFeatures: wasm.Features20191205,
	ctx:             context.Background(),
	memoryMaxPages:  wasm.MemoryMaxPages,
}

// clone ensures all fields are copied even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	return &RuntimeConfig{
		enabledFeatures:        c.enabledFeatures,
		ctx:                    c.ctx,
		memoryMaxPages:         c.memoryMaxPages,
		memoryCapacityFromMax:  c.memoryCapacityFromMax,
		fuel:                   c.fuel,
		limiter:                c.limiter,
		callStackLimit:         c.callStackLimit,
		maxTableElements:       c.maxTableElements,
		maxGlobals:             c.maxGlobals,
		maxTables:              c.maxTables,
		maxMemories:            c.maxMemories,
		maxFunctions:           c.maxFunctions,
		maxElementSegments:     c.maxElementSegments,
		maxDataSegments:        c.maxDataSegments,
		maxFunctionParams:      c.maxFunctionParams,
		maxFunctionResults:     c.maxFunctionResults,
		minAvgBytesPerFunction: c.minAvgBytesPerFunction,
		maxStackHeight:         c.maxStackHeight,
	}
}

// newEngine builds the (only) engine this RuntimeConfig can select: the register-machine interpreter.
func (c *RuntimeConfig) newEngine() wasm.Engine { return interpreter.NewEngine(c.enabledFeatures) }

// WithContext sets the default context used to initialize the module. Defaults to context.Background if nil.
//
// Notes:
// * Runtime.InstantiateModule uses this context when it is passed a nil one, including to invoke start functions.
// * api.Function calls do not use it: they run with the context their caller passes.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#start-function%E2%91%A0
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithMemoryMaxPages reduces the maximum number of pages a module can define from 65536 pages (4GiB) to a lower value.
//
// Notes:
// * If a module defines no memory max limit, Runtime.CompileModule sets max to this value.
// * If a module defines a memory max larger than this amount, it will fail to compile (Runtime.CompileModule).
// * Any "memory.grow" instruction that results in a larger value than this fails at runtime: it returns -1.
// * Zero is a valid value: a declared memory max above zero fails to compile, and an undeclared max cannot grow.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#grow-mem
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-types%E2%91%A0
func (c *RuntimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}

// WithMemoryCapacityFromMax reserves a memory's max pages as buffer capacity at instantiation instead of growing the
// buffer lazily on each "memory.grow". This trades up-front allocation for a stable api.Memory.Read view: without
// this, a view returned before a grow may be backed by a different array afterward, same as an append whose capacity
// was exceeded. Defaults to false.
func (c *RuntimeConfig) WithMemoryCapacityFromMax(memoryCapacityFromMax bool) *RuntimeConfig {
	ret := c.clone()
	ret.memoryCapacityFromMax = memoryCapacityFromMax
	return ret
}

// WithFuel sets a budget of fuel units a call gets before it traps with TrapCodeOutOfFuel, consumed only by
// functions compiled from a module built with fuel metering enabled. A non-positive value (the default) disables
// fuel metering. The budget is applied to the start functions Runtime.InstantiateModule runs; calls made later
// through an api.Function do not receive it.
func (c *RuntimeConfig) WithFuel(fuel int64) *RuntimeConfig {
	ret := c.clone()
	if fuel > 0 {
		ret.fuel = &fuel
	} else {
		ret.fuel = nil
	}
	return ret
}

// WithResourceLimiter installs a callback consulted before each "memory.grow"/"table.grow", in addition to each
// instance's own declared Max, during the start functions Runtime.InstantiateModule runs; calls made later through
// an api.Function do not consult it. A nil limiter (the default) imposes no additional limit.
func (c *RuntimeConfig) WithResourceLimiter(limiter api.ResourceLimiter) *RuntimeConfig {
	ret := c.clone()
	ret.limiter = limiter
	return ret
}

// WithCallStackLimit bounds the depth of the Wasm call-frame stack a start function run by
// Runtime.InstantiateModule may reach before trapping with TrapCodeCallStackOverflow; calls made later through an
// api.Function do not receive it. Zero (the default) uses the engine's own built-in ceiling.
func (c *RuntimeConfig) WithCallStackLimit(limit int) *RuntimeConfig {
	ret := c.clone()
	ret.callStackLimit = limit
	return ret
}

// WithMaxTableElements bounds the maximum size any table in a compiled module may declare or grow to. Zero (the
// default) imposes no ceiling beyond each table's own declared max.
func (c *RuntimeConfig) WithMaxTableElements(max uint32) *RuntimeConfig {
	ret := c.clone()
	ret.maxTableElements = max
	return ret
}

// WithMaxGlobals bounds the number of globals (imported plus module-defined) a compiled module may declare. Zero
// (the default) imposes no ceiling.
func (c *RuntimeConfig) WithMaxGlobals(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxGlobals = max
	return ret
}

// WithMaxTables bounds the number of tables (imported plus module-defined) a compiled module may declare. Zero (the
// default) imposes no ceiling.
func (c *RuntimeConfig) WithMaxTables(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxTables = max
	return ret
}

// WithMaxMemories bounds the number of memories (imported plus module-defined) a compiled module may declare. Zero
// (the default) imposes no ceiling. Relevant once WithFeatureMultiMemory is enabled; without it a module has at
// most one memory regardless of this setting.
func (c *RuntimeConfig) WithMaxMemories(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxMemories = max
	return ret
}

// WithMaxFunctions bounds the number of functions (imported plus module-defined) a compiled module may declare.
// Zero (the default) imposes no ceiling.
func (c *RuntimeConfig) WithMaxFunctions(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxFunctions = max
	return ret
}

// WithMaxElementSegments bounds the number of element segments a compiled module may declare. Zero (the default)
// imposes no ceiling.
func (c *RuntimeConfig) WithMaxElementSegments(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxElementSegments = max
	return ret
}

// WithMaxDataSegments bounds the number of data segments a compiled module may declare. Zero (the default) imposes
// no ceiling.
func (c *RuntimeConfig) WithMaxDataSegments(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxDataSegments = max
	return ret
}

// WithMaxFunctionParams bounds the arity of any single function signature's parameter list in a compiled module's
// type section. Zero (the default) imposes no ceiling.
func (c *RuntimeConfig) WithMaxFunctionParams(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxFunctionParams = max
	return ret
}

// WithMaxFunctionResults bounds the arity of any single function signature's result list in a compiled module's
// type section. Zero (the default) imposes no ceiling; note this engine's single-result block-type model (see
// DESIGN.md) already limits block/loop/if results to one regardless of this setting.
func (c *RuntimeConfig) WithMaxFunctionResults(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxFunctionResults = max
	return ret
}

// WithMinAvgBytesPerFunction rejects a module whose function bodies are, on average, smaller than this many
// operators. This guards against an adversarial module padding its function count with many near-empty bodies to
// inflate the per-function bookkeeping this engine's lazy compilation (internal/code.Func) allocates, out of
// proportion to the module's actual code. Zero (the default) disables the check.
//
// Note: this engine has no binary/text decoder (see Module's doc comment), so "bytes" is approximated by the
// already-decoded operator count of each function body, not the original Wasm binary's byte length.
func (c *RuntimeConfig) WithMinAvgBytesPerFunction(min int) *RuntimeConfig {
	ret := c.clone()
	ret.minAvgBytesPerFunction = min
	return ret
}

// WithMaxStackHeight bounds the register-stack height (locals, parameters, and translator-allocated temporaries
// combined) any single function may require, enforced during translation (internal/translator). Zero (the default)
// leaves the only ceiling the one ir.Reg's int16 range already imposes - see DESIGN.md.
func (c *RuntimeConfig) WithMaxStackHeight(max int) *RuntimeConfig {
	ret := c.clone()
	ret.maxStackHeight = max
	return ret
}

// WithFinishedFeatures enables currently supported "finished" feature proposals. Use this to improve compatibility with
// tools that enable all features by default.
//
// Note: The features implied can vary and can lead to unpredictable behavior during updates.
// Note: This only includes "finished" features, but "finished" is not an official W3C term: it is possible that
// "finished" features do not make the next W3C recommended WebAssembly core specification.
// See https://github.com/WebAssembly/spec/tree/main/proposals
func (c *RuntimeConfig) WithFinishedFeatures() *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = wasm.FeaturesFinished
	return ret
}

// WithFeatureMutableGlobal allows globals to be mutable. This defaults to true as the feature was finished in
// WebAssembly 1.0 (20191205).
//
// The flag is recorded but not enforced (see RuntimeConfig): mutable globals are accepted, and can be set, whether
// it is true or false.
func (c *RuntimeConfig) WithFeatureMutableGlobal(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMutableGlobal, enabled)
	return ret
}

// WithFeatureSignExtensionOps enables sign extension instructions ("sign-extension-ops"). This defaults to false as the
// feature was not finished in WebAssembly 1.0 (20191205).
//
// This has the following effects:
// * Adds instructions `i32.extend8_s`, `i32.extend16_s`, `i64.extend8_s`, `i64.extend16_s` and `i64.extend32_s`
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/sign-extension-ops/Overview.md
func (c *RuntimeConfig) WithFeatureSignExtensionOps(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureSignExtensionOps, enabled)
	return ret
}

// WithFeatureMultiValue enables multiple values ("multi-value"). This defaults to false as the feature was not finished
// in WebAssembly 1.0 (20191205).
//
// This has the following effects:
// * Function (`func`) types allow more than one result
// * Block types (`block`, `loop` and `if`) can be arbitrary function types
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/multi-value/Overview.md
func (c *RuntimeConfig) WithFeatureMultiValue(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMultiValue, enabled)
	return ret
}

// WithFeatureBulkMemoryOperations enables "bulk-memory-operations": table.copy/init/fill and memory.copy/init/fill.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/bulk-memory-operations/Overview.md
func (c *RuntimeConfig) WithFeatureBulkMemoryOperations(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureBulkMemoryOperations, enabled)
	return ret
}

// WithFeatureNonTrappingFloatToIntConversion enables the saturating truncation instructions
// ("nontrapping-float-to-int-conversion"): *.trunc_sat_*.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/nontrapping-float-to-int-conversion/Overview.md
func (c *RuntimeConfig) WithFeatureNonTrappingFloatToIntConversion(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureNonTrappingFloatToIntConversion, enabled)
	return ret
}

// WithFeatureReferenceTypes enables externref and the table/element instructions it brings along ("reference-types").
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/reference-types/Overview.md
func (c *RuntimeConfig) WithFeatureReferenceTypes(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureReferenceTypes, enabled)
	return ret
}

// WithFeatureSIMD enables the 128-bit vector value type and its instructions ("simd").
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/simd/Overview.md
func (c *RuntimeConfig) WithFeatureSIMD(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureSIMD, enabled)
	return ret
}

// WithFeatureTailCall enables "return_call"/"return_call_indirect" ("tail-call"), letting a mutually recursive pair
// of functions run in constant call-stack depth.
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/tail-call/Overview.md
func (c *RuntimeConfig) WithFeatureTailCall(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureTailCall, enabled)
	return ret
}

// WithFeatureMultiMemory enables more than one memory per module ("multi-memory").
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/multi-memory/Overview.md
func (c *RuntimeConfig) WithFeatureMultiMemory(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMultiMemory, enabled)
	return ret
}

// WithFeatureExtendedConst enables arithmetic in global/element/data offset constant expressions ("extended-const").
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/extended-const/Overview.md
func (c *RuntimeConfig) WithFeatureExtendedConst(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureExtendedConst, enabled)
	return ret
}

// WithFeatureMemory64 enables 64-bit memory indices ("memory64").
//
// See https://github.com/WebAssembly/spec/blob/main/proposals/memory64/Overview.md
func (c *RuntimeConfig) WithFeatureMemory64(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureMemory64, enabled)
	return ret
}

// WithFeatureWideArithmetic enables the 64-to-128-bit widening integer arithmetic instructions ("wide-arithmetic").
//
// See https://github.com/WebAssembly/threads/blob/main/proposals/wide-arithmetic/Overview.md
func (c *RuntimeConfig) WithFeatureWideArithmetic(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = ret.enabledFeatures.Set(wasm.FeatureWideArithmetic, enabled)
	return ret
}

// CompiledModule is a WebAssembly module ready to be instantiated (Runtime.InstantiateModule) as an api.Module.
//
// Note: In WebAssembly language, this is a decoded, validated module. wazero avoids using the name "Module" for both
// before and after instantiation as the name conflation has caused confusion.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#semantic-phases%E2%91%A0
type CompiledModule struct {
	module *wasm.Module
}

// Close releases resources held by this CompiledModule that are independent of any instance. This engine compiles
// functions lazily per-instance (internal/code.Func), so there is nothing
// store-wide to release here - see DESIGN.md.
func (c *CompiledModule) Close(context.Context) error { return nil }

// Module is a WebAssembly 1.0 (20191205) module definition: the contract an external Wasm binary/text decoder is
// expected to produce (decoding/validating raw bytes is out of scope for this engine - see DESIGN.md).
type Module = wasm.Module

// ModuleConfig configures resources needed by functions that have low-level interactions with the host operating system.
// Using this, resources such as STDIN can be isolated (ex via WithStdin), so that the same module can be safely
// instantiated multiple times.
//
// Note: A full filesystem/WASI preopen surface is out of scope: internal/wasm.SysContext models only
// args/environ/the three standard streams - see DESIGN.md.
type ModuleConfig struct {
	name           string
	startFunctions []string
	stdin          io.Reader
	stdout         io.Writer
	stderr         io.Writer
	args           []string
	// environ is pair-indexed to retain order similar to os.Environ.
	environ []string
	// environKeys allow overwriting of existing values.
	environKeys map[string]int

	// replacedImports holds the latest state of WithImport
	// Note: Key is NUL delimited as import module and name can both include any UTF-8 characters.
	replacedImports map[string][2]string
	// replacedImportModules holds the latest state of WithImportModule
	replacedImportModules map[string]string
}

func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{
		startFunctions: []string{"_start"},
		environKeys:    map[string]int{},
	}
}

// WithName configures the module name. Defaults to the empty string.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	c.name = name
	return c
}

// WithImport replaces a specific import module and name with a new one. This allows you to break up a monolithic
// module imports, such as "env". This can also help reduce cyclic dependencies.
//
// Note: Any WithImport instructions happen in order, after any WithImportModule instructions.
func (c *ModuleConfig) WithImport(oldModule, oldName, newModule, newName string) *ModuleConfig {
	if c.replacedImports == nil {
		c.replacedImports = map[string][2]string{}
	}
	var builder strings.Builder
	builder.WriteString(oldModule)
	builder.WriteByte(0) // delimit with NUL as module and name can be any UTF-8 characters.
	builder.WriteString(oldName)
	c.replacedImports[builder.String()] = [2]string{newModule, newName}
	return c
}

// WithImportModule replaces every import with oldModule with newModule. This is helpful for modules who have
// transitioned to a stable status since the underlying wasm was compiled.
//
// See WithImport for a comprehensive example.
// Note: Any WithImportModule instructions happen in order, before any WithImport instructions.
func (c *ModuleConfig) WithImportModule(oldModule, newModule string) *ModuleConfig {
	if c.replacedImportModules == nil {
		c.replacedImportModules = map[string]string{}
	}
	c.replacedImportModules[oldModule] = newModule
	return c
}

// WithStartFunctions configures the functions to call after the module is instantiated. Defaults to "_start".
//
// Note: If any function doesn't exist, it is skipped. However, all functions that do exist are called in order.
func (c *ModuleConfig) WithStartFunctions(startFunctions ...string) *ModuleConfig {
	c.startFunctions = startFunctions
	return c
}

// WithStdin configures where standard input (file descriptor 0) is read. Defaults to return io.EOF.
//
// Note: api.Module Close closes the supplied io.Reader if it also implements io.Closer.
func (c *ModuleConfig) WithStdin(stdin io.Reader) *ModuleConfig {
	c.stdin = stdin
	return c
}

// WithStdout configures where standard output (file descriptor 1) is written. Defaults to io.Discard.
func (c *ModuleConfig) WithStdout(stdout io.Writer) *ModuleConfig {
	c.stdout = stdout
	return c
}

// WithStderr configures where standard error (file descriptor 2) is written. Defaults to io.Discard.
func (c *ModuleConfig) WithStderr(stderr io.Writer) *ModuleConfig {
	c.stderr = stderr
	return c
}

// WithArgs assigns command-line arguments visible to an imported function that reads an arg vector (argv). Defaults to
// none.
//
// Note: This does not default to os.Args as that violates sandboxing.
func (c *ModuleConfig) WithArgs(args ...string) *ModuleConfig {
	c.args = args
	return c
}

// WithEnv sets an environment variable visible to a Module that imports functions. Defaults to none.
//
// Note: Runtime.InstantiateModule errs if the key is empty or contains a NULL(0) or '=' character.
func (c *ModuleConfig) WithEnv(key, value string) *ModuleConfig {
	// Check to see if this key already exists and update it.
	if i, ok := c.environKeys[key]; ok {
		c.environ[i+1] = value // environ is pair-indexed, so the value is 1 after the key.
	} else {
		c.environKeys[key] = len(c.environ)
		c.environ = append(c.environ, key, value)
	}
	return c
}

// toSysContext creates a baseline wasm.SysContext configured by ModuleConfig.
func (c *ModuleConfig) toSysContext() (sys *wasm.SysContext, err error) {
	var environ []string // Intentionally doesn't pre-allocate to reduce logic to default to nil.
	// Same validation as syscall.Setenv for Linux
	for i := 0; i < len(c.environ); i += 2 {
		key, value := c.environ[i], c.environ[i+1]
		if len(key) == 0 {
			err = errors.New("environ invalid: empty key")
			return
		}
		for j := 0; j < len(key); j++ {
			if key[j] == '=' { // NUL enforced in NewSysContext
				err = errors.New("environ invalid: key contains '=' character")
				return
			}
		}
		environ = append(environ, key+"="+value)
	}

	return wasm.NewSysContext(math.MaxUint32, c.args, environ, c.stdin, c.stdout, c.stderr)
}

func (c *ModuleConfig) replaceImports(module *wasm.Module) *wasm.Module {
	if (c.replacedImportModules == nil && c.replacedImports == nil) || module.ImportSection == nil {
		return module
	}

	changed := false

	ret := *module // shallow copy
	replacedImports := make([]*wasm.Import, len(module.ImportSection))
	copy(replacedImports, module.ImportSection)

	// First, replace any import.Module
	for oldModule, newModule := range c.replacedImportModules {
		for i, imp := range replacedImports {
			if imp.Module == oldModule {
				changed = true
				cp := *imp // shallow copy
				cp.Module = newModule
				replacedImports[i] = &cp
			} else {
				replacedImports[i] = imp
			}
		}
	}

	// Now, replace any import.Module+import.Name
	for oldImport, newImport := range c.replacedImports {
		for i, imp := range replacedImports {
			nulIdx := strings.IndexByte(oldImport, 0)
			oldModule := oldImport[0:nulIdx]
			oldName := oldImport[nulIdx+1:]
			if imp.Module == oldModule && imp.Name == oldName {
				changed = true
				cp := *imp // shallow copy
				cp.Module = newImport[0]
				cp.Name = newImport[1]
				replacedImports[i] = &cp
			} else {
				replacedImports[i] = imp
			}
		}
	}

	if !changed {
		return module
	}
	ret.ImportSection = replacedImports
	return &ret
}
