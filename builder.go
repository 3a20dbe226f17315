package wazero

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/wasm"
)

// HostFunctionBuilder defines a host function (in Go), so that a
// WebAssembly module instantiated through this Runtime can import and use it.
//
// Here's an example of an addition function:
//
//	hostModuleBuilder.NewFunctionBuilder().
//		WithFunc(func(cxt context.Context, x, y uint32) uint32 {
//			return x + y
//		}).
//		Export("add")
//
// # Memory
//
// All host functions act on the importing api.Module, including any memory
// it exports. If you are reading or writing memory, it is sand-boxed Wasm
// memory defined by the guest.
//
//	fn := func(ctx context.Context, m api.Module, offset uint32) uint32 {
//		x, _ := m.Memory().ReadUint32Le(ctx, offset)
//		return x
//	}
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations.
//     All implementations are in this module.
type HostFunctionBuilder interface {
	// WithGoFunction is an advanced feature for those who need higher
	// performance than WithFunc at the cost of more complexity.
	//
	// Here's an example addition function:
	//
	//	builder.WithGoFunction(api.GoFunc(func(ctx context.Context, stack []uint64) {
	//		x, y := int32(stack[0]), int32(stack[1])
	//		sum := x + y
	//		stack[0] = api.EncodeI32(sum)
	//	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	//
	// As you can see above, defining in this way implies knowledge of which
	// WebAssembly api.ValueType is appropriate for each parameter and result.
	//
	// See WithGoModuleFunction if you also need to access the calling module.
	WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithGoModuleFunction is an advanced feature for those who need higher
	// performance than WithFunc at the cost of more complexity.
	//
	// Here's an example addition function that loads operands from memory:
	//
	//	builder.WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
	//		mem := m.Memory()
	//		offset := uint32(stack[0])
	//
	//		x, _ := mem.ReadUint32Le(ctx, offset)
	//		y, _ := mem.ReadUint32Le(ctx, offset + 4) // 32 bits == 4 bytes!
	//		sum := x + y
	//
	//		stack[0] = uint64(sum)
	//	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	//
	// See WithGoFunction if you don't need access to the calling module.
	WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithFunc uses reflect.Value to map a go `func` to a WebAssembly
	// compatible Signature. An input that isn't a `func` will fail at Compile.
	//
	// Here's an example of an addition function:
	//
	//	builder.WithFunc(func(cxt context.Context, x, y uint32) uint32 {
	//		return x + y
	//	})
	//
	// # Defining a function
	//
	// Except for the context.Context and optional api.Module, all parameters
	// or result types must map to WebAssembly numeric value types. This means
	// uint32, int32, uint64, int64, float32 or float64.
	//
	// api.Module may be specified as the second parameter, usually to access
	// memory. This is important because there are only numeric types in Wasm.
	// The only way to share other data is via writing memory and sharing
	// offsets.
	//
	//	builder.WithFunc(func(ctx context.Context, m api.Module, offset uint32) uint32 {
	//		mem := m.Memory()
	//		x, _ := mem.ReadUint32Le(ctx, offset)
	//		y, _ := mem.ReadUint32Le(ctx, offset + 4) // 32 bits == 4 bytes!
	//		return x + y
	//	})
	WithFunc(interface{}) HostFunctionBuilder

	// WithName defines the optional module-local name of this function, e.g.
	// "random_get"
	//
	// Note: This is not required to match the Export name.
	WithName(name string) HostFunctionBuilder

	// Export exports this to the HostModuleBuilder as the given name, e.g.
	// "random_get"
	Export(name string) HostModuleBuilder
}

// HostModuleBuilder is a way to define host functions (in Go), so that a
// WebAssembly module instantiated through this Runtime can import and use
// them.
//
// For example, this defines and instantiates a module named "env" with one
// function:
//
//	ctx := context.Background()
//	r := wazero.NewRuntime(ctx)
//	defer r.Close(ctx) // This closes everything this Runtime created.
//
//	hello := func() {
//		println("hello!")
//	}
//	env, _ := r.NewHostModuleBuilder("env").
//		NewFunctionBuilder().WithFunc(hello).Export("hello").
//		Instantiate(ctx)
//
// If the same module may be instantiated multiple times, it is more efficient
// to separate steps. Here's an example:
//
//	compiled, _ := r.NewHostModuleBuilder("env").
//		NewFunctionBuilder().WithFunc(getRandomString).Export("get_random_string").
//		Compile(ctx)
//
//	env1, _ := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("env.1"))
//	env2, _ := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("env.2"))
//
// See HostFunctionBuilder for valid host function signatures and other details.
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations.
//     All implementations are in this module.
//   - HostModuleBuilder is mutable: each method returns the same instance for
//     chaining.
//   - Functions are indexed in order of calls to NewFunctionBuilder as
//     insertion ordering is meaningful to some ABIs (ex Emscripten's invoke_*).
type HostModuleBuilder interface {
	// ExportMemory adds linear memory, which a WebAssembly module can import and become available via api.Memory.
	// If a memory is already exported with the same name, this overwrites it.
	//
	// For example, the WebAssembly 1.0 Text Format below is the equivalent of this builder method:
	//	// (memory (export "memory") 1)
	//	builder.ExportMemory("memory", 1)
	ExportMemory(name string, minPages uint32) HostModuleBuilder

	// ExportMemoryWithMax is like ExportMemory, but can prevent overuse of memory.
	//
	// For example, the WebAssembly 1.0 Text Format below is the equivalent of this builder method:
	//	// (memory (export "memory") 1 1)
	//	builder.ExportMemoryWithMax("memory", 1, 1)
	ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder

	// NewFunctionBuilder begins the definition of a host function.
	NewFunctionBuilder() HostFunctionBuilder

	// Compile returns a CompiledModule that can be instantiated by Runtime.
	Compile(context.Context) (*CompiledModule, error)

	// Instantiate is a convenience that calls Compile, then Runtime.InstantiateModule.
	// This can fail for reasons documented on Runtime.InstantiateModule.
	//
	// # Notes
	//
	//   - Closing the Runtime has the same effect as closing the result.
	//   - Fields in the builder are copied during instantiation: Later changes do not affect the instantiated result.
	//   - To avoid using configuration defaults, use Compile instead.
	Instantiate(context.Context) (api.Module, error)
}

// hostFuncDef is the builder-side staging area for one host function,
// resolved into a *wasm.FunctionType/wasm.FunctionDef pair at Compile time.
type hostFuncDef struct {
	// goFn is either an api.GoFunction, an api.GoModuleFunction, or an
	// arbitrary Go func (to be reflection-adapted), set by exactly one of
	// WithGoFunction/WithGoModuleFunction/WithFunc.
	goFn interface{}
	// params/results are only set alongside WithGoFunction/WithGoModuleFunction,
	// which bypass signature reflection entirely.
	params, results []api.ValueType

	name       string
	exportName string
}

// hostModuleBuilder implements HostModuleBuilder.
type hostModuleBuilder struct {
	r             *runtime
	moduleName    string
	exportNames   []string
	nameToFuncDef map[string]*hostFuncDef
	nameToMemory  map[string]*wasm.MemoryType
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder.
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{
		r:             r,
		moduleName:    moduleName,
		nameToFuncDef: map[string]*hostFuncDef{},
		nameToMemory:  map[string]*wasm.MemoryType{},
	}
}

// hostFunctionBuilder implements HostFunctionBuilder.
type hostFunctionBuilder struct {
	b   *hostModuleBuilder
	def *hostFuncDef
}

// WithGoFunction implements HostFunctionBuilder.WithGoFunction.
func (h *hostFunctionBuilder) WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.def.goFn, h.def.params, h.def.results = fn, params, results
	return h
}

// WithGoModuleFunction implements HostFunctionBuilder.WithGoModuleFunction.
func (h *hostFunctionBuilder) WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.def.goFn, h.def.params, h.def.results = fn, params, results
	return h
}

// WithFunc implements HostFunctionBuilder.WithFunc.
func (h *hostFunctionBuilder) WithFunc(fn interface{}) HostFunctionBuilder {
	h.def.goFn = fn
	return h
}

// WithName implements HostFunctionBuilder.WithName.
func (h *hostFunctionBuilder) WithName(name string) HostFunctionBuilder {
	h.def.name = name
	return h
}

// Export implements HostFunctionBuilder.Export.
func (h *hostFunctionBuilder) Export(exportName string) HostModuleBuilder {
	h.def.exportName = exportName
	if _, ok := h.b.nameToFuncDef[exportName]; !ok {
		h.b.exportNames = append(h.b.exportNames, exportName)
	}
	h.b.nameToFuncDef[exportName] = h.def
	return h.b
}

// ExportMemory implements HostModuleBuilder.ExportMemory.
func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32) HostModuleBuilder {
	b.nameToMemory[name] = &wasm.MemoryType{Min: minPages, Max: wasm.MemoryMaxPages}
	return b
}

// ExportMemoryWithMax implements HostModuleBuilder.ExportMemoryWithMax.
func (b *hostModuleBuilder) ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder {
	b.nameToMemory[name] = &wasm.MemoryType{Min: minPages, Max: maxPages}
	return b
}

// NewFunctionBuilder implements HostModuleBuilder.NewFunctionBuilder.
func (b *hostModuleBuilder) NewFunctionBuilder() HostFunctionBuilder {
	return &hostFunctionBuilder{b: b, def: &hostFuncDef{}}
}

// Compile implements HostModuleBuilder.Compile.
//
// Each host function is reflected (or, for WithGoFunction/WithGoModuleFunction, taken as-is) into a closure of the
// fixed shape func(ctx context.Context, mod api.Module, stack []uint64) that the interpreter's callHost invokes via
// reflect.Value.Call - see adaptGoFunc.
func (b *hostModuleBuilder) Compile(context.Context) (*CompiledModule, error) {
	module := &wasm.Module{}
	if len(b.nameToMemory) > 1 {
		return nil, fmt.Errorf("only one exported memory is supported, got %d", len(b.nameToMemory))
	}
	for name, mt := range b.nameToMemory {
		module.MemorySection = mt
		module.ExportSection = append(module.ExportSection, &wasm.Export{Type: api.ExternTypeMemory, Name: name})
	}

	for _, exportName := range b.exportNames {
		def := b.nameToFuncDef[exportName]
		goFn, params, results, err := adaptGoFunc(def)
		if err != nil {
			return nil, fmt.Errorf("func[%s] %w", exportName, err)
		}

		typeIdx := wasm.Index(len(module.TypeSection))
		module.TypeSection = append(module.TypeSection, &wasm.FunctionType{Params: params, Results: results})

		debugName := def.name
		if debugName == "" {
			debugName = exportName
		}
		fnIdx := wasm.Index(len(module.FunctionSection))
		module.FunctionSection = append(module.FunctionSection, &wasm.FunctionDef{
			TypeIndex:   typeIdx,
			GoFunc:      goFn,
			DebugName:   b.moduleName + "." + debugName,
			ExportNames: []string{exportName},
		})
		module.ExportSection = append(module.ExportSection, &wasm.Export{Type: api.ExternTypeFunc, Name: exportName, Index: fnIdx})
	}

	return &CompiledModule{module: module}, nil
}

// Instantiate implements HostModuleBuilder.Instantiate.
func (b *hostModuleBuilder) Instantiate(ctx context.Context) (api.Module, error) {
	compiled, err := b.Compile(ctx)
	if err != nil {
		return nil, err
	}
	return b.r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName(b.moduleName))
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
)

// adaptGoFunc normalizes a hostFuncDef's goFn into the fixed closure shape
// func(ctx context.Context, mod api.Module, stack []uint64) that
// FunctionInstance.HostFn carries, along with the ValueTypes the closure
// reads/writes on stack.
func adaptGoFunc(def *hostFuncDef) (*reflect.Value, []api.ValueType, []api.ValueType, error) {
	switch fn := def.goFn.(type) {
	case api.GoModuleFunction:
		v := reflect.ValueOf(api.GoModuleFunc(fn.Call))
		return &v, def.params, def.results, nil
	case api.GoFunction:
		adapted := api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			fn.Call(ctx, stack)
		})
		v := reflect.ValueOf(adapted)
		return &v, def.params, def.results, nil
	case nil:
		return nil, nil, nil, fmt.Errorf("no function defined")
	}

	fnVal := reflect.ValueOf(def.goFn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, nil, nil, fmt.Errorf("not a function: %v", fnType)
	}

	in := 0
	takesCtx, takesMod := false, false
	if in < fnType.NumIn() && fnType.In(in) == contextType {
		takesCtx = true
		in++
	}
	if in < fnType.NumIn() && fnType.In(in) == moduleType {
		takesMod = true
		in++
	}

	params := make([]api.ValueType, 0, fnType.NumIn()-in)
	for i := in; i < fnType.NumIn(); i++ {
		vt, err := goTypeToValueType(fnType.In(i))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("param[%d] %w", i, err)
		}
		params = append(params, vt)
	}

	results := make([]api.ValueType, 0, fnType.NumOut())
	for i := 0; i < fnType.NumOut(); i++ {
		vt, err := goTypeToValueType(fnType.Out(i))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("result[%d] %w", i, err)
		}
		results = append(results, vt)
	}

	adapted := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		callIn := make([]reflect.Value, 0, fnType.NumIn())
		if takesCtx {
			callIn = append(callIn, reflect.ValueOf(ctx))
		}
		if takesMod {
			callIn = append(callIn, reflect.ValueOf(mod))
		}
		for i, vt := range params {
			callIn = append(callIn, decodeArg(vt, stack[i], fnType.In(in+i)))
		}

		out := fnVal.Call(callIn)
		for i, vt := range results {
			stack[i] = encodeResult(vt, out[i])
		}
	})
	v := reflect.ValueOf(adapted)
	return &v, params, results, nil
}

// goTypeToValueType maps a reflect.Type to the WebAssembly api.ValueType it
// corresponds to, per the conversion table on api.ValueType.
func goTypeToValueType(t reflect.Type) (api.ValueType, error) {
	switch t.Kind() {
	case reflect.Uint32, reflect.Int32:
		return api.ValueTypeI32, nil
	case reflect.Uint64, reflect.Int64:
		return api.ValueTypeI64, nil
	case reflect.Float32:
		return api.ValueTypeF32, nil
	case reflect.Float64:
		return api.ValueTypeF64, nil
	case reflect.Uintptr:
		return api.ValueTypeExternref, nil
	default:
		return 0, fmt.Errorf("unsupported type: %v", t)
	}
}

// decodeArg decodes one raw stack cell into the reflect.Value a host func
// parameter of Go type t expects, per vt's encoding.
func decodeArg(vt api.ValueType, raw uint64, t reflect.Type) reflect.Value {
	switch vt {
	case api.ValueTypeF32:
		return reflect.ValueOf(api.DecodeF32(raw)).Convert(t)
	case api.ValueTypeF64:
		return reflect.ValueOf(api.DecodeF64(raw)).Convert(t)
	case api.ValueTypeExternref:
		return reflect.ValueOf(api.DecodeExternref(raw)).Convert(t)
	default: // I32, I64: t may be a signed or unsigned Go integer type.
		return reflect.ValueOf(raw).Convert(t)
	}
}

// encodeResult encodes a host func's reflect.Value result into a raw stack
// cell per vt's encoding.
func encodeResult(vt api.ValueType, v reflect.Value) uint64 {
	signed := v.Kind() >= reflect.Int && v.Kind() <= reflect.Int64
	switch vt {
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.Float()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.Float())
	case api.ValueTypeExternref:
		return api.EncodeExternref(uintptr(v.Uint()))
	case api.ValueTypeI32:
		if signed {
			return api.EncodeI32(int32(v.Int()))
		}
		return uint64(uint32(v.Uint()))
	default: // I64
		if signed {
			return uint64(v.Int())
		}
		return v.Uint()
	}
}
