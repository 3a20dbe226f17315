package wazero

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazeroir/regwasm/api"
)

func TestNewHostModuleBuilder_Compile(t *testing.T) {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64

	uint32Fn := func(context.Context, uint32) uint32 { return 0 }
	uint64Fn := func(context.Context, uint64) uint32 { return 0 }

	goFunc := api.GoFunc(func(ctx context.Context, stack []uint64) { stack[0] = 0 })

	tests := []struct {
		name            string
		addFuncs        func(HostModuleBuilder)
		expectedTypes   int
		expectedParams  []api.ValueType
		expectedResults []api.ValueType
	}{
		{
			name: "WithFunc",
			addFuncs: func(b HostModuleBuilder) {
				b.NewFunctionBuilder().WithFunc(uint32Fn).Export("fn")
			},
			expectedTypes:   1,
			expectedParams:  []api.ValueType{i32},
			expectedResults: []api.ValueType{i32},
		},
		{
			name: "WithFunc 64-bit param",
			addFuncs: func(b HostModuleBuilder) {
				b.NewFunctionBuilder().WithFunc(uint64Fn).Export("fn")
			},
			expectedTypes:   1,
			expectedParams:  []api.ValueType{i64},
			expectedResults: []api.ValueType{i32},
		},
		{
			name: "WithGoFunction",
			addFuncs: func(b HostModuleBuilder) {
				b.NewFunctionBuilder().WithGoFunction(goFunc, []api.ValueType{i32}, []api.ValueType{i32}).Export("fn")
			},
			expectedTypes:   1,
			expectedParams:  []api.ValueType{i32},
			expectedResults: []api.ValueType{i32},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			r := NewRuntimeWithConfig(context.Background(), NewRuntimeConfig()).(*runtime)
			b := r.NewHostModuleBuilder("env")
			tc.addFuncs(b)

			compiled, err := b.Compile(context.Background())
			require.NoError(t, err)
			require.Len(t, compiled.module.TypeSection, tc.expectedTypes)
			require.Equal(t, tc.expectedParams, compiled.module.TypeSection[0].Params)
			require.Equal(t, tc.expectedResults, compiled.module.TypeSection[0].Results)

			require.Len(t, compiled.module.FunctionSection, 1)
			fn := compiled.module.FunctionSection[0]
			require.True(t, fn.IsHostFunction())
			require.Equal(t, "env.fn", fn.DebugName)
			require.Equal(t, []string{"fn"}, fn.ExportNames)

			require.Len(t, compiled.module.ExportSection, 1)
			require.Equal(t, "fn", compiled.module.ExportSection[0].Name)
			require.Equal(t, api.ExternTypeFunc, compiled.module.ExportSection[0].Type)
		})
	}
}

func TestHostModuleBuilder_Compile_ErrsOnMultipleMemories(t *testing.T) {
	r := NewRuntimeWithConfig(context.Background(), NewRuntimeConfig()).(*runtime)
	b := r.NewHostModuleBuilder("env").
		ExportMemory("mem1", 1).
		ExportMemoryWithMax("mem2", 1, 2)

	_, err := b.Compile(context.Background())
	require.EqualError(t, err, "only one exported memory is supported, got 2")
}

func TestHostModuleBuilder_Compile_ErrsOnNilFunc(t *testing.T) {
	r := NewRuntimeWithConfig(context.Background(), NewRuntimeConfig()).(*runtime)
	b := r.NewHostModuleBuilder("env")
	b.NewFunctionBuilder().Export("fn")

	_, err := b.Compile(context.Background())
	require.EqualError(t, err, "func[fn] no function defined")
}

func TestHostModuleBuilder_Compile_ErrsOnUnsupportedType(t *testing.T) {
	r := NewRuntimeWithConfig(context.Background(), NewRuntimeConfig()).(*runtime)
	b := r.NewHostModuleBuilder("env")
	b.NewFunctionBuilder().WithFunc(func(string) {}).Export("fn")

	_, err := b.Compile(context.Background())
	require.Error(t, err)
}

func TestHostModuleBuilder_ExportMemory(t *testing.T) {
	r := NewRuntimeWithConfig(context.Background(), NewRuntimeConfig()).(*runtime)
	b := r.NewHostModuleBuilder("env").ExportMemory("memory", 1)

	compiled, err := b.Compile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, compiled.module.MemorySection)
	require.Equal(t, uint32(1), compiled.module.MemorySection.Min)
	require.Len(t, compiled.module.ExportSection, 1)
	require.Equal(t, "memory", compiled.module.ExportSection[0].Name)
	require.Equal(t, api.ExternTypeMemory, compiled.module.ExportSection[0].Type)
}

func TestHostModuleBuilder_Instantiate(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	sum := func(_ context.Context, x, y uint32) uint32 { return x + y }
	env, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(sum).Export("sum").
		Instantiate(ctx)
	require.NoError(t, err)
	require.Equal(t, "env", env.Name())

	results, err := env.ExportedFunction("sum").Call(ctx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
}

func TestHostModuleBuilder_WithName(t *testing.T) {
	r := NewRuntimeWithConfig(context.Background(), NewRuntimeConfig()).(*runtime)
	b := r.NewHostModuleBuilder("env")
	b.NewFunctionBuilder().WithFunc(func(context.Context, uint32) uint32 { return 0 }).WithName("my_fn").Export("fn")

	compiled, err := b.Compile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "env.my_fn", compiled.module.FunctionSection[0].DebugName)
}
