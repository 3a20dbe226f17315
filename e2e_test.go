package wazero

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/engine/interpreter"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/wasm"
	"github.com/wazeroir/regwasm/internal/wasmir"
)

// funcType is a shorthand for building wasm.FunctionType literals below.
func funcType(params, results []api.ValueType) *wasm.FunctionType {
	return &wasm.FunctionType{Params: params, Results: results}
}

var i32, i64 = []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64}

// TestRecursiveFactorial builds fac(n: i64) -> i64, recursive via a regular
// (non-tail) call, and checks it unwinds correctly to the exact 64-bit
// wraparound value for 25!.
func TestRecursiveFactorial(t *testing.T) {
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{funcType(i64, i64)},
		FunctionSection: []*wasm.FunctionDef{{
			TypeIndex:   0,
			DebugName:   "fac",
			ExportNames: []string{"fac"},
			Body: []wasmir.Operator{
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpConstI64, I64: 0},
				{Op: wasmir.OpNumeric, Numeric: ir.OpEq, InType: ir.TypeI64, OutType: ir.TypeI32},
				{Op: wasmir.OpIf, Block: wasmir.BlockType{HasResult: true, ResultType: ir.TypeI64}},
				{Op: wasmir.OpConstI64, I64: 1},
				{Op: wasmir.OpElse},
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpConstI64, I64: 1},
				{Op: wasmir.OpNumeric, Numeric: ir.OpSub, InType: ir.TypeI64, OutType: ir.TypeI64},
				{Op: wasmir.OpCall, Func: 0, TypeIndex: 0},
				{Op: wasmir.OpNumeric, Numeric: ir.OpMul, InType: ir.TypeI64, OutType: ir.TypeI64},
				{Op: wasmir.OpEnd},
				{Op: wasmir.OpEnd},
			},
		}},
		ExportSection: []*wasm.Export{{Type: api.ExternTypeFunc, Name: "fac", Index: 0}},
	}

	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	require.NoError(t, err)
	env, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("math"))
	require.NoError(t, err)

	results, err := env.ExportedFunction("fac").Call(ctx, 25)
	require.NoError(t, err)
	require.Equal(t, []uint64{7034535277573963776}, results)
}

// TestStackOverflow checks an unbounded self-recursive call traps with
// TrapCodeCallStackOverflow once the configured call-stack limit is hit.
func TestStackOverflow(t *testing.T) {
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{funcType(i32, nil)},
		FunctionSection: []*wasm.FunctionDef{{
			TypeIndex:   0,
			DebugName:   "rec",
			ExportNames: []string{"rec"},
			Body: []wasmir.Operator{
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpCall, Func: 0, TypeIndex: 0},
			},
		}},
		ExportSection: []*wasm.Export{{Type: api.ExternTypeFunc, Name: "rec", Index: 0}},
	}

	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	require.NoError(t, err)
	env, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("rec"))
	require.NoError(t, err)

	// WithCallStackLimit at the RuntimeConfig level only reaches
	// InstantiateModule's own start-function calls, not later
	// ExportedFunction.Call invocations, so apply it directly to the ctx
	// passed to Call, same as the fuel test below does for WithFuel.
	limitedCtx := interpreter.WithCallStackLimit(ctx, 1024)
	_, err = env.ExportedFunction("rec").Call(limitedCtx, 1)
	require.Error(t, err)
	var trap *api.Trap
	require.True(t, errors.As(err, &trap))
	require.Equal(t, api.TrapCodeCallStackOverflow, trap.Code)
}

// TestOutOfBoundsLoad checks a load straddling the end of a single-page
// memory traps, while one ending exactly on the boundary succeeds.
func TestOutOfBoundsLoad(t *testing.T) {
	module := &wasm.Module{
		TypeSection:   []*wasm.FunctionType{funcType(i32, i32)},
		MemorySection: &wasm.MemoryType{Min: 1, Max: 1},
		FunctionSection: []*wasm.FunctionDef{{
			TypeIndex:   0,
			DebugName:   "load_at",
			ExportNames: []string{"load_at"},
			Body: []wasmir.Operator{
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpLoad, OutType: ir.TypeI32, Mem: wasmir.MemArg{Width: ir.Width32}},
			},
		}},
		ExportSection: []*wasm.Export{{Type: api.ExternTypeFunc, Name: "load_at", Index: 0}},
	}

	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	require.NoError(t, err)
	env, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("mem"))
	require.NoError(t, err)

	loadAt := env.ExportedFunction("load_at")

	t.Run("last in-bounds word returns the zero-initialized value", func(t *testing.T) {
		results, err := loadAt.Call(ctx, 65532)
		require.NoError(t, err)
		require.Equal(t, []uint64{0}, results)
	})

	t.Run("one byte past the page traps", func(t *testing.T) {
		_, err := loadAt.Call(ctx, 65533)
		require.Error(t, err)
		var trap *api.Trap
		require.True(t, errors.As(err, &trap))
		require.Equal(t, api.TrapCodeOutOfBoundsMemoryAccess, trap.Code)
	})
}

// TestHostReentry checks a Wasm loop that calls back into a host function
// on every iteration, summing the host's echoed argument.
func TestHostReentry(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	echo := func(_ context.Context, x uint32) uint32 { return x }
	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(echo).Export("h").
		Instantiate(ctx)
	require.NoError(t, err)

	// locals: 0=n (param), 1=i, 2=sum
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{funcType(i32, i32)},
		ImportSection: []*wasm.Import{
			{Type: api.ExternTypeFunc, Module: "env", Name: "h", DescFunc: 0},
		},
		FunctionSection: []*wasm.FunctionDef{{
			TypeIndex:   0,
			DebugName:   "outer",
			ExportNames: []string{"outer"},
			LocalTypes:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Body: []wasmir.Operator{
				{Op: wasmir.OpConstI32, I32: 0},
				{Op: wasmir.OpLocalSet, Local: 1}, // i = 0
				{Op: wasmir.OpConstI32, I32: 0},
				{Op: wasmir.OpLocalSet, Local: 2}, // sum = 0

				{Op: wasmir.OpBlock, Block: wasmir.BlockType{}},
				{Op: wasmir.OpLoop, Block: wasmir.BlockType{}},

				{Op: wasmir.OpLocalGet, Local: 1}, // i
				{Op: wasmir.OpLocalGet, Local: 0}, // n
				{Op: wasmir.OpNumeric, Numeric: ir.OpGeS, InType: ir.TypeI32, OutType: ir.TypeI32, Signed: true},
				{Op: wasmir.OpBrIf, LabelDepth: 1}, // exit loop once i >= n

				{Op: wasmir.OpLocalGet, Local: 2},          // sum
				{Op: wasmir.OpLocalGet, Local: 1},          // i
				{Op: wasmir.OpCall, Func: 0, TypeIndex: 0}, // h(i)
				{Op: wasmir.OpNumeric, Numeric: ir.OpAdd, InType: ir.TypeI32, OutType: ir.TypeI32},
				{Op: wasmir.OpLocalSet, Local: 2}, // sum += h(i)

				{Op: wasmir.OpLocalGet, Local: 1},
				{Op: wasmir.OpConstI32, I32: 1},
				{Op: wasmir.OpNumeric, Numeric: ir.OpAdd, InType: ir.TypeI32, OutType: ir.TypeI32},
				{Op: wasmir.OpLocalSet, Local: 1}, // i++

				{Op: wasmir.OpBr, LabelDepth: 0}, // loop back
				{Op: wasmir.OpEnd},               // end loop
				{Op: wasmir.OpEnd},               // end block

				{Op: wasmir.OpLocalGet, Local: 2}, // push sum as the result
			},
		}},
		ExportSection: []*wasm.Export{{Type: api.ExternTypeFunc, Name: "outer", Index: 0}},
	}

	compiled, err := r.CompileModule(ctx, module)
	require.NoError(t, err)
	outerMod, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("outer"))
	require.NoError(t, err)

	results, err := outerMod.ExportedFunction("outer").Call(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, []uint64{499500}, results)
}

// TestTailCallMutualRecursion checks even/odd mutually tail-recursive via
// return_call never grows the call stack, even across a deep chain.
func TestTailCallMutualRecursion(t *testing.T) {
	// type0: (i32) -> (i32), shared by both functions.
	// function 0: even, function 1: odd.
	body := func(selfIsEven bool, other wasm.Index) []wasmir.Operator {
		return []wasmir.Operator{
			{Op: wasmir.OpLocalGet, Local: 0},
			{Op: wasmir.OpConstI32, I32: 0},
			{Op: wasmir.OpNumeric, Numeric: ir.OpEq, InType: ir.TypeI32, OutType: ir.TypeI32},
			{Op: wasmir.OpIf, Block: wasmir.BlockType{HasResult: true, ResultType: ir.TypeI32}},
			{Op: wasmir.OpConstI32, I32: boolToI32(selfIsEven)},
			{Op: wasmir.OpElse},
			{Op: wasmir.OpLocalGet, Local: 0},
			{Op: wasmir.OpConstI32, I32: 1},
			{Op: wasmir.OpNumeric, Numeric: ir.OpSub, InType: ir.TypeI32, OutType: ir.TypeI32},
			{Op: wasmir.OpReturnCall, Func: other, TypeIndex: 0},
			{Op: wasmir.OpEnd},
		}
	}

	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{funcType(i32, i32)},
		FunctionSection: []*wasm.FunctionDef{
			{TypeIndex: 0, DebugName: "even", ExportNames: []string{"even"}, Body: body(true, 1)},
			{TypeIndex: 0, DebugName: "odd", ExportNames: []string{"odd"}, Body: body(false, 0)},
		},
		ExportSection: []*wasm.Export{
			{Type: api.ExternTypeFunc, Name: "even", Index: 0},
			{Type: api.ExternTypeFunc, Name: "odd", Index: 1},
		},
	}

	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	require.NoError(t, err)
	env, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("evenodd"))
	require.NoError(t, err)

	// A call-stack limit of 8, far below the 100000-deep recursion below,
	// still succeeds: return_call reuses the current frame rather than
	// pushing a new one, so mutual tail recursion never grows ce.calls.
	limitedCtx := interpreter.WithCallStackLimit(ctx, 8)
	results, err := env.ExportedFunction("even").Call(limitedCtx, 100000)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, results)
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// TestFuelExhaustionAndResume checks a fuel-metered call traps with
// TrapCodeOutOfFuel partway through, and that refueling and invoking
// Trap.Resume continues exactly where execution paused.
func TestFuelExhaustionAndResume(t *testing.T) {
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{funcType(i64, i64)},
		FuelMetered: true,
		FunctionSection: []*wasm.FunctionDef{{
			TypeIndex:   0,
			DebugName:   "fac",
			ExportNames: []string{"fac"},
			Body: []wasmir.Operator{
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpConstI64, I64: 0},
				{Op: wasmir.OpNumeric, Numeric: ir.OpEq, InType: ir.TypeI64, OutType: ir.TypeI32},
				{Op: wasmir.OpIf, Block: wasmir.BlockType{HasResult: true, ResultType: ir.TypeI64}},
				{Op: wasmir.OpConstI64, I64: 1},
				{Op: wasmir.OpElse},
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpLocalGet, Local: 0},
				{Op: wasmir.OpConstI64, I64: 1},
				{Op: wasmir.OpNumeric, Numeric: ir.OpSub, InType: ir.TypeI64, OutType: ir.TypeI64},
				{Op: wasmir.OpCall, Func: 0, TypeIndex: 0},
				{Op: wasmir.OpNumeric, Numeric: ir.OpMul, InType: ir.TypeI64, OutType: ir.TypeI64},
				{Op: wasmir.OpEnd},
				{Op: wasmir.OpEnd},
			},
		}},
		ExportSection: []*wasm.Export{{Type: api.ExternTypeFunc, Name: "fac", Index: 0}},
	}

	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	require.NoError(t, err)
	env, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("fuel"))
	require.NoError(t, err)

	// fac(5) takes 6 nested calls (fac(5)..fac(0)), one fuel unit charged
	// per call entry: 3 units pauses partway through the recursion.
	pausedCtx := interpreter.WithFuel(ctx, 3)
	_, err = env.ExportedFunction("fac").Call(pausedCtx, 5)
	require.Error(t, err)

	var trap *api.Trap
	require.True(t, errors.As(err, &trap))
	require.Equal(t, api.TrapCodeOutOfFuel, trap.Code)
	require.NotNil(t, trap.Resume)

	results, err := trap.Resume(interpreter.WithFuel(ctx, 1_000_000))
	require.NoError(t, err)
	require.Equal(t, []uint64{120}, results)
}
