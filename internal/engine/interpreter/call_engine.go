package interpreter

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/buildoptions"
	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/code"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/stack"
	"github.com/wazeroir/regwasm/internal/wasm"
	"github.com/wazeroir/regwasm/internal/wasmdebug"
	"github.com/wazeroir/regwasm/internal/wasmruntime"
)

var (
	errDivideByZero      = wasmruntime.ErrRuntimeIntegerDivideByZero
	errIntegerOverflow   = wasmruntime.ErrRuntimeIntegerOverflow
	errInvalidConversion = wasmruntime.ErrRuntimeInvalidConversionToInteger
)

// errOutOfFuel is run()'s sentinel return value for a fuel-exhaustion
// pause: unlike every other abort condition, it is not a panic, because the
// executor's own fields (fn/body/pc/frameBase/calls) already describe
// exactly where to resume and nothing needs unwinding.
var errOutOfFuel = fmt.Errorf("out of fuel")

type fuelContextKey struct{}

// WithFuel attaches a fuel budget to ctx. Only functions translated with
// fuel metering enabled (see translator.Module.FuelMetered) ever consume
// it; calling a non-metered function with a fuel budget in context is
// harmless, just inert.
func WithFuel(ctx context.Context, fuel int64) context.Context {
	f := fuel
	return context.WithValue(ctx, fuelContextKey{}, &f)
}

func fuelFromContext(ctx context.Context) *int64 {
	f, _ := ctx.Value(fuelContextKey{}).(*int64)
	return f
}

type resourceLimiterContextKey struct{}

// WithResourceLimiter attaches a ResourceLimiter to ctx, consulted by
// "memory.grow"/"table.grow" in addition to each instance's own declared Max.
func WithResourceLimiter(ctx context.Context, limiter api.ResourceLimiter) context.Context {
	return context.WithValue(ctx, resourceLimiterContextKey{}, limiter)
}

func resourceLimiterFromContext(ctx context.Context) api.ResourceLimiter {
	l, _ := ctx.Value(resourceLimiterContextKey{}).(api.ResourceLimiter)
	return l
}

type callStackLimitContextKey struct{}

// WithCallStackLimit overrides the call stack's default depth limit for
// calls made with ctx; newCallEngine applies it through
// stack.Calls.WithLimit.
func WithCallStackLimit(ctx context.Context, limit int) context.Context {
	return context.WithValue(ctx, callStackLimitContextKey{}, limit)
}

func callStackLimitFromContext(ctx context.Context) (int, bool) {
	l, ok := ctx.Value(callStackLimitContextKey{}).(int)
	return l, ok
}

// callFrameMeta is what Frame.CallerMeta holds for a non-tail Wasm-to-Wasm
// call: enough to restore the caller's execution context and route the
// callee's results into the register the caller expects them at.
type callFrameMeta struct {
	fn        *wasm.FunctionInstance
	body      *code.Body
	resultDst ir.Reg
}

// callEngine drives one root call (and every nested call it makes,
// Wasm-to-Wasm or Wasm-to-host) through to completion. It is not reused
// across independent root invocations from the host - ModuleEngine.Call
// builds a fresh one every time - but a single callEngine's two stacks
// persist across a fuel-exhaustion pause/resume pair, which is exactly what
// makes resumption possible without re-running anything.
type callEngine struct {
	ctx     context.Context
	callCtx *wasm.CallContext

	values  stack.Values
	calls   stack.Calls
	fuel    *int64
	limiter api.ResourceLimiter

	// Current frame, valid while run() executes and while paused awaiting a
	// fuel-refill resume.
	fn        *wasm.FunctionInstance
	body      *code.Body
	pc        int
	frameBase int

	topFn    *wasm.FunctionInstance
	doneBase int
	doneLen  int
}

func newCallEngine(ctx context.Context, callCtx *wasm.CallContext) *callEngine {
	calls := stack.NewCalls()
	if limit, ok := callStackLimitFromContext(ctx); ok {
		calls = calls.WithLimit(limit)
	}
	return &callEngine{
		ctx:     ctx,
		callCtx: callCtx,
		values:  *stack.NewValues(256),
		calls:   *calls,
		fuel:    fuelFromContext(ctx),
		limiter: resourceLimiterFromContext(ctx),
	}
}

// callFromHost is the entry point moduleEngine.Call uses: it sets up f's
// top-level frame (or, for a host function, just calls it directly) and
// runs the dispatch loop to completion or to a fuel-exhaustion pause.
func (ce *callEngine) callFromHost(f *wasm.FunctionInstance, params []uint64) ([]uint64, error) {
	ce.topFn = f

	if f.IsHostFunction() {
		return ce.callHostFromHost(f, params)
	}

	body, err := f.Body.Body()
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", f.DebugName(), err)
	}
	base := ce.values.Reserve(body.FrameSize)
	if buildoptions.IstTest {
		assertFrameReservation(ce, base, body.FrameSize)
	}
	for i, p := range params {
		ce.values.Set(base+i, cell.Cell(p))
	}
	ce.fn, ce.body, ce.frameBase, ce.pc = f, body, base, 0
	if f.FunctionListener != nil {
		ce.ctx = f.FunctionListener.Before(ce.ctx, f, params)
	}
	return ce.runToCompletion()
}

// callHostFromHost calls a host-defined f as the root of a call, with the
// same panic-to-trap recovery runToCompletion gives a Wasm root call - a
// host function that panics is just as reachable from moduleEngine.Call as
// one reached via a nested OpCall from inside running Wasm code.
func (ce *callEngine) callHostFromHost(f *wasm.FunctionInstance, params []uint64) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ce.recoverTrap(r)
		}
	}()

	args := make([]cell.Cell, len(params))
	for i, p := range params {
		args[i] = cell.Cell(p)
	}
	res := ce.callHost(f, args)
	out := make([]uint64, len(res))
	for i, r := range res {
		out[i] = uint64(r)
	}
	return out, nil
}

// runToCompletion runs (or resumes) the dispatch loop, converting a panic
// into a wrapped trap/error and a fuel-exhaustion pause into a resumable
// api.Trap.
func (ce *callEngine) runToCompletion() (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ce.recoverTrap(r)
		}
	}()

	runErr := ce.run()
	if runErr == errOutOfFuel {
		resume := func(ctx context.Context) ([]uint64, error) {
			ce.ctx = ctx
			ce.fuel = fuelFromContext(ctx)
			ce.limiter = resourceLimiterFromContext(ctx)
			return ce.runToCompletion()
		}
		return nil, api.NewTrap(api.TrapCodeOutOfFuel, wasmruntime.ErrRuntimeOutOfFuel, resume)
	}
	if runErr != nil {
		return nil, runErr
	}

	out := make([]uint64, ce.doneLen)
	for i := 0; i < ce.doneLen; i++ {
		out[i] = uint64(ce.values.Get(ce.doneBase + i))
	}
	if ce.topFn.FunctionListener != nil {
		ce.topFn.FunctionListener.After(ce.ctx, ce.topFn, nil, out)
	}
	return out, nil
}

// recoverTrap turns a recovered panic into the final error: a *wasmruntime.
// Error becomes a resumeless *api.Trap, anything else (a Go runtime panic,
// or a host function's own error) gets the wasm stack trace appended but is
// otherwise returned unwrapped, matching wasmdebug.messageFor's distinction.
func (ce *callEngine) recoverTrap(r interface{}) error {
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}

	builder := wasmdebug.NewErrorBuilder()
	if ce.fn != nil {
		builder.AddFrame(wasmdebug.FuncName(ce.fn.ModuleName(), ce.fn.Name(), ce.fn.Index()), ce.fn.ParamTypes(), ce.fn.ResultTypes())
	}
	frames := ce.calls.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		meta, ok := frames[i].CallerMeta.(callFrameMeta)
		if !ok {
			continue
		}
		builder.AddFrame(wasmdebug.FuncName(meta.fn.ModuleName(), meta.fn.Name(), meta.fn.Index()), meta.fn.ParamTypes(), meta.fn.ResultTypes())
	}
	traced := builder.FromRecovered(cause)

	if trapErr, ok := cause.(*wasmruntime.Error); ok {
		return api.NewTrap(trapErr.Code, traced, nil)
	}
	return traced
}

// run is the register-machine dispatch loop. It returns nil on a normal
// top-level return (results left in ce.doneBase/ce.doneLen), errOutOfFuel
// on a fuel-exhaustion pause (all state left intact for a resume), or
// panics (caught by runToCompletion) for every other trap.
func (ce *callEngine) run() error {
	for {
		ins := ce.body.Instructions[ce.pc]
		switch ins.Op {

		case ir.OpConst:
			ce.setReg(ins.B, ce.body.Consts[ir.Reg(ins.Imm).ConstIndex()])
			ce.pc++

		case ir.OpCopy:
			ce.setReg(ir.Reg(ins.Imm), ce.reg(ins.A))
			ce.pc++

		case ir.OpCopySpan:
			ce.values.CopySpan(ce.frameBase+int(ins.B), ce.frameBase+int(ins.A), int(ins.Imm))
			ce.pc++

		case ir.OpGlobalGet:
			ce.setReg(ins.B, ce.fn.Module.Globals[ins.Imm].Val)
			ce.pc++

		case ir.OpGlobalSet:
			ce.fn.Module.Globals[ins.Imm].Val = ce.reg(ins.A)
			ce.pc++

		case ir.OpBr:
			ce.pc += int(ins.Imm)

		case ir.OpBrIfNonzero:
			if ce.reg(ins.A).U32() != 0 {
				ce.pc += int(ins.Imm)
			} else {
				ce.pc++
			}

		case ir.OpBrIfZero:
			if ce.reg(ins.A).U32() == 0 {
				ce.pc += int(ins.Imm)
			} else {
				ce.pc++
			}

		case ir.OpBrTable:
			table := ce.body.BrTables[ins.Imm]
			idx := int(ce.reg(ins.A).U32())
			if idx < 0 || idx >= len(table)-1 {
				idx = len(table) - 1
			}
			ce.pc += int(table[idx].Offset)

		case ir.OpReturn:
			if done := ce.doReturn(ins); done {
				return nil
			}

		case ir.OpUnreachable:
			panic(wasmruntime.ErrRuntimeUnreachable)

		case ir.OpTrap:
			panic(wasmruntime.New(wasmruntime.TrapCode(ins.Flags)))

		case ir.OpCall, ir.OpCallIndirect:
			done, err := ce.doCall(ins, ins.Op == ir.OpCallIndirect, false)
			if err != nil {
				panic(err)
			}
			if done {
				return nil
			}

		case ir.OpReturnCall, ir.OpReturnCallIndirect:
			done, err := ce.doCall(ins, ins.Op == ir.OpReturnCallIndirect, true)
			if err != nil {
				panic(err)
			}
			if done {
				return nil
			}

		case ir.OpDrop:
			ce.pc++

		case ir.OpSelect:
			var v cell.Cell
			if ce.reg(ins.C).U32() != 0 {
				v = ce.reg(ins.A)
			} else {
				v = ce.reg(ins.B)
			}
			ce.setReg(ir.Reg(ins.Imm), v)
			ce.pc++

		case ir.OpLoad:
			v, ok := doLoad(ce.fn.Module.Memory, uint32(ins.Imm), ins, ce.reg(ins.A))
			if !ok {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			ce.setReg(ins.B, v)
			ce.pc++

		case ir.OpStore:
			if !doStore(ce.fn.Module.Memory, uint32(ins.Imm), ins, ce.reg(ins.A), ce.reg(ins.B)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			ce.pc++

		case ir.OpMemorySize:
			ce.setReg(ins.B, cell.FromI32(int32(ce.fn.Module.Memory.PageSize())))
			ce.pc++

		case ir.OpMemoryGrow:
			mem := ce.fn.Module.Memory
			delta := ce.reg(ins.A).U32()
			var prev uint32
			ok := ce.limiter == nil || ce.limiter.LimitMemoryGrow(ce.ctx, mem.PageSize(), mem.PageSize()+delta)
			if ok {
				prev, ok = mem.Grow(delta)
			}
			if !ok {
				ce.setReg(ins.B, cell.FromI32(-1))
			} else {
				ce.setReg(ins.B, cell.FromI32(int32(prev)))
			}
			ce.pc++

		case ir.OpMemoryFill:
			mem := ce.fn.Module.Memory
			dst, val, n := ce.reg(ins.A).U32(), byte(ce.reg(ins.B).U32()), ce.reg(ins.C).U32()
			if uint64(dst)+uint64(n) > uint64(len(mem.Buffer)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			span := mem.Buffer[dst : dst+n]
			for i := range span {
				span[i] = val
			}
			ce.pc++

		case ir.OpMemoryCopy:
			mem := ce.fn.Module.Memory
			dst, src, n := ce.reg(ins.A).U32(), ce.reg(ins.B).U32(), ce.reg(ins.C).U32()
			if uint64(dst)+uint64(n) > uint64(len(mem.Buffer)) || uint64(src)+uint64(n) > uint64(len(mem.Buffer)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			copy(mem.Buffer[dst:dst+n], mem.Buffer[src:src+n])
			ce.pc++

		case ir.OpMemoryInit:
			mem := ce.fn.Module.Memory
			data := ce.fn.Module.DataInstances[ins.Imm]
			dst, src, n := ce.reg(ins.A).U32(), ce.reg(ins.B).U32(), ce.reg(ins.C).U32()
			if uint64(dst)+uint64(n) > uint64(len(mem.Buffer)) || uint64(src)+uint64(n) > uint64(len(data)) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
			copy(mem.Buffer[dst:dst+n], data[src:src+n])
			ce.pc++

		case ir.OpDataDrop:
			ce.fn.Module.DataInstances[ins.Imm] = nil
			ce.pc++

		case ir.OpTableGet:
			table := ce.fn.Module.Tables[ins.Imm]
			idx := ce.reg(ins.A).U32()
			if int(idx) >= len(table.References) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			ce.setReg(ins.B, table.References[idx])
			ce.pc++

		case ir.OpTableSet:
			table := ce.fn.Module.Tables[ins.Imm]
			idx := ce.reg(ins.A).U32()
			if int(idx) >= len(table.References) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			table.References[idx] = ce.reg(ins.B)
			ce.pc++

		case ir.OpTableSize:
			table := ce.fn.Module.Tables[ins.Imm]
			ce.setReg(ins.B, cell.FromI32(int32(len(table.References))))
			ce.pc++

		case ir.OpTableGrow:
			table := ce.fn.Module.Tables[ins.Imm]
			delta := ce.reg(ins.B).U32()
			cur := uint32(len(table.References))
			var prev uint32
			ok := ce.limiter == nil || ce.limiter.LimitTableGrow(ce.ctx, cur, cur+delta)
			if ok {
				prev, ok = table.Grow(delta, ce.reg(ins.A))
			}
			if !ok {
				ce.setReg(ins.C, cell.FromI32(-1))
			} else {
				ce.setReg(ins.C, cell.FromI32(int32(prev)))
			}
			ce.pc++

		case ir.OpTableFill:
			table := ce.fn.Module.Tables[ins.Imm]
			idx, val, n := ce.reg(ins.A).U32(), ce.reg(ins.B), ce.reg(ins.C).U32()
			if uint64(idx)+uint64(n) > uint64(len(table.References)) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			for i := uint32(0); i < n; i++ {
				table.References[idx+i] = val
			}
			ce.pc++

		case ir.OpTableCopy:
			table := ce.fn.Module.Tables[ins.Imm]
			dst, src, n := ce.reg(ins.A).U32(), ce.reg(ins.B).U32(), ce.reg(ins.C).U32()
			if uint64(dst)+uint64(n) > uint64(len(table.References)) || uint64(src)+uint64(n) > uint64(len(table.References)) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			copy(table.References[dst:dst+n], table.References[src:src+n])
			ce.pc++

		case ir.OpTableInit:
			table := ce.fn.Module.Tables[0]
			elem := ce.fn.Module.ElementInstances[ins.Imm]
			dst, src, n := ce.reg(ins.A).U32(), ce.reg(ins.B).U32(), ce.reg(ins.C).U32()
			if uint64(dst)+uint64(n) > uint64(len(table.References)) || uint64(src)+uint64(n) > uint64(len(elem.FuncIndices)) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			for i := uint32(0); i < n; i++ {
				table.References[dst+i] = cell.RefID(elem.FuncIndices[src+i]+1, 0)
			}
			ce.pc++

		case ir.OpElemDrop:
			ce.fn.Module.ElementInstances[ins.Imm].FuncIndices = nil
			ce.pc++

		case ir.OpRefFunc:
			ce.setReg(ins.B, cell.RefID(uint32(ins.Imm)+1, 0))
			ce.pc++

		case ir.OpConsumeFuel:
			if ce.fuel != nil {
				*ce.fuel -= int64(ins.Imm)
				if *ce.fuel < 0 {
					return errOutOfFuel
				}
			}
			ce.pc++

		default:
			evalUnaryOrBinary(ins, ce)
		}
	}
}

// evalUnaryOrBinary handles the large shared arithmetic/compare/convert op
// space: unary ops write through B, binary ops through C, mirroring
// exactly how the translator's emitNumeric allocates each instruction's
// result register.
func evalUnaryOrBinary(ins ir.Instruction, ce *callEngine) {
	if isUnaryNumeric(ins.Op) {
		ce.setReg(ins.B, evalUnary(ins.Op, ins.Flags, ce.reg(ins.A)))
		ce.pc++
		return
	}
	ce.setReg(ins.C, evalBinary(ins.Op, ins.Flags, ce.reg(ins.A), ce.reg(ins.B)))
	ce.pc++
}

func isUnaryNumeric(op ir.Op) bool {
	switch op {
	case ir.OpClz, ir.OpCtz, ir.OpPopcnt, ir.OpAbs, ir.OpNeg, ir.OpCeil, ir.OpFloor,
		ir.OpTrunc, ir.OpNearest, ir.OpSqrt, ir.OpEqz,
		ir.OpWrap64To32, ir.OpExtendS32To64, ir.OpExtendU32To64,
		ir.OpExtend8S, ir.OpExtend16S, ir.OpExtend32S,
		ir.OpTruncF32ToI32S, ir.OpTruncF32ToI32U, ir.OpTruncF32ToI64S, ir.OpTruncF32ToI64U,
		ir.OpTruncF64ToI32S, ir.OpTruncF64ToI32U, ir.OpTruncF64ToI64S, ir.OpTruncF64ToI64U,
		ir.OpTruncSatF32ToI32S, ir.OpTruncSatF32ToI32U, ir.OpTruncSatF32ToI64S, ir.OpTruncSatF32ToI64U,
		ir.OpTruncSatF64ToI32S, ir.OpTruncSatF64ToI32U, ir.OpTruncSatF64ToI64S, ir.OpTruncSatF64ToI64U,
		ir.OpConvertI32SToF32, ir.OpConvertI32UToF32, ir.OpConvertI64SToF32, ir.OpConvertI64UToF32,
		ir.OpConvertI32SToF64, ir.OpConvertI32UToF64, ir.OpConvertI64SToF64, ir.OpConvertI64UToF64,
		ir.OpDemoteF64ToF32, ir.OpPromoteF32ToF64, ir.OpReinterpret, ir.OpRefIsNull:
		return true
	}
	return false
}

// reg reads a register in the current frame: a non-negative index into the
// frame's own window, or a negative index into the function's constant
// table (see ir.Reg.IsConst).
func (ce *callEngine) reg(r ir.Reg) cell.Cell {
	if r.IsConst() {
		return ce.body.Consts[r.ConstIndex()]
	}
	return ce.values.Get(ce.frameBase + int(r))
}

func (ce *callEngine) setReg(r ir.Reg, v cell.Cell) {
	ce.values.Set(ce.frameBase+int(r), v)
}

// doReturn implements OpReturn. It reports done=true only when this was the
// outermost frame's return (nothing left to restore); otherwise it pops the
// caller's frame and leaves the loop running there.
func (ce *callEngine) doReturn(ins ir.Instruction) (done bool) {
	n := int(ins.Imm)
	resBase := ce.frameBase
	if ins.A != ir.NoReg {
		resBase = ce.frameBase + int(ins.A)
	}
	if ce.calls.Len() == 0 {
		ce.doneBase, ce.doneLen = resBase, n
		return true
	}
	returning := ce.fn
	frame := ce.calls.Pop()
	meta := frame.CallerMeta.(callFrameMeta)
	for i := 0; i < n; i++ {
		v := ce.values.Get(resBase + i)
		ce.values.Set(frame.ValueBase+int(meta.resultDst)+i, v)
	}
	ce.values.Truncate(frame.ValueBase + frame.FrameSize)
	if returning.FunctionListener != nil {
		out := make([]uint64, n)
		for i := 0; i < n; i++ {
			out[i] = uint64(ce.values.Get(frame.ValueBase + int(meta.resultDst) + i))
		}
		returning.FunctionListener.After(ce.ctx, returning, nil, out)
	}
	ce.fn, ce.body, ce.frameBase, ce.pc = meta.fn, meta.body, frame.ValueBase, frame.ReturnPC
	return false
}

// collectArgs reads a call's argument span: head.B (if any args at all) plus
// one OpParam word per remaining argument, immediately following the head
// instruction in program order.
func (ce *callEngine) collectArgs(ins ir.Instruction, n int) []cell.Cell {
	if n == 0 {
		return nil
	}
	vals := make([]cell.Cell, n)
	vals[0] = ce.reg(ins.B)
	for i := 1; i < n; i++ {
		vals[i] = ce.reg(ce.body.Instructions[ce.pc+i].A)
	}
	return vals
}

func instrWords(n int) int {
	if n <= 1 {
		return 1
	}
	return n
}

// assertFrameReservation checks that a freshly Reserve'd frame exactly
// covers the tail of the values stack. Only compiled into test binaries
// (buildoptions.IstTest); a violation means the translator's FrameSize
// computation and the stack's bookkeeping have drifted apart.
func assertFrameReservation(ce *callEngine, base, frameSize int) {
	if base+frameSize != ce.values.Len() {
		panic(fmt.Sprintf("frame reservation mismatch: base=%d size=%d values.Len()=%d", base, frameSize, ce.values.Len()))
	}
}

// doCall implements OpCall/OpCallIndirect/OpReturnCall/OpReturnCallIndirect.
// It resolves the callee, collects arguments out of the caller's own
// registers, and either pushes a new frame (ordinary call) or reuses the
// current one in place (tail call) before continuing the same dispatch loop.
func (ce *callEngine) doCall(ins ir.Instruction, indirect, tail bool) (done bool, err error) {
	var callee *wasm.FunctionInstance
	if indirect {
		tableIdx := int(ins.Flags)
		table := ce.fn.Module.Tables[tableIdx]
		slot := ce.reg(ins.A).U32()
		if int(slot) >= len(table.References) {
			panic(wasmruntime.ErrRuntimeInvalidTableAccess)
		}
		ref := table.References[slot]
		if ref.IsNullRef() {
			panic(wasmruntime.ErrRuntimeUninitializedElement)
		}
		fid, _ := cell.SplitRef(ref)
		callee = ce.fn.Module.Functions[fid-1]
		if callee.TypeID != ce.fn.Module.TypeIDs[ins.Imm] {
			panic(wasmruntime.ErrRuntimeIndirectCallTypeMismatch)
		}
	} else {
		callee = ce.fn.Module.Functions[ins.Imm]
	}

	nargs := len(callee.Type.Params)
	argVals := ce.collectArgs(ins, nargs)
	words := instrWords(nargs)

	if callee.IsHostFunction() {
		results := ce.callHost(callee, argVals)
		if tail {
			return ce.returnValues(results), nil
		}
		dst := ins.C
		for i, r := range results {
			ce.setReg(dst+ir.Reg(i), r)
		}
		ce.pc += words
		return false, nil
	}

	body, berr := callee.Body.Body()
	if berr != nil {
		return false, fmt.Errorf("compiling %s: %w", callee.DebugName(), berr)
	}

	if tail {
		ce.values.Truncate(ce.frameBase)
		newBase := ce.values.Reserve(body.FrameSize)
		if buildoptions.IstTest {
			assertFrameReservation(ce, newBase, body.FrameSize)
		}
		for i, v := range argVals {
			ce.values.Set(newBase+i, v)
		}
		ce.fn, ce.body, ce.frameBase, ce.pc = callee, body, newBase, 0
		if callee.FunctionListener != nil {
			ce.ctx = callee.FunctionListener.Before(ce.ctx, callee, cellsToUint64(argVals))
		}
		return false, nil
	}

	returnPC := ce.pc + words
	if pushErr := ce.calls.Push(stack.Frame{
		ReturnPC:   returnPC,
		ValueBase:  ce.frameBase,
		FrameSize:  ce.body.FrameSize,
		CallerMeta: callFrameMeta{fn: ce.fn, body: ce.body, resultDst: ins.C},
	}); pushErr != nil {
		panic(pushErr)
	}
	calleeBase := ce.values.Reserve(body.FrameSize)
	if buildoptions.IstTest {
		assertFrameReservation(ce, calleeBase, body.FrameSize)
	}
	for i, v := range argVals {
		ce.values.Set(calleeBase+i, v)
	}
	ce.fn, ce.body, ce.frameBase, ce.pc = callee, body, calleeBase, 0
	if callee.FunctionListener != nil {
		ce.ctx = callee.FunctionListener.Before(ce.ctx, callee, cellsToUint64(argVals))
	}
	return false, nil
}

// returnValues feeds a host call's results (reached via a tail call to a
// host function) through the same path OpReturn uses, since a tail call to
// a host function ends the current Wasm call exactly like returning does.
// Reports whether this was also the outermost frame's return.
func (ce *callEngine) returnValues(results []cell.Cell) bool {
	n := len(results)
	base := ce.values.Reserve(n)
	for i, v := range results {
		ce.values.Set(base+i, v)
	}
	return ce.doReturn(ir.Instruction{Op: ir.OpReturn, A: ir.Reg(base - ce.frameBase), Imm: int32(n)})
}

func cellsToUint64(cs []cell.Cell) []uint64 {
	out := make([]uint64, len(cs))
	for i, c := range cs {
		out[i] = uint64(c)
	}
	return out
}

// callHost invokes a host function's normalized func(ctx, api.Module,
// []uint64) value directly via reflection: params are encoded into a raw
// stack, the host function reads/overwrites it in place, and the results
// are decoded back out - the same raw-stack calling convention
// api.GoModuleFunction exposes, which the reflective adapter wraps at the
// boundary (see DESIGN.md).
func (ce *callEngine) callHost(fn *wasm.FunctionInstance, args []cell.Cell) []cell.Cell {
	n := len(args)
	if r := len(fn.Type.Results); r > n {
		n = r
	}
	raw := make([]uint64, n)
	for i, a := range args {
		raw[i] = uint64(a)
	}

	var callerCtx *wasm.CallContext
	if ce.fn != nil {
		callerCtx = ce.fn.Module.CallCtx
	} else {
		callerCtx = ce.callCtx
	}

	if fn.FunctionListener != nil {
		ce.ctx = fn.FunctionListener.Before(ce.ctx, fn, raw[:len(args)])
	}

	in := []reflect.Value{reflect.ValueOf(ce.ctx), reflect.ValueOf(api.Module(callerCtx)), reflect.ValueOf(raw)}
	fn.HostFn.Call(in)

	results := make([]cell.Cell, len(fn.Type.Results))
	for i := range results {
		results[i] = cell.Cell(raw[i])
	}
	if fn.FunctionListener != nil {
		fn.FunctionListener.After(ce.ctx, fn, nil, cellsToUint64(results))
	}
	return results
}
