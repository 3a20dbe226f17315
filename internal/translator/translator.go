// Package translator performs the single-pass lowering from a validated
// Wasm operator stream (internal/wasmir) directly into the register-machine
// bytecode the executor runs (internal/ir) - no intermediate stack-machine
// IR, no second pass. It owns the operand stack (as register allocation),
// the control stack (for label resolution and drop-range computation), and
// local-preservation bookkeeping, collapsed into a single pass rather than
// a separate stack-machine IR followed by a lowering pass.
package translator

import (
	"fmt"

	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/code"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/wasmir"
)

// FuncType is the minimal signature information the translator needs: how
// many parameters and results a function (or, for block types, a block)
// has, and their numeric types.
type FuncType struct {
	Params  []ir.NumType
	Results []ir.NumType
}

// Module is the read-only view of module-wide information the translator
// consults while lowering one function: its type section (for block types
// and call_indirect / call signature checks) and whether fuel metering
// should be woven into the output.
type Module struct {
	Types       []FuncType
	FuelMetered bool

	// MaxStackHeight, if non-zero, bounds the register-stack height (params,
	// locals, and translator-allocated temporaries combined) a function may
	// require; run rejects a function that would exceed it instead of
	// letting maxHeight grow unbounded.
	MaxStackHeight uint32
}

// Input is everything needed to translate one function body.
type Input struct {
	Module      *Module
	Ops         []wasmir.Operator
	ParamTypes  []ir.NumType
	LocalTypes  []ir.NumType // additional locals declared by the function itself
	ResultTypes []ir.NumType
}

// Translate lowers a single function's operator stream into a code.Body.
// It implements code.Source so it can be used directly for lazy
// compilation: Input captures everything Translate needs and nothing it
// doesn't, so a Source value can be held onto cheaply until first call.
func (in Input) Translate() (*code.Body, error) {
	localTypes := make([]ir.NumType, 0, len(in.ParamTypes)+len(in.LocalTypes))
	localTypes = append(localTypes, in.ParamTypes...)
	localTypes = append(localTypes, in.LocalTypes...)
	t := &translator{
		mod:                in.Module,
		numParams:          len(in.ParamTypes),
		numParamsAndLocals: len(in.ParamTypes) + len(in.LocalTypes),
		localTypes:         localTypes,
		constIndex:         map[cell.Cell]int{},
	}
	if err := t.run(in.Ops, in.ResultTypes); err != nil {
		return nil, err
	}
	return &code.Body{
		Instructions:       t.out,
		Consts:             t.consts,
		BrTables:           t.brTables,
		NumParams:          t.numParams,
		NumParamsAndLocals: t.numParamsAndLocals,
		FrameSize:          t.maxHeight,
	}, nil
}

// controlKind distinguishes the three structured control constructs; each
// gets its own label-resolution treatment below.
type controlKind uint8

const (
	ctrlBlock controlKind = iota
	ctrlLoop
	ctrlIf
)

// controlFrame is one entry of the translator's control stack, tracking
// everything needed to resolve branches that target this level once it is
// reached (for block/if, "reached" means End; for loop, the label is simply
// the frame's own start, resolved immediately).
type controlFrame struct {
	kind             controlKind
	heightAtEntry    int // register-stack height when this construct was entered
	hasResult        bool
	resultType       ir.NumType
	labelPC          int // loop: instruction index to branch back to. block/if: unused until End.
	startUnreachable bool
	// pendingExits holds one patch per Br/BrIf/BrTable-entry still waiting
	// to be resolved to "one past End", the relocation-callback pattern
	// interpreter.go uses (onLabelAddressResolved) expressed as a deferred
	// patch list instead.
	pendingExits []patch
	// elseJumpPatch is the index of the Br emitted at the end of an if's
	// then-branch (to skip over the else-branch); -1 if this frame isn't an
	// if, or its else hasn't been reached yet.
	elseJumpPatch int
}

// patch identifies one not-yet-resolved branch relocation: either a plain
// instruction (Br/BrIfZero/BrIfNonzero, patched through its own Imm) or one
// entry of a br_table's side table (patched through BranchTarget.Offset,
// relative to the br_table instruction itself).
type patch struct {
	instrIdx int // >= 0 for a plain branch instruction, -1 for a br_table entry
	tableIdx int
	entryIdx int
	fromPC   int // instruction index the offset is relative to (only used for br_table entries)
}

// translator holds all per-function mutable state during lowering.
type translator struct {
	mod *Module

	out        []ir.Instruction
	brTables   [][]ir.BranchTarget
	consts     []cell.Cell
	constIndex map[cell.Cell]int

	numParams          int
	numParamsAndLocals int
	resultCount        int
	localTypes         []ir.NumType // numParamsAndLocals entries: params, then declared locals

	// valueTypes mirrors the operand stack's numeric types; valueTypes[i]
	// describes the value whose register is numParamsAndLocals+i. Needed to
	// know e.g. which comparison/arithmetic opcode flavor a bare "Numeric"
	// operator resolves to isn't required (the Operator already carries
	// that), but it *is* needed for select and drop-range sizing.
	valueTypes []ir.NumType
	maxHeight  int

	ctrl []controlFrame

	// unreachable marks that the translator is in statically-dead code
	// (after an unconditional br, br_table, return, or unreachable, until
	// the matching Else/End), per the Wasm validation algorithm's
	// "polymorphic stack" handling: operand-stack pops are permitted to
	// succeed trivially while unreachable, since the code can never run.
	unreachable bool

	// tooManySlots is set once params+locals+operand-stack height would
	// require a register index outside ir.Reg's valid range. Checked once,
	// at the end of run, rather than threading an error return through
	// every push/regAt call site.
	tooManySlots bool
}

// maxRegSlots is one past the highest valid non-negative ir.Reg value: valid
// register indices are 0..maxRegSlots-1; ir.NoReg itself is a reserved
// sentinel, and anything beyond it would wrap into ir.Reg's negative
// (function-local-constant) range.
const maxRegSlots = int(ir.NoReg)

// run lowers the function body. The implicit outer "function" frame models
// the function's own result list so that a plain `end` (falling off the end
// of the body) and an explicit `return` share exactly the same exit path;
// only the function's first result type is tracked precisely (matching the
// rest of this translator's single-result block-type model) but the exit
// instruction itself always copies the full result count.
func (t *translator) run(ops []wasmir.Operator, resultTypes []ir.NumType) error {
	outer := controlFrame{kind: ctrlBlock, heightAtEntry: 0, elseJumpPatch: -1}
	if len(resultTypes) > 0 {
		outer.hasResult = true
		outer.resultType = resultTypes[0]
	}
	t.resultCount = len(resultTypes)
	t.ctrl = append(t.ctrl, outer)

	if t.numParamsAndLocals > maxRegSlots {
		t.tooManySlots = true
	}

	// Coarse fuel model: one unit per call (charged here, at entry) plus one
	// unit per loop back-edge actually taken (charged in emitBranch/
	// emitConditionalBranch below). This bounds unbounded recursion and
	// unbounded looping, the two ways a function can run forever, without
	// wasmi's precise per-basic-block instruction-count accounting.
	t.maybeConsumeFuel(1)

	for _, op := range ops {
		if err := t.step(op); err != nil {
			return err
		}
	}
	if len(t.ctrl) > 1 {
		return fmt.Errorf("translator: unterminated control construct(s) at end of function")
	}
	if t.tooManySlots {
		return fmt.Errorf("translator: too many slots allocated")
	}
	if max := t.mod.MaxStackHeight; max != 0 && uint32(t.maxHeight) > max {
		return fmt.Errorf("translator: value stack height %d exceeds configured maximum %d", t.maxHeight, max)
	}
	t.emitReturn()
	return nil
}

// emitReturn emits the function-exit OpReturn for however many result
// values are currently on top of the operand stack (the function's full
// result arity, contiguous since the operand stack is).
func (t *translator) emitReturn() {
	n := t.resultCount
	base := ir.NoReg
	if n > 0 && !(t.unreachable && t.height() < n) {
		base = t.regAt(t.height() - n)
	}
	t.emit(ir.Instruction{Op: ir.OpReturn, A: base, Imm: int32(n)})
}

func (t *translator) height() int { return len(t.valueTypes) }

// regAt returns the register currently holding the operand-stack value at
// depth (0 = bottom of the operand stack, not top) - i.e. the absolute
// register index for logical stack slot i.
func (t *translator) regAt(i int) ir.Reg { return ir.Reg(t.numParamsAndLocals + i) }

func (t *translator) push(ty ir.NumType) ir.Reg {
	if t.numParamsAndLocals+t.height() >= maxRegSlots {
		t.tooManySlots = true
	}
	r := t.regAt(t.height())
	t.valueTypes = append(t.valueTypes, ty)
	if h := t.height() + t.numParamsAndLocals; h > t.maxHeight {
		t.maxHeight = h
	}
	return r
}

func (t *translator) pop() (ir.Reg, ir.NumType) {
	if t.unreachable && t.height() == 0 {
		// Polymorphic stack: manufacture a phantom register; nothing will
		// ever read it since this code is unreachable.
		return ir.NoReg, ir.TypeI32
	}
	n := t.height() - 1
	r := t.regAt(n)
	ty := t.valueTypes[n]
	t.valueTypes = t.valueTypes[:n]
	return r, ty
}

func (t *translator) emit(ins ir.Instruction) int {
	t.out = append(t.out, ins)
	return len(t.out) - 1
}

// maybeConsumeFuel emits OpConsumeFuel if this function's module has fuel
// metering enabled, a no-op otherwise.
func (t *translator) maybeConsumeFuel(n int32) {
	if t.mod.FuelMetered {
		t.emit(ir.Instruction{Op: ir.OpConsumeFuel, Imm: n})
	}
}

func (t *translator) internConst(c cell.Cell) ir.Reg {
	idx, ok := t.constIndex[c]
	if !ok {
		idx = len(t.consts)
		t.consts = append(t.consts, c)
		t.constIndex[c] = idx
	}
	return ir.ConstReg(idx)
}

// blockResult resolves a wasmir.BlockType into the simplified single-result
// model this translator's register IR supports for structured control;
// multi-value block types route through the module's type section purely
// for arity/type information used by validation-adjacent bookkeeping.
func (t *translator) blockResult(bt wasmir.BlockType) (hasResult bool, ty ir.NumType) {
	if bt.IsTypeIndex {
		ft := t.mod.Types[bt.TypeIndex]
		if len(ft.Results) == 1 {
			return true, ft.Results[0]
		}
		return false, 0
	}
	return bt.HasResult, bt.ResultType
}

func (t *translator) step(op wasmir.Operator) error {
	switch op.Op {
	case wasmir.OpUnreachable:
		t.emit(ir.Instruction{Op: ir.OpUnreachable})
		t.unreachable = true

	case wasmir.OpNop:
		// no instruction emitted

	case wasmir.OpBlock:
		hasResult, ty := t.blockResult(op.Block)
		t.ctrl = append(t.ctrl, controlFrame{
			kind: ctrlBlock, heightAtEntry: t.height(), hasResult: hasResult,
			resultType: ty, elseJumpPatch: -1, startUnreachable: t.unreachable,
		})

	case wasmir.OpLoop:
		hasResult, ty := t.blockResult(op.Block)
		t.ctrl = append(t.ctrl, controlFrame{
			kind: ctrlLoop, heightAtEntry: t.height(), hasResult: hasResult,
			resultType: ty, labelPC: len(t.out), elseJumpPatch: -1, startUnreachable: t.unreachable,
		})

	case wasmir.OpIf:
		cond, _ := t.pop()
		hasResult, ty := t.blockResult(op.Block)
		brIfZero := t.emit(ir.Instruction{Op: ir.OpBrIfZero, A: cond})
		t.ctrl = append(t.ctrl, controlFrame{
			kind: ctrlIf, heightAtEntry: t.height(), hasResult: hasResult,
			resultType: ty, elseJumpPatch: -1, startUnreachable: t.unreachable,
			pendingExits: []patch{{instrIdx: brIfZero}},
		})

	case wasmir.OpElse:
		f := t.top()
		// The pending BrIfZero from If jumps here, to the start of else.
		t.resolvePatch(f.pendingExits[0], len(t.out))
		f.pendingExits = f.pendingExits[1:]
		thenJump := t.emit(ir.Instruction{Op: ir.OpBr})
		f.elseJumpPatch = thenJump
		f.pendingExits = append(f.pendingExits, patch{instrIdx: thenJump})
		t.resetHeightTo(f.heightAtEntry)
		t.unreachable = f.startUnreachable

	case wasmir.OpEnd:
		f := t.popCtrl()
		for _, p := range f.pendingExits {
			t.resolvePatch(p, len(t.out))
		}
		t.unreachable = false
		t.resetHeightTo(f.heightAtEntry)
		if f.hasResult {
			t.push(f.resultType)
		}

	case wasmir.OpBr:
		t.emitBranch(op.LabelDepth, true)
		t.unreachable = true

	case wasmir.OpBrIf:
		cond, _ := t.pop()
		t.emitConditionalBranch(op.LabelDepth, cond)

	case wasmir.OpBrTable:
		idxReg, _ := t.pop()
		tableIdx := len(t.brTables)
		brTablePC := len(t.out)
		targets := make([]ir.BranchTarget, len(op.BrTable))
		t.brTables = append(t.brTables, targets)
		for i, e := range op.BrTable {
			targets[i] = t.branchTargetFor(e.LabelDepth, brTablePC, i, tableIdx)
		}
		t.emit(ir.Instruction{Op: ir.OpBrTable, A: idxReg, Imm: int32(tableIdx)})
		for i, e := range op.BrTable {
			if t.branchNeedsShuffle(e.LabelDepth) {
				t.emitBrTableShuffleThunk(e.LabelDepth, brTablePC, tableIdx, i)
			}
		}
		t.unreachable = true

	case wasmir.OpReturn:
		t.emitReturn()
		t.unreachable = true

	case wasmir.OpCall, wasmir.OpReturnCall:
		return t.emitCall(op, false)
	case wasmir.OpCallIndirect, wasmir.OpReturnCallIndirect:
		return t.emitCall(op, true)

	case wasmir.OpDrop:
		t.pop()

	case wasmir.OpSelect:
		cond, _ := t.pop()
		b, ty := t.pop()
		a, _ := t.pop()
		dst := t.push(ty)
		t.emit(ir.Instruction{Op: ir.OpSelect, A: a, B: b, C: cond, Imm: int32(dst)})

	case wasmir.OpLocalGet:
		dst := t.push(t.localTypes[op.Local])
		t.emit(ir.Instruction{Op: ir.OpCopy, A: ir.Reg(op.Local), Imm: int32(dst)})

	case wasmir.OpLocalSet, wasmir.OpLocalTee:
		src, ty := t.pop()
		t.emit(ir.Instruction{Op: ir.OpCopy, A: src, Imm: int32(op.Local)})
		if op.Op == wasmir.OpLocalTee {
			t.push(ty)
			t.emit(ir.Instruction{Op: ir.OpCopy, A: ir.Reg(op.Local), Imm: int32(t.regAt(t.height() - 1))})
		}

	case wasmir.OpGlobalGet:
		dst := t.push(op.OutType)
		t.emit(ir.Instruction{Op: ir.OpGlobalGet, Imm: int32(op.Global), B: dst})

	case wasmir.OpGlobalSet:
		src, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpGlobalSet, A: src, Imm: int32(op.Global)})

	case wasmir.OpLoad:
		addr, _ := t.pop()
		dst := t.push(op.OutType)
		t.emit(ir.Instruction{
			Op: ir.OpLoad, A: addr, B: dst, Imm: int32(op.Mem.Offset),
			Flags: ir.MemAccessFlags(op.OutType, op.Mem.Width, op.Signed),
		})

	case wasmir.OpStore:
		val, _ := t.pop()
		addr, _ := t.pop()
		t.emit(ir.Instruction{
			Op: ir.OpStore, A: addr, B: val, Imm: int32(op.Mem.Offset),
			Flags: ir.MemAccessFlags(op.InType, op.Mem.Width, false),
		})

	case wasmir.OpMemorySize:
		dst := t.push(ir.TypeI32)
		t.emit(ir.Instruction{Op: ir.OpMemorySize, B: dst})

	case wasmir.OpMemoryGrow:
		delta, _ := t.pop()
		dst := t.push(ir.TypeI32)
		t.emit(ir.Instruction{Op: ir.OpMemoryGrow, A: delta, B: dst})

	case wasmir.OpMemoryFill:
		n, _ := t.pop()
		val, _ := t.pop()
		dst, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpMemoryFill, A: dst, B: val, C: n})

	case wasmir.OpMemoryCopy:
		n, _ := t.pop()
		src, _ := t.pop()
		dst, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpMemoryCopy, A: dst, B: src, C: n})

	case wasmir.OpMemoryInit:
		n, _ := t.pop()
		src, _ := t.pop()
		dst, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpMemoryInit, A: dst, B: src, C: n, Imm: int32(op.Data)})

	case wasmir.OpDataDrop:
		t.emit(ir.Instruction{Op: ir.OpDataDrop, Imm: int32(op.Data)})

	case wasmir.OpTableGet:
		idx, _ := t.pop()
		dst := t.push(ir.TypeI64)
		t.emit(ir.Instruction{Op: ir.OpTableGet, A: idx, B: dst, Imm: int32(op.Table)})

	case wasmir.OpTableSet:
		val, _ := t.pop()
		idx, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpTableSet, A: idx, B: val, Imm: int32(op.Table)})

	case wasmir.OpTableSize:
		dst := t.push(ir.TypeI32)
		t.emit(ir.Instruction{Op: ir.OpTableSize, B: dst, Imm: int32(op.Table)})

	case wasmir.OpTableGrow:
		n, _ := t.pop()
		val, _ := t.pop()
		dst := t.push(ir.TypeI32)
		t.emit(ir.Instruction{Op: ir.OpTableGrow, A: val, B: n, C: dst, Imm: int32(op.Table)})

	case wasmir.OpTableFill:
		n, _ := t.pop()
		val, _ := t.pop()
		idx, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpTableFill, A: idx, B: val, C: n, Imm: int32(op.Table)})

	case wasmir.OpTableCopy:
		n, _ := t.pop()
		src, _ := t.pop()
		dst, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpTableCopy, A: dst, B: src, C: n, Imm: int32(op.Table)})

	case wasmir.OpTableInit:
		n, _ := t.pop()
		src, _ := t.pop()
		dst, _ := t.pop()
		t.emit(ir.Instruction{Op: ir.OpTableInit, A: dst, B: src, C: n, Imm: int32(op.Elem)})

	case wasmir.OpElemDrop:
		t.emit(ir.Instruction{Op: ir.OpElemDrop, Imm: int32(op.Elem)})

	case wasmir.OpRefNull:
		dst := t.push(ir.TypeI64)
		t.emit(ir.Instruction{Op: ir.OpConst, Imm: int32(t.internConst(cell.Zero)), B: dst})

	case wasmir.OpRefIsNull:
		src, _ := t.pop()
		dst := t.push(ir.TypeI32)
		t.emit(ir.Instruction{Op: ir.OpEqz, A: src, B: dst})

	case wasmir.OpRefFunc:
		dst := t.push(ir.TypeI64)
		t.emit(ir.Instruction{Op: ir.OpRefFunc, Imm: int32(op.Func), B: dst})

	case wasmir.OpConstI32:
		dst := t.push(ir.TypeI32)
		t.emit(ir.Instruction{Op: ir.OpConst, Imm: int32(t.internConst(cell.FromI32(op.I32))), B: dst})
	case wasmir.OpConstI64:
		dst := t.push(ir.TypeI64)
		t.emit(ir.Instruction{Op: ir.OpConst, Imm: int32(t.internConst(cell.FromI64(op.I64))), B: dst})
	case wasmir.OpConstF32:
		dst := t.push(ir.TypeF32)
		t.emit(ir.Instruction{Op: ir.OpConst, Imm: int32(t.internConst(cell.FromF32(op.F32))), B: dst})
	case wasmir.OpConstF64:
		dst := t.push(ir.TypeF64)
		t.emit(ir.Instruction{Op: ir.OpConst, Imm: int32(t.internConst(cell.FromF64(op.F64))), B: dst})

	case wasmir.OpNumeric:
		t.emitNumeric(op)

	default:
		return fmt.Errorf("translator: unsupported operator %v", op.Op)
	}
	return nil
}

func (t *translator) top() *controlFrame { return &t.ctrl[len(t.ctrl)-1] }

func (t *translator) popCtrl() controlFrame {
	f := t.ctrl[len(t.ctrl)-1]
	t.ctrl = t.ctrl[:len(t.ctrl)-1]
	return f
}

func (t *translator) resetHeightTo(h int) {
	t.valueTypes = t.valueTypes[:h]
}

// frameAt returns the control frame labelDepth levels up from the
// innermost (0 = innermost enclosing construct).
func (t *translator) frameAt(labelDepth uint32) *controlFrame {
	return &t.ctrl[len(t.ctrl)-1-int(labelDepth)]
}

// dropRangeFor computes the BranchTarget drop range for a branch targeting
// labelDepth: everything between the target's result value(s), on top, and
// the construct's height at entry must be discarded when branching.
func (t *translator) dropRangeFor(labelDepth uint32) (from, to uint32, ok bool) {
	f := t.frameAt(labelDepth)
	arity := 0
	if f.hasResult {
		arity = 1
	}
	top := t.height() - arity - 1
	bottom := f.heightAtEntry
	if top < bottom {
		return 0, 0, false
	}
	return uint32(bottom), uint32(top), true
}

// branchTargetFor builds the BranchTarget for one br_table entry, resolved
// immediately for a loop (backward edge) or left for resolvePatchTable to
// fill in once the target's End is reached. When reaching this arm's target
// requires moving a result value into the target's expected register, the
// Offset is left for emitBrTableShuffleThunk to fill in once the br_table
// instruction itself has been emitted: the arm jumps to a small out-of-line
// shuffle thunk instead of straight to the target.
func (t *translator) branchTargetFor(labelDepth uint32, brTablePC, entryIdx, tableIdx int) ir.BranchTarget {
	f := t.frameAt(labelDepth)
	bt := ir.BranchTarget{DropFrom: 1, DropTo: 0}
	if from, to, ok := t.dropRangeFor(labelDepth); ok {
		bt.DropFrom, bt.DropTo = from, to
	}
	if t.branchNeedsShuffle(labelDepth) {
		return bt
	}
	if f.kind == ctrlLoop {
		bt.Offset = int32(f.labelPC - brTablePC)
	} else {
		f.pendingExits = append(f.pendingExits, patch{instrIdx: -1, tableIdx: tableIdx, entryIdx: entryIdx, fromPC: brTablePC})
	}
	return bt
}

// branchNeedsShuffle reports whether branching to labelDepth actually has to
// move a value: the target has a result, and that result isn't already
// sitting at the register the target expects it in.
func (t *translator) branchNeedsShuffle(labelDepth uint32) bool {
	from, to, ok := t.dropRangeFor(labelDepth)
	if !ok || from > to {
		return false
	}
	f := t.frameAt(labelDepth)
	if !f.hasResult {
		return false
	}
	return t.regAt(t.height()-1) != t.regAt(int(to))
}

// shuffleResultDown emits the copy needed so a branch's result value (if
// the target construct has one) ends up sitting exactly at the target's
// expected register rather than wherever it happens to be on top of the
// current, possibly deeper, operand stack. Callers are responsible for only
// reaching this on an edge that actually takes the branch: plain Br, the
// taken edge of a split br_if (see emitConditionalBranch), and a br_table
// arm's shuffle thunk (see emitBrTableShuffleThunk) - never a br_if's
// fallthrough edge, which keeps the pre-branch stack layout untouched.
func (t *translator) shuffleResultDown(labelDepth uint32) {
	if !t.branchNeedsShuffle(labelDepth) {
		return
	}
	from, _, _ := t.dropRangeFor(labelDepth)
	src := t.regAt(t.height() - 1)
	dst := t.regAt(int(from))
	t.emit(ir.Instruction{Op: ir.OpCopy, A: src, Imm: int32(dst)})
}

// emitBranch emits an unconditional Br to labelDepth, recording a pending
// patch if the target hasn't been reached yet (block/if) or computing the
// backward offset directly (loop).
func (t *translator) emitBranch(labelDepth uint32, _ bool) {
	t.shuffleResultDown(labelDepth)
	f := t.frameAt(labelDepth)
	if f.kind == ctrlLoop {
		t.maybeConsumeFuel(1)
	}
	idx := t.emit(ir.Instruction{Op: ir.OpBr})
	if f.kind == ctrlLoop {
		t.out[idx].Imm = int32(f.labelPC - idx)
	} else {
		f.pendingExits = append(f.pendingExits, patch{instrIdx: idx})
	}
}

// emitConditionalBranch emits a br_if to labelDepth. A conditional branch
// has two live successors, and only the taken one may have the target's
// result value shuffled into place: the fallthrough edge must keep the
// pre-branch stack layout exactly as it is, since the target construct's
// result register is meaningless there. When the taken edge needs neither a
// shuffle nor a fuel charge this is a single BrIfNonzero, same as ever;
// otherwise the edge is split by inverting the condition and routing the
// taken path through the fuel charge (fuel-metered loop back-edge only) and
// the shuffle before an unconditional jump to the real target:
//
//	BrIfZero  cond -> skip   ; false: fall through untouched
//	<consume fuel>
//	<shuffle copy>
//	Br        -> target
//	skip:
func (t *translator) emitConditionalBranch(labelDepth uint32, cond ir.Reg) {
	f := t.frameAt(labelDepth)
	if !t.branchNeedsShuffle(labelDepth) && !(f.kind == ctrlLoop && t.mod.FuelMetered) {
		idx := t.emit(ir.Instruction{Op: ir.OpBrIfNonzero, A: cond})
		if f.kind == ctrlLoop {
			t.out[idx].Imm = int32(f.labelPC - idx)
		} else {
			f.pendingExits = append(f.pendingExits, patch{instrIdx: idx})
		}
		return
	}

	skip := t.emit(ir.Instruction{Op: ir.OpBrIfZero, A: cond})
	if f.kind == ctrlLoop {
		t.maybeConsumeFuel(1)
	}
	t.shuffleResultDown(labelDepth)
	idx := t.emit(ir.Instruction{Op: ir.OpBr})
	if f.kind == ctrlLoop {
		t.out[idx].Imm = int32(f.labelPC - idx)
	} else {
		f.pendingExits = append(f.pendingExits, patch{instrIdx: idx})
	}
	t.out[skip].Imm = int32(len(t.out) - skip)
}

// emitBrTableShuffleThunk emits the out-of-line shuffle copy for a br_table
// arm whose target has a result that must move into the target's expected
// register, followed by an unconditional branch on to the real target.
// branchTargetFor leaves this arm's BranchTarget.Offset unset; it is pointed
// at the thunk here, once the thunk's address is known. The thunk is only
// ever reached via the branch table itself - br_table always leaves the
// current sequential flow, so nothing falls into it by accident.
func (t *translator) emitBrTableShuffleThunk(labelDepth uint32, brTablePC, tableIdx, entryIdx int) {
	f := t.frameAt(labelDepth)
	thunkPC := len(t.out)
	t.shuffleResultDown(labelDepth)
	idx := t.emit(ir.Instruction{Op: ir.OpBr})
	if f.kind == ctrlLoop {
		t.out[idx].Imm = int32(f.labelPC - idx)
	} else {
		f.pendingExits = append(f.pendingExits, patch{instrIdx: idx})
	}
	t.brTables[tableIdx][entryIdx].Offset = int32(thunkPC - brTablePC)
}

// resolvePatch fills in a deferred relocation now that its target address
// (target, an absolute instruction index) is known.
func (t *translator) resolvePatch(p patch, target int) {
	if p.instrIdx >= 0 {
		t.out[p.instrIdx].Imm = int32(target - p.instrIdx)
		return
	}
	t.brTables[p.tableIdx][p.entryIdx].Offset = int32(target - p.fromPC)
}

func (t *translator) emitCall(op wasmir.Operator, indirect bool) error {
	var ft FuncType
	isReturnCall := op.Op == wasmir.OpReturnCall || op.Op == wasmir.OpReturnCallIndirect
	if indirect {
		if int(op.TypeIndex) >= len(t.mod.Types) {
			return fmt.Errorf("translator: call_indirect type index %d out of range", op.TypeIndex)
		}
		ft = t.mod.Types[op.TypeIndex]
	} else {
		if int(op.TypeIndex) >= len(t.mod.Types) {
			return fmt.Errorf("translator: call target type index %d out of range", op.TypeIndex)
		}
		ft = t.mod.Types[op.TypeIndex]
	}

	args := make([]ir.Reg, len(ft.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i], _ = t.pop()
	}
	var tableSlot ir.Reg
	if indirect {
		tableSlot, _ = t.pop()
	}

	kind := ir.OpCall
	if indirect {
		kind = ir.OpCallIndirect
	}
	if isReturnCall {
		if indirect {
			kind = ir.OpReturnCallIndirect
		} else {
			kind = ir.OpReturnCall
		}
	}

	resultBase := t.height()
	for _, rty := range ft.Results {
		t.push(rty)
	}

	head := ir.Instruction{Op: kind, Imm: int32(op.Func)}
	if indirect {
		head.A = tableSlot
		head.Imm = int32(op.TypeIndex)
		head.Flags = byte(op.Table)
	}
	if len(args) > 0 {
		head.B = args[0]
	} else {
		head.B = ir.NoReg
	}
	head.C = ir.Reg(resultBase + t.numParamsAndLocals)
	t.emit(head)
	for _, a := range args[minInt(1, len(args)):] {
		t.emit(ir.Instruction{Op: ir.OpParam, A: a})
	}
	if isReturnCall {
		t.unreachable = true
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// emitNumeric dispatches a unary/binary/compare/convert operator straight
// through to the matching ir.Op, allocating one result register and
// consuming one or two operand registers as appropriate. This is the bulk
// of the instruction set and needs no control-flow bookkeeping at all,
// which is exactly why wasmir folded all of it under one Operator shape.
func (t *translator) emitNumeric(op wasmir.Operator) {
	switch op.Numeric {
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
		ir.OpDemoteF64ToF32, ir.OpPromoteF32ToF64, ir.OpReinterpret:
		src, _ := t.pop()
		dst := t.push(op.OutType)
		t.emit(ir.Instruction{Op: op.Numeric, A: src, B: dst, Flags: ir.LoadStoreFlags(op.InType, op.Signed)})
	default: // binary arithmetic / comparisons
		rhs, _ := t.pop()
		lhs, _ := t.pop()
		dst := t.push(op.OutType)
		t.emit(ir.Instruction{Op: op.Numeric, A: lhs, B: rhs, C: dst, Flags: ir.LoadStoreFlags(op.InType, op.Signed)})
	}
}
