package translator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/ir"
	"github.com/wazeroir/regwasm/internal/wasmir"
)

// TestTranslate_StraightLineDeterminism checks both that a simple arithmetic
// body lowers to the exact expected register-machine instructions and that
// translating the same Input twice produces byte-identical output: the
// translator carries no hidden state across calls.
func TestTranslate_StraightLineDeterminism(t *testing.T) {
	in := Input{
		Module: &Module{},
		Ops: []wasmir.Operator{
			{Op: wasmir.OpConstI32, I32: 2},
			{Op: wasmir.OpConstI32, I32: 3},
			{Op: wasmir.OpNumeric, Numeric: ir.OpAdd, InType: ir.TypeI32, OutType: ir.TypeI32},
		},
		ResultTypes: []ir.NumType{ir.TypeI32},
	}

	want := []ir.Instruction{
		{Op: ir.OpConst, Imm: int32(ir.ConstReg(0)), B: 0},
		{Op: ir.OpConst, Imm: int32(ir.ConstReg(1)), B: 1},
		{Op: ir.OpAdd, A: 0, B: 1, C: 0},
		{Op: ir.OpReturn, A: 0, Imm: 1},
	}

	body, err := in.Translate()
	require.NoError(t, err)
	require.Equal(t, want, body.Instructions)
	require.Equal(t, []cell.Cell{cell.FromI32(2), cell.FromI32(3)}, body.Consts)
	require.Equal(t, 2, body.FrameSize)

	again, err := in.Translate()
	require.NoError(t, err)
	require.Equal(t, body, again)
}

// TestTranslate_LocalGet checks a bare local.get lowers to a copy from the
// local's own register into a fresh operand-stack slot.
func TestTranslate_LocalGet(t *testing.T) {
	in := Input{
		Module:      &Module{},
		Ops:         []wasmir.Operator{{Op: wasmir.OpLocalGet, Local: 0}},
		ParamTypes:  []ir.NumType{ir.TypeI32},
		ResultTypes: []ir.NumType{ir.TypeI32},
	}

	body, err := in.Translate()
	require.NoError(t, err)
	require.Equal(t, []ir.Instruction{
		{Op: ir.OpCopy, A: 0, Imm: 1},
		{Op: ir.OpReturn, A: 1, Imm: 1},
	}, body.Instructions)
}

// TestTranslate_BrIfShufflesResultAcrossDropRange is a regression test for a
// br_if branching out of a block with a result, over a live value still
// sitting underneath it on the operand stack. The taken edge must copy the
// result into the target's expected register before jumping; the
// fallthrough edge must leave the pre-branch stack untouched. Without that
// copy, the branch would silently carry the wrong value out of the block.
func TestTranslate_BrIfShufflesResultAcrossDropRange(t *testing.T) {
	in := Input{
		Module: &Module{},
		Ops: []wasmir.Operator{
			{Op: wasmir.OpBlock, Block: wasmir.BlockType{HasResult: true, ResultType: ir.TypeI32}},
			{Op: wasmir.OpConstI32, I32: 11}, // extra value, lives under the result
			{Op: wasmir.OpConstI32, I32: 22}, // the value that becomes the branch's result
			{Op: wasmir.OpConstI32, I32: 1},  // condition
			{Op: wasmir.OpBrIf, LabelDepth: 0},
			{Op: wasmir.OpDrop},
			{Op: wasmir.OpDrop},
			{Op: wasmir.OpEnd},
		},
	}

	body, err := in.Translate()
	require.NoError(t, err)
	require.Len(t, body.Instructions, 7)

	require.Equal(t, ir.Instruction{Op: ir.OpConst, Imm: int32(ir.ConstReg(0)), B: 0}, body.Instructions[0])
	require.Equal(t, ir.Instruction{Op: ir.OpConst, Imm: int32(ir.ConstReg(1)), B: 1}, body.Instructions[1])
	require.Equal(t, ir.Instruction{Op: ir.OpConst, Imm: int32(ir.ConstReg(2)), B: 2}, body.Instructions[2])

	// BrIfZero skips the shuffle+Br (false condition: fall through with the
	// pre-branch stack layout intact).
	require.Equal(t, ir.Instruction{Op: ir.OpBrIfZero, A: 2, Imm: 3}, body.Instructions[3])
	// Taken edge: shuffle the result (register 1) down into the register the
	// block's target expects (register 0), then jump.
	require.Equal(t, ir.Instruction{Op: ir.OpCopy, A: 1, Imm: 0}, body.Instructions[4])
	require.Equal(t, ir.OpBr, body.Instructions[5].Op)
	require.Equal(t, int32(1), body.Instructions[5].Imm)

	require.Equal(t, ir.Instruction{Op: ir.OpReturn, A: ir.NoReg, Imm: 0}, body.Instructions[6])
}

// TestTranslate_BrTableShufflesViaOutOfLineThunk mirrors the br_if case for
// br_table: an arm whose target needs a shuffle routes through an
// out-of-line thunk emitted after the table, rather than jumping straight to
// the target with the result left in the wrong register.
func TestTranslate_BrTableShufflesViaOutOfLineThunk(t *testing.T) {
	in := Input{
		Module: &Module{},
		Ops: []wasmir.Operator{
			{Op: wasmir.OpBlock, Block: wasmir.BlockType{HasResult: true, ResultType: ir.TypeI32}},
			{Op: wasmir.OpConstI32, I32: 11}, // extra value, lives under the result
			{Op: wasmir.OpConstI32, I32: 22}, // the branch's result
			{Op: wasmir.OpConstI32, I32: 0},  // br_table index
			{Op: wasmir.OpBrTable, BrTable: []wasmir.BrTableEntry{{LabelDepth: 0}, {LabelDepth: 0}}},
			{Op: wasmir.OpEnd},
		},
	}

	body, err := in.Translate()
	require.NoError(t, err)
	require.Len(t, body.BrTables, 1)

	brTablePC := 3 // index of the OpBrTable instruction itself
	require.Equal(t, ir.OpBrTable, body.Instructions[brTablePC].Op)

	for _, target := range body.BrTables[0] {
		require.Equal(t, uint32(0), target.DropFrom)
		require.Equal(t, uint32(0), target.DropTo)

		thunkPC := brTablePC + int(target.Offset)
		require.Equal(t, ir.Instruction{Op: ir.OpCopy, A: 1, Imm: 0}, body.Instructions[thunkPC])
		require.Equal(t, ir.OpBr, body.Instructions[thunkPC+1].Op)
	}
}

// TestTranslate_TooManySlots checks that a function whose params+locals
// alone exceed ir.Reg's valid non-negative range is rejected up front,
// rather than silently wrapping into the negative (function-local-constant)
// encoding space.
func TestTranslate_TooManySlots(t *testing.T) {
	in := Input{
		Module:     &Module{},
		ParamTypes: make([]ir.NumType, maxRegSlots+1),
	}

	_, err := in.Translate()
	require.ErrorContains(t, err, "too many slots allocated")
}

// TestTranslate_MaxStackHeightRejected checks that a function whose operand
// stack grows past a configured MaxStackHeight is rejected with a
// descriptive error rather than translated anyway.
func TestTranslate_MaxStackHeightRejected(t *testing.T) {
	in := Input{
		Module: &Module{MaxStackHeight: 1},
		Ops: []wasmir.Operator{
			{Op: wasmir.OpConstI32, I32: 1},
			{Op: wasmir.OpConstI32, I32: 2},
		},
	}

	_, err := in.Translate()
	require.ErrorContains(t, err, "value stack height 2 exceeds configured maximum 1")
}

// TestTranslate_UnterminatedControlConstruct checks a function body that
// never closes a block it opened is rejected instead of silently dropping
// the dangling control frame.
func TestTranslate_UnterminatedControlConstruct(t *testing.T) {
	in := Input{
		Module: &Module{},
		Ops:    []wasmir.Operator{{Op: wasmir.OpBlock, Block: wasmir.BlockType{}}},
	}

	_, err := in.Translate()
	require.ErrorContains(t, err, "unterminated control construct")
}

// TestTranslate_CallIndirectOutOfRangeTypeIndex checks an out-of-range type
// index on call_indirect is reported rather than causing an out-of-bounds
// slice access.
func TestTranslate_CallIndirectOutOfRangeTypeIndex(t *testing.T) {
	in := Input{
		Module: &Module{},
		Ops: []wasmir.Operator{
			{Op: wasmir.OpConstI32, I32: 0},
			{Op: wasmir.OpCallIndirect, TypeIndex: 5},
		},
	}

	_, err := in.Translate()
	require.Error(t, err)
}
