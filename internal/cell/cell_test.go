package cell

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCell_IntRoundTrip(t *testing.T) {
	require.Equal(t, int32(-1), FromI32(-1).I32())
	require.Equal(t, uint32(0xffffffff), FromI32(-1).U32())
	require.Equal(t, int64(-1), FromI64(-1).I64())
	require.Equal(t, uint64(math.MaxUint64), FromU64(math.MaxUint64).U64())
}

func TestCell_FloatRoundTrip(t *testing.T) {
	require.Equal(t, float32(3.5), FromF32(3.5).F32())
	require.Equal(t, float64(-2.25), FromF64(-2.25).F64())
}

func TestCell_FromBool(t *testing.T) {
	require.Equal(t, Cell(1), FromBool(true))
	require.Equal(t, Cell(0), FromBool(false))
}

func TestCell_IsNullRef(t *testing.T) {
	require.True(t, Zero.IsNullRef())
	require.True(t, FromI32(0).IsNullRef())
	require.False(t, RefID(1, 0).IsNullRef())
}

func TestCell_RefIDRoundTrip(t *testing.T) {
	c := RefID(7, 3)
	id, gen := SplitRef(c)
	require.Equal(t, uint32(7), id)
	require.Equal(t, uint32(3), gen)
}

func TestCell_HighBitsDontLeakBetweenTypes(t *testing.T) {
	// A 32-bit store must zero the upper half, so a stale 64-bit cell
	// reused for a narrower value never resurfaces its high bits.
	c := FromI64(-1)
	c = FromI32(int32(c.I32()))
	require.Equal(t, uint64(0xffffffff), c.U64())
}
