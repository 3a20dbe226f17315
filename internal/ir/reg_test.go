package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReg_ConstRoundTrip(t *testing.T) {
	r := ConstReg(0)
	require.True(t, r.IsConst())
	require.Equal(t, 0, r.ConstIndex())

	r = ConstReg(5)
	require.True(t, r.IsConst())
	require.Equal(t, 5, r.ConstIndex())
}

func TestReg_NonNegativeIsNotConst(t *testing.T) {
	require.False(t, Reg(0).IsConst())
	require.False(t, Reg(1).IsConst())
	require.False(t, NoReg.IsConst())
}

func TestReg_NoRegIsReservedSentinel(t *testing.T) {
	// NoReg must sit outside any valid live-slot range a translator would
	// ever allocate, and must not collide with a constant-table encoding.
	require.Equal(t, Reg(0x7fff), NoReg)
	require.False(t, NoReg.IsConst())
}

func TestSpan_Empty(t *testing.T) {
	require.True(t, Span{}.Empty())
	require.False(t, Span{Head: 3, Len: 1}.Empty())
}
