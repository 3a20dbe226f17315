package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadStoreFlags_RoundTrip(t *testing.T) {
	for _, tt := range []struct {
		ty     NumType
		signed bool
	}{
		{TypeI32, true},
		{TypeI32, false},
		{TypeI64, true},
		{TypeF32, false},
		{TypeF64, false},
	} {
		f := LoadStoreFlags(tt.ty, tt.signed)
		gotTy, gotSigned := DecodeLoadStoreFlags(f)
		require.Equal(t, tt.ty, gotTy)
		require.Equal(t, tt.signed, gotSigned)
	}
}

func TestMemAccessFlags_RoundTrip(t *testing.T) {
	for _, tt := range []struct {
		ty     NumType
		width  MemWidth
		signed bool
	}{
		{TypeI32, Width8, true},
		{TypeI32, Width16, false},
		{TypeI64, Width32, true},
		{TypeI64, Width64, false},
	} {
		f := MemAccessFlags(tt.ty, tt.width, tt.signed)
		gotTy, gotWidth, gotSigned := DecodeMemAccessFlags(f)
		require.Equal(t, tt.ty, gotTy)
		require.Equal(t, tt.width, gotWidth)
		require.Equal(t, tt.signed, gotSigned)
	}
}

func TestMemAccessFlags_SharesLoadStoreEncoding(t *testing.T) {
	// DecodeLoadStoreFlags must still recover type/signedness from a flags
	// byte produced by MemAccessFlags, since OpLoad/OpStore share Flags with
	// the plain arithmetic encoding.
	f := MemAccessFlags(TypeI64, Width32, true)
	gotTy, gotSigned := DecodeLoadStoreFlags(f)
	require.Equal(t, TypeI64, gotTy)
	require.True(t, gotSigned)
}

func TestBranchTarget_HasDrop(t *testing.T) {
	require.True(t, BranchTarget{DropFrom: 0, DropTo: 2}.HasDrop())
	require.True(t, BranchTarget{DropFrom: 1, DropTo: 1}.HasDrop())
	require.False(t, BranchTarget{DropFrom: 2, DropTo: 0}.HasDrop())
}
