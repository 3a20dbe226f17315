package stack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/wasmruntime"
)

func TestValues_ReserveTruncate(t *testing.T) {
	v := NewValues(0)

	base := v.Reserve(3)
	require.Equal(t, 0, base)
	require.Equal(t, 3, v.Len())

	base2 := v.Reserve(2)
	require.Equal(t, 3, base2)
	require.Equal(t, 5, v.Len())

	v.Truncate(base2)
	require.Equal(t, 3, v.Len())
}

func TestValues_GetSet(t *testing.T) {
	v := NewValues(0)
	v.Reserve(2)

	v.Set(0, cell.FromI32(10))
	v.Set(1, cell.FromI32(20))

	require.Equal(t, int32(10), v.Get(0).I32())
	require.Equal(t, int32(20), v.Get(1).I32())
}

func TestValues_Slice(t *testing.T) {
	v := NewValues(0)
	base := v.Reserve(4)
	v.Set(base, cell.FromI32(1))
	v.Set(base+1, cell.FromI32(2))

	s := v.Slice(base, 2)
	require.Len(t, s, 2)
	require.Equal(t, int32(1), s[0].I32())
	require.Equal(t, int32(2), s[1].I32())
}

func TestValues_CopySpan(t *testing.T) {
	v := NewValues(0)
	v.Reserve(6)
	for i := 0; i < 3; i++ {
		v.Set(i, cell.FromI32(int32(i+1)))
	}

	// Overlapping forward shuffle: dst > src, ranges overlap.
	v.CopySpan(1, 0, 3)
	require.Equal(t, int32(1), v.Get(1).I32())
	require.Equal(t, int32(2), v.Get(2).I32())
	require.Equal(t, int32(3), v.Get(3).I32())
}

func TestValues_Reset(t *testing.T) {
	v := NewValues(0)
	v.Reserve(5)
	v.Reset()
	require.Equal(t, 0, v.Len())
}

func TestCalls_PushPopPeek(t *testing.T) {
	c := NewCalls()

	require.NoError(t, c.Push(Frame{ReturnPC: 1, ValueBase: 0, FrameSize: 2}))
	require.NoError(t, c.Push(Frame{ReturnPC: 5, ValueBase: 2, FrameSize: 3}))
	require.Equal(t, 2, c.Len())

	top := c.Peek()
	require.Equal(t, 5, top.ReturnPC)

	popped := c.Pop()
	require.Equal(t, 5, popped.ReturnPC)
	require.Equal(t, 1, c.Len())
}

func TestCalls_PushOverflows(t *testing.T) {
	c := NewCalls().WithLimit(2)

	require.NoError(t, c.Push(Frame{}))
	require.NoError(t, c.Push(Frame{}))

	err := c.Push(Frame{})
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeCallStackOverflow)
	require.Equal(t, 2, c.Len())
}

func TestCalls_FramesOutermostFirst(t *testing.T) {
	c := NewCalls()
	require.NoError(t, c.Push(Frame{ReturnPC: 1}))
	require.NoError(t, c.Push(Frame{ReturnPC: 2}))

	frames := c.Frames()
	require.Len(t, frames, 2)
	require.Equal(t, 1, frames[0].ReturnPC)
	require.Equal(t, 2, frames[1].ReturnPC)
}

func TestCalls_Reset(t *testing.T) {
	c := NewCalls()
	require.NoError(t, c.Push(Frame{}))
	c.Reset()
	require.Equal(t, 0, c.Len())
}
