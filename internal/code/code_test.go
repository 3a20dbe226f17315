package code

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wazeroir/regwasm/internal/ir"
)

func TestNewEager_BodyReturnsImmediately(t *testing.T) {
	want := &Body{Instructions: []ir.Instruction{{Op: ir.OpReturn}}}
	f := NewEager(want)

	got, err := f.Body()
	require.NoError(t, err)
	require.Same(t, want, got)
}

type countingSource struct {
	calls int
	body  *Body
	err   error
}

func (s *countingSource) Translate() (*Body, error) {
	s.calls++
	return s.body, s.err
}

func TestNewLazy_TranslatesOnce(t *testing.T) {
	want := &Body{Instructions: []ir.Instruction{{Op: ir.OpReturn}}}
	src := &countingSource{body: want}
	f := NewLazy(src)

	for i := 0; i < 3; i++ {
		got, err := f.Body()
		require.NoError(t, err)
		require.Same(t, want, got)
	}
	require.Equal(t, 1, src.calls)
}

func TestNewLazy_ConcurrentFirstCallTranslatesOnce(t *testing.T) {
	want := &Body{}
	src := &countingSource{body: want}
	f := NewLazy(src)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Body()
			require.NoError(t, err)
			require.Same(t, want, got)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, src.calls)
}

func TestNewLazy_TranslationErrorIsCachedAndReturned(t *testing.T) {
	wantErr := errors.New("translation failed")
	src := &countingSource{err: wantErr}
	f := NewLazy(src)

	_, err := f.Body()
	require.ErrorIs(t, err, wantErr)

	_, err = f.Body()
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, src.calls)
}

func TestMap_SetGet(t *testing.T) {
	m := NewMap(3)
	require.Equal(t, 3, m.Len())

	f := NewEager(&Body{})
	m.Set(1, f)

	require.Same(t, f, m.Get(1))
	require.Nil(t, m.Get(0))
	require.Nil(t, m.Get(2))
}
