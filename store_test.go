package wazero

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestModule_Memory covers api.Module.Memory/ExportedMemory wiring through a host module,
// since this engine has no binary/text decoder to build a guest module from source.
func TestModule_Memory(t *testing.T) {
	t.Run("no memory", func(t *testing.T) {
		ctx := context.Background()
		r := NewRuntime(ctx)
		defer r.Close(ctx)

		env, err := r.NewHostModuleBuilder("env").Instantiate(ctx)
		require.NoError(t, err)
		require.Nil(t, env.Memory())
		require.Nil(t, env.ExportedMemory("memory"))
	})

	t.Run("memory exported, one page", func(t *testing.T) {
		ctx := context.Background()
		r := NewRuntime(ctx)
		defer r.Close(ctx)

		env, err := r.NewHostModuleBuilder("env").ExportMemory("memory", 1).Instantiate(ctx)
		require.NoError(t, err)

		mem := env.ExportedMemory("memory")
		require.NotNil(t, mem)
		require.Equal(t, uint32(65536), mem.Size(ctx))
		require.Equal(t, mem, env.Memory())
	})
}

func TestRuntime_Module(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	require.Nil(t, r.Module("env"))

	env, err := r.NewHostModuleBuilder("env").Instantiate(ctx)
	require.NoError(t, err)
	require.Same(t, env, r.Module("env"))
}

func TestRuntime_InstantiateModule_DuplicateName(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := r.NewHostModuleBuilder("env").Instantiate(ctx)
	require.NoError(t, err)

	_, err = r.NewHostModuleBuilder("env").Instantiate(ctx)
	require.EqualError(t, err, "module env has already been instantiated")
}

func TestRuntime_Close(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)

	_, err := r.NewHostModuleBuilder("env").Instantiate(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Close(ctx))
	// closing removed the module, freeing its name for reinstantiation.
	require.Nil(t, r.Module("env"))
}
