package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatures_GetSet(t *testing.T) {
	var f Features
	require.False(t, f.Get(FeatureMutableGlobal))

	f = f.Set(FeatureMutableGlobal, true)
	require.True(t, f.Get(FeatureMutableGlobal))
	require.False(t, f.Get(FeatureSIMD))

	f = f.Set(FeatureMutableGlobal, false)
	require.False(t, f.Get(FeatureMutableGlobal))
}

func TestFeatures_String(t *testing.T) {
	tests := []struct {
		name     string
		features Features
		expected string
	}{
		{name: "none", features: 0, expected: ""},
		{name: "one", features: FeatureSIMD, expected: "simd"},
		{
			name:     "20220419 bundle",
			features: Features20220419,
			expected: "bulk-memory-operations|multi-value|mutable-global|nontrapping-float-to-int-conversion|reference-types|sign-extension-ops|simd",
		},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, tc.features.String())
		})
	}
}

func TestFeatures_Require(t *testing.T) {
	f := Features(0).Set(FeatureMutableGlobal, true)

	require.NoError(t, f.Require(FeatureMutableGlobal))

	err := f.Require(FeatureSIMD)
	require.EqualError(t, err, `feature "simd" is disabled`)
}
