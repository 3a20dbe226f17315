package wasm

import (
	"fmt"
	"sort"
	"strings"
)

// Features is a bitset of optional spec features a Store enables. Flags
// start at iota 1, not 0, since 0 would be indistinguishable from "nothing
// set".
type Features uint64

const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSignExtensionOps
	FeatureMultiValue
	FeatureBulkMemoryOperations
	FeatureNonTrappingFloatToIntConversion
	FeatureReferenceTypes
	FeatureSIMD
	FeatureTailCall
	FeatureMultiMemory
	FeatureExtendedConst
	FeatureMemory64
	FeatureWideArithmetic
)

// Features20191205 is the flag set matching the WebAssembly 1.0 (MVP) spec.
const Features20191205 = FeatureMutableGlobal

// Features20220419 is the flag set matching the WebAssembly 2.0 draft.
const Features20220419 = FeatureMutableGlobal |
	FeatureSignExtensionOps |
	FeatureMultiValue |
	FeatureBulkMemoryOperations |
	FeatureNonTrappingFloatToIntConversion |
	FeatureReferenceTypes |
	FeatureSIMD

// FeaturesFinished is the flag set for proposals that reached "finished"
// status but are not yet folded into a dated core spec snapshot above,
// improving compatibility with tools that enable every finished proposal by
// default.
const FeaturesFinished = Features20220419 |
	FeatureTailCall |
	FeatureMultiMemory |
	FeatureExtendedConst |
	FeatureMemory64 |
	FeatureWideArithmetic

func (f Features) Get(feature Features) bool { return f&feature != 0 }

func (f Features) Set(feature Features, val bool) Features {
	if val {
		return f | feature
	}
	return f &^ feature
}

// Require returns an error if feature isn't enabled.
func (f Features) Require(feature Features) error {
	if f.Get(feature) {
		return nil
	}
	return fmt.Errorf("feature %q is disabled", featureNames[feature])
}

var featureNames = map[Features]string{
	FeatureMutableGlobal:                   "mutable-global",
	FeatureSignExtensionOps:                "sign-extension-ops",
	FeatureMultiValue:                      "multi-value",
	FeatureBulkMemoryOperations:            "bulk-memory-operations",
	FeatureNonTrappingFloatToIntConversion: "nontrapping-float-to-int-conversion",
	FeatureReferenceTypes:                  "reference-types",
	FeatureSIMD:                            "simd",
	FeatureTailCall:                        "tail-call",
	FeatureMultiMemory:                     "multi-memory",
	FeatureExtendedConst:                   "extended-const",
	FeatureMemory64:                        "memory64",
	FeatureWideArithmetic:                  "wide-arithmetic",
}

func (f Features) String() string {
	var names []string
	for bit, name := range featureNames {
		if f.Get(bit) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
