package api

import "context"

// ResourceLimiter is consulted by the executor before a "memory.grow" or
// "table.grow" instruction is allowed to take effect, letting an embedder
// refuse growth for reasons beyond a module's own declared Max (ex. a
// process-wide memory budget shared across many instantiated modules).
//
// Returning false produces the same outcome as exceeding the module's own
// Max: the growth instruction reports failure (-1) to the guest rather than
// trapping. A nil ResourceLimiter imposes no additional limit.
type ResourceLimiter interface {
	// LimitMemoryGrow is invoked before growing a memory from currentPages to
	// requestedPages (both counted in 64KiB pages). Returning false refuses
	// the growth.
	LimitMemoryGrow(ctx context.Context, currentPages, requestedPages uint32) bool

	// LimitTableGrow is invoked before growing a table from currentSize to
	// requestedSize elements. Returning false refuses the growth.
	LimitTableGrow(ctx context.Context, currentSize, requestedSize uint32) bool
}
