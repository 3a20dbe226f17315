// Package arena provides dense, append-only, indexable storage. A Store uses
// it where entities are content-deduplicated rather than addressed by their
// Wasm index space (currently just Store.types, deduplicating FunctionType by
// signature): the ID it hands back is stable and never invalidated, since
// entities are never removed, only appended for the lifetime of the owning
// Store.
package arena

// ID is a dense, non-negative, 32-bit index into an Arena[T]. The zero value
// is reserved to mean "no entity" so that a zero-valued struct containing an
// ID can be distinguished from one that was actually assigned index 0;
// Arena.Alloc therefore returns IDs starting at 1.
type ID uint32

// IsValid reports whether id was actually issued by an Arena.
func (id ID) IsValid() bool { return id != 0 }

// index converts a public ID back to the zero-based backing slice index.
func (id ID) index() int { return int(id) - 1 }

// Arena is a typed, append-only, dense store, used where a Store needs to
// deduplicate values by content and hand back a stable ID rather than
// address them by their existing Wasm index-space position (a plain slice
// already does that job for the latter - see Store.types vs.
// ModuleInstance.Functions/Globals/Tables).
//
// Arena is not safe for concurrent use; callers that share an Arena across
// goroutines (e.g. Store.types, guarded by Store.mux) must guard it
// externally.
type Arena[T any] struct {
	items []T
}

// NewArena returns an empty Arena, optionally pre-sizing its backing slice.
func NewArena[T any](capacityHint int) *Arena[T] {
	return &Arena[T]{items: make([]T, 0, capacityHint)}
}

// Alloc appends v and returns the ID it was assigned.
func (a *Arena[T]) Alloc(v T) ID {
	a.items = append(a.items, v)
	return ID(len(a.items))
}

// Get returns a pointer to the entity at id. It panics on an invalid or
// out-of-range ID: such a call is always a programming bug, since IDs are
// only ever minted by Alloc on this same Arena.
func (a *Arena[T]) Get(id ID) *T {
	return &a.items[id.index()]
}

// Len returns the number of entities allocated so far.
func (a *Arena[T]) Len() int { return len(a.items) }

// Each iterates all entities in allocation order.
func (a *Arena[T]) Each(fn func(ID, *T)) {
	for i := range a.items {
		fn(ID(i+1), &a.items[i])
	}
}
