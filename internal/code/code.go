// Package code holds the compiled (register-machine) body of every Wasm
// function the engine knows about, and the map from function index to that
// body. A Body can be produced eagerly, at module-instantiation time, or
// lazily, on a function's first call; either way translation happens at
// most once per function, even if several goroutines race to call it first.
package code

import (
	"sync"

	"github.com/wazeroir/regwasm/internal/cell"
	"github.com/wazeroir/regwasm/internal/ir"
)

// Body is one function's fully translated register-machine program.
type Body struct {
	Instructions []ir.Instruction
	Consts       []cell.Cell
	BrTables     [][]ir.BranchTarget

	NumParams          int
	NumParamsAndLocals int
	FrameSize          int // total slot-window width a call frame for this function needs
}

// Source is whatever can still produce the raw operator stream for a
// function that hasn't been translated yet: the module's local function
// body together with enough context (its type, its home module) for the
// translator to run. Lazy compilation holds onto a Source instead of a
// Body until the function is actually called.
type Source interface {
	Translate() (*Body, error)
}

// Func is one entry of a Map: either an already-translated Body (eager
// compilation) or a Source plus a sync.Once guarding its first translation
// (lazy compilation). Concurrent first calls into the same function
// observe translation exactly once; everyone else blocks on Once until it
// finishes, then shares the result.
type Func struct {
	once sync.Once
	body *Body
	err  error
	src  Source // nil once body/err are set for an eagerly-compiled function
}

// NewEager wraps an already-translated Body.
func NewEager(b *Body) *Func {
	f := &Func{body: b}
	f.once.Do(func() {}) // mark done; Body()/Err() below never re-translate
	return f
}

// NewLazy defers translation to the function's first Body() call.
func NewLazy(src Source) *Func {
	return &Func{src: src}
}

// Body returns the function's translated program, translating it on first
// access if it was constructed lazily. Safe for concurrent use: only one
// caller ever runs Translate, the rest block and then share its result.
func (f *Func) Body() (*Body, error) {
	f.once.Do(func() {
		if f.src == nil {
			return // eager: body/err already populated by NewEager
		}
		f.body, f.err = f.src.Translate()
		f.src = nil
	})
	return f.body, f.err
}

// Map is the per-module table of compiled functions, indexed by the
// module-local function index (imports first, then locally defined
// functions, matching Wasm index-space ordering).
type Map struct {
	funcs []*Func
}

// NewMap preallocates a Map for n functions; entries are filled in with Set.
func NewMap(n int) *Map {
	return &Map{funcs: make([]*Func, n)}
}

func (m *Map) Set(index uint32, f *Func) { m.funcs[index] = f }

func (m *Map) Get(index uint32) *Func { return m.funcs[index] }

func (m *Map) Len() int { return len(m.funcs) }
