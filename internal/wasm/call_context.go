package wasm

import (
	"context"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/cell"
)

// CallContext is the default calling context bound to a ModuleInstance. It
// implements api.Module: the public handle an embedder gets back from
// instantiation and uses to look up exports and make calls.
type CallContext struct {
	store  *Store
	module *ModuleInstance
	sys    *SysContext
}

func NewCallContext(s *Store, m *ModuleInstance, sys *SysContext) *CallContext {
	if sys == nil {
		sys = DefaultSysContext()
	}
	return &CallContext{store: s, module: m, sys: sys}
}

func (c *CallContext) Module() *ModuleInstance { return c.module }
func (c *CallContext) Sys() *SysContext        { return c.sys }

// Name implements api.Module.
func (c *CallContext) Name() string { return c.module.Name }

// String implements fmt.Stringer, satisfying api.Module.
func (c *CallContext) String() string { return "Module[" + c.module.Name + "]" }

// Close implements api.Module.
func (c *CallContext) Close(ctx context.Context) error { return c.CloseWithExitCode(ctx, 0) }

// CloseWithExitCode implements api.Module.
func (c *CallContext) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	c.store.deleteModule(c.module.Name)
	return c.sys.Close(ctx)
}

// Memory implements api.Module.
func (c *CallContext) Memory() api.Memory { return memoryView{c.module.Memory} }

// ExportedFunction implements api.Module.
func (c *CallContext) ExportedFunction(name string) api.Function {
	exp, err := c.module.getExport(name, api.ExternTypeFunc)
	if err != nil {
		return nil
	}
	return &exportedFunction{callCtx: c, fn: exp.Function}
}

// ExportedTable implements api.Module.
func (c *CallContext) ExportedTable(name string) api.Table {
	exp, err := c.module.getExport(name, api.ExternTypeTable)
	if err != nil {
		return nil
	}
	return &exportedTable{exp.Table}
}

// ExportedMemory implements api.Module.
func (c *CallContext) ExportedMemory(name string) api.Memory {
	exp, err := c.module.getExport(name, api.ExternTypeMemory)
	if err != nil {
		return nil
	}
	return memoryView{exp.Memory}
}

// ExportedGlobal implements api.Module.
func (c *CallContext) ExportedGlobal(name string) api.Global {
	exp, err := c.module.getExport(name, api.ExternTypeGlobal)
	if err != nil {
		return nil
	}
	return &exportedGlobal{c.module, exp.Global}
}

type exportedFunction struct {
	callCtx *CallContext
	fn      *FunctionInstance
}

func (f *exportedFunction) Definition() api.FunctionDefinition { return f.fn }

func (f *exportedFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if err := f.callCtx.store.checkOwns(f.fn); err != nil {
		return nil, err
	}
	return f.fn.Module.Engine.Call(ctx, f.callCtx, f.fn, params...)
}

type exportedTable struct {
	t *TableInstance
}

func (t *exportedTable) Size(context.Context) uint32 { return uint32(len(t.t.References)) }

func (t *exportedTable) Grow(_ context.Context, delta uint32, fillValue uint64) (uint32, bool) {
	return t.t.Grow(delta, cell.Cell(fillValue))
}

type exportedGlobal struct {
	module *ModuleInstance
	g      *GlobalInstance
}

func (g *exportedGlobal) Type() api.ValueType        { return g.g.Type.ValType }
func (g *exportedGlobal) Get(context.Context) uint64 { return uint64(g.g.Val) }
func (g *exportedGlobal) Set(_ context.Context, v uint64) {
	g.g.Val = cell.Cell(v)
}
func (g *exportedGlobal) String() string { return "global" }
