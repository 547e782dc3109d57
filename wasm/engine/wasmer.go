package engine

import (
	"context"
	"fmt"

	wasmer "github.com/iden3/wasmer-go/wasmer"
)

// Wasmer is the production Engine, backed by the wasmer-go cgo runtime.
type Wasmer struct {
	store *wasmer.Store
}

// NewWasmer creates a fresh store. One store is shared across every
// module compiled through this Engine; wasmer requires instances and
// their module share a store.
func NewWasmer() *Wasmer {
	return &Wasmer{store: wasmer.NewStore(wasmer.NewEngine())}
}

type wasmerModule struct {
	mod *wasmer.Module
}

func (m *wasmerModule) Close() {}

// Compile parses and validates the module ahead of time. code is
// expected to already have passed wasm/gas.Validate and Transform.
func (e *Wasmer) Compile(code []byte) (Module, error) {
	mod, err := wasmer.NewModule(e.store, code)
	if err != nil {
		return nil, fmt.Errorf("engine: compile: %w", err)
	}
	return &wasmerModule{mod: mod}, nil
}

// Instantiate creates a fresh instance, registering imports grouped by
// namespace into a wasmer import object.
func (e *Wasmer) Instantiate(ctx context.Context, mod Module, imports []HostImport) (Instance, error) {
	wm, ok := mod.(*wasmerModule)
	if !ok {
		return nil, fmt.Errorf("engine: module not produced by this engine")
	}

	// wasmer's function callbacks are wired before the instance exists,
	// so a host function that needs to read/write guest memory (every
	// one contracts/abi defines) can't capture the instance directly.
	// boundCaller is filled in once NewInstance returns and is shared by
	// every host function closure below; it is only ever dereferenced
	// during a call, which can't happen before instantiation completes.
	bound := &boundCaller{}

	byNamespace := make(map[string]map[string]wasmer.IntoExtern)
	for _, imp := range imports {
		ns, ok := byNamespace[imp.Namespace]
		if !ok {
			ns = make(map[string]wasmer.IntoExtern)
			byNamespace[imp.Namespace] = ns
		}
		ns[imp.Name] = wrapHostFunc(e.store, imp, bound)
	}

	importObject := wasmer.NewImportObject()
	for ns, funcs := range byNamespace {
		importObject.Register(ns, funcs)
	}

	inst, err := wasmer.NewInstance(wm.mod, importObject)
	if err != nil {
		return nil, fmt.Errorf("engine: instantiate: %w", err)
	}

	mem, err := inst.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("engine: module exports no memory: %w", err)
	}

	wm2 := &wasmerMemory{mem: mem}
	bound.mem = wm2
	return &wasmerInstance{inst: inst, mem: wm2}, nil
}

// boundCaller defers Memory() resolution until after instantiation,
// since wasmer hands host-function callbacks no reference to the
// instance being built.
type boundCaller struct {
	mem Memory
}

func (c *boundCaller) Memory() Memory { return c.mem }

// wrapHostFunc adapts a HostImport's generic (caller, args) callback to
// wasmer's native function callback signature, which deals in
// wasmer.Value rather than raw uint64. Every host import in
// contracts/abi is a fixed i64-only signature (pointers and lengths
// alike cross the boundary as i64), so the function type does not vary
// per import.
func wrapHostFunc(store *wasmer.Store, imp HostImport, caller Caller) *wasmer.Function {
	params := make([]*wasmer.ValueType, imp.Arity)
	for i := range params {
		params[i] = wasmer.NewValueType(wasmer.I64)
	}
	results := make([]*wasmer.ValueType, imp.Results)
	for i := range results {
		results[i] = wasmer.NewValueType(wasmer.I64)
	}

	return wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(params, results),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			in := make([]uint64, len(args))
			for i, a := range args {
				in[i] = uint64(a.I64())
			}
			out, err := imp.Func(caller, in)
			if err != nil {
				return nil, err
			}
			res := make([]wasmer.Value, len(out))
			for i, v := range out {
				res[i] = wasmer.NewI64(int64(v))
			}
			return res, nil
		},
	)
}

type wasmerInstance struct {
	inst *wasmer.Instance
	mem  *wasmerMemory
}

func (i *wasmerInstance) Memory() Memory { return i.mem }

func (i *wasmerInstance) GetGlobalI64(name string) (int64, error) {
	g, err := i.inst.Exports.GetGlobal(name)
	if err != nil {
		return 0, err
	}
	v, err := g.Get()
	if err != nil {
		return 0, err
	}
	iv, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("engine: global %q is not i64", name)
	}
	return iv, nil
}

func (i *wasmerInstance) SetGlobalI64(name string, value int64) error {
	g, err := i.inst.Exports.GetGlobal(name)
	if err != nil {
		return err
	}
	return g.Set(value, wasmer.I64)
}

func (i *wasmerInstance) GetGlobalI32(name string) (int32, error) {
	g, err := i.inst.Exports.GetGlobal(name)
	if err != nil {
		return 0, err
	}
	v, err := g.Get()
	if err != nil {
		return 0, err
	}
	iv, ok := v.(int32)
	if !ok {
		return 0, fmt.Errorf("engine: global %q is not i32", name)
	}
	return iv, nil
}

func (i *wasmerInstance) SetGlobalI32(name string, value int32) error {
	g, err := i.inst.Exports.GetGlobal(name)
	if err != nil {
		return err
	}
	return g.Set(value, wasmer.I32)
}

func (i *wasmerInstance) Call(ctx context.Context, export string, args ...uint64) ([]uint64, error) {
	fn, err := i.inst.Exports.GetFunction(export)
	if err != nil {
		return nil, fmt.Errorf("engine: no export %q: %w", export, err)
	}
	in := make([]interface{}, len(args))
	for idx, a := range args {
		in[idx] = int64(a)
	}

	done := make(chan struct{})
	var res interface{}
	var callErr error
	go func() {
		defer close(done)
		res, callErr = fn(in...)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	if callErr != nil {
		return nil, callErr
	}
	if res == nil {
		return nil, nil
	}
	return []uint64{uint64(res.(int64))}, nil
}

func (i *wasmerInstance) Close() {
	i.inst.Close()
}

type wasmerMemory struct {
	mem *wasmer.Memory
}

func (m *wasmerMemory) Read(offset, length uint32) ([]byte, error) {
	data := m.mem.Data()
	end := uint64(offset) + uint64(length)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("engine: memory read out of bounds")
	}
	out := make([]byte, length)
	copy(out, data[offset:end])
	return out, nil
}

func (m *wasmerMemory) Write(offset uint32, data []byte) error {
	mem := m.mem.Data()
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(mem)) {
		return fmt.Errorf("engine: memory write out of bounds")
	}
	copy(mem[offset:end], data)
	return nil
}

func (m *wasmerMemory) Size() uint32 {
	return uint32(m.mem.Size()) * wasmPageSize
}

func (m *wasmerMemory) Grow(deltaPages uint32) (uint32, error) {
	prev := m.mem.Size()
	if ok, err := m.mem.Grow(wasmer.Pages(deltaPages)); err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("engine: memory.grow rejected")
		}
		return 0, err
	}
	return uint32(prev), nil
}

// wasmPageSize is the WASM linear memory page size in bytes (64 KiB).
const wasmPageSize = 65536
