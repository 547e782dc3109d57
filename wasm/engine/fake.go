package engine

import (
	"context"
	"fmt"
)

// Fake is an in-process Engine test double: it does not parse or
// execute WASM at all. Tests register canned Call results and a
// backing byte slice for Memory, so contracts/abi and the rest of the
// runtime can be exercised without linking the cgo wasmer runtime.
type Fake struct {
	Calls map[string]func(args []uint64) ([]uint64, error)
	Mem   []byte

	globalsI64 map[string]int64
	globalsI32 map[string]int32
	imports    []HostImport
}

// NewFake creates a Fake with a zeroed linear memory of size memBytes.
func NewFake(memBytes int) *Fake {
	return &Fake{
		Calls:      map[string]func(args []uint64) ([]uint64, error){},
		Mem:        make([]byte, memBytes),
		globalsI64: map[string]int64{},
		globalsI32: map[string]int32{},
	}
}

type fakeModule struct{ code []byte }

func (fakeModule) Close() {}

func (f *Fake) Compile(code []byte) (Module, error) {
	return fakeModule{code: code}, nil
}

func (f *Fake) Instantiate(ctx context.Context, mod Module, imports []HostImport) (Instance, error) {
	f.imports = imports
	return f, nil
}

func (f *Fake) Memory() Memory { return (*fakeMemory)(f) }

func (f *Fake) GetGlobalI64(name string) (int64, error) { return f.globalsI64[name], nil }
func (f *Fake) SetGlobalI64(name string, v int64) error { f.globalsI64[name] = v; return nil }
func (f *Fake) GetGlobalI32(name string) (int32, error) { return f.globalsI32[name], nil }
func (f *Fake) SetGlobalI32(name string, v int32) error { f.globalsI32[name] = v; return nil }

// Call invokes a registered canned handler, or errors if export has no
// registration. Tests that need to exercise a host import directly can
// instead invoke it through CallImport.
func (f *Fake) Call(ctx context.Context, export string, args ...uint64) ([]uint64, error) {
	fn, ok := f.Calls[export]
	if !ok {
		return nil, fmt.Errorf("engine/fake: no call registered for export %q", export)
	}
	return fn(args)
}

// CallImport invokes a registered host import by namespace and name, as
// if the guest had called it, giving tests direct coverage of
// contracts/abi host functions without a real guest module.
func (f *Fake) CallImport(namespace, name string, args ...uint64) ([]uint64, error) {
	for _, imp := range f.imports {
		if imp.Namespace == namespace && imp.Name == name {
			return imp.Func(f, args)
		}
	}
	return nil, fmt.Errorf("engine/fake: no import registered for %s.%s", namespace, name)
}

func (f *Fake) Close() {}

type fakeMemory Fake

func (m *fakeMemory) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(m.Mem)) {
		return nil, fmt.Errorf("engine/fake: memory read out of bounds")
	}
	out := make([]byte, length)
	copy(out, m.Mem[offset:end])
	return out, nil
}

func (m *fakeMemory) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(m.Mem)) {
		return fmt.Errorf("engine/fake: memory write out of bounds")
	}
	copy(m.Mem[offset:end], data)
	return nil
}

func (m *fakeMemory) Size() uint32 { return uint32(len(m.Mem)) }

func (m *fakeMemory) Grow(deltaPages uint32) (uint32, error) {
	prevBytes := len(m.Mem)
	m.Mem = append(m.Mem, make([]byte, int(deltaPages)*wasmPageSize)...)
	return uint32(prevBytes) / wasmPageSize, nil
}
