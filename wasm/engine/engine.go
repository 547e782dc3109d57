// Package engine adapts a concrete WASM runtime to the narrow surface
// the contract ABI (contracts/abi) and gas meter (wasm/gas) need,
// keeping both testable against a fake engine instead of requiring the
// cgo runtime in unit tests.
package engine

import "context"

// HostImport is one host function a module can call, keyed by
// (namespace, name) in the import section, e.g. ("env", "db_read").
// Arity and Results fix the i64-only signature the engine adapter wires
// the import with; contracts/abi's host functions take and return only
// pointer/length/handle scalars, so no other value type is needed.
type HostImport struct {
	Namespace string
	Name      string
	Arity     int
	Results   int
	Func      func(caller Caller, args []uint64) ([]uint64, error)
}

// Caller is passed to a host import's Func, giving it access back into
// the calling instance (to read/write guest linear memory) without a
// circular Instance/HostImport dependency.
type Caller interface {
	Memory() Memory
}

// Memory is the guest's single linear memory, addressed the way the
// contract ABI's Region type (contracts/abi) expects: byte offset +
// length. Read and Write return an error for a range past the end of
// memory.
type Memory interface {
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
	Grow(deltaPages uint32) (previousPages uint32, err error)
}

// Instance is a single instantiated module, ready to be called into. It
// satisfies wasm/gas.Instance so a *gas.Meter can drive its injected
// globals directly.
type Instance interface {
	Memory() Memory
	GetGlobalI64(name string) (int64, error)
	SetGlobalI64(name string, value int64) error
	GetGlobalI32(name string) (int32, error)
	SetGlobalI32(name string, value int32) error
	// Call invokes an exported function by name with the given i32/i64
	// arguments, returning its i32/i64 results.
	Call(ctx context.Context, export string, args ...uint64) ([]uint64, error)
	// Close releases the instance's runtime resources.
	Close()
}

// Engine compiles and instantiates WASM modules. A *Wasmer backs it in
// production; tests use a fake that never touches cgo.
type Engine interface {
	// Compile parses and validates code (already gas-transformed) ahead
	// of instantiation, so repeated instantiate calls amortize parse
	// cost. The returned Module is engine-specific and opaque here.
	Compile(code []byte) (Module, error)
	// Instantiate creates a fresh instance of a compiled module, wiring
	// imports to the given host functions.
	Instantiate(ctx context.Context, mod Module, imports []HostImport) (Instance, error)
}

// Module is an opaque, engine-specific compiled module handle.
type Module interface {
	Close()
}
