package abi

import "github.com/oasisprotocol/oasis-core-rofl/wasm/engine"

// BuildImports returns every host function a guest instance may import,
// across all five namespaces of spec.md §4.5 (storage, crypto, env,
// contract, subcall), bound to the given call. Callers pass this
// directly to wasm/engine.Engine.Instantiate.
func BuildImports(cc *CallContext) []engine.HostImport {
	var imports []engine.HostImport
	imports = append(imports, storageNamespace(cc)...)
	imports = append(imports, cryptoNamespace(cc)...)
	imports = append(imports, envNamespace(cc)...)
	imports = append(imports, contractNamespace(cc)...)
	imports = append(imports, subcallNamespace(cc)...)
	return imports
}
