// Package manifest implements the Manifest Parser of spec.md §4.10
// (C11): a safe subset of a larger bundle manifest format, its
// validation rules, and the canonical CBOR encoding its hash is
// computed over.
package manifest

import (
	"encoding/json"

	"github.com/fxamacker/cbor"
	"golang.org/x/crypto/sha3"
)

// cborEncOpts is canonical CBOR: sorted map keys, shortest-form
// integers, the same convention storage.TypedStore uses, required
// here so Manifest hash = H(CBOR(manifest)) round-trips deterministically
// across JSON -> CBOR -> JSON -> CBOR re-serialization (spec.md §6, §8).
var cborEncOpts = cbor.EncOptions{Canonical: true}

// Namespace identifies a runtime, the scope a Manifest's bundle is
// built for.
type Namespace [32]byte

// ComponentKind selects which of Component's mutually exclusive
// payload groups (elf/sgx/tdx) is populated.
type ComponentKind byte

const (
	ComponentELF ComponentKind = iota
	ComponentSGX
	ComponentTDX
)

// StageTwoFormat names a recognized stage-2 disk image format.
type StageTwoFormat string

// StageTwoQCOW2 is the only recognized stage-2 format, per spec.md
// §4.10.
const StageTwoQCOW2 StageTwoFormat = "qcow2"

// maxExtraKernelOpts bounds Component's ExtraKernelOptions count, per
// spec.md §4.10.
const maxExtraKernelOpts = 32

// GpuResource optionally extends Resources with GPU requirements.
type GpuResource struct {
	Count uint8  `json:"count" cbor:"count"`
	Model string `json:"model" cbor:"model"`
}

// Resources describes what a Component requires to run.
type Resources struct {
	Memory uint64       `json:"memory" cbor:"memory"`
	CPUs   uint16       `json:"cpus" cbor:"cpus"`
	GPU    *GpuResource `json:"gpu,omitempty" cbor:"gpu,omitempty"`
}

// TDXComponent is a TDX-confidential-VM component's fields, per
// spec.md §4.10: firmware is mandatory; a stage-2 image, initrd, or
// extra kernel options require a kernel to also be present.
type TDXComponent struct {
	Firmware          []byte   `json:"firmware" cbor:"firmware"`
	Kernel            []byte   `json:"kernel,omitempty" cbor:"kernel,omitempty"`
	Initrd            []byte   `json:"initrd,omitempty" cbor:"initrd,omitempty"`
	StageTwoImage     []byte   `json:"stage2_image,omitempty" cbor:"stage2_image,omitempty"`
	StageTwoFormat    StageTwoFormat `json:"stage2_format,omitempty" cbor:"stage2_format,omitempty"`
	ExtraKernelOptions []string `json:"extra_kernel_opts,omitempty" cbor:"extra_kernel_opts,omitempty"`
}

// SGXComponent is an SGX-enclave component's fields.
type SGXComponent struct {
	Executable []byte `json:"executable" cbor:"executable"`
	Signature  []byte `json:"signature" cbor:"signature"`
}

// Component is one runnable unit of a Manifest, declaring exactly one
// of ELF/SGX/TDX, per spec.md §4.10.
type Component struct {
	ID       string        `json:"id" cbor:"id"`
	Kind     ComponentKind `json:"kind" cbor:"kind"`
	Disabled bool          `json:"disabled,omitempty" cbor:"disabled,omitempty"`

	Resources Resources `json:"resources" cbor:"resources"`

	ELF []byte        `json:"elf,omitempty" cbor:"elf,omitempty"`
	SGX *SGXComponent `json:"sgx,omitempty" cbor:"sgx,omitempty"`
	TDX *TDXComponent `json:"tdx,omitempty" cbor:"tdx,omitempty"`
}

// Manifest is spec.md §4.10's bundle manifest subset.
type Manifest struct {
	ID         Namespace         `json:"id" cbor:"id"`
	Name       string            `json:"name" cbor:"name"`
	Version    string            `json:"version" cbor:"version"`
	Components []Component       `json:"components" cbor:"components"`
	Digests    map[string][32]byte `json:"digests" cbor:"digests"`
}

// EncodeCBOR canonically CBOR-encodes m, the form Hash is computed
// over.
func EncodeCBOR(m Manifest) ([]byte, error) {
	return cbor.Marshal(m, cborEncOpts)
}

// DecodeCBOR decodes a canonically-encoded Manifest.
func DecodeCBOR(data []byte) (Manifest, error) {
	var m Manifest
	err := cbor.Unmarshal(data, &m)
	return m, err
}

// EncodeJSON encodes m as JSON, the wire format manifests are
// typically authored/transmitted in before being canonicalized.
func EncodeJSON(m Manifest) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeJSON decodes a JSON-encoded Manifest.
func DecodeJSON(data []byte) (Manifest, error) {
	var m Manifest
	err := json.Unmarshal(data, &m)
	return m, err
}

// Hash returns H(CBOR(m)) = SHA3-256 of m's canonical CBOR encoding,
// per spec.md §4.10/§6. JSON -> CBOR -> JSON -> CBOR re-serialization
// must reproduce the same hash, which is why EncodeCBOR always goes
// through the canonical encoder rather than cbor.Marshal's defaults.
func Hash(m Manifest) ([32]byte, error) {
	enc, err := EncodeCBOR(m)
	if err != nil {
		return [32]byte{}, err
	}
	return sha3.Sum256(enc), nil
}
