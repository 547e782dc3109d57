// Package types holds the data model shared across every module of the
// runtime: addresses, denominations, accounts, and the module-scoped
// error registration convention used throughout the tree.
package types

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/sha3"
)

// AddressSize is the length in bytes of an Address: a 1-byte version tag
// followed by a 20-byte payload.
const AddressSize = 21

// AddressVersion identifies how an Address's payload was derived.
type AddressVersion byte

const (
	// AddressV0Ed25519Context derives the payload from an Ed25519 public key.
	AddressV0Ed25519Context AddressVersion = 0
	// AddressV1Secp256k1EthContext derives the payload from a 20-byte
	// Ethereum-style key hash.
	AddressV1Secp256k1EthContext AddressVersion = 1
	// AddressV0ModuleContext derives the payload from a module name and subkind.
	AddressV0ModuleContext AddressVersion = 2
	// AddressV0SR25519Context derives the payload from a Sr25519 public key.
	AddressV0SR25519Context AddressVersion = 3
	// AddressV0ConsensusContext derives the payload from a consensus public key.
	AddressV0ConsensusContext AddressVersion = 4
)

// Address is the universal principal used across every module: accounts,
// contract instances, ROFL apps, and the marketplace all name their
// participants with one. Addresses are values and are freely copyable.
type Address [AddressSize]byte

// ErrMalformedAddress is returned when a byte slice cannot be an Address.
var ErrMalformedAddress = errors.New("types: malformed address")

// NewAddress builds an Address by domain-separated hashing of ctx and data,
// truncating the digest to 20 bytes and tagging it with version v.
func NewAddress(v AddressVersion, ctx string, data ...[]byte) Address {
	h := sha3.New256()
	_, _ = h.Write([]byte(ctx))
	for _, d := range data {
		_, _ = h.Write(d)
	}
	sum := h.Sum(nil)

	var addr Address
	addr[0] = byte(v)
	copy(addr[1:], sum[:20])
	return addr
}

// NewAddressFromEthBytes derives an address from a 20-byte Ethereum-style key hash.
func NewAddressFromEthBytes(ethAddr []byte) (Address, error) {
	if len(ethAddr) != 20 {
		return Address{}, ErrMalformedAddress
	}
	var addr Address
	addr[0] = byte(AddressV1Secp256k1EthContext)
	copy(addr[1:], ethAddr)
	return addr, nil
}

// NewModuleAddress derives a deterministic address for a module-owned
// account, e.g. the ROFL app-stake pool or a contract instance address.
func NewModuleAddress(module, subkind string, data ...[]byte) Address {
	return NewAddress(AddressV0ModuleContext, module+"."+subkind, data...)
}

// AddressFromBytes parses an Address from its raw wire representation.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, ErrMalformedAddress
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns the raw wire representation of the address.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// Version reports the derivation scheme tag.
func (a Address) Version() AddressVersion {
	return AddressVersion(a[0])
}

// String renders the address as a hex string for logs and errors.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// instanceAddressContext domain-separates contract instance addresses
// from other module-derived addresses sharing the same module name.
const instanceAddressContext = "instance"

// NewInstanceAddress derives the deterministic address of contract
// instance id under the given module name, per spec.md §3
// (Instance.Address = H(module_name || "instance" || id)).
func NewInstanceAddress(moduleName string, id uint64) Address {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	return NewAddress(AddressV0ModuleContext, moduleName+"."+instanceAddressContext, idBytes[:])
}
