package kdf

import (
	"crypto/ed25519"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Kind identifies the post-processing applied to derived key material,
// per spec.md §4.2.
type Kind byte

const (
	// KindRaw256 returns 32 bytes of derived material directly.
	KindRaw256 Kind = iota
	// KindRaw384 returns 48 bytes of derived material directly.
	KindRaw384
	// KindEd25519 uses the derived material as an Ed25519 signing seed.
	KindEd25519
	// KindSecp256k1 uses the derived material as secp256k1 scalar material.
	KindSecp256k1
)

// stableU8 maps each Kind to the single byte prefixed onto the key id,
// per spec.md §6: "stable_u8 ... are fixed constants; changing any of
// them changes every derived key".
func (k Kind) stableU8() byte {
	switch k {
	case KindRaw256:
		return 0x00
	case KindRaw384:
		return 0x01
	case KindEd25519:
		return 0x02
	case KindSecp256k1:
		return 0x03
	default:
		panic("kdf: unknown key kind")
	}
}

// custom returns the per-kind cSHAKE customization string used in the
// expand step. These ASCII strings are part of the external interface
// (spec.md §6) and must never change.
func (k Kind) custom() string {
	switch k {
	case KindRaw256:
		return "oasis-runtime-sdk/rofl-appd: derive subkey raw-256"
	case KindRaw384:
		return "oasis-runtime-sdk/rofl-appd: derive subkey raw-384"
	case KindEd25519:
		return "oasis-runtime-sdk/rofl-appd: derive subkey ed25519"
	case KindSecp256k1:
		return "oasis-runtime-sdk/rofl-appd: derive subkey secp256k1"
	default:
		panic("kdf: unknown key kind")
	}
}

func (k Kind) materialLen() int {
	switch k {
	case KindRaw256:
		return 32
	case KindRaw384:
		return 48
	case KindEd25519:
		return ed25519.SeedSize
	case KindSecp256k1:
		return 32
	default:
		panic("kdf: unknown key kind")
	}
}

// derivationKeyCustom is the fixed customization string for step 2 of
// the derivation (root -> key-derivation-key), bit-stable per spec.md §6.
const derivationKeyCustom = "oasis-runtime-sdk/rofl-appd: derive key derivation key"

// ErrDerivation is returned when post-processing of derived material
// into a typed key fails (e.g. malformed scalar).
var ErrDerivation = errors.New("kdf: key derivation failed")

// DerivedKey is the typed result of DeriveKey: exactly one of the
// fields below is populated, selected by Kind.
type DerivedKey struct {
	Kind Kind
	// Raw holds the material directly for KindRaw256/KindRaw384.
	Raw []byte
	// Ed25519Seed holds the 64-byte Ed25519 private key (seed followed by
	// public key) for KindEd25519.
	Ed25519Seed ed25519.PrivateKey
	// Secp256k1 holds the scalar private key for KindSecp256k1.
	Secp256k1 *btcec.PrivateKey
}

// DeriveKey derives a key of the given kind, identified by keyID, from
// root, following spec.md §4.2's four-step procedure:
//  1. key_id := stable_u8(kind) || keyID
//  2. kdk <- extract(root, key_id, derivationKeyCustom, 32)
//  3. material <- expand(kdk, key_id, custom(kind), len(kind))
//  4. kind-specific post-processing.
func DeriveKey(root, keyID []byte, kind Kind) (DerivedKey, error) {
	fullKeyID := append([]byte{kind.stableU8()}, keyID...)

	kdk := Extract(root, fullKeyID, []byte(derivationKeyCustom), 32)
	material := Expand(kdk, fullKeyID, []byte(kind.custom()), kind.materialLen())

	switch kind {
	case KindRaw256, KindRaw384:
		return DerivedKey{Kind: kind, Raw: material}, nil
	case KindEd25519:
		seed := ed25519.NewKeyFromSeed(material)
		return DerivedKey{Kind: kind, Ed25519Seed: seed}, nil
	case KindSecp256k1:
		priv, _ := btcec.PrivKeyFromBytes(material)
		if priv == nil {
			return DerivedKey{}, ErrDerivation
		}
		return DerivedKey{Kind: kind, Secp256k1: priv}, nil
	default:
		return DerivedKey{}, ErrDerivation
	}
}
