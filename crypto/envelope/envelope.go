// Package envelope implements the confidential-storage AEAD envelope and
// the transport-layer secrets envelope of spec.md §4.2 (C3).
//
// The AEAD primitive is AES-256-GCM (stdlib crypto/cipher), standing in
// for the reference choice of Deoxys-II-256-128: both are 128-bit-tag
// authenticated ciphers over a 256-bit key, and no Deoxys-II
// implementation exists anywhere in this repository's reference corpus
// (see DESIGN.md).
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/sha3"
)

// NonceSize is the length in bytes of a sealing nonce, per spec.md §4.2
// (truncate(15, ...)).
const NonceSize = 15

// TagSize is the AEAD authentication tag length.
const TagSize = 16

// ErrCorrupted is returned when an authentication tag fails to verify.
// Per spec.md §4.2 and §7, this is a fatal corruption error and must
// never be coerced into "absent" or a wrong-but-successful decode.
var ErrCorrupted = errors.New("envelope: corrupted ciphertext")

// AEAD wraps a 256-bit key into a ready-to-use authenticated cipher.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD constructs an AEAD from a 256-bit key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != 32 {
		return nil, errors.New("envelope: key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: gcm}, nil
}

// Seal authenticates and encrypts plaintext under nonce and associated
// data ad, returning nonce || ciphertext||tag per spec.md §4.2's
// "Encrypted record = nonce ∥ AEAD_seal(...)" convention.
func (a *AEAD) Seal(nonce [NonceSize]byte, plaintext, ad []byte) []byte {
	out := make([]byte, 0, NonceSize+len(plaintext)+TagSize)
	out = append(out, nonce[:]...)
	out = a.aead.Seal(out, nonce[:], plaintext, ad)
	return out
}

// SealDetached seals plaintext under the given nonce without prefixing
// it, for callers (e.g. the secrets envelope) that carry the nonce
// separately.
func (a *AEAD) SealDetached(nonce [NonceSize]byte, plaintext, ad []byte) []byte {
	return a.aead.Seal(nil, nonce[:], plaintext, ad)
}

// Open verifies and decrypts a record produced by Seal. A tag mismatch
// returns ErrCorrupted, never a miss.
func (a *AEAD) Open(record, ad []byte) ([]byte, error) {
	if len(record) < NonceSize+TagSize {
		return nil, ErrCorrupted
	}
	nonce := record[:NonceSize]
	ciphertext := record[NonceSize:]
	pt, err := a.aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrCorrupted
	}
	return pt, nil
}

// OpenDetached verifies and decrypts ciphertext sealed with
// SealDetached under the given nonce.
func (a *AEAD) OpenDetached(nonce [NonceSize]byte, ciphertext, ad []byte) ([]byte, error) {
	pt, err := a.aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrCorrupted
	}
	return pt, nil
}

// truncatedHash computes H(parts...) and truncates it to n bytes, the
// primitive used throughout spec.md §4.2 to derive deterministic
// per-record nonces ("truncate(15, H(...))").
func truncatedHash(n int, parts ...[]byte) []byte {
	h := sha3.New256()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	sum := h.Sum(nil)
	return sum[:n]
}
