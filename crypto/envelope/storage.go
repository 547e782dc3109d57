package envelope

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
)

// nonceKeyCustom is the fixed cSHAKE customization string used to derive
// the per-store nonce key for encrypting storage keys, per spec.md §4.2.
const nonceKeyCustom = "oasis-runtime-sdk/confidential-store: nonce key"

// StoreCipher implements the confidential key/value store's key and
// value encryption schemes (spec.md §4.2): deterministic per-key
// nonces for keys, and a monotonically incremented per-store counter
// for values.
type StoreCipher struct {
	aead      *AEAD
	nonceKey  []byte
	context   []byte
	valueCtr  uint64
}

// NewStoreCipher builds a StoreCipher from a 256-bit key and a per-store
// context vector (the layering path that makes this store instance
// unique, e.g. module name + instance id).
func NewStoreCipher(key []byte, context []byte) (*StoreCipher, error) {
	aead, err := NewAEAD(key)
	if err != nil {
		return nil, err
	}
	nonceKey := kdf.Expand(key, nil, []byte(nonceKeyCustom), 32)
	return &StoreCipher{aead: aead, nonceKey: nonceKey, context: context}, nil
}

// EncryptKey deterministically encrypts a plaintext storage key:
// nonce = truncate(15, H(nonce_key || plaintext_key)); record =
// nonce || AEAD_seal(K, nonce, plaintext_key, ∅).
func (c *StoreCipher) EncryptKey(plaintextKey []byte) []byte {
	var nonce [NonceSize]byte
	copy(nonce[:], truncatedHash(NonceSize, c.nonceKey, plaintextKey))
	return c.aead.Seal(nonce, plaintextKey, nil)
}

// DecryptKey recovers the plaintext key from an encrypted record. Since
// key encryption is deterministic, this is used only for diagnostics;
// normal lookups re-derive EncryptKey(candidate) instead.
func (c *StoreCipher) DecryptKey(record []byte) ([]byte, error) {
	return c.aead.Open(record, nil)
}

// EncryptValue authenticate-encrypts a value under a fresh per-write
// nonce = truncate(15, H(context || counter++)). The counter is
// per-store and not persisted: safe because the context changes between
// process instantiations (spec.md §4.2).
func (c *StoreCipher) EncryptValue(plaintext []byte) []byte {
	ctr := atomic.AddUint64(&c.valueCtr, 1) - 1
	var ctrBytes [8]byte
	binary.BigEndian.PutUint64(ctrBytes[:], ctr)

	var nonce [NonceSize]byte
	copy(nonce[:], truncatedHash(NonceSize, c.context, ctrBytes[:]))
	return c.aead.Seal(nonce, plaintext, nil)
}

// DecryptValue verifies and decrypts a value record. A tag mismatch is
// ErrCorrupted, never treated as absent (spec.md §4.2, §7).
func (c *StoreCipher) DecryptValue(record []byte) ([]byte, error) {
	return c.aead.Open(record, nil)
}
