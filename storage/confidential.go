package storage

import (
	"github.com/oasisprotocol/oasis-core-rofl/crypto/envelope"
)

// ConfidentialStore deterministically encrypts keys and
// authenticate-encrypts values, per spec.md §4.1/§4.2. Ordered
// iteration is preserved over the encrypted keys, but that order
// carries no semantic meaning on the plaintext.
type ConfidentialStore struct {
	inner  Store
	cipher *envelope.StoreCipher
}

// NewConfidentialStore wraps inner with the given key material and
// per-store context vector (see envelope.NewStoreCipher).
func NewConfidentialStore(inner Store, keyMaterial, context []byte) (*ConfidentialStore, error) {
	cipher, err := envelope.NewStoreCipher(keyMaterial, context)
	if err != nil {
		return nil, err
	}
	return &ConfidentialStore{inner: inner, cipher: cipher}, nil
}

// Get implements Store. A corruption error (tampered ciphertext) panics
// rather than returning ok=false: per spec.md §4.2/§7, a tag mismatch is
// a fatal corruption error and must never be silently coerced to
// "absent". Callers that need a recoverable form should use GetChecked.
func (c *ConfidentialStore) Get(key []byte) ([]byte, bool) {
	v, ok, err := c.GetChecked(key)
	if err != nil {
		panic(err)
	}
	return v, ok
}

// GetChecked is the recoverable form of Get, surfacing
// envelope.ErrCorrupted instead of panicking.
func (c *ConfidentialStore) GetChecked(key []byte) (value []byte, ok bool, err error) {
	encKey := c.cipher.EncryptKey(key)
	record, present := c.inner.Get(encKey)
	if !present {
		return nil, false, nil
	}
	pt, err := c.cipher.DecryptValue(record)
	if err != nil {
		return nil, false, err
	}
	return pt, true, nil
}

// Insert implements Store.
func (c *ConfidentialStore) Insert(key, value []byte) {
	encKey := c.cipher.EncryptKey(key)
	record := c.cipher.EncryptValue(value)
	c.inner.Insert(encKey, record)
}

// Remove implements Store.
func (c *ConfidentialStore) Remove(key []byte) {
	c.inner.Remove(c.cipher.EncryptKey(key))
}

// NewIterator implements Store. Because key encryption is deterministic
// but order-scrambling, start/end bounds over plaintext keys cannot be
// translated into meaningful encrypted bounds; callers must iterate the
// full encrypted range and filter in plaintext space if they need a
// bounded scan.
func (c *ConfidentialStore) NewIterator(_, _ []byte) Iterator {
	return &confidentialIterator{inner: c.inner.NewIterator(nil, nil), cipher: c.cipher}
}

type confidentialIterator struct {
	inner  Iterator
	cipher *envelope.StoreCipher
}

func (it *confidentialIterator) Rewind()          { it.inner.Rewind() }
func (it *confidentialIterator) Next()            { it.inner.Next() }
func (it *confidentialIterator) IsValid() bool    { return it.inner.IsValid() }
func (it *confidentialIterator) Close()           { it.inner.Close() }
func (it *confidentialIterator) Seek(target []byte) {
	it.inner.Seek(it.cipher.EncryptKey(target))
}

// Key decrypts the underlying encrypted key back to plaintext. It
// panics on corruption, matching Get's contract.
func (it *confidentialIterator) Key() []byte {
	pt, err := it.KeyChecked()
	if err != nil {
		panic(err)
	}
	return pt
}

// Value decrypts the underlying encrypted value record. It panics on
// corruption, matching Get's contract.
func (it *confidentialIterator) Value() []byte {
	pt, err := it.ValueChecked()
	if err != nil {
		panic(err)
	}
	return pt
}

// KeyChecked is the recoverable form of Key, surfacing
// envelope.ErrCorrupted instead of panicking. Valid only while
// IsValid().
func (it *confidentialIterator) KeyChecked() ([]byte, error) {
	return it.cipher.DecryptKey(it.inner.Key())
}

// ValueChecked is the recoverable form of Value, surfacing
// envelope.ErrCorrupted instead of panicking. Valid only while
// IsValid().
func (it *confidentialIterator) ValueChecked() ([]byte, error) {
	return it.cipher.DecryptValue(it.inner.Value())
}
