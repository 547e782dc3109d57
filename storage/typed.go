package storage

import (
	"github.com/fxamacker/cbor"
)

// cborEncOpts is canonical CBOR: sorted map keys, shortest-form integers,
// matching the CBOR canonical encoding convention of spec.md §6.
var cborEncOpts = cbor.EncOptions{Canonical: true}

// TypedStore CBOR-encodes values of type T on Insert and decodes them on
// Get, per spec.md §4.1. It is generic over the inner store so it can sit
// above any other layer (prefix, hashed, confidential).
type TypedStore[T any] struct {
	inner Store
}

// NewTypedStore wraps inner with CBOR encode/decode of type T.
func NewTypedStore[T any](inner Store) *TypedStore[T] {
	return &TypedStore[T]{inner: inner}
}

// Get decodes the value stored under key into a T, returning ok=false if
// the key is absent.
func (t *TypedStore[T]) Get(key []byte) (value T, ok bool, err error) {
	raw, present := t.inner.Get(key)
	if !present {
		return value, false, nil
	}
	if err := cbor.Unmarshal(raw, &value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

// Insert CBOR-encodes value and stores it under key.
func (t *TypedStore[T]) Insert(key []byte, value T) error {
	raw, err := cbor.Marshal(value, cborEncOpts)
	if err != nil {
		return err
	}
	t.inner.Insert(key, raw)
	return nil
}

// Remove implements Store-like deletion.
func (t *TypedStore[T]) Remove(key []byte) {
	t.inner.Remove(key)
}

// Iterate walks every (key, decoded value) pair in [start, end), invoking
// fn for each until fn returns false or the range is exhausted.
func (t *TypedStore[T]) Iterate(start, end []byte, fn func(key []byte, value T) (cont bool, err error)) error {
	it := t.inner.NewIterator(start, end)
	defer it.Close()
	for it.Rewind(); it.IsValid(); it.Next() {
		var v T
		if err := cbor.Unmarshal(it.Value(), &v); err != nil {
			return err
		}
		cont, err := fn(it.Key(), v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
