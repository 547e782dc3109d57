package storage

import "bytes"

// PrefixStore transparently prepends prefix to every key before
// delegating to the inner store, per spec.md §4.1.
type PrefixStore struct {
	inner  Store
	prefix []byte
}

// NewPrefixStore wraps inner so that every key is namespaced under prefix.
func NewPrefixStore(inner Store, prefix []byte) *PrefixStore {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixStore{inner: inner, prefix: p}
}

func (p *PrefixStore) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	out = append(out, k...)
	return out
}

// Get implements Store.
func (p *PrefixStore) Get(key []byte) ([]byte, bool) {
	return p.inner.Get(p.key(key))
}

// Insert implements Store.
func (p *PrefixStore) Insert(key, value []byte) {
	p.inner.Insert(p.key(key), value)
}

// Remove implements Store.
func (p *PrefixStore) Remove(key []byte) {
	p.inner.Remove(p.key(key))
}

// NewIterator implements Store, restricting iteration to the prefix's
// namespace and stripping the prefix from returned keys.
func (p *PrefixStore) NewIterator(start, end []byte) Iterator {
	pend := prefixEnd(p.prefix)

	innerStart := p.key(start)
	var innerEnd []byte
	if end == nil {
		innerEnd = pend
	} else {
		innerEnd = p.key(end)
	}
	return &prefixIterator{
		inner:  p.inner.NewIterator(innerStart, innerEnd),
		prefix: p.prefix,
	}
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, or nil if prefix is all 0xff bytes (unbounded above).
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type prefixIterator struct {
	inner  Iterator
	prefix []byte
}

func (it *prefixIterator) Rewind() { it.inner.Rewind() }
func (it *prefixIterator) Next()   { it.inner.Next() }
func (it *prefixIterator) IsValid() bool {
	return it.inner.IsValid() && bytes.HasPrefix(it.inner.Key(), it.prefix)
}
func (it *prefixIterator) Key() []byte {
	return it.inner.Key()[len(it.prefix):]
}
func (it *prefixIterator) Value() []byte { return it.inner.Value() }
func (it *prefixIterator) Close()        { it.inner.Close() }
func (it *prefixIterator) Seek(target []byte) {
	full := make([]byte, 0, len(it.prefix)+len(target))
	full = append(full, it.prefix...)
	full = append(full, target...)
	it.inner.Seek(full)
}
