package storage

import (
	"bytes"
	"sort"
	"sync"
)

// MemStore is an in-memory, sorted-map Store. It stands in for the
// Merkle key/value store consumed elsewhere in this repo (spec.md §1)
// and is the reference implementation the package's own tests and the
// higher layers' tests run against, the same role the teacher's
// in-memory statedb journal plays for x/vm's tests.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemStore) Get(key []byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Insert implements Store.
func (m *MemStore) Insert(key, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
}

// Remove implements Store.
func (m *MemStore) Remove(key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
}

// NewIterator implements Store.
func (m *MemStore) NewIterator(start, end []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if inRange([]byte(k), start, end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	snapshot := make([]kv, len(keys))
	for i, k := range keys {
		snapshot[i] = kv{key: []byte(k), value: m.data[k]}
	}
	return &memIterator{items: snapshot}
}

func inRange(key, start, end []byte) bool {
	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}

type kv struct {
	key, value []byte
}

type memIterator struct {
	items []kv
	pos   int
}

func (it *memIterator) Rewind()       { it.pos = 0 }
func (it *memIterator) Next()         { it.pos++ }
func (it *memIterator) IsValid() bool { return it.pos >= 0 && it.pos < len(it.items) }
func (it *memIterator) Key() []byte   { return it.items[it.pos].key }
func (it *memIterator) Value() []byte { return it.items[it.pos].value }
func (it *memIterator) Close()        { it.items = nil }

func (it *memIterator) Seek(target []byte) {
	it.pos = sort.Search(len(it.items), func(i int) bool {
		return bytes.Compare(it.items[i].key, target) >= 0
	})
}
