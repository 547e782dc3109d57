package storage_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
)

func TestMemStoreGetInsertRemove(t *testing.T) {
	s := storage.NewMemStore()
	_, ok := s.Get([]byte("a"))
	require.False(t, ok)

	s.Insert([]byte("a"), []byte("1"))
	v, ok := s.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	s.Remove([]byte("a"))
	_, ok = s.Get([]byte("a"))
	require.False(t, ok)
}

func TestMemStoreOrderedIteration(t *testing.T) {
	s := storage.NewMemStore()
	s.Insert([]byte("b"), []byte("2"))
	s.Insert([]byte("a"), []byte("1"))
	s.Insert([]byte("c"), []byte("3"))

	it := s.NewIterator(nil, nil)
	defer it.Close()

	var keys []string
	for it.Rewind(); it.IsValid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestPrefixStoreIsolatesNamespace(t *testing.T) {
	base := storage.NewMemStore()
	p1 := storage.NewPrefixStore(base, []byte("p1/"))
	p2 := storage.NewPrefixStore(base, []byte("p2/"))

	p1.Insert([]byte("k"), []byte("v1"))
	p2.Insert([]byte("k"), []byte("v2"))

	v1, ok := p1.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v1)

	v2, ok := p2.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v2)

	it := p1.NewIterator(nil, nil)
	defer it.Close()
	it.Rewind()
	require.True(t, it.IsValid())
	require.Equal(t, []byte("k"), it.Key())
	it.Next()
	require.False(t, it.IsValid())
}

func TestTypedStoreRoundTrip(t *testing.T) {
	type record struct {
		Name  string
		Count int
	}
	base := storage.NewMemStore()
	typed := storage.NewTypedStore[record](base)

	require.NoError(t, typed.Insert([]byte("k"), record{Name: "a", Count: 1}))

	got, ok, err := typed.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "a", Count: 1}, got)
}

// TestOverlayCommitRollback is universal invariant 1 of spec.md §8.
func TestOverlayCommitRollback(t *testing.T) {
	parent := storage.NewMemStore()
	parent.Insert([]byte("k"), []byte("parent-value"))

	overlay := storage.NewOverlayStore(parent)
	overlay.Insert([]byte("k"), []byte("overlay-value"))
	overlay.Insert([]byte("new"), []byte("new-value"))

	v, ok := overlay.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("overlay-value"), v)

	// Parent is untouched before commit.
	pv, ok := parent.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("parent-value"), pv)

	overlay.Commit()

	pv, ok = parent.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("overlay-value"), pv)
	nv, ok := parent.Get([]byte("new"))
	require.True(t, ok)
	require.Equal(t, []byte("new-value"), nv)
}

func TestOverlayRollbackDiscardsWrites(t *testing.T) {
	parent := storage.NewMemStore()
	parent.Insert([]byte("k"), []byte("parent-value"))

	overlay := storage.NewOverlayStore(parent)
	overlay.Insert([]byte("k"), []byte("overlay-value"))
	overlay.Remove([]byte("k2"))
	overlay.Rollback()

	v, ok := overlay.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("parent-value"), v)
}

func TestOverlayTombstoneShadowsParent(t *testing.T) {
	parent := storage.NewMemStore()
	parent.Insert([]byte("k"), []byte("v"))

	overlay := storage.NewOverlayStore(parent)
	overlay.Remove([]byte("k"))

	_, ok := overlay.Get([]byte("k"))
	require.False(t, ok)

	overlay.Commit()
	_, ok = parent.Get([]byte("k"))
	require.False(t, ok)
}

func TestHashedStoreRoundTrip(t *testing.T) {
	base := storage.NewMemStore()
	h := storage.NewHashedStore(base)

	longKey := make([]byte, 1000)
	h.Insert(longKey, []byte("v"))

	v, ok := h.Get(longKey)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestConfidentialStoreRoundTripAndCorruption(t *testing.T) {
	base := storage.NewMemStore()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	cs, err := storage.NewConfidentialStore(base, key, []byte("ctx"))
	require.NoError(t, err)

	cs.Insert([]byte("key"), []byte("value"))

	v, ok := cs.Get([]byte("key"))
	require.True(t, ok)
	require.Equal(t, []byte("value"), v)

	// The underlying plaintext store holds only ciphertext.
	it := base.NewIterator(nil, nil)
	it.Rewind()
	require.True(t, it.IsValid())
	tampered := append([]byte(nil), it.Value()...)
	tampered[len(tampered)-1] ^= 0x01
	base.Insert(it.Key(), tampered)
	it.Close()

	_, _, err = cs.GetChecked([]byte("key"))
	require.Error(t, err)
}
