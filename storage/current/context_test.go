package current_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/storage/current"
)

func TestWithTransactionCommit(t *testing.T) {
	root := storage.NewMemStore()
	ctx := current.NewContext(root)

	_, err := ctx.WithTransaction(func() current.TransactionResult {
		_ = ctx.With(func(s storage.Store) {
			s.Insert([]byte("k"), []byte("v"))
		})
		return current.Commit(nil)
	})
	require.NoError(t, err)

	v, ok := root.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestWithTransactionRollback(t *testing.T) {
	root := storage.NewMemStore()
	ctx := current.NewContext(root)

	sentinel := errors.New("boom")
	_, err := ctx.WithTransaction(func() current.TransactionResult {
		_ = ctx.With(func(s storage.Store) {
			s.Insert([]byte("k"), []byte("v"))
		})
		return current.Rollback(sentinel)
	})
	require.ErrorIs(t, err, sentinel)

	_, ok := root.Get([]byte("k"))
	require.False(t, ok)
}

func TestWithReentranceFails(t *testing.T) {
	root := storage.NewMemStore()
	ctx := current.NewContext(root)

	err := ctx.With(func(s storage.Store) {
		innerErr := ctx.With(func(storage.Store) {})
		require.ErrorIs(t, innerErr, current.ErrReentrant)
	})
	require.NoError(t, err)
}

func TestNestedTransactions(t *testing.T) {
	root := storage.NewMemStore()
	ctx := current.NewContext(root)

	_, err := ctx.WithTransaction(func() current.TransactionResult {
		_ = ctx.With(func(s storage.Store) { s.Insert([]byte("outer"), []byte("1")) })

		_, innerErr := ctx.WithTransaction(func() current.TransactionResult {
			_ = ctx.With(func(s storage.Store) { s.Insert([]byte("inner"), []byte("2")) })
			return current.Rollback(errors.New("inner fails"))
		})
		require.Error(t, innerErr)

		return current.Commit(nil)
	})
	require.NoError(t, err)

	_, ok := root.Get([]byte("outer"))
	require.True(t, ok)
	_, ok = root.Get([]byte("inner"))
	require.False(t, ok)
}
