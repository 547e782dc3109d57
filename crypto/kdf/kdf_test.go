package kdf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
)

func TestDeriveKeyIsPure(t *testing.T) {
	root := []byte("root-key-material-32-bytes-long!")

	a, err := kdf.DeriveKey(root, []byte("app-1"), kdf.KindRaw256)
	require.NoError(t, err)
	b, err := kdf.DeriveKey(root, []byte("app-1"), kdf.KindRaw256)
	require.NoError(t, err)
	require.Equal(t, a.Raw, b.Raw)
	require.Len(t, a.Raw, 32)
}

func TestDeriveKeyChangesWithAnyInput(t *testing.T) {
	root := []byte("root-key-material-32-bytes-long!")

	base, err := kdf.DeriveKey(root, []byte("app-1"), kdf.KindRaw256)
	require.NoError(t, err)

	diffRoot, err := kdf.DeriveKey([]byte("different-root-material-32bytes!"), []byte("app-1"), kdf.KindRaw256)
	require.NoError(t, err)
	require.NotEqual(t, base.Raw, diffRoot.Raw)

	diffID, err := kdf.DeriveKey(root, []byte("app-2"), kdf.KindRaw256)
	require.NoError(t, err)
	require.NotEqual(t, base.Raw, diffID.Raw)

	diffKind, err := kdf.DeriveKey(root, []byte("app-1"), kdf.KindRaw384)
	require.NoError(t, err)
	require.NotEqual(t, base.Raw, diffKind.Raw)
}

func TestDeriveKeyEd25519(t *testing.T) {
	root := []byte("root-key-material-32-bytes-long!")
	k, err := kdf.DeriveKey(root, []byte("signer"), kdf.KindEd25519)
	require.NoError(t, err)
	require.Len(t, k.Ed25519Seed, 64) // ed25519.PrivateKey is seed||pubkey
}

func TestDeriveKeySecp256k1(t *testing.T) {
	root := []byte("root-key-material-32-bytes-long!")
	k, err := kdf.DeriveKey(root, []byte("secp"), kdf.KindSecp256k1)
	require.NoError(t, err)
	require.NotNil(t, k.Secp256k1)
}
