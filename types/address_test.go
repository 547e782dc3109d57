package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/types"
)

func TestNewAddressDeterministic(t *testing.T) {
	a1 := types.NewAddress(types.AddressV0ModuleContext, "contracts.instance", []byte{0, 0, 0, 0, 0, 0, 0, 1})
	a2 := types.NewAddress(types.AddressV0ModuleContext, "contracts.instance", []byte{0, 0, 0, 0, 0, 0, 0, 1})
	require.Equal(t, a1, a2)
	require.Equal(t, types.AddressV0ModuleContext, a1.Version())

	a3 := types.NewAddress(types.AddressV0ModuleContext, "contracts.instance", []byte{0, 0, 0, 0, 0, 0, 0, 2})
	require.NotEqual(t, a1, a3)
}

func TestAddressRoundTrip(t *testing.T) {
	a := types.NewAddress(types.AddressV0Ed25519Context, "test", []byte("pk"))
	b, err := types.AddressFromBytes(a.Bytes())
	require.NoError(t, err)
	require.Equal(t, a, b)

	_, err = types.AddressFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, types.ErrMalformedAddress)
}

func TestNewInstanceAddressDiffersByID(t *testing.T) {
	a := types.NewInstanceAddress("contracts", 1)
	b := types.NewInstanceAddress("contracts", 2)
	require.NotEqual(t, a, b)
}

func TestQuantityArithmetic(t *testing.T) {
	a := types.NewQuantity(100)
	b := types.NewQuantity(5)

	sum := a.Add(b)
	require.Equal(t, "105", sum.String())

	diff := a.Sub(b)
	require.Equal(t, "95", diff.String())

	require.Panics(t, func() {
		b.Sub(a)
	})
}
