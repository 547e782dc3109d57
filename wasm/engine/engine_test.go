package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
)

func TestFakeMemoryReadWriteRoundTrip(t *testing.T) {
	f := engine.NewFake(1024)
	require.NoError(t, f.Memory().Write(16, []byte("hello")))
	got, err := f.Memory().Read(16, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestFakeMemoryBoundsChecked(t *testing.T) {
	f := engine.NewFake(16)
	_, err := f.Memory().Read(10, 100)
	require.Error(t, err)
	require.Error(t, f.Memory().Write(10, make([]byte, 100)))
}

func TestFakeGlobalsRoundTrip(t *testing.T) {
	f := engine.NewFake(16)
	require.NoError(t, f.SetGlobalI64("gas_limit", 42))
	v, err := f.GetGlobalI64("gas_limit")
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestFakeCallDispatchesRegisteredHandler(t *testing.T) {
	f := engine.NewFake(16)
	f.Calls["call"] = func(args []uint64) ([]uint64, error) {
		return []uint64{args[0] + 1}, nil
	}
	out, err := f.Call(context.Background(), "call", 41)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, out)
}

func TestFakeCallImportInvokesHostFunction(t *testing.T) {
	f := engine.NewFake(16)
	_, err := f.Instantiate(context.Background(), nil, []engine.HostImport{
		{
			Namespace: "env",
			Name:      "double",
			Arity:     1,
			Results:   1,
			Func: func(caller engine.Caller, args []uint64) ([]uint64, error) {
				return []uint64{args[0] * 2}, nil
			},
		},
	})
	require.NoError(t, err)

	out, err := f.CallImport("env", "double", 21)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, out)
}
