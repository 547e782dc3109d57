package gas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeInstance is an in-memory Instance double for Meter tests.
type fakeInstance struct {
	i64 map[string]int64
	i32 map[string]int32
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{i64: map[string]int64{}, i32: map[string]int32{}}
}

func (f *fakeInstance) GetGlobalI64(name string) (int64, error) { return f.i64[name], nil }
func (f *fakeInstance) SetGlobalI64(name string, v int64) error { f.i64[name] = v; return nil }
func (f *fakeInstance) GetGlobalI32(name string) (int32, error) { return f.i32[name], nil }
func (f *fakeInstance) SetGlobalI32(name string, v int32) error { f.i32[name] = v; return nil }

func TestMeterSetGasLimitResetsExhaustedFlag(t *testing.T) {
	inst := newFakeInstance()
	inst.i32[GasLimitExhaustedExport] = 1
	m := NewMeter(inst)

	require.NoError(t, m.SetGasLimit(1000))
	remaining, err := m.GetRemainingGas()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), remaining)

	exhausted, err := m.IsGasLimitExhausted()
	require.NoError(t, err)
	require.False(t, exhausted)
}

// TestMeterUseGasExactBoundary exercises the spec's exact-gas-limit
// boundary: a charge equal to the full remaining balance succeeds and
// leaves zero remaining without tripping exhaustion, while one unit
// more fails and trips it.
func TestMeterUseGasExactBoundary(t *testing.T) {
	inst := newFakeInstance()
	m := NewMeter(inst)
	require.NoError(t, m.SetGasLimit(100))

	require.NoError(t, m.UseGas(100))
	remaining, err := m.GetRemainingGas()
	require.NoError(t, err)
	require.Zero(t, remaining)
	exhausted, err := m.IsGasLimitExhausted()
	require.NoError(t, err)
	require.False(t, exhausted)
}

func TestMeterUseGasOneOverBudgetTraps(t *testing.T) {
	inst := newFakeInstance()
	m := NewMeter(inst)
	require.NoError(t, m.SetGasLimit(100))

	err := m.UseGas(101)
	require.ErrorIs(t, err, ErrOutOfGas)

	remaining, err := m.GetRemainingGas()
	require.NoError(t, err)
	require.Zero(t, remaining)
	exhausted, err := m.IsGasLimitExhausted()
	require.NoError(t, err)
	require.True(t, exhausted)
}
