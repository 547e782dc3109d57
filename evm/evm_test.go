package evm

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/contracts/abi"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

func TestStateDBBalanceNonceRoundTrip(t *testing.T) {
	db := NewStateDB(storage.NewMemStore(), nil)
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	require.True(t, db.Empty(addr))
	db.AddBalance(addr, uint256.NewInt(100), 0)
	require.Equal(t, uint64(100), db.GetBalance(addr).Uint64())
	db.SetNonce(addr, 7, 0)
	require.Equal(t, uint64(7), db.GetNonce(addr))
	require.False(t, db.Empty(addr))

	db.Finalize()

	reloaded := NewStateDB(db.public, nil)
	require.Equal(t, uint64(100), reloaded.GetBalance(addr).Uint64())
	require.Equal(t, uint64(7), reloaded.GetNonce(addr))
}

func TestStateDBSnapshotRevert(t *testing.T) {
	db := NewStateDB(storage.NewMemStore(), nil)
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")

	db.AddBalance(addr, uint256.NewInt(50), 0)
	snap := db.Snapshot()
	db.AddBalance(addr, uint256.NewInt(25), 0)
	require.Equal(t, uint64(75), db.GetBalance(addr).Uint64())

	db.RevertToSnapshot(snap)
	require.Equal(t, uint64(50), db.GetBalance(addr).Uint64())
}

func TestStateDBStorageSlots(t *testing.T) {
	db := NewStateDB(storage.NewMemStore(), nil)
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	key := common.HexToHash("0x01")
	value := common.HexToHash("0x02")

	require.Equal(t, common.Hash{}, db.GetState(addr, key))
	prev := db.SetState(addr, key, value)
	require.Equal(t, common.Hash{}, prev)
	require.Equal(t, value, db.GetState(addr, key))
	require.Equal(t, common.Hash{}, db.GetCommittedState(addr, key))

	db.Finalize()
	reloaded := NewStateDB(db.public, nil)
	require.Equal(t, value, reloaded.GetState(addr, key))
}

func TestStateDBCodeRoundTrip(t *testing.T) {
	db := NewStateDB(storage.NewMemStore(), nil)
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")
	code := []byte{0x60, 0x00, 0x60, 0x00}

	db.SetCode(addr, code)
	require.Equal(t, code, db.GetCode(addr))
	require.Equal(t, len(code), db.GetCodeSize(addr))

	db.Finalize()
	reloaded := NewStateDB(db.public, nil)
	require.Equal(t, code, reloaded.GetCode(addr))
}

func TestAccessList(t *testing.T) {
	db := NewStateDB(storage.NewMemStore(), nil)
	addr := common.HexToAddress("0x5555555555555555555555555555555555555555")
	slot := common.HexToHash("0x09")

	require.False(t, db.AddressInAccessList(addr))
	db.AddAddressToAccessList(addr)
	require.True(t, db.AddressInAccessList(addr))

	addrOK, slotOK := db.SlotInAccessList(addr, slot)
	require.True(t, addrOK)
	require.False(t, slotOK)
	db.AddSlotToAccessList(addr, slot)
	_, slotOK = db.SlotInAccessList(addr, slot)
	require.True(t, slotOK)
}

type fakeDispatcher struct {
	called bool
	target types.Address
	input  []byte
}

func (f *fakeDispatcher) Subcall(cc abi.CallContext, target types.Address, input []byte) ([]byte, error) {
	f.called = true
	f.target = target
	f.input = input
	return []byte("ok"), nil
}

func TestSubcallPrecompileRun(t *testing.T) {
	pool, err := NewGasPool(1_000_000)
	require.NoError(t, err)
	disp := &fakeDispatcher{}
	count := 0

	p := SubcallPrecompile{
		Dispatcher:   disp,
		Ctx:          context.Background(),
		Caller:       types.NewAddress(types.AddressV0ModuleContext, "test", []byte("caller")),
		Depth:        0,
		SubcallCount: &count,
		Pool:         pool,
	}

	targetEth := make([]byte, 20)
	targetEth[19] = 0x09
	input := append(append([]byte{}, targetEth...), []byte("body")...)

	out, err := p.Run(input)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), out)
	require.True(t, disp.called)
	require.Equal(t, []byte("body"), disp.input)
	require.Equal(t, 1, count)
}

func TestSubcallPrecompileRejectsExceededCount(t *testing.T) {
	pool, err := NewGasPool(1_000_000)
	require.NoError(t, err)
	disp := &fakeDispatcher{}
	count := abi.MaxSubcallCount

	p := SubcallPrecompile{
		Dispatcher:   disp,
		Ctx:          context.Background(),
		SubcallCount: &count,
		Pool:         pool,
	}
	_, err = p.Run(make([]byte, 20))
	require.Error(t, err)
	require.False(t, disp.called)
}

func TestGasPoolSubAndAdd(t *testing.T) {
	pool, err := NewGasPool(100)
	require.NoError(t, err)
	require.Equal(t, uint64(100), pool.Gas())

	require.NoError(t, pool.SubGas(40))
	require.Equal(t, uint64(60), pool.Gas())

	pool.AddGas(10)
	require.Equal(t, uint64(70), pool.Gas())

	require.Error(t, pool.SubGas(1000))
}
