package market

import (
	"context"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/oasisprotocol/oasis-core-rofl/contracts/abi"
	"github.com/oasisprotocol/oasis-core-rofl/evm"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// rmpABIJSON declares the three methods spec.md §4.8 requires an
// EvmContract payment method's contract to implement, per the ABI
// documented on original_source's Payment::EvmContract variant:
// rmpPay(uint8,uint64,address,bytes), rmpRefund(address,bytes),
// rmpClaim(uint64,uint64,address,bytes). Encoded with
// github.com/ethereum/go-ethereum/accounts/abi, the same package the
// teacher's precompiles use to pack/unpack Solidity calldata, so a
// market-initiated payment call and an EVM-native contract call go
// through the identical ABI machinery.
const rmpABIJSON = `[
	{"name":"rmpPay","type":"function","inputs":[
		{"name":"term","type":"uint8"},
		{"name":"termCount","type":"uint64"},
		{"name":"from","type":"address"},
		{"name":"data","type":"bytes"}
	]},
	{"name":"rmpRefund","type":"function","inputs":[
		{"name":"to","type":"address"},
		{"name":"data","type":"bytes"}
	]},
	{"name":"rmpClaim","type":"function","inputs":[
		{"name":"claimableTime","type":"uint64"},
		{"name":"paidTime","type":"uint64"},
		{"name":"to","type":"address"},
		{"name":"data","type":"bytes"}
	]}
]`

var rmpABI ethabi.ABI

func init() {
	parsed, err := ethabi.JSON(strings.NewReader(rmpABIJSON))
	if err != nil {
		panic(err)
	}
	rmpABI = parsed
}

// evmPayGasLimit bounds a market-initiated rmpPay/rmpRefund/rmpClaim
// subcall, separately from any top-level transaction gas budget, since
// these calls are issued by the module itself rather than metered
// guest bytecode.
const evmPayGasLimit = 1_000_000

// callPaymentContract reenters the dispatcher (C6/C7) to invoke method
// on payment.EvmAddress, returning ErrPaymentFailed on any failure so
// the caller never has to distinguish "contract reverted" from
// "dispatch plumbing failed" (spec.md §4.8: "In case the call succeeds,
// the fee is considered paid/refunded").
func (m *Module) callPaymentContract(caller types.Address, payment Payment, method string, args ...interface{}) error {
	calldata, err := rmpABI.Pack(method, args...)
	if err != nil {
		return ErrPaymentFailed
	}

	pool, err := evm.NewGasPool(evmPayGasLimit)
	if err != nil {
		return ErrPaymentFailed
	}
	count := 0
	cc := abi.CallContext{
		Ctx:          context.Background(),
		Caller:       caller,
		Meter:        pool.Meter(),
		Depth:        0,
		SubcallCount: &count,
	}
	if _, err := m.Dispatcher.Subcall(cc, payment.EvmAddress, calldata); err != nil {
		return ErrPaymentFailed
	}
	return nil
}

func (m *Module) evmPay(caller types.Address, payment Payment, term Term, termCount uint64) error {
	ethFrom := caller.Bytes()[1:21]
	var fromAddr [20]byte
	copy(fromAddr[:], ethFrom)
	return m.callPaymentContract(caller, payment, "rmpPay", uint8(term), termCount, fromAddr, payment.EvmData)
}

func (m *Module) evmRefund(instanceAddr types.Address, payment Payment, to types.Address) error {
	ethTo := to.Bytes()[1:21]
	var toAddr [20]byte
	copy(toAddr[:], ethTo)
	return m.callPaymentContract(instanceAddr, payment, "rmpRefund", toAddr, payment.EvmData)
}

func (m *Module) evmClaim(instanceAddr types.Address, payment Payment, claimableTime, paidTime uint64, to types.Address) error {
	ethTo := to.Bytes()[1:21]
	var toAddr [20]byte
	copy(toAddr[:], ethTo)
	return m.callPaymentContract(instanceAddr, payment, "rmpClaim", claimableTime, paidTime, toAddr, payment.EvmData)
}
