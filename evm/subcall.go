package evm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oasisprotocol/oasis-core-rofl/contracts/abi"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// SubcallAddress is the fixed precompile address EVM bytecode calls to
// reenter the dispatcher and invoke another contract (WASM or EVM), the
// EVM-side counterpart of contracts/abi's subcall.call host function.
// 0xfd mirrors the teacher's convention of reserving addresses near the
// top of the low range for runtime-native precompiles rather than
// colliding with the standard Ethereum precompile set (0x01-0x0a).
var SubcallAddress = common.HexToAddress("0x00000000000000000000000000000000Fd0001")

// ErrSelfDestructUnsupported is the error RejectSelfDestruct returns for
// SELFDESTRUCT, per spec.md §9's Open Questions resolution:
// reset_storage/reset_balance stay no-ops. Nothing in this package
// returns it while bytecode runs.
var ErrSelfDestructUnsupported = errors.New("evm: SELFDESTRUCT not supported")

// SubcallPrecompile lets EVM bytecode call into the Contracts Module's
// dispatcher (C6), the same reentry point contracts/abi's subcall.call
// host function gives WASM guests. Input is ABI-opaque: the precompile
// forwards it unparsed as the target contract's call input, leaving
// encoding conventions to the caller's Solidity interface.
type SubcallPrecompile struct {
	Dispatcher abi.Dispatcher

	// Ctx, Caller and SubcallCount/Depth come from the top-level call
	// that is executing this EVM code, so a subcall issued from inside
	// an EVM contract shares the same depth/count budget as one issued
	// from a WASM contract (spec.md §4.6, abi.MaxSubcallDepth/MaxSubcallCount).
	Ctx          context.Context
	Caller       types.Address
	Depth        int
	SubcallCount *int
	Pool         *GasPool
}

// subcallTargetLen sizes the fixed 20-byte target prefix of the calldata:
// the first 20 bytes select the target contract's runtime Address
// payload (interpreted as an Ethereum-style hash per
// types.NewAddressFromEthBytes), the remainder is the call body.
const subcallTargetLen = 20

// RequiredGas matches contracts/abi's PriceSubcallBase pricing table so
// a subcall costs the same regardless of which guest runtime issued it.
func (p SubcallPrecompile) RequiredGas(input []byte) uint64 {
	return abi.PriceSubcallBase.Cost(len(input))
}

// Run validates the subcall budget, resolves the target address and
// reenters the dispatcher, passing the shared GasPool's meter
// (evm/gaspool.go) as the subcall's Meter. Run itself charges no gas
// and adds nothing back into the pool.
func (p SubcallPrecompile) Run(input []byte) ([]byte, error) {
	if len(input) < subcallTargetLen {
		return nil, errors.New("evm: malformed subcall input")
	}
	if p.Depth >= abi.MaxSubcallDepth {
		return nil, errors.New("evm: subcall depth exceeded")
	}
	if *p.SubcallCount >= abi.MaxSubcallCount {
		return nil, errors.New("evm: subcall count exceeded")
	}

	target, err := types.NewAddressFromEthBytes(input[:subcallTargetLen])
	if err != nil {
		return nil, err
	}
	body := input[subcallTargetLen:]

	cc := abi.CallContext{
		Ctx:          p.Ctx,
		Caller:       p.Caller,
		Depth:        p.Depth + 1,
		SubcallCount: p.SubcallCount,
		Meter:        p.Pool.Meter(),
	}
	*p.SubcallCount++

	return p.Dispatcher.Subcall(cc, target, body)
}

// RejectSelfDestruct returns the error an apply boundary (a loop that
// drives vm.EVM.Call for an installed EVM contract) reports for
// SELFDESTRUCT; nothing in this package calls it. go-ethereum's interpreter
// has no hook to veto an opcode mid-execution, so EVM contracts meant to
// run under this adapter must be rejected at install/validation time if
// they contain the opcode, and any that slip through still have
// StateDB.SelfDestruct/SelfDestruct6780 as no-ops (evm/statedb.go), so
// the balance and storage simply survive rather than vanishing
// silently.
func RejectSelfDestruct() error {
	return ErrSelfDestructUnsupported
}
