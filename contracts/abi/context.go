package abi

import (
	"context"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/envelope"
	"github.com/oasisprotocol/oasis-core-rofl/kms"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/gas"
)

// MaxSubcallDepth bounds how many nested contract-to-contract calls a
// single top-level transaction may cause, per spec.md §4.6.
const MaxSubcallDepth = 8

// MaxSubcallCount bounds the total number of subcalls a single
// top-level transaction may issue across its whole call tree, per
// spec.md §4.6.
const MaxSubcallCount = 16

// Dispatcher re-enters the contracts module to execute a subcall,
// implemented by contracts.Module. Kept as an interface here to avoid
// an import cycle (contracts imports contracts/abi, not vice versa).
type Dispatcher interface {
	Subcall(ctx CallContext, target types.Address, input []byte) ([]byte, error)
}

// Querier answers env.query calls against runtime state outside the
// calling instance's own storage (balances, other contracts' public
// state, block info), implemented by the embedder.
type Querier interface {
	Query(ctx CallContext, path string, data []byte) ([]byte, error)
}

// CallContext threads everything a host function namespace needs
// through a single call into a guest instance.
type CallContext struct {
	Ctx context.Context

	// PublicStore and ConfidentialStore are the instance's two stores
	// (spec.md §4.5): storage.get/insert/remove/scan select between them
	// with a store-kind argument. ConfidentialStore transparently
	// encrypts keys and authenticate-encrypts values (storage.ConfidentialStore);
	// PublicStore does not.
	PublicStore       storage.Store
	ConfidentialStore storage.Store

	Meter           *gas.Meter
	Contract        types.Address
	Caller          types.Address
	ContractSecrets *envelope.StoreCipher
	KeyManager      *kms.Service

	Dispatcher Dispatcher
	Querier    Querier
	Iterators  *IteratorRegistry

	// Depth counts nested subcalls below the top-level call; the
	// top-level call itself is depth 0.
	Depth int
	// SubcallCount is shared by pointer across an entire call tree so
	// MaxSubcallCount is enforced against the whole transaction, not
	// just one branch of it.
	SubcallCount *int
}

// ChargeGas charges amount against the call's gas meter, returning the
// meter's error unchanged.
func (c CallContext) ChargeGas(amount uint64) error {
	if err := c.Meter.UseGas(amount); err != nil {
		return err
	}
	return nil
}
