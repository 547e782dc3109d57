package market

import (
	"encoding/binary"
	"time"

	"github.com/oasisprotocol/oasis-core-rofl/contracts/abi"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

func providerKey(provider types.Address) []byte {
	return provider.Bytes()
}

func offerKey(provider types.Address, id OfferId) []byte {
	key := make([]byte, 0, types.AddressSize+8)
	key = append(key, provider.Bytes()...)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], uint64(id))
	return append(key, idBytes[:]...)
}

func instanceKey(provider types.Address, id InstanceId) []byte {
	key := make([]byte, 0, types.AddressSize+8)
	key = append(key, provider.Bytes()...)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], uint64(id))
	return append(key, idBytes[:]...)
}

// Module implements the ROFL Marketplace of spec.md §4.8, layered over
// the same storage.TypedStore-per-disjoint-prefix convention as
// contracts.Module and rofl.Module.
type Module struct {
	Providers *storage.TypedStore[Provider]
	Offers    *storage.TypedStore[Offer]
	Instances *storage.TypedStore[Instance]

	// Transfer moves BaseUnits between accounts for Native payments,
	// the same ledger collaborator contracts.Module/rofl.Module use.
	Transfer func(from, to types.Address, amount types.Quantity) error

	// Dispatcher reenters the Contracts Module (C6)/EVM Adapter (C7)
	// for EvmContract payments' rmpPay/rmpRefund/rmpClaim calls.
	Dispatcher abi.Dispatcher

	// Now returns the current wall-clock time. Injected so
	// InstanceCreate/TopUp/ClaimPayment's interval arithmetic is
	// deterministic under test; production wiring passes time.Now.
	Now func() time.Time

	// StakeProviderCreate is the stake CreateProvider debits from the
	// caller, per spec.md §3's "Stake thresholds".
	StakeProviderCreate types.BaseUnits
}

// NewModule constructs a Module over root, namespacing providers,
// offers and instances under disjoint key prefixes.
func NewModule(root storage.Store, transfer func(from, to types.Address, amount types.Quantity) error, dispatcher abi.Dispatcher, now func() time.Time) *Module {
	return &Module{
		Providers:  storage.NewTypedStore[Provider](storage.NewPrefixStore(root, []byte("prov/"))),
		Offers:     storage.NewTypedStore[Offer](storage.NewPrefixStore(root, []byte("offer/"))),
		Instances:  storage.NewTypedStore[Instance](storage.NewPrefixStore(root, []byte("inst/"))),
		Transfer:   transfer,
		Dispatcher: dispatcher,
		Now:        now,
	}
}
