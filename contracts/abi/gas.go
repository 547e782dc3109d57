package abi

// Pricing is a flat-plus-per-byte gas cost, the same shape the teacher
// uses for its own stateful precompiles (precompiles/common.Precompile.
// RequiredGas): a fixed call overhead plus a cost proportional to the
// amount of data the call moves across the host/guest boundary.
type Pricing struct {
	Flat    uint64
	PerByte uint64
}

// Cost returns the total charge for moving n bytes through a call
// priced with p.
func (p Pricing) Cost(n int) uint64 {
	return p.Flat + p.PerByte*uint64(n)
}

// Pricing tables for every host function, per spec.md §4.5. Storage
// pricing deliberately tracks typical KV-store costs (cosmos-sdk's
// storetypes.GasConfig defaults are the same order of magnitude);
// signature and key-agreement operations are priced flat since their
// cost does not scale with the small, fixed-size inputs they take; the
// AEAD and random-bytes calls add a per-byte cost.
var (
	PriceStorageRead   = Pricing{Flat: 1000, PerByte: 3}
	PriceStorageWrite  = Pricing{Flat: 2000, PerByte: 30}
	PriceStorageRemove = Pricing{Flat: 1000}
	PriceStorageScan   = Pricing{Flat: 1500, PerByte: 3}

	PriceEcdsaRecover        = Pricing{Flat: 100_000}
	PriceSignatureVerify     = Pricing{Flat: 80_000}
	PriceX25519DeriveSymm    = Pricing{Flat: 60_000}
	PriceDeoxysSeal          = Pricing{Flat: 20_000, PerByte: 10}
	PriceDeoxysOpen          = Pricing{Flat: 20_000, PerByte: 10}
	PriceRandomBytes         = Pricing{Flat: 5_000, PerByte: 1}
	PriceAddressValidate     = Pricing{Flat: 2_000}
	PriceAddressCanonicalize = Pricing{Flat: 2_000}

	PriceEnvQuery = Pricing{Flat: 50_000, PerByte: 5}

	// PriceSubcallBase is charged in addition to the gas the subcall
	// itself consumes, covering the fixed overhead of re-entering the
	// dispatcher (spec.md §4.6).
	PriceSubcallBase = Pricing{Flat: 40_000, PerByte: 5}
)
