package abi

import (
	"encoding/hex"

	"github.com/oasisprotocol/oasis-core-rofl/types"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
)

// contractNamespace builds the "contract" import namespace: address
// validation, canonicalization, and humanization. spec.md §4.5 names
// "contract" as one of the five fixed host namespaces but leaves its
// functions unspecified beyond that; this runtime fills it the way the
// wider oasis-sdk/CosmWasm-derived ABI family does, since Address
// already has a canonical 21-byte wire form (types.Address) and a
// human-readable hex form (Address.String), matching the
// canonicalize/humanize split that family uses (see DESIGN.md).
func contractNamespace(cc *CallContext) []engine.HostImport {
	return []engine.HostImport{
		{Namespace: "contract", Name: "address_validate", Arity: 1, Results: 1, Func: contractAddressValidate(cc)},
		{Namespace: "contract", Name: "address_canonicalize", Arity: 2, Results: 1, Func: contractAddressCanonicalize(cc)},
		{Namespace: "contract", Name: "address_humanize", Arity: 2, Results: 1, Func: contractAddressHumanize(cc)},
	}
}

// contractAddressValidate implements
// contract.address_validate(human_ptr) -> status.
func contractAddressValidate(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		if err := cc.ChargeGas(PriceAddressValidate.Flat); err != nil {
			return nil, err
		}
		human, _, err := ReadRegion(caller.Memory(), uint32(args[0]))
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(string(human))
		if err != nil {
			return []uint64{statusNotFound}, nil
		}
		if _, err := types.AddressFromBytes(raw); err != nil {
			return []uint64{statusNotFound}, nil
		}
		return []uint64{statusOK}, nil
	}
}

// contractAddressCanonicalize implements
// contract.address_canonicalize(human_ptr, out_canon_ptr) -> status,
// parsing a human (hex-string-backed) address into its 21-byte wire form.
func contractAddressCanonicalize(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		if err := cc.ChargeGas(PriceAddressCanonicalize.Flat); err != nil {
			return nil, err
		}
		mem := caller.Memory()
		human, _, err := ReadRegion(mem, uint32(args[0]))
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(string(human))
		if err != nil {
			return []uint64{statusNotFound}, nil
		}
		addr, err := types.AddressFromBytes(raw)
		if err != nil {
			return []uint64{statusNotFound}, nil
		}
		if err := WriteToRegion(mem, uint32(args[1]), addr.Bytes()); err != nil {
			return nil, err
		}
		return []uint64{statusOK}, nil
	}
}

// contractAddressHumanize implements
// contract.address_humanize(canon_ptr, out_human_ptr) -> status, the
// inverse of address_canonicalize.
func contractAddressHumanize(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		if err := cc.ChargeGas(PriceAddressCanonicalize.Flat); err != nil {
			return nil, err
		}
		mem := caller.Memory()
		canon, _, err := ReadRegion(mem, uint32(args[0]))
		if err != nil {
			return nil, err
		}
		addr, err := types.AddressFromBytes(canon)
		if err != nil {
			return []uint64{statusNotFound}, nil
		}
		if err := WriteToRegion(mem, uint32(args[1]), []byte(addr.String())); err != nil {
			return nil, err
		}
		return []uint64{statusOK}, nil
	}
}
