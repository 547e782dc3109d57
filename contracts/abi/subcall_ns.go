package abi

import (
	"github.com/oasisprotocol/oasis-core-rofl/types"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
)

// subcallNamespace builds the "subcall" import namespace: a single
// reentry point into the dispatcher, with the calling instance as
// caller (spec.md §4.5/§4.6).
func subcallNamespace(cc *CallContext) []engine.HostImport {
	return []engine.HostImport{
		{Namespace: "subcall", Name: "call", Arity: 3, Results: 1, Func: subcallCall(cc)},
	}
}

// subcallCall implements subcall.call(target_ptr, body_ptr, out_ptr) ->
// status. It enforces MaxSubcallDepth and MaxSubcallCount before
// reentering cc.Dispatcher; both limits are fatal to the whole call
// when exceeded, per spec.md §4.6, not merely this one subcall.
func subcallCall(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		if cc.Depth+1 > MaxSubcallDepth {
			return nil, ErrSubcallDepthExceeded
		}
		if *cc.SubcallCount+1 > MaxSubcallCount {
			return nil, ErrSubcallCountExceeded
		}
		if err := cc.ChargeGas(PriceSubcallBase.Flat); err != nil {
			return nil, err
		}

		mem := caller.Memory()
		targetBytes, _, err := ReadRegion(mem, uint32(args[0]))
		if err != nil {
			return nil, err
		}
		body, _, err := ReadRegion(mem, uint32(args[1]))
		if err != nil {
			return nil, err
		}
		target, err := types.AddressFromBytes(targetBytes)
		if err != nil {
			return []uint64{statusError}, nil
		}
		if err := cc.ChargeGas(PriceSubcallBase.PerByte * uint64(len(body))); err != nil {
			return nil, err
		}

		*cc.SubcallCount++
		subCtx := *cc
		subCtx.Depth++
		subCtx.Caller = cc.Contract
		// The dispatcher is responsible for rebinding Contract and the
		// two Store fields to the target instance before executing;
		// Iterators starts fresh since a subcall's scans must not leak
		// into or share handles with the caller's.
		subCtx.Iterators = NewIteratorRegistry()

		result, err := cc.Dispatcher.Subcall(subCtx, target, body)
		if err != nil {
			return []uint64{statusError}, nil
		}
		if err := cc.ChargeGas(PriceSubcallBase.PerByte * uint64(len(result))); err != nil {
			return nil, err
		}
		if err := WriteToRegion(mem, uint32(args[2]), result); err != nil {
			return nil, err
		}
		return []uint64{statusOK}, nil
	}
}
