package abi

import "github.com/oasisprotocol/oasis-core-rofl/wasm/engine"

// envNamespace builds the "env" import namespace: a single gas-priced,
// read-only query entry point into runtime state outside the calling
// instance's own storage (spec.md §4.5).
func envNamespace(cc *CallContext) []engine.HostImport {
	return []engine.HostImport{
		{Namespace: "env", Name: "query", Arity: 3, Results: 1, Func: envQuery(cc)},
	}
}

// envQuery implements env.query(path_ptr, data_ptr, out_resp_ptr) ->
// status, dispatching structured requests (BlockInfo, AccountsBalance,
// ...) to cc.Querier. Following the same guest-pre-allocates-output
// convention as every other variable-length-output host function, the
// guest supplies an out region sized for the largest response it
// expects; a response that doesn't fit fails the write with an error
// that aborts the call rather than truncating silently.
func envQuery(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		mem := caller.Memory()
		path, _, err := ReadRegion(mem, uint32(args[0]))
		if err != nil {
			return nil, err
		}
		data, _, err := ReadRegion(mem, uint32(args[1]))
		if err != nil {
			return nil, err
		}
		if err := cc.ChargeGas(PriceEnvQuery.Cost(len(path) + len(data))); err != nil {
			return nil, err
		}

		resp, err := cc.Querier.Query(*cc, string(path), data)
		if err != nil {
			return []uint64{statusError}, nil
		}
		if err := cc.ChargeGas(PriceEnvQuery.PerByte * uint64(len(resp))); err != nil {
			return nil, err
		}
		if err := WriteToRegion(mem, uint32(args[2]), resp); err != nil {
			return nil, err
		}
		return []uint64{statusOK}, nil
	}
}
