package contracts

import (
	"context"
	"encoding/binary"

	"github.com/oasisprotocol/oasis-core-rofl/contracts/abi"
	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/storage/current"
	"github.com/oasisprotocol/oasis-core-rofl/types"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/gas"
)

// instanceModuleName namespaces instance addresses, per
// types.NewInstanceAddress's (moduleName, id) scheme.
const instanceModuleName = "contracts"

// instanceConfidentialCustom is the KDF key-id prefix used to derive an
// instance's confidential-store key material, domain-separated from
// every other subkey this runtime derives (spec.md §4.2/§4.6).
var instanceConfidentialCustom = []byte("instance-store")

// InstanceStatus tracks the per-instance state machine of spec.md §4.6:
// Absent -> Instantiated -> [Upgrading -> Instantiated]* -> Absent.
type InstanceStatus int

const (
	StatusInstantiated InstanceStatus = iota
	StatusUpgrading
)

// Instance is the on-chain record for one instantiated contract.
type Instance struct {
	Address types.Address
	CodeID  uint64
	Creator types.Address
	Status  InstanceStatus
	// Label is an operator-supplied human-readable name, informational
	// only.
	Label string
}

func instanceStore(root storage.Store) *storage.TypedStore[Instance] {
	return storage.NewTypedStore[Instance](storage.NewPrefixStore(root, []byte("instance/")))
}

var nextInstanceSeqKey = []byte("next_instance_seq")

func nextInstanceSeq(root storage.Store) uint64 {
	raw, ok := root.Get(nextInstanceSeqKey)
	if !ok {
		return 1
	}
	return binary.BigEndian.Uint64(raw)
}

func setNextInstanceSeq(root storage.Store, seq uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	root.Insert(nextInstanceSeqKey, buf)
}

// GetInstance loads an Instance record by address.
func GetInstance(root storage.Store, addr types.Address) (Instance, error) {
	inst, ok, err := instanceStore(root).Get(addr.Bytes())
	if err != nil {
		return Instance{}, err
	}
	if !ok {
		return Instance{}, ErrInstanceNotFound
	}
	return inst, nil
}

// instanceConfidentialStore derives a confidential store scoped to a
// single instance from the module's confidential root key material,
// using crypto/kdf so two instances never share derived key material
// even though they share the same underlying backing store (spec.md
// §4.2's subkey derivation convention, applied per-instance rather than
// per-app as §4.7 does for ROFL).
func instanceConfidentialStore(rootKey []byte, addr types.Address, backing storage.Store) (storage.Store, error) {
	derived, err := kdf.DeriveKey(rootKey, append(append([]byte{}, instanceConfidentialCustom...), addr.Bytes()...), kdf.KindRaw256)
	if err != nil {
		return nil, err
	}
	prefixed := storage.NewPrefixStore(backing, append([]byte("cstore/"), addr.Bytes()...))
	return storage.NewConfidentialStore(prefixed, derived.Raw, addr.Bytes())
}

// Deps bundles the collaborators Instantiate/Call/Upgrade need beyond
// the two stores: the WASM engine, an env.query answerer, the subcall
// dispatcher, and the confidential store's root key material.
type Deps struct {
	Engine              engine.Engine
	Querier             abi.Querier
	Dispatcher          abi.Dispatcher
	ConfidentialRootKey []byte
}

// newCallContext builds the per-call contracts/abi.CallContext for a
// single guest export invocation. Meter is left nil: it is only usable
// once the guest instance it will be bound to exists, so the caller
// sets it right after instantiation.
func newCallContext(ctx context.Context, publicStore, confidentialStore storage.Store, contract, caller types.Address, deps Deps, depth int, subcallCount *int) *abi.CallContext {
	return &abi.CallContext{
		Ctx:               ctx,
		PublicStore:       publicStore,
		ConfidentialStore: confidentialStore,
		Contract:          contract,
		Caller:            caller,
		Dispatcher:        deps.Dispatcher,
		Querier:           deps.Querier,
		Iterators:         abi.NewIteratorRegistry(),
		Depth:             depth,
		SubcallCount:      subcallCount,
	}
}

// runExport instantiates code fresh, seeds its gas balance, and invokes
// the named export, translating a compile or instantiation failure, a
// guest trap, or an unreadable result region into
// ErrGuestExecutionFailed.
func runExport(ctx context.Context, deps Deps, code Code, publicStore, confidentialStore storage.Store, contract, caller types.Address, gasLimit uint64, export string, input []byte, depth int, subcallCount *int) ([]byte, error) {
	module, err := deps.Engine.Compile(code.Transformed)
	if err != nil {
		return nil, wrapErr(ErrGuestExecutionFailed, err.Error())
	}
	defer module.Close()

	cc := newCallContext(ctx, publicStore, confidentialStore, contract, caller, deps, depth, subcallCount)
	inst, err := deps.Engine.Instantiate(ctx, module, abi.BuildImports(cc))
	if err != nil {
		return nil, wrapErr(ErrGuestExecutionFailed, err.Error())
	}
	defer inst.Close()
	cc.Meter = gas.NewMeter(inst)

	if err := cc.Meter.SetGasLimit(gasLimit); err != nil {
		return nil, err
	}

	ptr, err := abi.AllocateAndWrite(*cc, inst, input)
	if err != nil {
		return nil, wrapErr(ErrGuestExecutionFailed, err.Error())
	}
	res, err := inst.Call(ctx, export, uint64(ptr))
	if err != nil {
		return nil, wrapErr(ErrGuestExecutionFailed, err.Error())
	}
	if len(res) != 1 {
		return nil, wrapErr(ErrGuestExecutionFailed, "export returned unexpected result count")
	}
	out, _, err := abi.ReadRegion(inst.Memory(), uint32(res[0]))
	if err != nil {
		return nil, wrapErr(ErrGuestExecutionFailed, err.Error())
	}
	return out, nil
}

// Instantiate runs a new instance of code, per spec.md §4.6: enforces
// the instantiate_policy, transfers any attached tokens, and runs the
// guest's instantiate export inside a transactional frame that rolls
// back entirely (including the token transfer) on failure.
func Instantiate(ctx context.Context, cur *current.Context, deps Deps, code Code, creator types.Address, attached types.Quantity, transfer func(from, to types.Address, amount types.Quantity) error, input []byte, gasLimit uint64) (Instance, []byte, error) {
	if !code.InstantiatePolicy.Allows(creator) {
		return Instance{}, nil, ErrInstantiatePolicyViolation
	}

	result, err := cur.WithTransaction(func() current.TransactionResult {
		root := currentTop(cur)
		seq := nextInstanceSeq(root)
		addr := types.NewInstanceAddress(instanceModuleName, seq)

		if !attached.IsZero() {
			if err := transfer(creator, addr, attached); err != nil {
				return current.Rollback(err)
			}
		}

		confidential, err := instanceConfidentialStore(deps.ConfidentialRootKey, addr, root)
		if err != nil {
			return current.Rollback(err)
		}
		subcallCount := 0
		out, err := runExport(ctx, deps, code, storage.NewPrefixStore(root, append([]byte("pstore/"), addr.Bytes()...)), confidential, addr, creator, gasLimit, "instantiate", input, 0, &subcallCount)
		if err != nil {
			return current.Rollback(err)
		}

		inst := Instance{Address: addr, CodeID: code.ID, Creator: creator, Status: StatusInstantiated}
		if err := instanceStore(root).Insert(addr.Bytes(), inst); err != nil {
			return current.Rollback(err)
		}
		setNextInstanceSeq(root, seq+1)

		return current.Commit([2]interface{}{inst, out})
	})
	if err != nil {
		return Instance{}, nil, err
	}
	pair := result.([2]interface{})
	return pair[0].(Instance), pair[1].([]byte), nil
}

// Call invokes an existing instance's call export, per spec.md §4.6.
// Call does not check a handler's allow_interactive attribute: that
// attribute lives in manifest metadata this package does not itself
// parse (manifest/, C11).
func Call(ctx context.Context, cur *current.Context, deps Deps, addr, caller types.Address, input []byte, gasLimit uint64, subcallCount *int, depth int) ([]byte, error) {
	result, err := cur.WithTransaction(func() current.TransactionResult {
		root := currentTop(cur)
		inst, err := GetInstance(root, addr)
		if err != nil {
			return current.Rollback(err)
		}
		if inst.Status != StatusInstantiated {
			return current.Rollback(ErrInstanceUpgrading)
		}
		code, err := GetCode(root, inst.CodeID)
		if err != nil {
			return current.Rollback(err)
		}
		confidential, err := instanceConfidentialStore(deps.ConfidentialRootKey, addr, root)
		if err != nil {
			return current.Rollback(err)
		}
		out, err := runExport(ctx, deps, code, storage.NewPrefixStore(root, append([]byte("pstore/"), addr.Bytes()...)), confidential, addr, caller, gasLimit, "call", input, depth, subcallCount)
		if err != nil {
			return current.Rollback(err)
		}
		return current.Commit(out)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Upgrade swaps addr's installed code, per spec.md §4.6's two-phase
// protocol: pre_upgrade runs against the old code, then (on success)
// code_id is swapped and post_upgrade runs against the new code. Either
// phase failing rolls the whole frame — including the code_id swap —
// back to the pre-upgrade state. Re-pointing to the currently installed
// code is rejected outright.
func Upgrade(ctx context.Context, cur *current.Context, deps Deps, addr, caller types.Address, newCodeID uint64, input []byte, gasLimit uint64) ([]byte, error) {
	result, err := cur.WithTransaction(func() current.TransactionResult {
		root := currentTop(cur)
		inst, err := GetInstance(root, addr)
		if err != nil {
			return current.Rollback(err)
		}
		if inst.Status != StatusInstantiated {
			return current.Rollback(ErrInstanceUpgrading)
		}
		if newCodeID == inst.CodeID {
			return current.Rollback(ErrUpgradeSameCode)
		}
		oldCode, err := GetCode(root, inst.CodeID)
		if err != nil {
			return current.Rollback(err)
		}
		newCode, err := GetCode(root, newCodeID)
		if err != nil {
			return current.Rollback(err)
		}

		confidential, err := instanceConfidentialStore(deps.ConfidentialRootKey, addr, root)
		if err != nil {
			return current.Rollback(err)
		}
		pstore := storage.NewPrefixStore(root, append([]byte("pstore/"), addr.Bytes()...))
		subcallCount := 0

		if _, err := runExport(ctx, deps, oldCode, pstore, confidential, addr, caller, gasLimit, "pre_upgrade", input, 0, &subcallCount); err != nil {
			return current.Rollback(err)
		}

		inst.CodeID = newCodeID
		inst.Status = StatusInstantiated
		if err := instanceStore(root).Insert(addr.Bytes(), inst); err != nil {
			return current.Rollback(err)
		}

		out, err := runExport(ctx, deps, newCode, pstore, confidential, addr, caller, gasLimit, "post_upgrade", input, 0, &subcallCount)
		if err != nil {
			return current.Rollback(err)
		}
		return current.Commit(out)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// currentTop reaches into cur's active transactional frame. current.Context
// does not itself expose its top store outside of With/WithTransaction,
// so currentTop takes it out through one With call, and
// instantiate/call/upgrade then read and write that store directly for
// the rest of the already-pushed transaction frame.
func currentTop(cur *current.Context) storage.Store {
	var top storage.Store
	_ = cur.With(func(store storage.Store) { top = store })
	return top
}
