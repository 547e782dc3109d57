package abi

import (
	"encoding/binary"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
)

// MaxKeyLength and MaxValueLength bound a single storage operation's
// key/value size, independent of MaxRegionLength, matching spec.md
// §4.5's stated module-parameter defaults (64 B key, 16 KiB value).
const (
	MaxKeyLength   = 64
	MaxValueLength = 16 * 1024
)

// Store-kind selectors for the storage namespace's first argument,
// choosing between an instance's two stores (spec.md §4.5).
const (
	storeKindPublic       = 0
	storeKindConfidential = 1
)

// storageNamespace builds the "storage" import namespace: get, insert,
// remove, scan, next, and iterator close against either of an
// instance's two stores. Every call is bounds-checked through Region
// and charged against cc.Meter before touching the selected store.
//
// Every function returns an i32 status code rather than trapping on a
// recoverable condition (not-found, iterator exhausted) so contract
// authors can handle those cases in guest code instead of every lookup
// miss aborting the call.
func storageNamespace(cc *CallContext) []engine.HostImport {
	return []engine.HostImport{
		{Namespace: "storage", Name: "get", Arity: 3, Results: 1, Func: storageGet(cc)},
		{Namespace: "storage", Name: "insert", Arity: 3, Results: 1, Func: storageInsert(cc)},
		{Namespace: "storage", Name: "remove", Arity: 2, Results: 1, Func: storageRemove(cc)},
		{Namespace: "storage", Name: "scan", Arity: 3, Results: 1, Func: storageScan(cc)},
		{Namespace: "storage", Name: "next", Arity: 3, Results: 1, Func: storageNext(cc)},
		{Namespace: "storage", Name: "close_iterator", Arity: 1, Results: 1, Func: storageCloseIterator(cc)},
	}
}

const (
	statusOK        = 0
	statusNotFound  = 1
	statusExhausted = 1
	statusError     = 2
)

// checkedGetter is implemented by storage.ConfidentialStore: a Get that
// surfaces corruption (tag mismatch) as an error instead of the
// Store.Get interface's panic-on-corruption behavior, so a tampered
// record aborts this one call rather than crashing the host process.
type checkedGetter interface {
	GetChecked(key []byte) (value []byte, ok bool, err error)
}

// checkedIterator is implemented by the confidential store's iterator:
// Key/Value variants that surface corruption (tag mismatch) as an error
// instead of panicking, so a tampered record encountered mid-scan aborts
// this one call rather than crashing the host process.
type checkedIterator interface {
	KeyChecked() ([]byte, error)
	ValueChecked() ([]byte, error)
}

func storeFor(cc *CallContext, kind uint64) (storage.Store, bool) {
	switch kind {
	case storeKindPublic:
		return cc.PublicStore, true
	case storeKindConfidential:
		return cc.ConfidentialStore, true
	default:
		return nil, false
	}
}

// storageGet implements storage.get(store_kind, key_ptr, out_value_ptr) -> status.
func storageGet(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		store, ok := storeFor(cc, args[0])
		if !ok {
			return []uint64{statusError}, nil
		}
		mem := caller.Memory()
		key, _, err := ReadRegion(mem, uint32(args[1]))
		if err != nil {
			return nil, err
		}
		if len(key) > MaxKeyLength {
			return nil, errorsAbiStorageKeyTooLarge()
		}
		if err := cc.ChargeGas(PriceStorageRead.Cost(len(key))); err != nil {
			return nil, err
		}

		var value []byte
		var present bool
		if cg, okGetter := store.(checkedGetter); okGetter {
			value, present, err = cg.GetChecked(key)
			if err != nil {
				return nil, errorsAbiCorrupted(err)
			}
		} else {
			value, present = store.Get(key)
		}
		if !present {
			return []uint64{statusNotFound}, nil
		}
		if err := cc.ChargeGas(PriceStorageRead.PerByte * uint64(len(value))); err != nil {
			return nil, err
		}
		if err := WriteToRegion(mem, uint32(args[2]), value); err != nil {
			return nil, err
		}
		return []uint64{statusOK}, nil
	}
}

// storageInsert implements storage.insert(store_kind, key_ptr, value_ptr) -> status.
func storageInsert(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		store, ok := storeFor(cc, args[0])
		if !ok {
			return []uint64{statusError}, nil
		}
		mem := caller.Memory()
		key, _, err := ReadRegion(mem, uint32(args[1]))
		if err != nil {
			return nil, err
		}
		value, _, err := ReadRegion(mem, uint32(args[2]))
		if err != nil {
			return nil, err
		}
		if len(key) > MaxKeyLength {
			return nil, errorsAbiStorageKeyTooLarge()
		}
		if len(value) > MaxValueLength {
			return nil, errorsAbiStorageValueTooLarge()
		}
		if err := cc.ChargeGas(PriceStorageWrite.Cost(len(key) + len(value))); err != nil {
			return nil, err
		}
		store.Insert(key, value)
		return []uint64{statusOK}, nil
	}
}

// storageRemove implements storage.remove(store_kind, key_ptr) -> status.
func storageRemove(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		store, ok := storeFor(cc, args[0])
		if !ok {
			return []uint64{statusError}, nil
		}
		key, _, err := ReadRegion(caller.Memory(), uint32(args[1]))
		if err != nil {
			return nil, err
		}
		if err := cc.ChargeGas(PriceStorageRemove.Cost(len(key))); err != nil {
			return nil, err
		}
		store.Remove(key)
		return []uint64{statusOK}, nil
	}
}

// storageScan implements storage.scan(store_kind, start_ptr, end_ptr) ->
// iterator handle. A zero-length start or end region means unbounded on
// that side, matching storage.Store.NewIterator's nil-means-unbounded
// convention. Scanning the confidential store ignores the bounds
// (storage.ConfidentialStore.NewIterator always returns the full
// range) and the guest must filter decrypted keys itself.
func storageScan(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		store, ok := storeFor(cc, args[0])
		if !ok {
			return []uint64{statusError}, nil
		}
		mem := caller.Memory()
		start, _, err := ReadRegion(mem, uint32(args[1]))
		if err != nil {
			return nil, err
		}
		end, _, err := ReadRegion(mem, uint32(args[2]))
		if err != nil {
			return nil, err
		}
		if err := cc.ChargeGas(PriceStorageScan.Flat); err != nil {
			return nil, err
		}

		var startKey, endKey []byte
		if len(start) > 0 {
			startKey = start
		}
		if len(end) > 0 {
			endKey = end
		}
		it := store.NewIterator(startKey, endKey)
		it.Rewind()
		handle, err := cc.Iterators.Open(it)
		if err != nil {
			it.Close()
			return nil, err
		}
		return []uint64{handle}, nil
	}
}

// storageNext implements storage.next(handle, out_key_ptr, out_value_ptr)
// -> status (0 = item written, 1 = exhausted).
func storageNext(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		it, ok := cc.Iterators.Get(args[0])
		if !ok {
			return []uint64{statusError}, nil
		}
		if !it.IsValid() {
			return []uint64{statusExhausted}, nil
		}
		var key, value []byte
		var err error
		if ci, okChecked := it.(checkedIterator); okChecked {
			key, err = ci.KeyChecked()
			if err != nil {
				return nil, errorsAbiCorrupted(err)
			}
			value, err = ci.ValueChecked()
			if err != nil {
				return nil, errorsAbiCorrupted(err)
			}
		} else {
			key, value = it.Key(), it.Value()
		}
		if err := cc.ChargeGas(PriceStorageScan.Cost(len(key) + len(value))); err != nil {
			return nil, err
		}
		mem := caller.Memory()
		if err := WriteToRegion(mem, uint32(args[1]), key); err != nil {
			return nil, err
		}
		if err := WriteToRegion(mem, uint32(args[2]), value); err != nil {
			return nil, err
		}
		it.Next()
		return []uint64{statusOK}, nil
	}
}

// storageCloseIterator implements storage.close_iterator(handle) -> status.
func storageCloseIterator(cc *CallContext) func(engine.Caller, []uint64) ([]uint64, error) {
	return func(caller engine.Caller, args []uint64) ([]uint64, error) {
		cc.Iterators.Close(args[0])
		return []uint64{statusOK}, nil
	}
}

// encodeKV is a single-buffer key/value wire encoding (little-endian
// u32 key length, key, value). The handle-based iterator protocol above
// does not use it, and nothing else in this module calls it.
func encodeKV(key, value []byte) []byte {
	out := make([]byte, 4+len(key)+len(value))
	binary.LittleEndian.PutUint32(out, uint32(len(key)))
	copy(out[4:], key)
	copy(out[4+len(key):], value)
	return out
}
