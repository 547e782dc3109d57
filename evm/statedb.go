// Package evm adapts go-ethereum's EVM (core/vm) to the Contracts
// Module's store and gas model, per spec.md §4.6's Component 7: an EVM
// contract is just another kind of installed code, sharing the same
// per-instance public/confidential store pair (storage, C1) and the
// same subcall/gas-budget discipline as a WASM guest (contracts, C6),
// rather than a parallel execution path bolted on beside it.
package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
)

// StateDB implements go-ethereum's core/vm.StateDB over a storage.Store,
// the same role the teacher's x/vm/statedb.StateDB plays over a cosmos-sdk
// KVStore: accounts, code and storage slots all live in the instance's
// ordinary public store (so EVM state benefits from the same Merkle
// commitment and OverlayStore rollback as every other contract's state),
// and a companion confidential store is kept beside it; no StateDB
// method reads it.
type StateDB struct {
	public       storage.Store
	confidential storage.Store

	objects      map[common.Address]*stateObject
	objectsDirty map[common.Address]struct{}

	journal    *journal
	refund     uint64
	accessList *accessList

	transientStorage map[common.Address]map[common.Hash]common.Hash

	thash   common.Hash
	txIndex int
	logs    []*types.Log
	logSize uint

	preimages map[common.Hash][]byte
}

// NewStateDB constructs a StateDB over an instance's public and
// confidential stores, per spec.md §4.6's two-store-per-instance model.
func NewStateDB(public, confidential storage.Store) *StateDB {
	return &StateDB{
		public:           public,
		confidential:     confidential,
		objects:          make(map[common.Address]*stateObject),
		objectsDirty:     make(map[common.Address]struct{}),
		journal:          newJournal(),
		accessList:       newAccessList(),
		transientStorage: make(map[common.Address]map[common.Hash]common.Hash),
		preimages:        make(map[common.Hash][]byte),
	}
}

// SetTxContext sets the hash and index of the currently processed
// transaction, used for log indexing, mirroring vm.StateDB's contract.
func (s *StateDB) SetTxContext(thash common.Hash, txIndex int) {
	s.thash = thash
	s.txIndex = txIndex
}

func acctKey(addr common.Address) []byte {
	return append([]byte("acct/"), addr.Bytes()...)
}

func codeKey(hash common.Hash) []byte {
	return append([]byte("code/"), hash.Bytes()...)
}

func slotKey(addr common.Address, key common.Hash) []byte {
	k := append([]byte("slot/"), addr.Bytes()...)
	return append(k, key.Bytes()...)
}

func (s *StateDB) loadCode(hash common.Hash) []byte {
	raw, _ := s.public.Get(codeKey(hash))
	return raw
}

func (s *StateDB) loadState(addr common.Address, key common.Hash) common.Hash {
	raw, ok := s.public.Get(slotKey(addr, key))
	if !ok {
		return common.Hash{}
	}
	return common.BytesToHash(raw)
}

// getObject returns the stateObject for addr, loading it from the
// backing store on first access and caching an empty one if absent
// (mirrors go-ethereum's lazy-creation-on-read behavior for Exist/Empty
// checks that must not themselves mutate state).
func (s *StateDB) getObject(addr common.Address) *stateObject {
	if obj, ok := s.objects[addr]; ok {
		return obj
	}
	var account Account
	if raw, ok := s.public.Get(acctKey(addr)); ok {
		account = decodeAccount(raw)
	}
	obj := newObject(s, addr, account)
	s.objects[addr] = obj
	return obj
}

func (s *StateDB) setObjectDirty(addr common.Address) {
	s.objectsDirty[addr] = struct{}{}
}

func (s *StateDB) CreateAccount(addr common.Address) {
	s.journal.append(createObjectChange{account: &addr})
	obj := newObject(s, addr, Account{})
	obj.newContract = true
	s.objects[addr] = obj
	s.setObjectDirty(addr)
}

// CreateContract marks addr as freshly created in this transaction. Go-
// ethereum distinguishes CreateAccount (EOA-style touch) from
// CreateContract (carrying the storage-clearing semantics of EIP-6780);
// since every account here is freshly materialized from the store on
// first read rather than sharing a live prior instance, there's no
// stale in-memory storage to clear and this is a no-op beyond the flag.
func (s *StateDB) CreateContract(addr common.Address) {
	obj := s.getObject(addr)
	obj.newContract = true
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, _ int) uint256.Int {
	return s.getObject(addr).SubBalance(amount)
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, _ int) uint256.Int {
	return s.getObject(addr).AddBalance(amount)
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return s.getObject(addr).Balance()
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.getObject(addr).Nonce()
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64, _ int) {
	s.getObject(addr).SetNonce(nonce)
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	return common.BytesToHash(s.getObject(addr).CodeHash())
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	return s.getObject(addr).Code()
}

func (s *StateDB) SetCode(addr common.Address, code []byte) {
	hash := common.BytesToHash(crypto.Keccak256(code))
	s.getObject(addr).SetCode(hash, code)
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return s.getObject(addr).CodeSize()
}

func (s *StateDB) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

func (s *StateDB) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	if gas > s.refund {
		panic("evm: refund counter below zero")
	}
	s.refund -= gas
}

func (s *StateDB) GetRefund() uint64 {
	return s.refund
}

func (s *StateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	return s.getObject(addr).GetCommittedState(key)
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.getObject(addr).GetState(key)
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	return s.getObject(addr).SetState(key, value)
}

// GetStorageRoot is unsupported: this runtime commits storage slots as
// ordinary key/value entries in the instance's C1 store rather than
// maintaining a per-account Merkle subtrie, so there is no
// independently addressable per-account storage root to report.
func (s *StateDB) GetStorageRoot(common.Address) common.Hash {
	return common.Hash{}
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if m, ok := s.transientStorage[addr]; ok {
		return m[key]
	}
	return common.Hash{}
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	prev := s.GetTransientState(addr, key)
	if prev == value {
		return
	}
	s.journal.append(transientStorageChange{account: addr, key: key, prevalue: prev})
	s.setTransientState(addr, key, value)
}

func (s *StateDB) setTransientState(addr common.Address, key, value common.Hash) {
	m, ok := s.transientStorage[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		s.transientStorage[addr] = m
	}
	m[key] = value
}

// SelfDestruct and SelfDestruct6780 are no-ops that return the account's
// current balance, per spec.md §9's Open Questions resolution:
// reset_storage/reset_balance stay no-ops. Nothing in this package stops
// bytecode at SELFDESTRUCT (RejectSelfDestruct in evm/subcall.go only
// supplies the error); these exist so StateDB satisfies vm.StateDB, and
// neither mutates the account.
func (s *StateDB) SelfDestruct(addr common.Address) uint256.Int {
	return *s.getObject(addr).Balance()
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	if obj, ok := s.objects[addr]; ok {
		return obj.selfDestructed
	}
	return false
}

func (s *StateDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	return *s.getObject(addr).Balance(), false
}

func (s *StateDB) Exist(addr common.Address) bool {
	_, ok := s.objects[addr]
	if ok {
		return true
	}
	_, ok = s.public.Get(acctKey(addr))
	return ok
}

func (s *StateDB) Empty(addr common.Address) bool {
	return s.getObject(addr).empty()
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	return s.accessList.containsAddress(addr)
}

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	return s.accessList.contains(addr, slot)
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) {
	if s.accessList.addAddress(addr) {
		s.journal.append(accessListAddAccountChange{address: &addr})
	}
}

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	addrAdded, slotAdded := s.accessList.addSlot(addr, slot)
	if addrAdded {
		s.journal.append(accessListAddAccountChange{address: &addr})
	}
	if slotAdded {
		s.journal.append(accessListAddSlotChange{address: &addr, slot: &slot})
	}
}

// Prepare primes the access list for a transaction per EIP-2929/3651:
// sender, destination and precompiles start warm, plus any addresses
// and slots the transaction declared in its EIP-2930 access list.
func (s *StateDB) Prepare(_ params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.accessList = newAccessList()
	s.AddAddressToAccessList(sender)
	s.AddAddressToAccessList(coinbase)
	if dst != nil {
		s.AddAddressToAccessList(*dst)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, el := range txAccesses {
		s.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
}

func (s *StateDB) RevertToSnapshot(id int) {
	s.journal.revertTo(id, s)
}

func (s *StateDB) Snapshot() int {
	return s.journal.snapshot()
}

func (s *StateDB) AddLog(log *types.Log) {
	s.journal.append(addLogChange{})
	log.TxHash = s.thash
	log.TxIndex = uint(s.txIndex)
	log.Index = s.logSize
	s.logs = append(s.logs, log)
	s.logSize++
}

func (s *StateDB) Logs() []*types.Log {
	return s.logs
}

func (s *StateDB) AddPreimage(hash common.Hash, preimage []byte) {
	if _, ok := s.preimages[hash]; ok {
		return
	}
	cp := make([]byte, len(preimage))
	copy(cp, preimage)
	s.preimages[hash] = cp
}

// Witness reports no stateless witness: this runtime has no stateless-
// client mode and never constructs one, so there is nothing for the
// caller to collect.
func (s *StateDB) Witness() *stateless.Witness {
	return nil
}

// Finalize writes every touched account, its code (if newly set) and
// every dirtied storage slot back to the public store, and clears the
// in-memory dirty overlays. It does not itself decide commit vs
// rollback: when it runs inside a storage/current.Context.WithTransaction
// frame, a later rollback of that frame discards these writes exactly as
// it would any other contract's.
func (s *StateDB) Finalize() {
	for addr, obj := range s.objects {
		if obj.selfDestructed {
			continue
		}
		if obj.dirtyCode && obj.code != nil {
			s.public.Insert(codeKey(common.BytesToHash(obj.account.CodeHash)), obj.code)
		}
		for key, value := range obj.dirtyStorage {
			if value == (common.Hash{}) {
				s.public.Remove(slotKey(addr, key))
			} else {
				s.public.Insert(slotKey(addr, key), value.Bytes())
			}
			obj.originStorage[key] = value
		}
		obj.dirtyStorage = make(Storage)
		obj.dirtyCode = false
		obj.account.Balance = obj.balance.Bytes()
		s.public.Insert(acctKey(addr), encodeAccount(obj.account))
	}
}
