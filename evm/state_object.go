package evm

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// emptyCodeHash is the keccak256 hash of nil, the same sentinel
// go-ethereum and the teacher's x/vm/types.EmptyCodeHash use to mean
// "no code".
var emptyCodeHash = crypto.Keccak256(nil)

func isEmptyCodeHash(h []byte) bool {
	return bytes.Equal(h, emptyCodeHash)
}

// Account is the persisted representation of one EVM account, encoded by
// encodeAccount (evm/account_codec.go) and stored directly in the public
// store rather than as the teacher's auth-module row. Balance is kept in the ledger's native types.Quantity on disk and
// converted to uint256 only inside stateObject, since uint256 is a fixed
// 256-bit EVM stack word and not the representation the rest of this
// runtime's balance module uses.
type Account struct {
	Nonce    uint64
	Balance  []byte // big-endian, types.Quantity.Bytes()
	CodeHash []byte
}

// Storage is an in-memory cache/buffer of one account's contract
// storage slots, identical in shape to the teacher's statedb.Storage.
type Storage map[common.Hash]common.Hash

func (s Storage) Copy() Storage {
	cpy := make(Storage, len(s))
	for key, value := range s {
		cpy[key] = value
	}
	return cpy
}

// SortedKeys sorts the keys for deterministic iteration, e.g. when
// computing a storage root.
func (s Storage) SortedKeys() []common.Hash {
	keys := make([]common.Hash, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0
	})
	return keys
}

// stateObject is the in-memory, journaled state of one account,
// adapted from the teacher's x/vm/statedb.stateObject: the Keeper
// reads/writes (s.db.keeper.GetCode/GetState) become direct calls
// against the StateDB's own storage.Store-backed account/code/slot
// stores.
type stateObject struct {
	db *StateDB

	address common.Address
	account Account
	balance *uint256.Int
	code    []byte

	originStorage Storage
	dirtyStorage  Storage

	dirtyCode      bool
	selfDestructed bool
	newContract    bool
}

func newObject(db *StateDB, address common.Address, account Account) *stateObject {
	balance := new(uint256.Int)
	if len(account.Balance) > 0 {
		balance.SetBytes(account.Balance)
	}
	if account.CodeHash == nil {
		account.CodeHash = emptyCodeHash
	}
	return &stateObject{
		db:            db,
		address:       address,
		account:       account,
		balance:       balance,
		originStorage: make(Storage),
		dirtyStorage:  make(Storage),
	}
}

func (s *stateObject) empty() bool {
	return s.account.Nonce == 0 && s.balance.IsZero() && isEmptyCodeHash(s.account.CodeHash)
}

func (s *stateObject) markSelfDestructed() {
	s.selfDestructed = true
}

func (s *stateObject) AddBalance(amount *uint256.Int) uint256.Int {
	if amount.IsZero() {
		return *s.Balance()
	}
	return s.SetBalance(new(uint256.Int).Add(s.Balance(), amount))
}

func (s *stateObject) SubBalance(amount *uint256.Int) uint256.Int {
	if amount.IsZero() {
		return *s.Balance()
	}
	return s.SetBalance(new(uint256.Int).Sub(s.Balance(), amount))
}

func (s *stateObject) SetBalance(amount *uint256.Int) uint256.Int {
	prev := *s.balance
	s.db.journal.append(balanceChange{account: &s.address, prev: new(uint256.Int).Set(s.balance)})
	s.setBalance(amount)
	return prev
}

func (s *stateObject) setBalance(amount *uint256.Int) {
	s.balance = amount
}

func (s *stateObject) Address() common.Address {
	return s.address
}

func (s *stateObject) Code() []byte {
	if s.code != nil {
		return s.code
	}
	if isEmptyCodeHash(s.CodeHash()) {
		return nil
	}
	s.code = s.db.loadCode(common.BytesToHash(s.CodeHash()))
	return s.code
}

func (s *stateObject) CodeSize() int {
	return len(s.Code())
}

func (s *stateObject) SetCode(codeHash common.Hash, code []byte) {
	prevcode := s.Code()
	s.db.journal.append(codeChange{account: &s.address, prevhash: s.CodeHash(), prevcode: prevcode})
	s.setCode(codeHash, code)
}

func (s *stateObject) setCode(codeHash common.Hash, code []byte) {
	s.code = code
	s.account.CodeHash = codeHash[:]
	s.dirtyCode = true
}

func (s *stateObject) SetNonce(nonce uint64) {
	s.db.journal.append(nonceChange{account: &s.address, prev: s.account.Nonce})
	s.setNonce(nonce)
}

func (s *stateObject) setNonce(nonce uint64) {
	s.account.Nonce = nonce
}

func (s *stateObject) CodeHash() []byte {
	return s.account.CodeHash
}

func (s *stateObject) Balance() *uint256.Int {
	return s.balance
}

func (s *stateObject) Nonce() uint64 {
	return s.account.Nonce
}

// GetCommittedState queries storage as last committed, bypassing the
// in-flight dirty overlay.
func (s *stateObject) GetCommittedState(key common.Hash) common.Hash {
	if value, cached := s.originStorage[key]; cached {
		return value
	}
	value := s.db.loadState(s.Address(), key)
	s.originStorage[key] = value
	return value
}

func (s *stateObject) GetState(key common.Hash) common.Hash {
	if value, dirty := s.dirtyStorage[key]; dirty {
		return value
	}
	return s.GetCommittedState(key)
}

func (s *stateObject) SetState(key, value common.Hash) common.Hash {
	prev := s.GetState(key)
	if prev == value {
		return prev
	}
	s.db.journal.append(storageChange{account: &s.address, key: key, prevalue: prev})
	s.setState(key, value)
	return prev
}

func (s *stateObject) setState(key, value common.Hash) {
	s.dirtyStorage[key] = value
}
