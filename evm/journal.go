package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journalEntry is one undoable mutation recorded against a StateDB,
// mirroring go-ethereum's core/state journal: every balance, nonce,
// code and storage write pushes an entry here before it takes effect so
// RevertToSnapshot can undo exactly the mutations made since a given
// Snapshot index.
type journalEntry interface {
	revert(*StateDB)
	dirtied() *common.Address
}

// journal is an ordered, append-only log of journalEntry, replayed
// backwards by revert.
type journal struct {
	entries []journalEntry
	dirties map[common.Address]int
}

func newJournal() *journal {
	return &journal{dirties: make(map[common.Address]int)}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
	if addr := entry.dirtied(); addr != nil {
		j.dirties[*addr]++
	}
}

// snapshot returns the current length, an opaque revert point.
func (j *journal) snapshot() int {
	return len(j.entries)
}

// revertTo undoes every entry appended since snapshot id.
func (j *journal) revertTo(id int, s *StateDB) {
	for i := len(j.entries) - 1; i >= id; i-- {
		j.entries[i].revert(s)
		if addr := j.entries[i].dirtied(); addr != nil {
			if j.dirties[*addr]--; j.dirties[*addr] == 0 {
				delete(j.dirties, *addr)
			}
		}
	}
	j.entries = j.entries[:id]
}

type (
	createObjectChange struct {
		account *common.Address
	}
	balanceChange struct {
		account *common.Address
		prev    *uint256.Int
	}
	nonceChange struct {
		account *common.Address
		prev    uint64
	}
	codeChange struct {
		account  *common.Address
		prevhash []byte
		prevcode []byte
	}
	storageChange struct {
		account  *common.Address
		key      common.Hash
		prevalue common.Hash
	}
	selfDestructChange struct {
		account *common.Address
		prev    bool // whether account was already self-destructed
	}
	refundChange struct {
		prev uint64
	}
	addLogChange struct{}
	touchChange  struct {
		account *common.Address
	}
	accessListAddAccountChange struct {
		address *common.Address
	}
	accessListAddSlotChange struct {
		address *common.Address
		slot    *common.Hash
	}
	transientStorageChange struct {
		account  common.Address
		key, prevalue common.Hash
	}
)

func (ch createObjectChange) revert(s *StateDB) {
	delete(s.objects, *ch.account)
}
func (ch createObjectChange) dirtied() *common.Address { return ch.account }

func (ch balanceChange) revert(s *StateDB) {
	s.getObject(*ch.account).setBalance(ch.prev)
}
func (ch balanceChange) dirtied() *common.Address { return ch.account }

func (ch nonceChange) revert(s *StateDB) {
	s.getObject(*ch.account).setNonce(ch.prev)
}
func (ch nonceChange) dirtied() *common.Address { return ch.account }

func (ch codeChange) revert(s *StateDB) {
	s.getObject(*ch.account).setCode(common.BytesToHash(ch.prevhash), ch.prevcode)
}
func (ch codeChange) dirtied() *common.Address { return ch.account }

func (ch storageChange) revert(s *StateDB) {
	s.getObject(*ch.account).setState(ch.key, ch.prevalue)
}
func (ch storageChange) dirtied() *common.Address { return ch.account }

func (ch selfDestructChange) revert(s *StateDB) {
	s.getObject(*ch.account).selfDestructed = ch.prev
}
func (ch selfDestructChange) dirtied() *common.Address { return ch.account }

func (ch refundChange) revert(s *StateDB) {
	s.refund = ch.prev
}
func (ch refundChange) dirtied() *common.Address { return nil }

func (ch addLogChange) revert(s *StateDB) {
	s.logs = s.logs[:len(s.logs)-1]
}
func (ch addLogChange) dirtied() *common.Address { return nil }

func (ch touchChange) revert(*StateDB)              {}
func (ch touchChange) dirtied() *common.Address     { return ch.account }

func (ch accessListAddAccountChange) revert(s *StateDB) {
	s.accessList.deleteAddress(*ch.address)
}
func (ch accessListAddAccountChange) dirtied() *common.Address { return nil }

func (ch accessListAddSlotChange) revert(s *StateDB) {
	s.accessList.deleteSlot(*ch.address, *ch.slot)
}
func (ch accessListAddSlotChange) dirtied() *common.Address { return nil }

func (ch transientStorageChange) revert(s *StateDB) {
	s.setTransientState(ch.account, ch.key, ch.prevalue)
}
func (ch transientStorageChange) dirtied() *common.Address { return nil }
