package evm

import "github.com/ethereum/go-ethereum/common"

// accessList tracks the EIP-2930/2929 warm address and storage-slot set
// for the lifetime of a single top-level call, the same minimal shape
// go-ethereum's core/state.accessList uses.
type accessList struct {
	addresses map[common.Address]int
	slots     []map[common.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{addresses: make(map[common.Address]int)}
}

func (al *accessList) copy() *accessList {
	cp := &accessList{
		addresses: make(map[common.Address]int, len(al.addresses)),
		slots:     make([]map[common.Hash]struct{}, len(al.slots)),
	}
	for addr, idx := range al.addresses {
		cp.addresses[addr] = idx
	}
	for i, slotSet := range al.slots {
		newSlots := make(map[common.Hash]struct{}, len(slotSet))
		for k := range slotSet {
			newSlots[k] = struct{}{}
		}
		cp.slots[i] = newSlots
	}
	return cp
}

func (al *accessList) containsAddress(addr common.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

func (al *accessList) contains(addr common.Address, slot common.Hash) (addrPresent, slotPresent bool) {
	idx, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	if idx < 0 {
		return true, false
	}
	_, slotPresent = al.slots[idx][slot]
	return true, slotPresent
}

func (al *accessList) addAddress(addr common.Address) bool {
	if al.containsAddress(addr) {
		return false
	}
	al.addresses[addr] = -1
	return true
}

func (al *accessList) addSlot(addr common.Address, slot common.Hash) (addrAdded, slotAdded bool) {
	idx, addrPresent := al.addresses[addr]
	if !addrPresent || idx == -1 {
		al.addresses[addr] = len(al.slots)
		al.slots = append(al.slots, map[common.Hash]struct{}{slot: {}})
		return !addrPresent, true
	}
	slotSet := al.slots[idx]
	if _, ok := slotSet[slot]; ok {
		return false, false
	}
	slotSet[slot] = struct{}{}
	return false, true
}

// deleteSlot and deleteAddress support journal reverts; they assume the
// slot/address being removed was the most recently added one, which
// holds because the journal only ever reverts entries in LIFO order.
func (al *accessList) deleteSlot(addr common.Address, slot common.Hash) {
	idx, ok := al.addresses[addr]
	if !ok {
		return
	}
	delete(al.slots[idx], slot)
	if len(al.slots[idx]) == 0 && idx == len(al.slots)-1 {
		al.slots = al.slots[:idx]
	}
}

func (al *accessList) deleteAddress(addr common.Address) {
	delete(al.addresses, addr)
}
