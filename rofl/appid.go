package rofl

import (
	"encoding/binary"

	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// appIDContext domain-separates AppId derivation from every other use
// of types.NewAddress, per spec.md §6's "ROFL app ID derivation":
// AppId = domain_separate("rofl-app-id/v1", creator_address, round,
// tx_index), truncated to 20 bytes plus a version tag.
const appIDContext = "rofl-app-id/v1"

// NewAppID derives an AppId from the transaction that created it:
// the creator's address, the block round and the transaction's index
// within it. This is the primary scheme (spec.md §3/§6); distinct
// (round, tx_index) pairs for the same creator always yield distinct
// AppIds, so Create calls in different transactions never collide; two
// Create calls by the same creator in one transaction derive the same
// AppId.
func NewAppID(creator types.Address, round uint64, txIndex uint32) AppId {
	var roundBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], round)
	var txIndexBytes [4]byte
	binary.BigEndian.PutUint32(txIndexBytes[:], txIndex)
	return types.NewAddress(types.AddressV0ModuleContext, appIDContext, creator.Bytes(), roundBytes[:], txIndexBytes[:])
}

// appIDNonceContext domain-separates the alternative (creator, nonce)
// derivation scheme from NewAppID's (creator, round, tx_index) scheme,
// per spec.md §6's "alternative scheme uses (creator_address, nonce)".
const appIDNonceContext = "rofl-app-id-nonce/v1"

// NewAppIDFromNonce derives an AppId from the creator's address and an
// explicit nonce the creator chose, for callers that want a
// deterministic AppId independent of the round/tx_index their Create
// transaction happens to land at (e.g. to reference the app-to-be in
// the same transaction that creates it).
func NewAppIDFromNonce(creator types.Address, nonce uint64) AppId {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return types.NewAddress(types.AddressV0ModuleContext, appIDNonceContext, creator.Bytes(), nonceBytes[:])
}
