package rofl

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultEndorserIndexSize bounds the reverse-endorsement index when
// the embedder does not specify one (SPEC_FULL.md's C8 supplement).
const defaultEndorserIndexSize = 4096

// endorserIndex maps a registered signing key's raw bytes (a RAK or
// extra key) to the consensus node endorsing it, the secondary index
// ResolveFeeProxy's non-Register branch needs to charge "the endorsing
// node of the registration that endorses the transaction's signer
// public key" (spec.md §4.7) without scanning every registration.
type endorserIndex struct {
	cache *lru.Cache[string, ConsensusPK]
}

func newEndorserIndex(size int) (*endorserIndex, error) {
	if size <= 0 {
		size = defaultEndorserIndexSize
	}
	c, err := lru.New[string, ConsensusPK](size)
	if err != nil {
		return nil, err
	}
	return &endorserIndex{cache: c}, nil
}

func (idx *endorserIndex) record(signerKeys [][]byte, node ConsensusPK) {
	for _, k := range signerKeys {
		idx.cache.Add(string(k), node)
	}
}

func (idx *endorserIndex) lookup(signerKey []byte) (ConsensusPK, bool) {
	return idx.cache.Get(string(signerKey))
}

// ResolveFeeProxy implements spec.md §4.7's "Fee proxy": given the
// app a transaction's fee descriptor names as proxy, and whether the
// transaction is itself a Register call for that app, resolve who pays.
//
// isRegisterCall selects between the two EndorsingNodePays branches:
// a rofl.Register transaction charges the node endorsing the
// capability it is registering (endorsingNode, already verified by the
// caller before this is invoked), while any other transaction charges
// the node found by reverse-indexing signerKey (the transaction's own
// signer public key) against the endorsers index built up by prior
// Register calls.
func (m *Module) ResolveFeeProxy(app AppId, isRegisterCall bool, endorsingNode ConsensusPK, signerKey []byte) (ConsensusPK, error) {
	cfg, ok, err := m.Configs.Get(app.Bytes())
	if err != nil {
		return ConsensusPK{}, err
	}
	if !ok {
		return ConsensusPK{}, ErrAppNotFound
	}
	if cfg.Policy.Fee != FeePolicyEndorsingNodePays {
		return ConsensusPK{}, ErrNoFeeProxy
	}

	if isRegisterCall {
		return endorsingNode, nil
	}

	node, found := m.endorsers.lookup(signerKey)
	if !found {
		return ConsensusPK{}, ErrNoFeeProxy
	}
	return node, nil
}
