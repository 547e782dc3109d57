package rofl

import (
	"crypto/ed25519"
)

// Register implements spec.md §4.7's Register operation: the six-step
// verification pipeline over an EndorsedCapabilityTEE, upserting the
// registration keyed by (app, RAK) on success. currentEpoch is supplied
// by the embedder's epoch clock (spec.md §1 scopes the consensus layer
// itself out of this package).
func (m *Module) Register(req RegisterRequest, currentEpoch Epoch) error {
	cfg, ok, err := m.Configs.Get(req.App.Bytes())
	if err != nil {
		return err
	}
	if !ok {
		return ErrAppNotFound
	}
	policy := cfg.Policy

	// Step 1: expiration bounds.
	if req.Expiration <= currentEpoch {
		return ErrExpirationOutOfBounds
	}
	if req.Expiration-currentEpoch > policy.MaxExpiration {
		return ErrExpirationOutOfBounds
	}

	// Step 2: RAK signature plus every extra key's co-signature, all
	// over the same SignedPayload.
	if !ed25519.Verify(req.Capability.RAK, req.SignedPayload, req.RAKSignature) {
		return ErrBadSignature
	}
	if len(req.ExtraSignatures) != len(req.ExtraKeys) {
		return ErrBadSignature
	}
	for i, extraKey := range req.ExtraKeys {
		if !ed25519.Verify(extraKey, req.SignedPayload, req.ExtraSignatures[i]) {
			return ErrBadSignature
		}
	}

	// Step 3: quote verification.
	identity, err := m.Quotes.Verify(req.Capability.Quote, policy.Quotes)
	if err != nil {
		return ErrQuoteInvalid
	}

	// Step 4: enclave allow-list.
	if !enclaveAllowed(policy.Enclaves, identity) {
		return ErrEnclaveNotAllowed
	}

	// Step 5: endorsement resolution.
	entityID, err := m.resolveEndorsement(policy.Endorsements, req.Capability.NodeID, currentEpoch)
	if err != nil {
		return err
	}

	// Step 6: upsert keyed by (app, RAK).
	reg := Registration{
		App:        req.App,
		NodeID:     req.Capability.NodeID,
		EntityID:   entityID,
		RAK:        req.Capability.RAK,
		REK:        req.REK,
		Expiration: req.Expiration,
		ExtraKeys:  req.ExtraKeys,
		Metadata:   req.Metadata,
	}
	if err := m.Registrations.Insert(registrationKey(req.App, req.Capability.RAK), reg); err != nil {
		return err
	}

	signerKeys := make([][]byte, 0, 1+len(req.ExtraKeys))
	signerKeys = append(signerKeys, req.Capability.RAK)
	for _, k := range req.ExtraKeys {
		signerKeys = append(signerKeys, k)
	}
	m.endorsers.record(signerKeys, req.Capability.NodeID)

	return nil
}

func enclaveAllowed(allowed []EnclaveIdentity, got EnclaveIdentity) bool {
	for _, e := range allowed {
		if e == got {
			return true
		}
	}
	return false
}

// resolveEndorsement implements spec.md §4.7 step 5: a node absent from
// the consensus registry is acceptable only under EndorsementAny and
// EndorsementNode; EndorsementComputeRole/ObserverRole/Entity must
// resolve to a live registry entry. Returns the endorsing node's entity,
// when known, for the new registration's EntityID.
func (m *Module) resolveEndorsement(rules []EndorsementRule, node ConsensusPK, currentEpoch Epoch) (*ConsensusPK, error) {
	info, present := m.Registry.Node(node)
	live := present && info.Expiration > currentEpoch

	for _, rule := range rules {
		switch rule.Kind {
		case EndorsementAny:
			return entityIfPresent(present, info), nil
		case EndorsementNode:
			if node == rule.ID {
				return entityIfPresent(present, info), nil
			}
		case EndorsementComputeRole:
			if live && info.CurrentRuntimeVersion && info.ComputeRole {
				return entityIfPresent(present, info), nil
			}
		case EndorsementObserverRole:
			if live && info.CurrentRuntimeVersion && info.ObserverRole {
				return entityIfPresent(present, info), nil
			}
		case EndorsementEntity:
			if live && info.EntityID == rule.ID {
				return entityIfPresent(present, info), nil
			}
		}
	}
	return nil, ErrNodeNotAllowed
}

func entityIfPresent(present bool, info NodeInfo) *ConsensusPK {
	if !present {
		return nil
	}
	entity := info.EntityID
	return &entity
}
