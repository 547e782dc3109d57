package rofl

// NodeInfo is the subset of a consensus registry node descriptor this
// module's endorsement resolution needs (spec.md §4.7 step 5): its
// entity, whether it is current, and which roles it holds for this
// runtime.
type NodeInfo struct {
	EntityID ConsensusPK
	// Expiration is the node descriptor's own registry expiration, the
	// "not expired" half of the ComputeRole/ObserverRole check.
	Expiration Epoch
	// CurrentRuntimeVersion is true when the node is registered for
	// this runtime at its current version, the other half of that
	// check.
	CurrentRuntimeVersion bool
	ComputeRole           bool
	ObserverRole          bool
}

// ConsensusRegistry is the consensus layer's node registry, external to
// this runtime (spec.md §1: "the consensus layer itself" is a
// deliberately out-of-scope collaborator). Register calls it to resolve
// endorsement rules; this package never maintains its own copy of
// registry state.
type ConsensusRegistry interface {
	// Node looks up a node by its consensus identity, reporting
	// ok=false if it is not present in the registry at all (distinct
	// from being present-but-expired, which NodeInfo.Expiration
	// conveys instead).
	Node(id ConsensusPK) (info NodeInfo, ok bool)
}

// QuoteVerifier checks a TEE attestation quote against a policy,
// returning the enclave identity it attests to. Per spec.md §1's
// non-goal of "defining a new TEE quote format", this package never
// parses quote bytes itself; an embedder supplies the verifier that
// understands whatever concrete quote format (e.g. Intel SGX DCAP) the
// deployment uses.
type QuoteVerifier interface {
	Verify(quote []byte, policy QuotePolicy) (EnclaveIdentity, error)
}

// CurrentEpoch is supplied by the embedder's block/epoch clock, the
// same deliberately-external collaborator relationship as
// ConsensusRegistry: this module is a pure function of whatever epoch
// it is told the chain is at, per spec.md §1's scoping of the
// consensus layer out of this package.
type EpochSource interface {
	CurrentEpoch() Epoch
}
