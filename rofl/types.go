package rofl

import (
	"crypto/ed25519"

	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// Epoch is the consensus epoch clock ROFL registrations expire against,
// per spec.md §4.7.
type Epoch uint64

// AppId is the 21-byte ROFL application identifier of spec.md §3. It is
// a types.Address (AddressV0ModuleContext) rather than a distinct type:
// apps, like contract instances, are principals in the same address
// space as accounts, so an AppId can be the "to" of a transfer without
// a conversion step.
type AppId = types.Address

// ConsensusPK is a node or entity identity key in the consensus
// registry external to this package (spec.md §1's "the consensus layer
// itself" non-goal): 32 raw bytes, opaque beyond equality.
type ConsensusPK [32]byte

// X25519PublicKey is an X25519 recipient key: a Registration's REK or
// an AppConfig's SEK.
type X25519PublicKey [32]byte

// EndorsementKind selects how an AppAuthPolicy's endorsement rule is
// resolved against the consensus registry, per spec.md §4.7 step 5.
type EndorsementKind int

const (
	// EndorsementAny accepts any endorsing node unconditionally, even
	// one absent from the consensus registry.
	EndorsementAny EndorsementKind = iota
	// EndorsementComputeRole requires the endorsing node to be a live
	// registry entry holding the compute role.
	EndorsementComputeRole
	// EndorsementObserverRole requires the endorsing node to be a live
	// registry entry holding the observer role.
	EndorsementObserverRole
	// EndorsementEntity requires the endorsing node's entity to match ID.
	EndorsementEntity
	// EndorsementNode requires the endorsing node's id to match ID,
	// even if the node is absent from the registry.
	EndorsementNode
)

// EndorsementRule is one entry of an AppAuthPolicy's endorsement list.
// ID is populated only for EndorsementEntity/EndorsementNode.
type EndorsementRule struct {
	Kind EndorsementKind
	ID   ConsensusPK
}

// FeePolicy selects who pays for a registered instance's transactions,
// per spec.md §4.7's "Fee proxy".
type FeePolicy int

const (
	// FeePolicyInstancePays means the transaction's own signer pays;
	// this module never proxies fees for the app.
	FeePolicyInstancePays FeePolicy = iota
	// FeePolicyEndorsingNodePays means the endorsing node of the
	// relevant registration pays, resolved per ResolveFeeProxy.
	FeePolicyEndorsingNodePays
)

// EnclaveIdentity is an MRENCLAVE/MRSIGNER pair identifying a specific
// enclave measurement, the unit an AppAuthPolicy's enclave allow-list
// is expressed in.
type EnclaveIdentity struct {
	MREnclave [32]byte
	MRSigner  [32]byte
}

// QuotePolicy carries the quote-verification parameters an
// AppAuthPolicy names (spec.md §4.7 step 3): TCB requirements, allowed
// signer sets and whatever else a given TEE quote format needs. Since
// defining a new quote format is explicitly out of scope (spec.md §1),
// this is an opaque blob a QuoteVerifier implementation alone knows how
// to interpret; this package never looks inside it.
type QuotePolicy struct {
	Raw []byte
}

// AppAuthPolicy controls who may Create/Register against an app, per
// spec.md §3's data model entry.
type AppAuthPolicy struct {
	Quotes        QuotePolicy
	Enclaves      []EnclaveIdentity
	Endorsements  []EndorsementRule
	MaxExpiration Epoch
	Fee           FeePolicy
}

// AppConfig is the persisted state of a created app, per spec.md §3.
type AppConfig struct {
	ID       AppId
	Policy   AppAuthPolicy
	Admin    *types.Address
	Stake    types.BaseUnits
	Metadata map[string]string
	SEK      X25519PublicKey
	Secrets  map[string][]byte
}

// Registration is a TEE instance's live endorsement of an app, per
// spec.md §3. It is keyed on disk by (App, RAK): an app may have many
// simultaneously-registered instances.
type Registration struct {
	App       AppId
	NodeID    ConsensusPK
	EntityID  *ConsensusPK
	RAK       ed25519.PublicKey
	REK       X25519PublicKey
	Expiration Epoch
	ExtraKeys []ed25519.PublicKey
	Metadata  map[string]string
}

// EndorsedCapabilityTEE is the attestation evidence a Register request
// carries: a raw quote (opaque, see QuotePolicy) over the enclave that
// holds RAK, endorsed by NodeID. Per spec.md §1, this package treats
// the quote as an opaque blob handed to QuoteVerifier rather than
// parsing any TEE-specific format itself.
type EndorsedCapabilityTEE struct {
	Quote  []byte
	RAK    ed25519.PublicKey
	NodeID ConsensusPK
}

// RegisterRequest is the ingress of the Register operation (spec.md
// §4.7): the capability plus the registration fields it endorses, and
// the signatures over SignedPayload proving RAK and every ExtraKey
// authorized this exact registration (step 2 of the pipeline).
type RegisterRequest struct {
	App        AppId
	Capability EndorsedCapabilityTEE
	REK        X25519PublicKey
	ExtraKeys  []ed25519.PublicKey
	Expiration Epoch
	Metadata   map[string]string

	// SignedPayload is the canonical byte encoding of the fields above
	// that RAKSignature and ExtraSignatures (parallel to ExtraKeys)
	// must each independently verify against.
	SignedPayload   []byte
	RAKSignature    []byte
	ExtraSignatures [][]byte
}
