// Package market implements the ROFL Marketplace module of spec.md
// §4.8 (C9): provider/offer publication and the instance reservation
// state machine, built on rofl's AppId/Registration types (a provider's
// scheduler is itself a ROFL app) and reentering evm's subcall bridge
// for EvmContract-denominated payments.
package market

import (
	"time"

	"github.com/google/uuid"

	"github.com/oasisprotocol/oasis-core-rofl/rofl"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// OfferId is a per-provider offer identifier, assigned sequentially by
// CreateProvider/UpdateOffers, per spec.md §3.
type OfferId uint64

// InstanceId is a per-provider instance identifier, assigned
// sequentially by InstanceCreate.
type InstanceId uint64

// CommandId identifies a queued scheduler command. SPEC_FULL.md's C9
// uses a uuid rather than the original's per-instance sequential
// counter, since a uuid lets a provider's off-chain scheduler
// deduplicate retried command deliveries by id alone, without also
// tracking which instance's counter the id belongs to.
type CommandId = uuid.UUID

// Term is the pricing unit an Offer and the Instance that reserves it
// are quoted in, per spec.md §6's glossary entry.
type Term byte

const (
	TermHour  Term = 1
	TermMonth Term = 2
	TermYear  Term = 3
)

// Seconds returns the term's duration, the unit InstanceCreate/TopUp's
// paid_until arithmetic is done in.
func (t Term) Seconds() uint64 {
	switch t {
	case TermHour:
		return 60 * 60
	case TermMonth:
		return 30 * 24 * 60 * 60
	case TermYear:
		return 365 * 24 * 60 * 60
	default:
		return 0
	}
}

// TeeType names the hardware an Offer's Resources require.
type TeeType byte

const (
	TeeTypeSGX TeeType = 1
	TeeTypeTDX TeeType = 2
)

// GpuResource optionally extends Resources with GPU requirements.
type GpuResource struct {
	Model string
	Count uint8
}

// Resources describes what an Offer provisions.
type Resources struct {
	TEE     TeeType
	Memory  uint64
	CPUs    uint16
	Storage uint64
	GPU     *GpuResource
}

// PaymentKind selects Payment's variant.
type PaymentKind byte

const (
	PaymentNative PaymentKind = iota
	PaymentEvmContract
)

// Payment is the tagged union of spec.md §4.8's two payment methods:
// Native (priced per Term in a single Denomination) or EvmContract (an
// EVM contract implementing the rmpPay/rmpRefund/rmpClaim ABI, invoked
// through evm's subcall bridge). Exactly one of the Native*/Evm* field
// groups is meaningful, selected by Kind.
type Payment struct {
	Kind PaymentKind

	// Native fields.
	Denomination types.Denomination
	Terms        map[Term]types.Quantity

	// EvmContract fields.
	EvmAddress types.Address
	EvmData    []byte
}

// PriceFor returns the Native price for term, or ok=false if term is
// unpriced or Payment is not PaymentNative.
func (p Payment) PriceFor(term Term) (types.Quantity, bool) {
	if p.Kind != PaymentNative {
		return types.Quantity{}, false
	}
	price, ok := p.Terms[term]
	return price, ok
}

// Offer is a provider's published resource/price/capacity listing, per
// spec.md §4.8.
//
// Capacity/Reserved is SPEC_FULL.md's supplement over the distilled
// spec's single decrementing counter (original_source's
// rofl-market/src/types.rs's Offer.capacity): keeping the two separate
// lets InstanceCancel/InstanceRemove release a reservation by
// decrementing Reserved, which is idempotent and order-independent,
// instead of having to re-increment a single counter that a concurrent
// InstanceCreate might already have decremented again.
type Offer struct {
	ID        OfferId
	Resources Resources
	Payment   Payment
	Capacity  uint64
	Reserved  uint64
	Metadata  map[string]string
}

// Available reports how many unreserved instances this offer can still
// provision.
func (o Offer) Available() uint64 {
	if o.Reserved >= o.Capacity {
		return 0
	}
	return o.Capacity - o.Reserved
}

// Provider is a stake-backed publisher of Offers, per spec.md §4.8.
type Provider struct {
	Address        types.Address
	Nodes          [][]byte
	SchedulerApp   rofl.AppId
	PaymentAddress types.Address
	Metadata       map[string]string
	Stake          types.BaseUnits

	OffersNextID    OfferId
	OffersCount     uint64
	InstancesNextID InstanceId
	InstancesCount  uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InstanceStatus is the reservation state machine of spec.md §4.8:
// Created -> Accepted -> Cancelled.
type InstanceStatus byte

const (
	InstanceStatusCreated InstanceStatus = iota
	InstanceStatusAccepted
	InstanceStatusCancelled
)

// Deployment names what ROFL app/manifest is (or should be) running on
// an instance.
type Deployment struct {
	AppID        rofl.AppId
	ManifestHash [32]byte
	Metadata     map[string]string
}

// QueuedCommand is one entry of an instance's FIFO scheduler command
// queue (spec.md §4.8's "Command queue").
type QueuedCommand struct {
	ID  CommandId
	Cmd []byte
}

// Instance is a reservation against one of a provider's offers, per
// spec.md §4.8. Payment is copied from the offer at creation time so
// later provider edits to the offer cannot retroactively reprice an
// in-flight instance.
type Instance struct {
	Provider types.Address
	ID       InstanceId
	Offer    OfferId
	Status   InstanceStatus
	Creator  types.Address
	Admin    types.Address
	NodeID   []byte

	Metadata   map[string]string
	Resources  Resources
	Deployment *Deployment

	CreatedAt time.Time
	UpdatedAt time.Time

	// PaidFrom/PaidUntil bound the interval the provider has not yet
	// claimed payment for, per spec.md §4.8's InstanceClaimPayment.
	PaidFrom  time.Time
	PaidUntil time.Time

	// Payment/Term/TermCount are the instance's own saved pricing
	// (spec.md §4.8: "using the instance's own saved pricing, not the
	// current offer pricing"). TermCount accumulates across TopUp calls
	// so ClaimPayment/refund math always has an exact total paid-for
	// duration (TermCount*Term.Seconds()) to prorate against, rather
	// than reconstructing it from PaidUntil-CreatedAt.
	Payment    Payment
	Term       Term
	TermCount  uint64
	RefundData []byte

	Commands       []QueuedCommand
	LastCompleted  *CommandId
}
