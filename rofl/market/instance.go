package market

import (
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// proportional computes amount * elapsed / total using math/big, the
// arbitrary-precision arithmetic types.Quantity itself wraps (types/
// quantity.go), since Quantity has no division operator of its own and
// ClaimPayment's earned-amount formula is inherently a ratio.
func proportional(amount types.Quantity, elapsed, total uint64) types.Quantity {
	if total == 0 {
		return types.NewQuantity(0)
	}
	num := new(big.Int).Mul(amount.BigInt(), new(big.Int).SetUint64(elapsed))
	num.Div(num, new(big.Int).SetUint64(total))
	return types.NewQuantityFromBytes(num.Bytes())
}

// InstanceCreateRequest is InstanceCreate's ingress, per spec.md §4.8.
type InstanceCreateRequest struct {
	Creator    types.Address
	Provider   types.Address
	Offer      OfferId
	Admin      *types.Address
	Deployment *Deployment
	Term       Term
	TermCount  uint64
}

// InstanceCreate implements spec.md §4.8's InstanceCreate: deduct
// term_count*price[term] from the creator (Native) or invoke rmpPay
// (EvmContract), reserve capacity, snapshot the offer's pricing onto
// the instance, and set paid_until = now + term_count*term.seconds.
func (m *Module) InstanceCreate(req InstanceCreateRequest) (InstanceId, error) {
	p, ok, err := m.Providers.Get(providerKey(req.Provider))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrProviderNotFound
	}
	offer, ok, err := m.Offers.Get(offerKey(req.Provider, req.Offer))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrOfferNotFound
	}
	if offer.Available() == 0 {
		return 0, ErrNoCapacity
	}

	admin := req.Creator
	if req.Admin != nil {
		admin = *req.Admin
	}

	id := p.InstancesNextID
	now := m.Now()

	switch offer.Payment.Kind {
	case PaymentNative:
		price, priced := offer.Payment.PriceFor(req.Term)
		if !priced {
			return 0, ErrUnpricedTerm
		}
		total := price.Mul(types.NewQuantity(req.TermCount))
		if err := m.Transfer(req.Creator, req.Provider, total); err != nil {
			return 0, err
		}
	case PaymentEvmContract:
		if err := m.evmPay(req.Creator, offer.Payment, req.Term, req.TermCount); err != nil {
			return 0, err
		}
	}

	offer.Reserved++
	if err := m.Offers.Insert(offerKey(req.Provider, req.Offer), offer); err != nil {
		return 0, err
	}

	p.InstancesNextID++
	p.InstancesCount++
	if err := m.Providers.Insert(providerKey(req.Provider), p); err != nil {
		return 0, err
	}

	paidUntil := now.Add(time.Duration(req.TermCount*req.Term.Seconds()) * time.Second)
	inst := Instance{
		Provider:   req.Provider,
		ID:         id,
		Offer:      req.Offer,
		Status:     InstanceStatusCreated,
		Creator:    req.Creator,
		Admin:      admin,
		Resources:  offer.Resources,
		Deployment: req.Deployment,
		CreatedAt:  now,
		UpdatedAt:  now,
		PaidFrom:   now,
		PaidUntil:  paidUntil,
		Payment:    offer.Payment,
		Term:       req.Term,
		TermCount:  req.TermCount,
	}
	if err := m.Instances.Insert(instanceKey(req.Provider, id), inst); err != nil {
		return 0, err
	}
	return id, nil
}

// InstanceTopUp implements spec.md §4.8's InstanceTopUp: extend
// paid_until using the instance's own saved pricing, never the current
// offer's.
func (m *Module) InstanceTopUp(caller, provider types.Address, id InstanceId, termCount uint64) error {
	inst, ok, err := m.Instances.Get(instanceKey(provider, id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstanceNotFound
	}

	switch inst.Payment.Kind {
	case PaymentNative:
		price, priced := inst.Payment.PriceFor(inst.Term)
		if !priced {
			return ErrUnpricedTerm
		}
		total := price.Mul(types.NewQuantity(termCount))
		if err := m.Transfer(caller, provider, total); err != nil {
			return err
		}
	case PaymentEvmContract:
		if err := m.evmPay(caller, inst.Payment, inst.Term, termCount); err != nil {
			return err
		}
	}

	inst.PaidUntil = inst.PaidUntil.Add(time.Duration(termCount*inst.Term.Seconds()) * time.Second)
	inst.TermCount += termCount
	inst.UpdatedAt = m.Now()
	return m.Instances.Insert(instanceKey(provider, id), inst)
}

// InstanceAccept implements spec.md §4.8's InstanceAccept: binds ids to
// nodeID and moves each to Accepted, callable only by the provider.
func (m *Module) InstanceAccept(caller, provider types.Address, ids []InstanceId, nodeID []byte, metadata map[string]string) error {
	if caller != provider {
		return ErrNotProvider
	}
	now := m.Now()
	for _, id := range ids {
		inst, ok, err := m.Instances.Get(instanceKey(provider, id))
		if err != nil {
			return err
		}
		if !ok {
			return ErrInstanceNotFound
		}
		if inst.Status != InstanceStatusCreated {
			return ErrWrongStatus
		}
		inst.Status = InstanceStatusAccepted
		inst.NodeID = nodeID
		if metadata != nil {
			inst.Metadata = metadata
		}
		inst.UpdatedAt = now
		if err := m.Instances.Insert(instanceKey(provider, id), inst); err != nil {
			return err
		}
	}
	return nil
}

// InstanceClaimPayment implements spec.md §4.8's InstanceClaimPayment:
// advance paid_from to min(now, paid_until), callable only by the
// provider. For EvmContract payments it calls rmpClaim for the claimed
// interval; for Native payments it moves no funds, since InstanceCreate
// and InstanceTopUp already transferred the full price to the provider.
func (m *Module) InstanceClaimPayment(caller, provider types.Address, ids []InstanceId) error {
	if caller != provider {
		return ErrNotProvider
	}
	now := m.Now()
	for _, id := range ids {
		inst, ok, err := m.Instances.Get(instanceKey(provider, id))
		if err != nil {
			return err
		}
		if !ok {
			return ErrInstanceNotFound
		}

		claimUntil := now
		if claimUntil.After(inst.PaidUntil) {
			claimUntil = inst.PaidUntil
		}
		if !claimUntil.After(inst.PaidFrom) {
			continue
		}

		switch inst.Payment.Kind {
		case PaymentNative:
			// Native funds already moved to the provider in full at
			// InstanceCreate/TopUp time; ClaimPayment only advances
			// PaidFrom so a later Cancel/Remove prorates its refund
			// against the right consumed interval.
		case PaymentEvmContract:
			if err := m.evmClaim(inst.provisionedAddress(), inst.Payment, uint64(claimUntil.Unix()), uint64(inst.PaidFrom.Unix()), provider); err != nil {
				return err
			}
		}

		inst.PaidFrom = claimUntil
		inst.UpdatedAt = now
		if err := m.Instances.Insert(instanceKey(provider, id), inst); err != nil {
			return err
		}
	}
	return nil
}

// provisionedAddress is the account an EvmContract payment's rmpRefund/
// rmpClaim calls attribute the instance to; kept as a method purely for
// call-site readability.
func (inst Instance) provisionedAddress() types.Address {
	return inst.Creator
}

// InstanceCancel implements spec.md §4.8's InstanceCancel, callable
// only by the instance admin: full refund if still Created, otherwise
// refund the unconsumed paid-through amount.
func (m *Module) InstanceCancel(caller, provider types.Address, id InstanceId) error {
	inst, ok, err := m.Instances.Get(instanceKey(provider, id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstanceNotFound
	}
	if caller != inst.Admin {
		return ErrNotAdmin
	}

	now := m.Now()
	refundFrom := now
	if inst.Status == InstanceStatusCreated {
		refundFrom = inst.PaidFrom
	}
	if err := m.refundUnconsumed(inst, refundFrom); err != nil {
		return err
	}
	m.releaseCapacity(provider, inst.Offer)

	inst.Status = InstanceStatusCancelled
	inst.UpdatedAt = now
	return m.Instances.Insert(instanceKey(provider, id), inst)
}

// InstanceRemove implements spec.md §4.8's InstanceRemove, callable
// only by the provider: on an Accepted instance, claim earned, refund
// the remainder, then delete.
func (m *Module) InstanceRemove(caller, provider types.Address, id InstanceId) error {
	if caller != provider {
		return ErrNotProvider
	}
	inst, ok, err := m.Instances.Get(instanceKey(provider, id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstanceNotFound
	}

	if inst.Status == InstanceStatusAccepted {
		if err := m.InstanceClaimPayment(provider, provider, []InstanceId{id}); err != nil {
			return err
		}
		inst, _, err = m.Instances.Get(instanceKey(provider, id))
		if err != nil {
			return err
		}
	}
	now := m.Now()
	if err := m.refundUnconsumed(inst, now); err != nil {
		return err
	}
	if inst.Status != InstanceStatusCancelled {
		m.releaseCapacity(provider, inst.Offer)
	}
	m.Instances.Remove(instanceKey(provider, id))
	return nil
}

// refundUnconsumed refunds the creator for the [now, paid_until)
// interval not yet consumed, per spec.md §4.8's cancel/remove refund
// rule.
func (m *Module) refundUnconsumed(inst Instance, now time.Time) error {
	if !inst.PaidUntil.After(now) {
		return nil
	}
	elapsed := uint64(inst.PaidUntil.Sub(now).Seconds())
	total := inst.Term.Seconds() * inst.TermCount
	switch inst.Payment.Kind {
	case PaymentNative:
		price, _ := inst.Payment.PriceFor(inst.Term)
		refund := proportional(price.Mul(types.NewQuantity(inst.TermCount)), elapsed, total)
		if refund.IsZero() {
			return nil
		}
		return m.Transfer(inst.Provider, inst.Creator, refund)
	case PaymentEvmContract:
		return m.evmRefund(inst.provisionedAddress(), inst.Payment, inst.Creator)
	}
	return nil
}

// releaseCapacity decrements Reserved idempotently, the supplemented
// Capacity/Reserved release path SPEC_FULL.md's C9 calls out as missing
// from the distilled spec's single-counter model.
func (m *Module) releaseCapacity(provider types.Address, offerID OfferId) {
	offer, ok, err := m.Offers.Get(offerKey(provider, offerID))
	if err != nil || !ok {
		return
	}
	if offer.Reserved > 0 {
		offer.Reserved--
	}
	_ = m.Offers.Insert(offerKey(provider, offerID), offer)
}

// InstanceExecuteCmds implements spec.md §4.8's command queue: append
// opaque scheduler commands to id's FIFO queue.
func (m *Module) InstanceExecuteCmds(caller, provider types.Address, id InstanceId, cmds [][]byte) error {
	inst, ok, err := m.Instances.Get(instanceKey(provider, id))
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstanceNotFound
	}
	if caller != inst.Admin && caller != provider {
		return ErrNotAdmin
	}
	for _, cmd := range cmds {
		inst.Commands = append(inst.Commands, QueuedCommand{ID: uuid.New(), Cmd: cmd})
	}
	inst.UpdatedAt = m.Now()
	return m.Instances.Insert(instanceKey(provider, id), inst)
}

// InstanceUpdate implements spec.md §4.8's provider-side instance
// update/command-acknowledgement: drop every queued command up to and
// including LastCompleted, and apply the optional node id/deployment/
// metadata changes, callable only by the provider.
type InstanceUpdateEntry struct {
	ID            InstanceId
	NodeID        []byte
	Deployment    *Deployment
	ClearDeploy   bool
	Metadata      map[string]string
	LastCompleted *CommandId
}

func (m *Module) InstanceUpdate(caller, provider types.Address, updates []InstanceUpdateEntry) error {
	if caller != provider {
		return ErrNotProvider
	}
	now := m.Now()
	for _, u := range updates {
		inst, ok, err := m.Instances.Get(instanceKey(provider, u.ID))
		if err != nil {
			return err
		}
		if !ok {
			return ErrInstanceNotFound
		}
		if u.NodeID != nil {
			inst.NodeID = u.NodeID
		}
		if u.ClearDeploy {
			inst.Deployment = nil
		} else if u.Deployment != nil {
			inst.Deployment = u.Deployment
		}
		if u.Metadata != nil {
			inst.Metadata = u.Metadata
		}
		if u.LastCompleted != nil {
			inst.ackCommands(*u.LastCompleted)
			inst.LastCompleted = u.LastCompleted
		}
		inst.UpdatedAt = now
		if err := m.Instances.Insert(instanceKey(provider, u.ID), inst); err != nil {
			return err
		}
	}
	return nil
}

// ackCommands drops every queued command up to and including id,
// assuming FIFO delivery order (spec.md §4.8's "Command queue").
func (inst *Instance) ackCommands(id CommandId) {
	for i, c := range inst.Commands {
		if c.ID == id {
			inst.Commands = inst.Commands[i+1:]
			return
		}
	}
}
