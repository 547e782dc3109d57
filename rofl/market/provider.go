package market

import (
	"github.com/oasisprotocol/oasis-core-rofl/rofl"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// ValidateResources implements spec.md §4.8's Offer.validate: a memory
// floor, a CPU floor, and a bound on the optional GPU model string.
func ValidateResources(r Resources) error {
	if r.Memory < 16 {
		return ErrBadResourceDescriptor
	}
	if r.CPUs < 1 {
		return ErrBadResourceDescriptor
	}
	if r.GPU != nil && len(r.GPU.Model) > 64 {
		return ErrBadResourceDescriptor
	}
	return nil
}

// ProviderCreateRequest is CreateProvider's ingress, mirroring
// original_source's ProviderCreate.
type ProviderCreateRequest struct {
	Address        types.Address
	Nodes          [][]byte
	SchedulerApp   rofl.AppId
	PaymentAddress types.Address
	Offers         []Offer
	Metadata       map[string]string
}

// CreateProvider implements spec.md §4.8's provider publication: debits
// StakeProviderCreate from the provider's own account and persists the
// Provider plus its initial Offers.
func (m *Module) CreateProvider(req ProviderCreateRequest) error {
	if _, ok, err := m.Providers.Get(providerKey(req.Address)); err != nil {
		return err
	} else if ok {
		return ErrProviderExists
	}
	for _, o := range req.Offers {
		if err := ValidateResources(o.Resources); err != nil {
			return err
		}
	}

	if !m.StakeProviderCreate.Amount.IsZero() {
		if err := m.Transfer(req.Address, StakePoolAddress(), m.StakeProviderCreate.Amount); err != nil {
			return err
		}
	}

	now := m.Now()
	p := Provider{
		Address:        req.Address,
		Nodes:          req.Nodes,
		SchedulerApp:   req.SchedulerApp,
		PaymentAddress: req.PaymentAddress,
		Metadata:       req.Metadata,
		Stake:          m.StakeProviderCreate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range req.Offers {
		o := req.Offers[i]
		o.ID = p.OffersNextID
		p.OffersNextID++
		p.OffersCount++
		if err := m.Offers.Insert(offerKey(req.Address, o.ID), o); err != nil {
			return err
		}
	}
	return m.Providers.Insert(providerKey(req.Address), p)
}

// stakePoolContext mirrors rofl.StakePoolAddress's module-derived pool
// convention for the marketplace's own provider stake.
const stakePoolContext = "market-stake-pool"

// StakePoolAddress is the deterministic account CreateProvider debits
// StakeProviderCreate into.
func StakePoolAddress() types.Address {
	return types.NewModuleAddress(ModuleName, stakePoolContext)
}

// UpdateProvider implements spec.md §4.8's provider metadata update,
// callable only by the provider itself.
func (m *Module) UpdateProvider(caller types.Address, provider types.Address, nodes [][]byte, schedulerApp rofl.AppId, paymentAddress types.Address, metadata map[string]string) error {
	p, ok, err := m.Providers.Get(providerKey(provider))
	if err != nil {
		return err
	}
	if !ok {
		return ErrProviderNotFound
	}
	if caller != provider {
		return ErrNotProvider
	}
	p.Nodes = nodes
	p.SchedulerApp = schedulerApp
	p.PaymentAddress = paymentAddress
	p.Metadata = metadata
	p.UpdatedAt = m.Now()
	return m.Providers.Insert(providerKey(provider), p)
}

// UpdateOffers implements spec.md §4.8's AddOffers/UpdateOffers/
// RemoveOffers, batched as the original's single ProviderUpdateOffers.
func (m *Module) UpdateOffers(caller, provider types.Address, add, update []Offer, remove []OfferId) error {
	p, ok, err := m.Providers.Get(providerKey(provider))
	if err != nil {
		return err
	}
	if !ok {
		return ErrProviderNotFound
	}
	if caller != provider {
		return ErrNotProvider
	}

	for _, o := range add {
		if err := ValidateResources(o.Resources); err != nil {
			return err
		}
		o.ID = p.OffersNextID
		p.OffersNextID++
		p.OffersCount++
		if err := m.Offers.Insert(offerKey(provider, o.ID), o); err != nil {
			return err
		}
	}
	for _, o := range update {
		if err := ValidateResources(o.Resources); err != nil {
			return err
		}
		existing, ok, err := m.Offers.Get(offerKey(provider, o.ID))
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferNotFound
		}
		// Preserve live Reserved count: a capacity/pricing edit must not
		// silently clear in-flight reservations against this offer.
		o.Reserved = existing.Reserved
		if err := m.Offers.Insert(offerKey(provider, o.ID), o); err != nil {
			return err
		}
	}
	for _, id := range remove {
		m.Offers.Remove(offerKey(provider, id))
		p.OffersCount--
	}

	p.UpdatedAt = m.Now()
	return m.Providers.Insert(providerKey(provider), p)
}

// RemoveProvider implements spec.md §4.8's provider removal, refunding
// its stake.
func (m *Module) RemoveProvider(caller, provider types.Address) error {
	p, ok, err := m.Providers.Get(providerKey(provider))
	if err != nil {
		return err
	}
	if !ok {
		return ErrProviderNotFound
	}
	if caller != provider {
		return ErrNotProvider
	}
	if !p.Stake.Amount.IsZero() {
		if err := m.Transfer(StakePoolAddress(), provider, p.Stake.Amount); err != nil {
			return err
		}
	}
	m.Providers.Remove(providerKey(provider))
	return nil
}
