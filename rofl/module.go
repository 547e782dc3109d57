package rofl

import (
	"golang.org/x/crypto/curve25519"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
	"github.com/oasisprotocol/oasis-core-rofl/kms"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// registrationKey is the on-disk key for a (app, rak) registration, per
// spec.md §4.7 step 6's "keyed by (app, RAK)".
func registrationKey(app AppId, rak []byte) []byte {
	key := make([]byte, 0, len(app.Bytes())+len(rak))
	key = append(key, app.Bytes()...)
	key = append(key, rak...)
	return key
}

// Module implements the ROFL Core module of spec.md §4.7. Configs and
// Registrations are independent storage.TypedStore instances over
// disjoint key prefixes of the same underlying store, the same layering
// convention contracts.Module uses for its code/instance tables.
type Module struct {
	Configs       *storage.TypedStore[AppConfig]
	Registrations *storage.TypedStore[Registration]

	KMS      *kms.Service
	Registry ConsensusRegistry
	Quotes   QuoteVerifier

	// Transfer moves BaseUnits between accounts, the same collaborator
	// contracts.Module.Transfer is: owned by whatever ledger module
	// this runtime embeds, not reimplemented here.
	Transfer func(from, to types.Address, amount types.Quantity) error

	// StakeAppCreate is the STAKE_APP_CREATE amount Create debits from
	// the creator into the app-stake pool (spec.md §4.7).
	StakeAppCreate types.Quantity

	// StakeDenomination names the BaseUnits denomination StakeAppCreate
	// is charged in.
	StakeDenomination types.Denomination

	// MaxExpirationSweep bounds how many expired registrations a single
	// ExpirationSweep call removes (spec.md §4.7's default 128).
	MaxExpirationSweep int

	// endorsers maps a registered signing key's raw bytes (a RAK or
	// extra key) to the consensus node endorsing it, the reverse index ResolveFeeProxy's non-Register
	// branch needs (spec.md §4.7's "Fee proxy"). Bounded by an LRU
	// cache rather than an unbounded map since, unlike the reference
	// Merkle-backed store, an in-memory index has no eviction for free
	// (SPEC_FULL.md's C8 supplement).
	endorsers *endorserIndex
}

// stakePoolContext domain-separates the app-stake pool address from any
// other module-derived address sharing the ModuleName.
const stakePoolContext = "stake-pool"

// StakePoolAddress is the deterministic account every Create transfers
// StakeAppCreate into, derived from the module name alone so it never
// collides with any app's own AppId (spec.md §4.7).
func StakePoolAddress() types.Address {
	return types.NewModuleAddress(ModuleName, stakePoolContext)
}

// defaultMaxExpirationSweep is spec.md §4.7's "default 128".
const defaultMaxExpirationSweep = 128

// NewModule constructs a Module. endorserIndexSize bounds the LRU
// reverse-endorsement index; 0 selects a reasonable default.
func NewModule(root storage.Store, k *kms.Service, registry ConsensusRegistry, quotes QuoteVerifier, transfer func(from, to types.Address, amount types.Quantity) error, endorserIndexSize int) (*Module, error) {
	idx, err := newEndorserIndex(endorserIndexSize)
	if err != nil {
		return nil, err
	}
	return &Module{
		Configs:            storage.NewTypedStore[AppConfig](storage.NewPrefixStore(root, []byte("cfg/"))),
		Registrations:      storage.NewTypedStore[Registration](storage.NewPrefixStore(root, []byte("reg/"))),
		KMS:                k,
		Registry:           registry,
		Quotes:             quotes,
		Transfer:           transfer,
		StakeAppCreate:     types.NewQuantity(0),
		MaxExpirationSweep: defaultMaxExpirationSweep,
		endorsers:          idx,
	}, nil
}

// appSEKContext domain-separates an app's global SEK derivation from
// every other KMS.Generate caller (e.g. kms's own bootstrap SEK, or
// contracts/abi's per-contract secrets).
const appSEKContext = "rofl-app-sek/v1"

// deriveAppSEK derives app's global Secrets Encryption Key from the
// runtime's root key via the KDF (spec.md §4.7's "derive the app's
// global SEK via the KDF"), returning its X25519 public key (the
// AppConfig.sek clients encrypt secrets to). The raw scalar is used only
// to compute that key and is never returned or persisted.
func (m *Module) deriveAppSEK(app AppId) (X25519PublicKey, error) {
	keyID := append([]byte(appSEKContext), app.Bytes()...)
	derived, err := m.KMS.Generate(keyID, kdf.KindRaw256)
	if err != nil {
		return X25519PublicKey{}, err
	}
	pub, err := curve25519.X25519(derived.Raw, curve25519.Basepoint)
	if err != nil {
		return X25519PublicKey{}, err
	}
	var sek X25519PublicKey
	copy(sek[:], pub)
	return sek, nil
}

// Create implements spec.md §4.7's Create operation: derive the AppId,
// reject duplicates, debit StakeAppCreate from creator into the
// app-stake pool, derive the app's SEK, and persist its AppConfig.
func (m *Module) Create(creator types.Address, round uint64, txIndex uint32, policy AppAuthPolicy, admin *types.Address, metadata map[string]string) (AppId, error) {
	app := NewAppID(creator, round, txIndex)

	if _, ok, err := m.Configs.Get(app.Bytes()); err != nil {
		return AppId{}, err
	} else if ok {
		return AppId{}, ErrAppAlreadyExists
	}

	stake := types.NewBaseUnits(m.StakeAppCreate, m.StakeDenomination)
	if err := m.Transfer(creator, StakePoolAddress(), stake.Amount); err != nil {
		return AppId{}, err
	}

	sek, err := m.deriveAppSEK(app)
	if err != nil {
		return AppId{}, err
	}

	cfg := AppConfig{
		ID:       app,
		Policy:   policy,
		Admin:    admin,
		Stake:    stake,
		Metadata: metadata,
		SEK:      sek,
		Secrets:  make(map[string][]byte),
	}
	if err := m.Configs.Insert(app.Bytes(), cfg); err != nil {
		return AppId{}, err
	}
	return app, nil
}
