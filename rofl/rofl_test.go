package rofl_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
	"github.com/oasisprotocol/oasis-core-rofl/kms"
	"github.com/oasisprotocol/oasis-core-rofl/rofl"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

type fakeKeyManager struct {
	mu sync.Mutex
}

func (f *fakeKeyManager) GetOrCreateKeys(_ context.Context, keyPairID []byte) (kms.KeyPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kp kms.KeyPair
	_, _ = rand.Read(kp.StateKey[:])
	_, _ = rand.Read(kp.InputKeyPair.PK[:])
	_, _ = rand.Read(kp.InputKeyPair.SK[:])
	return kp, nil
}

func newReadyKMS(t *testing.T) *kms.Service {
	t.Helper()
	svc := kms.NewService(&fakeKeyManager{}, log.NewNopLogger())
	svc.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitReady(ctx))
	return svc
}

type fakeRegistry struct {
	nodes map[rofl.ConsensusPK]rofl.NodeInfo
}

func (r *fakeRegistry) Node(id rofl.ConsensusPK) (rofl.NodeInfo, bool) {
	info, ok := r.nodes[id]
	return info, ok
}

type alwaysOKQuotes struct {
	identity rofl.EnclaveIdentity
}

func (q alwaysOKQuotes) Verify(_ []byte, _ rofl.QuotePolicy) (rofl.EnclaveIdentity, error) {
	return q.identity, nil
}

func noopTransfer(from, to types.Address, amount types.Quantity) error { return nil }

func newTestModule(t *testing.T, registry rofl.ConsensusRegistry, quotes rofl.QuoteVerifier) *rofl.Module {
	t.Helper()
	m, err := rofl.NewModule(storage.NewMemStore(), newReadyKMS(t), registry, quotes, noopTransfer, 0)
	require.NoError(t, err)
	return m
}

func testCreator() types.Address {
	return types.NewAddress(types.AddressV0Ed25519Context, "test-creator")
}

func identityFor(enclave [32]byte) rofl.EnclaveIdentity {
	var id rofl.EnclaveIdentity
	id.MREnclave = enclave
	return id
}

func TestCreateRejectsDuplicateAppId(t *testing.T) {
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{MaxExpiration: 100}

	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)
	require.False(t, app.IsZero())

	_, err = m.Create(creator, 1, 0, policy, nil, nil)
	require.ErrorIs(t, err, rofl.ErrAppAlreadyExists)
}

func TestCreateDistinctTxIndexYieldsDistinctApps(t *testing.T) {
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{MaxExpiration: 100}

	app1, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)
	app2, err := m.Create(creator, 1, 1, policy, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, app1, app2)
}

func registerRequest(app rofl.AppId, rak ed25519.PublicKey, rakSK ed25519.PrivateKey, node rofl.ConsensusPK, expiration rofl.Epoch) rofl.RegisterRequest {
	payload := []byte("registration payload")
	return rofl.RegisterRequest{
		App: app,
		Capability: rofl.EndorsedCapabilityTEE{
			Quote:  []byte("quote"),
			RAK:    rak,
			NodeID: node,
		},
		Expiration:      expiration,
		SignedPayload:   payload,
		RAKSignature:    ed25519.Sign(rakSK, payload),
		ExtraSignatures: [][]byte{},
	}
}

func TestRegisterAnyRuleAcceptsUnknownNode(t *testing.T) {
	enclave := [32]byte{0x01}
	m := newTestModule(t, &fakeRegistry{nodes: map[rofl.ConsensusPK]rofl.NodeInfo{}}, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementAny}},
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	rak, rakSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var node rofl.ConsensusPK
	_, _ = rand.Read(node[:])

	req := registerRequest(app, rak, rakSK, node, 100)
	require.NoError(t, m.Register(req, 10))
}

func TestRegisterComputeRoleRequiresLiveRegistryEntry(t *testing.T) {
	enclave := [32]byte{0x02}
	var node rofl.ConsensusPK
	_, _ = rand.Read(node[:])

	// Scenario mirrors spec.md's S5: the node is present but expired at
	// epoch 99, with the current epoch at 100; Register must fail
	// leaving no registration behind.
	registry := &fakeRegistry{nodes: map[rofl.ConsensusPK]rofl.NodeInfo{
		node: {Expiration: 99, CurrentRuntimeVersion: true, ComputeRole: true},
	}}
	m := newTestModule(t, registry, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementComputeRole}},
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	rak, rakSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	req := registerRequest(app, rak, rakSK, node, 200)
	err = m.Register(req, 100)
	require.ErrorIs(t, err, rofl.ErrNodeNotAllowed)

	_, ok, getErr := m.Registrations.Get(append(append([]byte{}, app.Bytes()...), rak...))
	require.NoError(t, getErr)
	require.False(t, ok)
}

func TestRegisterRejectsBadSignature(t *testing.T) {
	enclave := [32]byte{0x03}
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementAny}},
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	rak, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, wrongSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var node rofl.ConsensusPK

	req := registerRequest(app, rak, wrongSK, node, 100)
	err = m.Register(req, 10)
	require.ErrorIs(t, err, rofl.ErrBadSignature)
}

func TestDeriveKeyRequiresEncryptedCallAndRegistration(t *testing.T) {
	enclave := [32]byte{0x04}
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementAny}},
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	rak, rakSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var node rofl.ConsensusPK
	req := registerRequest(app, rak, rakSK, node, 100)
	require.NoError(t, m.Register(req, 10))

	_, err = m.DeriveKey(app, rak, false, 10, rofl.ScopeGlobal, []byte("k"), kdf.KindRaw256)
	require.ErrorIs(t, err, rofl.ErrNotEncrypted)

	unregisteredRAK, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = m.DeriveKey(app, unregisteredRAK, true, 10, rofl.ScopeGlobal, []byte("k"), kdf.KindRaw256)
	require.ErrorIs(t, err, rofl.ErrNotRegistered)

	derived, err := m.DeriveKey(app, rak, true, 10, rofl.ScopeGlobal, []byte("k"), kdf.KindRaw256)
	require.NoError(t, err)
	require.Len(t, derived.Raw, 32)
}

func TestDeriveKeyEntityScopeFailsWithoutKnownEntity(t *testing.T) {
	enclave := [32]byte{0x05}
	var node rofl.ConsensusPK
	_, _ = rand.Read(node[:])
	registry := &fakeRegistry{nodes: map[rofl.ConsensusPK]rofl.NodeInfo{}}
	m := newTestModule(t, registry, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementNode, ID: node}},
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	rak, rakSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	req := registerRequest(app, rak, rakSK, node, 100)
	require.NoError(t, m.Register(req, 10))

	_, err = m.DeriveKey(app, rak, true, 10, rofl.ScopeEntity, []byte("k"), kdf.KindRaw256)
	require.ErrorIs(t, err, rofl.ErrUnknownEntity)
}

func TestExpirationSweepRemovesExpiredRegistrations(t *testing.T) {
	enclave := [32]byte{0x06}
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementAny}},
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	var node rofl.ConsensusPK
	rak, rakSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	req := registerRequest(app, rak, rakSK, node, 20)
	require.NoError(t, m.Register(req, 10))

	removed, err := m.ExpirationSweep(15)
	require.NoError(t, err)
	require.Equal(t, 0, removed)

	removed, err = m.ExpirationSweep(25)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, ok, err := m.Registrations.Get(append(app.Bytes(), rak...))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveFeeProxyEndorsingNodePays(t *testing.T) {
	enclave := [32]byte{0x07}
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{identity: identityFor(enclave)})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{
		MaxExpiration: 1000,
		Enclaves:      []rofl.EnclaveIdentity{identityFor(enclave)},
		Endorsements:  []rofl.EndorsementRule{{Kind: rofl.EndorsementAny}},
		Fee:           rofl.FeePolicyEndorsingNodePays,
	}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	var node rofl.ConsensusPK
	node[0] = 0x42
	rak, rakSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	req := registerRequest(app, rak, rakSK, node, 1000)
	require.NoError(t, m.Register(req, 10))

	payer, err := m.ResolveFeeProxy(app, false, rofl.ConsensusPK{}, rak)
	require.NoError(t, err)
	require.Equal(t, node, payer)

	_, err = m.ResolveFeeProxy(app, false, rofl.ConsensusPK{}, []byte("unknown-signer"))
	require.ErrorIs(t, err, rofl.ErrNoFeeProxy)
}

func TestResolveFeeProxyInstancePaysNeverProxies(t *testing.T) {
	m := newTestModule(t, &fakeRegistry{}, alwaysOKQuotes{})
	creator := testCreator()
	policy := rofl.AppAuthPolicy{MaxExpiration: 1000, Fee: rofl.FeePolicyInstancePays}
	app, err := m.Create(creator, 1, 0, policy, nil, nil)
	require.NoError(t, err)

	_, err = m.ResolveFeeProxy(app, false, rofl.ConsensusPK{}, []byte("anyone"))
	require.ErrorIs(t, err, rofl.ErrNoFeeProxy)
}
