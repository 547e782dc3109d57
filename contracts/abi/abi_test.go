package abi

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/engine"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/gas"
)

// fakeQuerier and fakeDispatcher let tests exercise env.query and
// subcall.call without building the real contracts module.
type fakeQuerier struct {
	resp []byte
	err  error
}

func (q fakeQuerier) Query(ctx CallContext, path string, data []byte) ([]byte, error) {
	return q.resp, q.err
}

type fakeDispatcher struct {
	resp []byte
	err  error
	got  CallContext
}

func (d *fakeDispatcher) Subcall(ctx CallContext, target types.Address, input []byte) ([]byte, error) {
	d.got = ctx
	return d.resp, d.err
}

// writeRegion writes a 12-byte Region header at headerPtr describing
// [offset, capacity, length) and, if data is non-nil, the bytes
// themselves at offset, into f's backing memory.
func writeRegion(t *testing.T, f *engine.Fake, headerPtr, offset uint32, capacity uint32, data []byte) {
	t.Helper()
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], offset)
	binary.LittleEndian.PutUint32(hdr[4:8], capacity)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(data)))
	require.NoError(t, f.Memory().Write(headerPtr, hdr[:]))
	if len(data) > 0 {
		require.NoError(t, f.Memory().Write(offset, data))
	}
}

func readRegionValue(t *testing.T, f *engine.Fake, headerPtr uint32) []byte {
	t.Helper()
	data, _, err := ReadRegion(f.Memory(), headerPtr)
	require.NoError(t, err)
	return data
}

type fakeInstance struct {
	i64 map[string]int64
	i32 map[string]int32
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{i64: map[string]int64{}, i32: map[string]int32{}}
}

func (f *fakeInstance) GetGlobalI64(name string) (int64, error) { return f.i64[name], nil }
func (f *fakeInstance) SetGlobalI64(name string, v int64) error { f.i64[name] = v; return nil }
func (f *fakeInstance) GetGlobalI32(name string) (int32, error) { return f.i32[name], nil }
func (f *fakeInstance) SetGlobalI32(name string, v int32) error { f.i32[name] = v; return nil }

func newTestContext(t *testing.T) (*CallContext, *engine.Fake) {
	t.Helper()
	inst := newFakeInstance()
	meter := gas.NewMeter(inst)
	require.NoError(t, meter.SetGasLimit(10_000_000))

	subcallCount := 0
	cc := &CallContext{
		Ctx:               context.Background(),
		PublicStore:       storage.NewMemStore(),
		ConfidentialStore: storage.NewMemStore(),
		Meter:             meter,
		Contract:          types.NewModuleAddress("test", "contract"),
		Caller:            types.NewModuleAddress("test", "caller"),
		Iterators:         NewIteratorRegistry(),
		Dispatcher:        &fakeDispatcher{},
		Querier:           fakeQuerier{},
		SubcallCount:      &subcallCount,
	}
	f := engine.NewFake(1 << 16)
	f.Instantiate(context.Background(), nil, BuildImports(cc))
	return cc, f
}

func TestStorageGetInsertRoundTrip(t *testing.T) {
	cc, f := newTestContext(t)

	const keyHdr, keyOff = uint32(0), uint32(1000)
	const valHdr, valOff = uint32(12), uint32(1100)
	const outHdr, outOff = uint32(24), uint32(1200)

	writeRegion(t, f, keyHdr, keyOff, 32, []byte("hello"))
	writeRegion(t, f, valHdr, valOff, 32, []byte("world"))

	res, err := f.CallImport("storage", "insert", uint64(storeKindPublic), uint64(keyHdr), uint64(valHdr))
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)

	writeRegion(t, f, outHdr, outOff, 32, nil)
	res, err = f.CallImport("storage", "get", uint64(storeKindPublic), uint64(keyHdr), uint64(outHdr))
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, []byte("world"), readRegionValue(t, f, outHdr))
}

func TestStorageGetMissingReturnsNotFound(t *testing.T) {
	_, f := newTestContext(t)
	writeRegion(t, f, 0, 1000, 32, []byte("missing"))
	writeRegion(t, f, 12, 1100, 32, nil)

	res, err := f.CallImport("storage", "get", uint64(storeKindPublic), 0, 12)
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64(statusNotFound)}, res)
}

func TestStorageConfidentialRoundTripThroughEncryptedStore(t *testing.T) {
	cc, f := newTestContext(t)
	confStore, err := storage.NewConfidentialStore(storage.NewMemStore(), make([]byte, 32), []byte("test"))
	require.NoError(t, err)
	cc.ConfidentialStore = confStore
	f = engine.NewFake(1 << 16)
	f.Instantiate(context.Background(), nil, BuildImports(cc))

	writeRegion(t, f, 0, 1000, 32, []byte("secret-key"))
	writeRegion(t, f, 12, 1100, 32, []byte("secret-value"))
	_, err = f.CallImport("storage", "insert", uint64(storeKindConfidential), 0, 12)
	require.NoError(t, err)

	writeRegion(t, f, 24, 1200, 64, nil)
	res, err := f.CallImport("storage", "get", uint64(storeKindConfidential), 0, 24)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, []byte("secret-value"), readRegionValue(t, f, 24))
}

func TestStorageNextOnTamperedConfidentialRecordReturnsErrorNotPanic(t *testing.T) {
	cc, f := newTestContext(t)
	inner := storage.NewMemStore()
	confStore, err := storage.NewConfidentialStore(inner, make([]byte, 32), []byte("test"))
	require.NoError(t, err)
	cc.ConfidentialStore = confStore
	f = engine.NewFake(1 << 16)
	f.Instantiate(context.Background(), nil, BuildImports(cc))

	writeRegion(t, f, 0, 1000, 32, []byte("secret-key"))
	writeRegion(t, f, 12, 1100, 32, []byte("secret-value"))
	_, err = f.CallImport("storage", "insert", uint64(storeKindConfidential), 0, 12)
	require.NoError(t, err)

	// Flip a byte of the persisted ciphertext so decryption during
	// iteration hits an AEAD tag mismatch, the same corruption a
	// confidential get would hit.
	it := inner.NewIterator(nil, nil)
	it.Rewind()
	require.True(t, it.IsValid())
	tamperedKey := it.Key()
	tamperedValue := append([]byte(nil), it.Value()...)
	tamperedValue[0] ^= 0xFF
	inner.Insert(tamperedKey, tamperedValue)

	writeRegion(t, f, 24, 1200, 8, nil)
	writeRegion(t, f, 36, 1300, 8, nil)
	res, err := f.CallImport("storage", "scan", uint64(storeKindConfidential), 24, 36)
	require.NoError(t, err)
	handle := res[0]

	writeRegion(t, f, 48, 1400, 64, nil)
	writeRegion(t, f, 60, 1500, 64, nil)
	_, err = f.CallImport("storage", "next", handle, 48, 60)
	require.Error(t, err)
}

func TestStorageScanNextExhausted(t *testing.T) {
	cc, f := newTestContext(t)
	cc.PublicStore.Insert([]byte("a"), []byte("1"))
	cc.PublicStore.Insert([]byte("b"), []byte("2"))

	writeRegion(t, f, 0, 1000, 8, nil) // empty start => unbounded
	writeRegion(t, f, 12, 1100, 8, nil)
	res, err := f.CallImport("storage", "scan", uint64(storeKindPublic), 0, 12)
	require.NoError(t, err)
	handle := res[0]

	writeRegion(t, f, 24, 1200, 8, nil)
	writeRegion(t, f, 36, 1300, 8, nil)
	res, err = f.CallImport("storage", "next", handle, 24, 36)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, []byte("a"), readRegionValue(t, f, 24))

	res, err = f.CallImport("storage", "next", handle, 24, 36)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)

	res, err = f.CallImport("storage", "next", handle, 24, 36)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusExhausted}, res)
}

func TestCryptoRandomBytesCapped(t *testing.T) {
	_, f := newTestContext(t)
	writeRegion(t, f, 0, 1000, 8, nil)    // personalization (unused)
	writeRegion(t, f, 12, 1100, 4096, nil) // dst capacity 4096 > cap

	res, err := f.CallImport("crypto", "random_bytes", 0, 12)
	require.NoError(t, err)
	require.Equal(t, uint64(maxRandomBytes), res[0])
	require.Len(t, readRegionValue(t, f, 12), maxRandomBytes)
}

func TestCryptoDeoxysSealOpenRoundTrip(t *testing.T) {
	_, f := newTestContext(t)
	key := make([]byte, 32)
	nonce := make([]byte, 15)
	for i := range key {
		key[i] = byte(i)
	}
	writeRegion(t, f, 0, 1000, 32, key)
	writeRegion(t, f, 12, 1100, 15, nonce)
	writeRegion(t, f, 24, 1200, 32, []byte("plaintext"))
	writeRegion(t, f, 36, 1300, 16, []byte("ad"))
	writeRegion(t, f, 48, 1400, 64, nil)

	res, err := f.CallImport("crypto", "deoxysii_seal", 0, 12, 24, 36, 48)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	ct := readRegionValue(t, f, 48)
	require.NotEmpty(t, ct)

	writeRegion(t, f, 60, 1500, len(ct), ct)
	writeRegion(t, f, 72, 1600, 64, nil)
	res, err = f.CallImport("crypto", "deoxysii_open", 0, 12, 60, 36, 72)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, []byte("plaintext"), readRegionValue(t, f, 72))
}

func TestCryptoDeoxysOpenCorruptedReturnsStatus1(t *testing.T) {
	_, f := newTestContext(t)
	key := make([]byte, 32)
	nonce := make([]byte, 15)
	writeRegion(t, f, 0, 1000, 32, key)
	writeRegion(t, f, 12, 1100, 15, nonce)
	writeRegion(t, f, 36, 1300, 16, []byte("ad"))
	writeRegion(t, f, 60, 1500, 32, []byte("not-a-real-ciphertext-value-xx"))
	writeRegion(t, f, 72, 1600, 64, nil)

	res, err := f.CallImport("crypto", "deoxysii_open", 0, 12, 60, 36, 72)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusNotFound}, res)
}

func TestCryptoX25519DeriveSymmetricRejectsShortPeerKey(t *testing.T) {
	_, f := newTestContext(t)
	// Two arbitrary 32-byte clamped-enough scalars; crypto/ecdh clamps
	// internally for X25519, so any 32 bytes round-trips deterministically
	// through NewPrivateKey as long as both sides use the same values.
	skA := make([]byte, 32)
	skB := make([]byte, 32)
	for i := range skA {
		skA[i] = byte(i + 1)
		skB[i] = byte(i + 50)
	}

	// pkA, pkB derived out of band isn't available without go-ethereum's
	// curve helpers here; instead verify the handler rejects malformed
	// (wrong-length) peer keys, which is the behavior this test owns.
	writeRegion(t, f, 0, 1000, 31, make([]byte, 31))
	writeRegion(t, f, 12, 1100, 32, skA)
	writeRegion(t, f, 24, 1200, 32, nil)
	res, err := f.CallImport("crypto", "x25519_derive_symmetric", 0, 12, 24)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusError}, res)
	_ = skB
}

func TestContractAddressCanonicalizeHumanizeRoundTrip(t *testing.T) {
	_, f := newTestContext(t)
	addr := types.NewModuleAddress("test", "addr")

	writeRegion(t, f, 0, 1000, 64, []byte(addr.String()))
	writeRegion(t, f, 12, 1100, 64, nil)
	res, err := f.CallImport("contract", "address_canonicalize", 0, 12)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	canon := readRegionValue(t, f, 12)
	require.Equal(t, addr.Bytes(), canon)

	writeRegion(t, f, 24, 1200, len(canon), canon)
	writeRegion(t, f, 36, 1300, 64, nil)
	res, err = f.CallImport("contract", "address_humanize", 24, 36)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, addr.String(), string(readRegionValue(t, f, 36)))
}

func TestSubcallDepthLimitEnforced(t *testing.T) {
	cc, f := newTestContext(t)
	cc.Depth = MaxSubcallDepth

	writeRegion(t, f, 0, 1000, 32, cc.Contract.Bytes())
	writeRegion(t, f, 12, 1100, 8, []byte("method"))
	writeRegion(t, f, 24, 1200, 64, nil)

	_, err := f.CallImport("subcall", "call", 0, 12, 24)
	require.ErrorIs(t, err, ErrSubcallDepthExceeded)
}

func TestSubcallCountLimitEnforced(t *testing.T) {
	cc, f := newTestContext(t)
	*cc.SubcallCount = MaxSubcallCount

	writeRegion(t, f, 0, 1000, 32, cc.Contract.Bytes())
	writeRegion(t, f, 12, 1100, 8, []byte("method"))
	writeRegion(t, f, 24, 1200, 64, nil)

	_, err := f.CallImport("subcall", "call", 0, 12, 24)
	require.ErrorIs(t, err, ErrSubcallCountExceeded)
}

func TestSubcallCallDispatches(t *testing.T) {
	cc, f := newTestContext(t)
	disp := &fakeDispatcher{resp: []byte("ok")}
	cc.Dispatcher = disp
	f = engine.NewFake(1 << 16)
	f.Instantiate(context.Background(), nil, BuildImports(cc))

	target := types.NewModuleAddress("test", "target")
	writeRegion(t, f, 0, 1000, 32, target.Bytes())
	writeRegion(t, f, 12, 1100, 8, []byte("method"))
	writeRegion(t, f, 24, 1200, 64, nil)

	res, err := f.CallImport("subcall", "call", 0, 12, 24)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, []byte("ok"), readRegionValue(t, f, 24))
	require.Equal(t, 1, disp.got.Depth)
	require.Equal(t, 1, *cc.SubcallCount)
}

func TestEnvQueryDispatchesToQuerier(t *testing.T) {
	cc, f := newTestContext(t)
	cc.Querier = fakeQuerier{resp: []byte("block-info")}
	f = engine.NewFake(1 << 16)
	f.Instantiate(context.Background(), nil, BuildImports(cc))

	writeRegion(t, f, 0, 1000, 16, []byte("block_info"))
	writeRegion(t, f, 12, 1100, 8, nil)
	writeRegion(t, f, 24, 1200, 32, nil)

	res, err := f.CallImport("env", "query", 0, 12, 24)
	require.NoError(t, err)
	require.Equal(t, []uint64{statusOK}, res)
	require.Equal(t, []byte("block-info"), readRegionValue(t, f, 24))
}

func TestIteratorRegistryBoundsOpenCount(t *testing.T) {
	reg := NewIteratorRegistry()
	for i := 0; i < MaxOpenIterators; i++ {
		_, err := reg.Open(storage.NewMemStore().NewIterator(nil, nil))
		require.NoError(t, err)
	}
	_, err := reg.Open(storage.NewMemStore().NewIterator(nil, nil))
	require.Error(t, err)
}
