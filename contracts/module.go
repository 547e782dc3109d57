package contracts

import (
	"crypto/ecdh"
	"crypto/rand"

	"github.com/fxamacker/cbor"

	"github.com/oasisprotocol/oasis-core-rofl/contracts/abi"
	"github.com/oasisprotocol/oasis-core-rofl/crypto/envelope"
	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/storage/current"
	"github.com/oasisprotocol/oasis-core-rofl/types"
)

// CallFormat selects how a top-level transaction's call body is
// encoded, per spec.md §4.6.
type CallFormat int

const (
	CallFormatPlain CallFormat = iota
	CallFormatEncryptedX25519DeoxysII
)

// Metadata is the token DecryptCall returns alongside the plaintext
// body: the encoder uses it to symmetrically re-encrypt a successful
// reply, per spec.md §4.6's "only successful results are re-encrypted"
// rule. A nil Metadata means the call was CallFormatPlain and the reply
// must stay in plaintext.
type Metadata struct {
	symmetricKey [32]byte
}

// replyAD is the associated data distinguishing a reply seal from the
// request seal, even though both use the same derived symmetric key.
var replyAD = []byte("reply")

// EncryptReply seals data under meta's symmetric key for the client
// that initiated an EncryptedX25519DeoxysII call. A fresh random nonce
// is drawn per reply; the wire format is whatever envelope.AEAD.Seal
// produces (nonce prefix included), since, unlike storage records, a
// reply has no stable key to derive a deterministic nonce from.
func EncryptReply(meta *Metadata, data []byte) ([]byte, error) {
	aead, err := envelope.NewAEAD(meta.symmetricKey[:])
	if err != nil {
		return nil, err
	}
	var nonce [envelope.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, data, replyAD), nil
}

// CallEnvelope is the wire shape of an encrypted top-level call body,
// CBOR-encoded by the client: an ephemeral X25519 public key, a nonce,
// and the DeoxysII-sealed (here, AES-256-GCM, see crypto/envelope)
// request bytes.
type CallEnvelope struct {
	PK         [32]byte
	Nonce      [envelope.NonceSize]byte
	Ciphertext []byte
}

var requestAD = []byte("request")

// Module implements the Contracts Module of spec.md §4.6: code/instance
// lifecycle, call-format decryption, subcall reentry, and queries.
type Module struct {
	Root     storage.Store
	Cur      *current.Context
	Deps     Deps
	Transfer func(from, to types.Address, amount types.Quantity) error

	// ephemeralSK/PK is the runtime's per-rotation X25519 keypair used
	// to decrypt EncryptedX25519DeoxysII call envelopes.
	ephemeralSK [32]byte
	ephemeralPK [32]byte
}

// NewModule constructs a Module with a freshly generated ephemeral
// X25519 keypair. The keypair is meant to be rotated periodically by
// the embedder (e.g. once per epoch) by constructing a new Module;
// rotation policy itself lives outside this package, which only owns
// the decrypt/encrypt mechanics for whichever keypair is current.
func NewModule(root storage.Store, cur *current.Context, deps Deps, transfer func(from, to types.Address, amount types.Quantity) error) (*Module, error) {
	var sk [32]byte
	if _, err := rand.Read(sk[:]); err != nil {
		return nil, err
	}
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(sk[:])
	if err != nil {
		return nil, err
	}
	var pk [32]byte
	copy(pk[:], priv.PublicKey().Bytes())
	return &Module{Root: root, Cur: cur, Deps: deps, Transfer: transfer, ephemeralSK: sk, ephemeralPK: pk}, nil
}

// EphemeralPublicKey is published for clients to address encrypted
// calls to.
func (m *Module) EphemeralPublicKey() [32]byte {
	return m.ephemeralPK
}

// DecryptCall decodes format and, for CallFormatEncryptedX25519DeoxysII,
// opens body into its plaintext request and a reply Metadata token, per
// spec.md §4.6. CallFormatPlain passes body through unchanged with a
// nil Metadata.
func (m *Module) DecryptCall(format CallFormat, body []byte) (plaintext []byte, meta *Metadata, err error) {
	if format == CallFormatPlain {
		return body, nil, nil
	}

	var env CallEnvelope
	if err := cbor.Unmarshal(body, &env); err != nil {
		return nil, nil, wrapErr(ErrBadCallFormat, "malformed call envelope")
	}

	curve := ecdh.X25519()
	localKey, err := curve.NewPrivateKey(m.ephemeralSK[:])
	if err != nil {
		return nil, nil, wrapErr(ErrBadCallFormat, "bad ephemeral key")
	}
	peerKey, err := curve.NewPublicKey(env.PK[:])
	if err != nil {
		return nil, nil, wrapErr(ErrBadCallFormat, "bad client public key")
	}
	shared, err := localKey.ECDH(peerKey)
	if err != nil {
		return nil, nil, wrapErr(ErrBadCallFormat, "ECDH failed")
	}
	symm := envelope.SymmetricFromSharedSecret(shared)

	aead, err := envelope.NewAEAD(symm[:])
	if err != nil {
		return nil, nil, wrapErr(ErrBadCallFormat, "bad derived key")
	}
	pt, err := aead.OpenDetached(env.Nonce, env.Ciphertext, requestAD)
	if err != nil {
		return nil, nil, wrapErr(ErrBadCallFormat, "call decryption failed")
	}
	return pt, &Metadata{symmetricKey: symm}, nil
}

// Subcall implements contracts/abi.Dispatcher, reentering the module to
// run a subcall against target. Per subcall_ns.go's contract, it
// rebinds the subcall's stores and contract address to target's own
// before executing, since the CallContext it receives was only
// seeded with the caller's depth/count/dispatcher/querier bookkeeping.
func (m *Module) Subcall(cc abi.CallContext, target types.Address, input []byte) ([]byte, error) {
	return Call(cc.Ctx, m.Cur, m.Deps, target, cc.Contract, input, mustRemainingGas(cc), cc.SubcallCount, cc.Depth)
}

// mustRemainingGas reads the caller's remaining gas balance to seed the
// subcall's own budget; a failure here indicates the engine adapter
// itself is broken (not a guest-triggerable condition), so it collapses
// to zero remaining gas rather than propagating a plumbing error through
// the abi.Dispatcher interface's narrow return shape.
func mustRemainingGas(cc abi.CallContext) uint64 {
	remaining, err := cc.Meter.GetRemainingGas()
	if err != nil {
		return 0
	}
	return remaining
}

// CodeQuery/InstanceQuery/etc. are the CBOR request/response shapes
// env.query answers under the "contracts" namespace, per spec.md
// §4.6's Queries list.
type CodeQueryRequest struct{ CodeID uint64 }
type CodeQueryResponse struct {
	Uploader          types.Address
	InstantiatePolicy InstantiatePolicy
}

type CodeStorageQueryRequest struct {
	CodeID uint64
	Key    []byte
}
type CodeStorageQueryResponse struct {
	Value []byte
	Found bool
}

type InstanceQueryRequest struct{ Address types.Address }
type InstanceQueryResponse struct {
	CodeID  uint64
	Creator types.Address
	Status  InstanceStatus
}

type InstanceStorageQueryRequest struct {
	Address types.Address
	Key     []byte
}
type InstanceStorageQueryResponse struct {
	Value []byte
	Found bool
}

// MaxInstanceRawStorageQueryItems bounds a single InstanceRawStorage
// page, per spec.md §4.6.
const MaxInstanceRawStorageQueryItems = 100

type InstanceRawStorageQueryRequest struct {
	Address    types.Address
	StartAfter []byte
	Limit      uint32
}
type rawKV struct {
	Key   []byte
	Value []byte
}
type InstanceRawStorageQueryResponse struct {
	Items []rawKV
	More  bool
}

type CustomQueryRequest struct {
	Address  types.Address
	Request  []byte
	GasLimit uint64
}
type CustomQueryResponse struct {
	Response []byte
}

// Query implements contracts/abi.Querier for env.query calls whose path
// begins with "contracts.", dispatching to the Code/CodeStorage/
// Instance/InstanceStorage/InstanceRawStorage/Custom handlers of
// spec.md §4.6.
func (m *Module) Query(cc abi.CallContext, path string, data []byte) ([]byte, error) {
	switch path {
	case "contracts.Code":
		var req CodeQueryRequest
		if err := cbor.Unmarshal(data, &req); err != nil {
			return nil, wrapErr(ErrBadCallFormat, err.Error())
		}
		code, err := GetCode(m.Root, req.CodeID)
		if err != nil {
			return nil, err
		}
		return cbor.Marshal(CodeQueryResponse{Uploader: code.Uploader, InstantiatePolicy: code.InstantiatePolicy}, cbor.EncOptions{Canonical: true})

	case "contracts.CodeStorage":
		var req CodeStorageQueryRequest
		if err := cbor.Unmarshal(data, &req); err != nil {
			return nil, wrapErr(ErrBadCallFormat, err.Error())
		}
		if _, err := GetCode(m.Root, req.CodeID); err != nil {
			return nil, err
		}
		cstore := storage.NewPrefixStore(m.Root, append([]byte("cmeta/"), codeKey(req.CodeID)...))
		v, ok := cstore.Get(req.Key)
		return cbor.Marshal(CodeStorageQueryResponse{Value: v, Found: ok}, cbor.EncOptions{Canonical: true})

	case "contracts.Instance":
		var req InstanceQueryRequest
		if err := cbor.Unmarshal(data, &req); err != nil {
			return nil, wrapErr(ErrBadCallFormat, err.Error())
		}
		inst, err := GetInstance(m.Root, req.Address)
		if err != nil {
			return nil, err
		}
		return cbor.Marshal(InstanceQueryResponse{CodeID: inst.CodeID, Creator: inst.Creator, Status: inst.Status}, cbor.EncOptions{Canonical: true})

	case "contracts.InstanceStorage":
		var req InstanceStorageQueryRequest
		if err := cbor.Unmarshal(data, &req); err != nil {
			return nil, wrapErr(ErrBadCallFormat, err.Error())
		}
		if _, err := GetInstance(m.Root, req.Address); err != nil {
			return nil, err
		}
		// Public storage only: confidential instance state is never
		// queryable from outside the instance's own guest code.
		pstore := storage.NewPrefixStore(m.Root, append([]byte("pstore/"), req.Address.Bytes()...))
		v, ok := pstore.Get(req.Key)
		return cbor.Marshal(InstanceStorageQueryResponse{Value: v, Found: ok}, cbor.EncOptions{Canonical: true})

	case "contracts.InstanceRawStorage":
		var req InstanceRawStorageQueryRequest
		if err := cbor.Unmarshal(data, &req); err != nil {
			return nil, wrapErr(ErrBadCallFormat, err.Error())
		}
		if req.Limit == 0 || req.Limit > MaxInstanceRawStorageQueryItems {
			return nil, ErrRawStorageQueryTooLarge
		}
		if _, err := GetInstance(m.Root, req.Address); err != nil {
			return nil, err
		}
		pstore := storage.NewPrefixStore(m.Root, append([]byte("pstore/"), req.Address.Bytes()...))
		it := pstore.NewIterator(req.StartAfter, nil)
		defer it.Close()
		resp := InstanceRawStorageQueryResponse{}
		for it.Rewind(); it.IsValid(); it.Next() {
			if uint32(len(resp.Items)) == req.Limit {
				resp.More = true
				break
			}
			resp.Items = append(resp.Items, rawKV{Key: append([]byte(nil), it.Key()...), Value: append([]byte(nil), it.Value()...)})
		}
		return cbor.Marshal(resp, cbor.EncOptions{Canonical: true})

	case "contracts.Custom":
		var req CustomQueryRequest
		if err := cbor.Unmarshal(data, &req); err != nil {
			return nil, wrapErr(ErrBadCallFormat, err.Error())
		}
		return m.customQuery(cc, req)

	default:
		return nil, wrapErr(ErrBadCallFormat, "unknown query path")
	}
}

// customQuery runs the guest's "query" export against an OverlayStore
// frame capped at req.GasLimit, per spec.md §4.6. The overlay is simply
// never committed: a query must never leave behind state changes, and
// unlike Instantiate/Call/Upgrade there is no result to persist either
// way, so this bypasses current.Context's commit/rollback plumbing
// entirely rather than threading a discarded value through it.
func (m *Module) customQuery(cc abi.CallContext, req CustomQueryRequest) ([]byte, error) {
	inst, err := GetInstance(m.Root, req.Address)
	if err != nil {
		return nil, err
	}
	code, err := GetCode(m.Root, inst.CodeID)
	if err != nil {
		return nil, err
	}

	overlay := storage.NewOverlayStore(m.Root)
	confidential, err := instanceConfidentialStore(m.Deps.ConfidentialRootKey, req.Address, overlay)
	if err != nil {
		return nil, err
	}
	pstore := storage.NewPrefixStore(overlay, append([]byte("pstore/"), req.Address.Bytes()...))
	subcallCount := 0
	out, err := runExport(cc.Ctx, m.Deps, code, pstore, confidential, req.Address, cc.Caller, req.GasLimit, "query", req.Request, 0, &subcallCount)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(CustomQueryResponse{Response: out}, cbor.EncOptions{Canonical: true})
}
