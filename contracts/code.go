package contracts

import (
	"encoding/binary"

	"github.com/golang/snappy"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
	"github.com/oasisprotocol/oasis-core-rofl/types"
	"github.com/oasisprotocol/oasis-core-rofl/wasm/gas"
)

// MaxCodeSize bounds a single code blob's decompressed size, per
// spec.md §4.6.
const MaxCodeSize = 4 * 1024 * 1024

// Gas pricing for the Upload operation, sized the same order of
// magnitude as contracts/abi's host-function pricing table.
var (
	PriceTxUpload       = Pricing{Flat: 200_000}
	PriceUploadPerByte  = Pricing{PerByte: 20}
	PriceDecompressByte = Pricing{PerByte: 5}
	PriceTransformByte  = Pricing{PerByte: 5}
)

// Pricing is the flat-plus-per-byte shape contracts/abi.Pricing uses,
// duplicated here (rather than imported) because contracts/abi charges
// against a *gas.Meter bound to a running instance, while the charges
// below run before any instance exists.
type Pricing struct {
	Flat    uint64
	PerByte uint64
}

// Cost returns the total charge for n bytes.
func (p Pricing) Cost(n int) uint64 {
	return p.Flat + p.PerByte*uint64(n)
}

// InstantiatePolicy controls who may instantiate a given code, per
// spec.md §4.6's "Absent → Uploaded (immutable except replaceable under
// its instantiate_policy)".
type InstantiatePolicy struct {
	// Everybody allows any address to instantiate this code.
	Everybody bool
	// Addresses, when Everybody is false, is the allow-list of
	// addresses permitted to instantiate this code.
	Addresses []types.Address
}

// Allows reports whether caller may instantiate code governed by p.
func (p InstantiatePolicy) Allows(caller types.Address) bool {
	if p.Everybody {
		return true
	}
	for _, a := range p.Addresses {
		if a == caller {
			return true
		}
	}
	return false
}

// Code is the on-chain record for one uploaded, gas-transformed WASM
// module, per spec.md §4.6.
type Code struct {
	ID                uint64
	Uploader          types.Address
	InstantiatePolicy InstantiatePolicy
	// ABISubVersion is the guest's declared oasis_abi_sv_N export
	// number, informational only.
	ABISubVersion uint64
	// Transformed is the validated, gas-instrumented module bytes ready
	// for engine.Engine.Compile.
	Transformed []byte
}

// codeStore namespaces the code registry under its own key prefix
// within the module's public store, keyed by big-endian uint64 id.
func codeStore(root storage.Store) *storage.TypedStore[Code] {
	return storage.NewTypedStore[Code](storage.NewPrefixStore(root, []byte("code/")))
}

// nextCodeIDKey holds the next sequential CodeID to assign.
var nextCodeIDKey = []byte("next_code_id")

func nextCodeID(root storage.Store) uint64 {
	raw, ok := root.Get(nextCodeIDKey)
	if !ok {
		return 1
	}
	return binary.BigEndian.Uint64(raw)
}

func setNextCodeID(root storage.Store, id uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	root.Insert(nextCodeIDKey, buf)
}

func codeKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// Upload decompresses, validates and gas-transforms a Snappy-compressed
// WASM blob and persists it as a new Code record, per spec.md §4.6's
// charge-then-decompress-then-charge-again sequence: each expansion
// step is billed before the next one runs, so a small compressed input
// can never force large uncompensated host-side work.
func Upload(meter chargeable, root storage.Store, uploader types.Address, compressed []byte, policy InstantiatePolicy) (Code, error) {
	if err := meter.UseGas(PriceTxUpload.Flat + PriceUploadPerByte.Cost(len(compressed))); err != nil {
		return Code{}, err
	}

	decompressedLen, err := snappy.DecodedLen(compressed)
	if err != nil {
		return Code{}, wrapErr(ErrBadCallFormat, "invalid snappy frame")
	}
	if decompressedLen > MaxCodeSize {
		return Code{}, ErrCodeTooLarge
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Code{}, wrapErr(ErrBadCallFormat, "snappy decode failed")
	}
	if err := meter.UseGas(PriceDecompressByte.Cost(len(raw))); err != nil {
		return Code{}, err
	}

	module, err := gas.ParseModule(raw)
	if err != nil {
		return Code{}, wrapErr(ErrBadCallFormat, "malformed wasm module")
	}
	limits := gas.DefaultLimits()
	if err := gas.Validate(module, limits); err != nil {
		return Code{}, wrapErr(ErrBadCallFormat, err.Error())
	}
	transformed, err := gas.Transform(module, limits)
	if err != nil {
		return Code{}, wrapErr(ErrBadCallFormat, err.Error())
	}
	encoded := transformed.Encode()
	if err := meter.UseGas(PriceTransformByte.Cost(len(encoded))); err != nil {
		return Code{}, err
	}

	id := nextCodeID(root)
	code := Code{
		ID:                id,
		Uploader:          uploader,
		InstantiatePolicy: policy,
		Transformed:       encoded,
	}
	if err := codeStore(root).Insert(codeKey(id), code); err != nil {
		return Code{}, err
	}
	setNextCodeID(root, id+1)
	return code, nil
}

// GetCode loads a Code record by id.
func GetCode(root storage.Store, id uint64) (Code, error) {
	code, ok, err := codeStore(root).Get(codeKey(id))
	if err != nil {
		return Code{}, err
	}
	if !ok {
		return Code{}, ErrCodeNotFound
	}
	return code, nil
}

// chargeable is the minimal gas-charging surface Upload needs, matching
// contracts/abi.CallContext.ChargeGas's contract but independent of it
// since Upload runs before any guest instance (and thus any
// *abi.CallContext) exists.
type chargeable interface {
	UseGas(amount uint64) error
}
