package types

import errorsmod "cosmossdk.io/errors"

// ModuleName is the codespace under which shared data-model errors register.
const ModuleName = "types"

var (
	// ErrInvalidDenomination is returned for a malformed or disallowed
	// denomination string.
	ErrInvalidDenomination = errorsmod.Register(ModuleName, 1, "invalid denomination")
	// ErrInsufficientFunds is returned when a transfer would overdraw an account.
	ErrInsufficientFunds = errorsmod.Register(ModuleName, 2, "insufficient funds")
	// ErrInvalidNonce is returned when a transaction's nonce does not match
	// the account's expected next nonce.
	ErrInvalidNonce = errorsmod.Register(ModuleName, 3, "invalid nonce")
)

// Denomination is an opaque byte-string token identifier. The empty
// denomination names the runtime's native token.
type Denomination string

// NativeDenomination is the empty denomination naming the native token.
const NativeDenomination Denomination = ""

// IsNative reports whether d names the native token.
func (d Denomination) IsNative() bool {
	return d == NativeDenomination
}

// BaseUnits is the value type transferred between accounts: an amount of
// a single denomination expressed in the token's smallest unit.
//
// Amount is a Quantity (a math/big.Int) to stay consistent with the account/balance ledger's own representation
// (an external collaborator, spec.md §1) without importing it; modules
// that need u128 semantics treat Amount as an arbitrary-precision,
// always-non-negative integer.
type BaseUnits struct {
	Amount     Quantity
	Denomination Denomination
}

// NewBaseUnits constructs a BaseUnits value.
func NewBaseUnits(amount Quantity, denom Denomination) BaseUnits {
	return BaseUnits{Amount: amount, Denomination: denom}
}

// Account is the per-address bookkeeping record. Nonces are strictly
// monotonically increasing.
//
// The account/balance ledger itself is an external collaborator
// (spec.md §1); this type is the shape modules exchange with it through
// the Accounts interface below, not a store of record this module owns.
type Account struct {
	Nonce    uint64
	Balances map[Denomination]Quantity
}

// ExpectedNonce validates that nonce is exactly the account's next nonce.
func (a Account) ExpectedNonce(nonce uint64) error {
	if nonce != a.Nonce {
		return ErrInvalidNonce
	}
	return nil
}

// Accounts is the external collaborator interface through which modules
// observe and move balances. It is implemented by the embedding
// runtime's account/balance bookkeeping module (out of scope here).
type Accounts interface {
	// Balance returns the current balance of addr in denom.
	Balance(addr Address, denom Denomination) (Quantity, error)
	// Transfer moves amount from from to to, failing with
	// ErrInsufficientFunds if from's balance is too low.
	Transfer(from, to Address, amount BaseUnits) error
	// Nonce returns the current (next-expected) nonce of addr.
	Nonce(addr Address) uint64
}
