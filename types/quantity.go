package types

import "math/big"

// Quantity is an arbitrary-precision, always-non-negative integer used for
// token amounts and gas costs, mirroring the u128 values of spec.md §3.
//
// It wraps math/big.Int rather than holiman/uint256 because account
// balances here are ledger-facing values exchanged with the external
// account/balance module (spec.md §1), not EVM stack words; evm/ uses
// uint256 directly where it talks to go-ethereum.
type Quantity struct {
	i big.Int
}

// NewQuantity builds a Quantity from a uint64.
func NewQuantity(v uint64) Quantity {
	var q Quantity
	q.i.SetUint64(v)
	return q
}

// NewQuantityFromBytes builds a Quantity from a big-endian byte slice.
func NewQuantityFromBytes(b []byte) Quantity {
	var q Quantity
	q.i.SetBytes(b)
	return q
}

// Bytes returns the big-endian byte representation, with no leading zeros.
func (q Quantity) Bytes() []byte {
	return q.i.Bytes()
}

// IsZero reports whether q is zero.
func (q Quantity) IsZero() bool {
	return q.i.Sign() == 0
}

// Cmp compares q to other, returning -1, 0, or 1.
func (q Quantity) Cmp(other Quantity) int {
	return q.i.Cmp(&other.i)
}

// Add returns q + other as a new Quantity.
func (q Quantity) Add(other Quantity) Quantity {
	var r Quantity
	r.i.Add(&q.i, &other.i)
	return r
}

// Sub returns q - other as a new Quantity. Panics if the result would be
// negative: callers must check Cmp first, as an underflow here indicates
// an accounting bug rather than a recoverable condition.
func (q Quantity) Sub(other Quantity) Quantity {
	if q.Cmp(other) < 0 {
		panic("types: quantity underflow")
	}
	var r Quantity
	r.i.Sub(&q.i, &other.i)
	return r
}

// Mul returns q * other as a new Quantity.
func (q Quantity) Mul(other Quantity) Quantity {
	var r Quantity
	r.i.Mul(&q.i, &other.i)
	return r
}

// String renders the quantity in base 10.
func (q Quantity) String() string {
	return q.i.String()
}

// BigInt returns a copy of the underlying big.Int.
func (q Quantity) BigInt() *big.Int {
	return new(big.Int).Set(&q.i)
}
