package evm

import "github.com/fxamacker/cbor"

var accountCBOROpts = cbor.EncOptions{Canonical: true}

// encodeAccount and decodeAccount use the same canonical CBOR
// convention as storage.TypedStore (C1, spec.md §4.1) rather than a
// bespoke binary layout, so an account row on disk round-trips the same
// way every other persisted record in this runtime does.
func encodeAccount(a Account) []byte {
	raw, err := cbor.Marshal(a, accountCBOROpts)
	if err != nil {
		panic(err)
	}
	return raw
}

func decodeAccount(raw []byte) Account {
	var a Account
	if err := cbor.Unmarshal(raw, &a); err != nil {
		panic(err)
	}
	return a
}
