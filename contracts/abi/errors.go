package abi

import errorsmod "cosmossdk.io/errors"

// ModuleName is the codespace under which contract-ABI errors register.
const ModuleName = "contracts/abi"

var (
	// ErrSubcallDepthExceeded is returned when a subcall would nest
	// deeper than MaxSubcallDepth.
	ErrSubcallDepthExceeded = errorsmod.Register(ModuleName, 1, "subcall depth exceeded")
	// ErrSubcallCountExceeded is returned when a subcall would push the
	// call tree's total subcall count past MaxSubcallCount.
	ErrSubcallCountExceeded = errorsmod.Register(ModuleName, 2, "subcall count exceeded")
	// ErrInvalidSignatureScheme is returned for an unrecognized
	// signature_verify scheme byte.
	ErrInvalidSignatureScheme = errorsmod.Register(ModuleName, 3, "invalid signature scheme")
	// ErrHostFunctionFailed wraps an otherwise-unclassified host function
	// failure (storage.scan with too many iterators already open).
	ErrHostFunctionFailed = errorsmod.Register(ModuleName, 4, "host function failed")
	// ErrMalformedCryptoInput is returned when a crypto namespace call
	// receives a key or nonce of the wrong length, per spec.md §4.5's
	// "malformed key/nonce aborts the call" rule for deoxysii_seal/open.
	ErrMalformedCryptoInput = errorsmod.Register(ModuleName, 5, "malformed crypto input")
	// ErrStorageKeyTooLarge is a non-retryable error aborting the call
	// when a storage key exceeds MaxKeyLength, per spec.md §4.5.
	ErrStorageKeyTooLarge = errorsmod.Register(ModuleName, 6, "storage key too large")
	// ErrStorageValueTooLarge is a non-retryable error aborting the call
	// when a storage value exceeds MaxValueLength, per spec.md §4.5.
	ErrStorageValueTooLarge = errorsmod.Register(ModuleName, 7, "storage value too large")
	// ErrStorageCorrupted wraps a confidential store tag-mismatch,
	// surfaced as a fatal corruption error rather than coerced to
	// "absent", per spec.md §7.
	ErrStorageCorrupted = errorsmod.Register(ModuleName, 8, "confidential store corrupted")
)

// errorsAbiMalformedCrypto wraps ErrMalformedCryptoInput with msg.
func errorsAbiMalformedCrypto(msg string) error {
	return errorsmod.Wrap(ErrMalformedCryptoInput, msg)
}

func errorsAbiStorageKeyTooLarge() error {
	return errorsmod.Wrap(ErrStorageKeyTooLarge, "key exceeds maximum length")
}

func errorsAbiStorageValueTooLarge() error {
	return errorsmod.Wrap(ErrStorageValueTooLarge, "value exceeds maximum length")
}

func errorsAbiCorrupted(err error) error {
	return errorsmod.Wrap(ErrStorageCorrupted, err.Error())
}
