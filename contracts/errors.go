// Package contracts implements the Contracts Module of spec.md §4.6
// (C6): code upload, instance lifecycle (instantiate/call/upgrade),
// call-format decryption, and paginated queries, built on the WASM gas
// transform (wasm/gas), the contract ABI host functions (contracts/abi)
// and the layered store stack (storage).
package contracts

import errorsmod "cosmossdk.io/errors"

// ModuleName is the codespace under which contracts-module errors register.
const ModuleName = "contracts"

var (
	// ErrCodeNotFound is returned when an operation references an
	// unknown CodeID.
	ErrCodeNotFound = errorsmod.Register(ModuleName, 1, "code not found")
	// ErrInstanceNotFound is returned when an operation references an
	// unknown instance address.
	ErrInstanceNotFound = errorsmod.Register(ModuleName, 2, "instance not found")
	// ErrCodeTooLarge is returned when an upload's decompressed size
	// exceeds max_code_size.
	ErrCodeTooLarge = errorsmod.Register(ModuleName, 3, "code exceeds max size")
	// ErrInstantiatePolicyViolation is returned when a caller is not
	// permitted to instantiate a given code.
	ErrInstantiatePolicyViolation = errorsmod.Register(ModuleName, 4, "instantiate policy violation")
	// ErrUpgradeSameCode is returned when an upgrade re-points an
	// instance at its own currently installed code.
	ErrUpgradeSameCode = errorsmod.Register(ModuleName, 5, "upgrade must change code")
	// ErrInstanceUpgrading is returned when an operation other than the
	// upgrade itself observes an instance stuck mid-upgrade.
	ErrInstanceUpgrading = errorsmod.Register(ModuleName, 6, "instance is upgrading")
	// ErrGuestExecutionFailed wraps a trapped or error-returning guest
	// export call (instantiate/call/upgrade/query), carrying the
	// originating module name and code per spec.md §7's propagation
	// rule.
	ErrGuestExecutionFailed = errorsmod.Register(ModuleName, 7, "guest execution failed")
	// ErrBadCallFormat is returned when an encrypted call envelope fails
	// to decrypt or is malformed.
	ErrBadCallFormat = errorsmod.Register(ModuleName, 8, "bad call format")
	// ErrRawStorageQueryTooLarge is returned when an InstanceRawStorage
	// query's requested item count exceeds max_instance_raw_storage_query_items.
	ErrRawStorageQueryTooLarge = errorsmod.Register(ModuleName, 9, "raw storage query too large")
)

// wrapErr wraps base with msg, the same cosmossdk.io/errors convention
// contracts/abi's error helpers use.
func wrapErr(base error, msg string) error {
	return errorsmod.Wrap(base, msg)
}
