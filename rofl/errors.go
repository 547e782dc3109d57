// Package rofl implements the ROFL Core module of spec.md §4.7 (C8):
// app creation, TEE instance registration, scoped key derivation, fee
// proxying and registration expiration, built on the KDF/KMS stack
// (crypto/kdf, kms) and the layered store stack (storage).
//
// TEE quote verification and the consensus node/entity registry are
// deliberately not reimplemented here (spec.md §1 lists both as
// external collaborators): this package only defines the QuoteVerifier
// and ConsensusRegistry interfaces it needs from them.
package rofl

import errorsmod "cosmossdk.io/errors"

// ModuleName is the codespace under which rofl-module errors register.
const ModuleName = "rofl"

var (
	// ErrAppAlreadyExists is returned by Create when the derived AppId
	// already has an AppConfig on file.
	ErrAppAlreadyExists = errorsmod.Register(ModuleName, 1, "app already exists")
	// ErrAppNotFound is returned when an operation references an
	// unknown AppId.
	ErrAppNotFound = errorsmod.Register(ModuleName, 2, "app not found")
	// ErrExpirationOutOfBounds is returned when a Register request's
	// expiration fails step 1 of the verification pipeline.
	ErrExpirationOutOfBounds = errorsmod.Register(ModuleName, 3, "registration expiration out of bounds")
	// ErrBadSignature is returned when the RAK or an extra key's
	// co-signature fails to verify.
	ErrBadSignature = errorsmod.Register(ModuleName, 4, "bad registration signature")
	// ErrQuoteInvalid is returned when the endorsed capability's quote
	// fails verification under the app's quote policy.
	ErrQuoteInvalid = errorsmod.Register(ModuleName, 5, "quote verification failed")
	// ErrEnclaveNotAllowed is returned when the quoted enclave identity
	// is not in the app's enclave allow-list.
	ErrEnclaveNotAllowed = errorsmod.Register(ModuleName, 6, "enclave identity not allowed")
	// ErrNodeNotAllowed is returned when endorsement resolution fails:
	// the endorsing node is absent from, or not qualified by, the
	// consensus registry for the rule in question.
	ErrNodeNotAllowed = errorsmod.Register(ModuleName, 7, "endorsing node not allowed")
	// ErrNotEncrypted is returned by DeriveKey when the call was not
	// made in an encrypted call format.
	ErrNotEncrypted = errorsmod.Register(ModuleName, 8, "derive_key requires an encrypted call")
	// ErrNotRegistered is returned by DeriveKey when the caller has no
	// live registration for the app.
	ErrNotRegistered = errorsmod.Register(ModuleName, 9, "instance is not registered")
	// ErrUnknownEntity is returned by DeriveKey's Entity scope when the
	// registration has no entity_id.
	ErrUnknownEntity = errorsmod.Register(ModuleName, 10, "registration has no entity_id")
	// ErrNoFeeProxy is returned by ResolveFeeProxy when the transaction
	// does not qualify for proxying under the app's fee policy.
	ErrNoFeeProxy = errorsmod.Register(ModuleName, 11, "no fee proxy for transaction")
)
