package rofl

import (
	"github.com/fxamacker/cbor"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
)

// Scope selects how DeriveKey's scoped-derivation input binds
// additional entropy into the derived key, per spec.md §4.7.
type Scope byte

const (
	// ScopeGlobal does not mix in any additional entropy: every
	// instance of the app derives the same key for a given keyID.
	ScopeGlobal Scope = 0
	// ScopeNode binds the derived key to the calling registration's
	// node_id.
	ScopeNode Scope = 1
	// ScopeEntity binds the derived key to the calling registration's
	// entity_id (DeriveKey fails if the registration has none).
	ScopeEntity Scope = 2
)

// scopeExtension is the CBOR-encoded extra domain spec.md §4.7
// describes: "{"scope": byte, "node_id"|"entity_id": bytes}". Exactly
// one of NodeID/EntityID is populated, selected by Scope; omitempty
// keeps ScopeGlobal's encoding to just the scope byte.
type scopeExtension struct {
	Scope    byte   `cbor:"scope"`
	NodeID   []byte `cbor:"node_id,omitempty"`
	EntityID []byte `cbor:"entity_id,omitempty"`
}

var scopeExtCBOROpts = cbor.EncOptions{Canonical: true}

// deriveKeyContext domain-separates DeriveKey's key_id extension from
// every other KMS.Generate caller in this package.
const deriveKeyContext = "rofl-derive-key/v1"

// DeriveKey implements spec.md §4.7's DeriveKey operation: callable only
// from an encrypted call format, and only by a currently-registered,
// unexpired instance of app (identified by its RAK). The scoped
// derivation input CBOR-encodes scope (and the registration's node_id
// or entity_id, for ScopeNode/ScopeEntity) into the KDF's key_id, so
// scoping is cryptographically enforced rather than merely checked here.
func (m *Module) DeriveKey(app AppId, callerRAK []byte, encryptedCall bool, currentEpoch Epoch, scope Scope, keyID []byte, kind kdf.Kind) (kdf.DerivedKey, error) {
	if !encryptedCall {
		return kdf.DerivedKey{}, ErrNotEncrypted
	}

	reg, ok, err := m.Registrations.Get(registrationKey(app, callerRAK))
	if err != nil {
		return kdf.DerivedKey{}, err
	}
	if !ok || reg.Expiration <= currentEpoch {
		return kdf.DerivedKey{}, ErrNotRegistered
	}

	ext := scopeExtension{Scope: byte(scope)}
	switch scope {
	case ScopeNode:
		ext.NodeID = reg.NodeID[:]
	case ScopeEntity:
		if reg.EntityID == nil {
			return kdf.DerivedKey{}, ErrUnknownEntity
		}
		ext.EntityID = reg.EntityID[:]
	}
	extBytes, err := cbor.Marshal(ext, scopeExtCBOROpts)
	if err != nil {
		return kdf.DerivedKey{}, err
	}

	fullKeyID := make([]byte, 0, len(deriveKeyContext)+len(app.Bytes())+len(keyID)+len(extBytes))
	fullKeyID = append(fullKeyID, []byte(deriveKeyContext)...)
	fullKeyID = append(fullKeyID, app.Bytes()...)
	fullKeyID = append(fullKeyID, keyID...)
	fullKeyID = append(fullKeyID, extBytes...)

	return m.KMS.Generate(fullKeyID, kind)
}
