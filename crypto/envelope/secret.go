package envelope

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
)

// nameAD and valueAD are the two distinct associated-data strings used
// when opening a Secret envelope's two fields. Using distinct strings
// prevents cross-field reuse of a ciphertext authenticated for one
// field as if it were the other (spec.md §4.2).
var (
	nameAD  = []byte("name")
	valueAD = []byte("value")
)

// Secret is the transport-layer envelope of spec.md §4.2:
// {pk, nonce, name, value}, sealed to an X25519 recipient.
type Secret struct {
	PK    [32]byte // ephemeral sender X25519 public key
	Nonce [NonceSize]byte
	Name  []byte // ciphertext
	Value []byte // ciphertext
}

// ErrBadRecipientKey is returned when a supplied X25519 key is invalid.
var ErrBadRecipientKey = errors.New("envelope: invalid X25519 key")

// OpenSecret opens s using the recipient's X25519 private scalar sk:
// shared = ECDH(sk, pk), then AEAD_open(shared, nonce, field, AD) for
// each of name and value under their own associated-data string.
func OpenSecret(sk [32]byte, s Secret) (name, value []byte, err error) {
	shared, err := ecdh25519(sk, s.PK)
	if err != nil {
		return nil, nil, err
	}
	aead, err := NewAEAD(shared[:])
	if err != nil {
		return nil, nil, err
	}
	name, err = aead.OpenDetached(s.Nonce, s.Name, nameAD)
	if err != nil {
		return nil, nil, err
	}
	value, err = aead.OpenDetached(s.Nonce, s.Value, valueAD)
	if err != nil {
		return nil, nil, err
	}
	return name, value, nil
}

// SealSecret builds a Secret addressed to recipientPK, encrypting name
// and value under a freshly generated ephemeral X25519 keypair and a
// random nonce. This is the producer side used by whoever writes a
// per-app secret (e.g. the ROFL scheduler), mirrored from the consumer
// side (OpenSecret, which kms.Service.OpenSecret wraps).
func SealSecret(recipientPK [32]byte, name, value []byte) (Secret, error) {
	var skBytes [32]byte
	if _, err := rand.Read(skBytes[:]); err != nil {
		return Secret{}, err
	}
	ephemeralPK, err := curve25519.X25519(skBytes[:], curve25519.Basepoint)
	if err != nil {
		return Secret{}, err
	}

	shared, err := ecdh25519(skBytes, recipientPK)
	if err != nil {
		return Secret{}, err
	}
	aead, err := NewAEAD(shared[:])
	if err != nil {
		return Secret{}, err
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Secret{}, err
	}

	s := Secret{Nonce: nonce}
	copy(s.PK[:], ephemeralPK)
	s.Name = aead.SealDetached(nonce, name, nameAD)
	s.Value = aead.SealDetached(nonce, value, valueAD)
	return s, nil
}

// x25519SymmCustom is the KMAC256 customization string used to turn a
// raw X25519 ECDH output into a symmetric key, keeping this derivation
// domain-separated from the Secret envelope's own shared-secret use.
var x25519SymmCustom = []byte("oasis-runtime-sdk/rofl-appd: x25519 symmetric key v1")

// SymmetricFromSharedSecret derives a 32-byte AEAD key from a raw X25519
// ECDH output. Raw ECDH output must never be used directly as a
// symmetric key; this runs it through the same KMAC256 extract step
// crypto/kdf uses elsewhere, with no salt (the shared secret is already
// high-entropy and unique to the key pair) and a dedicated customization
// string.
func SymmetricFromSharedSecret(shared []byte) [32]byte {
	var out [32]byte
	copy(out[:], kdf.Extract(shared, nil, x25519SymmCustom, len(out)))
	return out
}

// ecdh25519 computes the X25519 shared secret between scalar sk and
// point pk.
func ecdh25519(sk, pk [32]byte) ([32]byte, error) {
	var out [32]byte
	curve := ecdh.X25519()
	privKey, err := curve.NewPrivateKey(sk[:])
	if err != nil {
		return out, ErrBadRecipientKey
	}
	pubKey, err := curve.NewPublicKey(pk[:])
	if err != nil {
		return out, ErrBadRecipientKey
	}
	shared, err := privKey.ECDH(pubKey)
	if err != nil {
		return out, ErrBadRecipientKey
	}
	copy(out[:], shared)
	return out, nil
}
