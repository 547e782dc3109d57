// Package tls implements the TLS Provisioner of spec.md §4.9 (C10): a
// persistent ECDSA-P256 identity, ACME bootstrap, per-domain
// provisioning workers, and the certificate/challenge resolver the TLS
// server consults on every ClientHello.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// IdentityMaxAge bounds how long a persisted identity key is reused:
// LoadOrCreateIdentity replaces a key file older than this with a fresh
// key, per spec.md §4.9 step 1.
const IdentityMaxAge = 7 * 24 * time.Hour

// Identity is the long-lived ECDSA-P256 keypair used both as the TLS
// certificate signing key and to advertise `net.oasis.tls.pk` in
// instance metadata (spec.md §4.9).
type Identity struct {
	mu        sync.RWMutex
	path      string
	key       *ecdsa.PrivateKey
	createdAt time.Time
}

// LoadOrCreateIdentity loads the identity persisted at path, or
// generates and persists a fresh one if path is absent or its on-disk
// age exceeds IdentityMaxAge. A gofrs/flock file lock guards the
// read-or-generate-then-write critical section against concurrent
// provisioner instances sharing the same storage, the same
// cross-process guard spec.md §4.1 already relies on for state
// snapshots.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < IdentityMaxAge {
		if key, err := readIdentityKey(path); err == nil {
			return &Identity{path: path, key: key, createdAt: info.ModTime()}, nil
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := writeIdentityKey(path, key); err != nil {
		return nil, err
	}
	return &Identity{path: path, key: key, createdAt: time.Now()}, nil
}

func readIdentityKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, os.ErrInvalid
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func writeIdentityKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// Signer returns the identity's private key, used both as the ACME
// account/CSR signing key and as the leaf certificate's private key,
// so every certificate issued for this instance shares one advertised
// public key across rotations.
func (id *Identity) Signer() *ecdsa.PrivateKey {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.key
}

// Age reports how long the current identity key has been in use.
func (id *Identity) Age() time.Duration {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return time.Since(id.createdAt)
}

// PublicKeyBytes returns the uncompressed SEC1 encoding of the
// identity's public key, the form advertised as `net.oasis.tls.pk`.
func (id *Identity) PublicKeyBytes() []byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	pub := id.key.PublicKey
	return elliptic.Marshal(pub.Curve, pub.X, pub.Y)
}

// Rotate regenerates and persists a fresh identity key regardless of
// age. The provisioning workers in this package do not call it.
func (id *Identity) Rotate() error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	lock := flock.New(id.path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()
	if err := writeIdentityKey(id.path, key); err != nil {
		return err
	}
	id.mu.Lock()
	id.key = key
	id.createdAt = time.Now()
	id.mu.Unlock()
	return nil
}
