package tls_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	roflTLS "github.com/oasisprotocol/oasis-core-rofl/tls"
)

func TestLoadOrCreateIdentityPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity")

	id1, err := roflTLS.LoadOrCreateIdentity(path)
	require.NoError(t, err)
	require.Len(t, id1.PublicKeyBytes(), 65) // uncompressed P-256 point

	id2, err := roflTLS.LoadOrCreateIdentity(path)
	require.NoError(t, err)
	require.Equal(t, id1.PublicKeyBytes(), id2.PublicKeyBytes())
}

func TestLoadOrCreateIdentityRotatesWhenStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity")

	id1, err := roflTLS.LoadOrCreateIdentity(path)
	require.NoError(t, err)
	old := id1.PublicKeyBytes()

	// Back-date the file beyond IdentityMaxAge so the next load
	// regenerates rather than reusing it.
	stale := time.Now().Add(-roflTLS.IdentityMaxAge - time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))

	id2, err := roflTLS.LoadOrCreateIdentity(path)
	require.NoError(t, err)
	require.NotEqual(t, old, id2.PublicKeyBytes())
}

func TestIdentityRotateChangesKeyInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity")

	id, err := roflTLS.LoadOrCreateIdentity(path)
	require.NoError(t, err)
	before := id.PublicKeyBytes()

	require.NoError(t, id.Rotate())
	require.NotEqual(t, before, id.PublicKeyBytes())

	reloaded, err := roflTLS.LoadOrCreateIdentity(path)
	require.NoError(t, err)
	require.Equal(t, id.PublicKeyBytes(), reloaded.PublicKeyBytes())
}

// selfSignedCert builds a minimal self-signed leaf good enough for
// resolver plumbing tests, which only exercise map lookups, never
// chain/trust validation.
func selfSignedCert(t *testing.T, sni string) *tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		DNSNames:     []string{sni},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestResolverSelectsChallengeCertOnlyForACMEALPN(t *testing.T) {
	r, err := roflTLS.NewResolver(8)
	require.NoError(t, err)

	regular := selfSignedCert(t, "example.test")
	challenge := selfSignedCert(t, "example.test")
	r.PublishChallenge("example.test", challenge)
	r.PublishCertificate("example.test", regular)

	// Publishing the regular certificate must have cleared the
	// challenge entry implicitly (spec.md §4.9).
	_, err = r.GetCertificate(&tls.ClientHelloInfo{ServerName: "example.test", SupportedProtos: []string{"acme-tls/1"}})
	require.ErrorIs(t, err, roflTLS.ErrNoCertificate)

	got, err := r.GetCertificate(&tls.ClientHelloInfo{ServerName: "example.test"})
	require.NoError(t, err)
	require.Equal(t, regular, got)
}

func TestResolverRemoveDropsBothMaps(t *testing.T) {
	r, err := roflTLS.NewResolver(8)
	require.NoError(t, err)

	cert := selfSignedCert(t, "gone.test")
	r.PublishCertificate("gone.test", cert)
	r.PublishChallenge("gone.test", cert)

	r.Remove("gone.test")

	_, err = r.GetCertificate(&tls.ClientHelloInfo{ServerName: "gone.test"})
	require.ErrorIs(t, err, roflTLS.ErrNoCertificate)
	_, err = r.GetCertificate(&tls.ClientHelloInfo{ServerName: "gone.test", SupportedProtos: []string{"acme-tls/1"}})
	require.ErrorIs(t, err, roflTLS.ErrNoCertificate)
}

func TestResolverUnknownSNIIsNoCertificate(t *testing.T) {
	r, err := roflTLS.NewResolver(8)
	require.NoError(t, err)
	_, err = r.GetCertificate(&tls.ClientHelloInfo{ServerName: "unknown.test"})
	require.ErrorIs(t, err, roflTLS.ErrNoCertificate)
}
