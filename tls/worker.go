package tls

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/acme"
)

// commandQueueCapacity is the bounded channel depth of spec.md §4.9's
// "Single command channel (bounded, capacity 16)".
const commandQueueCapacity = 16

// CommandKind selects Provisioner's single command channel's two
// message shapes, per spec.md §4.9.
type CommandKind byte

const (
	CommandAddDomain CommandKind = iota
	CommandRemoveDomain
)

// Command is one entry of the provisioner's command channel:
// AddDomain(sni) | RemoveDomain(sni).
type Command struct {
	Kind CommandKind
	SNI  string
}

// tlsALPN01ChallengeType is the ACME challenge type spec.md §4.9
// requires: "select a TLS-ALPN-01 authorization."
const tlsALPN01ChallengeType = "tls-alpn-01"

// Provisioner is the long-lived asynchronous service of spec.md §4.9:
// one worker goroutine per added domain, each independently
// provisioning and rotating its own certificate.
type Provisioner struct {
	Identity   *Identity
	Client     *acme.Client
	Resolver   *Resolver
	StorageDir string
	logger     log.Logger

	Commands chan Command

	mu      sync.Mutex
	workers map[string]context.CancelFunc
}

// NewProvisioner constructs a Provisioner. Run must be started on a
// background goroutine to actually drain Commands.
func NewProvisioner(identity *Identity, client *acme.Client, resolver *Resolver, storageDir string, logger log.Logger) *Provisioner {
	return &Provisioner{
		Identity:   identity,
		Client:     client,
		Resolver:   resolver,
		StorageDir: storageDir,
		logger:     logger.With("module", "tls"),
		Commands:   make(chan Command, commandQueueCapacity),
		workers:    map[string]context.CancelFunc{},
	}
}

// AddDomain enqueues a request to provision and maintain a
// certificate for sni.
func (p *Provisioner) AddDomain(sni string) {
	p.Commands <- Command{Kind: CommandAddDomain, SNI: sni}
}

// RemoveDomain enqueues a request to abort sni's worker and drop its
// resolver entries, per spec.md §4.9.
func (p *Provisioner) RemoveDomain(sni string) {
	p.Commands <- Command{Kind: CommandRemoveDomain, SNI: sni}
}

// Run drains the command channel until ctx is cancelled, spawning and
// tearing down per-domain workers.
func (p *Provisioner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.stopAll()
			return
		case cmd := <-p.Commands:
			switch cmd.Kind {
			case CommandAddDomain:
				p.startWorker(ctx, cmd.SNI)
			case CommandRemoveDomain:
				p.stopWorker(cmd.SNI)
			}
		}
	}
}

func (p *Provisioner) startWorker(parent context.Context, sni string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.workers[sni]; exists {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.workers[sni] = cancel
	go p.worker(ctx, sni)
}

func (p *Provisioner) stopWorker(sni string) {
	p.mu.Lock()
	cancel, ok := p.workers[sni]
	delete(p.workers, sni)
	p.mu.Unlock()
	if ok {
		cancel()
	}
	p.Resolver.Remove(sni)
}

func (p *Provisioner) stopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sni, cancel := range p.workers {
		cancel()
		delete(p.workers, sni)
	}
}

func (p *Provisioner) certPath(sni string) string {
	return filepath.Join(p.StorageDir, sni+".pem")
}

// worker is spec.md §4.9's per-domain loop: load-or-provision, sleep
// until one-third validity remains, re-provision, forever. A failed
// provision attempt retries with exponential backoff rather than
// advancing the loop, per "On failure, exponential backoff and retry
// indefinitely."
func (p *Provisioner) worker(ctx context.Context, sni string) {
	retry := backoff.NewExponentialBackOff()
	for {
		cert, leaf, err := p.loadPersisted(sni)
		if err == nil && time.Now().Before(rotationPoint(leaf)) {
			p.Resolver.PublishCertificate(sni, cert)
			if !sleepUntil(ctx, rotationPoint(leaf)) {
				return
			}
			continue
		}

		if err := p.provision(ctx, sni); err != nil {
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				wait = retry.MaxInterval
			}
			p.logger.Error("certificate provisioning failed, retrying", "sni", sni, "err", err, "backoff", wait)
			if !sleepFor(ctx, wait) {
				return
			}
			continue
		}
		p.logger.Info("certificate provisioned", "sni", sni)
		retry.Reset()
	}
}

// rotationPoint is the instant at which two-thirds of leaf's validity
// has elapsed, i.e. one-third remains, per spec.md §4.9.
func rotationPoint(leaf *x509.Certificate) time.Time {
	total := leaf.NotAfter.Sub(leaf.NotBefore)
	return leaf.NotAfter.Add(-total / 3)
}

func sleepUntil(ctx context.Context, when time.Time) bool {
	return sleepFor(ctx, time.Until(when))
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provisioner) loadPersisted(sni string) (*tls.Certificate, *x509.Certificate, error) {
	raw, err := os.ReadFile(p.certPath(sni))
	if err != nil {
		return nil, nil, err
	}
	var der [][]byte
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		der = append(der, block.Bytes)
	}
	if len(der) == 0 {
		return nil, nil, fmt.Errorf("tls: no certificate blocks in %s", p.certPath(sni))
	}
	leaf, err := x509.ParseCertificate(der[0])
	if err != nil {
		return nil, nil, err
	}
	cert := &tls.Certificate{Certificate: der, PrivateKey: p.Identity.Signer(), Leaf: leaf}
	return cert, leaf, nil
}

func (p *Provisioner) persist(sni string, der [][]byte) error {
	var buf []byte
	for _, d := range der {
		buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: d})...)
	}
	return os.WriteFile(p.certPath(sni), buf, 0o600)
}

// provision runs spec.md §4.9's ACME order flow for sni: open order,
// select TLS-ALPN-01, publish the ephemeral challenge certificate,
// signal, poll to Ready, CSR-sign with the persistent identity key,
// finalize, persist, publish.
func (p *Provisioner) provision(ctx context.Context, sni string) error {
	order, err := p.Client.AuthorizeOrder(ctx, acme.DomainIDs(sni))
	if err != nil {
		return err
	}

	for _, zurl := range order.AuthzURLs {
		authz, err := p.Client.GetAuthorization(ctx, zurl)
		if err != nil {
			return err
		}
		if authz.Status == acme.StatusValid {
			continue
		}

		var chal *acme.Challenge
		for _, c := range authz.Challenges {
			if c.Type == tlsALPN01ChallengeType {
				chal = c
				break
			}
		}
		if chal == nil {
			return fmt.Errorf("tls: no tls-alpn-01 challenge offered for %s", sni)
		}

		challengeCert, err := p.Client.TLSALPN01ChallengeCert(chal.Token, sni)
		if err != nil {
			return err
		}
		p.Resolver.PublishChallenge(sni, &challengeCert)

		if _, err := p.Client.Accept(ctx, chal); err != nil {
			return err
		}
		if _, err := p.Client.WaitAuthorization(ctx, zurl); err != nil {
			return err
		}
	}

	order, err = p.Client.WaitOrder(ctx, order.URI)
	if err != nil {
		return err
	}

	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{DNSNames: []string{sni}}, p.Identity.Signer())
	if err != nil {
		return err
	}
	der, _, err := p.Client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return err
	}

	if err := p.persist(sni, der); err != nil {
		return err
	}
	leaf, err := x509.ParseCertificate(der[0])
	if err != nil {
		return err
	}
	p.Resolver.PublishCertificate(sni, &tls.Certificate{Certificate: der, PrivateKey: p.Identity.Signer(), Leaf: leaf})
	return nil
}
