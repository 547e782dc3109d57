// Package kms implements the async root/SEK bootstrap and subkey
// derivation service of spec.md §4.3 (C12).
package kms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cosmossdk.io/log"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/oasisprotocol/oasis-core-rofl/crypto/envelope"
	"github.com/oasisprotocol/oasis-core-rofl/crypto/kdf"
)

// errNotReady is returned by calls made before the service reaches the
// Ready state; callers are expected to WaitReady first.
var errNotReady = errors.New("kms: service not ready")

// state is the lifecycle state machine: Uninitialized -> Initializing -> Ready.
type state int32

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
)

// KeyManager is the consensus-layer key manager collaborator of
// spec.md §6: one call, which fetches or creates the key pair with a
// given key-pair id.
type KeyManager interface {
	GetOrCreateKeys(ctx context.Context, keyPairID []byte) (KeyPair, error)
}

// KeyPair mirrors the consensus key manager's response shape (spec.md §6).
type KeyPair struct {
	StateKey     [32]byte
	InputKeyPair X25519KeyPair
}

// X25519KeyPair is an X25519 public/private key pair.
type X25519KeyPair struct {
	PK [32]byte
	SK [32]byte
}

// backoffBase and backoffCap bound the exponential-backoff-with-jitter
// retry schedule of spec.md §4.3.
const (
	backoffBase = 4 * time.Millisecond
	backoffCap  = 1 * time.Second
)

// Service implements the KMS lifecycle of spec.md §4.3.
type Service struct {
	km     KeyManager
	logger log.Logger

	st state32

	mu      sync.Mutex
	ready   bool
	notify  chan struct{}
	rootKey []byte
	sek     X25519KeyPair
}

// Logger returns a module-tagged logger, matching the
// `Logger(ctx) log.Logger` accessor convention used throughout the
// reference keeper/service implementations this tree is modeled on.
func (s *Service) Logger() log.Logger {
	return s.logger
}

type state32 struct {
	v int32
}

func (s *state32) load() state           { return state(atomic.LoadInt32(&s.v)) }
func (s *state32) cas(old, new state) bool {
	return atomic.CompareAndSwapInt32(&s.v, int32(old), int32(new))
}

// NewService constructs a KMS Service bound to the given consensus key
// manager collaborator. It does not start any background work; call
// Start for that.
func NewService(km KeyManager, logger log.Logger) *Service {
	return &Service{km: km, logger: logger.With("module", "kms"), notify: make(chan struct{})}
}

// Start is idempotent: a CAS from Uninitialized to Initializing either
// wins (drives initialization on the calling goroutine's background
// task) or loses (returns immediately), per spec.md §4.3.
func (s *Service) Start(ctx context.Context) {
	if !s.st.cas(stateUninitialized, stateInitializing) {
		return
	}
	s.logger.Info("starting key manager bootstrap")
	go s.initialize(ctx)
}

func (s *Service) initialize(ctx context.Context) {
	// Two concurrent retried tasks (spec.md §4.3): fetch the root key and
	// the bootstrap SEK in parallel, then join. Neither task actually
	// fails here (retryFetchRoot/retryFetchSEK retry until success or
	// ctx cancellation), so errgroup.Group is used purely as the
	// wait-for-both barrier the teacher/pack reaches for on this exact
	// "run N tasks, wait for all" shape.
	g := new(errgroup.Group)

	g.Go(func() error {
		root := s.retryFetchRoot(ctx)
		s.mu.Lock()
		s.rootKey = root
		s.mu.Unlock()
		return nil
	})

	g.Go(func() error {
		sek := s.retryFetchSEK(ctx)
		s.mu.Lock()
		s.sek = sek
		s.mu.Unlock()
		return nil
	})

	_ = g.Wait()

	s.mu.Lock()
	s.ready = true
	notify := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()

	s.st.cas(stateInitializing, stateReady)
	s.logger.Info("key manager bootstrap complete")
	close(notify)
}

func (s *Service) retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backoffBase
	b.MaxInterval = backoffCap
	b.MaxElapsedTime = 0 // retry until success
	return b
}

// rootKeyPairID is the consensus key-manager key-pair id for the app
// root key, per spec.md §6's bit-stable "root key v1" constant.
var rootKeyPairID = []byte("oasis-runtime-sdk/rofl-appd: root key v1")

func (s *Service) retryFetchRoot(ctx context.Context) []byte {
	var out []byte
	_ = backoff.Retry(func() error {
		kp, err := s.km.GetOrCreateKeys(ctx, rootKeyPairID)
		if err != nil {
			return err
		}
		out = kp.StateKey[:]
		return nil
	}, backoff.WithContext(s.retryBackoff(), ctx))
	return out
}

var sekKeyPairID = []byte("oasis-runtime-sdk/rofl-appd: sek v1")

func (s *Service) retryFetchSEK(ctx context.Context) X25519KeyPair {
	var out X25519KeyPair
	_ = backoff.Retry(func() error {
		kp, err := s.km.GetOrCreateKeys(ctx, sekKeyPairID)
		if err != nil {
			return err
		}
		out = kp.InputKeyPair
		return nil
	}, backoff.WithContext(s.retryBackoff(), ctx))
	return out
}

// WaitReady blocks until both keys are present, or ctx is cancelled.
// It checks the ready flag under the lock before awaiting the
// notification channel to avoid the lost-wakeup race described in
// spec.md §4.3.
func (s *Service) WaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.ready {
			s.mu.Unlock()
			return nil
		}
		notify := s.notify
		s.mu.Unlock()

		select {
		case <-notify:
			// Loop back around: re-check s.ready under the lock rather
			// than assuming this particular notify corresponds to our wait.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Generate derives a key of kind from the app root key, identified by
// keyID. Safe to call concurrently with Generate/OpenSecret once Ready;
// each call holds the lock only long enough to clone the root key.
func (s *Service) Generate(keyID []byte, kind kdf.Kind) (kdf.DerivedKey, error) {
	s.mu.Lock()
	root := append([]byte(nil), s.rootKey...)
	s.mu.Unlock()

	return kdf.DeriveKey(root, keyID, kind)
}

// OpenSecret opens a secret envelope using the bootstrap SEK's private
// scalar. Safe to call concurrently once Ready.
func (s *Service) OpenSecret(secret envelope.Secret) (name, value []byte, err error) {
	s.mu.Lock()
	sk := s.sek.SK
	s.mu.Unlock()

	return envelope.OpenSecret(sk, secret)
}

// IsReady reports the current lifecycle state without blocking.
func (s *Service) IsReady() bool {
	return s.st.load() == stateReady
}

// SEKPrivateKey returns the bootstrap SEK's X25519 private scalar, or
// errNotReady before the service is Ready. contracts/abi's
// crypto.x25519_derive_symmetric does not use it: that host function
// takes both keys from guest memory.
func (s *Service) SEKPrivateKey() (sk [32]byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return sk, errNotReady
	}
	return s.sek.SK, nil
}
