package tls

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/acme"
)

// acmeRetryInterval is the fixed retry delay spec.md §4.9 step 2
// requires for account bootstrap, distinct from provisioning's
// exponential backoff.
const acmeRetryInterval = 1 * time.Second

// BootstrapAccount registers (or recovers an already-registered)
// ACME account on client.Key, retrying with a fixed 1s delay until it
// succeeds, per spec.md §4.9: "Bootstrap an ACME account (retry with
// fixed 1 s delay until success)."
func BootstrapAccount(ctx context.Context, client *acme.Client) (*acme.Account, error) {
	var account *acme.Account
	b := backoff.WithContext(backoff.NewConstantBackOff(acmeRetryInterval), ctx)
	err := backoff.Retry(func() error {
		acc, err := client.Register(ctx, &acme.Account{}, acme.AcceptTOS)
		if err != nil && !errors.Is(err, acme.ErrAccountAlreadyExists) {
			return err
		}
		if err != nil {
			acc, err = client.GetReg(ctx, "")
			if err != nil {
				return err
			}
		}
		account = acc
		return nil
	}, b)
	return account, err
}
