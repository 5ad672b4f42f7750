// Package provision implements get-or-create for accounts at derived
// addresses. The protocol is deliberately not exclusive: any number of
// clients may race to create the same address, and the ledger's atomic
// commit picks the single winner. Losers observe "already exists", which
// this package treats as success-by-other-means.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voteledger/internal/ledger"
	"voteledger/internal/metrics"
	"voteledger/internal/pubkey"
)

// Provisioning errors.
var (
	// ErrCreationFailed: the account was still absent after a confirmed
	// creation attempt and re-read.
	ErrCreationFailed = errors.New("provision: account missing after creation")

	// ErrMismatch: the account at the derived address does not carry the
	// expected ownership. This means derivation drift or seed corruption
	// and is never tolerated.
	ErrMismatch = errors.New("provision: account does not match expectation")
)

// Expectation is what a freshly read account must look like. Validate is
// called on every successful read, found or created.
type Expectation struct {
	// Program that must own the account.
	Program pubkey.PublicKey

	// Validate inspects the snapshot data. Nil means owner check only.
	Validate func(acct ledger.Account) error
}

// CreateFunc builds, signs and submits the creation operation, returning
// the handle to confirm. It is invoked at most once per GetOrCreate call.
type CreateFunc func(ctx context.Context) (ledger.Handle, error)

// Provisioner runs the get-or-create state machine against a ledger.
type Provisioner struct {
	client   ledger.Client
	finality ledger.Finality
}

// New builds a Provisioner confirming creations at the given finality.
func New(client ledger.Client, finality ledger.Finality) *Provisioner {
	return &Provisioner{client: client, finality: finality}
}

// GetOrCreate returns the account at address, creating it first if it
// does not exist. State machine:
//
//	Reading -> Found: validate, done
//	        -> NotFound/InvalidOwner -> Creating -> Confirming -> Reading
//
// Bounded to one creation attempt. An "already exists" rejection of the
// creation is a lost race: the winner's account is re-read and returned.
// An indeterminate confirmation also falls through to the re-read, since
// the operation may well have applied.
func (p *Provisioner) GetOrCreate(ctx context.Context, address pubkey.PublicKey, expect Expectation, create CreateFunc) (ledger.Account, error) {
	metrics.ProvisionAttempts.Inc()

	acct, err := p.client.ReadAccount(ctx, address)
	switch {
	case err == nil && !acct.Owner.IsZero():
		// Common path: already provisioned, no write performed.
		return p.validated(acct, expect)

	case err == nil, errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrInvalidOwner):
		// err == nil with a zero owner is the placeholder an interrupted
		// creation leaves behind; treat it like absence.

	default:
		return ledger.Account{}, fmt.Errorf("provision: reading %s: %w", address, err)
	}

	slog.Debug("Account not found, provisioning", "address", address)

	handle, err := create(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrAlreadyExists) {
			return ledger.Account{}, fmt.Errorf("provision: creating %s: %w", address, err)
		}
		// Lost the race; another client created the account between our
		// read and our submit.
		metrics.ProvisionRaces.Inc()
		slog.Debug("Creation lost provisioning race", "address", address)
	} else {
		if err := p.client.AwaitFinality(ctx, handle, p.finality); err != nil {
			if !ledger.Indeterminate(err) {
				return ledger.Account{}, fmt.Errorf("provision: confirming creation of %s: %w", address, err)
			}
			// Outcome unknown: never resubmit, re-read instead.
			metrics.ConfirmTimeouts.Inc()
			slog.Warn("Creation confirmation indeterminate, re-reading",
				"address", address,
				"error", err,
			)
		}
	}

	acct, err = p.client.ReadAccount(ctx, address)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Account{}, fmt.Errorf("%w: %s", ErrCreationFailed, address)
		}
		return ledger.Account{}, fmt.Errorf("provision: re-reading %s: %w", address, err)
	}
	if acct.Owner.IsZero() {
		return ledger.Account{}, fmt.Errorf("%w: %s", ErrCreationFailed, address)
	}

	return p.validated(acct, expect)
}

func (p *Provisioner) validated(acct ledger.Account, expect Expectation) (ledger.Account, error) {
	if !expect.Program.IsZero() && acct.Owner != expect.Program {
		return ledger.Account{}, fmt.Errorf("%w: %s owned by %s, want %s",
			ErrMismatch, acct.Address, acct.Owner, expect.Program)
	}
	if expect.Validate != nil {
		if err := expect.Validate(acct); err != nil {
			return ledger.Account{}, fmt.Errorf("%w: %s: %s", ErrMismatch, acct.Address, err)
		}
	}
	return acct, nil
}
