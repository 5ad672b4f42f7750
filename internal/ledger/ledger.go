// Package ledger defines the boundary to the shared append-only ledger:
// account reads, operation submission, and finality confirmation. The
// ledger owns all persistent records; everything a client reads is a
// disposable snapshot that may be stale the instant after it is returned.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"voteledger/internal/pubkey"
)

// Account is a snapshot of a uniquely addressed slot of state.
type Account struct {
	Address pubkey.PublicKey
	Owner   pubkey.PublicKey // program that owns the slot
	Data    []byte
}

// Finality is the level of inclusion guarantee a caller waits for.
type Finality string

const (
	// FinalityProcessed means the operation was seen by the connected node.
	FinalityProcessed Finality = "processed"
	// FinalityConfirmed means a supermajority of the network voted on the
	// block containing the operation.
	FinalityConfirmed Finality = "confirmed"
	// FinalityFinalized means the block can no longer be rolled back.
	FinalityFinalized Finality = "finalized"
)

// ParseFinality validates a finality level from configuration or an API
// request.
func ParseFinality(s string) (Finality, error) {
	switch Finality(s) {
	case FinalityProcessed, FinalityConfirmed, FinalityFinalized:
		return Finality(s), nil
	default:
		return "", fmt.Errorf("unknown finality level %q", s)
	}
}

// Anchor pins an operation to a recent point in the chain. An operation
// built against an anchor expires once the chain height passes
// LastValidHeight without including it.
type Anchor struct {
	Hash            [32]byte
	LastValidHeight uint64
}

// Handle identifies a submitted operation for confirmation.
type Handle struct {
	Signature [64]byte
	Anchor    Anchor
}

// Error taxonomy shared across every ledger backend. Components decide
// behavior with errors.Is against these sentinels, never by matching
// message text.
var (
	// ErrNotFound: no account exists at the address. Expected on the
	// provisioning path; not a failure.
	ErrNotFound = errors.New("ledger: account not found")

	// ErrInvalidOwner: an account exists but is owned by no program (a
	// placeholder left by a prior failed creation). Treated like
	// ErrNotFound by provisioning.
	ErrInvalidOwner = errors.New("ledger: account has invalid owner")

	// ErrAlreadyExists: a creation operation lost a provisioning race.
	// Benign; the winner's account is re-read.
	ErrAlreadyExists = errors.New("ledger: account already exists")

	// ErrInsufficientFunds: the ledger rejected a transfer. Surfaced to
	// the caller verbatim, never retried.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrConfirmTimeout: finality was not observed within the deadline.
	// The operation is indeterminate, not failed: re-read state before
	// acting.
	ErrConfirmTimeout = errors.New("ledger: confirmation timed out")

	// ErrAnchorExpired: the chain height passed the operation's anchor
	// without inclusion being observed. Also indeterminate.
	ErrAnchorExpired = errors.New("ledger: operation anchor expired")
)

// Indeterminate reports whether an error means the operation's outcome is
// unknown rather than known-failed. Callers must re-read authoritative
// state instead of resubmitting.
func Indeterminate(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) || errors.Is(err, ErrAnchorExpired)
}

// Reader is the ledger read interface.
type Reader interface {
	// ReadAccount returns the latest observed snapshot at the reader's
	// finality level, or ErrNotFound.
	ReadAccount(ctx context.Context, address pubkey.PublicKey) (Account, error)

	// ListProgramAccounts enumerates accounts owned by a program whose
	// data begins with the given prefix. Order is unspecified.
	ListProgramAccounts(ctx context.Context, programID pubkey.PublicKey, dataPrefix []byte) ([]Account, error)
}

// Submitter is the ledger write interface. Submit sends signed bytes and
// returns immediately; AwaitFinality blocks the calling flow until the
// operation is included at the requested level or an error above applies.
// Confirmation is purely observational - it causes no ledger mutation.
type Submitter interface {
	Submit(ctx context.Context, signedOperation []byte) (Handle, error)
	AwaitFinality(ctx context.Context, handle Handle, level Finality) error
}

// Client is the full ledger boundary used by the rest of the system.
type Client interface {
	Reader
	Submitter

	// LatestAnchor returns a fresh anchor to build operations against.
	LatestAnchor(ctx context.Context) (Anchor, error)
}
