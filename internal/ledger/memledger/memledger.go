// Package memledger is a deterministic in-process ledger implementing the
// same read/submit/confirm boundary as a remote node, plus the two
// on-ledger programs this system invokes. Package tests use it as the
// arbiter for provisioning races; dev mode runs against it.
package memledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"voteledger/internal/ledger"
	"voteledger/internal/operation"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/token"
)

// anchorValidFor is how many heights an anchor stays usable.
const anchorValidFor = 150

// Ledger is an in-memory ledger. All submissions serialize under one
// mutex, which is exactly the atomic-commit arbitration the protocol
// relies on: of two racing creations, one commits and one observes
// ErrAlreadyExists.
type Ledger struct {
	voteProgram  pubkey.PublicKey
	tokenProgram pubkey.PublicKey
	assocProgram pubkey.PublicKey

	// StatusDelay hides an applied operation's confirmation status for a
	// window after submission, to simulate a confirm-wait that times out
	// even though the operation landed. Zero means instant visibility.
	StatusDelay time.Duration

	mu        sync.Mutex
	height    uint64
	accounts  map[pubkey.PublicKey]ledger.Account
	statuses  map[[operation.SignatureSize]byte]opStatus
	creations map[pubkey.PublicKey]int // successful account creations per address
}

type opStatus struct {
	height    uint64
	appliedAt time.Time
}

// New builds an empty ledger with the built-in program identities.
func New() *Ledger {
	return &Ledger{
		voteProgram:  registry.DefaultProgramID,
		tokenProgram: token.DefaultProgramID,
		assocProgram: token.DefaultAssociationProgramID,
		accounts:     make(map[pubkey.PublicKey]ledger.Account),
		statuses:     make(map[[operation.SignatureSize]byte]opStatus),
		creations:    make(map[pubkey.PublicKey]int),
	}
}

var _ ledger.Client = (*Ledger)(nil)

// ReadAccount returns a snapshot copy of the account at address.
func (l *Ledger) ReadAccount(ctx context.Context, address pubkey.PublicKey) (ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[address]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return snapshot(acct), nil
}

// ListProgramAccounts returns snapshots of accounts owned by programID
// whose data begins with dataPrefix.
func (l *Ledger) ListProgramAccounts(ctx context.Context, programID pubkey.PublicKey, dataPrefix []byte) ([]ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ledger.Account
	for _, acct := range l.accounts {
		if acct.Owner != programID {
			continue
		}
		if len(acct.Data) < len(dataPrefix) {
			continue
		}
		if string(acct.Data[:len(dataPrefix)]) != string(dataPrefix) {
			continue
		}
		out = append(out, snapshot(acct))
	}
	return out, nil
}

// LatestAnchor returns an anchor pinned to the current height.
func (l *Ledger) LatestAnchor(ctx context.Context) (ledger.Anchor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var anchor ledger.Anchor
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], l.height)
	anchor.Hash = sha256.Sum256(h[:])
	anchor.LastValidHeight = l.height + anchorValidFor
	return anchor, nil
}

// Submit verifies, executes and commits a signed operation. All
// instructions apply atomically: any instruction error discards every
// staged mutation and nothing is committed.
func (l *Ledger) Submit(ctx context.Context, signedOperation []byte) (ledger.Handle, error) {
	signed, err := operation.DecodeSigned(signedOperation)
	if err != nil {
		return ledger.Handle{}, err
	}
	op := signed.Operation

	l.mu.Lock()
	defer l.mu.Unlock()

	if op.Anchor.LastValidHeight < l.height {
		return ledger.Handle{}, ledger.ErrAnchorExpired
	}

	// Stage mutations against a scratch view, commit only if every
	// instruction succeeds.
	staged := &execution{ledger: l, touched: make(map[pubkey.PublicKey]*ledger.Account)}
	for i, ins := range op.Instructions {
		if err := staged.run(op, ins); err != nil {
			return ledger.Handle{}, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	staged.commit()

	l.height++
	handle := ledger.Handle{Signature: signed.Signature, Anchor: op.Anchor}
	l.statuses[signed.Signature] = opStatus{height: l.height, appliedAt: time.Now()}
	return handle, nil
}

// AwaitFinality blocks until the operation's status is observable or the
// context expires. All committed operations are final at the next height,
// so only the visibility window matters here.
func (l *Ledger) AwaitFinality(ctx context.Context, handle ledger.Handle, level ledger.Finality) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		l.mu.Lock()
		st, ok := l.statuses[handle.Signature]
		expired := !ok && l.height > handle.Anchor.LastValidHeight
		visible := ok && time.Since(st.appliedAt) >= l.StatusDelay
		l.mu.Unlock()

		if visible {
			return nil
		}
		if expired {
			return ledger.ErrAnchorExpired
		}

		select {
		case <-ctx.Done():
			return ledger.ErrConfirmTimeout
		case <-ticker.C:
		}
	}
}

// CreationCount reports how many creation instructions committed for the
// address. The concurrency property tests assert this is exactly one.
func (l *Ledger) CreationCount(address pubkey.PublicKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creations[address]
}

// Height returns the current chain height.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// AdvanceHeight moves the chain forward without applying operations, so
// tests can expire anchors.
func (l *Ledger) AdvanceHeight(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
}

// CreateMint installs a mint record for the voting asset. Setup helper
// standing in for the asset issuer.
func (l *Ledger) CreateMint(mint pubkey.PublicKey, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[mint] = ledger.Account{
		Address: mint,
		Owner:   l.tokenProgram,
		Data:    token.EncodeMint(token.Mint{Decimals: decimals}),
	}
}

// MintTo credits raw units to the owner's associated balance account,
// creating it if needed. Setup helper standing in for the asset issuer.
func (l *Ledger) MintTo(mint, owner pubkey.PublicKey, rawAmount uint64) error {
	addr, _, err := token.AssociatedAddressUnder(l.assocProgram, l.tokenProgram, mint, owner)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := token.Balance{Mint: mint, Owner: owner}
	if acct, ok := l.accounts[addr]; ok {
		if bal, err = token.DecodeBalance(acct.Data); err != nil {
			return err
		}
	}
	bal.Amount += rawAmount
	l.accounts[addr] = ledger.Account{Address: addr, Owner: l.tokenProgram, Data: token.EncodeBalance(bal)}
	return nil
}

// PlaceOrphan installs an owner-less placeholder at the address, the
// residue a failed creation attempt can leave behind.
func (l *Ledger) PlaceOrphan(address pubkey.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[address] = ledger.Account{Address: address}
}

func snapshot(acct ledger.Account) ledger.Account {
	data := make([]byte, len(acct.Data))
	copy(data, acct.Data)
	return ledger.Account{Address: acct.Address, Owner: acct.Owner, Data: data}
}
