package memledger

import (
	"context"
	"errors"
	"testing"

	"voteledger/internal/ledger"
	"voteledger/internal/operation"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/signer"
	"voteledger/internal/token"
)

func submitOne(t *testing.T, l *Ledger, id *signer.Local, ins ...operation.Instruction) (ledger.Handle, error) {
	t.Helper()
	anchor, err := l.LatestAnchor(context.Background())
	if err != nil {
		t.Fatalf("fetching anchor: %v", err)
	}
	op := operation.Operation{Payer: id.PublicKey(), Anchor: anchor, Instructions: ins}
	signed, err := operation.Sign(op, id)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return l.Submit(context.Background(), signed.Bytes())
}

func TestSubmit_ExpiredAnchorRejected(t *testing.T) {
	l := New()
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	stateAddr, _, _ := registry.StateAddress(registry.DefaultProgramID)
	anchor, _ := l.LatestAnchor(context.Background())

	l.AdvanceHeight(anchor.LastValidHeight + 1)

	op := operation.Operation{
		Payer:  id.PublicKey(),
		Anchor: anchor,
		Instructions: []operation.Instruction{
			registry.CreateStateInstruction(registry.DefaultProgramID, stateAddr, id.PublicKey()),
		},
	}
	signed, err := operation.Sign(op, id)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	_, err = l.Submit(context.Background(), signed.Bytes())
	if !errors.Is(err, ledger.ErrAnchorExpired) {
		t.Errorf("expected ErrAnchorExpired, got: %v", err)
	}
}

func TestSubmit_AtomicRollbackOnFailure(t *testing.T) {
	l := New()
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	mint := pubkey.FromName("test.mint")
	l.CreateMint(mint, 9)

	owner := id.PublicKey()
	balanceAddr, _, err := token.AssociatedAddress(mint, owner)
	if err != nil {
		t.Fatalf("deriving balance address: %v", err)
	}

	// First instruction creates the balance account; second transfers out
	// of the empty account and must fail. Neither may commit.
	initIns := token.InitBalanceInstruction(token.DefaultProgramID, balanceAddr, mint, owner, owner)
	transferIns, err := token.TransferInstruction(token.DefaultProgramID, balanceAddr, balanceAddr, owner, 1)
	if err != nil {
		t.Fatalf("building transfer: %v", err)
	}

	if _, err := submitOne(t, l, id, initIns, transferIns); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
	}

	if _, err := l.ReadAccount(context.Background(), balanceAddr); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("first instruction leaked through a failed operation: %v", err)
	}
	if l.CreationCount(balanceAddr) != 0 {
		t.Errorf("creation counted despite rollback")
	}
}

func TestSubmit_DuplicateCreationRejected(t *testing.T) {
	l := New()
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	stateAddr, _, _ := registry.StateAddress(registry.DefaultProgramID)
	ins := registry.CreateStateInstruction(registry.DefaultProgramID, stateAddr, id.PublicKey())

	if _, err := submitOne(t, l, id, ins); err != nil {
		t.Fatalf("first creation failed: %v", err)
	}
	if _, err := submitOne(t, l, id, ins); !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}
	if l.CreationCount(stateAddr) != 1 {
		t.Errorf("expected 1 committed creation, got %d", l.CreationCount(stateAddr))
	}
}

func TestSubmit_StaleIndexTopicCreationFails(t *testing.T) {
	l := New()
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	stateAddr, _, _ := registry.StateAddress(registry.DefaultProgramID)
	createState := registry.CreateStateInstruction(registry.DefaultProgramID, stateAddr, id.PublicKey())
	if _, err := submitOne(t, l, id, createState); err != nil {
		t.Fatalf("creating state: %v", err)
	}

	topic0, _, _ := registry.TopicAddress(registry.DefaultProgramID, 0)
	ins0, err := registry.CreateTopicInstruction(registry.DefaultProgramID, stateAddr, topic0, id.PublicKey(), "A", "d")
	if err != nil {
		t.Fatalf("building create-topic: %v", err)
	}
	if _, err := submitOne(t, l, id, ins0); err != nil {
		t.Fatalf("creating topic 0: %v", err)
	}

	// Same derived address again: the counter moved on, so the seeds
	// constraint fails.
	if _, err := submitOne(t, l, id, ins0); err == nil {
		t.Error("expected stale-index creation to fail")
	}
}

func TestSubmit_RejectsBadSignature(t *testing.T) {
	l := New()
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	stateAddr, _, _ := registry.StateAddress(registry.DefaultProgramID)
	anchor, _ := l.LatestAnchor(context.Background())
	op := operation.Operation{
		Payer:  id.PublicKey(),
		Anchor: anchor,
		Instructions: []operation.Instruction{
			registry.CreateStateInstruction(registry.DefaultProgramID, stateAddr, id.PublicKey()),
		},
	}
	signed, err := operation.Sign(op, id)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	wire := signed.Bytes()
	wire[3] ^= 0xFF // corrupt the signature

	if _, err := l.Submit(context.Background(), wire); err == nil {
		t.Error("expected corrupted signature to be rejected")
	}
}
