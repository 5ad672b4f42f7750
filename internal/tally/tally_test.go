package tally

import (
	"context"
	"testing"

	"voteledger/internal/ledger"
	"voteledger/internal/ledger/memledger"
	"voteledger/internal/provision"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/signer"
	"voteledger/internal/token"
)

const scale = 1_000_000_000 // decimals 9

func setup(t *testing.T) (*Reader, *registry.Registry, *memledger.Ledger, pubkey.PublicKey) {
	t.Helper()

	l := memledger.New()
	mint := pubkey.FromName("test.mint")
	l.CreateMint(mint, 9)

	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	p := provision.New(l, ledger.FinalityConfirmed)
	reg := registry.New(l, p, id, registry.DefaultProgramID, mint, ledger.FinalityConfirmed)
	return NewReader(l, mint), reg, l, mint
}

func TestDecorate_ZeroBalances(t *testing.T) {
	reader, reg, _, _ := setup(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if _, err := reg.CreateTopic(ctx, name, "desc"); err != nil {
			t.Fatalf("creating topic %q: %v", name, err)
		}
	}

	topics, err := reg.ListTopics(ctx)
	if err != nil {
		t.Fatalf("listing topics: %v", err)
	}

	views, err := reader.Decorate(ctx, topics)
	if err != nil {
		t.Fatalf("decorating: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 views, got %d", len(views))
	}
	for _, view := range views {
		if view.Err != nil {
			t.Errorf("topic %s: unexpected error: %v", view.Name, view.Err)
		}
		if view.Votes != 0 {
			t.Errorf("topic %s: fresh tally %d, want 0", view.Name, view.Votes)
		}
	}
}

func TestDecorate_ScalesRawAmounts(t *testing.T) {
	reader, reg, l, mint := setup(t)
	ctx := context.Background()

	topicA, err := reg.CreateTopic(ctx, "A", "desc")
	if err != nil {
		t.Fatalf("creating topic A: %v", err)
	}
	topicB, err := reg.CreateTopic(ctx, "B", "desc")
	if err != nil {
		t.Fatalf("creating topic B: %v", err)
	}

	// 3 whole votes for B, credited directly at the ledger.
	if err := l.MintTo(mint, topicB.Address, 3*scale); err != nil {
		t.Fatalf("minting to topic B: %v", err)
	}

	topics, err := reg.ListTopics(ctx)
	if err != nil {
		t.Fatalf("listing topics: %v", err)
	}
	views, err := reader.Decorate(ctx, topics)
	if err != nil {
		t.Fatalf("decorating: %v", err)
	}

	if views[0].Address != topicA.Address || views[1].Address != topicB.Address {
		t.Fatal("views not in index order")
	}
	if views[0].Votes != 0 {
		t.Errorf("topic A tally = %d, want 0", views[0].Votes)
	}
	if views[1].Votes != 3 {
		t.Errorf("topic B tally = %d, want 3", views[1].Votes)
	}
	if views[1].RawAmount != 3*scale {
		t.Errorf("topic B raw amount = %d, want %d", views[1].RawAmount, 3*scale)
	}
}

func TestDecorate_UnprovisionedTopicIsZeroNotError(t *testing.T) {
	reader, _, _, _ := setup(t)

	// A topic record that exists but whose balance account was never
	// provisioned (the orphaned-topic recovery case).
	orphan := registry.TopicRecord{
		Address: pubkey.FromName("test.orphan-topic"),
		Name:    "orphan",
		Index:   0,
	}

	views, err := reader.Decorate(context.Background(), []registry.TopicRecord{orphan})
	if err != nil {
		t.Fatalf("decorating: %v", err)
	}
	if views[0].Err != nil {
		t.Errorf("missing balance account should not be an error, got: %v", views[0].Err)
	}
	if views[0].Votes != 0 {
		t.Errorf("missing balance account tally = %d, want 0", views[0].Votes)
	}
}

func TestDecorate_PerItemFailureDoesNotAbortBatch(t *testing.T) {
	reader, reg, l, mint := setup(t)
	ctx := context.Background()

	topicA, err := reg.CreateTopic(ctx, "A", "desc")
	if err != nil {
		t.Fatalf("creating topic A: %v", err)
	}
	topicB, err := reg.CreateTopic(ctx, "B", "desc")
	if err != nil {
		t.Fatalf("creating topic B: %v", err)
	}
	if err := l.MintTo(mint, topicA.Address, 2*scale); err != nil {
		t.Fatalf("minting to topic A: %v", err)
	}

	// Corrupt topic B's balance slot with undecodable bytes.
	balanceB, _, err := token.AssociatedAddress(mint, topicB.Address)
	if err != nil {
		t.Fatalf("deriving balance address: %v", err)
	}
	l.PlaceOrphan(balanceB)

	topics, err := reg.ListTopics(ctx)
	if err != nil {
		t.Fatalf("listing topics: %v", err)
	}
	views, err := reader.Decorate(ctx, topics)
	if err != nil {
		t.Fatalf("batch must not abort on per-item failure: %v", err)
	}

	if views[0].Err != nil || views[0].Votes != 2 {
		t.Errorf("topic A = {votes:%d err:%v}, want {votes:2 err:nil}", views[0].Votes, views[0].Err)
	}
	if views[1].Err == nil {
		t.Error("topic B should carry a per-item error")
	}
	if views[1].Votes != 0 {
		t.Errorf("failed item tally = %d, want 0", views[1].Votes)
	}
}
