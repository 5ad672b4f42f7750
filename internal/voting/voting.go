// Package voting holds the top-level use cases: create a topic, cast a
// weighted vote, and read the decorated topic list. It composes the
// registry, the provisioner and the tally reader; all state lives on the
// ledger.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mr-tron/base58"

	"voteledger/internal/journal"
	"voteledger/internal/ledger"
	"voteledger/internal/metrics"
	"voteledger/internal/operation"
	"voteledger/internal/provision"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/signer"
	"voteledger/internal/tally"
	"voteledger/internal/token"
)

// ErrVoteIndeterminate is returned when a vote's confirmation timed out
// and the re-read could not establish that the transfer applied. The
// caller must not resubmit blindly; a later refresh shows the truth.
var ErrVoteIndeterminate = errors.New("voting: vote outcome indeterminate")

// ErrZeroVotes rejects vote requests with a zero count.
var ErrZeroVotes = errors.New("voting: vote count must be positive")

// ErrVoteTooLarge rejects vote counts whose raw token amount does not
// fit in a uint64 at the mint's scale.
var ErrVoteTooLarge = errors.New("voting: vote count exceeds representable amount")

// Orchestrator wires the protocol components into user-facing flows.
type Orchestrator struct {
	client      ledger.Client
	provisioner *provision.Provisioner
	registry    *registry.Registry
	tallies     *tally.Reader
	journal     journal.Repository
	signer      signer.Signer
	mint        pubkey.PublicKey
	finality    ledger.Finality
}

// New builds an Orchestrator. The signer is the voter identity this
// service submits operations as.
func New(
	client ledger.Client,
	provisioner *provision.Provisioner,
	reg *registry.Registry,
	tallies *tally.Reader,
	jrnl journal.Repository,
	s signer.Signer,
	mint pubkey.PublicKey,
	finality ledger.Finality,
) *Orchestrator {
	return &Orchestrator{
		client:      client,
		provisioner: provisioner,
		registry:    reg,
		tallies:     tallies,
		journal:     jrnl,
		signer:      s,
		mint:        mint,
		finality:    finality,
	}
}

// CreateTopic creates a topic and provisions its tally account. A
// balance-provisioning failure is logged and swallowed: the topic is
// confirmed on the ledger and the provisioning retries on first vote.
func (o *Orchestrator) CreateTopic(ctx context.Context, name, description string) (registry.TopicRecord, error) {
	topic, err := o.registry.CreateTopic(ctx, name, description)
	if err != nil {
		if errors.Is(err, registry.ErrBalanceProvision) {
			slog.Warn("Topic created but balance account provisioning failed; will retry on first vote",
				"topic", topic.Address,
				"error", err,
			)
			return topic, nil
		}
		metrics.ErrorsTotal.WithLabelValues("create_topic").Inc()
		return registry.TopicRecord{}, err
	}
	return topic, nil
}

// EnsureReady provisions the singleton state record if this deployment
// has never been used. Safe to call on every startup.
func (o *Orchestrator) EnsureReady(ctx context.Context) (registry.StateRecord, error) {
	return o.registry.EnsureState(ctx)
}

// Topics returns the full decorated topic list, freshly read.
func (o *Orchestrator) Topics(ctx context.Context) ([]tally.DecoratedTopic, error) {
	topics, err := o.registry.ListTopics(ctx)
	if err != nil {
		return nil, err
	}
	return o.tallies.Decorate(ctx, topics)
}

// Operations returns the newest journal entries.
func (o *Orchestrator) Operations(ctx context.Context, limit int) ([]*journal.Entry, error) {
	return o.journal.ListRecent(ctx, limit)
}

// CastVote moves `votes` whole tokens from the voter's balance to the
// topic's balance. Both balance accounts are provisioned first; either
// provisioning failure aborts the vote before any transfer is attempted.
func (o *Orchestrator) CastVote(ctx context.Context, topicAddr pubkey.PublicKey, votes uint64) error {
	if votes == 0 {
		return ErrZeroVotes
	}

	// The topic must exist before tokens are sunk into its address space.
	topicAcct, err := o.client.ReadAccount(ctx, topicAddr)
	if err != nil {
		return fmt.Errorf("voting: reading topic %s: %w", topicAddr, err)
	}
	topic, err := registry.DecodeTopic(topicAcct.Data)
	if err != nil {
		return fmt.Errorf("voting: %s is not a topic: %w", topicAddr, err)
	}

	scale, err := token.Scale(ctx, o.client, o.mint)
	if err != nil {
		return err
	}
	if votes > math.MaxUint64/scale {
		return fmt.Errorf("%w: %d votes at scale %d", ErrVoteTooLarge, votes, scale)
	}
	rawAmount := votes * scale

	sourceAcct, err := o.provisionVoterBalance(ctx)
	if err != nil {
		return fmt.Errorf("voting: provisioning voter balance: %w", err)
	}
	sourceBefore, err := token.DecodeBalance(sourceAcct.Data)
	if err != nil {
		return err
	}

	destAddr, err := o.registry.ProvisionTopicBalance(ctx, topicAddr)
	if err != nil {
		return fmt.Errorf("voting: provisioning topic balance: %w", err)
	}

	ins, err := token.TransferInstruction(token.DefaultProgramID, sourceAcct.Address, destAddr, o.signer.PublicKey(), rawAmount)
	if err != nil {
		return err
	}

	metrics.OperationsSubmitted.WithLabelValues(journal.KindCastVote).Inc()
	handle, err := operation.SubmitInstructions(ctx, o.client, o.signer, ins)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("cast_vote").Inc()
		return fmt.Errorf("voting: submitting vote: %w", err)
	}

	entry := journal.NewEntry(journal.KindCastVote, encodeSignature(handle), topicAddr, rawAmount)
	if err := o.journal.RecordSubmission(ctx, entry); err != nil {
		// The vote is already in flight; a journal failure must not fail it.
		slog.Error("Failed to record vote submission", "error", err)
	}

	started := time.Now()
	confirmErr := o.client.AwaitFinality(ctx, handle, o.finality)
	metrics.ConfirmDuration.Observe(time.Since(started).Seconds())

	if confirmErr != nil {
		if !ledger.Indeterminate(confirmErr) {
			o.markOutcome(ctx, entry, journal.StatusFailed, confirmErr.Error())
			metrics.ErrorsTotal.WithLabelValues("cast_vote").Inc()
			return fmt.Errorf("voting: confirming vote: %w", confirmErr)
		}
		// Indeterminate: re-read our own source balance. Submissions from
		// this identity are serialized, so a decrease of exactly
		// rawAmount means the transfer applied.
		metrics.ConfirmTimeouts.Inc()
		applied, readErr := o.transferApplied(ctx, sourceAcct.Address, sourceBefore.Amount, rawAmount)
		if readErr != nil || !applied {
			o.markOutcome(ctx, entry, journal.StatusIndeterminate, confirmErr.Error())
			slog.Warn("Vote confirmation indeterminate",
				"topic", topic.Name,
				"raw_amount", rawAmount,
				"error", confirmErr,
			)
			return fmt.Errorf("%w: topic %s", ErrVoteIndeterminate, topicAddr)
		}
	}

	o.markOutcome(ctx, entry, journal.StatusConfirmed, "")
	metrics.VotesCast.Inc()
	slog.Info("Vote cast",
		"topic", topic.Name,
		"votes", votes,
		"raw_amount", rawAmount,
	)
	return nil
}

// provisionVoterBalance gets-or-creates the voter's own balance account.
func (o *Orchestrator) provisionVoterBalance(ctx context.Context) (ledger.Account, error) {
	owner := o.signer.PublicKey()
	addr, _, err := token.AssociatedAddress(o.mint, owner)
	if err != nil {
		return ledger.Account{}, err
	}

	expect := provision.Expectation{
		Program: token.DefaultProgramID,
		Validate: func(acct ledger.Account) error {
			bal, err := token.DecodeBalance(acct.Data)
			if err != nil {
				return err
			}
			if bal.Mint != o.mint {
				return fmt.Errorf("balance bound to mint %s, want %s", bal.Mint, o.mint)
			}
			if bal.Owner != owner {
				return fmt.Errorf("balance owned by %s, want voter %s", bal.Owner, owner)
			}
			return nil
		},
	}

	return o.provisioner.GetOrCreate(ctx, addr, expect, func(ctx context.Context) (ledger.Handle, error) {
		metrics.OperationsSubmitted.WithLabelValues(journal.KindInitBalance).Inc()
		ins := token.InitBalanceInstruction(token.DefaultProgramID, addr, o.mint, owner, owner)
		return operation.SubmitInstructions(ctx, o.client, o.signer, ins)
	})
}

// transferApplied re-reads the source balance and reports whether it
// dropped by exactly rawAmount from the pre-transfer snapshot.
func (o *Orchestrator) transferApplied(ctx context.Context, source pubkey.PublicKey, before, rawAmount uint64) (bool, error) {
	acct, err := o.client.ReadAccount(ctx, source)
	if err != nil {
		return false, err
	}
	bal, err := token.DecodeBalance(acct.Data)
	if err != nil {
		return false, err
	}
	return bal.Amount == before-rawAmount, nil
}

func (o *Orchestrator) markOutcome(ctx context.Context, entry *journal.Entry, status, detail string) {
	if err := o.journal.MarkOutcome(ctx, entry.ID, status, detail); err != nil {
		slog.Error("Failed to record operation outcome",
			"entry", entry.ID,
			"status", status,
			"error", err,
		)
	}
}

func encodeSignature(handle ledger.Handle) string {
	return base58.Encode(handle.Signature[:])
}
