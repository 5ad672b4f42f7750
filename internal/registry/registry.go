// Package registry maintains the deployment's topic namespace: the
// singleton counter record and one topic record per created topic, all at
// deterministically derived addresses.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"voteledger/internal/ledger"
	"voteledger/internal/metrics"
	"voteledger/internal/operation"
	"voteledger/internal/provision"
	"voteledger/internal/pubkey"
	"voteledger/internal/signer"
	"voteledger/internal/token"
)

// ErrBalanceProvision wraps a failure to provision a topic's balance
// account after the topic itself was confirmed. The topic stands; the
// provisioning is idempotent and can be retried independently.
var ErrBalanceProvision = errors.New("registry: topic balance account provisioning failed")

// Registry is the topic registry for one deployment.
type Registry struct {
	client      ledger.Client
	provisioner *provision.Provisioner
	signer      signer.Signer
	programID   pubkey.PublicKey
	mint        pubkey.PublicKey
	finality    ledger.Finality
}

// New builds a Registry. The signer is the identity paying for record
// creation.
func New(client ledger.Client, provisioner *provision.Provisioner, s signer.Signer, programID, mint pubkey.PublicKey, finality ledger.Finality) *Registry {
	return &Registry{
		client:      client,
		provisioner: provisioner,
		signer:      s,
		programID:   programID,
		mint:        mint,
		finality:    finality,
	}
}

// EnsureState returns the deployment's state record, creating it on first
// access. Idempotent across all clients: any number may call this
// concurrently and exactly one creation lands.
func (r *Registry) EnsureState(ctx context.Context) (StateRecord, error) {
	stateAddr, _, err := StateAddress(r.programID)
	if err != nil {
		return StateRecord{}, err
	}

	expect := provision.Expectation{
		Program: r.programID,
		Validate: func(acct ledger.Account) error {
			_, err := DecodeState(acct.Data)
			return err
		},
	}

	acct, err := r.provisioner.GetOrCreate(ctx, stateAddr, expect, func(ctx context.Context) (ledger.Handle, error) {
		metrics.OperationsSubmitted.WithLabelValues("create_state").Inc()
		ins := CreateStateInstruction(r.programID, stateAddr, r.signer.PublicKey())
		return operation.SubmitInstructions(ctx, r.client, r.signer, ins)
	})
	if err != nil {
		return StateRecord{}, fmt.Errorf("registry: ensuring state: %w", err)
	}

	return DecodeState(acct.Data)
}

// CreateTopic creates a topic named after the current counter value. The
// record creation and the counter increment commit atomically on the
// ledger; a client racing on a stale counter fails cleanly and can retry.
// After the topic is confirmed its balance account is provisioned so a
// zero tally is immediately observable; failure of that step is reported
// via ErrBalanceProvision alongside the created topic.
func (r *Registry) CreateTopic(ctx context.Context, name, description string) (TopicRecord, error) {
	state, err := r.EnsureState(ctx)
	if err != nil {
		return TopicRecord{}, err
	}

	index := state.TopicCount
	topicAddr, _, err := TopicAddress(r.programID, index)
	if err != nil {
		return TopicRecord{}, err
	}
	stateAddr, _, err := StateAddress(r.programID)
	if err != nil {
		return TopicRecord{}, err
	}

	ins, err := CreateTopicInstruction(r.programID, stateAddr, topicAddr, r.signer.PublicKey(), name, description)
	if err != nil {
		return TopicRecord{}, err
	}

	metrics.OperationsSubmitted.WithLabelValues("create_topic").Inc()
	handle, err := operation.SubmitInstructions(ctx, r.client, r.signer, ins)
	if err != nil {
		return TopicRecord{}, fmt.Errorf("registry: submitting topic %q: %w", name, err)
	}

	if err := r.client.AwaitFinality(ctx, handle, r.finality); err != nil {
		if !ledger.Indeterminate(err) {
			return TopicRecord{}, fmt.Errorf("registry: confirming topic %q: %w", name, err)
		}
		// Outcome unknown: the re-read below is authoritative.
		metrics.ConfirmTimeouts.Inc()
		slog.Warn("Topic confirmation indeterminate, re-reading",
			"name", name,
			"address", topicAddr,
			"error", err,
		)
	}

	acct, err := r.client.ReadAccount(ctx, topicAddr)
	if err != nil {
		return TopicRecord{}, fmt.Errorf("registry: topic %q not readable after creation: %w", name, err)
	}
	topic, err := DecodeTopic(acct.Data)
	if err != nil {
		return TopicRecord{}, err
	}
	topic.Address = topicAddr
	metrics.TopicsCreated.Inc()

	slog.Info("Topic created",
		"name", topic.Name,
		"index", topic.Index,
		"address", topicAddr,
	)

	if _, err := r.ProvisionTopicBalance(ctx, topicAddr); err != nil {
		// The topic is confirmed on the ledger; never roll it back.
		return topic, fmt.Errorf("%w: topic %s: %v", ErrBalanceProvision, topicAddr, err)
	}

	return topic, nil
}

// ProvisionTopicBalance gets-or-creates the balance account that tallies
// votes for the topic. Safe to call any number of times.
func (r *Registry) ProvisionTopicBalance(ctx context.Context, topicAddr pubkey.PublicKey) (pubkey.PublicKey, error) {
	balanceAddr, _, err := token.AssociatedAddress(r.mint, topicAddr)
	if err != nil {
		return pubkey.Zero, err
	}

	expect := provision.Expectation{
		Program: token.DefaultProgramID,
		Validate: func(acct ledger.Account) error {
			bal, err := token.DecodeBalance(acct.Data)
			if err != nil {
				return err
			}
			if bal.Mint != r.mint {
				return fmt.Errorf("balance bound to mint %s, want %s", bal.Mint, r.mint)
			}
			if bal.Owner != topicAddr {
				return fmt.Errorf("balance owned by %s, want topic %s", bal.Owner, topicAddr)
			}
			return nil
		},
	}

	_, err = r.provisioner.GetOrCreate(ctx, balanceAddr, expect, func(ctx context.Context) (ledger.Handle, error) {
		metrics.OperationsSubmitted.WithLabelValues("init_balance").Inc()
		ins := token.InitBalanceInstruction(token.DefaultProgramID, balanceAddr, r.mint, topicAddr, r.signer.PublicKey())
		return operation.SubmitInstructions(ctx, r.client, r.signer, ins)
	})
	if err != nil {
		return pubkey.Zero, err
	}
	return balanceAddr, nil
}

// ListTopics enumerates every topic record under the program namespace,
// ascending by index.
func (r *Registry) ListTopics(ctx context.Context) ([]TopicRecord, error) {
	accounts, err := r.client.ListProgramAccounts(ctx, r.programID, TopicDiscriminator[:])
	if err != nil {
		return nil, fmt.Errorf("registry: listing topics: %w", err)
	}

	topics := make([]TopicRecord, 0, len(accounts))
	for _, acct := range accounts {
		topic, err := DecodeTopic(acct.Data)
		if err != nil {
			return nil, fmt.Errorf("registry: decoding topic at %s: %w", acct.Address, err)
		}
		topic.Address = acct.Address
		topics = append(topics, topic)
	}

	// Indices are unique, so this is a stable total order.
	sort.Slice(topics, func(i, j int) bool { return topics[i].Index < topics[j].Index })
	return topics, nil
}
