// Package tally reads vote balances for sets of topics and decorates the
// records with human-scaled counts. It is a pure read path: every call
// goes to the ledger, nothing is cached.
package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"voteledger/internal/ledger"
	"voteledger/internal/metrics"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/token"
)

// defaultConcurrency bounds parallel balance reads per Decorate call.
const defaultConcurrency = 8

// DecoratedTopic is a topic record plus its current tally. Ephemeral:
// recomputed on every refresh, stale the instant it is returned.
type DecoratedTopic struct {
	registry.TopicRecord
	Votes     uint64 `json:"votes"`
	RawAmount uint64 `json:"rawAmount"`
	Err       error  `json:"-"`
}

// Reader decorates topic lists with vote tallies.
type Reader struct {
	client      ledger.Reader
	mint        pubkey.PublicKey
	concurrency int
}

// NewReader builds a tally reader for the voting asset.
func NewReader(client ledger.Reader, mint pubkey.PublicKey) *Reader {
	return &Reader{client: client, mint: mint, concurrency: defaultConcurrency}
}

// Decorate reads every topic's balance concurrently and returns the
// decorated views in the input order. A failed read surfaces on that
// item's Err field with a zero tally; it never aborts the batch.
func (r *Reader) Decorate(ctx context.Context, topics []registry.TopicRecord) ([]DecoratedTopic, error) {
	started := time.Now()
	defer func() {
		metrics.TallyRefreshDuration.Observe(time.Since(started).Seconds())
	}()

	scale, err := token.Scale(ctx, r.client, r.mint)
	if err != nil {
		return nil, fmt.Errorf("tally: %w", err)
	}

	out := make([]DecoratedTopic, len(topics))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, topic := range topics {
		i, topic := i, topic
		g.Go(func() error {
			out[i] = r.decorateOne(gctx, topic, scale)
			return nil
		})
	}
	// Workers never return errors; per-item failures live on Err fields.
	_ = g.Wait()

	return out, nil
}

func (r *Reader) decorateOne(ctx context.Context, topic registry.TopicRecord, scale uint64) DecoratedTopic {
	view := DecoratedTopic{TopicRecord: topic}

	balanceAddr, _, err := token.AssociatedAddress(r.mint, topic.Address)
	if err != nil {
		view.Err = err
		return view
	}

	started := time.Now()
	acct, err := r.client.ReadAccount(ctx, balanceAddr)
	metrics.ReadDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		// A topic whose balance account is not provisioned yet simply has
		// no votes; anything else is a real per-item failure.
		if !errors.Is(err, ledger.ErrNotFound) {
			metrics.TallyReadFailures.Inc()
			slog.Warn("Tally read failed",
				"topic", topic.Name,
				"balance_address", balanceAddr,
				"error", err,
			)
			view.Err = err
		}
		return view
	}

	bal, err := token.DecodeBalance(acct.Data)
	if err != nil {
		metrics.TallyReadFailures.Inc()
		view.Err = err
		return view
	}

	view.RawAmount = bal.Amount
	view.Votes = bal.Amount / scale
	return view
}
