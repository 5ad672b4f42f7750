// Package journal records every operation this service submits and the
// terminal outcome it observed. It is an audit trail of our own writes,
// not a cache of ledger state: reads of topics and balances always go to
// the ledger.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"voteledger/internal/pubkey"
)

// Entry kinds.
const (
	KindCreateState = "create_state"
	KindCreateTopic = "create_topic"
	KindInitBalance = "init_balance"
	KindCastVote    = "cast_vote"
)

// Outcome statuses.
const (
	StatusSubmitted     = "submitted"
	StatusConfirmed     = "confirmed"
	StatusIndeterminate = "indeterminate"
	StatusFailed        = "failed"
)

// Entry is one submitted operation.
type Entry struct {
	ID          uuid.UUID        `json:"id"`
	Kind        string           `json:"kind"`
	Signature   string           `json:"signature"`
	Topic       pubkey.PublicKey `json:"topic,omitzero"`
	AmountRaw   uint64           `json:"amountRaw"`
	Status      string           `json:"status"`
	Detail      string           `json:"detail,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	ResolvedAt  *time.Time       `json:"resolvedAt,omitempty"`
}

// Repository persists journal entries.
type Repository interface {
	// RecordSubmission inserts an entry in StatusSubmitted.
	RecordSubmission(ctx context.Context, entry *Entry) error

	// MarkOutcome sets the terminal status (and optional detail) of an
	// entry.
	MarkOutcome(ctx context.Context, id uuid.UUID, status, detail string) error

	// ListRecent returns the newest entries first.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}

// NewEntry builds a submission entry with a fresh ID.
func NewEntry(kind, signature string, topic pubkey.PublicKey, amountRaw uint64) *Entry {
	return &Entry{
		ID:        uuid.New(),
		Kind:      kind,
		Signature: signature,
		Topic:     topic,
		AmountRaw: amountRaw,
		Status:    StatusSubmitted,
		CreatedAt: time.Now().UTC(),
	}
}
