package models

import (
	"time"
)

// TopicResponse represents a topic with its current tally for API responses
type TopicResponse struct {
	Address     string `json:"address"`
	Index       uint64 `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Creator     string `json:"creator,omitempty"`

	// Tally (whole votes, and the raw token amount behind them)
	Votes     uint64 `json:"votes"`
	RawAmount uint64 `json:"raw_amount"`

	// Set when the tally for this topic could not be read. The topic
	// itself is still listed.
	TallyError string `json:"tally_error,omitempty"`
}

// TopicListResponse represents the full tallied topic list
type TopicListResponse struct {
	Topics []TopicResponse `json:"topics"`
	Total  int             `json:"total"`
}

// CreateTopicRequest is the body of POST /topics
type CreateTopicRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CastVoteRequest is the body of POST /votes
type CastVoteRequest struct {
	Topic string `json:"topic"` // base58 topic address
	Votes uint64 `json:"votes"`
}

// CastVoteResponse acknowledges a confirmed vote
type CastVoteResponse struct {
	Topic  string `json:"topic"`
	Votes  uint64 `json:"votes"`
	Status string `json:"status"`
}

// OperationResponse represents one journal entry for API responses
type OperationResponse struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Signature  string     `json:"signature,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	AmountRaw  uint64     `json:"amount_raw,omitempty"`
	Status     string     `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// OperationListResponse represents the recent-operations journal
type OperationListResponse struct {
	Operations []OperationResponse `json:"operations"`
	Total      int                 `json:"total"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
