// Package rpcledger talks to a remote ledger node over JSON-RPC. It is
// the production implementation of the ledger boundary; memledger is the
// in-process one.
package rpcledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/mr-tron/base58"

	"voteledger/internal/ledger"
	"voteledger/internal/ledger/retry"
	"voteledger/internal/operation"
	"voteledger/internal/pubkey"
)

// Node error codes, part of the node's wire contract.
const (
	codeNotFound          jrpc2.Code = -32001
	codeAlreadyExists     jrpc2.Code = -32002
	codeInsufficientFunds jrpc2.Code = -32003
	codeInvalidOwner      jrpc2.Code = -32004
	codeAnchorExpired     jrpc2.Code = -32005
)

// Options configures the client.
type Options struct {
	// ReadFinality is sent with every read request.
	ReadFinality ledger.Finality

	// PollInterval is the delay between confirmation status polls.
	PollInterval time.Duration

	// ConfirmTimeout bounds one AwaitFinality call when the caller's
	// context carries no earlier deadline.
	ConfirmTimeout time.Duration

	// Retry wraps read calls. Nil means no retry.
	Retry retry.Strategy
}

// Client is a ledger.Client over JSON-RPC.
type Client struct {
	rpc  *jrpc2.Client
	opts Options
}

// New connects a client to the node at url.
func New(url string, opts Options) *Client {
	if opts.ReadFinality == "" {
		opts.ReadFinality = ledger.FinalityConfirmed
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewNoRetryStrategy()
	}

	ch := jhttp.NewChannel(url, nil)
	return &Client{
		rpc:  jrpc2.NewClient(ch, nil),
		opts: opts,
	}
}

var _ ledger.Client = (*Client)(nil)

type accountResult struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Data    string `json:"data"` // base64
}

// ReadAccount returns the latest observed snapshot at the configured read
// finality.
func (c *Client) ReadAccount(ctx context.Context, address pubkey.PublicKey) (ledger.Account, error) {
	params := struct {
		Address  string `json:"address"`
		Finality string `json:"finality"`
	}{address.String(), string(c.opts.ReadFinality)}

	var res accountResult
	err := c.opts.Retry.Execute(ctx, func() error {
		return mapError(c.rpc.CallResult(ctx, "getAccount", params, &res))
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return decodeAccount(res)
}

// ListProgramAccounts enumerates accounts owned by programID whose data
// begins with dataPrefix.
func (c *Client) ListProgramAccounts(ctx context.Context, programID pubkey.PublicKey, dataPrefix []byte) ([]ledger.Account, error) {
	params := struct {
		ProgramID  string `json:"programId"`
		DataPrefix string `json:"dataPrefix"` // base64
		Finality   string `json:"finality"`
	}{programID.String(), base64.StdEncoding.EncodeToString(dataPrefix), string(c.opts.ReadFinality)}

	var res struct {
		Accounts []accountResult `json:"accounts"`
	}
	err := c.opts.Retry.Execute(ctx, func() error {
		return mapError(c.rpc.CallResult(ctx, "listProgramAccounts", params, &res))
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]ledger.Account, 0, len(res.Accounts))
	for _, raw := range res.Accounts {
		acct, err := decodeAccount(raw)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// LatestAnchor fetches a fresh anchor from the node.
func (c *Client) LatestAnchor(ctx context.Context) (ledger.Anchor, error) {
	var res struct {
		Hash            string `json:"hash"` // base64
		LastValidHeight uint64 `json:"lastValidHeight"`
	}
	err := c.opts.Retry.Execute(ctx, func() error {
		return mapError(c.rpc.CallResult(ctx, "getLatestAnchor", nil, &res))
	})
	if err != nil {
		return ledger.Anchor{}, err
	}

	hash, err := base64.StdEncoding.DecodeString(res.Hash)
	if err != nil || len(hash) != 32 {
		return ledger.Anchor{}, fmt.Errorf("rpcledger: node returned malformed anchor hash")
	}

	anchor := ledger.Anchor{LastValidHeight: res.LastValidHeight}
	copy(anchor.Hash[:], hash)
	return anchor, nil
}

// Submit sends signed operation bytes to the node. The handle is built
// locally from the operation itself; submission is never retried.
func (c *Client) Submit(ctx context.Context, signedOperation []byte) (ledger.Handle, error) {
	signed, err := operation.DecodeSigned(signedOperation)
	if err != nil {
		return ledger.Handle{}, err
	}

	params := struct {
		Operation string `json:"operation"` // base64
	}{base64.StdEncoding.EncodeToString(signedOperation)}

	var res struct {
		Signature string `json:"signature"` // base58
	}
	if err := mapError(c.rpc.CallResult(ctx, "submitOperation", params, &res)); err != nil {
		return ledger.Handle{}, err
	}
	if res.Signature != base58.Encode(signed.Signature[:]) {
		return ledger.Handle{}, fmt.Errorf("rpcledger: node acknowledged a different signature")
	}

	return ledger.Handle{Signature: signed.Signature, Anchor: signed.Operation.Anchor}, nil
}

// AwaitFinality polls the operation's status until the requested level is
// observed. Returns ErrConfirmTimeout on deadline and ErrAnchorExpired
// when the chain passes the anchor without inclusion; both mean the
// outcome is unknown, not that the operation failed.
func (c *Client) AwaitFinality(ctx context.Context, handle ledger.Handle, level ledger.Finality) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConfirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	signature := base58.Encode(handle.Signature[:])
	for {
		status, height, err := c.operationStatus(ctx, signature)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			// Transient status-poll failures are absorbed by the loop;
			// the deadline bounds how long we keep trying.
			status, height = "", 0
		}

		if status != "" && finalityRank(ledger.Finality(status)) >= finalityRank(level) {
			return nil
		}
		if status == "" && height > handle.Anchor.LastValidHeight {
			return ledger.ErrAnchorExpired
		}

		select {
		case <-ctx.Done():
			return ledger.ErrConfirmTimeout
		case <-ticker.C:
		}
	}
}

// operationStatus asks the node for the operation's observed finality and
// the current chain height.
func (c *Client) operationStatus(ctx context.Context, signature string) (string, uint64, error) {
	params := struct {
		Signature string `json:"signature"`
	}{signature}

	var res struct {
		Known    bool   `json:"known"`
		Finality string `json:"finality"`
		Height   uint64 `json:"height"`
	}
	if err := mapError(c.rpc.CallResult(ctx, "getOperationStatus", params, &res)); err != nil {
		return "", 0, err
	}
	if !res.Known {
		return "", res.Height, nil
	}
	return res.Finality, res.Height, nil
}

// Close releases the underlying RPC channel.
func (c *Client) Close() error {
	c.rpc.Close()
	return nil
}

func finalityRank(f ledger.Finality) int {
	switch f {
	case ledger.FinalityProcessed:
		return 1
	case ledger.FinalityConfirmed:
		return 2
	case ledger.FinalityFinalized:
		return 3
	default:
		return 0
	}
}

func decodeAccount(raw accountResult) (ledger.Account, error) {
	address, err := pubkey.Parse(raw.Address)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("rpcledger: malformed account address: %w", err)
	}
	owner := pubkey.Zero
	if raw.Owner != "" {
		if owner, err = pubkey.Parse(raw.Owner); err != nil {
			return ledger.Account{}, fmt.Errorf("rpcledger: malformed account owner: %w", err)
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw.Data)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("rpcledger: malformed account data: %w", err)
	}
	return ledger.Account{Address: address, Owner: owner, Data: data}, nil
}

// mapError translates node error codes into the shared ledger taxonomy so
// the rest of the system never sees transport-specific errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *jrpc2.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeNotFound:
			return ledger.ErrNotFound
		case codeAlreadyExists:
			return ledger.ErrAlreadyExists
		case codeInsufficientFunds:
			return ledger.ErrInsufficientFunds
		case codeInvalidOwner:
			return ledger.ErrInvalidOwner
		case codeAnchorExpired:
			return ledger.ErrAnchorExpired
		}
	}
	return err
}
