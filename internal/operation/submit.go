package operation

import (
	"context"
	"fmt"

	"voteledger/internal/ledger"
	"voteledger/internal/signer"
)

// SubmitInstructions fetches a fresh anchor, bundles the instructions into
// one atomic operation signed by s, and submits it. The returned handle
// still needs AwaitFinality before the submission may be treated as
// durable.
func SubmitInstructions(ctx context.Context, c ledger.Client, s signer.Signer, ins ...Instruction) (ledger.Handle, error) {
	anchor, err := c.LatestAnchor(ctx)
	if err != nil {
		return ledger.Handle{}, fmt.Errorf("fetching anchor: %w", err)
	}

	op := Operation{
		Payer:        s.PublicKey(),
		Anchor:       anchor,
		Instructions: ins,
	}

	signed, err := Sign(op, s)
	if err != nil {
		return ledger.Handle{}, err
	}

	return c.Submit(ctx, signed.Bytes())
}
