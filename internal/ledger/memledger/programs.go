package memledger

import (
	"fmt"

	"voteledger/internal/addressing"
	"voteledger/internal/ledger"
	"voteledger/internal/operation"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/token"
)

// execution is a staged view of the ledger for one operation. Mutations
// land in touched and reach the real account map only on commit.
type execution struct {
	ledger  *Ledger
	touched map[pubkey.PublicKey]*ledger.Account
	created []pubkey.PublicKey
}

func (e *execution) run(op operation.Operation, ins operation.Instruction) error {
	switch ins.ProgramID {
	case e.ledger.voteProgram:
		return e.runVoteProgram(op, ins)
	case e.ledger.tokenProgram:
		return e.runTokenProgram(op, ins)
	default:
		return fmt.Errorf("unknown program %s", ins.ProgramID)
	}
}

func (e *execution) commit() {
	for addr, acct := range e.touched {
		e.ledger.accounts[addr] = *acct
	}
	for _, addr := range e.created {
		e.ledger.creations[addr]++
	}
}

// get returns the staged account at addr, faulting it in from the
// committed map. ok is false when the account does not exist anywhere.
func (e *execution) get(addr pubkey.PublicKey) (*ledger.Account, bool) {
	if acct, ok := e.touched[addr]; ok {
		return acct, true
	}
	if acct, ok := e.ledger.accounts[addr]; ok {
		copied := snapshot(acct)
		e.touched[addr] = &copied
		return &copied, true
	}
	return nil, false
}

func (e *execution) create(addr, owner pubkey.PublicKey, data []byte) error {
	if existing, ok := e.get(addr); ok && !existing.Owner.IsZero() {
		return ledger.ErrAlreadyExists
	}
	e.touched[addr] = &ledger.Account{Address: addr, Owner: owner, Data: data}
	e.created = append(e.created, addr)
	return nil
}

func (e *execution) runVoteProgram(op operation.Operation, ins operation.Instruction) error {
	if len(ins.Data) == 0 {
		return fmt.Errorf("vote program: empty instruction data")
	}

	switch ins.Data[0] {
	case registry.InsCreateState:
		if len(ins.Accounts) != 2 {
			return fmt.Errorf("vote program: create-state wants 2 accounts, got %d", len(ins.Accounts))
		}
		stateAddr := ins.Accounts[0].Address
		if err := requireSigner(op, ins.Accounts[1]); err != nil {
			return err
		}
		if err := e.verifyDerived(stateAddr, [][]byte{registry.StateSeed}, e.ledger.voteProgram); err != nil {
			return err
		}
		return e.create(stateAddr, e.ledger.voteProgram, registry.EncodeState(registry.StateRecord{}))

	case registry.InsCreateTopic:
		if len(ins.Accounts) != 3 {
			return fmt.Errorf("vote program: create-topic wants 3 accounts, got %d", len(ins.Accounts))
		}
		stateAddr, topicAddr, payer := ins.Accounts[0].Address, ins.Accounts[1].Address, ins.Accounts[2]
		if err := requireSigner(op, payer); err != nil {
			return err
		}

		stateAcct, ok := e.get(stateAddr)
		if !ok {
			return fmt.Errorf("vote program: state: %w", ledger.ErrNotFound)
		}
		state, err := registry.DecodeState(stateAcct.Data)
		if err != nil {
			return err
		}

		name, description, err := registry.ParseCreateTopicData(ins.Data)
		if err != nil {
			return err
		}

		// Topic address must be the derivation for the CURRENT counter
		// value. A client racing on a stale counter fails here, exactly
		// like a seeds-constraint violation on a real ledger.
		expected, _, err := registry.TopicAddress(e.ledger.voteProgram, state.TopicCount)
		if err != nil {
			return err
		}
		if topicAddr != expected {
			return fmt.Errorf("vote program: topic address %s does not derive from index %d", topicAddr, state.TopicCount)
		}

		topic := registry.TopicRecord{
			Owner:       payer.Address,
			Name:        name,
			Description: description,
			Index:       state.TopicCount,
		}
		if err := e.create(topicAddr, e.ledger.voteProgram, registry.EncodeTopic(topic)); err != nil {
			return err
		}

		// Record creation and counter increment are one atomic unit.
		state.TopicCount++
		stateAcct.Data = registry.EncodeState(state)
		return nil

	default:
		return fmt.Errorf("vote program: unknown instruction tag %d", ins.Data[0])
	}
}

func (e *execution) runTokenProgram(op operation.Operation, ins operation.Instruction) error {
	if len(ins.Data) == 0 {
		return fmt.Errorf("token program: empty instruction data")
	}

	switch ins.Data[0] {
	case token.InsInitBalance:
		if len(ins.Accounts) != 4 {
			return fmt.Errorf("token program: init-balance wants 4 accounts, got %d", len(ins.Accounts))
		}
		balanceAddr := ins.Accounts[0].Address
		mint := ins.Accounts[1].Address
		owner := ins.Accounts[2].Address
		if err := requireSigner(op, ins.Accounts[3]); err != nil {
			return err
		}

		mintAcct, ok := e.get(mint)
		if !ok {
			return fmt.Errorf("token program: mint: %w", ledger.ErrNotFound)
		}
		if _, err := token.DecodeMint(mintAcct.Data); err != nil {
			return err
		}

		expected, _, err := token.AssociatedAddressUnder(e.ledger.assocProgram, e.ledger.tokenProgram, mint, owner)
		if err != nil {
			return err
		}
		if balanceAddr != expected {
			return fmt.Errorf("token program: balance address %s does not derive from (mint, owner)", balanceAddr)
		}

		bal := token.Balance{Mint: mint, Owner: owner}
		return e.create(balanceAddr, e.ledger.tokenProgram, token.EncodeBalance(bal))

	case token.InsTransfer:
		if len(ins.Accounts) != 3 {
			return fmt.Errorf("token program: transfer wants 3 accounts, got %d", len(ins.Accounts))
		}
		sourceAddr, destAddr, owner := ins.Accounts[0].Address, ins.Accounts[1].Address, ins.Accounts[2]
		if err := requireSigner(op, owner); err != nil {
			return err
		}

		rawAmount, err := token.ParseTransferData(ins.Data)
		if err != nil {
			return err
		}

		sourceAcct, ok := e.get(sourceAddr)
		if !ok {
			return fmt.Errorf("token program: source: %w", ledger.ErrNotFound)
		}
		source, err := token.DecodeBalance(sourceAcct.Data)
		if err != nil {
			return err
		}
		if source.Owner != owner.Address {
			return fmt.Errorf("token program: %s does not own source balance", owner.Address)
		}
		if source.Amount < rawAmount {
			return ledger.ErrInsufficientFunds
		}

		destAcct, ok := e.get(destAddr)
		if !ok {
			return fmt.Errorf("token program: destination: %w", ledger.ErrNotFound)
		}
		dest, err := token.DecodeBalance(destAcct.Data)
		if err != nil {
			return err
		}
		if dest.Mint != source.Mint {
			return fmt.Errorf("token program: mint mismatch between source and destination")
		}

		source.Amount -= rawAmount
		dest.Amount += rawAmount
		sourceAcct.Data = token.EncodeBalance(source)
		destAcct.Data = token.EncodeBalance(dest)
		return nil

	default:
		return fmt.Errorf("token program: unknown instruction tag %d", ins.Data[0])
	}
}

// verifyDerived checks that addr is the canonical derivation for the
// seeds. Equivalent to a seeds constraint in the on-ledger program.
func (e *execution) verifyDerived(addr pubkey.PublicKey, seeds [][]byte, programID pubkey.PublicKey) error {
	expected, _, err := addressing.Derive(seeds, programID)
	if err != nil {
		return err
	}
	if addr != expected {
		return fmt.Errorf("address %s does not match derivation", addr)
	}
	return nil
}

// requireSigner checks that the account is marked signer and the
// operation's payer actually signed for it. The in-memory ledger only
// supports single-signer operations: every signer meta must be the payer.
func requireSigner(op operation.Operation, meta operation.AccountMeta) error {
	if !meta.Signer {
		return fmt.Errorf("account %s must be a signer", meta.Address)
	}
	if meta.Address != op.Payer {
		return fmt.Errorf("signer %s is not the operation payer", meta.Address)
	}
	return nil
}
