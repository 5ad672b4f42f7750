package token

import (
	"encoding/binary"
	"fmt"

	"voteledger/internal/operation"
	"voteledger/internal/pubkey"
)

// Token program instruction tags.
const (
	InsInitBalance byte = 0
	InsTransfer    byte = 1
)

// InitBalanceInstruction creates the associated balance account for
// (mint, owner) with a zero amount. Creation is rejected by the program
// if the account already exists; provisioning treats that rejection as a
// lost race, not a failure.
// Account order: balance (writable), mint, owner, payer (signer).
func InitBalanceInstruction(programID, balanceAddress, mint, owner, payer pubkey.PublicKey) operation.Instruction {
	return operation.Instruction{
		ProgramID: programID,
		Accounts: []operation.AccountMeta{
			{Address: balanceAddress, Writable: true},
			{Address: mint},
			{Address: owner},
			{Address: payer, Signer: true, Writable: true},
		},
		Data: []byte{InsInitBalance},
	}
}

// TransferInstruction moves raw units between two balance accounts. The
// source's owner must sign.
// Account order: source (writable), destination (writable), owner (signer).
func TransferInstruction(programID, source, destination, owner pubkey.PublicKey, rawAmount uint64) (operation.Instruction, error) {
	if rawAmount == 0 {
		return operation.Instruction{}, fmt.Errorf("token: transfer amount must be positive")
	}

	data := make([]byte, 0, 9)
	data = append(data, InsTransfer)
	data = binary.BigEndian.AppendUint64(data, rawAmount)

	return operation.Instruction{
		ProgramID: programID,
		Accounts: []operation.AccountMeta{
			{Address: source, Writable: true},
			{Address: destination, Writable: true},
			{Address: owner, Signer: true},
		},
		Data: data,
	}, nil
}

// ParseTransferData unpacks the raw amount from a transfer instruction.
func ParseTransferData(data []byte) (uint64, error) {
	if len(data) != 9 || data[0] != InsTransfer {
		return 0, fmt.Errorf("token: not a transfer instruction")
	}
	return binary.BigEndian.Uint64(data[1:]), nil
}
