package registry

import (
	"errors"
	"fmt"

	"voteledger/internal/operation"
	"voteledger/internal/pubkey"
)

// ErrInvalidTopic marks topic metadata the program would reject.
var ErrInvalidTopic = errors.New("registry: invalid topic")

// Voting program instruction tags.
const (
	InsCreateState byte = 0
	InsCreateTopic byte = 1
)

// Limits enforced client-side before an operation is ever built. The
// program enforces them again on-ledger.
const (
	MaxNameLen        = 64
	MaxDescriptionLen = 256
)

// CreateStateInstruction initializes the singleton state record with
// TopicCount = 0. Account order: state (writable), payer (signer).
func CreateStateInstruction(programID, stateAddress, payer pubkey.PublicKey) operation.Instruction {
	return operation.Instruction{
		ProgramID: programID,
		Accounts: []operation.AccountMeta{
			{Address: stateAddress, Writable: true},
			{Address: payer, Signer: true, Writable: true},
		},
		Data: []byte{InsCreateState},
	}
}

// CreateTopicInstruction creates a topic record at the derived address AND
// increments the state counter in the same instruction. The program
// applies both mutations atomically, which is what keeps topic indices
// dense and unique under concurrent creation.
// Account order: state (writable), topic (writable), payer (signer).
func CreateTopicInstruction(programID, stateAddress, topicAddress, payer pubkey.PublicKey, name, description string) (operation.Instruction, error) {
	if name == "" {
		return operation.Instruction{}, fmt.Errorf("%w: topic name is required", ErrInvalidTopic)
	}
	if len(name) > MaxNameLen {
		return operation.Instruction{}, fmt.Errorf("%w: topic name too long (%d bytes, max %d)", ErrInvalidTopic, len(name), MaxNameLen)
	}
	if len(description) > MaxDescriptionLen {
		return operation.Instruction{}, fmt.Errorf("%w: topic description too long (%d bytes, max %d)", ErrInvalidTopic, len(description), MaxDescriptionLen)
	}

	data := []byte{InsCreateTopic}
	data = appendString(data, name)
	data = appendString(data, description)

	return operation.Instruction{
		ProgramID: programID,
		Accounts: []operation.AccountMeta{
			{Address: stateAddress, Writable: true},
			{Address: topicAddress, Writable: true},
			{Address: payer, Signer: true, Writable: true},
		},
		Data: data,
	}, nil
}

// ParseCreateTopicData unpacks the name and description from a
// create-topic instruction. Used by the in-process program.
func ParseCreateTopicData(data []byte) (name, description string, err error) {
	if len(data) < 1 || data[0] != InsCreateTopic {
		return "", "", fmt.Errorf("registry: not a create-topic instruction")
	}
	rest := data[1:]
	if name, rest, err = readString(rest); err != nil {
		return "", "", err
	}
	if description, rest, err = readString(rest); err != nil {
		return "", "", err
	}
	if len(rest) != 0 {
		return "", "", fmt.Errorf("registry: trailing bytes in create-topic data")
	}
	return name, description, nil
}
