package registry

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"voteledger/internal/addressing"
	"voteledger/internal/pubkey"
)

// DefaultProgramID is the built-in voting program identity.
var DefaultProgramID = pubkey.FromName("voteledger.vote.v1")

// Namespace seeds. These are the only inputs to state-record and
// topic-record address derivation, so every client computes the same
// addresses with no prior communication.
var (
	StateSeed = []byte("state")
	TopicSeed = []byte("topic")
)

// Record discriminators: the first 8 bytes of every record, identifying
// its layout. Also used as the data prefix when enumerating topics.
var (
	StateDiscriminator = recordDiscriminator("StateRecord")
	TopicDiscriminator = recordDiscriminator("TopicRecord")
)

func recordDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("record:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// StateRecord is the singleton counter record for a deployment.
type StateRecord struct {
	TopicCount uint64
}

// TopicRecord is one discussion topic. Index values are unique and dense
// in [0, TopicCount); the address is a pure function of Index.
type TopicRecord struct {
	Address     pubkey.PublicKey `json:"address"`
	Owner       pubkey.PublicKey `json:"owner"` // creator identity
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Index       uint64           `json:"index"`
}

// StateAddress derives the deployment's state-record address.
func StateAddress(programID pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	return addressing.Derive([][]byte{StateSeed}, programID)
}

// TopicAddress derives the address of the topic with the given index.
func TopicAddress(programID pubkey.PublicKey, index uint64) (pubkey.PublicKey, uint8, error) {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return addressing.Derive([][]byte{TopicSeed, idx[:]}, programID)
}

// EncodeState serializes a state record with its discriminator.
func EncodeState(s StateRecord) []byte {
	buf := make([]byte, 0, 16)
	buf = append(buf, StateDiscriminator[:]...)
	buf = binary.BigEndian.AppendUint64(buf, s.TopicCount)
	return buf
}

// DecodeState parses state-record bytes.
func DecodeState(data []byte) (StateRecord, error) {
	if len(data) != 16 || [8]byte(data[:8]) != StateDiscriminator {
		return StateRecord{}, fmt.Errorf("registry: not a state record (%d bytes)", len(data))
	}
	return StateRecord{TopicCount: binary.BigEndian.Uint64(data[8:])}, nil
}

// EncodeTopic serializes a topic record with its discriminator. The
// on-ledger address is not part of the data; it is where the data lives.
func EncodeTopic(t TopicRecord) []byte {
	buf := make([]byte, 0, 64+len(t.Name)+len(t.Description))
	buf = append(buf, TopicDiscriminator[:]...)
	buf = append(buf, t.Owner[:]...)
	buf = appendString(buf, t.Name)
	buf = appendString(buf, t.Description)
	buf = binary.BigEndian.AppendUint64(buf, t.Index)
	return buf
}

// DecodeTopic parses topic-record bytes. The caller fills in Address from
// the account the bytes were read from.
func DecodeTopic(data []byte) (TopicRecord, error) {
	var t TopicRecord
	if len(data) < 8 || [8]byte(data[:8]) != TopicDiscriminator {
		return t, fmt.Errorf("registry: not a topic record")
	}
	rest := data[8:]

	if len(rest) < pubkey.Size {
		return t, fmt.Errorf("registry: truncated topic record")
	}
	copy(t.Owner[:], rest[:pubkey.Size])
	rest = rest[pubkey.Size:]

	var err error
	if t.Name, rest, err = readString(rest); err != nil {
		return t, fmt.Errorf("registry: topic name: %w", err)
	}
	if t.Description, rest, err = readString(rest); err != nil {
		return t, fmt.Errorf("registry: topic description: %w", err)
	}
	if len(rest) != 8 {
		return t, fmt.Errorf("registry: truncated topic record")
	}
	t.Index = binary.BigEndian.Uint64(rest)
	return t, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("truncated length")
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < n {
		return "", nil, fmt.Errorf("truncated body")
	}
	return string(data[:n]), data[n:], nil
}
