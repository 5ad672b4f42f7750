// Package operation defines the wire form of ledger operations: a payer
// identity, an anchor pinning the operation to a recent chain point, and
// an ordered list of program instructions. Encoding is deterministic so
// the same operation always signs to the same bytes.
package operation

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voteledger/internal/ledger"
	"voteledger/internal/pubkey"
)

// AccountMeta names an account an instruction touches and how.
type AccountMeta struct {
	Address  pubkey.PublicKey
	Signer   bool
	Writable bool
}

// Instruction is one typed call into an on-ledger program.
type Instruction struct {
	ProgramID pubkey.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Operation is an unsigned bundle of instructions. All instructions apply
// atomically or not at all; the ledger enforces this.
type Operation struct {
	Payer        pubkey.PublicKey
	Anchor       ledger.Anchor
	Instructions []Instruction
}

const (
	flagSigner   = 0x01
	flagWritable = 0x02

	// MaxInstructions bounds one operation.
	MaxInstructions = 16
)

var errTruncated = errors.New("operation: truncated payload")

// Encode serializes the operation into its canonical signing payload.
func (op Operation) Encode() ([]byte, error) {
	if len(op.Instructions) == 0 {
		return nil, errors.New("operation: no instructions")
	}
	if len(op.Instructions) > MaxInstructions {
		return nil, fmt.Errorf("operation: too many instructions (%d, max %d)", len(op.Instructions), MaxInstructions)
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, op.Anchor.Hash[:]...)
	buf = binary.BigEndian.AppendUint64(buf, op.Anchor.LastValidHeight)
	buf = append(buf, op.Payer[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(op.Instructions)))

	for _, ins := range op.Instructions {
		buf = append(buf, ins.ProgramID[:]...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(ins.Accounts)))
		for _, acct := range ins.Accounts {
			buf = append(buf, acct.Address[:]...)
			var flags byte
			if acct.Signer {
				flags |= flagSigner
			}
			if acct.Writable {
				flags |= flagWritable
			}
			buf = append(buf, flags)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(ins.Data)))
		buf = append(buf, ins.Data...)
	}

	return buf, nil
}

// Decode parses a canonical payload back into an Operation.
func Decode(payload []byte) (Operation, error) {
	var op Operation
	r := reader{buf: payload}

	hash, err := r.bytes(32)
	if err != nil {
		return op, err
	}
	copy(op.Anchor.Hash[:], hash)
	if op.Anchor.LastValidHeight, err = r.uint64(); err != nil {
		return op, err
	}
	if op.Payer, err = r.pubkey(); err != nil {
		return op, err
	}

	count, err := r.uint16()
	if err != nil {
		return op, err
	}
	if count == 0 || count > MaxInstructions {
		return op, fmt.Errorf("operation: invalid instruction count %d", count)
	}

	for i := 0; i < int(count); i++ {
		var ins Instruction
		if ins.ProgramID, err = r.pubkey(); err != nil {
			return op, err
		}
		accounts, err := r.uint16()
		if err != nil {
			return op, err
		}
		for j := 0; j < int(accounts); j++ {
			var meta AccountMeta
			if meta.Address, err = r.pubkey(); err != nil {
				return op, err
			}
			flags, err := r.byte()
			if err != nil {
				return op, err
			}
			meta.Signer = flags&flagSigner != 0
			meta.Writable = flags&flagWritable != 0
			ins.Accounts = append(ins.Accounts, meta)
		}
		dataLen, err := r.uint32()
		if err != nil {
			return op, err
		}
		if ins.Data, err = r.bytes(int(dataLen)); err != nil {
			return op, err
		}
		op.Instructions = append(op.Instructions, ins)
	}

	if !r.empty() {
		return op, errors.New("operation: trailing bytes after instructions")
	}
	return op, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, errTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) pubkey() (pubkey.PublicKey, error) {
	b, err := r.bytes(pubkey.Size)
	if err != nil {
		return pubkey.Zero, err
	}
	return pubkey.FromBytes(b)
}

func (r *reader) empty() bool {
	return r.off == len(r.buf)
}
