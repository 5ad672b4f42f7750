// Package token models the fungible vote credential: mint records,
// per-owner balance accounts at derived associated addresses, and the
// instructions that create and move balances.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"voteledger/internal/addressing"
	"voteledger/internal/ledger"
	"voteledger/internal/pubkey"
)

// Built-in program identities.
var (
	// DefaultProgramID owns mint and balance accounts.
	DefaultProgramID = pubkey.FromName("voteledger.token.v1")

	// DefaultAssociationProgramID is the namespace under which associated
	// balance addresses are derived.
	DefaultAssociationProgramID = pubkey.FromName("voteledger.association.v1")
)

// Record discriminators.
var (
	MintDiscriminator    = discriminator("MintRecord")
	BalanceDiscriminator = discriminator("BalanceRecord")
)

func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("record:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Mint describes the voting asset.
type Mint struct {
	Supply   uint64
	Decimals uint8
}

// Balance is a quantity of the asset held for one owner. Owners may be
// wallet identities or derived topic addresses; the address of the
// balance account itself is derived from (mint, owner).
type Balance struct {
	Mint   pubkey.PublicKey
	Owner  pubkey.PublicKey
	Amount uint64
}

// AssociatedAddress derives the canonical balance-account address for an
// (mint, owner) pair: a second application of the same derivation scheme,
// under the association namespace.
func AssociatedAddress(mint, owner pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	return AssociatedAddressUnder(DefaultAssociationProgramID, DefaultProgramID, mint, owner)
}

// AssociatedAddressUnder is AssociatedAddress with explicit program
// identities, for deployments that override the built-ins.
func AssociatedAddressUnder(associationProgramID, tokenProgramID, mint, owner pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	seeds := [][]byte{owner[:], tokenProgramID[:], mint[:]}
	return addressing.Derive(seeds, associationProgramID)
}

// EncodeMint serializes a mint record.
func EncodeMint(m Mint) []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, MintDiscriminator[:]...)
	buf = binary.BigEndian.AppendUint64(buf, m.Supply)
	buf = append(buf, m.Decimals)
	return buf
}

// DecodeMint parses mint-record bytes.
func DecodeMint(data []byte) (Mint, error) {
	if len(data) != 17 || [8]byte(data[:8]) != MintDiscriminator {
		return Mint{}, fmt.Errorf("token: not a mint record (%d bytes)", len(data))
	}
	return Mint{
		Supply:   binary.BigEndian.Uint64(data[8:16]),
		Decimals: data[16],
	}, nil
}

// EncodeBalance serializes a balance record.
func EncodeBalance(b Balance) []byte {
	buf := make([]byte, 0, 80)
	buf = append(buf, BalanceDiscriminator[:]...)
	buf = append(buf, b.Mint[:]...)
	buf = append(buf, b.Owner[:]...)
	buf = binary.BigEndian.AppendUint64(buf, b.Amount)
	return buf
}

// DecodeBalance parses balance-record bytes.
func DecodeBalance(data []byte) (Balance, error) {
	if len(data) != 8+2*pubkey.Size+8 || [8]byte(data[:8]) != BalanceDiscriminator {
		return Balance{}, fmt.Errorf("token: not a balance record (%d bytes)", len(data))
	}
	var b Balance
	copy(b.Mint[:], data[8:40])
	copy(b.Owner[:], data[40:72])
	b.Amount = binary.BigEndian.Uint64(data[72:80])
	return b, nil
}

// Scale reads the mint record and returns the base-unit scale, 10^decimals.
// One human-entered vote moves this many raw units.
func Scale(ctx context.Context, r ledger.Reader, mint pubkey.PublicKey) (uint64, error) {
	acct, err := r.ReadAccount(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("token: reading mint %s: %w", mint, err)
	}
	m, err := DecodeMint(acct.Data)
	if err != nil {
		return 0, err
	}

	scale := uint64(1)
	for i := uint8(0); i < m.Decimals; i++ {
		scale *= 10
	}
	return scale, nil
}
