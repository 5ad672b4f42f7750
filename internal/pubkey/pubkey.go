package pubkey

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Size is the byte length of a public key / account address.
const Size = 32

// PublicKey is a 32-byte account address. Ordinary keys are ed25519 curve
// points; derived addresses are deliberately off-curve so no private key
// can ever sign for them.
type PublicKey [Size]byte

// Zero is the all-zero address, used as a "not set" sentinel.
var Zero PublicKey

// FromBytes builds a PublicKey from a raw 32-byte slice.
func FromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != Size {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", Size, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// FromName hashes a well-known name into a fixed address. Used for the
// built-in program identities, which are agreed constants rather than
// keypairs anyone holds.
func FromName(name string) PublicKey {
	return PublicKey(sha256.Sum256([]byte(name)))
}

// Parse decodes a base58-encoded address.
func Parse(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return FromBytes(raw)
}

// MustParse is Parse that panics on error, for fixed well-known addresses.
func MustParse(s string) PublicKey {
	pk, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding of the key.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the raw key bytes.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, pk[:])
	return b
}

// IsZero reports whether the key is the zero sentinel.
func (pk PublicKey) IsZero() bool {
	return pk == Zero
}

// Equal reports byte equality with another key.
func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// IsOnCurve reports whether the key bytes decode to a valid ed25519 curve
// point. Derived addresses must be off-curve.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// MarshalText implements encoding.TextMarshaler so addresses render as
// base58 in JSON payloads.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
