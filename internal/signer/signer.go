// Package signer is the signing capability boundary. The rest of the
// system only ever sees the interface; private key material never leaves
// this package.
package signer

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"

	"voteledger/internal/pubkey"
)

// Signer can sign operation payloads for one identity.
type Signer interface {
	PublicKey() pubkey.PublicKey
	Sign(payload []byte) ([]byte, error)
}

// Local signs with an in-process ed25519 key.
type Local struct {
	priv ed25519.PrivateKey
	pub  pubkey.PublicKey
}

// NewLocal wraps an ed25519 private key.
func NewLocal(priv ed25519.PrivateKey) (*Local, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, err := pubkey.FromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Local{priv: priv, pub: pub}, nil
}

// LoadLocal reads a base58-encoded 32-byte ed25519 seed from a file.
func LoadLocal(path string) (*Local, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: reading key file: %w", err)
	}

	seed, err := base58.Decode(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("signer: decoding key file %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer: key file %s holds %d bytes, want %d-byte seed", path, len(seed), ed25519.SeedSize)
	}

	return NewLocal(ed25519.NewKeyFromSeed(seed))
}

// Generate creates a fresh random identity, for dev mode and tests.
func Generate() (*Local, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("signer: generating key: %w", err)
	}
	return NewLocal(priv)
}

// PublicKey returns the signer's identity address.
func (l *Local) PublicKey() pubkey.PublicKey {
	return l.pub
}

// Sign signs the payload with ed25519.
func (l *Local) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(l.priv, payload), nil
}
