package operation

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"voteledger/internal/pubkey"
	"voteledger/internal/signer"
)

// SignatureSize is the byte length of an operation signature.
const SignatureSize = ed25519.SignatureSize

// Signed is a sealed operation: signature over the canonical payload,
// followed by the payload itself.
type Signed struct {
	Signature [SignatureSize]byte
	Operation Operation
	payload   []byte
}

// Sign encodes the operation and signs it as the payer.
func Sign(op Operation, s signer.Signer) (Signed, error) {
	if op.Payer != s.PublicKey() {
		return Signed{}, fmt.Errorf("operation payer %s does not match signer %s", op.Payer, s.PublicKey())
	}

	payload, err := op.Encode()
	if err != nil {
		return Signed{}, err
	}

	sig, err := s.Sign(payload)
	if err != nil {
		return Signed{}, fmt.Errorf("signing operation: %w", err)
	}
	if len(sig) != SignatureSize {
		return Signed{}, fmt.Errorf("signer produced %d-byte signature, want %d", len(sig), SignatureSize)
	}

	var signed Signed
	copy(signed.Signature[:], sig)
	signed.Operation = op
	signed.payload = payload
	return signed, nil
}

// Bytes returns the wire form: signature || payload.
func (s Signed) Bytes() []byte {
	out := make([]byte, 0, SignatureSize+len(s.payload))
	out = append(out, s.Signature[:]...)
	out = append(out, s.payload...)
	return out
}

// DecodeSigned parses wire bytes and verifies the payer's signature.
func DecodeSigned(wire []byte) (Signed, error) {
	if len(wire) <= SignatureSize {
		return Signed{}, errors.New("operation: signed payload too short")
	}

	var s Signed
	copy(s.Signature[:], wire[:SignatureSize])
	s.payload = wire[SignatureSize:]

	op, err := Decode(s.payload)
	if err != nil {
		return Signed{}, err
	}
	s.Operation = op

	if !ed25519.Verify(ed25519.PublicKey(op.Payer[:]), s.payload, s.Signature[:]) {
		return Signed{}, errors.New("operation: signature verification failed")
	}
	return s, nil
}

// VerifiesFor reports whether the signature is valid for the given payer.
func (s Signed) VerifiesFor(payer pubkey.PublicKey) bool {
	return ed25519.Verify(ed25519.PublicKey(payer[:]), s.payload, s.Signature[:])
}
