package operation

import (
	"errors"
	"testing"

	"voteledger/internal/ledger"
	"voteledger/internal/pubkey"
	"voteledger/internal/signer"
)

func sampleOperation(payer pubkey.PublicKey) Operation {
	program := pubkey.FromName("test.program")
	target := pubkey.FromName("test.target")

	return Operation{
		Payer:  payer,
		Anchor: ledger.Anchor{Hash: [32]byte{1, 2, 3}, LastValidHeight: 42},
		Instructions: []Instruction{
			{
				ProgramID: program,
				Accounts: []AccountMeta{
					{Address: target, Writable: true},
					{Address: payer, Signer: true, Writable: true},
				},
				Data: []byte{0, 9, 9},
			},
		},
	}
}

func TestEncode_Deterministic(t *testing.T) {
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	op := sampleOperation(id.PublicKey())

	first, err := op.Encode()
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	second, err := op.Encode()
	if err != nil {
		t.Fatalf("encoding again: %v", err)
	}
	if string(first) != string(second) {
		t.Error("encoding is not deterministic")
	}
}

func TestSignAndDecode(t *testing.T) {
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	op := sampleOperation(id.PublicKey())

	signed, err := Sign(op, id)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	decoded, err := DecodeSigned(signed.Bytes())
	if err != nil {
		t.Fatalf("decoding signed wire bytes: %v", err)
	}
	if decoded.Operation.Payer != op.Payer {
		t.Errorf("payer = %s, want %s", decoded.Operation.Payer, op.Payer)
	}
	if decoded.Operation.Anchor != op.Anchor {
		t.Errorf("anchor = %+v, want %+v", decoded.Operation.Anchor, op.Anchor)
	}
	if len(decoded.Operation.Instructions) != 1 {
		t.Fatalf("instruction count = %d, want 1", len(decoded.Operation.Instructions))
	}
	ins := decoded.Operation.Instructions[0]
	if !ins.Accounts[1].Signer || !ins.Accounts[1].Writable {
		t.Error("account flags lost in round trip")
	}
}

func TestSign_WrongPayerRejected(t *testing.T) {
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	op := sampleOperation(pubkey.FromName("test.somebody-else"))

	if _, err := Sign(op, id); err == nil {
		t.Error("expected signing to reject a payer that is not the signer")
	}
}

func TestDecode_Truncated(t *testing.T) {
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	signed, err := Sign(sampleOperation(id.PublicKey()), id)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	wire := signed.Bytes()
	if _, err := DecodeSigned(wire[:len(wire)-2]); err == nil {
		t.Error("expected truncated payload to be rejected")
	}
}

func TestEncode_NoInstructions(t *testing.T) {
	op := Operation{Payer: pubkey.FromName("test.payer")}
	if _, err := op.Encode(); err == nil {
		t.Error("expected empty operation to be rejected")
	}
}

func TestDecodeSigned_TamperedPayload(t *testing.T) {
	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	signed, err := Sign(sampleOperation(id.PublicKey()), id)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	wire := signed.Bytes()
	wire[len(wire)-1] ^= 0x01 // flip a data byte, signature now stale

	_, err = DecodeSigned(wire)
	if err == nil {
		t.Error("expected tampered payload to fail verification")
	}
	if errors.Is(err, errTruncated) {
		t.Errorf("tampering misreported as truncation: %v", err)
	}
}
