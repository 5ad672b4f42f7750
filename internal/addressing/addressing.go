// Package addressing computes deterministic storage addresses from public
// seed data. Any client can compute where a piece of state lives before it
// exists; no coordination or allocation step is involved.
package addressing

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"voteledger/internal/pubkey"
)

// derivationDomain separates derived-address hashing from every other use
// of SHA-256 in the protocol. Changing it changes every address.
const derivationDomain = "VoteLedgerDerivedAddress"

const (
	// MaxSeeds is the maximum number of seeds in one derivation.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed in bytes.
	MaxSeedLen = 32
)

// ErrNoValidBump is returned when no bump in [0,255] yields an off-curve
// address for the seed set. Probability is negligible but the caller must
// still handle it.
var ErrNoValidBump = errors.New("addressing: no valid off-curve address for seeds")

// Derive computes the unique off-curve address for a seed sequence under a
// program namespace, scanning bumps from 255 downward and returning the
// first bump whose digest is not a curve point.
//
// The returned bump is stable for a given (seeds, programID) pair, but
// callers should cache it per session rather than persist it: it is
// recomputable from public data at any time.
func Derive(seeds [][]byte, programID pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	if err := validateSeeds(seeds); err != nil {
		return pubkey.Zero, 0, err
	}

	for bump := 255; bump >= 0; bump-- {
		addr, err := DeriveWithBump(seeds, uint8(bump), programID)
		if err != nil {
			return pubkey.Zero, 0, err
		}
		if !addr.IsOnCurve() {
			return addr, uint8(bump), nil
		}
	}

	return pubkey.Zero, 0, ErrNoValidBump
}

// DeriveWithBump recomputes the address for a known bump. The result may be
// on-curve; callers verifying a stored derivation must check that the bump
// matches what Derive would have chosen.
func DeriveWithBump(seeds [][]byte, bump uint8, programID pubkey.PublicKey) (pubkey.PublicKey, error) {
	if err := validateSeeds(seeds); err != nil {
		return pubkey.Zero, err
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte(derivationDomain))

	return pubkey.FromBytes(h.Sum(nil))
}

func validateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("addressing: too many seeds (%d, max %d)", len(seeds), MaxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return fmt.Errorf("addressing: seed %d too long (%d bytes, max %d)", i, len(seed), MaxSeedLen)
		}
	}
	return nil
}
