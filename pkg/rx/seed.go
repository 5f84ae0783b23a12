package rx

import (
	"encoding/hex"
	"fmt"
)

// SeedSize is the length of the seed hash in bytes.
const SeedSize = 32

// Epoch parameters of the seed hash schedule.
const (
	SeedHashEpochLag    = 64
	SeedHashEpochBlocks = 2048
)

// Seed identifies the key a cache and dataset are derived from.
//
// Two seeds are equal when their algorithm and bytes match; the epoch is
// carried along for diagnostics only. Seed is an immutable value.
type Seed struct {
	alg   Algorithm
	data  [SeedSize]byte
	epoch uint64
}

// NewSeed returns a seed for alg. data must be exactly [SeedSize] bytes.
func NewSeed(alg Algorithm, data []byte, epoch uint64) (Seed, error) {
	if len(data) != SeedSize {
		return Seed{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSeed, len(data), SeedSize)
	}

	s := Seed{alg: alg, epoch: epoch}
	copy(s.data[:], data)

	return s, nil
}

// ParseSeed decodes a hex encoded seed hash.
func ParseSeed(alg Algorithm, hexSeed string, epoch uint64) (Seed, error) {
	data, err := hex.DecodeString(hexSeed)
	if err != nil {
		return Seed{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	return NewSeed(alg, data, epoch)
}

// Equal reports whether s and o select the same cache and dataset.
func (s Seed) Equal(o Seed) bool {
	return s.alg.Name == o.alg.Name && s.data == o.data
}

// IsZero reports whether s is the zero value (no seed).
func (s Seed) IsZero() bool {
	return s.alg.Name == ""
}

// Algorithm returns the algorithm the seed belongs to.
func (s Seed) Algorithm() Algorithm {
	return s.alg
}

// Bytes returns a copy of the seed hash.
func (s Seed) Bytes() [SeedSize]byte {
	return s.data
}

// Epoch returns the opaque epoch key.
func (s Seed) Epoch() uint64 {
	return s.epoch
}

// String returns "algo:hexprefix".
func (s Seed) String() string {
	if s.IsZero() {
		return "<none>"
	}

	return s.alg.Name + ":" + hex.EncodeToString(s.data[:8])
}

// SeedHeight returns the height of the block whose hash seeds the epoch that
// height belongs to.
func SeedHeight(height uint64) uint64 {
	if height <= SeedHashEpochBlocks+SeedHashEpochLag {
		return 0
	}

	return (height - SeedHashEpochLag - 1) & ^uint64(SeedHashEpochBlocks-1)
}

// SeedHeights returns the seed height for height and the one that takes over
// once the lag has passed.
func SeedHeights(height uint64) (seedHeight, nextHeight uint64) {
	return SeedHeight(height), SeedHeight(height + SeedHashEpochLag)
}
