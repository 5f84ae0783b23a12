package rx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Expander is the key expansion primitive the cache and dataset are built
// with. Implementations must be safe for concurrent use: DatasetItem is
// called from every fill goroutine and, in light mode, from hash workers.
type Expander interface {
	// ExpandCache fills dst deterministically from seed.
	ExpandCache(seed Seed, dst []byte) error

	// DatasetItem writes item index into dst ([DatasetItemSize] bytes),
	// reading only from cache.
	DatasetItem(cache []byte, index uint64, dst []byte)

	// JIT reports whether expansion runs on a compiled fast path.
	JIT() bool
}

// Key derivation parameters. Memory is in KiB.
const (
	keyTime    = 1
	keyMemory  = 1024
	keyThreads = 1
	keyLen     = 64

	itemRounds = 8
)

var errCacheTooSmall = errors.New("cache smaller than one item")

// DefaultExpander returns the built-in expander: an argon2id key over the
// seed and algorithm salt, a blake2b XOF stream for the cache, and items
// that mix eight cache lines chosen by the running blake2b-512 state.
//
// It is a portable stand-in for the RandomX primitives, not a compatible
// implementation.
func DefaultExpander() Expander {
	return blakeExpander{}
}

type blakeExpander struct{}

func (blakeExpander) JIT() bool { return false }

func (blakeExpander) ExpandCache(seed Seed, dst []byte) error {
	if len(dst) < DatasetItemSize {
		return errCacheTooSmall
	}

	data := seed.Bytes()
	key := argon2.IDKey(data[:], []byte(seed.Algorithm().Salt), keyTime, keyMemory, keyThreads, keyLen)

	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, key)
	if err != nil {
		return fmt.Errorf("blake2b xof: %w", err)
	}

	_, err = io.ReadFull(xof, dst)
	if err != nil {
		return fmt.Errorf("blake2b xof: %w", err)
	}

	return nil
}

func (blakeExpander) DatasetItem(cache []byte, index uint64, dst []byte) {
	lines := uint64(len(cache) / DatasetItemSize)

	var state [blake2b.Size]byte
	binary.LittleEndian.PutUint64(state[:8], index)

	line := index % lines

	for range itemRounds {
		off := line * DatasetItemSize
		for i := range state {
			state[i] ^= cache[off+uint64(i)]
		}

		state = blake2b.Sum512(state[:])
		line = binary.LittleEndian.Uint64(state[:8]) % lines
	}

	copy(dst, state[:])
}
