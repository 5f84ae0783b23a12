package rx

import "errors"

var (
	// ErrAllocation indicates the cache or dataset memory could not be mapped
	// with any page kind.
	//
	// Recovery: none needed; the storage keeps the previous dataset.
	ErrAllocation = errors.New("rx: allocation failed")

	// ErrExpansion indicates the seed expansion or dataset fill failed.
	//
	// Recovery: none needed; the storage keeps the previous dataset.
	ErrExpansion = errors.New("rx: expansion failed")

	// ErrClosed indicates the storage has been closed.
	ErrClosed = errors.New("rx: closed")

	// ErrInvalidSeed indicates seed bytes of the wrong length or encoding.
	ErrInvalidSeed = errors.New("rx: invalid seed")

	// ErrUnknownAlgorithm indicates an algorithm name not in the registry.
	ErrUnknownAlgorithm = errors.New("rx: unknown algorithm")

	// ErrInvalidMode indicates a mode name other than auto, fast or light.
	ErrInvalidMode = errors.New("rx: invalid mode")
)

// ErrInvalidAlgorithm indicates a request for an algorithm that has no
// cache or dataset, or whose sizes are not usable.
var ErrInvalidAlgorithm = errors.New("rx: invalid algorithm")
