package mem

import "errors"

var (
	// ErrAllocation indicates that no allocation strategy could map the region.
	//
	// The wrapped errors describe each attempt in order.
	ErrAllocation = errors.New("mem: allocation failed")

	// ErrUnsupported indicates that the platform cannot provide the requested
	// page kind.
	ErrUnsupported = errors.New("mem: unsupported page kind")

	// ErrInvalidSize indicates a zero or negative region size.
	ErrInvalidSize = errors.New("mem: invalid size")
)
