//go:build !linux

package mem

import "fmt"

// System allocates standard pages from the Go heap. Huge pages are not
// available on this platform.
type System struct{}

// Map implements [Allocator].
func (System) Map(size int, kind PageKind) ([]byte, error) {
	if kind != PageStandard {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}

	return make([]byte, size), nil
}

// Unmap implements [Allocator]. The memory is reclaimed by the garbage
// collector.
func (System) Unmap([]byte) error {
	return nil
}
