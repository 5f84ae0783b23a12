//go:build linux

package mem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mbind(2) policy; not exported by x/sys.
const mpolPreferred = 1

// System maps anonymous private memory with mmap(2).
type System struct{}

// Map implements [Allocator].
func (System) Map(size int, kind PageKind) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS

	switch kind {
	case PageHuge2M:
		flags |= unix.MAP_HUGETLB | unix.MAP_HUGE_2MB
	case PageHuge1G:
		flags |= unix.MAP_HUGETLB | unix.MAP_HUGE_1GB
	case PageStandard:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	return data, nil
}

// Unmap implements [Allocator].
func (System) Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	return unix.Munmap(data)
}

// Protect makes data read-only.
func (System) Protect(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	return unix.Mprotect(data, unix.PROT_READ)
}

// Bind asks the kernel to place data on node. Pages are not touched yet, so
// the policy applies on first write.
func (System) Bind(data []byte, node int) error {
	if len(data) == 0 {
		return nil
	}

	if node < 0 || node >= 64 {
		return fmt.Errorf("%w: node %d", ErrUnsupported, node)
	}

	mask := [1]uint64{1 << uint(node)}

	_, _, errno := unix.Syscall6(
		unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		mpolPreferred,
		uintptr(unsafe.Pointer(&mask[0])),
		uintptr(len(mask)*64+1),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("mbind node %d: %w", node, errno)
	}

	return nil
}
