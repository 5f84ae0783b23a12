package mem

import (
	"errors"
	"fmt"
	"sync"
)

// Allocator maps and unmaps anonymous memory.
//
// Implementations may additionally implement Protect([]byte) error to make a
// mapping read-only and Bind([]byte, int) error to prefer a NUMA node. Both
// are optional and best-effort.
type Allocator interface {
	// Map returns a zeroed, writable mapping of exactly size bytes backed by
	// pages of the given kind. size is already aligned to the kind.
	Map(size int, kind PageKind) ([]byte, error)

	// Unmap releases a mapping previously returned by Map.
	Unmap(data []byte) error
}

type protector interface {
	Protect(data []byte) error
}

type binder interface {
	Bind(data []byte, node int) error
}

// Options select the allocation strategy.
type Options struct {
	// HugePages tries 2 MiB pages before standard pages.
	HugePages bool

	// OneGBPages tries 1 GiB pages before 2 MiB pages. Implies HugePages.
	OneGBPages bool

	// Node is the preferred NUMA node, or -1 for no preference.
	Node int
}

func (o Options) kinds() []PageKind {
	switch {
	case o.OneGBPages:
		return []PageKind{PageHuge1G, PageHuge2M, PageStandard}
	case o.HugePages:
		return []PageKind{PageHuge2M, PageStandard}
	default:
		return []PageKind{PageStandard}
	}
}

// Buffer is a single owned memory region.
//
// Bytes may be read concurrently. Writes are only allowed by the owner before
// Seal. Close must not race with readers; callers coordinate that with
// reference counting.
type Buffer struct {
	alloc Allocator
	data  []byte // full mapping, aligned length
	size  int
	kind  PageKind
	pages Pages
	node  int

	mu     sync.Mutex
	sealed bool
	closed bool
}

// Alloc maps size bytes with the [System] allocator.
func Alloc(size int, opts Options) (*Buffer, error) {
	return AllocWith(System{}, size, opts)
}

// AllocWith maps size bytes with alloc, trying each page kind allowed by
// opts until one succeeds.
func AllocWith(alloc Allocator, size int, opts Options) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	kinds := opts.kinds()

	var attempted uint32
	if kinds[0] != PageStandard {
		attempted = pagesFor(size)
	}

	var errs []error

	for _, kind := range kinds {
		data, err := alloc.Map(alignUp(size, kind.alignment()), kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s pages: %w", kind, err))
			continue
		}

		buf := &Buffer{
			alloc: alloc,
			data:  data,
			size:  size,
			kind:  kind,
			node:  -1,
			pages: Pages{Attempted: attempted},
		}

		if kind != PageStandard {
			buf.pages.Allocated = attempted
		}

		if opts.Node >= 0 {
			if b, ok := alloc.(binder); ok && b.Bind(data, opts.Node) == nil {
				buf.node = opts.Node
			}
		}

		return buf, nil
	}

	return nil, fmt.Errorf("%w: %d bytes: %w", ErrAllocation, size, errors.Join(errs...))
}

// Bytes returns the usable region. After Seal writes fault.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Size returns the requested size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Kind returns the page kind that backs the mapping.
func (b *Buffer) Kind() PageKind {
	return b.kind
}

// Pages returns huge-page accounting for this buffer.
func (b *Buffer) Pages() Pages {
	return b.pages
}

// Node returns the NUMA node the mapping is bound to, or -1.
func (b *Buffer) Node() int {
	return b.node
}

// Seal makes the mapping read-only when the allocator supports it.
// Calling Seal more than once is a no-op.
func (b *Buffer) Seal() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed || b.closed {
		return nil
	}

	b.sealed = true

	p, ok := b.alloc.(protector)
	if !ok {
		return nil
	}

	err := p.Protect(b.data)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}

	return nil
}

// Close releases the mapping. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	err := b.alloc.Unmap(b.data)
	b.data = nil
	b.size = 0

	if err != nil {
		return fmt.Errorf("unmap: %w", err)
	}

	return nil
}
