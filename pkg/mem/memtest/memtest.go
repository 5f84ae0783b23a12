// Package memtest provides a heap-backed [mem.Allocator] for tests that need
// to simulate huge-page shortages and allocation failures.
package memtest

import (
	"errors"
	"sync"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

// ErrInjected is returned by Map for page kinds configured to fail.
var ErrInjected = errors.New("memtest: injected allocation failure")

// Allocator is a concurrency-safe fake allocator.
type Allocator struct {
	mu      sync.Mutex
	failing map[mem.PageKind]bool
	limit   int
	maps    map[mem.PageKind]int
	unmaps  int
	live    int
}

// New returns an allocator where every page kind succeeds.
func New() *Allocator {
	return &Allocator{
		failing: map[mem.PageKind]bool{},
		maps:    map[mem.PageKind]int{},
	}
}

// NoHugePages returns an allocator that fails every huge-page request, as on
// a host with no reserved huge pages.
func NoHugePages() *Allocator {
	return New().Fail(mem.PageHuge2M, mem.PageHuge1G)
}

// Fail makes Map return [ErrInjected] for the given kinds.
func (a *Allocator) Fail(kinds ...mem.PageKind) *Allocator {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, k := range kinds {
		a.failing[k] = true
	}

	return a
}

// Heal clears every injected failure.
func (a *Allocator) Heal() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.failing)
	a.limit = 0
}

// FailLarger makes Map return [ErrInjected] for every mapping larger than
// size bytes, whatever the page kind. Zero removes the limit.
func (a *Allocator) FailLarger(size int) *Allocator {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.limit = size

	return a
}

// Map implements [mem.Allocator].
func (a *Allocator) Map(size int, kind mem.PageKind) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failing[kind] || (a.limit > 0 && size > a.limit) {
		return nil, ErrInjected
	}

	a.maps[kind]++
	a.live++

	return make([]byte, size), nil
}

// Unmap implements [mem.Allocator].
func (a *Allocator) Unmap([]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.unmaps++
	a.live--

	return nil
}

// Maps returns the number of successful mappings of the given kind.
func (a *Allocator) Maps(kind mem.PageKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.maps[kind]
}

// TotalMaps returns the number of successful mappings of any kind.
func (a *Allocator) TotalMaps() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, c := range a.maps {
		n += c
	}

	return n
}

// Live returns the number of mappings not yet unmapped.
func (a *Allocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.live
}
