package rx

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
)

// Mode selects between the full dataset and hashing against the cache.
type Mode int

const (
	// ModeAuto uses the full dataset and falls back to light mode when the
	// dataset cannot be allocated.
	ModeAuto Mode = iota
	// ModeFast always allocates the full dataset.
	ModeFast
	// ModeLight never allocates the dataset; items are computed from the
	// cache on every read.
	ModeLight
)

// ParseMode parses "auto", "fast" or "light". The empty string is auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ModeAuto, nil
	case "fast":
		return ModeFast, nil
	case "light":
		return ModeLight, nil
	default:
		return ModeAuto, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeFast:
		return "fast"
	case ModeLight:
		return "light"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Job is the part of a mining job the dataset layer needs.
type Job interface {
	Algorithm() Algorithm
	Seed() Seed
}

// Config carries the per-seed provisioning policy.
type Config struct {
	// Threads is the dataset fill parallelism per node. Zero or negative
	// means every available CPU, shared evenly when several nodes fill at
	// once.
	Threads int

	HugePages  bool
	OneGBPages bool
	Mode       Mode

	// Nodes lists the NUMA nodes to keep a dataset on. Empty means a single
	// dataset, keyed node 0, without any node binding.
	Nodes []uint32
}

// Request is one provisioning request handed to a storage.
type Request struct {
	Seed   Seed
	Config Config
}

// nodes returns the effective node set and whether datasets are bound.
func (r Request) nodes() ([]uint32, bool) {
	if len(r.Config.Nodes) == 0 {
		return []uint32{0}, false
	}

	nodes := slices.Clone(r.Config.Nodes)
	slices.Sort(nodes)

	return slices.Compact(nodes), true
}

// nodeThreads returns the fill parallelism for each of nodes datasets
// filled at once. An automatic count splits the CPUs evenly across nodes.
func nodeThreads(n, nodes int) int {
	if n > 0 || nodes <= 1 {
		return n
	}

	return max(runtime.NumCPU()/nodes, 1)
}

// clampThreads bounds n to [1, min(NumCPU, limit)].
func clampThreads(n int, limit uint64) int {
	maxThreads := runtime.NumCPU()
	if n <= 0 || n > maxThreads {
		n = maxThreads
	}

	if limit > 0 && uint64(n) > limit {
		n = int(limit)
	}

	return max(n, 1)
}

// NodePinner pins the calling goroutine to the CPUs of a NUMA node. The
// returned func undoes the pinning and must be called on the same goroutine.
type NodePinner interface {
	PinToNode(node uint32) (unpin func())
}

type noPinner struct{}

func (noPinner) PinToNode(uint32) func() { return func() {} }

func (r Request) validate() error {
	if r.Seed.IsZero() {
		return fmt.Errorf("%w: zero seed", ErrInvalidSeed)
	}

	alg := r.Seed.Algorithm()

	switch {
	case !alg.IsRandomX():
		return fmt.Errorf("%w: %s is not a RandomX algorithm", ErrInvalidAlgorithm, alg)
	case alg.CacheSize < DatasetItemSize:
		return fmt.Errorf("%w: %s cache size %d", ErrInvalidAlgorithm, alg, alg.CacheSize)
	case alg.DatasetSize < DatasetItemSize || alg.DatasetSize%DatasetItemSize != 0:
		return fmt.Errorf("%w: %s dataset size %d", ErrInvalidAlgorithm, alg, alg.DatasetSize)
	}

	return nil
}
