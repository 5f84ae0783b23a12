package rx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/calvinalkan/rxmine/pkg/mem"
	"golang.org/x/crypto/blake2b"
)

// fillCheckInterval is how many items a fill goroutine writes between
// context checks.
const fillCheckInterval = 1 << 14

// Dataset is the structure hash workers read items from.
//
// A Dataset is only reachable by readers after its fill has joined, and it
// is never written again. Rebuilding for a new seed produces a new Dataset.
type Dataset struct {
	buf      *mem.Buffer // nil in light mode
	cache    *Cache
	expander Expander
	mode     Mode
	node     uint32
	items    uint64
	refs     refCount
}

// segment is a contiguous item range filled by one goroutine.
type segment struct {
	start uint64
	count uint64
}

// partition splits items into threads contiguous, non-overlapping segments
// that cover [0, items). Earlier segments take the remainder.
func partition(items uint64, threads int) []segment {
	if items == 0 {
		return nil
	}

	n := uint64(max(threads, 1))
	n = min(n, items)

	per, rem := items/n, items%n
	segs := make([]segment, 0, n)

	var start uint64

	for i := range n {
		count := per
		if i < rem {
			count++
		}

		segs = append(segs, segment{start: start, count: count})
		start += count
	}

	return segs
}

// newDataset builds a dataset for node from cache. The cache is retained for
// the lifetime of the dataset. In ModeAuto a failed allocation degrades to
// light mode instead of failing.
func newDataset(ctx context.Context, e env, cache *Cache, cfg Config, node uint32, bind bool) (*Dataset, error) {
	if !cache.retain() {
		return nil, fmt.Errorf("%w: cache released", ErrClosed)
	}

	alg := cache.seed.Algorithm()

	d := &Dataset{
		cache:    cache,
		expander: e.expander,
		mode:     ModeLight,
		node:     node,
		items:    alg.Items(),
	}
	d.refs.init()

	if cfg.Mode == ModeLight {
		return d, nil
	}

	memNode := -1
	if bind {
		memNode = int(node)
	}

	buf, err := mem.AllocWith(e.alloc, alg.DatasetSize, mem.Options{
		HugePages:  cfg.HugePages,
		OneGBPages: cfg.OneGBPages,
		Node:       memNode,
	})
	if err != nil {
		if cfg.Mode == ModeAuto {
			e.log.Warnf("failed to allocate RandomX dataset on node %d, switching to slow mode: %v", node, err)

			return d, nil
		}

		cache.release()

		return nil, fmt.Errorf("%w: dataset: %w", ErrAllocation, err)
	}

	d.buf = buf
	d.mode = ModeFast

	err = d.fill(ctx, e.pinner, clampThreads(cfg.Threads, d.items), bind)
	if err != nil {
		d.free()

		return nil, fmt.Errorf("fill dataset: %w", err)
	}

	err = buf.Seal()
	if err != nil {
		e.log.Debugf("dataset on node %d not sealed: %v", node, err)
	}

	return d, nil
}

func (d *Dataset) fill(ctx context.Context, pinner NodePinner, threads int, bind bool) error {
	segs := partition(d.items, threads)
	cache := d.cache.Bytes()
	raw := d.buf.Bytes()
	errs := make([]error, len(segs))

	var wg sync.WaitGroup

	for i, seg := range segs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if bind {
				unpin := pinner.PinToNode(d.node)
				defer unpin()
			}

			errs[i] = fillSegment(ctx, d.expander, cache, raw, seg)
		}()
	}

	wg.Wait()

	return errors.Join(errs...)
}

func fillSegment(ctx context.Context, exp Expander, cache, raw []byte, seg segment) error {
	end := seg.start + seg.count

	for i := seg.start; i < end; i++ {
		if (i-seg.start)%fillCheckInterval == 0 {
			err := ctx.Err()
			if err != nil {
				return err
			}
		}

		off := i * DatasetItemSize
		exp.DatasetItem(cache, i, raw[off:off+DatasetItemSize])
	}

	return nil
}

// Seed returns the seed the dataset was built for.
func (d *Dataset) Seed() Seed {
	return d.cache.seed
}

// Cache returns the cache the dataset was filled from.
func (d *Dataset) Cache() *Cache {
	return d.cache
}

// Mode returns ModeFast or ModeLight.
func (d *Dataset) Mode() Mode {
	return d.mode
}

// Node returns the NUMA node the dataset is keyed by.
func (d *Dataset) Node() uint32 {
	return d.node
}

// Items returns the number of items.
func (d *Dataset) Items() uint64 {
	return d.items
}

// Size returns the dataset size in bytes, zero in light mode.
func (d *Dataset) Size() int {
	if d.buf == nil {
		return 0
	}

	return d.buf.Size()
}

// Pages returns huge-page accounting for the dataset region, excluding the
// cache.
func (d *Dataset) Pages() mem.Pages {
	if d.buf == nil {
		return mem.Pages{}
	}

	return d.buf.Pages()
}

// Raw returns the read-only dataset memory, or nil in light mode.
func (d *Dataset) Raw() []byte {
	if d.buf == nil {
		return nil
	}

	return d.buf.Bytes()
}

// Item writes item index into dst, which must hold [DatasetItemSize] bytes.
// In light mode the item is recomputed from the cache.
func (d *Dataset) Item(index uint64, dst []byte) {
	index %= d.items

	if d.buf == nil {
		d.expander.DatasetItem(d.cache.Bytes(), index, dst)
		return
	}

	off := index * DatasetItemSize
	copy(dst, d.buf.Bytes()[off:off+DatasetItemSize])
}

// Checksum hashes the dataset memory, or the cache in light mode.
func (d *Dataset) Checksum() [32]byte {
	if d.buf == nil {
		return blake2b.Sum256(d.cache.Bytes())
	}

	return blake2b.Sum256(d.buf.Bytes())
}

// Release returns a reference obtained from DatasetFor. The dataset must not
// be used afterwards.
func (d *Dataset) Release() {
	if d.refs.release() {
		d.free()
	}
}

func (d *Dataset) retain() bool {
	return d.refs.tryRetain()
}

func (d *Dataset) free() {
	if d.buf != nil {
		_ = d.buf.Close()
	}

	d.cache.release()
}
