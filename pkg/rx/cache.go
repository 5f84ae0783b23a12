package rx

import (
	"fmt"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

// Cache is the seed-expanded region datasets are filled from. In light mode
// hash workers read it directly.
//
// A Cache is written only while it is being built and is read-only once
// returned. It is reference counted; see [Dataset.Release].
type Cache struct {
	buf  *mem.Buffer
	seed Seed
	jit  bool
	refs refCount
}

// newCache allocates and expands a cache for seed. On error nothing leaks.
func newCache(e env, seed Seed, hugePages, oneGBPages bool) (*Cache, error) {
	alg := seed.Algorithm()

	buf, err := mem.AllocWith(e.alloc, alg.CacheSize, mem.Options{
		HugePages:  hugePages,
		OneGBPages: oneGBPages,
		Node:       -1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cache: %w", ErrAllocation, err)
	}

	err = e.expander.ExpandCache(seed, buf.Bytes())
	if err != nil {
		_ = buf.Close()

		return nil, fmt.Errorf("%w: cache: %w", ErrExpansion, err)
	}

	err = buf.Seal()
	if err != nil {
		e.log.Debugf("cache for %s not sealed: %v", seed, err)
	}

	c := &Cache{buf: buf, seed: seed, jit: e.expander.JIT()}
	c.refs.init()

	return c, nil
}

// Matches reports whether the cache was built for seed, in which case a
// rebuild can reuse it.
func (c *Cache) Matches(seed Seed) bool {
	return c != nil && c.seed.Equal(seed)
}

// Seed returns the seed the cache was expanded from.
func (c *Cache) Seed() Seed {
	return c.seed
}

// IsJIT reports whether the expansion ran on a compiled fast path.
func (c *Cache) IsJIT() bool {
	return c.jit
}

// Pages returns huge-page accounting for the cache region.
func (c *Cache) Pages() mem.Pages {
	return c.buf.Pages()
}

// Size returns the cache size in bytes.
func (c *Cache) Size() int {
	return c.buf.Size()
}

// Bytes returns the read-only cache contents.
func (c *Cache) Bytes() []byte {
	return c.buf.Bytes()
}

func (c *Cache) retain() bool {
	return c.refs.tryRetain()
}

func (c *Cache) release() {
	if c.refs.release() {
		_ = c.buf.Close()
	}
}
