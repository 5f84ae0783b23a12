package rx_test

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calvinalkan/rxmine/pkg/rx"
)

// testAlg is a RandomX-family algorithm small enough to build in
// milliseconds.
var testAlg = rx.Algorithm{
	Name:        "rx/test",
	Family:      rx.FamilyRandomX,
	CacheSize:   4096,
	DatasetSize: 256 * rx.DatasetItemSize,
	Salt:        "RandomTEST\x01",
}

// largeAlg has a dataset large enough to be told apart from its cache by
// allocation size on any page size.
var largeAlg = rx.Algorithm{
	Name:        "rx/test-large",
	Family:      rx.FamilyRandomX,
	CacheSize:   4096,
	DatasetSize: 1 << 20,
	Salt:        "RandomTEST\x02",
}

func seedFor(t *testing.T, alg rx.Algorithm, b byte) rx.Seed {
	t.Helper()

	s, err := rx.NewSeed(alg, bytes.Repeat([]byte{b}, rx.SeedSize), uint64(b))
	if err != nil {
		t.Fatalf("NewSeed: %v", err)
	}

	return s
}

type testJob struct {
	alg  rx.Algorithm
	seed rx.Seed
}

func jobFor(seed rx.Seed) testJob {
	return testJob{alg: seed.Algorithm(), seed: seed}
}

func (j testJob) Algorithm() rx.Algorithm { return j.alg }
func (j testJob) Seed() rx.Seed           { return j.seed }

// countingExpander counts cache expansions per seed.
type countingExpander struct {
	rx.Expander

	mu     sync.Mutex
	caches map[string]int
	items  atomic.Int64
}

func newCountingExpander() *countingExpander {
	return &countingExpander{Expander: rx.DefaultExpander(), caches: map[string]int{}}
}

func (c *countingExpander) ExpandCache(seed rx.Seed, dst []byte) error {
	c.mu.Lock()
	c.caches[seed.String()]++
	c.mu.Unlock()

	return c.Expander.ExpandCache(seed, dst)
}

func (c *countingExpander) DatasetItem(cache []byte, index uint64, dst []byte) {
	c.items.Add(1)
	c.Expander.DatasetItem(cache, index, dst)
}

func (c *countingExpander) Caches(seed rx.Seed) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.caches[seed.String()]
}

// gatedExpander blocks the cache expansion of one seed until Open is called.
type gatedExpander struct {
	rx.Expander

	gated   rx.Seed
	started chan struct{}
	gate    chan struct{}
}

func newGatedExpander(gated rx.Seed) *gatedExpander {
	return &gatedExpander{
		Expander: rx.DefaultExpander(),
		gated:    gated,
		started:  make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
}

func (g *gatedExpander) ExpandCache(seed rx.Seed, dst []byte) error {
	if seed.Equal(g.gated) {
		select {
		case g.started <- struct{}{}:
		default:
		}

		<-g.gate
	}

	return g.Expander.ExpandCache(seed, dst)
}

func (g *gatedExpander) WaitStarted(t *testing.T) {
	t.Helper()

	select {
	case <-g.started:
	case <-time.After(10 * time.Second):
		t.Fatal("gated build did not start")
	}
}

func (g *gatedExpander) Open() {
	close(g.gate)
}

// countingPinner records pins per node.
type countingPinner struct {
	mu   sync.Mutex
	pins map[uint32]int
}

func newCountingPinner() *countingPinner {
	return &countingPinner{pins: map[uint32]int{}}
}

func (p *countingPinner) PinToNode(node uint32) func() {
	p.mu.Lock()
	p.pins[node]++
	p.mu.Unlock()

	return func() {}
}

func (p *countingPinner) Pins(node uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.pins[node]
}

func waitEvent(t *testing.T, r *rx.Rx) rx.Event {
	t.Helper()

	select {
	case ev, ok := <-r.Events():
		if !ok {
			t.Fatal("events channel closed")
		}

		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for dataset event")
	}

	return rx.Event{}
}

func closeRx(t *testing.T, r *rx.Rx) {
	t.Helper()

	err := r.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
}
