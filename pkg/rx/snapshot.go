package rx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

const oneMiB = 1 << 20

// snapshot is an immutable set of datasets for one seed, one per node. It is
// the unit of publication: readers load it with a single atomic read.
type snapshot struct {
	seed     Seed
	nodes    []uint32 // sorted
	datasets map[uint32]*Dataset
	pages    mem.Pages
	elapsed  time.Duration
}

// covers reports whether the snapshot serves seed on every node in nodes.
func (s *snapshot) covers(seed Seed, nodes []uint32) bool {
	if s == nil || !s.seed.Equal(seed) {
		return false
	}

	for _, n := range nodes {
		if _, ok := s.datasets[n]; !ok {
			return false
		}
	}

	return true
}

// dataset returns the dataset for node, or the lowest node's dataset when
// node is not part of the set.
func (s *snapshot) dataset(node uint32) *Dataset {
	if ds, ok := s.datasets[node]; ok {
		return ds
	}

	return s.datasets[s.nodes[0]]
}

func (s *snapshot) release() {
	if s == nil {
		return
	}

	for _, ds := range s.datasets {
		ds.Release()
	}
}

func (s *snapshot) event() Event {
	return Event{
		Seed:    s.seed,
		Nodes:   append([]uint32(nil), s.nodes...),
		Pages:   s.pages,
		Elapsed: s.elapsed,
	}
}

// buildSnapshot fills one dataset per requested node from cache, in
// parallel. Either every dataset is built or none is returned.
func buildSnapshot(ctx context.Context, e env, cache *Cache, req Request, start time.Time) (*snapshot, error) {
	nodes, bind := req.nodes()

	cfg := req.Config
	cfg.Threads = nodeThreads(cfg.Threads, len(nodes))

	datasets := make([]*Dataset, len(nodes))
	errs := make([]error, len(nodes))

	var wg sync.WaitGroup

	for i, node := range nodes {
		wg.Add(1)

		go func() {
			defer wg.Done()

			datasets[i], errs[i] = newDataset(ctx, e, cache, cfg, node, bind)
		}()
	}

	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		for _, ds := range datasets {
			if ds != nil {
				ds.Release()
			}
		}

		return nil, err
	}

	snap := &snapshot{
		seed:     req.Seed,
		nodes:    nodes,
		datasets: make(map[uint32]*Dataset, len(nodes)),
		pages:    cache.Pages(),
	}

	datasetBytes := 0

	for _, ds := range datasets {
		snap.datasets[ds.Node()] = ds
		snap.pages = snap.pages.Add(ds.Pages())
		datasetBytes += ds.Size()
	}

	snap.elapsed = time.Since(start)

	logAllocated(e, snap, cache, datasetBytes)

	return snap, nil
}

func logAllocated(e env, snap *snapshot, cache *Cache, datasetBytes int) {
	jit := "-"
	if cache.IsJIT() {
		jit = "+"
	}

	pages := snap.pages

	e.log.Infof("allocated %d MB (%d+%d) huge pages %1.0f%% %s %sJIT",
		(datasetBytes+cache.Size())/oneMiB, datasetBytes/oneMiB, cache.Size()/oneMiB,
		pages.Percent(), pages, jit)

	if pages.Attempted > 0 && !pages.Full() {
		e.log.Warnf("only %s huge pages available for %s, hashing will be slower", pages, snap.seed)
	}

	e.log.Infof("dataset ready for %s on nodes %v (%d ms)", snap.seed, snap.nodes, snap.elapsed.Milliseconds())
}

// slot holds the published snapshot.
type slot struct {
	p atomic.Pointer[snapshot]
}

func (s *slot) load() *snapshot {
	return s.p.Load()
}

func (s *slot) isReady(seed Seed) bool {
	snap := s.p.Load()

	return snap != nil && snap.seed.Equal(seed)
}

// datasetFor returns a retained dataset for seed on node. If the snapshot is
// replaced and released between the load and the retain, it reloads.
func (s *slot) datasetFor(seed Seed, node uint32) (*Dataset, bool) {
	for {
		snap := s.p.Load()
		if snap == nil || !snap.seed.Equal(seed) {
			return nil, false
		}

		ds := snap.dataset(node)
		if ds.retain() {
			return ds, true
		}

		if s.p.Load() == snap {
			return nil, false
		}
	}
}

// swap publishes snap and returns the previous snapshot, which the caller
// must release.
func (s *slot) swap(snap *snapshot) *snapshot {
	return s.p.Swap(snap)
}

func (s *slot) pages() mem.Pages {
	snap := s.p.Load()
	if snap == nil {
		return mem.Pages{}
	}

	return snap.pages
}
