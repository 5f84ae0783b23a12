// Package worker runs the hash workers. Each worker reads the active job,
// borrows the dataset for its NUMA node and hashes a batch of nonces against
// it.
//
// The probe hash is a blake2b walk over dataset items. It exercises dataset
// access the way a RandomX VM does but is not a RandomX hash.
package worker

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"golang.org/x/crypto/blake2b"

	"github.com/calvinalkan/rxmine/internal/job"
	"github.com/calvinalkan/rxmine/pkg/rx"
)

const (
	defaultBatch   = 64
	defaultBackoff = 10 * time.Millisecond
	probeReads     = 8
)

// Source provides the job to hash.
type Source interface {
	Active() *job.Job
}

// Datasets lends datasets to workers.
type Datasets interface {
	DatasetFor(j rx.Job, node uint32) (*rx.Dataset, bool)
}

// Options configure a [Pool].
type Options struct {
	// Threads is the number of workers. Values below 1 mean one.
	Threads int

	// Nodes are assigned to workers round robin. Empty means node 0.
	Nodes []uint32

	// Pinner pins workers to their node when set.
	Pinner rx.NodePinner

	// Batch is the number of nonces hashed per dataset borrow.
	Batch int

	// Backoff is how long a worker sleeps when there is no job or its
	// dataset is not ready.
	Backoff time.Duration

	Logger btclog.Logger
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Hashes  uint64
	Waits   uint64
	Elapsed time.Duration
}

// Hashrate returns hashes per second over the elapsed time.
func (s Stats) Hashrate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}

	return float64(s.Hashes) / s.Elapsed.Seconds()
}

// Pool is a fixed set of hash workers.
type Pool struct {
	src  Source
	data Datasets
	opts Options

	hashes atomic.Uint64
	waits  atomic.Uint64
	best   atomic.Uint64
	start  atomic.Int64
}

// New returns a pool. Call [Pool.Run] to start hashing.
func New(src Source, data Datasets, opts Options) *Pool {
	opts.Threads = max(opts.Threads, 1)

	if len(opts.Nodes) == 0 {
		opts.Nodes = []uint32{0}
	}

	if opts.Batch <= 0 {
		opts.Batch = defaultBatch
	}

	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	if opts.Logger == nil {
		opts.Logger = btclog.Disabled
	}

	return &Pool{src: src, data: data, opts: opts}
}

// Run hashes until ctx is done, then waits for every worker to stop.
func (p *Pool) Run(ctx context.Context) {
	p.start.Store(time.Now().UnixNano())
	p.opts.Logger.Infof("started %d threads on nodes %v", p.opts.Threads, p.opts.Nodes)

	var wg sync.WaitGroup

	for i := range p.opts.Threads {
		node := p.opts.Nodes[i%len(p.opts.Nodes)]

		wg.Add(1)

		go func() {
			defer wg.Done()

			p.work(ctx, i, node)
		}()
	}

	wg.Wait()

	st := p.Stats()
	p.opts.Logger.Infof("stopped after %d hashes (%.1f H/s)", st.Hashes, st.Hashrate())
}

func (p *Pool) work(ctx context.Context, id int, node uint32) {
	if p.opts.Pinner != nil {
		unpin := p.opts.Pinner.PinToNode(node)
		defer unpin()
	}

	nonce := uint64(id)
	stride := uint64(p.opts.Threads)
	item := make([]byte, rx.DatasetItemSize)

	for ctx.Err() == nil {
		j := p.src.Active()
		if j == nil {
			sleep(ctx, p.opts.Backoff)

			continue
		}

		ds, ok := p.data.DatasetFor(j, node)
		if !ok {
			p.waits.Add(1)
			sleep(ctx, p.opts.Backoff)

			continue
		}

		best := ^uint64(0)

		for range p.opts.Batch {
			h := Probe(ds, j.Blob(), nonce, item)
			best = min(best, binary.BigEndian.Uint64(h[:8]))
			nonce += stride
		}

		if ds != nil {
			ds.Release()
		}

		p.hashes.Add(uint64(p.opts.Batch))
		p.recordBest(best)
	}
}

func (p *Pool) recordBest(v uint64) {
	for {
		cur := p.best.Load()
		if cur != 0 && cur <= v {
			return
		}

		if p.best.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Best returns the lowest probe hash prefix seen, zero before any hash.
func (p *Pool) Best() uint64 {
	return p.best.Load()
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	st := Stats{Hashes: p.hashes.Load(), Waits: p.waits.Load()}

	if start := p.start.Load(); start != 0 {
		st.Elapsed = time.Since(time.Unix(0, start))
	}

	return st
}

// Probe hashes blob and nonce, folding in dataset items selected by the
// running state. A nil dataset (non-RandomX job) hashes the blob alone.
// item is scratch space of [rx.DatasetItemSize] bytes.
func Probe(ds *rx.Dataset, blob []byte, nonce uint64, item []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write(blob)
	_ = binary.Write(h, binary.LittleEndian, nonce)

	var state [32]byte

	h.Sum(state[:0])

	if ds == nil {
		return state
	}

	for range probeReads {
		ds.Item(binary.LittleEndian.Uint64(state[:8]), item)

		h.Reset()
		_, _ = h.Write(state[:])
		_, _ = h.Write(item)
		h.Sum(state[:0])
	}

	return state
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
