package rx

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

// QueuedStorage builds datasets on a background goroutine, one per
// requested NUMA node, and never blocks the caller.
//
// At most one build is pending. A newer seed supersedes an older one: the
// pending request is replaced, and a build that finishes for a seed that is
// no longer the target is discarded without being published.
type QueuedStorage struct {
	e      env
	notify func(Event)
	slot   slot

	mu      sync.Mutex
	target  Seed
	nodes   []uint32
	pending *task
	closed  bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	cache *Cache // owned by the builder goroutine

	builds    atomic.Uint64
	discarded atomic.Uint64
}

type task struct {
	id    string
	req   Request
	nodes []uint32
}

// NewQueuedStorage starts the builder goroutine. Call
// [QueuedStorage.Close] to stop it.
func NewQueuedStorage(opts Options) *QueuedStorage {
	ctx, cancel := context.WithCancel(context.Background())

	q := &QueuedStorage{
		e:      opts.env(),
		notify: opts.notifier(),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go q.run(ctx)

	return q
}

// Enqueue requests a dataset for req.Seed on req.Config.Nodes and reports
// whether one is already published.
//
// Enqueueing the seed currently being built is a no-op. Enqueueing the
// published seed while another build is pending cancels that pending build.
func (q *QueuedStorage) Enqueue(req Request) (bool, error) {
	err := req.validate()
	if err != nil {
		return false, err
	}

	nodes, _ := req.nodes()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}

	if q.slot.load().covers(req.Seed, nodes) {
		if !q.target.Equal(req.Seed) {
			q.target = req.Seed
			q.nodes = nodes
			q.pending = nil
		}

		return true, nil
	}

	if q.target.Equal(req.Seed) && slices.Equal(q.nodes, nodes) {
		return false, nil
	}

	q.target = req.Seed
	q.nodes = nodes
	q.pending = &task{id: uuid.NewString(), req: req, nodes: nodes}

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.e.log.Debugf("queued build %s for %s on nodes %v", q.pending.id, req.Seed, nodes)

	return false, nil
}

// Submit implements [Storage]. It never blocks.
func (q *QueuedStorage) Submit(_ context.Context, req Request) (bool, error) {
	return q.Enqueue(req)
}

// IsReady implements [Storage].
func (q *QueuedStorage) IsReady(job Job) bool {
	return q.slot.isReady(job.Seed())
}

// DatasetFor implements [Storage]. A node outside the published set gets
// the lowest node's dataset.
func (q *QueuedStorage) DatasetFor(job Job, node uint32) (*Dataset, bool) {
	return q.slot.datasetFor(job.Seed(), node)
}

// HugePages implements [Storage].
func (q *QueuedStorage) HugePages() mem.Pages {
	return q.slot.pages()
}

// Builds returns the number of builds published and discarded so far.
func (q *QueuedStorage) Builds() (published, discarded uint64) {
	return q.builds.Load(), q.discarded.Load()
}

// Close stops the builder, waits for it to exit and releases every dataset
// and cache. A build in progress is cancelled.
func (q *QueuedStorage) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	<-q.done

	q.slot.swap(nil).release()

	if q.cache != nil {
		q.cache.release()
		q.cache = nil
	}

	return nil
}

func (q *QueuedStorage) run(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			t := q.take()
			if t == nil {
				break
			}

			q.build(ctx, t)

			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (q *QueuedStorage) take() *task {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.pending
	q.pending = nil

	return t
}

// current reports whether t still describes the target seed and node set.
func (q *QueuedStorage) current(t *task) bool {
	return !q.closed && q.target.Equal(t.req.Seed) && slices.Equal(q.nodes, t.nodes)
}

func (q *QueuedStorage) build(ctx context.Context, t *task) {
	q.mu.Lock()
	stale := !q.current(t) || q.slot.load().covers(t.req.Seed, t.nodes)
	q.mu.Unlock()

	if stale {
		q.e.log.Debugf("skipping build %s for %s: superseded", t.id, t.req.Seed)

		return
	}

	start := time.Now()

	if !q.cache.Matches(t.req.Seed) {
		cache, err := newCache(q.e, t.req.Seed, t.req.Config.HugePages, t.req.Config.OneGBPages)
		if err != nil {
			q.fail(t, err)

			return
		}

		if q.cache != nil {
			q.cache.release()
		}

		q.cache = cache
	}

	snap, err := buildSnapshot(ctx, q.e, q.cache, t.req, start)
	if err != nil {
		q.fail(t, err)

		return
	}

	q.mu.Lock()

	if !q.current(t) {
		q.mu.Unlock()
		snap.release()
		q.discarded.Add(1)
		q.e.log.Debugf("discarding build %s for %s: superseded", t.id, t.req.Seed)

		return
	}

	old := q.slot.swap(snap)
	q.mu.Unlock()

	old.release()
	q.builds.Add(1)
	q.notify(snap.event())
}

func (q *QueuedStorage) fail(t *task, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.e.log.Warnf("build %s for %s failed: %v", t.id, t.req.Seed, err)

	if q.current(t) {
		q.target = Seed{}
		q.nodes = nil
	}
}

func (*QueuedStorage) sealed() {}
