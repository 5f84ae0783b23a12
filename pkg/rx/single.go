package rx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

// State is the lifecycle state of a [SingleStorage].
type State int32

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// SingleStorage holds exactly one dataset and rebuilds it synchronously on
// the goroutine that calls [SingleStorage.Ensure].
//
// While a rebuild runs, the previous dataset stays published for jobs that
// still use its seed.
type SingleStorage struct {
	e      env
	notify func(Event)
	slot   slot
	state  atomic.Int32

	mu     sync.Mutex // serializes Ensure and Close; guards cache and closed
	cache  *Cache
	closed bool
}

// NewSingleStorage returns an empty storage.
func NewSingleStorage(opts Options) *SingleStorage {
	return &SingleStorage{e: opts.env(), notify: opts.notifier()}
}

// Ensure makes a dataset for req.Seed the published one, building the cache
// and dataset if needed. It blocks for the whole build. Node placement is
// ignored: the dataset is keyed node 0 and not bound.
//
// On failure the previous dataset, if any, stays published.
func (s *SingleStorage) Ensure(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	err := req.validate()
	if err != nil {
		return err
	}

	if s.slot.isReady(req.Seed) {
		return nil
	}

	req.Config.Nodes = nil

	s.state.Store(int32(StateBuilding))
	defer s.settle()

	start := time.Now()

	if !s.cache.Matches(req.Seed) {
		cache, err := newCache(s.e, req.Seed, req.Config.HugePages, req.Config.OneGBPages)
		if err != nil {
			s.e.log.Warnf("cache build for %s failed, keeping previous dataset: %v", req.Seed, err)

			return err
		}

		if s.cache != nil {
			s.cache.release()
		}

		s.cache = cache
	}

	snap, err := buildSnapshot(ctx, s.e, s.cache, req, start)
	if err != nil {
		s.e.log.Warnf("dataset build for %s failed, keeping previous dataset: %v", req.Seed, err)

		return err
	}

	s.slot.swap(snap).release()
	s.notify(snap.event())

	return nil
}

func (s *SingleStorage) settle() {
	if s.slot.load() != nil {
		s.state.Store(int32(StateReady))
	} else {
		s.state.Store(int32(StateEmpty))
	}
}

// State returns the current lifecycle state.
func (s *SingleStorage) State() State {
	return State(s.state.Load())
}

// Submit implements [Storage]. It blocks until the dataset is built.
func (s *SingleStorage) Submit(ctx context.Context, req Request) (bool, error) {
	err := s.Ensure(ctx, req)

	return err == nil, err
}

// IsReady implements [Storage].
func (s *SingleStorage) IsReady(job Job) bool {
	return s.slot.isReady(job.Seed())
}

// DatasetFor implements [Storage]. node is ignored.
func (s *SingleStorage) DatasetFor(job Job, _ uint32) (*Dataset, bool) {
	return s.slot.datasetFor(job.Seed(), 0)
}

// HugePages implements [Storage].
func (s *SingleStorage) HugePages() mem.Pages {
	return s.slot.pages()
}

// Close implements [Storage]. It waits for a running Ensure to finish.
func (s *SingleStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.slot.swap(nil).release()

	if s.cache != nil {
		s.cache.release()
		s.cache = nil
	}

	s.state.Store(int32(StateEmpty))

	return nil
}

func (*SingleStorage) sealed() {}
