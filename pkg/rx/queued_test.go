package rx_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calvinalkan/rxmine/pkg/mem/memtest"
	"github.com/calvinalkan/rxmine/pkg/rx"
	"github.com/google/go-cmp/cmp"
)

func newQueuedRx(t *testing.T, opts rx.Options) (*rx.Rx, *rx.QueuedStorage) {
	t.Helper()

	opts.Storage = rx.StorageQueued
	r := rx.New(opts)

	t.Cleanup(func() { _ = r.Close() })

	q, ok := r.Storage().(*rx.QueuedStorage)
	if !ok {
		t.Fatalf("storage=%T, want *rx.QueuedStorage", r.Storage())
	}

	return r, q
}

func Test_QueuedStorage_Becomes_Ready_For_Second_Seed_After_Event(t *testing.T) {
	t.Parallel()

	r, _ := newQueuedRx(t, rx.Options{Allocator: memtest.New()})
	s1 := seedFor(t, testAlg, 1)
	s2 := seedFor(t, testAlg, 2)
	cfg := rx.Config{Mode: rx.ModeFast}

	ready, err := r.OnSeed(context.Background(), jobFor(s1), cfg)
	if err != nil || ready {
		t.Fatalf("OnSeed(s1)=(%t, %v), want=(false, nil)", ready, err)
	}

	if ev := waitEvent(t, r); !ev.Seed.Equal(s1) {
		t.Fatalf("event seed=%s, want=%s", ev.Seed, s1)
	}

	if !r.IsReady(jobFor(s1)) {
		t.Fatal("s1 not ready after its event")
	}

	ready, _ = r.OnSeed(context.Background(), jobFor(s2), cfg)
	if ready {
		t.Fatal("OnSeed(s2) ready before build")
	}

	if ev := waitEvent(t, r); !ev.Seed.Equal(s2) {
		t.Fatalf("event seed=%s, want=%s", ev.Seed, s2)
	}

	if !r.IsReady(jobFor(s2)) || r.IsReady(jobFor(s1)) {
		t.Fatalf("ready s1=%t s2=%t, want s1=false s2=true", r.IsReady(jobFor(s1)), r.IsReady(jobFor(s2)))
	}

	ready, err = r.OnSeed(context.Background(), jobFor(s2), cfg)
	if err != nil || !ready {
		t.Fatalf("OnSeed(s2) after event=(%t, %v), want=(true, nil)", ready, err)
	}
}

func Test_QueuedStorage_Builds_Once_When_Same_Seed_Enqueued_Repeatedly(t *testing.T) {
	t.Parallel()

	s1 := seedFor(t, testAlg, 1)
	gate := newGatedExpander(s1)
	counter := newCountingExpander()
	counter.Expander = gate

	r, q := newQueuedRx(t, rx.Options{Allocator: memtest.New(), Expander: counter})
	req := rx.Request{Seed: s1, Config: rx.Config{Mode: rx.ModeFast}}

	for range 5 {
		ready, err := q.Enqueue(req)
		if err != nil || ready {
			t.Fatalf("Enqueue=(%t, %v), want=(false, nil)", ready, err)
		}
	}

	gate.WaitStarted(t)

	for range 5 {
		_, _ = q.Enqueue(req)
	}

	gate.Open()
	waitEvent(t, r)

	ready, err := q.Enqueue(req)
	if err != nil || !ready {
		t.Fatalf("Enqueue after build=(%t, %v), want=(true, nil)", ready, err)
	}

	if got := counter.Caches(s1); got != 1 {
		t.Fatalf("cache expansions=%d, want=1", got)
	}

	if published, discarded := q.Builds(); published != 1 || discarded != 0 {
		t.Fatalf("builds=(%d, %d), want=(1, 0)", published, discarded)
	}
}

func Test_QueuedStorage_Discards_Build_When_Newer_Seed_Enqueued_During_Build(t *testing.T) {
	t.Parallel()

	s1 := seedFor(t, testAlg, 1)
	s2 := seedFor(t, testAlg, 2)
	gate := newGatedExpander(s1)

	r, q := newQueuedRx(t, rx.Options{Allocator: memtest.New(), Expander: gate})
	cfg := rx.Config{Mode: rx.ModeFast}

	_, _ = q.Enqueue(rx.Request{Seed: s1, Config: cfg})
	gate.WaitStarted(t)

	_, _ = q.Enqueue(rx.Request{Seed: s2, Config: cfg})
	gate.Open()

	ev := waitEvent(t, r)
	if !ev.Seed.Equal(s2) {
		t.Fatalf("first event seed=%s, want=%s", ev.Seed, s2)
	}

	if r.IsReady(jobFor(s1)) {
		t.Fatal("superseded seed became ready")
	}

	if published, discarded := q.Builds(); published != 1 || discarded != 1 {
		t.Fatalf("builds=(%d, %d), want=(1, 1)", published, discarded)
	}
}

func Test_QueuedStorage_Cancels_Pending_Build_When_Published_Seed_Enqueued_Again(t *testing.T) {
	t.Parallel()

	s1 := seedFor(t, testAlg, 1)
	s2 := seedFor(t, testAlg, 2)
	gate := newGatedExpander(s2)

	r, q := newQueuedRx(t, rx.Options{Allocator: memtest.New(), Expander: gate})
	cfg := rx.Config{Mode: rx.ModeFast}

	_, _ = q.Enqueue(rx.Request{Seed: s1, Config: cfg})
	waitEvent(t, r)

	_, _ = q.Enqueue(rx.Request{Seed: s2, Config: cfg})
	gate.WaitStarted(t)

	ready, err := q.Enqueue(rx.Request{Seed: s1, Config: cfg})
	if err != nil || !ready {
		t.Fatalf("Enqueue(s1)=(%t, %v), want=(true, nil)", ready, err)
	}

	gate.Open()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, discarded := q.Builds(); discarded == 1 {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("s2 build was not discarded")
		}

		time.Sleep(time.Millisecond)
	}

	if !r.IsReady(jobFor(s1)) || r.IsReady(jobFor(s2)) {
		t.Fatal("s1 must stay published after s2 is discarded")
	}
}

func Test_QueuedStorage_Readers_Never_Observe_Partial_Dataset(t *testing.T) {
	t.Parallel()

	seeds := []rx.Seed{seedFor(t, testAlg, 1), seedFor(t, testAlg, 2), seedFor(t, testAlg, 3)}
	want := map[string][32]byte{}

	ref, _ := newSingle(t, rx.Options{Allocator: memtest.New()})
	for _, s := range seeds {
		err := ref.Ensure(context.Background(), rx.Request{Seed: s, Config: rx.Config{Mode: rx.ModeFast}})
		if err != nil {
			t.Fatalf("Ensure: %v", err)
		}

		ds, _ := ref.DatasetFor(jobFor(s), 0)
		want[s.String()] = ds.Checksum()
		ds.Release()
	}

	r, _ := newQueuedRx(t, rx.Options{Allocator: memtest.New()})

	var (
		stop    atomic.Bool
		wg      sync.WaitGroup
		reads   atomic.Int64
		corrupt atomic.Int64
	)

	for i := range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for !stop.Load() {
				for _, s := range seeds {
					ds, ok := r.DatasetFor(jobFor(s), uint32(i))
					if !ok {
						continue
					}

					if ds.Checksum() != want[s.String()] {
						corrupt.Add(1)
					}

					reads.Add(1)
					ds.Release()
				}
			}
		}()
	}

	for _, s := range seeds {
		_, err := r.OnSeed(context.Background(), jobFor(s), rx.Config{Mode: rx.ModeFast, Threads: 2})
		if err != nil {
			t.Fatalf("OnSeed: %v", err)
		}

		waitEvent(t, r)
	}

	stop.Store(true)
	wg.Wait()

	if corrupt.Load() != 0 {
		t.Fatalf("%d of %d reads observed a partial dataset", corrupt.Load(), reads.Load())
	}
}

func Test_QueuedStorage_Builds_One_Dataset_Per_Node_When_Nodes_Given(t *testing.T) {
	t.Parallel()

	pinner := newCountingPinner()
	r, _ := newQueuedRx(t, rx.Options{Allocator: memtest.New(), Pinner: pinner})
	s1 := seedFor(t, testAlg, 1)

	_, err := r.OnSeed(context.Background(), jobFor(s1), rx.Config{Mode: rx.ModeFast, Threads: 2, Nodes: []uint32{1, 0, 1}})
	if err != nil {
		t.Fatalf("OnSeed: %v", err)
	}

	ev := waitEvent(t, r)
	if diff := cmp.Diff([]uint32{0, 1}, ev.Nodes); diff != "" {
		t.Fatalf("event nodes mismatch (-want +got):\n%s", diff)
	}

	d0, ok0 := r.DatasetFor(jobFor(s1), 0)
	d1, ok1 := r.DatasetFor(jobFor(s1), 1)
	d9, ok9 := r.DatasetFor(jobFor(s1), 9)

	if !ok0 || !ok1 || !ok9 {
		t.Fatalf("DatasetFor ok=(%t,%t,%t), want all true", ok0, ok1, ok9)
	}

	defer d0.Release()
	defer d1.Release()
	defer d9.Release()

	if d0.Node() != 0 || d1.Node() != 1 || d9.Node() != 0 {
		t.Fatalf("nodes=(%d,%d,%d), want=(0,1,0)", d0.Node(), d1.Node(), d9.Node())
	}

	if d0 == d1 {
		t.Fatal("nodes share one dataset")
	}

	if d0.Checksum() != d1.Checksum() {
		t.Fatal("per-node datasets differ")
	}

	if pinner.Pins(0) == 0 || pinner.Pins(1) == 0 {
		t.Fatalf("pins node0=%d node1=%d, want both > 0", pinner.Pins(0), pinner.Pins(1))
	}
}

func Test_QueuedStorage_Retries_Seed_When_Previous_Build_Failed(t *testing.T) {
	t.Parallel()

	alloc := memtest.New().FailLarger(256 << 10)
	r, q := newQueuedRx(t, rx.Options{Allocator: alloc})
	s1 := seedFor(t, largeAlg, 1)
	req := rx.Request{Seed: s1, Config: rx.Config{Mode: rx.ModeFast}}

	_, _ = q.Enqueue(req)

	// Wait for the first build to map its cache, then heal.
	deadline := time.Now().Add(10 * time.Second)
	for alloc.TotalMaps() == 0 || alloc.Live() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("first build did not fail")
		}

		time.Sleep(time.Millisecond)
	}

	alloc.Heal()

	for {
		_, _ = q.Enqueue(req)

		select {
		case ev := <-r.Events():
			if !ev.Seed.Equal(s1) {
				t.Fatalf("event seed=%s, want=%s", ev.Seed, s1)
			}

			return
		case <-time.After(5 * time.Millisecond):
		}

		if time.Now().After(deadline) {
			t.Fatal("retry never published")
		}
	}
}

func Test_QueuedStorage_Close_Releases_All_Memory(t *testing.T) {
	t.Parallel()

	alloc := memtest.New()
	r := rx.New(rx.Options{Allocator: alloc})
	s1 := seedFor(t, testAlg, 1)

	_, _ = r.OnSeed(context.Background(), jobFor(s1), rx.Config{Mode: rx.ModeFast, Nodes: []uint32{0, 1}})
	waitEvent(t, r)

	closeRx(t, r)
	closeRx(t, r)

	if alloc.Live() != 0 {
		t.Fatalf("live mappings=%d, want=0", alloc.Live())
	}

	if _, ok := <-r.Events(); ok {
		t.Fatal("events channel open after Close")
	}

	_, err := r.OnSeed(context.Background(), jobFor(s1), rx.Config{})
	if err == nil {
		t.Fatal("OnSeed after Close: want error")
	}
}

func Test_Rx_Keeps_Published_Nodes_When_Same_Seed_Requested_On_More_Nodes(t *testing.T) {
	t.Parallel()

	r, q := newQueuedRx(t, rx.Options{Allocator: memtest.New(), Pinner: newCountingPinner()})
	s1 := seedFor(t, testAlg, 1)

	_, err := r.OnSeed(context.Background(), jobFor(s1), rx.Config{Mode: rx.ModeFast, Nodes: []uint32{0}})
	if err != nil {
		t.Fatalf("OnSeed: %v", err)
	}

	waitEvent(t, r)

	ready, err := r.OnSeed(context.Background(), jobFor(s1), rx.Config{Mode: rx.ModeFast, Nodes: []uint32{0, 1}})
	if err != nil || !ready {
		t.Fatalf("OnSeed(more nodes)=(%t, %v), want=(true, nil)", ready, err)
	}

	select {
	case ev := <-r.Events():
		t.Fatalf("unexpected event for %s on nodes %v", ev.Seed, ev.Nodes)
	case <-time.After(100 * time.Millisecond):
	}

	ds, ok := r.DatasetFor(jobFor(s1), 1)
	if !ok {
		t.Fatal("DatasetFor(node 1) not ready")
	}

	defer ds.Release()

	if ds.Node() != 0 {
		t.Fatalf("node 1 served by node %d, want=0", ds.Node())
	}

	if published, discarded := q.Builds(); published != 1 || discarded != 0 {
		t.Fatalf("Builds()=(%d, %d), want=(1, 0)", published, discarded)
	}
}
