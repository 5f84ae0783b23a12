package rx

import (
	"context"
	"sync"

	"github.com/calvinalkan/rxmine/pkg/mem"
)

// Rx is the entry point the miner uses: it routes RandomX jobs to a storage
// and passes every other algorithm family straight through.
type Rx struct {
	storage Storage
	events  *dispatcher

	closeOnce sync.Once
	closeErr  error
}

// New returns an Rx backed by the storage kind in opts.
func New(opts Options) *Rx {
	r := &Rx{events: newDispatcher()}
	opts.notify = r.events.send

	switch opts.Storage {
	case StorageSingle:
		r.storage = NewSingleStorage(opts)
	default:
		r.storage = NewQueuedStorage(opts)
	}

	return r
}

// Events returns the channel of dataset-ready events. Every published
// dataset produces exactly one event. The channel is closed by [Rx.Close].
func (r *Rx) Events() <-chan Event {
	return r.events.out
}

// Storage returns the underlying storage.
func (r *Rx) Storage() Storage {
	return r.storage
}

// OnSeed prepares the dataset for job and reports whether hashing can start
// now. Jobs of other algorithm families are always ready. With the queued
// storage a false result is followed by an [Event] once the dataset is
// published.
func (r *Rx) OnSeed(ctx context.Context, job Job, cfg Config) (bool, error) {
	if !job.Algorithm().IsRandomX() {
		return true, nil
	}

	if r.storage.IsReady(job) {
		return true, nil
	}

	return r.storage.Submit(ctx, Request{Seed: job.Seed(), Config: cfg})
}

// IsReady reports whether hashing job can start. Jobs of other algorithm
// families are always ready.
func (r *Rx) IsReady(job Job) bool {
	if !job.Algorithm().IsRandomX() {
		return true
	}

	return r.storage.IsReady(job)
}

// DatasetFor returns the dataset for job on node. For jobs of other algorithm
// families it returns (nil, true). A non-nil dataset must be released.
func (r *Rx) DatasetFor(job Job, node uint32) (*Dataset, bool) {
	if !job.Algorithm().IsRandomX() {
		return nil, true
	}

	return r.storage.DatasetFor(job, node)
}

// HugePages returns huge-page accounting for the published datasets.
func (r *Rx) HugePages() mem.Pages {
	return r.storage.HugePages()
}

// Close releases the storage and closes the events channel.
func (r *Rx) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.storage.Close()
		r.events.close()
	})

	return r.closeErr
}
