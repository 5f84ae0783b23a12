package rx

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/calvinalkan/rxmine/pkg/mem"
)

// Compile-time interface satisfaction checks.
var (
	_ Storage = (*SingleStorage)(nil)
	_ Storage = (*QueuedStorage)(nil)
)

// Storage is the capability surface shared by [SingleStorage] and
// [QueuedStorage]. The set of implementations is closed.
type Storage interface {
	// Submit asks for a dataset for req.Seed and reports whether it is ready
	// now. SingleStorage blocks until built; QueuedStorage never blocks.
	Submit(ctx context.Context, req Request) (bool, error)

	// IsReady reports whether a dataset for the job's seed is published.
	IsReady(job Job) bool

	// DatasetFor returns a retained dataset for the job's seed on node. The
	// caller must call [Dataset.Release]. It never blocks.
	DatasetFor(job Job, node uint32) (*Dataset, bool)

	// HugePages returns huge-page accounting for the published datasets
	// and their cache.
	HugePages() mem.Pages

	// Close releases every dataset and cache owned by the storage.
	Close() error

	sealed()
}

// StorageKind selects the storage strategy.
type StorageKind int

const (
	// StorageQueued builds on a background goroutine, one dataset per node.
	StorageQueued StorageKind = iota
	// StorageSingle builds synchronously into a single dataset.
	StorageSingle
)

func (k StorageKind) String() string {
	if k == StorageSingle {
		return "single"
	}

	return "queued"
}

// Event reports that a dataset for Seed has been published on every node in
// Nodes.
type Event struct {
	Seed    Seed
	Nodes   []uint32
	Pages   mem.Pages
	Elapsed time.Duration
}

// Options configure a storage or [Rx]. The zero value is usable.
type Options struct {
	Storage StorageKind

	// Allocator maps cache and dataset memory. Defaults to [mem.System].
	Allocator mem.Allocator

	// Expander builds cache and dataset contents. Defaults to
	// [DefaultExpander].
	Expander Expander

	// Pinner pins fill goroutines to node CPUs when datasets are bound to
	// nodes. Defaults to no pinning.
	Pinner NodePinner

	// Logger receives provisioning diagnostics. Defaults to disabled.
	Logger btclog.Logger

	notify func(Event)
}

// env is the resolved set of collaborators a build uses.
type env struct {
	alloc    mem.Allocator
	expander Expander
	pinner   NodePinner
	log      btclog.Logger
}

func (o Options) env() env {
	e := env{
		alloc:    o.Allocator,
		expander: o.Expander,
		pinner:   o.Pinner,
		log:      o.Logger,
	}

	if e.alloc == nil {
		e.alloc = mem.System{}
	}

	if e.expander == nil {
		e.expander = DefaultExpander()
	}

	if e.pinner == nil {
		e.pinner = noPinner{}
	}

	if e.log == nil {
		e.log = btclog.Disabled
	}

	return e
}

func (o Options) notifier() func(Event) {
	if o.notify == nil {
		return func(Event) {}
	}

	return o.notify
}
