package job

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btclog"

	"github.com/calvinalkan/rxmine/pkg/rx"
)

// Provisioner is the part of [rx.Rx] the pipeline drives.
type Provisioner interface {
	OnSeed(ctx context.Context, job rx.Job, cfg rx.Config) (bool, error)
	IsReady(job rx.Job) bool
	Events() <-chan rx.Event
}

// Pipeline accepts jobs and makes them active once their dataset is ready.
//
// A job whose dataset is ready becomes active on Submit. Otherwise it is
// parked as pending, replacing any earlier pending job, and is activated by
// [Pipeline.Run] when the matching readiness event arrives. Until then the
// previous job stays active.
type Pipeline struct {
	rx  Provisioner
	cfg rx.Config
	log btclog.Logger

	active atomic.Pointer[Job]

	mu      sync.Mutex
	pending *Job
	changed chan struct{}
}

// NewPipeline returns a pipeline provisioning datasets with cfg.
func NewPipeline(p Provisioner, cfg rx.Config, log btclog.Logger) *Pipeline {
	if log == nil {
		log = btclog.Disabled
	}

	return &Pipeline{rx: p, cfg: cfg, log: log, changed: make(chan struct{})}
}

// Submit hands a new job to the pipeline and reports whether it became
// active immediately.
func (p *Pipeline) Submit(ctx context.Context, j *Job) (bool, error) {
	ready, err := p.rx.OnSeed(ctx, j, p.cfg)
	if err != nil {
		p.log.Warnf("job %s rejected: %v", j.ID(), err)

		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ready {
		p.pending = nil
		p.activateLocked(j)

		return true, nil
	}

	// The event may have been consumed before the job was parked.
	if p.rx.IsReady(j) {
		p.pending = nil
		p.activateLocked(j)

		return true, nil
	}

	p.pending = j
	p.log.Debugf("job %s waiting for dataset %s", j.ID(), j.Seed())

	return false, nil
}

// Run consumes readiness events until ctx is done or the event stream is
// closed. It must be the only consumer of the provisioner's events.
func (p *Pipeline) Run(ctx context.Context) error {
	events := p.rx.Events()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			p.onReady(ev)
		}
	}
}

func (p *Pipeline) onReady(ev rx.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j := p.pending
	if j == nil || !p.rx.IsReady(j) {
		p.log.Tracef("dataset %s ready, no pending job uses it", ev.Seed)

		return
	}

	p.pending = nil
	p.activateLocked(j)
}

func (p *Pipeline) activateLocked(j *Job) {
	p.active.Store(j)
	close(p.changed)
	p.changed = make(chan struct{})

	p.log.Infof("new job %s", j)
}

// Active returns the job workers should hash, or nil before the first
// activation. It never blocks.
func (p *Pipeline) Active() *Job {
	return p.active.Load()
}

// Pending returns the job waiting for its dataset, if any.
func (p *Pipeline) Pending() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.pending
}

// Changed returns a channel that is closed on the next activation.
func (p *Pipeline) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.changed
}

// WaitActive blocks until the job with id is active or ctx is done.
func (p *Pipeline) WaitActive(ctx context.Context, id string) error {
	for {
		changed := p.Changed()

		if a := p.Active(); a != nil && a.ID() == id {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
