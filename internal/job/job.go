// Package job holds the mining job model and the pipeline that activates
// jobs once their dataset is ready.
package job

import (
	"fmt"
	"slices"

	"github.com/calvinalkan/rxmine/pkg/rx"
)

// Job is one unit of work from a pool. It is immutable.
type Job struct {
	id     string
	alg    rx.Algorithm
	seed   rx.Seed
	height uint64
	blob   []byte
}

// New creates a job. seedHex is required for RandomX algorithms and ignored
// otherwise; the seed epoch is derived from height.
func New(id string, alg rx.Algorithm, seedHex string, height uint64, blob []byte) (*Job, error) {
	j := &Job{id: id, alg: alg, height: height, blob: slices.Clone(blob)}

	if !alg.IsRandomX() {
		return j, nil
	}

	seed, err := rx.ParseSeed(alg, seedHex, rx.SeedHeight(height))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	j.seed = seed

	return j, nil
}

// ID returns the pool-assigned job id.
func (j *Job) ID() string { return j.id }

// Algorithm implements [rx.Job].
func (j *Job) Algorithm() rx.Algorithm { return j.alg }

// Seed implements [rx.Job]. It is the zero seed for non-RandomX jobs.
func (j *Job) Seed() rx.Seed { return j.seed }

// Height returns the block height the job is for.
func (j *Job) Height() uint64 { return j.height }

// Blob returns the hashing blob. The caller must not modify it.
func (j *Job) Blob() []byte { return j.blob }

func (j *Job) String() string {
	if j.alg.IsRandomX() {
		return fmt.Sprintf("%s %s height %d seed %s", j.id, j.alg, j.height, j.seed)
	}

	return fmt.Sprintf("%s %s height %d", j.id, j.alg, j.height)
}
