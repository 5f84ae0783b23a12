// Package rx provisions the RandomX cache and dataset that hash workers read.
//
// A [Seed] rotates every epoch. For each seed a [Cache] is expanded from the
// seed bytes and a [Dataset] is filled from the cache in parallel. Two storage
// strategies keep datasets resident:
//
//   - [SingleStorage] holds one dataset and rebuilds it synchronously.
//   - [QueuedStorage] holds one dataset per NUMA node and rebuilds on a
//     background goroutine; only the most recently requested seed is ever
//     published.
//
// [Rx] is the entry point used by the job pipeline and hash workers:
//
//	r := rx.New(rx.Options{Storage: rx.StorageQueued, Logger: log})
//	defer r.Close()
//
//	ready, err := r.OnSeed(ctx, job, cfg)
//	if err == nil && !ready {
//	    // wait for an event on r.Events()
//	}
//
//	ds, ok := r.DatasetFor(job, node)
//	if ok && ds != nil {
//	    defer ds.Release()
//	    // hash against ds
//	}
//
// # Concurrency
//
// Reads ([Rx.IsReady], [Rx.DatasetFor]) never block: they are an atomic load
// and a seed comparison. A dataset is published only after its fill has
// completed and joined, and it is never mutated afterwards, so readers observe
// either the complete old dataset or the complete new one.
//
// Datasets are reference counted. The storage owns one reference and every
// successful DatasetFor hands out another; memory is unmapped when the last
// reference is released.
//
// # Error Handling
//
// Build failures ([ErrAllocation], [ErrExpansion]) never reach hash workers.
// The storage keeps serving the previously published dataset, logs the
// failure, and SingleStorage additionally returns the error to its caller.
// Jobs outside the RandomX family pass through every [Rx] operation as ready.
package rx
