package rx

// Partition exposes the fill partitioning as (start, count) pairs.
func Partition(items uint64, threads int) [][2]uint64 {
	segs := partition(items, threads)
	out := make([][2]uint64, len(segs))

	for i, s := range segs {
		out[i] = [2]uint64{s.start, s.count}
	}

	return out
}

// WithNotify returns opts with fn installed as the dataset-ready callback,
// for tests that drive a storage without an Rx.
func WithNotify(opts Options, fn func(Event)) Options {
	opts.notify = fn

	return opts
}

// NodeThreads exposes the per-node fill thread split.
func NodeThreads(n, nodes int) int {
	return nodeThreads(n, nodes)
}
