package rx

import "sync/atomic"

// refCount is a reference count that cannot be revived once it drops to
// zero. tryRetain fails on a dead count, which lets a reader that loaded a
// stale pointer detect that the object was released and reload.
type refCount struct {
	n atomic.Int64
}

func (r *refCount) init() {
	r.n.Store(1)
}

func (r *refCount) tryRetain() bool {
	for {
		n := r.n.Load()
		if n <= 0 {
			return false
		}

		if r.n.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops one reference and reports whether it was the last one.
func (r *refCount) release() bool {
	n := r.n.Add(-1)
	if n < 0 {
		panic("rx: reference released more times than retained")
	}

	return n == 0
}
