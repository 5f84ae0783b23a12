//go:build !linux

package cpu

import (
	"errors"
	"runtime"
)

var errNoAffinity = errors.New("cpu: thread affinity not supported on " + runtime.GOOS)

func setAffinity([]int) (func(), error) {
	return nil, errNoAffinity
}

// Affinity returns every CPU; per-thread masks are not available here.
func Affinity() ([]int, error) {
	return Uniform(runtime.NumCPU()).Nodes[0].CPUs, nil
}
