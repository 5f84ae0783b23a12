//go:build linux

package cpu

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// maxCPUs is CPU_SETSIZE, the capacity of [unix.CPUSet].
const maxCPUs = 1024

// setAffinity restricts the current thread to cpus and returns a func that
// restores the previous mask. The caller must hold the OS thread lock.
func setAffinity(cpus []int) (func(), error) {
	var prev unix.CPUSet

	err := unix.SchedGetaffinity(0, &prev)
	if err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	var set unix.CPUSet
	for _, c := range cpus {
		set.Set(c)
	}

	err = unix.SchedSetaffinity(0, &set)
	if err != nil {
		return nil, fmt.Errorf("sched_setaffinity: %w", err)
	}

	return func() { _ = unix.SchedSetaffinity(0, &prev) }, nil
}

// Affinity returns the CPUs the current thread may run on.
func Affinity() ([]int, error) {
	var set unix.CPUSet

	err := unix.SchedGetaffinity(0, &set)
	if err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	var cpus []int

	for c := range maxCPUs {
		if set.IsSet(c) {
			cpus = append(cpus, c)
		}
	}

	return cpus, nil
}
