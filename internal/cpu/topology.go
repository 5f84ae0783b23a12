// Package cpu discovers the host's NUMA topology and pins goroutines to the
// CPUs of a node.
package cpu

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
)

// SysRoot is the sysfs directory node topology is read from.
const SysRoot = "/sys/devices/system/node"

// ErrInvalidCPUList indicates a malformed kernel cpulist string.
var ErrInvalidCPUList = errors.New("cpu: invalid cpu list")

// Node is one NUMA node and the CPUs attached to it.
type Node struct {
	ID   uint32
	CPUs []int
}

// Topology is the set of NUMA nodes on the host. It always contains at least
// one node.
type Topology struct {
	Nodes []Node
}

// Discover reads the NUMA layout from sysRoot. When sysRoot does not exist
// or lists no nodes, it returns a single node 0 holding every CPU.
func Discover(sysRoot string) (Topology, error) {
	dirs, err := filepath.Glob(filepath.Join(sysRoot, "node[0-9]*"))
	if err != nil {
		return Topology{}, fmt.Errorf("glob %s: %w", sysRoot, err)
	}

	var topo Topology

	for _, dir := range dirs {
		id, err := strconv.ParseUint(strings.TrimPrefix(filepath.Base(dir), "node"), 10, 32)
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, "cpulist"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return Topology{}, fmt.Errorf("read node %d cpulist: %w", id, err)
		}

		cpus, err := ParseCPUList(string(data))
		if err != nil {
			return Topology{}, fmt.Errorf("node %d: %w", id, err)
		}

		// Memory-only nodes have no CPUs to fill from.
		if len(cpus) == 0 {
			continue
		}

		topo.Nodes = append(topo.Nodes, Node{ID: uint32(id), CPUs: cpus})
	}

	if len(topo.Nodes) == 0 {
		return Uniform(runtime.NumCPU()), nil
	}

	slices.SortFunc(topo.Nodes, func(a, b Node) int { return int(a.ID) - int(b.ID) })

	return topo, nil
}

// Uniform returns a single-node topology with cpus CPUs.
func Uniform(cpus int) Topology {
	ids := make([]int, max(cpus, 1))
	for i := range ids {
		ids[i] = i
	}

	return Topology{Nodes: []Node{{ID: 0, CPUs: ids}}}
}

// ParseCPUList parses the kernel list format, e.g. "0-3,8,10-11".
func ParseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var cpus []int

	for part := range strings.SplitSeq(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")

		first, err := strconv.Atoi(lo)
		if err != nil || first < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCPUList, s)
		}

		last := first

		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil || last < first {
				return nil, fmt.Errorf("%w: %q", ErrInvalidCPUList, s)
			}
		}

		for c := first; c <= last; c++ {
			cpus = append(cpus, c)
		}
	}

	slices.Sort(cpus)

	return slices.Compact(cpus), nil
}

// FormatCPUList renders sorted cpus in the kernel list format.
func FormatCPUList(cpus []int) string {
	var b strings.Builder

	for i := 0; i < len(cpus); {
		j := i
		for j+1 < len(cpus) && cpus[j+1] == cpus[j]+1 {
			j++
		}

		if b.Len() > 0 {
			b.WriteByte(',')
		}

		if j > i {
			fmt.Fprintf(&b, "%d-%d", cpus[i], cpus[j])
		} else {
			b.WriteString(strconv.Itoa(cpus[i]))
		}

		i = j + 1
	}

	return b.String()
}

// NodeIDs returns the node ids in ascending order.
func (t Topology) NodeIDs() []uint32 {
	ids := make([]uint32, len(t.Nodes))
	for i, n := range t.Nodes {
		ids[i] = n.ID
	}

	return ids
}

// CPUs returns the CPUs of node, or nil if the node is unknown.
func (t Topology) CPUs(node uint32) []int {
	for _, n := range t.Nodes {
		if n.ID == node {
			return n.CPUs
		}
	}

	return nil
}

// TotalCPUs returns the number of CPUs across all nodes.
func (t Topology) TotalCPUs() int {
	total := 0
	for _, n := range t.Nodes {
		total += len(n.CPUs)
	}

	return total
}

// IsNUMA reports whether there is more than one node.
func (t Topology) IsNUMA() bool {
	return len(t.Nodes) > 1
}

// String summarizes the topology, e.g. "node0: 4 cpus node1: 4 cpus".
func (t Topology) String() string {
	var b strings.Builder

	for i, n := range t.Nodes {
		if i > 0 {
			b.WriteByte(' ')
		}

		fmt.Fprintf(&b, "node%d: %d cpus", n.ID, len(n.CPUs))
	}

	return b.String()
}

// PinToNode locks the calling goroutine to its OS thread and restricts the
// thread to node's CPUs. The returned func restores the previous affinity and
// unlocks the thread; it must run on the same goroutine. Pinning is best
// effort: on failure, or for unknown nodes, the goroutine runs unpinned.
func (t Topology) PinToNode(node uint32) func() {
	cpus := t.CPUs(node)
	if len(cpus) == 0 {
		return func() {}
	}

	runtime.LockOSThread()

	restore, err := setAffinity(cpus)
	if err != nil {
		runtime.UnlockOSThread()

		return func() {}
	}

	return func() {
		restore()
		runtime.UnlockOSThread()
	}
}
