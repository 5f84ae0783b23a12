package config

import (
	"fmt"

	"github.com/calvinalkan/rxmine/internal/cpu"
	"github.com/calvinalkan/rxmine/pkg/rx"
)

// StorageKind returns the configured dataset storage.
func (c Config) StorageKind() (rx.StorageKind, error) {
	switch c.RandomX.Storage {
	case "queued":
		return rx.StorageQueued, nil
	case "single":
		return rx.StorageSingle, nil
	default:
		return rx.StorageQueued, fmt.Errorf("%w (got %q)", ErrInvalidStorage, c.RandomX.Storage)
	}
}

// RxConfig converts the RandomX settings for topo. With NUMA enabled on a
// multi-node host every node gets its own dataset; auto init threads then
// split the CPUs evenly across nodes.
func (c Config) RxConfig(topo cpu.Topology) rx.Config {
	mode, _ := rx.ParseMode(c.RandomX.Mode)

	out := rx.Config{
		Threads:    c.RandomX.Init,
		HugePages:  c.CPU.HugePages,
		OneGBPages: c.CPU.HugePages && c.RandomX.OneGBPages,
		Mode:       mode,
	}

	if c.RandomX.NUMA && topo.IsNUMA() {
		out.Nodes = topo.NodeIDs()

		if out.Threads < 0 {
			out.Threads = max(topo.TotalCPUs()/len(topo.Nodes), 1)
		}
	}

	if out.Threads < 0 {
		out.Threads = 0
	}

	return out
}

// HashThreads returns the number of hash workers for topo.
func (c Config) HashThreads(topo cpu.Topology) int {
	return max(topo.TotalCPUs()*c.CPU.MaxThreadsHint/100, 1)
}
