package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rxmine/internal/cpu"
)

// NumaCmd returns the numa command.
func NumaCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("numa", flag.ContinueOnError),
		Usage: "numa",
		Short: "Show NUMA topology and dataset placement",
		Examples: []string{
			"rxmine numa",
			"RXMINE_NODE_DIR=/tmp/fake-sysfs rxmine numa",
		},
		Exec: func(_ context.Context, o *IO, _ []string) error {
			for _, n := range a.topo.Nodes {
				o.Printf("node%d: cpus %s (%d)\n", n.ID, cpu.FormatCPUList(n.CPUs), len(n.CPUs))
			}

			rxCfg := a.cfg.RxConfig(a.topo)

			if len(rxCfg.Nodes) > 0 {
				o.Printf("datasets: one per node %v, %d fill threads each\n", rxCfg.Nodes, rxCfg.Threads)
			} else {
				o.Println("datasets: single, unbound")
			}

			o.Printf("hash threads: %d\n", a.cfg.HashThreads(a.topo))

			return nil
		},
	}
}
