package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"golang.org/x/crypto/blake2b"

	"github.com/calvinalkan/rxmine/internal/job"
	"github.com/calvinalkan/rxmine/pkg/rx"
)

// BenchCmd returns the bench command.
func BenchCmd(a *app) *Command {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.String("algo", rx.RX0.Name, "Algorithm")
	fs.String("seed", "", "Seed hash as hex (default: derived from height)")
	fs.Uint64("height", 1, "Block height")
	fs.String("mode", a.cfg.RandomX.Mode, "Dataset mode: auto|fast|light")
	fs.Int("init", a.cfg.RandomX.Init, "Dataset fill threads per node, -1 for auto")
	fs.Int("threads", 0, "Hash threads (default: from cpu.max-threads-hint)")
	fs.Bool("huge-pages", a.cfg.CPU.HugePages, "Use huge pages")
	fs.Bool("1gb-pages", a.cfg.RandomX.OneGBPages, "Use 1GB huge pages for the dataset")
	fs.Bool("numa", a.cfg.RandomX.NUMA, "Keep one dataset per NUMA node")
	fs.String("storage", a.cfg.RandomX.Storage, "Dataset storage: queued|single")
	fs.Duration("duration", 10*time.Second, "How long to hash")

	var af algoFlags
	af.register(fs)

	return &Command{
		Flags: fs,
		Usage: "bench [flags]",
		Short: "Provision a dataset and measure hashrate",
		Examples: []string{
			"rxmine bench --duration 30s",
			"rxmine bench --algo rx/wow --height 2500000 --mode light",
			"rxmine bench --storage single --huge-pages=false",
		},
		Long: `Provision the dataset for one seed, print allocation diagnostics, then
hash against it for --duration and report the hashrate.

The hash is a dataset probe, not a RandomX hash: results are comparable
between runs on the same host, not with other miners.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execBench(ctx, o, a, fs, &af)
		},
	}
}

func execBench(ctx context.Context, o *IO, a *app, fs *flag.FlagSet, af *algoFlags) error {
	cfg := a.cfg

	cfg.RandomX.Mode, _ = fs.GetString("mode")
	cfg.RandomX.Init, _ = fs.GetInt("init")
	cfg.CPU.HugePages, _ = fs.GetBool("huge-pages")
	cfg.RandomX.OneGBPages, _ = fs.GetBool("1gb-pages")
	cfg.RandomX.NUMA, _ = fs.GetBool("numa")
	cfg.RandomX.Storage, _ = fs.GetString("storage")

	err := cfg.Validate()
	if err != nil {
		return err
	}

	algoName, _ := fs.GetString("algo")

	alg, err := af.resolve(algoName)
	if err != nil {
		return err
	}

	height, _ := fs.GetUint64("height")

	seedHex, _ := fs.GetString("seed")
	if seedHex == "" {
		seedHex = derivedSeed(alg, height)
	}

	id := uuid.NewString()[:8]

	j, err := job.New(id, alg, seedHex, height, []byte(id))
	if err != nil {
		return err
	}

	threads, _ := fs.GetInt("threads")
	duration, _ := fs.GetDuration("duration")

	m, err := startMiner(ctx, a, cfg, threads)
	if err != nil {
		return err
	}

	defer m.stop()

	start := time.Now()

	_, err = m.pipeline.Submit(ctx, j)
	if err != nil {
		return err
	}

	err = m.pipeline.WaitActive(ctx, j.ID())
	if err != nil {
		return fmt.Errorf("waiting for dataset: %w", err)
	}

	o.Printf("job:        %s\n", j)
	o.Printf("dataset:    ready in %d ms\n", time.Since(start).Milliseconds())

	if alg.IsRandomX() {
		pages := m.rx.HugePages()
		o.Printf("huge pages: %s (%.0f%%)\n", pages, pages.Percent())

		if cfg.CPU.HugePages && !pages.Full() {
			o.Warn("huge pages not fully available",
				"reserve more with sysctl vm.nr_hugepages, or set cpu.huge-pages to false")
		}

		if ds, ok := m.rx.DatasetFor(j, 0); ok {
			o.Printf("mode:       %s\n", ds.Mode())
			ds.Release()
		}
	}

	before := m.pool.Stats()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	after := m.pool.Stats()
	hashes := after.Hashes - before.Hashes
	elapsed := after.Elapsed - before.Elapsed

	rate := 0.0
	if elapsed > 0 {
		rate = float64(hashes) / elapsed.Seconds()
	}

	o.Printf("hashes:     %d in %s\n", hashes, elapsed.Round(time.Millisecond))
	o.Printf("hashrate:   %.1f H/s\n", rate)

	return nil
}

// derivedSeed returns a deterministic seed for the epoch of height, so runs
// at the same height reuse the same dataset contents.
func derivedSeed(alg rx.Algorithm, height uint64) string {
	sum := blake2b.Sum256(fmt.Appendf(nil, "%s/%d", alg.Name, rx.SeedHeight(height)))

	return hex.EncodeToString(sum[:])
}
