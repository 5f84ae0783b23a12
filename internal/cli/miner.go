package cli

import (
	"context"
	"fmt"
	"sync"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rxmine/internal/config"
	"github.com/calvinalkan/rxmine/internal/job"
	"github.com/calvinalkan/rxmine/internal/logging"
	"github.com/calvinalkan/rxmine/internal/worker"
	"github.com/calvinalkan/rxmine/pkg/rx"
)

// miner wires provisioning, the job pipeline and the hash workers together.
type miner struct {
	rx       *rx.Rx
	pipeline *job.Pipeline
	pool     *worker.Pool
	rxCfg    rx.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startMiner(ctx context.Context, a *app, cfg config.Config, hashThreads int) (*miner, error) {
	storage, err := cfg.StorageKind()
	if err != nil {
		return nil, err
	}

	rxCfg := cfg.RxConfig(a.topo)

	r := rx.New(rx.Options{
		Storage: storage,
		Pinner:  a.topo,
		Logger:  a.logs.Logger(logging.SubRandomX),
	})

	if hashThreads <= 0 {
		hashThreads = cfg.HashThreads(a.topo)
	}

	m := &miner{
		rx:       r,
		pipeline: job.NewPipeline(r, rxCfg, a.logs.Logger(logging.SubJobs)),
		rxCfg:    rxCfg,
	}

	wopts := worker.Options{
		Threads: hashThreads,
		Nodes:   rxCfg.Nodes,
		Logger:  a.logs.Logger(logging.SubMiner),
	}
	if len(rxCfg.Nodes) > 0 {
		wopts.Pinner = a.topo
	}

	m.pool = worker.New(m.pipeline, r, wopts)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)

	go func() {
		defer m.wg.Done()

		_ = m.pipeline.Run(runCtx)
	}()

	go func() {
		defer m.wg.Done()

		m.pool.Run(runCtx)
	}()

	return m, nil
}

func (m *miner) stop() {
	m.cancel()
	m.wg.Wait()
	_ = m.rx.Close()
}

// algoFlags are the algorithm selection flags shared by bench and console.
type algoFlags struct {
	cacheSize   int
	datasetSize int
}

func (f *algoFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.cacheSize, "cache-size", 0, "Override the cache size in bytes (smoke tests)")
	fs.IntVar(&f.datasetSize, "dataset-size", 0, "Override the dataset size in bytes (smoke tests)")
}

// resolve looks up name and applies size overrides.
func (f *algoFlags) resolve(name string) (rx.Algorithm, error) {
	alg, err := rx.ParseAlgorithm(name)
	if err != nil {
		return rx.Algorithm{}, err
	}

	if !alg.IsRandomX() {
		return alg, nil
	}

	if f.cacheSize > 0 {
		alg.CacheSize = f.cacheSize
	}

	if f.datasetSize > 0 {
		if f.datasetSize%rx.DatasetItemSize != 0 {
			return rx.Algorithm{}, fmt.Errorf("%w: dataset size %d is not a multiple of %d",
				rx.ErrInvalidAlgorithm, f.datasetSize, rx.DatasetItemSize)
		}

		alg.DatasetSize = f.datasetSize
	}

	return alg, nil
}
