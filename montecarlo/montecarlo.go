// Package montecarlo runs ensembles of synthetic replicas of a fitted
// spectrum plugin and collects their -log(likelihood) values, the raw
// material for goodness-of-fit and likelihood-ratio-test callers. Each
// replica is seeded independently, so an ensemble is reproducible given
// its base seed.
package montecarlo

import (
	"log/slog"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/threeML/specfit/plugin"
)

// Config controls an ensemble run.
type Config struct {
	// ContinueOnFailure skips replicas whose draw or evaluation fails,
	// counting them, instead of aborting the run. Goodness-of-fit loops
	// expect occasional degenerate synthetic draws.
	ContinueOnFailure bool
	// Workers bounds the number of concurrent replicas; 0 means one
	// goroutine per replica.
	Workers int
	Logger  *slog.Logger
}

// Ensemble holds the outcome of a replica run.
type Ensemble struct {
	// NegLogLikes are the -log(likelihood) values of the successful
	// replicas, in no particular order.
	NegLogLikes []float64
	// Failures counts replicas dropped under ContinueOnFailure.
	Failures int
}

// Median returns the median of the replica -log(likelihood) sample.
func (e *Ensemble) Median() float64 {
	s := make([]float64, len(e.NegLogLikes))
	copy(s, e.NegLogLikes)
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}

// Mean returns the mean of the replica -log(likelihood) sample.
func (e *Ensemble) Mean() float64 {
	return stat.Mean(e.NegLogLikes, nil)
}

// Run simulates n replicas of the plugin at its current parameters,
// refolds the same model through each replica and records the resulting
// -log(likelihood). Replica i uses seed+i.
func Run(p *plugin.SpectrumPlugin, n int, seed uint64, cfg Config) (*Ensemble, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 || workers > n {
		workers = n
	}

	type result struct {
		nll float64
		err error
	}

	var wg sync.WaitGroup
	jobs := make(chan uint64)
	results := make(chan result, n)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for s := range jobs {
				sim, err := p.Simulate(s)
				if err != nil {
					results <- result{err: err}
					continue
				}
				ll, err := sim.LogLikelihood()
				if err != nil {
					results <- result{err: err}
					continue
				}
				results <- result{nll: -ll}
			}
		}()
	}

	go func() {
		for i := 0; i < n; i++ {
			jobs <- seed + uint64(i)
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	// Drain every replica before deciding the outcome so no worker is
	// left blocked on an abandoned channel.
	ens := &Ensemble{}
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			ens.Failures++
			cfg.Logger.Warn("replica dropped", "plugin", p.Name(), "error", r.err)
			continue
		}
		ens.NegLogLikes = append(ens.NegLogLikes, r.nll)
	}
	if firstErr != nil && !cfg.ContinueOnFailure {
		return nil, firstErr
	}
	return ens, nil
}
