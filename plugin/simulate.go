package plugin

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/likelihood"
	"github.com/threeML/specfit/spectrum"
)

// poissonDraw samples Poisson counts, with the degenerate zero-rate
// expectation handled before distuv sees it.
func poissonDraw(lambda float64, src rand.Source) float64 {
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: src}.Rand()
}

func normalDraw(mu, sigma float64, src rand.Source) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: src}.Rand()
}

// Simulate draws one Monte Carlo replica of the observation (and, where
// one exists, the background) consistent with the current model
// parameters and the spectrum's statistical nature, and returns a fresh
// plugin wired identically: same response, exposures, mask, grouping and
// background configuration, so a re-fit of the replica exercises the
// same likelihood code path. Draws are reproducible given the seed.
func (p *SpectrumPlugin) Simulate(seed uint64) (*SpectrumPlugin, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	src := rand.NewSource(seed)

	pred, err := p.resp.Fold(p.flux, p.base.obs.Exposure())
	if err != nil {
		return nil, err
	}
	m := pred.RawVector().Data

	obs := p.base.obs
	bkg := p.base.bkg
	n := obs.Len()
	totalDraw := make([]float64, n)
	var bkgDraw []float64

	switch p.kind {
	case likelihood.PoissonProfile:
		for i := 0; i < n; i++ {
			lambda := m[i] + likelihood.ProfiledBackground(obs.Counts()[i], m[i])
			totalDraw[i] = poissonDraw(lambda, src)
		}

	case likelihood.PoissonPoisson:
		bkgDraw = make([]float64, n)
		for i := 0; i < n; i++ {
			bHat := likelihood.ProfiledPoissonBackground(obs.Counts()[i], bkg.Counts()[i], p.alpha, m[i])
			totalDraw[i] = poissonDraw(m[i]+p.alpha*bHat, src)
			bkgDraw[i] = poissonDraw(bHat, src)
		}

	case likelihood.PoissonGaussian:
		bkgDraw = make([]float64, n)
		for i := 0; i < n; i++ {
			scaledB := p.alpha * bkg.Counts()[i]
			scaledErr := p.alpha * bkg.Errors()[i]
			bHat := likelihood.ProfiledGaussianBackground(obs.Counts()[i], scaledB, scaledErr, m[i])
			totalDraw[i] = poissonDraw(m[i]+bHat, src)
			bkgDraw[i] = normalDraw(bHat/p.alpha, bkg.Errors()[i], src)
		}

	case likelihood.PoissonModeled:
		bkgPred, err := p.bkgPlugin.resp.Fold(p.bkgPlugin.flux, bkg.Exposure())
		if err != nil {
			return nil, err
		}
		mb := bkgPred.RawVector().Data
		bkgDraw = make([]float64, n)
		for i := 0; i < n; i++ {
			totalDraw[i] = poissonDraw(m[i]+p.alpha*mb[i], src)
			bkgDraw[i] = poissonDraw(mb[i], src)
		}

	case likelihood.GaussianTotal:
		for i := 0; i < n; i++ {
			expected := m[i]
			if bkg != nil {
				expected += p.alpha * bkg.Counts()[i]
			}
			totalDraw[i] = normalDraw(expected, obs.Errors()[i], src)
		}
		if bkg != nil {
			bkgDraw = make([]float64, n)
			for i := 0; i < n; i++ {
				switch bkg.Statistic() {
				case spectrum.Poisson:
					bkgDraw[i] = poissonDraw(bkg.Counts()[i], src)
				default:
					bkgDraw[i] = normalDraw(bkg.Counts()[i], bkg.Errors()[i], src)
				}
			}
		}

	default:
		return nil, fault.Configurationf("cannot simulate likelihood kind %s", p.kind)
	}

	simObs, err := rebuildSpectrum(obs, totalDraw)
	if err != nil {
		return nil, err
	}

	var sim *SpectrumPlugin
	switch {
	case p.bkgPlugin != nil:
		simBkgObs, err := rebuildSpectrum(bkg, bkgDraw)
		if err != nil {
			return nil, err
		}
		simBkgPlugin, err := New(p.bkgPlugin.name+"_sim", simBkgObs, p.bkgPlugin.base.bkg,
			p.bkgPlugin.resp, p.bkgPlugin.flux, p.bkgPlugin.params, p.bkgPlugin.cfg)
		if err != nil {
			return nil, err
		}
		sim, err = NewWithBackgroundModel(p.name+"_sim", simObs, simBkgPlugin, p.resp, p.flux, p.params, p.cfg)
		if err != nil {
			return nil, err
		}
	case bkg != nil:
		simBkg, err := rebuildSpectrum(bkg, bkgDraw)
		if err != nil {
			return nil, err
		}
		sim, err = New(p.name+"_sim", simObs, simBkg, p.resp, p.flux, p.params, p.cfg)
		if err != nil {
			return nil, err
		}
	default:
		sim, err = New(p.name+"_sim", simObs, nil, p.resp, p.flux, p.params, p.cfg)
		if err != nil {
			return nil, err
		}
	}

	// Carry over the mask and any grouping so the replica evaluates over
	// the identical channel structure.
	copy(sim.base.mask, p.base.mask)
	if p.current.grouping != nil {
		if _, err := sim.applyGrouping(*p.current.grouping); err != nil {
			return nil, err
		}
		copy(sim.current.mask, p.current.mask)
	}
	return sim, nil
}

// rebuildSpectrum clones a spectrum's structure around new counts.
func rebuildSpectrum(s *spectrum.Spectrum, counts []float64) (*spectrum.Spectrum, error) {
	var opts []spectrum.Option
	if s.Errors() != nil {
		opts = append(opts, spectrum.WithErrors(s.Errors()))
	}
	if s.Systematics() != nil {
		opts = append(opts, spectrum.WithSystematics(s.Systematics()))
	}
	return spectrum.New(s.Bounds(), counts, s.Exposure(), s.Statistic(), opts...)
}
