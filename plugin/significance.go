package plugin

import (
	"math"

	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/likelihood"
	"github.com/threeML/specfit/significance"
)

// Significance returns the per-channel detection significance over the
// current view and the integrated significance of the active channels:
// Li & Ma for Poisson backgrounds (fixed or modeled), the
// profile-likelihood-ratio analogue for Gaussian backgrounds. Inactive
// channels carry 0. Configurations without a background observation
// have no off-source counts to test against and are rejected.
func (p *SpectrumPlugin) Significance() ([]float64, float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	obs := p.current.obs.Counts()
	mask := p.current.mask
	out := make([]float64, len(obs))

	switch p.kind {
	case likelihood.PoissonPoisson, likelihood.PoissonModeled:
		bkg := p.current.bkg.Counts()
		var sumOn, sumOff float64
		for i := range obs {
			if !mask[i] {
				continue
			}
			out[i] = significance.LiMa(obs[i], bkg[i], p.alpha)
			sumOn += obs[i]
			sumOff += bkg[i]
		}
		return out, significance.LiMa(sumOn, sumOff, p.alpha), nil

	case likelihood.PoissonGaussian:
		bkg := p.current.bkg.Counts()
		errs := p.current.bkg.Errors()
		var sumOn, sumB, sumVar float64
		for i := range obs {
			if !mask[i] {
				continue
			}
			out[i] = significance.GaussianBackground(obs[i], p.alpha*bkg[i], p.alpha*errs[i])
			sumOn += obs[i]
			sumB += p.alpha * bkg[i]
			se := p.alpha * errs[i]
			sumVar += se * se
		}
		return out, significance.GaussianBackground(sumOn, sumB, math.Sqrt(sumVar)), nil
	}

	return nil, 0, fault.Configurationf("significance requires a background observation, kind is %s", p.kind)
}
