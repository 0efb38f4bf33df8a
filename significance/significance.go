// Package significance computes detection significances for counting
// observations: the Li & Ma (1983) likelihood-ratio formula for a
// Poisson signal over a Poisson background, and the equivalent
// profile-likelihood-ratio significance for a Gaussian background
// estimate. Results are signed: an excess over the scaled background is
// positive, a deficit negative.
package significance

import (
	"math"

	"github.com/threeML/specfit/likelihood"
)

// LiMa returns the signed Li & Ma significance of non on-source counts
// against noff off-source counts with exposure ratio
// alpha = t_on/t_off:
//
// σ = ±√2 · √( non·ln[(1+α)/α · non/(non+noff)] + noff·ln[(1+α) · noff/(non+noff)] )
//
// Zero on- or off-counts take the limiting value 0 of the corresponding
// log term.
func LiMa(non, noff, alpha float64) float64 {
	if non == 0 && noff == 0 {
		return 0
	}
	sum := non + noff
	var onTerm, offTerm float64
	if non > 0 {
		onTerm = non * math.Log((1+alpha)/alpha*(non/sum))
	}
	if noff > 0 {
		offTerm = noff * math.Log((1+alpha)*(noff/sum))
	}
	arg := onTerm + offTerm
	if arg < 0 {
		// Round-off: the likelihood ratio is non-negative by construction.
		arg = 0
	}
	sigma := math.Sqrt(2 * arg)
	if non < alpha*noff {
		return -sigma
	}
	return sigma
}

// GaussianBackground returns the profile-likelihood-ratio significance
// of non on-source Poisson counts over a Gaussian background estimate
// bkg with error sigma, both already scaled to the on-source exposure.
// It compares the saturated model (free signal, background at its
// estimate) against the null (zero signal, background profiled).
func GaussianBackground(non, bkg, sigma float64) float64 {
	null := likelihood.PoissonGaussianTerm(non, bkg, sigma, 0)
	saturated := likelihood.PoissonIdealTerm(non, non) + likelihood.GaussianTerm(bkg, bkg, sigma)
	ts := 2 * (saturated - null)
	if ts < 0 {
		ts = 0
	}
	s := math.Sqrt(ts)
	if non < bkg {
		return -s
	}
	return s
}
