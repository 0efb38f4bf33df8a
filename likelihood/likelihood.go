// Package likelihood implements the closed-form per-channel
// log-likelihood terms for binned count spectra and the evaluator that
// sums them over the active channels. The statistical configuration is
// resolved once at construction into a fixed dispatch, so the hot
// per-channel loop never re-branches on statistic types.
//
// The forms covered, per channel with observed total counts o, observed
// background counts b, exposure ratio α = t_on/t_off and expected source
// counts m:
//
//   - Poisson total, no background: profile likelihood with the
//     per-channel background rate analytically maximized, floored at 0.
//   - Poisson total, Poisson background: joint likelihood with the
//     profiled background solving the quadratic stationarity condition.
//   - Poisson total, Gaussian background: joint Poisson × Gaussian with
//     the profiled Gaussian background.
//   - Poisson total, modeled background: joint Poisson with the
//     background expectation supplied by a second forward-folded model.
//   - Gaussian total: chi-square on (observed − expected).
package likelihood

import (
	"math"

	"github.com/threeML/specfit/fault"
)

// Kind tags a statistical configuration. It is fixed at construction.
type Kind int

const (
	// PoissonProfile: Poisson total with no background observation; the
	// unconstrained per-channel background rate is profiled out.
	PoissonProfile Kind = iota
	// PoissonPoisson: Poisson total with a fixed Poisson background
	// spectrum, background rate scaled by the exposure ratio.
	PoissonPoisson
	// PoissonGaussian: Poisson total with a fixed Gaussian background
	// spectrum carrying its own per-channel errors.
	PoissonGaussian
	// PoissonModeled: Poisson total with the background expectation
	// predicted by a background model, re-evaluated every call.
	PoissonModeled
	// GaussianTotal: Gaussian total counts with per-channel errors,
	// background subtracted when present.
	GaussianTotal
)

func (k Kind) String() string {
	switch k {
	case PoissonProfile:
		return "poisson/profile"
	case PoissonPoisson:
		return "poisson/poisson"
	case PoissonGaussian:
		return "poisson/gaussian"
	case PoissonModeled:
		return "poisson/modeled"
	case GaussianTotal:
		return "gaussian"
	}
	return "unknown"
}

const log2Pi = 1.8378770664093453

// xlogy returns x·log(y) with the limiting value 0·log(0) == 0. A
// strictly positive x with y == 0 yields -Inf, which is the correct
// (vanishing) likelihood, not an error.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

func logFactorial(n float64) float64 {
	lg, _ := math.Lgamma(n + 1)
	return lg
}

// PoissonIdealTerm is the Poisson log-pmf of obs counts with expectation
// lambda, with the 0·log(0) limit applied.
func PoissonIdealTerm(obs, lambda float64) float64 {
	return xlogy(obs, lambda) - lambda - logFactorial(obs)
}

// ProfiledBackground is the analytic maximizer of the per-channel
// background rate when no background observation exists: the excess of
// the observed total over the expected source counts, floored at zero
// when the model overshoots.
func ProfiledBackground(obs, m float64) float64 {
	return math.Max(obs-m, 0)
}

// PoissonProfileTerm evaluates the Poisson profile likelihood for one
// channel: obs total counts against expected source counts m with the
// background rate profiled out.
func PoissonProfileTerm(obs, m float64) float64 {
	total := m + ProfiledBackground(obs, m)
	return xlogy(obs, total) - total - logFactorial(obs)
}

// ProfiledPoissonBackground solves the stationarity condition of the
// joint Poisson likelihood for the background rate B:
//
// α(α+1) B² + [(α+1)m − α(o+b)] B − bm = 0
func ProfiledPoissonBackground(obs, bkg, alpha, m float64) float64 {
	first := alpha*(obs+bkg) - (alpha+1)*m
	disc := first*first + 4*alpha*(alpha+1)*bkg*m
	b := (first + math.Sqrt(disc)) / (2 * alpha * (alpha + 1))
	if b < 0 {
		// Round-off can push the root epsilon-negative.
		return 0
	}
	return b
}

// PoissonPoissonTerm evaluates the joint Poisson(total) × Poisson(background)
// log-likelihood for one channel with the background rate profiled out.
// alpha is the exposure ratio t_on/t_off.
func PoissonPoissonTerm(obs, bkg, alpha, m float64) float64 {
	b := ProfiledPoissonBackground(obs, bkg, alpha, m)
	return xlogy(obs, m+alpha*b) - (m + alpha*b) - logFactorial(obs) +
		xlogy(bkg, b) - b - logFactorial(bkg)
}

// ProfiledGaussianBackground maximizes the joint Poisson × Gaussian
// likelihood over the background expectation. bkg and sigma must already
// be scaled to the total observation's exposure. The discriminant
// (MB − σ²)² + 4σ²·obs is non-negative by construction.
func ProfiledGaussianBackground(obs, bkg, sigma, m float64) float64 {
	s2 := sigma * sigma
	mb := bkg + m
	b := 0.5 * (math.Sqrt(mb*mb-2*s2*(mb-2*obs)+s2*s2) + bkg - m - s2)
	if b < 0 {
		return 0
	}
	return b
}

// PoissonGaussianTerm evaluates the joint Poisson(total) × Gaussian(background)
// log-likelihood for one channel. bkg and sigma are the background
// estimate and its error, already scaled by the exposure ratio.
func PoissonGaussianTerm(obs, bkg, sigma, m float64) float64 {
	b := ProfiledGaussianBackground(obs, bkg, sigma, m)
	return -0.5*(b-bkg)*(b-bkg)/(sigma*sigma) - 0.5*math.Log(sigma*sigma) - 0.5*log2Pi +
		xlogy(obs, b+m) - (b + m) - logFactorial(obs)
}

// GaussianTerm is the Gaussian log-likelihood of one channel: obs against
// expectation m with error sigma.
func GaussianTerm(obs, m, sigma float64) float64 {
	r := (obs - m) / sigma
	return -0.5*r*r - 0.5*math.Log(sigma*sigma) - 0.5*log2Pi
}

// Evaluator sums per-channel terms over an active mask. All referenced
// arrays are immutable after construction; Sum is a pure function of the
// expected counts and is safe to call concurrently.
type Evaluator struct {
	kind    Kind
	obs     []float64
	obsErr  []float64
	sysFrac []float64
	bkg     []float64
	bkgErr  []float64
	alpha   float64
}

// New resolves the statistical configuration into an Evaluator. obs is
// required for every kind. bkg (and bkgErr for the Gaussian-background
// case, obsErr for the Gaussian-total case) must be present where the
// kind demands them; alpha is the total/background exposure ratio and is
// ignored by kinds without a background observation. sysFrac optionally
// inflates Gaussian-total errors in quadrature with sysFrac·m.
func New(kind Kind, obs, obsErr, sysFrac, bkg, bkgErr []float64, alpha float64) (*Evaluator, error) {
	switch kind {
	case PoissonProfile:
	case PoissonPoisson, PoissonModeled:
		if len(bkg) != len(obs) {
			return nil, fault.Configurationf("%s likelihood needs background counts for every channel", kind)
		}
	case PoissonGaussian:
		if len(bkg) != len(obs) || len(bkgErr) != len(obs) {
			return nil, fault.Configurationf("%s likelihood needs background counts and errors for every channel", kind)
		}
	case GaussianTotal:
		if len(obsErr) != len(obs) {
			return nil, fault.Configurationf("%s likelihood needs per-channel errors", kind)
		}
	default:
		return nil, fault.Configurationf("unrecognized likelihood kind %d", int(kind))
	}
	if (kind == PoissonPoisson || kind == PoissonGaussian || kind == PoissonModeled) && alpha <= 0 {
		return nil, fault.Configurationf("exposure ratio must be positive, got %v", alpha)
	}
	return &Evaluator{kind: kind, obs: obs, obsErr: obsErr, sysFrac: sysFrac, bkg: bkg, bkgErr: bkgErr, alpha: alpha}, nil
}

// Kind returns the resolved statistical configuration.
func (e *Evaluator) Kind() Kind { return e.kind }

// Sum evaluates the total log-likelihood of the expected source counts m
// over the active channels. bkgModel is the background model's expected
// counts in the background observation's exposure and is required by (and
// only by) the PoissonModeled kind, where the background data term
// against its own model is included. At least one channel must be active.
func (e *Evaluator) Sum(m []float64, bkgModel []float64, active []bool) (float64, error) {
	if len(m) != len(e.obs) || len(active) != len(e.obs) {
		return 0, fault.Configurationf("expected counts and mask must match the %d channels", len(e.obs))
	}
	nActive := 0
	for _, a := range active {
		if a {
			nActive++
		}
	}
	if nActive == 0 {
		return 0, fault.Configurationf("no active channels")
	}
	if e.kind == PoissonModeled && len(bkgModel) != len(e.obs) {
		return 0, fault.Configurationf("modeled-background likelihood needs background expectations for every channel")
	}

	// Dispatch once; the per-channel loops stay branch-free.
	var sum float64
	switch e.kind {
	case PoissonProfile:
		for i := range e.obs {
			if active[i] {
				sum += PoissonProfileTerm(e.obs[i], m[i])
			}
		}
	case PoissonPoisson:
		for i := range e.obs {
			if active[i] {
				sum += PoissonPoissonTerm(e.obs[i], e.bkg[i], e.alpha, m[i])
			}
		}
	case PoissonGaussian:
		for i := range e.obs {
			if active[i] {
				sum += PoissonGaussianTerm(e.obs[i], e.alpha*e.bkg[i], e.alpha*e.bkgErr[i], m[i])
			}
		}
	case PoissonModeled:
		for i := range e.obs {
			if active[i] {
				sum += PoissonIdealTerm(e.obs[i], m[i]+e.alpha*bkgModel[i]) +
					PoissonIdealTerm(e.bkg[i], bkgModel[i])
			}
		}
	case GaussianTotal:
		for i := range e.obs {
			if !active[i] {
				continue
			}
			expected := m[i]
			if e.bkg != nil {
				expected += e.alpha * e.bkg[i]
			}
			sigma := e.obsErr[i]
			if e.sysFrac != nil {
				sys := e.sysFrac[i] * m[i]
				sigma = math.Sqrt(sigma*sigma + sys*sys)
			}
			sum += GaussianTerm(e.obs[i], expected, sigma)
		}
	}
	return sum, nil
}
