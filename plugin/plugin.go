// Package plugin binds one observed spectrum, its optional background,
// a response operator and a physical model into a single log-likelihood
// exposed to an external minimizer or sampler. The statistical
// configuration is resolved once at construction into a fixed
// likelihood kind; channel selection and rebinning act on a swappable
// view so that removing a rebinning is a pointer swap back to the
// original, never a recomputation.
//
// Likelihood evaluation only reads immutable data and is safe to call
// concurrently; Select, Exclude and the rebinning calls take the write
// lock and must not race with evaluation.
package plugin

import (
	"log/slog"
	"math"
	"sync"

	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/likelihood"
	"github.com/threeML/specfit/model"
	"github.com/threeML/specfit/response"
	"github.com/threeML/specfit/spectrum"
)

// Config carries the per-plugin settings threaded through construction.
type Config struct {
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// view is one consistent snapshot of the channel structure the
// likelihood runs over: the (possibly regrouped) spectra, the active
// mask and the evaluator built over them. Views are immutable except
// for the mask, which only Select/Exclude touch under the write lock.
type view struct {
	obs      *spectrum.Spectrum
	bkg      *spectrum.Spectrum // nil without a background observation
	mask     []bool
	grouping *spectrum.Grouping // nil when ungrouped
	eval     *likelihood.Evaluator
}

// SpectrumPlugin is the forward-folding likelihood plugin.
type SpectrumPlugin struct {
	mu sync.RWMutex

	name string
	cfg  Config

	resp   *response.Response
	flux   model.Flux
	params *model.ParameterSet

	bkgPlugin *SpectrumPlugin // modeled background, nil otherwise
	kind      likelihood.Kind
	alpha     float64 // total/background exposure ratio, 1 when unused

	base    *view // the ungrouped view, kept for exact rebin removal
	current *view
}

// New constructs a plugin from an observation, an optional fixed
// background spectrum (nil for the profile-likelihood case), a response
// operator and the physical model. The statistic combination is
// resolved here, once.
func New(name string, obs *spectrum.Spectrum, bkg *spectrum.Spectrum, resp *response.Response, flux model.Flux, params *model.ParameterSet, cfg Config) (*SpectrumPlugin, error) {
	cfg = cfg.withDefaults()
	if obs.Len() != resp.NChannels() {
		return nil, fault.Configurationf("observation has %d channels but response has %d", obs.Len(), resp.NChannels())
	}
	kind, alpha, err := resolveKind(obs, bkg)
	if err != nil {
		return nil, err
	}

	p := &SpectrumPlugin{
		name:   name,
		cfg:    cfg,
		resp:   resp,
		flux:   flux,
		params: params,
		kind:   kind,
		alpha:  alpha,
	}
	base, err := p.makeView(obs, bkg, nil, fullMask(obs.Len()))
	if err != nil {
		return nil, err
	}
	p.base = base
	p.current = base
	cfg.Logger.Debug("plugin constructed", "name", name, "kind", kind.String(), "channels", obs.Len())
	return p, nil
}

// NewWithBackgroundModel constructs a plugin whose background is
// predicted by a second, live plugin. The background plugin's free
// parameters become nuisance parameters of this likelihood; they are
// held by reference, so a minimizer's update to them is visible on the
// next evaluation.
func NewWithBackgroundModel(name string, obs *spectrum.Spectrum, bkgPlugin *SpectrumPlugin, resp *response.Response, flux model.Flux, params *model.ParameterSet, cfg Config) (*SpectrumPlugin, error) {
	cfg = cfg.withDefaults()
	if obs.Statistic() != spectrum.Poisson {
		return nil, fault.Configurationf("modeled background requires a Poisson total observation")
	}
	bkgObs := bkgPlugin.Observation()
	if bkgObs.Statistic() != spectrum.Poisson {
		return nil, fault.Configurationf("modeled background requires a Poisson background observation")
	}
	if bkgObs.Len() != obs.Len() {
		return nil, fault.Configurationf("background plugin has %d channels but observation has %d", bkgObs.Len(), obs.Len())
	}
	if obs.Len() != resp.NChannels() {
		return nil, fault.Configurationf("observation has %d channels but response has %d", obs.Len(), resp.NChannels())
	}

	p := &SpectrumPlugin{
		name:      name,
		cfg:       cfg,
		resp:      resp,
		flux:      flux,
		params:    params,
		bkgPlugin: bkgPlugin,
		kind:      likelihood.PoissonModeled,
		alpha:     obs.Exposure() / bkgObs.Exposure(),
	}
	base, err := p.makeView(obs, bkgObs, nil, fullMask(obs.Len()))
	if err != nil {
		return nil, err
	}
	p.base = base
	p.current = base
	cfg.Logger.Debug("plugin constructed", "name", name, "kind", p.kind.String(), "channels", obs.Len())
	return p, nil
}

func resolveKind(obs, bkg *spectrum.Spectrum) (likelihood.Kind, float64, error) {
	alpha := 1.0
	if bkg != nil {
		if bkg.Len() != obs.Len() {
			return 0, 0, fault.Configurationf("background has %d channels but observation has %d", bkg.Len(), obs.Len())
		}
		alpha = obs.Exposure() / bkg.Exposure()
	}
	switch obs.Statistic() {
	case spectrum.Gaussian:
		return likelihood.GaussianTotal, alpha, nil
	case spectrum.Poisson:
		if bkg == nil {
			return likelihood.PoissonProfile, alpha, nil
		}
		switch bkg.Statistic() {
		case spectrum.Poisson:
			return likelihood.PoissonPoisson, alpha, nil
		case spectrum.Gaussian:
			return likelihood.PoissonGaussian, alpha, nil
		}
	}
	return 0, 0, fault.Configurationf("unrecognized statistic combination %s/%v", obs.Statistic(), bkg.Statistic())
}

func fullMask(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

// makeView builds a consistent view over the given spectra, mask and
// grouping, including its likelihood evaluator.
func (p *SpectrumPlugin) makeView(obs, bkg *spectrum.Spectrum, grouping *spectrum.Grouping, mask []bool) (*view, error) {
	var bkgCounts, bkgErrs []float64
	if bkg != nil {
		bkgCounts = bkg.Counts()
		bkgErrs = bkg.Errors()
	}
	eval, err := likelihood.New(p.kind, obs.Counts(), obs.Errors(), obs.Systematics(), bkgCounts, bkgErrs, p.alpha)
	if err != nil {
		return nil, err
	}
	return &view{obs: obs, bkg: bkg, mask: mask, grouping: grouping, eval: eval}, nil
}

// Name returns the plugin name.
func (p *SpectrumPlugin) Name() string { return p.name }

// Kind returns the resolved statistical configuration.
func (p *SpectrumPlugin) Kind() likelihood.Kind { return p.kind }

// Observation returns the ungrouped observed spectrum.
func (p *SpectrumPlugin) Observation() *spectrum.Spectrum {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.base.obs
}

// Background returns the ungrouped fixed background spectrum, or nil.
func (p *SpectrumPlugin) Background() *spectrum.Spectrum {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.base.bkg
}

// CurrentSpectrum returns the spectrum of the current (possibly
// regrouped) view.
func (p *SpectrumPlugin) CurrentSpectrum() *spectrum.Spectrum {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.obs
}

// Parameters returns the model parameter set.
func (p *SpectrumPlugin) Parameters() *model.ParameterSet { return p.params }

// NuisanceParameters enumerates the background plugin's free parameters,
// by handle, so an optimizer can include them in its vector. Empty
// without a background model.
func (p *SpectrumPlugin) NuisanceParameters() []*model.Parameter {
	if p.bkgPlugin == nil {
		return nil
	}
	return p.bkgPlugin.Parameters().Free()
}

// NFreeNuisanceParameters returns the number of free nuisance parameters.
func (p *SpectrumPlugin) NFreeNuisanceParameters() int {
	return len(p.NuisanceParameters())
}

// NActiveChannels returns the number of active channels in the current
// view.
func (p *SpectrumPlugin) NActiveChannels() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, a := range p.current.mask {
		if a {
			n++
		}
	}
	return n
}

// Mask returns a copy of the current active-channel mask.
func (p *SpectrumPlugin) Mask() []bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]bool, len(p.current.mask))
	copy(out, p.current.mask)
	return out
}

// foldSource folds the model through the response and regroups the
// prediction to the current view. Callers hold at least the read lock.
func (p *SpectrumPlugin) foldSource() ([]float64, error) {
	pred, err := p.resp.Fold(p.flux, p.base.obs.Exposure())
	if err != nil {
		return nil, err
	}
	m := pred.RawVector().Data
	if p.current.grouping != nil {
		m = p.current.grouping.Sum(m)
	}
	return m, nil
}

// foldBackgroundModel folds the background plugin's model in the
// background observation's exposure, regrouped to the current view.
// Returns nil when no background model is attached.
func (p *SpectrumPlugin) foldBackgroundModel() ([]float64, error) {
	if p.bkgPlugin == nil {
		return nil, nil
	}
	pred, err := p.bkgPlugin.resp.Fold(p.bkgPlugin.flux, p.bkgPlugin.base.obs.Exposure())
	if err != nil {
		return nil, err
	}
	m := pred.RawVector().Data
	if p.current.grouping != nil {
		m = p.current.grouping.Sum(m)
	}
	return m, nil
}

// LogLikelihood evaluates the log-likelihood of the current model
// parameters over the active channels. It is a pure, deterministic
// function of the parameter state and the fixed data, and may run
// concurrently with other LogLikelihood calls.
func (p *SpectrumPlugin) LogLikelihood() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	m, err := p.foldSource()
	if err != nil {
		return 0, err
	}
	bkgModel, err := p.foldBackgroundModel()
	if err != nil {
		return 0, err
	}
	return p.current.eval.Sum(m, bkgModel, p.current.mask)
}

// ExpectedCounts returns the expected total counts per current-view
// channel: folded source counts plus the exposure-scaled background
// expectation appropriate to the statistical configuration (profiled,
// fixed or modeled).
func (p *SpectrumPlugin) ExpectedCounts() ([]float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	m, err := p.foldSource()
	if err != nil {
		return nil, err
	}
	bkgModel, err := p.foldBackgroundModel()
	if err != nil {
		return nil, err
	}
	return p.expectedTotal(m, bkgModel), nil
}

// expectedTotal combines folded source counts with the per-channel
// background expectation. Callers hold at least the read lock.
func (p *SpectrumPlugin) expectedTotal(m, bkgModel []float64) []float64 {
	obs := p.current.obs.Counts()
	out := make([]float64, len(m))
	switch p.kind {
	case likelihood.PoissonProfile:
		for i := range out {
			out[i] = m[i] + likelihood.ProfiledBackground(obs[i], m[i])
		}
	case likelihood.PoissonPoisson, likelihood.PoissonGaussian:
		bkg := p.current.bkg.Counts()
		for i := range out {
			out[i] = m[i] + p.alpha*bkg[i]
		}
	case likelihood.PoissonModeled:
		for i := range out {
			out[i] = m[i] + p.alpha*bkgModel[i]
		}
	default:
		bkg := []float64(nil)
		if p.current.bkg != nil {
			bkg = p.current.bkg.Counts()
		}
		for i := range out {
			out[i] = m[i]
			if bkg != nil {
				out[i] += p.alpha * bkg[i]
			}
		}
	}
	return out
}

// Residuals returns the per-channel residuals of the current view:
// Pearson residuals (obs − expected)/√expected for Poisson totals,
// (obs − expected)/σ for Gaussian totals. Inactive channels carry 0.
func (p *SpectrumPlugin) Residuals() ([]float64, error) {
	expected, err := p.ExpectedCounts()
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	obs := p.current.obs.Counts()
	errs := p.current.obs.Errors()
	out := make([]float64, len(obs))
	for i := range out {
		if !p.current.mask[i] {
			continue
		}
		switch {
		case p.kind == likelihood.GaussianTotal:
			out[i] = (obs[i] - expected[i]) / errs[i]
		case expected[i] > 0:
			out[i] = (obs[i] - expected[i]) / math.Sqrt(expected[i])
		}
	}
	return out, nil
}
