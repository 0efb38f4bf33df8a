// Package response implements the forward-folding operator that maps a
// continuous differential flux into expected counts per detector
// channel. The dispersion kernel is a channels × true-energy matrix; an
// optional effective-area vector is applied on the true-energy side
// before dispersion:
//
// predicted = exposure · K · (area ∘ ∫ flux)
//
// A response built without a kernel degenerates to direct integration of
// the flux over each channel's energy interval.
package response

import (
	"gonum.org/v1/gonum/mat"

	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/gonumext"
	"github.com/threeML/specfit/model"
	"github.com/threeML/specfit/spectrum"
)

// Response is an immutable forward-folding operator.
type Response struct {
	kernel *mat.Dense    // nChannels x nEnergyBins, nil for the direct case
	area   *mat.VecDense // effective area per true-energy bin
	grid   []float64     // nEnergyBins+1 true-energy edges
	bounds spectrum.EnergyBounds
	cfg    Config
}

// New builds a dispersion response from a channels × true-energy kernel,
// the true-energy grid edges (len = energy bins + 1), the channel energy
// bounds and an optional effective-area vector (nil means unit area).
func New(kernel *mat.Dense, gridEdges []float64, bounds spectrum.EnergyBounds, area *mat.VecDense, cfg Config) (*Response, error) {
	cfg = cfg.withDefaults()
	nCh, nE := kernel.Dims()
	if nCh != bounds.Len() {
		return nil, fault.Configurationf("kernel has %d channel rows but bounds describe %d channels", nCh, bounds.Len())
	}
	if len(gridEdges) != nE+1 {
		return nil, fault.Configurationf("kernel has %d energy columns but grid has %d edges", nE, len(gridEdges))
	}
	for j := 1; j < len(gridEdges); j++ {
		if gridEdges[j] <= gridEdges[j-1] {
			return nil, fault.Configurationf("true-energy grid must be strictly increasing at edge %d", j)
		}
	}
	if gonumext.NANORINF(kernel) {
		return nil, fault.Configurationf("dispersion kernel contains NaN or Inf")
	}
	if gonumext.HasNegative(kernel) {
		return nil, fault.Configurationf("dispersion kernel contains negative entries")
	}
	if area == nil {
		area = gonumext.FullVec(nE, 1)
	} else if area.Len() != nE {
		return nil, fault.Configurationf("effective-area vector has %d entries for %d energy bins", area.Len(), nE)
	}
	cfg.Logger.Debug("response constructed", "channels", nCh, "energy_bins", nE)
	return &Response{kernel: kernel, area: area, grid: gridEdges, bounds: bounds, cfg: cfg}, nil
}

// NewDirect builds a response for instruments whose counts are known
// directly in channel space: folding integrates the flux over each
// channel's own energy interval.
func NewDirect(bounds spectrum.EnergyBounds, cfg Config) *Response {
	cfg = cfg.withDefaults()
	return &Response{bounds: bounds, cfg: cfg}
}

// NChannels returns the number of detector channels.
func (r *Response) NChannels() int { return r.bounds.Len() }

// Bounds returns the channel energy bounds.
func (r *Response) Bounds() spectrum.EnergyBounds { return r.bounds }

// Fold evaluates the flux on the true-energy grid and returns the
// expected counts per channel for the given exposure. A flux that goes
// negative anywhere on the grid is a model error and is surfaced as a
// DegeneracyError carrying the first offending bin, never clipped.
func (r *Response) Fold(flux model.Flux, exposure float64) (*mat.VecDense, error) {
	if r.kernel == nil {
		return r.foldDirect(flux, exposure)
	}

	nE := r.area.Len()
	phi := mat.NewVecDense(nE, nil)
	for j := 0; j < nE; j++ {
		v, err := r.cfg.binIntegral(flux, r.grid[j], r.grid[j+1], j)
		if err != nil {
			r.cfg.Logger.Warn("negative model flux on true-energy grid", "bin", j)
			return nil, err
		}
		phi.SetVec(j, v*r.area.AtVec(j))
	}

	out := mat.NewVecDense(r.bounds.Len(), nil)
	out.MulVec(r.kernel, phi)
	out.ScaleVec(exposure, out)
	return out, nil
}

func (r *Response) foldDirect(flux model.Flux, exposure float64) (*mat.VecDense, error) {
	n := r.bounds.Len()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v, err := r.cfg.binIntegral(flux, r.bounds.Min(i), r.bounds.Max(i), i)
		if err != nil {
			r.cfg.Logger.Warn("negative model flux in channel interval", "channel", i)
			return nil, err
		}
		out.SetVec(i, v*exposure)
	}
	return out, nil
}
