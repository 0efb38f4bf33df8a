// Package spectrum holds the binned count data consumed by the fitting
// core: observed counts per detector channel, the channel energy bounds,
// the exposure and the statistical nature (Poisson or Gaussian) of the
// observation. A Spectrum is read-only for the duration of a fit;
// rebinning produces a new Spectrum and never mutates the original.
package spectrum

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/threeML/specfit/fault"
)

// Statistic tags the statistical nature of a counting observation.
type Statistic int

const (
	// Poisson counts: non-negative integers with Poisson fluctuation.
	Poisson Statistic = iota
	// Gaussian counts: real values with an explicit per-channel error.
	Gaussian
)

func (s Statistic) String() string {
	switch s {
	case Poisson:
		return "poisson"
	case Gaussian:
		return "gaussian"
	}
	return "unknown"
}

// EnergyBounds stores the measured energy interval [Min(i), Max(i)) of
// every channel. Channels are ordered by energy and contiguous up to
// small calibration gaps:
//
// Min(i) < Max(i) <= Min(i+1)
type EnergyBounds struct {
	min []float64
	max []float64
}

// NewEnergyBounds builds channel bounds from per-channel interval edges.
func NewEnergyBounds(min, max []float64) (EnergyBounds, error) {
	if len(min) != len(max) || len(min) == 0 {
		return EnergyBounds{}, fault.Configurationf("channel bounds need matching non-empty min/max arrays")
	}
	for i := range min {
		if min[i] >= max[i] {
			return EnergyBounds{}, fault.Configurationf("channel %d has inverted bounds [%v, %v)", i, min[i], max[i])
		}
		if i > 0 && max[i-1] > min[i] {
			return EnergyBounds{}, fault.Configurationf("channel %d overlaps channel %d", i, i-1)
		}
	}
	return EnergyBounds{min, max}, nil
}

// NewEnergyBoundsFromEdges builds N contiguous channels from N+1 edges.
func NewEnergyBoundsFromEdges(edges []float64) (EnergyBounds, error) {
	if len(edges) < 2 {
		return EnergyBounds{}, fault.Configurationf("need at least two edges")
	}
	return NewEnergyBounds(edges[:len(edges)-1], edges[1:])
}

// Len returns the number of channels.
func (b EnergyBounds) Len() int { return len(b.min) }

// Min returns the lower edge of channel i.
func (b EnergyBounds) Min(i int) float64 { return b.min[i] }

// Max returns the upper edge of channel i.
func (b EnergyBounds) Max(i int) float64 { return b.max[i] }

// Overlaps reports whether channel i intersects the energy interval
// [lo, hi].
func (b EnergyBounds) Overlaps(i int, lo, hi float64) bool {
	return b.max[i] > lo && b.min[i] < hi
}

// Spectrum is an immutable counts-per-channel observation.
type Spectrum struct {
	bounds    EnergyBounds
	counts    []float64
	errors    []float64
	sysErrors []float64
	exposure  float64
	statistic Statistic
}

// Option configures optional Spectrum data.
type Option func(*Spectrum)

// WithErrors attaches per-channel Gaussian errors. Required for
// Gaussian spectra.
func WithErrors(errs []float64) Option {
	return func(s *Spectrum) { s.errors = errs }
}

// WithSystematics attaches a per-channel fractional systematic error.
func WithSystematics(frac []float64) Option {
	return func(s *Spectrum) { s.sysErrors = frac }
}

// New constructs a Spectrum and validates it against its statistic.
func New(bounds EnergyBounds, counts []float64, exposure float64, statistic Statistic, opts ...Option) (*Spectrum, error) {
	s := &Spectrum{
		bounds:    bounds,
		counts:    counts,
		exposure:  exposure,
		statistic: statistic,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(counts) != bounds.Len() {
		return nil, fault.Configurationf("got %d counts for %d channels", len(counts), bounds.Len())
	}
	if exposure <= 0 {
		return nil, fault.Configurationf("exposure must be positive, got %v", exposure)
	}
	switch statistic {
	case Poisson:
		for i, c := range counts {
			if c < 0 || c != math.Floor(c) {
				return nil, fault.Configurationf("channel %d: poisson counts must be non-negative integers, got %v", i, c)
			}
		}
	case Gaussian:
		if len(s.errors) != len(counts) {
			return nil, fault.Configurationf("gaussian spectrum needs a per-channel error array")
		}
		for i, e := range s.errors {
			if e <= 0 {
				return nil, fault.Configurationf("channel %d: gaussian error must be positive, got %v", i, e)
			}
		}
	default:
		return nil, fault.Configurationf("unrecognized statistic %d", statistic)
	}
	if s.sysErrors != nil && len(s.sysErrors) != len(counts) {
		return nil, fault.Configurationf("systematic error array length %d does not match %d channels", len(s.sysErrors), len(counts))
	}
	return s, nil
}

// Len returns the number of channels.
func (s *Spectrum) Len() int { return len(s.counts) }

// Bounds returns the channel energy bounds.
func (s *Spectrum) Bounds() EnergyBounds { return s.bounds }

// Counts returns the per-channel counts. The slice is owned by the
// Spectrum and must not be modified.
func (s *Spectrum) Counts() []float64 { return s.counts }

// Errors returns the per-channel Gaussian errors, or nil for Poisson
// spectra built without an error array.
func (s *Spectrum) Errors() []float64 { return s.errors }

// Systematics returns the per-channel fractional systematic error, or
// nil when none was attached.
func (s *Spectrum) Systematics() []float64 { return s.sysErrors }

// Exposure returns the observation exposure in seconds.
func (s *Spectrum) Exposure() float64 { return s.exposure }

// Statistic returns the statistical nature of the observation.
func (s *Spectrum) Statistic() Statistic { return s.statistic }

// TotalCounts returns the sum of counts over all channels.
func (s *Spectrum) TotalCounts() float64 {
	return floats.Sum(s.counts)
}
