package response

import (
	"log/slog"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/integrate/quad"

	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/model"
)

// Method selects the quadrature used to integrate the flux across a
// true-energy bin or, for direct responses, a channel interval.
type Method int

const (
	// Trapezoid samples the flux on an even sub-grid and applies the
	// composite trapezoidal rule.
	Trapezoid Method = iota
	// GaussLegendre applies fixed-order Gauss-Legendre quadrature.
	GaussLegendre
)

// Config carries the integration settings and logger threaded through
// construction. Two responses in the same process may carry different
// configurations; there is no global state.
type Config struct {
	Method Method
	// SubBinSamples is the number of flux samples per bin for the
	// trapezoidal rule (minimum 2).
	SubBinSamples int
	// QuadratureOrder is the number of Gauss-Legendre nodes per bin.
	QuadratureOrder int
	Logger          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SubBinSamples < 2 {
		c.SubBinSamples = 5
	}
	if c.QuadratureOrder < 1 {
		c.QuadratureOrder = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// binIntegral integrates the flux over [a, b], reporting a degeneracy
// for the given bin index if any sampled flux value is negative.
func (c Config) binIntegral(flux model.Flux, a, b float64, bin int) (float64, error) {
	negative := false
	sampled := func(e float64) float64 {
		v := flux(e)
		if v < 0 {
			negative = true
		}
		return v
	}

	var res float64
	switch c.Method {
	case GaussLegendre:
		res = quad.Fixed(sampled, a, b, c.QuadratureOrder, quad.Legendre{}, 0)
	default:
		n := c.SubBinSamples
		x := make([]float64, n)
		y := make([]float64, n)
		h := (b - a) / float64(n-1)
		for i := 0; i < n; i++ {
			x[i] = a + float64(i)*h
			y[i] = sampled(x[i])
		}
		res = integrate.Trapezoidal(x, y)
	}

	if negative {
		return 0, &fault.DegeneracyError{Channel: bin, Reason: "model flux is negative on the integration grid"}
	}
	return res, nil
}
