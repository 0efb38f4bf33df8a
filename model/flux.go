// Package model carries the physical-model side of a fit: a differential
// photon flux as a pure function of energy, and the parameter set the
// external minimizer or sampler drives. The flux is re-evaluated on every
// likelihood call, so parameter updates made through the set are visible
// immediately without copying.
package model

import "math"

// Flux is a differential photon flux, photons / (area · time · energy),
// as a function of energy. It must be evaluable anywhere on a response
// operator's true-energy grid.
type Flux func(energy float64) float64

// PowerLaw returns a flux K (E/pivot)^(-index) reading K and index from
// live parameters, so a minimizer updating them steers the flux on the
// next evaluation.
func PowerLaw(k, index *Parameter, pivot float64) Flux {
	return func(e float64) float64 {
		return k.Value() * math.Pow(e/pivot, -index.Value())
	}
}

// Constant returns a flat flux, mostly useful in tests.
func Constant(k *Parameter) Flux {
	return func(float64) float64 { return k.Value() }
}
