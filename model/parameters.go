package model

import "github.com/threeML/specfit/fault"

// Parameter is a single named fit parameter. Components that need to
// share a parameter, such as a parent plugin listing a background
// plugin's parameters as its own nuisance parameters, hold the same
// *Parameter handle rather than a copy, so one write is seen by all
// readers on their next evaluation.
type Parameter struct {
	name  string
	value float64
	free  bool
}

// NewParameter returns a free parameter with an initial value.
func NewParameter(name string, value float64) *Parameter {
	return &Parameter{name: name, value: value, free: true}
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Value returns the current value.
func (p *Parameter) Value() float64 { return p.value }

// Set assigns a new value. Single-writer, many-reader: the external
// minimizer is the only writer within one synchronous evaluation step.
func (p *Parameter) Set(v float64) { p.value = v }

// Free reports whether the parameter is free in the fit.
func (p *Parameter) Free() bool { return p.free }

// Fix freezes the parameter at its current value.
func (p *Parameter) Fix() { p.free = false }

// Release makes the parameter free again.
func (p *Parameter) Release() { p.free = true }

// ParameterSet is an ordered collection of parameter handles.
type ParameterSet struct {
	params []*Parameter
}

// NewParameterSet collects parameter handles in fit order.
func NewParameterSet(params ...*Parameter) *ParameterSet {
	return &ParameterSet{params: params}
}

// Len returns the number of parameters.
func (ps *ParameterSet) Len() int { return len(ps.params) }

// At returns the i-th parameter handle.
func (ps *ParameterSet) At(i int) *Parameter { return ps.params[i] }

// Free returns the handles of the currently free parameters, in order.
func (ps *ParameterSet) Free() []*Parameter {
	var out []*Parameter
	for _, p := range ps.params {
		if p.free {
			out = append(out, p)
		}
	}
	return out
}

// NFree returns the number of free parameters.
func (ps *ParameterSet) NFree() int { return len(ps.Free()) }

// SetFreeValues writes a minimizer's parameter vector into the free
// parameters, in order.
func (ps *ParameterSet) SetFreeValues(values []float64) error {
	free := ps.Free()
	if len(values) != len(free) {
		return fault.Configurationf("got %d values for %d free parameters", len(values), len(free))
	}
	for i, p := range free {
		p.Set(values[i])
	}
	return nil
}

// ByName returns the parameter with the given name, or nil.
func (ps *ParameterSet) ByName(name string) *Parameter {
	for _, p := range ps.params {
		if p.name == name {
			return p
		}
	}
	return nil
}
