package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeML/specfit/fault"
)

func TestParameterSharedHandle(t *testing.T) {
	k := NewParameter("K", 1.0)
	flux := Constant(k)
	assert.Equal(t, 1.0, flux(5))

	// A write through the handle is visible to every holder on the next
	// evaluation, without copies.
	k.Set(3.0)
	assert.Equal(t, 3.0, flux(5))
}

func TestPowerLaw(t *testing.T) {
	k := NewParameter("K", 2.0)
	idx := NewParameter("index", 2.0)
	flux := PowerLaw(k, idx, 1.0)

	assert.InDelta(t, 2.0, flux(1), 1e-12)
	assert.InDelta(t, 0.5, flux(2), 1e-12)

	idx.Set(0)
	assert.InDelta(t, 2.0, flux(10), 1e-12)
}

func TestParameterSet(t *testing.T) {
	a := NewParameter("a", 1)
	b := NewParameter("b", 2)
	c := NewParameter("c", 3)
	c.Fix()
	ps := NewParameterSet(a, b, c)

	assert.Equal(t, 3, ps.Len())
	assert.Equal(t, 2, ps.NFree())
	assert.Same(t, b, ps.ByName("b"))
	assert.Nil(t, ps.ByName("missing"))

	require.NoError(t, ps.SetFreeValues([]float64{10, 20}))
	assert.Equal(t, 10.0, a.Value())
	assert.Equal(t, 20.0, b.Value())
	assert.Equal(t, 3.0, c.Value())

	err := ps.SetFreeValues([]float64{1, 2, 3})
	assert.ErrorIs(t, err, fault.ErrConfiguration)

	c.Release()
	assert.Equal(t, 3, ps.NFree())
}
