package plugin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeML/specfit/model"
	"github.com/threeML/specfit/response"
	"github.com/threeML/specfit/spectrum"
)

func TestSimulateDeterministicGivenSeed(t *testing.T) {
	p, _ := testSetup(t, true)

	a, err := p.Simulate(42)
	require.NoError(t, err)
	b, err := p.Simulate(42)
	require.NoError(t, err)
	assert.Equal(t, a.Observation().Counts(), b.Observation().Counts())
	assert.Equal(t, a.Background().Counts(), b.Background().Counts())

	c, err := p.Simulate(43)
	require.NoError(t, err)
	assert.NotEqual(t, a.Observation().Counts(), c.Observation().Counts())
}

func TestSimulatePoissonDrawsAreCounts(t *testing.T) {
	p, _ := testSetup(t, true)
	sim, err := p.Simulate(7)
	require.NoError(t, err)

	require.Equal(t, p.Kind(), sim.Kind())
	for i, v := range sim.Observation().Counts() {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Equal(t, math.Floor(v), v, "channel %d draw %v not integral", i, v)
	}
	for _, v := range sim.Background().Counts() {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Equal(t, math.Floor(v), v)
	}
}

func TestSimulateReusesConfiguration(t *testing.T) {
	p, _ := testSetup(t, true)
	require.NoError(t, p.Exclude("c3-c3"))
	_, err := p.RebinOnTotal(30)
	require.NoError(t, err)

	sim, err := p.Simulate(1)
	require.NoError(t, err)

	// Same grouping, same mask, same exposures and statistics: a re-fit
	// of the replica walks the identical likelihood path.
	assert.Equal(t, p.CurrentSpectrum().Len(), sim.CurrentSpectrum().Len())
	assert.Equal(t, p.Mask(), sim.Mask())
	assert.Equal(t, p.Observation().Exposure(), sim.Observation().Exposure())
	assert.Equal(t, p.Observation().Statistic(), sim.Observation().Statistic())

	ll, err := sim.LogLikelihood()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
}

func TestSimulateGaussianBackground(t *testing.T) {
	bounds, err := spectrum.NewEnergyBoundsFromEdges([]float64{1, 2, 4, 8, 16})
	require.NoError(t, err)
	obs, err := spectrum.New(bounds, []float64{100, 50, 20, 5}, 1.0, spectrum.Poisson)
	require.NoError(t, err)
	bkg, err := spectrum.New(bounds, []float64{10, 10, 10, 10}, 2.0, spectrum.Gaussian,
		spectrum.WithErrors([]float64{2, 2, 2, 2}))
	require.NoError(t, err)

	k := model.NewParameter("K", 10.0)
	resp := response.NewDirect(bounds, response.Config{})
	p, err := New("pg", obs, bkg, resp, model.Constant(k), model.NewParameterSet(k), Config{})
	require.NoError(t, err)

	sim, err := p.Simulate(11)
	require.NoError(t, err)
	simBkg := sim.Background()
	assert.Equal(t, spectrum.Gaussian, simBkg.Statistic())
	assert.Equal(t, bkg.Errors(), simBkg.Errors())
	assert.Equal(t, bkg.Exposure(), simBkg.Exposure())
}

func TestSimulateGaussianTotal(t *testing.T) {
	bounds, err := spectrum.NewEnergyBoundsFromEdges([]float64{1, 2, 4})
	require.NoError(t, err)
	obs, err := spectrum.New(bounds, []float64{50, 80}, 1.0, spectrum.Gaussian,
		spectrum.WithErrors([]float64{5, 8}))
	require.NoError(t, err)

	k := model.NewParameter("K", 40.0)
	resp := response.NewDirect(bounds, response.Config{})
	p, err := New("g", obs, nil, resp, model.Constant(k), model.NewParameterSet(k), Config{})
	require.NoError(t, err)

	sim, err := p.Simulate(3)
	require.NoError(t, err)
	assert.Equal(t, spectrum.Gaussian, sim.Observation().Statistic())
	assert.Equal(t, obs.Errors(), sim.Observation().Errors())

	// Gaussian draws around K·width with sigma a few counts stay well
	// inside ±10σ of the expectation.
	assert.InDelta(t, 40.0, sim.Observation().Counts()[0], 50)
	assert.InDelta(t, 80.0, sim.Observation().Counts()[1], 80)
}

func TestSimulateBackgroundModel(t *testing.T) {
	bounds, err := spectrum.NewEnergyBoundsFromEdges([]float64{1, 2, 4, 8, 16})
	require.NoError(t, err)
	obs, err := spectrum.New(bounds, []float64{120, 70, 45, 30}, 1.0, spectrum.Poisson)
	require.NoError(t, err)
	bkgObs, err := spectrum.New(bounds, []float64{20, 20, 20, 20}, 1.0, spectrum.Poisson)
	require.NoError(t, err)

	resp := response.NewDirect(bounds, response.Config{})
	bk := model.NewParameter("bkg_norm", 5.0)
	bkgPlugin, err := New("bkg", bkgObs, nil, resp, model.Constant(bk), model.NewParameterSet(bk), Config{})
	require.NoError(t, err)
	k := model.NewParameter("K", 10.0)
	p, err := NewWithBackgroundModel("src", obs, bkgPlugin, resp, model.Constant(k), model.NewParameterSet(k), Config{})
	require.NoError(t, err)

	sim, err := p.Simulate(5)
	require.NoError(t, err)
	assert.Equal(t, p.Kind(), sim.Kind())
	// The replica's nuisance parameters are the same live handles.
	require.Equal(t, 1, sim.NFreeNuisanceParameters())
	assert.Same(t, bk, sim.NuisanceParameters()[0])

	ll, err := sim.LogLikelihood()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
}
