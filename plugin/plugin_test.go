package plugin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/likelihood"
	"github.com/threeML/specfit/model"
	"github.com/threeML/specfit/response"
	"github.com/threeML/specfit/spectrum"
)

// testSetup builds a four-channel direct-response plugin with Poisson
// total counts [100,50,20,5], a flat flux driven by parameter K, and an
// optional Poisson background of 10 counts per channel at equal
// exposure.
func testSetup(t *testing.T, withBackground bool) (*SpectrumPlugin, *model.Parameter) {
	t.Helper()
	bounds, err := spectrum.NewEnergyBoundsFromEdges([]float64{1, 2, 4, 8, 16})
	require.NoError(t, err)
	obs, err := spectrum.New(bounds, []float64{100, 50, 20, 5}, 1.0, spectrum.Poisson)
	require.NoError(t, err)

	var bkg *spectrum.Spectrum
	if withBackground {
		bkg, err = spectrum.New(bounds, []float64{10, 10, 10, 10}, 1.0, spectrum.Poisson)
		require.NoError(t, err)
	}

	k := model.NewParameter("K", 10.0)
	resp := response.NewDirect(bounds, response.Config{})
	p, err := New("test", obs, bkg, resp, model.Constant(k), model.NewParameterSet(k), Config{})
	require.NoError(t, err)
	return p, k
}

func TestKindResolution(t *testing.T) {
	bounds, err := spectrum.NewEnergyBoundsFromEdges([]float64{1, 2, 4, 8})
	require.NoError(t, err)
	resp := response.NewDirect(bounds, response.Config{})
	k := model.NewParameter("K", 1)
	flux := model.Constant(k)
	params := model.NewParameterSet(k)

	poisObs, err := spectrum.New(bounds, []float64{5, 5, 5}, 1, spectrum.Poisson)
	require.NoError(t, err)
	gausObs, err := spectrum.New(bounds, []float64{5, 5, 5}, 1, spectrum.Gaussian, spectrum.WithErrors([]float64{1, 1, 1}))
	require.NoError(t, err)
	poisBkg, err := spectrum.New(bounds, []float64{2, 2, 2}, 2, spectrum.Poisson)
	require.NoError(t, err)
	gausBkg, err := spectrum.New(bounds, []float64{2, 2, 2}, 2, spectrum.Gaussian, spectrum.WithErrors([]float64{1, 1, 1}))
	require.NoError(t, err)

	cases := []struct {
		obs, bkg *spectrum.Spectrum
		want     likelihood.Kind
	}{
		{poisObs, nil, likelihood.PoissonProfile},
		{poisObs, poisBkg, likelihood.PoissonPoisson},
		{poisObs, gausBkg, likelihood.PoissonGaussian},
		{gausObs, nil, likelihood.GaussianTotal},
		{gausObs, poisBkg, likelihood.GaussianTotal},
	}
	for _, c := range cases {
		p, err := New("t", c.obs, c.bkg, resp, flux, params, Config{})
		require.NoError(t, err)
		assert.Equal(t, c.want, p.Kind())
	}
}

func TestLogLikelihoodFiniteAndDeterministic(t *testing.T) {
	p, _ := testSetup(t, true)
	ll1, err := p.LogLikelihood()
	require.NoError(t, err)
	ll2, err := p.LogLikelihood()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll1))
	assert.Equal(t, ll1, ll2)
}

func TestLikelihoodOrderingThroughPlugin(t *testing.T) {
	p, k := testSetup(t, true)

	// Channel widths are [1,2,4,8]; K=10 predicts [10,20,40,80] source
	// counts, a sane fit to 175 observed over 40 background counts.
	k.Set(10)
	llNear, err := p.LogLikelihood()
	require.NoError(t, err)

	k.Set(100)
	llWild, err := p.LogLikelihood()
	require.NoError(t, err)

	assert.Greater(t, llNear, llWild)
}

func TestSelectionIdempotence(t *testing.T) {
	p, _ := testSetup(t, true)
	require.NoError(t, p.Select("all"))
	require.NoError(t, p.Exclude())
	assert.Equal(t, 4, p.NActiveChannels())
}

func TestSelectionByChannelAndEnergy(t *testing.T) {
	p, _ := testSetup(t, true)

	require.NoError(t, p.Exclude("all"))
	assert.Equal(t, 0, p.NActiveChannels())
	_, err := p.LogLikelihood()
	assert.ErrorIs(t, err, fault.ErrConfiguration)

	require.NoError(t, p.Select("c0-c1"))
	assert.Equal(t, []bool{true, true, false, false}, p.Mask())

	// Energy selection picks channels overlapping [2, 8].
	require.NoError(t, p.Exclude("all"))
	require.NoError(t, p.Select("2-8"))
	assert.Equal(t, []bool{false, true, true, false}, p.Mask())

	// Select and exclude interleave cumulatively.
	require.NoError(t, p.Select("c3-c3"))
	require.NoError(t, p.Exclude("c1-c1"))
	assert.Equal(t, []bool{false, false, true, true}, p.Mask())
}

func TestSelectionSyntaxErrors(t *testing.T) {
	p, _ := testSetup(t, true)
	for _, bad := range []string{"banana", "c1-x", "c-1-c2", "5-2", "c2-c1", "c0-c99"} {
		err := p.Select(bad)
		assert.ErrorIs(t, err, fault.ErrConfiguration, "selection %q", bad)
	}
}

func TestRebinRoundTrip(t *testing.T) {
	p, _ := testSetup(t, true)
	require.NoError(t, p.Exclude("c3-c3"))
	maskBefore := p.Mask()
	countsBefore := p.CurrentSpectrum().Counts()

	rs, err := p.RebinOnTotal(30)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, []float64{100, 75}, rs.Counts())
	assert.Equal(t, 2, p.CurrentSpectrum().Len())
	// Group 1 contains the excluded channel 3, so it is inactive.
	assert.Equal(t, []bool{true, false}, p.Mask())

	p.RemoveRebinning()
	assert.Equal(t, 4, p.CurrentSpectrum().Len())
	assert.Equal(t, maskBefore, p.Mask())
	assert.Equal(t, countsBefore, p.CurrentSpectrum().Counts())

	// Idempotent: removing again changes nothing.
	p.RemoveRebinning()
	assert.Equal(t, 4, p.CurrentSpectrum().Len())
}

func TestRebinOnBackground(t *testing.T) {
	p, _ := testSetup(t, true)
	rs, err := p.RebinOnBackground(20)
	require.NoError(t, err)
	// Background is flat at 10/channel, so pairs of channels group.
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, []float64{150, 25}, rs.Counts())

	noBkg, _ := testSetup(t, false)
	_, err = noBkg.RebinOnBackground(20)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestRebinnedLikelihoodIsFinite(t *testing.T) {
	p, _ := testSetup(t, true)
	_, err := p.RebinOnTotal(30)
	require.NoError(t, err)
	ll, err := p.LogLikelihood()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
}

func TestBackgroundModelNuisanceParameters(t *testing.T) {
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

	require.Equal(t, likelihood.PoissonModeled, p.Kind())
	require.Equal(t, 1, p.NFreeNuisanceParameters())
	assert.Same(t, bk, p.NuisanceParameters()[0])

	ll1, err := p.LogLikelihood()
	require.NoError(t, err)

	// The background plugin's parameter is shared by reference: an
	// update is visible on the very next parent evaluation.
	bk.Set(50.0)
	ll2, err := p.LogLikelihood()
	require.NoError(t, err)
	assert.NotEqual(t, ll1, ll2)

	bk.Fix()
	assert.Equal(t, 0, p.NFreeNuisanceParameters())
}

func TestExpectedCountsAndResiduals(t *testing.T) {
	p, k := testSetup(t, true)
	k.Set(10)

	expected, err := p.ExpectedCounts()
	require.NoError(t, err)
	// Source K·width plus alpha-scaled background.
	assert.InDelta(t, 10*1+10, expected[0], 1e-9)
	assert.InDelta(t, 10*2+10, expected[1], 1e-9)
	assert.InDelta(t, 10*8+10, expected[3], 1e-9)

	require.NoError(t, p.Exclude("c3-c3"))
	res, err := p.Residuals()
	require.NoError(t, err)
	assert.InDelta(t, (100.0-20.0)/math.Sqrt(20.0), res[0], 1e-9)
	assert.Equal(t, 0.0, res[3])
}

func TestProfileExpectedCountsClamp(t *testing.T) {
	p, k := testSetup(t, false)
	// The model overshoots every channel: the profiled background must
	// clamp at zero so the expectation is the model alone.
	k.Set(1000)
	expected, err := p.ExpectedCounts()
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, expected[0], 1e-9)

	ll, err := p.LogLikelihood()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ll))
}

func TestNegativeFluxSurfacesDegeneracy(t *testing.T) {
	p, k := testSetup(t, false)
	k.Set(-1)
	_, err := p.LogLikelihood()
	require.Error(t, err)
	var deg *fault.DegeneracyError
	assert.ErrorAs(t, err, &deg)
}
