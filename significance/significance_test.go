package significance

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiMaSignConvention(t *testing.T) {
	// Excess: on-source rate above the scaled off-source rate.
	assert.Greater(t, LiMa(100, 50, 1.0), 0.0)
	// Deficit: the significance is negated, not folded positive.
	assert.Less(t, LiMa(50, 100, 1.0), 0.0)
	// Equal rates: no detection.
	assert.InDelta(t, 0.0, LiMa(10, 10, 1.0), 1e-12)
	assert.InDelta(t, 0.0, LiMa(10, 20, 0.5), 1e-12)

	// The exposure ratio moves the break-even point.
	assert.Greater(t, LiMa(30, 100, 0.2), 0.0)
	assert.Less(t, LiMa(10, 100, 0.2), 0.0)
}

func TestLiMaKnownValue(t *testing.T) {
	// Hand-evaluated: non=10, noff=5, alpha=1 gives
	// sqrt(2·(10·ln(4/3) + 5·ln(2/3))) = 1.30345...
	assert.InDelta(t, 1.30345, LiMa(10, 5, 1.0), 1e-4)
}

func TestLiMaZeroCountLimits(t *testing.T) {
	assert.Equal(t, 0.0, LiMa(0, 0, 1.0))
	assert.False(t, math.IsNaN(LiMa(0, 10, 1.0)))
	assert.False(t, math.IsNaN(LiMa(10, 0, 1.0)))
	assert.Less(t, LiMa(0, 10, 1.0), 0.0)
	assert.Greater(t, LiMa(10, 0, 1.0), 0.0)
}

func TestGaussianBackgroundSignConvention(t *testing.T) {
	assert.Greater(t, GaussianBackground(100, 50, 8), 0.0)
	assert.Less(t, GaussianBackground(30, 50, 8), 0.0)
	// The saturated and null models coincide when the observation sits
	// exactly on the background.
	assert.InDelta(t, 0.0, GaussianBackground(50, 50, 8), 1e-6)
	assert.False(t, math.IsNaN(GaussianBackground(0, 10, 3)))
}

func TestGaussianBackgroundGrowsWithExcess(t *testing.T) {
	s1 := GaussianBackground(60, 50, 5)
	s2 := GaussianBackground(80, 50, 5)
	assert.Greater(t, s2, s1)
}

func ExampleLiMa() {
	fmt.Printf("%.2f\n", LiMa(200, 100, 1.0))
	// Output: 5.83
}
