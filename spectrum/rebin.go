package spectrum

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/threeML/specfit/fault"
)

// Grouping is a contiguous partition of the channel range into groups.
// Each channel belongs to exactly one group and groups cover the whole
// range, so regrouping preserves additivity of counts and the mapping
// back to the original channels is exact.
type Grouping struct {
	// spans[g] = [start, end) original-channel interval of group g.
	spans [][2]int
	n     int
}

// GroupByMinCounts greedily merges adjacent channels left to right until
// each group's counts reach minCounts. A trailing group that falls short
// is merged into the previous group rather than left under threshold.
// A spectrum whose total counts cannot form a single valid group fails
// with a data-integrity error.
func GroupByMinCounts(counts []float64, minCounts float64) (Grouping, error) {
	if minCounts <= 0 {
		return Grouping{}, fault.Configurationf("minimum counts per group must be positive, got %v", minCounts)
	}
	var (
		spans [][2]int
		start int
		acc   float64
	)
	for i, c := range counts {
		acc += c
		if acc >= minCounts {
			spans = append(spans, [2]int{start, i + 1})
			start = i + 1
			acc = 0
		}
	}
	if start < len(counts) {
		if len(spans) == 0 {
			return Grouping{}, fault.DataIntegrityf("total counts %v below the minimum %v, no valid group can be formed", acc, minCounts)
		}
		// Merge the short tail into the last complete group.
		spans[len(spans)-1][1] = len(counts)
	}
	return Grouping{spans: spans, n: len(counts)}, nil
}

// NGroups returns the number of groups.
func (g Grouping) NGroups() int { return len(g.spans) }

// NChannels returns the number of original channels covered.
func (g Grouping) NChannels() int { return g.n }

// Span returns the [start, end) original-channel interval of group i.
func (g Grouping) Span(i int) (int, int) { return g.spans[i][0], g.spans[i][1] }

// GroupOf returns the group index owning original channel c.
func (g Grouping) GroupOf(c int) int {
	for i, s := range g.spans {
		if c >= s[0] && c < s[1] {
			return i
		}
	}
	return -1
}

// Sum applies the grouping additively to a per-channel array.
func (g Grouping) Sum(values []float64) []float64 {
	out := make([]float64, len(g.spans))
	for i, s := range g.spans {
		out[i] = floats.Sum(values[s[0]:s[1]])
	}
	return out
}

// SumQuadrature applies the grouping to a per-channel error array,
// combining members in quadrature.
func (g Grouping) SumQuadrature(errs []float64) []float64 {
	out := make([]float64, len(g.spans))
	for i, s := range g.spans {
		var sq float64
		for c := s[0]; c < s[1]; c++ {
			sq += errs[c] * errs[c]
		}
		out[i] = math.Sqrt(sq)
	}
	return out
}

// All reports whether every member of group i satisfies pred.
func (g Grouping) All(i int, pred func(channel int) bool) bool {
	for c := g.spans[i][0]; c < g.spans[i][1]; c++ {
		if !pred(c) {
			return false
		}
	}
	return true
}

// Regroup produces a new, coarser Spectrum under the grouping. Counts
// are summed, Gaussian errors combined in quadrature, systematic
// fractions count-weighted, and each group's bounds stretch from the
// first member's lower edge to the last member's upper edge. The
// original Spectrum is untouched, so removing the rebinning later is a
// pointer swap back to it.
func (s *Spectrum) Regroup(g Grouping) (*Spectrum, error) {
	if g.NChannels() != s.Len() {
		return nil, fault.Configurationf("grouping covers %d channels but spectrum has %d", g.NChannels(), s.Len())
	}
	nm := make([]float64, g.NGroups())
	nx := make([]float64, g.NGroups())
	for i := range nm {
		lo, hi := g.Span(i)
		nm[i] = s.bounds.min[lo]
		nx[i] = s.bounds.max[hi-1]
	}
	bounds, err := NewEnergyBounds(nm, nx)
	if err != nil {
		return nil, err
	}

	var opts []Option
	if s.errors != nil {
		opts = append(opts, WithErrors(g.SumQuadrature(s.errors)))
	}
	if s.sysErrors != nil {
		frac := make([]float64, g.NGroups())
		counts := g.Sum(s.counts)
		for i := range frac {
			lo, hi := g.Span(i)
			var weighted, flat float64
			for c := lo; c < hi; c++ {
				weighted += s.sysErrors[c] * s.counts[c]
				flat += s.sysErrors[c]
			}
			if counts[i] > 0 {
				frac[i] = weighted / counts[i]
			} else {
				frac[i] = flat / float64(hi-lo)
			}
		}
		opts = append(opts, WithSystematics(frac))
	}

	return New(bounds, g.Sum(s.counts), s.exposure, s.statistic, opts...)
}
