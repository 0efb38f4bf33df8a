package plugin

import (
	"strconv"
	"strings"

	"github.com/threeML/specfit/fault"
)

// Select activates channels matching the selection strings, cumulatively
// unioned into the active mask. Accepted forms:
//
//	"all"       every channel (resets the mask)
//	"cN1-cN2"   channel index range, inclusive
//	"x-y"       energy range; channels whose interval overlaps [x, y]
//
// Selections address the current view, so indices refer to regrouped
// channels while a rebinning is in effect.
func (p *SpectrumPlugin) Select(specs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applySelection(specs, true)
}

// Exclude deactivates channels matching the selection strings,
// subtracting from the active mask. Syntax as for Select; "all"
// deactivates every channel.
func (p *SpectrumPlugin) Exclude(specs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applySelection(specs, false)
}

func (p *SpectrumPlugin) applySelection(specs []string, activate bool) error {
	mask := p.current.mask
	for _, spec := range specs {
		hit, err := p.parseSelection(spec)
		if err != nil {
			return err
		}
		for i := range mask {
			if hit[i] {
				mask[i] = activate
			}
		}
	}
	return nil
}

// parseSelection resolves one selection string into a channel hit mask
// over the current view.
func (p *SpectrumPlugin) parseSelection(spec string) ([]bool, error) {
	n := p.current.obs.Len()
	hit := make([]bool, n)

	s := strings.TrimSpace(spec)
	if strings.EqualFold(s, "all") {
		for i := range hit {
			hit[i] = true
		}
		return hit, nil
	}

	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fault.Configurationf("malformed selection %q, want \"all\", \"cN1-cN2\" or \"Emin-Emax\"", spec)
	}
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)

	if strings.HasPrefix(lo, "c") || strings.HasPrefix(hi, "c") {
		c1, err1 := strconv.Atoi(strings.TrimPrefix(lo, "c"))
		c2, err2 := strconv.Atoi(strings.TrimPrefix(hi, "c"))
		if err1 != nil || err2 != nil || !strings.HasPrefix(lo, "c") || !strings.HasPrefix(hi, "c") {
			return nil, fault.Configurationf("malformed channel selection %q", spec)
		}
		if c1 < 0 || c2 >= n || c1 > c2 {
			return nil, fault.Configurationf("channel selection %q outside 0..%d", spec, n-1)
		}
		for i := c1; i <= c2; i++ {
			hit[i] = true
		}
		return hit, nil
	}

	e1, err1 := strconv.ParseFloat(lo, 64)
	e2, err2 := strconv.ParseFloat(hi, 64)
	if err1 != nil || err2 != nil {
		return nil, fault.Configurationf("malformed energy selection %q", spec)
	}
	if e1 >= e2 {
		return nil, fault.Configurationf("energy selection %q has non-increasing bounds", spec)
	}
	bounds := p.current.obs.Bounds()
	for i := 0; i < n; i++ {
		if bounds.Overlaps(i, e1, e2) {
			hit[i] = true
		}
	}
	return hit, nil
}
