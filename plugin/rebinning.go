package plugin

import (
	"github.com/threeML/specfit/fault"
	"github.com/threeML/specfit/spectrum"
)

// RebinOnTotal regroups the channels so that each group holds at least
// minCounts total counts (the trailing group merges into its
// predecessor when short) and switches the plugin's view to the
// regrouped spectra. The ungrouped data are untouched; RemoveRebinning
// restores them exactly. Returns the regrouped observed spectrum.
func (p *SpectrumPlugin) RebinOnTotal(minCounts float64) (*spectrum.Spectrum, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	grouping, err := spectrum.GroupByMinCounts(p.base.obs.Counts(), minCounts)
	if err != nil {
		return nil, err
	}
	return p.applyGrouping(grouping)
}

// RebinOnBackground regroups on the background counts instead of the
// total. Requires a background observation (fixed or modeled).
func (p *SpectrumPlugin) RebinOnBackground(minCounts float64) (*spectrum.Spectrum, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base.bkg == nil {
		return nil, fault.Configurationf("rebinning on background requires a background observation")
	}
	grouping, err := spectrum.GroupByMinCounts(p.base.bkg.Counts(), minCounts)
	if err != nil {
		return nil, err
	}
	return p.applyGrouping(grouping)
}

// applyGrouping derives the grouped view from the ungrouped base. The
// grouping is always derived from the base, so repeated rebinning never
// compounds. A group is active when every member channel is active.
// Callers hold the write lock.
func (p *SpectrumPlugin) applyGrouping(grouping spectrum.Grouping) (*spectrum.Spectrum, error) {
	obs, err := p.base.obs.Regroup(grouping)
	if err != nil {
		return nil, err
	}
	var bkg *spectrum.Spectrum
	if p.base.bkg != nil {
		bkg, err = p.base.bkg.Regroup(grouping)
		if err != nil {
			return nil, err
		}
	}

	mask := make([]bool, grouping.NGroups())
	for g := range mask {
		mask[g] = grouping.All(g, func(c int) bool { return p.base.mask[c] })
	}

	v, err := p.makeView(obs, bkg, &grouping, mask)
	if err != nil {
		return nil, err
	}
	p.current = v
	p.cfg.Logger.Debug("rebinned", "name", p.name, "groups", grouping.NGroups(), "channels", grouping.NChannels())
	return obs, nil
}

// RemoveRebinning restores the ungrouped view. The base view is kept
// verbatim across rebinning, so this is an exact, idempotent pointer
// swap.
func (p *SpectrumPlugin) RemoveRebinning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.base
}
