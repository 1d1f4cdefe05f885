package domain

import "fmt"

// Module and output bounds of the focal plane.
const (
	MinModule  = 2
	MaxModule  = 24
	MinOutput  = 1
	MaxOutput  = 4
	NumRegions = 84
)

// Region identifies one physical detector read-out by CCD module and output.
type Region struct {
	Module int
	Output int
}

// isCorner reports whether the module is one of the corner positions
// of the 5x5 grid that carry fine-guidance sensors instead of science CCDs.
func isCorner(module int) bool {
	return module == 1 || module == 5 || module == 21 || module == 25
}

// Validate checks that the region carries science pixels.
func (r Region) Validate() error {
	if r.Module < MinModule || r.Module > MaxModule || isCorner(r.Module) {
		return fmt.Errorf("invalid module %d", r.Module)
	}
	if r.Output < MinOutput || r.Output > MaxOutput {
		return fmt.Errorf("invalid output %d", r.Output)
	}
	return nil
}

// Channel returns the 1-based channel number in canonical order, or 0 for
// an invalid region.
func (r Region) Channel() int {
	if r.Validate() != nil {
		return 0
	}
	idx := r.Module - MinModule
	if r.Module > 5 {
		idx--
	}
	if r.Module > 21 {
		idx--
	}
	return idx*MaxOutput + r.Output
}

// ExtName returns the binary table extension name used for this region.
func (r Region) ExtName() string {
	return fmt.Sprintf("MOD.OUT %d.%d", r.Module, r.Output)
}

func (r Region) String() string {
	return fmt.Sprintf("%d/%d", r.Module, r.Output)
}

// RegionForChannel is the inverse of Channel.
func RegionForChannel(channel int) (Region, error) {
	if channel < 1 || channel > NumRegions {
		return Region{}, fmt.Errorf("invalid channel %d", channel)
	}
	for _, r := range AllRegions() {
		if r.Channel() == channel {
			return r, nil
		}
	}
	return Region{}, fmt.Errorf("invalid channel %d", channel)
}

// AllRegions returns the valid regions in canonical order: ascending module,
// then ascending output.
func AllRegions() []Region {
	regions := make([]Region, 0, NumRegions)
	for m := MinModule; m <= MaxModule; m++ {
		if isCorner(m) {
			continue
		}
		for o := MinOutput; o <= MaxOutput; o++ {
			regions = append(regions, Region{Module: m, Output: o})
		}
	}
	return regions
}
