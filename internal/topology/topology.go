// Package topology classifies a landmark selection against the named facial
// regions of the face mesh.
package topology

import (
	"math"
	"sort"

	"github.com/ayusman/meshstudio/internal/mesh"
)

// Region names in display order.
const (
	RegionLips         = "Lips"
	RegionLeftEye      = "Left Eye"
	RegionLeftEyebrow  = "Left Eyebrow"
	RegionRightEye     = "Right Eye"
	RegionRightEyebrow = "Right Eyebrow"
	RegionFaceOval     = "Face Oval"
)

// Match tiers, following the percentage badges of the studio UI.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// Region is a fixed set of landmark indices describing one facial feature.
type Region struct {
	name    string
	indices []int
	members map[int]struct{}
}

// NewRegion builds a region from the endpoints of a connection list.
func NewRegion(name string, conns []mesh.Connection) Region {
	return NewRegionFromIndices(name, mesh.Indices(conns))
}

// NewRegionFromIndices builds a region from explicit indices.
func NewRegionFromIndices(name string, indices []int) Region {
	r := Region{
		name:    name,
		members: make(map[int]struct{}, len(indices)),
	}
	for _, i := range indices {
		if _, dup := r.members[i]; dup {
			continue
		}
		r.members[i] = struct{}{}
		r.indices = append(r.indices, i)
	}
	sort.Ints(r.indices)
	return r
}

// Name returns the display name.
func (r Region) Name() string { return r.name }

// Total returns the number of indices in the region.
func (r Region) Total() int { return len(r.indices) }

// Contains reports whether index belongs to the region.
func (r Region) Contains(index int) bool {
	_, ok := r.members[index]
	return ok
}

// Indices returns a sorted copy of the region's indices.
func (r Region) Indices() []int {
	out := make([]int, len(r.indices))
	copy(out, r.indices)
	return out
}

// DefaultRegions returns the six named regions in display order.
func DefaultRegions() []Region {
	return []Region{
		NewRegion(RegionLips, mesh.Lips()),
		NewRegion(RegionLeftEye, mesh.LeftEye()),
		NewRegion(RegionLeftEyebrow, mesh.LeftEyebrow()),
		NewRegion(RegionRightEye, mesh.RightEye()),
		NewRegion(RegionRightEyebrow, mesh.RightEyebrow()),
		NewRegion(RegionFaceOval, mesh.FaceOval()),
	}
}

// FeatureMatch is the overlap between the selection and one region.
type FeatureMatch struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Tier       string `json:"tier"`
}

// Analysis is the derived result for one selection.
type Analysis struct {
	Matches []FeatureMatch `json:"matches"`
	// Uncategorized is |selection| minus the sum of match counts, floored at 0.
	// A point shared by two regions is counted twice in that sum, so this
	// undercounts when regions overlap.
	Uncategorized int `json:"uncategorized"`
	Selected      int `json:"selected"`
}

// Tier buckets a percentage: above 80 is high, above 40 medium, else low.
func Tier(percentage int) string {
	switch {
	case percentage > 80:
		return TierHigh
	case percentage > 40:
		return TierMedium
	default:
		return TierLow
	}
}

// Analyze computes per-region overlap for the selected indices. Regions with
// no overlap are dropped; the rest are sorted by percentage, highest first,
// with ties kept in region order.
func Analyze(selected []int, regions []Region) Analysis {
	set := make(map[int]struct{}, len(selected))
	for _, i := range selected {
		set[i] = struct{}{}
	}

	result := Analysis{
		Matches:  make([]FeatureMatch, 0),
		Selected: len(set),
	}
	if len(set) == 0 {
		return result
	}

	categorized := 0
	for _, region := range regions {
		count := 0
		for _, i := range region.indices {
			if _, ok := set[i]; ok {
				count++
			}
		}
		if count == 0 {
			continue
		}

		pct := int(math.Round(float64(count) / float64(region.Total()) * 100))
		result.Matches = append(result.Matches, FeatureMatch{
			Name:       region.name,
			Count:      count,
			Total:      region.Total(),
			Percentage: pct,
			Tier:       Tier(pct),
		})
		categorized += count
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Percentage > result.Matches[j].Percentage
	})

	result.Uncategorized = max(0, len(set)-categorized)
	return result
}
