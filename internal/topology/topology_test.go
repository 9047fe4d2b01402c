package topology

import (
	"testing"

	"github.com/ayusman/meshstudio/internal/mesh"
)

func regionByName(t *testing.T, name string) Region {
	t.Helper()
	for _, r := range DefaultRegions() {
		if r.Name() == name {
			return r
		}
	}
	t.Fatalf("region %q not found", name)
	return Region{}
}

func TestDefaultRegions(t *testing.T) {
	regions := DefaultRegions()

	want := []struct {
		name  string
		total int
	}{
		{RegionLips, 40},
		{RegionLeftEye, 16},
		{RegionLeftEyebrow, 10},
		{RegionRightEye, 16},
		{RegionRightEyebrow, 10},
		{RegionFaceOval, 36},
	}

	if len(regions) != len(want) {
		t.Fatalf("expected %d regions, got %d", len(want), len(regions))
	}

	for i, w := range want {
		if regions[i].Name() != w.name {
			t.Errorf("region %d: expected name %q, got %q", i, w.name, regions[i].Name())
		}
		if regions[i].Total() != w.total {
			t.Errorf("region %q: expected total %d, got %d", w.name, w.total, regions[i].Total())
		}
	}
}

func TestAnalyze_FullRegion(t *testing.T) {
	leftEye := regionByName(t, RegionLeftEye)

	result := Analyze(leftEye.Indices(), DefaultRegions())

	if len(result.Matches) == 0 {
		t.Fatal("expected at least one match")
	}

	first := result.Matches[0]
	if first.Name != RegionLeftEye {
		t.Errorf("expected Left Eye first, got %s", first.Name)
	}
	if first.Percentage != 100 {
		t.Errorf("expected 100%%, got %d%%", first.Percentage)
	}
	if first.Count != 16 || first.Total != 16 {
		t.Errorf("expected 16/16, got %d/%d", first.Count, first.Total)
	}
	if first.Tier != TierHigh {
		t.Errorf("expected tier %s, got %s", TierHigh, first.Tier)
	}
	if result.Uncategorized != 0 {
		t.Errorf("expected 0 uncategorized, got %d", result.Uncategorized)
	}
}

func TestAnalyze_EmptySelection(t *testing.T) {
	for _, selected := range [][]int{nil, {}} {
		result := Analyze(selected, DefaultRegions())

		if len(result.Matches) != 0 {
			t.Errorf("expected no matches, got %v", result.Matches)
		}
		if result.Matches == nil {
			t.Error("expected non-nil matches slice")
		}
		if result.Uncategorized != 0 {
			t.Errorf("expected 0 uncategorized, got %d", result.Uncategorized)
		}
	}
}

func TestAnalyze_SortedByPercentage(t *testing.T) {
	// 2 of 40 lips (5%), 8 of 10 left eyebrow (80%), 4 of 16 right eye (25%).
	lips := regionByName(t, RegionLips).Indices()[:2]
	brow := regionByName(t, RegionLeftEyebrow).Indices()[:8]
	eye := regionByName(t, RegionRightEye).Indices()[:4]

	var selected []int
	selected = append(selected, lips...)
	selected = append(selected, brow...)
	selected = append(selected, eye...)

	result := Analyze(selected, DefaultRegions())

	wantOrder := []struct {
		name string
		pct  int
		tier string
	}{
		{RegionLeftEyebrow, 80, TierMedium},
		{RegionRightEye, 25, TierLow},
		{RegionLips, 5, TierLow},
	}

	if len(result.Matches) != len(wantOrder) {
		t.Fatalf("expected %d matches, got %d: %v", len(wantOrder), len(result.Matches), result.Matches)
	}
	for i, w := range wantOrder {
		m := result.Matches[i]
		if m.Name != w.name || m.Percentage != w.pct || m.Tier != w.tier {
			t.Errorf("match %d: expected %s %d%% %s, got %s %d%% %s", i, w.name, w.pct, w.tier, m.Name, m.Percentage, m.Tier)
		}
	}
}

func TestAnalyze_TiesKeepRegionOrder(t *testing.T) {
	left := regionByName(t, RegionLeftEye).Indices()
	right := regionByName(t, RegionRightEye).Indices()

	result := Analyze(append(right, left...), DefaultRegions())

	if len(result.Matches) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(result.Matches))
	}
	if result.Matches[0].Name != RegionLeftEye || result.Matches[1].Name != RegionRightEye {
		t.Errorf("expected Left Eye before Right Eye, got %s, %s", result.Matches[0].Name, result.Matches[1].Name)
	}
}

func TestAnalyze_Rounding(t *testing.T) {
	// 1 of 16 = 6.25% -> 6, 3 of 16 = 18.75% -> 19.
	eye := regionByName(t, RegionLeftEye).Indices()

	one := Analyze(eye[:1], DefaultRegions())
	if one.Matches[0].Percentage != 6 {
		t.Errorf("expected 6%%, got %d%%", one.Matches[0].Percentage)
	}

	three := Analyze(eye[:3], DefaultRegions())
	if three.Matches[0].Percentage != 19 {
		t.Errorf("expected 19%%, got %d%%", three.Matches[0].Percentage)
	}
}

func TestAnalyze_Uncategorized(t *testing.T) {
	t.Run("indices outside every region", func(t *testing.T) {
		// 1 and 4 are nose points, not part of any contour.
		result := Analyze([]int{1, 4, 33}, DefaultRegions())

		if result.Uncategorized != 2 {
			t.Errorf("expected 2 uncategorized, got %d", result.Uncategorized)
		}
		if result.Selected != 3 {
			t.Errorf("expected 3 selected, got %d", result.Selected)
		}
	})

	t.Run("duplicates in the input count once", func(t *testing.T) {
		result := Analyze([]int{1, 1, 1}, DefaultRegions())
		if result.Uncategorized != 1 {
			t.Errorf("expected 1 uncategorized, got %d", result.Uncategorized)
		}
	})

	// Overlapping regions are counted once per region, so the residual is
	// an approximation that can undercount.
	t.Run("overlap double counts", func(t *testing.T) {
		regions := []Region{
			NewRegionFromIndices("A", []int{1, 2}),
			NewRegionFromIndices("B", []int{2, 3}),
		}

		result := Analyze([]int{2, 9}, regions)

		if len(result.Matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(result.Matches))
		}
		if result.Uncategorized != 0 {
			t.Errorf("expected approximation to report 0 uncategorized, got %d", result.Uncategorized)
		}
	})
}

func TestTier(t *testing.T) {
	cases := []struct {
		pct  int
		want string
	}{
		{100, TierHigh},
		{81, TierHigh},
		{80, TierMedium},
		{41, TierMedium},
		{40, TierLow},
		{0, TierLow},
	}

	for _, tc := range cases {
		if got := Tier(tc.pct); got != tc.want {
			t.Errorf("Tier(%d) = %s, want %s", tc.pct, got, tc.want)
		}
	}
}

func TestNewRegion(t *testing.T) {
	r := NewRegion("test", []mesh.Connection{{Start: 3, End: 1}, {Start: 1, End: 2}})

	if r.Total() != 3 {
		t.Errorf("expected 3 indices, got %d", r.Total())
	}
	if !r.Contains(3) || r.Contains(4) {
		t.Error("unexpected membership")
	}

	got := r.Indices()
	got[0] = 99
	if r.Indices()[0] != 1 {
		t.Error("expected Indices to return a copy")
	}
}
