// Package stack decomposes (baseline, delta) pairs into the non-overlapping
// segments the EVE waterfall chart renders: the kept portion of the baseline
// bar, the reduced portion drawn inside it, and new volume stacked beyond
// the baseline top. The decomposition is computed independently for the
// baseline stack and for the selected scenario's shocked stack.
package stack

import (
	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

// Segments holds the renderable widths for one bucket of one stack. All
// fields are non-negative magnitudes; the rendering layer applies the sign
// convention (liabilities drawn downward). Clamping inside Decompose
// guarantees no segment is ever negative.
type Segments struct {
	AssetsKept          decimal.Decimal `json:"assets_kept"`
	AssetsReducedInside decimal.Decimal `json:"assets_reduced_inside"`
	AssetsAddedOutside  decimal.Decimal `json:"assets_added_outside"`

	LiabsKept          decimal.Decimal `json:"liabs_kept"`
	LiabsReducedInside decimal.Decimal `json:"liabs_reduced_inside"`
	LiabsAddedOutside  decimal.Decimal `json:"liabs_added_outside"`
}

// Net recombines the segments with their signs: assets up, liabilities
// down. For inputs (A, L, dA, dL) it equals (A + dA) + (L + dL) exactly,
// the round-trip identity that anchors the decomposition.
func (s Segments) Net() decimal.Decimal {
	return s.AssetsKept.Add(s.AssetsAddedOutside).
		Sub(s.LiabsKept).Sub(s.LiabsAddedOutside)
}

// Decompose splits one bucket's baseline values and deltas into segments.
//
// a is the baseline asset value (>= 0), l the baseline liability value
// (<= 0, chart signed convention). dA and dL are signed deltas in the same
// convention: a negative dA removes assets, a negative dL adds liabilities
// (pushes the bar further down), a positive dL reduces them toward zero.
//
// Out-of-convention inputs are clamped, never rejected: the chart must
// always render.
func Decompose(a, l, dA, dL decimal.Decimal) Segments {
	if a.IsNegative() {
		a = decimal.Zero
	}
	if l.IsPositive() {
		l = decimal.Zero
	}
	lMag := l.Neg()

	// Assets: reduction is the removed part of the baseline, capped at the
	// baseline itself so a delta cannot reduce the bar below zero.
	assetReduction := decimal.Min(decimal.Max(decimal.Zero, dA.Neg()), a)
	assetsKept := a.Sub(assetReduction)
	assetsAdded := decimal.Max(dA, decimal.Zero)

	// Liabilities mirror the asset logic on magnitudes. A positive dL
	// shrinks the bar toward zero (reduction, capped at |L| so the kept
	// segment never crosses zero); a negative dL stacks new liability
	// volume beyond the baseline bottom.
	liabReduction := decimal.Min(decimal.Max(decimal.Zero, dL), lMag)
	liabsKept := lMag.Sub(liabReduction)
	liabsAdded := decimal.Max(dL.Neg(), decimal.Zero)

	return Segments{
		AssetsKept:          clamp(assetsKept),
		AssetsReducedInside: clamp(assetReduction),
		AssetsAddedOutside:  clamp(assetsAdded),
		LiabsKept:           clamp(liabsKept),
		LiabsReducedInside:  clamp(liabReduction),
		LiabsAddedOutside:   clamp(liabsAdded),
	}
}

// clamp floors a segment width at zero. The chart must never receive a
// negative width.
func clamp(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// FromAllocator converts an allocator TenorDelta into chart-convention
// deltas. The allocator reports a liability increase as a positive
// LiabilityDelta; the chart draws it as a more negative bar, so the sign
// flips.
func FromAllocator(d model.TenorDelta) (dA, dL decimal.Decimal) {
	return d.AssetDelta, d.LiabilityDelta.Neg()
}

// Pair is the decomposition of one bucket for both stacks: the baseline
// and the currently selected scenario's shocked values, sharing the same
// overlay deltas.
type Pair struct {
	Baseline Segments `json:"baseline"`
	Shocked  Segments `json:"shocked"`
}

// DecomposePair decomposes the same deltas against the baseline values and
// the scenario-shocked values.
func DecomposePair(baseA, baseL, shockA, shockL, dA, dL decimal.Decimal) Pair {
	return Pair{
		Baseline: Decompose(baseA, baseL, dA, dL),
		Shocked:  Decompose(shockA, shockL, dA, dL),
	}
}
