package stack

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Decomposition segments ---

func TestDecompose_RemovalDrawnInsideBaseline(t *testing.T) {
	// A = 100, L = -80, remove 30 of assets, no liability change.
	s := Decompose(d(100), d(-80), d(-30), d(0))

	if !s.AssetsKept.Equal(d(70)) {
		t.Errorf("assets kept: expected 70, got %s", s.AssetsKept)
	}
	if !s.AssetsReducedInside.Equal(d(30)) {
		t.Errorf("assets reduced: expected 30, got %s", s.AssetsReducedInside)
	}
	if !s.AssetsAddedOutside.IsZero() {
		t.Errorf("nothing added, got %s", s.AssetsAddedOutside)
	}
	if !s.LiabsKept.Equal(d(80)) {
		t.Errorf("liabs kept: expected 80, got %s", s.LiabsKept)
	}
	// Net = (100 - 30) - 80 = -10.
	if !s.Net().Equal(d(-10)) {
		t.Errorf("net: expected -10, got %s", s.Net())
	}
}

func TestDecompose_AdditionStackedBeyondBaseline(t *testing.T) {
	s := Decompose(d(100), d(-80), d(25), d(0))

	if !s.AssetsKept.Equal(d(100)) {
		t.Errorf("baseline untouched by an addition, got %s", s.AssetsKept)
	}
	if !s.AssetsAddedOutside.Equal(d(25)) {
		t.Errorf("added outside: expected 25, got %s", s.AssetsAddedOutside)
	}
	if !s.AssetsReducedInside.IsZero() {
		t.Errorf("nothing reduced, got %s", s.AssetsReducedInside)
	}
}

func TestDecompose_LiabilityAddedPushesBarDown(t *testing.T) {
	// Chart-signed: a negative dL adds liability volume below the baseline.
	s := Decompose(d(100), d(-80), d(0), d(-20))

	if !s.LiabsKept.Equal(d(80)) {
		t.Errorf("liabs kept: expected 80, got %s", s.LiabsKept)
	}
	if !s.LiabsAddedOutside.Equal(d(20)) {
		t.Errorf("liabs added: expected 20, got %s", s.LiabsAddedOutside)
	}
	// Net = 100 - (80 + 20) = 0.
	if !s.Net().IsZero() {
		t.Errorf("net: expected 0, got %s", s.Net())
	}
}

func TestDecompose_LiabilityReducedTowardZero(t *testing.T) {
	s := Decompose(d(100), d(-80), d(0), d(30))

	if !s.LiabsKept.Equal(d(50)) {
		t.Errorf("liabs kept: expected 50, got %s", s.LiabsKept)
	}
	if !s.LiabsReducedInside.Equal(d(30)) {
		t.Errorf("liabs reduced: expected 30, got %s", s.LiabsReducedInside)
	}
	if !s.LiabsAddedOutside.IsZero() {
		t.Errorf("nothing added, got %s", s.LiabsAddedOutside)
	}
}

// --- Round-trip identity ---

func TestDecompose_NetIdentity(t *testing.T) {
	// Net must equal (A + dA) + (L + dL) for in-convention inputs.
	tests := []struct {
		name         string
		a, l, dA, dL float64
	}{
		{"no deltas", 100, -80, 0, 0},
		{"asset removal", 100, -80, -30, 0},
		{"asset addition", 100, -80, 45, 0},
		{"liability addition", 100, -80, 0, -25},
		{"liability reduction", 100, -80, 0, 60},
		{"all four at once", 200, -150, -50, -30},
		{"empty bucket, additions only", 0, 0, 40, -35},
		{"full asset removal", 100, -80, -100, 0},
		{"full liability reduction", 100, -80, 0, 80},
		{"fractional", 123.45, -67.89, -12.34, 5.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Decompose(d(tt.a), d(tt.l), d(tt.dA), d(tt.dL))
			want := d(tt.a).Add(d(tt.dA)).Add(d(tt.l)).Add(d(tt.dL))
			if !s.Net().Equal(want) {
				t.Errorf("net identity broken: got %s, want %s", s.Net(), want)
			}
		})
	}
}

// --- Clamping ---

func TestDecompose_OverRemovalCappedAtBaseline(t *testing.T) {
	// Removing more than exists caps the reduction; the bar never goes
	// below zero.
	s := Decompose(d(100), d(0), d(-150), d(0))

	if !s.AssetsKept.IsZero() {
		t.Errorf("assets kept should clamp to 0, got %s", s.AssetsKept)
	}
	if !s.AssetsReducedInside.Equal(d(100)) {
		t.Errorf("reduction capped at baseline 100, got %s", s.AssetsReducedInside)
	}
}

func TestDecompose_OverReductionOfLiabilities(t *testing.T) {
	s := Decompose(d(0), d(-50), d(0), d(120))

	if !s.LiabsKept.IsZero() {
		t.Errorf("liabs kept should clamp to 0, got %s", s.LiabsKept)
	}
	if !s.LiabsReducedInside.Equal(d(50)) {
		t.Errorf("reduction capped at |L| = 50, got %s", s.LiabsReducedInside)
	}
}

func TestDecompose_OutOfConventionInputsClamped(t *testing.T) {
	// Negative baseline asset and positive baseline liability are clamped
	// to zero rather than rejected.
	s := Decompose(d(-10), d(15), d(0), d(0))

	if !s.AssetsKept.IsZero() || !s.LiabsKept.IsZero() {
		t.Errorf("out-of-convention baselines should clamp to zero: %s / %s",
			s.AssetsKept, s.LiabsKept)
	}
}

func TestDecompose_NoNegativeSegments(t *testing.T) {
	cases := [][4]float64{
		{100, -80, -300, 200},
		{0, 0, -50, 50},
		{-5, 5, -1, 1},
		{10, -10, 1e9, -1e9},
	}
	for _, c := range cases {
		s := Decompose(d(c[0]), d(c[1]), d(c[2]), d(c[3]))
		for name, v := range map[string]decimal.Decimal{
			"AssetsKept": s.AssetsKept, "AssetsReducedInside": s.AssetsReducedInside,
			"AssetsAddedOutside": s.AssetsAddedOutside, "LiabsKept": s.LiabsKept,
			"LiabsReducedInside": s.LiabsReducedInside, "LiabsAddedOutside": s.LiabsAddedOutside,
		} {
			if v.IsNegative() {
				t.Errorf("segment %s negative (%s) for inputs %v", name, v, c)
			}
		}
	}
}

// --- Allocator bridge ---

func TestFromAllocator_FlipsLiabilitySign(t *testing.T) {
	// The allocator reports a liability increase as positive; the chart
	// draws it downward as a negative delta.
	dA, dL := FromAllocator(model.TenorDelta{
		AssetDelta:     d(40),
		LiabilityDelta: d(25),
	})
	if !dA.Equal(d(40)) {
		t.Errorf("asset delta passes through, got %s", dA)
	}
	if !dL.Equal(d(-25)) {
		t.Errorf("liability delta should flip to -25, got %s", dL)
	}
}

func TestFromAllocator_RoundTripThroughDecompose(t *testing.T) {
	// An added liability from the allocator ends up stacked below the
	// baseline, not inside it.
	dA, dL := FromAllocator(model.TenorDelta{LiabilityDelta: d(30)})
	s := Decompose(d(0), d(-70), dA, dL)

	if !s.LiabsAddedOutside.Equal(d(30)) {
		t.Errorf("expected 30 of new liability volume, got %s", s.LiabsAddedOutside)
	}
	if !s.LiabsKept.Equal(d(70)) {
		t.Errorf("baseline liabilities untouched, got %s", s.LiabsKept)
	}
}

// --- Pairs ---

func TestDecomposePair_SharedDeltas(t *testing.T) {
	p := DecomposePair(d(100), d(-80), d(110), d(-90), d(-20), d(0))

	if !p.Baseline.AssetsKept.Equal(d(80)) {
		t.Errorf("baseline assets kept: expected 80, got %s", p.Baseline.AssetsKept)
	}
	if !p.Shocked.AssetsKept.Equal(d(90)) {
		t.Errorf("shocked assets kept: expected 90, got %s", p.Shocked.AssetsKept)
	}
	if !p.Baseline.AssetsReducedInside.Equal(p.Shocked.AssetsReducedInside) {
		t.Error("both stacks share the same overlay deltas")
	}
}
