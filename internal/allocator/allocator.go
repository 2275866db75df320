// Package allocator projects the ledger's modifications onto the tenor grid
// as signed per-bucket notional deltas, separately for assets and
// liabilities.
//
// Amounts stay in shopspring/decimal end to end; only the interpolation
// weight passes through float64 (money in decimal, ratio math in float64).
// Conservation is exact: the later bucket of an interpolated split receives
// the remainder, not an independently rounded product.
package allocator

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
	"github.com/irrbb/whatif-engine/internal/tenor"
)

const monthsPerYear = 12

// daysPerMonth is the average calendar month used when a maturity must be
// derived from a date pair.
const daysPerMonth = 30.4375

// Allocate converts a ledger snapshot into one TenorDelta per grid bucket.
// It is a pure, deterministic function of its inputs: no state is held
// between calls, and the same modification order yields the same output.
func Allocate(mods []model.Modification, grid tenor.Grid) []model.TenorDelta {
	deltas := make([]model.TenorDelta, len(grid))
	for i := range deltas {
		deltas[i] = model.TenorDelta{
			BucketIndex:    i,
			AssetDelta:     decimal.Zero,
			LiabilityDelta: decimal.Zero,
		}
	}

	for i := range mods {
		mod := &mods[i]
		sign := notionalSign(mod.Kind)
		if sign == 0 {
			// Reprice and behavioural overrides carry no principal.
			continue
		}

		if len(mod.Profile) > 0 {
			// Heterogeneous underlying contracts: allocate each line on
			// its own maturity and sum into the buckets.
			for _, line := range mod.Profile {
				amount := line.Amount.Abs()
				if sign < 0 {
					amount = amount.Neg()
				}
				spread(deltas, grid, amount, line.MaturityYears*monthsPerYear, mod.Side)
			}
			continue
		}

		amount := mod.Notional.Abs()
		if sign < 0 {
			amount = amount.Neg()
		}

		months, known := maturityMonths(mod)
		if !known {
			// Explicit fallback policy: no maturity information at all
			// distributes the amount evenly across every bucket.
			slog.Warn("modification has no maturity information, splitting evenly",
				"id", mod.ID, "kind", mod.Kind)
			splitEvenly(deltas, amount, mod.Side)
			continue
		}
		spread(deltas, grid, amount, months, mod.Side)
	}

	return deltas
}

// notionalSign maps a modification kind to the sign of its principal effect.
func notionalSign(kind model.Kind) int {
	switch kind {
	case model.KindAdd:
		return 1
	case model.KindRemove:
		return -1
	}
	return 0
}

// maturityMonths derives the modification's maturity in months. The explicit
// residual-years value is authoritative when set; otherwise the date pair is
// used, floored at zero. The second return is false when neither is present.
func maturityMonths(mod *model.Modification) (float64, bool) {
	if mod.MaturityYears > 0 {
		return mod.MaturityYears * monthsPerYear, true
	}
	if mod.StartDate != nil && mod.MaturityDate != nil {
		days := mod.MaturityDate.Sub(*mod.StartDate).Hours() / 24
		months := days / daysPerMonth
		if months < 0 {
			months = 0
		}
		return months, true
	}
	return 0, false
}

// spread allocates amount across the grid at the given maturity, using
// boundary-aware linear interpolation between the two straddling buckets.
func spread(deltas []model.TenorDelta, grid tenor.Grid, amount decimal.Decimal, months float64, side model.Side) {
	first := float64(grid[0].UpperBoundMonths)
	last := float64(grid[len(grid)-1].UpperBoundMonths)

	switch {
	case months <= first:
		accumulate(deltas, 0, amount, side)
	case months >= last:
		accumulate(deltas, len(grid)-1, amount, side)
	default:
		lo := 0
		for lo < len(grid)-1 && float64(grid[lo+1].UpperBoundMonths) < months {
			lo++
		}
		lower := float64(grid[lo].UpperBoundMonths)
		upper := float64(grid[lo+1].UpperBoundMonths)
		if upper == months {
			// Exact boundary match: no interpolation split.
			accumulate(deltas, lo+1, amount, side)
			return
		}
		w := (months - lower) / (upper - lower)
		earlier := amount.Mul(decimal.NewFromFloat(1 - w))
		later := amount.Sub(earlier) // exact remainder, conserves the total
		accumulate(deltas, lo, earlier, side)
		accumulate(deltas, lo+1, later, side)
	}
}

// splitEvenly spreads amount across all buckets, with the last bucket taking
// the division remainder so the total is conserved exactly.
func splitEvenly(deltas []model.TenorDelta, amount decimal.Decimal, side model.Side) {
	n := int64(len(deltas))
	per := amount.Div(decimal.NewFromInt(n))
	allocated := decimal.Zero
	for i := 0; i < len(deltas)-1; i++ {
		accumulate(deltas, i, per, side)
		allocated = allocated.Add(per)
	}
	accumulate(deltas, len(deltas)-1, amount.Sub(allocated), side)
}

func accumulate(deltas []model.TenorDelta, i int, amount decimal.Decimal, side model.Side) {
	if side == model.SideLiability {
		deltas[i].LiabilityDelta = deltas[i].LiabilityDelta.Add(amount)
		return
	}
	deltas[i].AssetDelta = deltas[i].AssetDelta.Add(amount)
}

// Totals sums the per-bucket deltas back to side totals, the quantity the
// conservation property checks against the input notionals.
func Totals(deltas []model.TenorDelta) (assets, liabilities decimal.Decimal) {
	assets, liabilities = decimal.Zero, decimal.Zero
	for _, d := range deltas {
		assets = assets.Add(d.AssetDelta)
		liabilities = liabilities.Add(d.LiabilityDelta)
	}
	return assets, liabilities
}
