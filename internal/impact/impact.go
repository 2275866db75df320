// Package impact rolls the ledger's repricing overrides into
// income-statement deltas: the change in net interest income per
// modification, the portfolio total, and the resulting net interest margin.
package impact

import (
	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

// MarginScale is the number of decimal places NIM is rounded to.
const MarginScale int32 = 8

// Line is the income effect of one repricing override.
type Line struct {
	ModificationID string          `json:"modification_id"`
	SubcategoryID  string          `json:"subcategory_id"`
	Side           model.Side      `json:"side"`
	AffectedVolume decimal.Decimal `json:"affected_volume"`
	DeltaInterest  decimal.Decimal `json:"delta_interest"`
	DeltaNII       decimal.Decimal `json:"delta_nii"`
}

// Summary is the aggregated income-statement impact over the ledger's
// repricing subset.
type Summary struct {
	Lines         []Line          `json:"lines"`
	TotalDeltaNII decimal.Decimal `json:"total_delta_nii"`
	NewNII        decimal.Decimal `json:"new_nii"`
	NewNIM        decimal.Decimal `json:"new_nim"`
}

// Aggregate computes the repricing impact summary. It is a pure,
// order-independent reduction: modifications other than Reprice are
// skipped, and summation order does not change the result.
func Aggregate(mods []model.Modification, baseNII, totalAssets decimal.Decimal) Summary {
	sum := Summary{TotalDeltaNII: decimal.Zero}

	for i := range mods {
		mod := &mods[i]
		if mod.Kind != model.KindReprice || mod.Repricing == nil {
			continue
		}
		line := repriceLine(mod)
		sum.Lines = append(sum.Lines, line)
		sum.TotalDeltaNII = sum.TotalDeltaNII.Add(line.DeltaNII)
	}

	sum.NewNII = baseNII.Add(sum.TotalDeltaNII)
	if totalAssets.IsPositive() {
		sum.NewNIM = sum.NewNII.Div(totalAssets).Round(MarginScale)
	} else {
		sum.NewNIM = decimal.Zero
	}
	return sum
}

// repriceLine computes one override's income effect:
//
//	deltaInterest = affected×newRate + unaffected×currentRate − currentAnnualInterest
//
// where currentAnnualInterest = currentVolume × currentAvgRate. On the
// liability side a higher interest expense lowers NII, so the sign flips.
func repriceLine(mod *model.Modification) Line {
	r := mod.Repricing

	affected := r.CurrentVolume
	if r.Scope == model.ScopeNewProduction {
		affected = r.CurrentVolume.Mul(r.NewProductionPct)
	}
	unaffected := r.CurrentVolume.Sub(affected)

	currentAnnualInterest := r.CurrentVolume.Mul(r.CurrentAvgRate)
	deltaInterest := affected.Mul(r.NewRate).
		Add(unaffected.Mul(r.CurrentAvgRate)).
		Sub(currentAnnualInterest)

	deltaNII := deltaInterest
	if mod.Side == model.SideLiability {
		deltaNII = deltaInterest.Neg()
	}

	return Line{
		ModificationID: mod.ID,
		SubcategoryID:  r.SubcategoryID,
		Side:           mod.Side,
		AffectedVolume: affected,
		DeltaInterest:  deltaInterest,
		DeltaNII:       deltaNII,
	}
}
