// Package model defines the core domain types shared across the what-if engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the four overlay modification types.
type Kind string

const (
	KindAdd         Kind = "add"
	KindRemove      Kind = "remove"
	KindReprice     Kind = "reprice"
	KindBehavioural Kind = "behavioural"
)

// Side identifies which half of the balance sheet a modification touches.
// Behavioural overrides are portfolio-wide and may leave it empty.
type Side string

const (
	SideAsset     Side = "asset"
	SideLiability Side = "liability"
)

// RemoveMode distinguishes per-contract removals from subcategory-wide ones.
type RemoveMode string

const (
	RemoveContracts RemoveMode = "contracts"
	RemoveAll       RemoveMode = "all"
)

// RepricingScope selects how much of a subcategory's volume a repricing
// override affects.
type RepricingScope string

const (
	ScopeEntire        RepricingScope = "entire"
	ScopeNewProduction RepricingScope = "new-production"
)

// BehaviouralFamily identifies the behavioural assumption being overridden.
type BehaviouralFamily string

const (
	FamilyNMD             BehaviouralFamily = "nmd"
	FamilyLoanPrepayments BehaviouralFamily = "loan-prepayments"
	FamilyTermDeposits    BehaviouralFamily = "term-deposits"
)

// ProfileLine is one underlying contract (or contract group) inside a
// modification that represents many heterogeneous positions, e.g. a
// "remove all of subcategory X" expansion. When a profile is present it
// drives allocation instead of the aggregate maturity.
type ProfileLine struct {
	Amount        decimal.Decimal `json:"amount"`
	MaturityYears float64         `json:"maturity_years"`
	Rate          decimal.Decimal `json:"rate"`
}

// RepricingOverride carries the payload of a Reprice modification.
// At most one is active per (SubcategoryID, Side) pair; the ledger
// enforces update-in-place on conflicting adds.
type RepricingOverride struct {
	SubcategoryID    string          `json:"subcategory_id"`
	Scope            RepricingScope  `json:"scope"`
	NewProductionPct decimal.Decimal `json:"new_production_pct"` // 0–1 fraction, scope=new-production
	CurrentVolume    decimal.Decimal `json:"current_volume"`
	CurrentAvgRate   decimal.Decimal `json:"current_avg_rate"`
	NewRate          decimal.Decimal `json:"new_rate"`
}

// BehaviouralOverride carries the payload of a behavioural-assumption
// modification. Only the fields for its Family are meaningful. Percentages
// are 0–100 as entered by the user; consumers convert to fractions.
type BehaviouralOverride struct {
	Family BehaviouralFamily `json:"family"`

	// NMD (non-maturing deposits)
	CoreProportionPct decimal.Decimal `json:"core_proportion_pct,omitempty"`
	PassThroughPct    decimal.Decimal `json:"pass_through_pct,omitempty"`

	// Loan prepayments: SMM, monthly single-month mortality.
	SMMPct decimal.Decimal `json:"smm_pct,omitempty"`

	// Term deposits: TDRR, monthly early-redemption rate.
	TDRRPct decimal.Decimal `json:"tdrr_pct,omitempty"`
}

// Modification is the central overlay entity: one hypothetical add, removal,
// repricing, or behavioural override stacked on top of the real balance sheet.
type Modification struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Side        Side   `json:"side,omitempty"`
	Label       string `json:"label,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Currency    string `json:"currency,omitempty"`

	// Notional is an unsigned magnitude; Kind determines the sign the
	// allocator applies.
	Notional decimal.Decimal `json:"notional"`
	Rate     decimal.Decimal `json:"rate,omitempty"`
	Spread   decimal.Decimal `json:"spread,omitempty"` // basis points

	// MaturityYears is the residual maturity and is authoritative when > 0,
	// even if the date pair is also present.
	MaturityYears float64    `json:"maturity_years,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	MaturityDate  *time.Time `json:"maturity_date,omitempty"`

	PaymentFreq   string `json:"payment_freq,omitempty"`
	RepricingFreq string `json:"repricing_freq,omitempty"`
	RefIndex      string `json:"ref_index,omitempty"`

	RemoveMode  RemoveMode `json:"remove_mode,omitempty"`
	ContractIDs []string   `json:"contract_ids,omitempty"`

	// Profile, when present, drives allocation line by line.
	Profile []ProfileLine `json:"profile,omitempty"`

	Repricing   *RepricingOverride   `json:"repricing,omitempty"`
	Behavioural *BehaviouralOverride `json:"behavioural,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasMaturityInfo reports whether the allocator can derive a maturity for
// this modification without falling back to the even-split policy.
func (m *Modification) HasMaturityInfo() bool {
	if len(m.Profile) > 0 {
		return true
	}
	if m.MaturityYears > 0 {
		return true
	}
	return m.StartDate != nil && m.MaturityDate != nil
}

// Clone returns a deep copy, used for snapshot isolation: callers that hand
// modifications to collaborators must not share mutable slices or pointers.
func (m *Modification) Clone() Modification {
	out := *m
	if m.ContractIDs != nil {
		out.ContractIDs = append([]string(nil), m.ContractIDs...)
	}
	if m.Profile != nil {
		out.Profile = append([]ProfileLine(nil), m.Profile...)
	}
	if m.Repricing != nil {
		r := *m.Repricing
		out.Repricing = &r
	}
	if m.Behavioural != nil {
		b := *m.Behavioural
		out.Behavioural = &b
	}
	if m.StartDate != nil {
		d := *m.StartDate
		out.StartDate = &d
	}
	if m.MaturityDate != nil {
		d := *m.MaturityDate
		out.MaturityDate = &d
	}
	return out
}

// TenorDelta is the allocator's per-bucket output: signed notional deltas for
// each side, one entry per tenor bucket. Derived, never persisted.
type TenorDelta struct {
	BucketIndex    int             `json:"bucket_index"`
	AssetDelta     decimal.Decimal `json:"asset_delta"`
	LiabilityDelta decimal.Decimal `json:"liability_delta"`
}
