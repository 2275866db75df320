// Package ledger holds the session's what-if modifications behind a small
// store interface. The in-memory implementation is authoritative for an
// interactive session; PostgreSQL persists sessions that must survive a
// restart, and Redis provides a read-through cache over it.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

var (
	// ErrNotFound is returned by Update/Remove for an unknown modification id.
	ErrNotFound = errors.New("ledger: modification not found")

	// ErrMissingKind is returned by Add when the discriminant kind is absent.
	ErrMissingKind = errors.New("ledger: modification kind is required")
)

// Patch carries a partial update for a modification. Nil fields are left
// untouched; the id is never patchable.
type Patch struct {
	Label         *string                    `json:"label,omitempty"`
	Side          *model.Side                `json:"side,omitempty"`
	Category      *string                    `json:"category,omitempty"`
	Subcategory   *string                    `json:"subcategory,omitempty"`
	Currency      *string                    `json:"currency,omitempty"`
	Notional      *decimal.Decimal           `json:"notional,omitempty"`
	Rate          *decimal.Decimal           `json:"rate,omitempty"`
	Spread        *decimal.Decimal           `json:"spread,omitempty"`
	MaturityYears *float64                   `json:"maturity_years,omitempty"`
	StartDate     *time.Time                 `json:"start_date,omitempty"`
	MaturityDate  *time.Time                 `json:"maturity_date,omitempty"`
	PaymentFreq   *string                    `json:"payment_freq,omitempty"`
	RepricingFreq *string                    `json:"repricing_freq,omitempty"`
	RefIndex      *string                    `json:"ref_index,omitempty"`
	RemoveMode    *model.RemoveMode          `json:"remove_mode,omitempty"`
	ContractIDs   []string                   `json:"contract_ids,omitempty"`
	Profile       []model.ProfileLine        `json:"profile,omitempty"`
	Repricing     *model.RepricingOverride   `json:"repricing,omitempty"`
	Behavioural   *model.BehaviouralOverride `json:"behavioural,omitempty"`
}

// apply copies the patch's present fields onto m.
func (p Patch) apply(m *model.Modification) {
	if p.Label != nil {
		m.Label = *p.Label
	}
	if p.Side != nil {
		m.Side = *p.Side
	}
	if p.Category != nil {
		m.Category = *p.Category
	}
	if p.Subcategory != nil {
		m.Subcategory = *p.Subcategory
	}
	if p.Currency != nil {
		m.Currency = *p.Currency
	}
	if p.Notional != nil {
		m.Notional = *p.Notional
	}
	if p.Rate != nil {
		m.Rate = *p.Rate
	}
	if p.Spread != nil {
		m.Spread = *p.Spread
	}
	if p.MaturityYears != nil {
		m.MaturityYears = *p.MaturityYears
	}
	if p.StartDate != nil {
		d := *p.StartDate
		m.StartDate = &d
	}
	if p.MaturityDate != nil {
		d := *p.MaturityDate
		m.MaturityDate = &d
	}
	if p.PaymentFreq != nil {
		m.PaymentFreq = *p.PaymentFreq
	}
	if p.RepricingFreq != nil {
		m.RepricingFreq = *p.RepricingFreq
	}
	if p.RefIndex != nil {
		m.RefIndex = *p.RefIndex
	}
	if p.RemoveMode != nil {
		m.RemoveMode = *p.RemoveMode
	}
	if p.ContractIDs != nil {
		m.ContractIDs = append([]string(nil), p.ContractIDs...)
	}
	if p.Profile != nil {
		m.Profile = append([]model.ProfileLine(nil), p.Profile...)
	}
	if p.Repricing != nil {
		r := *p.Repricing
		m.Repricing = &r
	}
	if p.Behavioural != nil {
		b := *p.Behavioural
		m.Behavioural = &b
	}
}

// Store is the ledger interface. Mutations run to completion atomically;
// the ledger is not designed for concurrent writers racing on the same
// session, only for safe interleaving of reads.
type Store interface {
	// Add assigns a fresh id and appends the modification, or updates an
	// existing one in place when the singleton invariants apply (one
	// Reprice per subcategory+side, one BehaviouralOverride per family).
	// Returns the id of the stored modification.
	Add(ctx context.Context, mod *model.Modification) (string, error)

	// Update patches the modification with the given id.
	Update(ctx context.Context, id string, patch Patch) error

	// Remove deletes the modification with the given id.
	Remove(ctx context.Context, id string) error

	// Clear discards every modification.
	Clear(ctx context.Context) error

	// List returns all modifications in insertion order, as deep copies.
	List(ctx context.Context) ([]model.Modification, error)

	// Get returns a deep copy of one modification.
	Get(ctx context.Context, id string) (*model.Modification, error)

	// CountByKind returns the number of modifications of one kind.
	CountByKind(ctx context.Context, kind model.Kind) (int, error)

	// Version returns a counter incremented by every mutation. Consumers
	// use it to invalidate cached derivations and the "applied" flag.
	Version(ctx context.Context) (uint64, error)
}

// singletonKey identifies a modification subject to update-in-place rules,
// or "" when the modification has none.
func singletonKey(m *model.Modification) string {
	switch m.Kind {
	case model.KindReprice:
		if m.Repricing != nil {
			return "reprice/" + m.Repricing.SubcategoryID + "/" + string(m.Side)
		}
	case model.KindBehavioural:
		if m.Behavioural != nil {
			return "behavioural/" + string(m.Behavioural.Family)
		}
	}
	return ""
}
