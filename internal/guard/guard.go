// Package guard enforces producer-side invariants over the ledger's
// contents that the ledger itself deliberately does not own.
//
// The one rule here: a Remove-All modification locks its subcategory.
// Once the whole subcategory is hypothetically sold, further per-contract
// removals against it describe contracts that no longer exist in the
// scenario, so the producing layer rejects them before they reach the
// ledger. This stays a caller-side convention (not a ledger invariant) so
// the ledger remains a plain ordered collection.
package guard

import (
	"errors"
	"fmt"

	"github.com/irrbb/whatif-engine/internal/model"
)

// ErrSubcategoryLocked is returned when a per-contract removal targets a
// subcategory already covered by a Remove-All modification.
var ErrSubcategoryLocked = errors.New("guard: subcategory is locked by a remove-all modification")

// CheckRemoveLock validates an incoming modification against the existing
// ledger contents. Returns nil when the modification is admissible.
func CheckRemoveLock(existing []model.Modification, incoming *model.Modification) error {
	if incoming.Kind != model.KindRemove || incoming.RemoveMode != model.RemoveContracts {
		return nil
	}
	for i := range existing {
		m := &existing[i]
		if m.Kind == model.KindRemove && m.RemoveMode == model.RemoveAll &&
			m.Subcategory == incoming.Subcategory {
			return fmt.Errorf("%w: %s", ErrSubcategoryLocked, incoming.Subcategory)
		}
	}
	return nil
}

// LockedSubcategories lists the subcategories currently under a Remove-All
// lock, for the producing UI to grey out.
func LockedSubcategories(mods []model.Modification) []string {
	var locked []string
	seen := make(map[string]bool)
	for i := range mods {
		m := &mods[i]
		if m.Kind == model.KindRemove && m.RemoveMode == model.RemoveAll && !seen[m.Subcategory] {
			seen[m.Subcategory] = true
			locked = append(locked, m.Subcategory)
		}
	}
	return locked
}
