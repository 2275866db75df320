package guard

import (
	"errors"
	"testing"

	"github.com/irrbb/whatif-engine/internal/model"
)

func removeAll(sub string) model.Modification {
	return model.Modification{
		Kind: model.KindRemove, RemoveMode: model.RemoveAll, Subcategory: sub,
	}
}

func removeContracts(sub string, ids ...string) model.Modification {
	return model.Modification{
		Kind: model.KindRemove, RemoveMode: model.RemoveContracts,
		Subcategory: sub, ContractIDs: ids,
	}
}

func TestCheckRemoveLock_RejectsContractsUnderRemoveAll(t *testing.T) {
	existing := []model.Modification{removeAll("mortgages")}
	incoming := removeContracts("mortgages", "c1")

	err := CheckRemoveLock(existing, &incoming)
	if !errors.Is(err, ErrSubcategoryLocked) {
		t.Errorf("expected ErrSubcategoryLocked, got %v", err)
	}
}

func TestCheckRemoveLock_OtherSubcategoryUnaffected(t *testing.T) {
	existing := []model.Modification{removeAll("mortgages")}
	incoming := removeContracts("bonds", "c1")

	if err := CheckRemoveLock(existing, &incoming); err != nil {
		t.Errorf("other subcategories should not be locked, got %v", err)
	}
}

func TestCheckRemoveLock_RemoveAllAlwaysAdmissible(t *testing.T) {
	// A second remove-all for the same subcategory is the ledger's problem
	// (it appends), not the guard's.
	existing := []model.Modification{removeAll("mortgages")}
	incoming := removeAll("mortgages")

	if err := CheckRemoveLock(existing, &incoming); err != nil {
		t.Errorf("remove-all should pass the guard, got %v", err)
	}
}

func TestCheckRemoveLock_NonRemoveKindsPass(t *testing.T) {
	existing := []model.Modification{removeAll("mortgages")}
	incoming := model.Modification{Kind: model.KindAdd, Subcategory: "mortgages"}

	if err := CheckRemoveLock(existing, &incoming); err != nil {
		t.Errorf("adds are never locked, got %v", err)
	}
}

func TestCheckRemoveLock_ContractsBeforeAllCoexist(t *testing.T) {
	// The lock only applies to later per-contract removals; a pre-existing
	// per-contract removal does not block the incoming one.
	existing := []model.Modification{removeContracts("mortgages", "c1")}
	incoming := removeContracts("mortgages", "c2")

	if err := CheckRemoveLock(existing, &incoming); err != nil {
		t.Errorf("per-contract removals coexist, got %v", err)
	}
}

func TestLockedSubcategories(t *testing.T) {
	mods := []model.Modification{
		removeAll("mortgages"),
		removeContracts("bonds", "c1"),
		removeAll("deposits"),
		removeAll("mortgages"), // duplicate
		{Kind: model.KindAdd, Subcategory: "loans"},
	}

	locked := LockedSubcategories(mods)
	if len(locked) != 2 {
		t.Fatalf("expected 2 locked subcategories, got %v", locked)
	}
	if locked[0] != "mortgages" || locked[1] != "deposits" {
		t.Errorf("unexpected lock order: %v", locked)
	}
}

func TestLockedSubcategories_Empty(t *testing.T) {
	if locked := LockedSubcategories(nil); len(locked) != 0 {
		t.Errorf("expected no locks, got %v", locked)
	}
}
