package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/irrbb/whatif-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func addMod(t *testing.T, l Store, m model.Modification) string {
	t.Helper()
	id, err := l.Add(context.Background(), &m)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return id
}

// --- Add / List ---

func TestAdd_AssignsIDAndTimestamp(t *testing.T) {
	l := NewMemoryLedger()
	id := addMod(t, l, model.Modification{Kind: model.KindAdd, Side: model.SideAsset, Notional: d(1000)})

	if id == "" {
		t.Fatal("expected non-empty id")
	}
	got, err := l.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if !got.Notional.Equal(d(1000)) {
		t.Errorf("expected notional 1000, got %s", got.Notional)
	}
}

func TestAdd_MissingKind(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Add(context.Background(), &model.Modification{Side: model.SideAsset})
	if !errors.Is(err, ErrMissingKind) {
		t.Errorf("expected ErrMissingKind, got %v", err)
	}
}

func TestAdd_UniqueIDs(t *testing.T) {
	l := NewMemoryLedger()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := addMod(t, l, model.Modification{Kind: model.KindAdd, Notional: d(1)})
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestList_InsertionOrder(t *testing.T) {
	l := NewMemoryLedger()
	id1 := addMod(t, l, model.Modification{Kind: model.KindAdd, Label: "first"})
	id2 := addMod(t, l, model.Modification{Kind: model.KindRemove, Label: "second"})
	id3 := addMod(t, l, model.Modification{Kind: model.KindAdd, Label: "third"})

	mods, err := l.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mods) != 3 {
		t.Fatalf("expected 3 modifications, got %d", len(mods))
	}
	for i, want := range []string{id1, id2, id3} {
		if mods[i].ID != want {
			t.Errorf("position %d: expected id %s, got %s", i, want, mods[i].ID)
		}
	}
}

func TestList_ReturnsDeepCopies(t *testing.T) {
	l := NewMemoryLedger()
	addMod(t, l, model.Modification{
		Kind:        model.KindRemove,
		RemoveMode:  model.RemoveContracts,
		ContractIDs: []string{"c1", "c2"},
	})

	mods, _ := l.List(context.Background())
	mods[0].ContractIDs[0] = "mutated"

	again, _ := l.List(context.Background())
	if again[0].ContractIDs[0] != "c1" {
		t.Error("List result should not alias ledger state")
	}
}

// --- Singleton upsert ---

func TestAdd_RepriceUpsertsSameSubcategorySide(t *testing.T) {
	l := NewMemoryLedger()
	id1 := addMod(t, l, model.Modification{
		Kind: model.KindReprice, Side: model.SideAsset,
		Repricing: &model.RepricingOverride{
			SubcategoryID: "mortgages", Scope: model.ScopeEntire,
			CurrentVolume: d(100), CurrentAvgRate: d(0.02), NewRate: d(0.03),
		},
	})
	id2 := addMod(t, l, model.Modification{
		Kind: model.KindReprice, Side: model.SideAsset,
		Repricing: &model.RepricingOverride{
			SubcategoryID: "mortgages", Scope: model.ScopeEntire,
			CurrentVolume: d(100), CurrentAvgRate: d(0.02), NewRate: d(0.04),
		},
	})

	if id1 != id2 {
		t.Errorf("second reprice for same subcategory+side should keep id %s, got %s", id1, id2)
	}
	mods, _ := l.List(context.Background())
	if len(mods) != 1 {
		t.Fatalf("expected 1 modification after upsert, got %d", len(mods))
	}
	if !mods[0].Repricing.NewRate.Equal(d(0.04)) {
		t.Errorf("expected updated new rate 0.04, got %s", mods[0].Repricing.NewRate)
	}
}

func TestAdd_RepriceDifferentSideCoexists(t *testing.T) {
	l := NewMemoryLedger()
	addMod(t, l, model.Modification{
		Kind: model.KindReprice, Side: model.SideAsset,
		Repricing: &model.RepricingOverride{SubcategoryID: "x"},
	})
	addMod(t, l, model.Modification{
		Kind: model.KindReprice, Side: model.SideLiability,
		Repricing: &model.RepricingOverride{SubcategoryID: "x"},
	})

	mods, _ := l.List(context.Background())
	if len(mods) != 2 {
		t.Errorf("same subcategory on opposite sides should coexist, got %d entries", len(mods))
	}
}

func TestAdd_BehaviouralUpsertsSameFamily(t *testing.T) {
	l := NewMemoryLedger()
	id1 := addMod(t, l, model.Modification{
		Kind:        model.KindBehavioural,
		Behavioural: &model.BehaviouralOverride{Family: model.FamilyNMD, CoreProportionPct: d(60)},
	})
	id2 := addMod(t, l, model.Modification{
		Kind:        model.KindBehavioural,
		Behavioural: &model.BehaviouralOverride{Family: model.FamilyNMD, CoreProportionPct: d(75)},
	})
	if id1 != id2 {
		t.Errorf("second NMD override should keep id %s, got %s", id1, id2)
	}

	addMod(t, l, model.Modification{
		Kind:        model.KindBehavioural,
		Behavioural: &model.BehaviouralOverride{Family: model.FamilyTermDeposits, TDRRPct: d(2)},
	})
	mods, _ := l.List(context.Background())
	if len(mods) != 2 {
		t.Errorf("different families should coexist, got %d entries", len(mods))
	}
	if !mods[0].Behavioural.CoreProportionPct.Equal(d(75)) {
		t.Errorf("expected updated core proportion 75, got %s", mods[0].Behavioural.CoreProportionPct)
	}
}

func TestAdd_PlainAddsNeverUpsert(t *testing.T) {
	l := NewMemoryLedger()
	addMod(t, l, model.Modification{Kind: model.KindAdd, Subcategory: "bonds", Notional: d(10)})
	addMod(t, l, model.Modification{Kind: model.KindAdd, Subcategory: "bonds", Notional: d(20)})

	mods, _ := l.List(context.Background())
	if len(mods) != 2 {
		t.Errorf("two plain adds on the same subcategory should both append, got %d", len(mods))
	}
}

// --- Update ---

func TestUpdate_PatchesOnlyPresentFields(t *testing.T) {
	l := NewMemoryLedger()
	id := addMod(t, l, model.Modification{
		Kind: model.KindAdd, Side: model.SideAsset,
		Label: "orig", Notional: d(500), MaturityYears: 3,
	})

	newNotional := d(750)
	if err := l.Update(context.Background(), id, Patch{Notional: &newNotional}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := l.Get(context.Background(), id)
	if !got.Notional.Equal(d(750)) {
		t.Errorf("expected notional 750, got %s", got.Notional)
	}
	if got.Label != "orig" {
		t.Errorf("label should be untouched, got %q", got.Label)
	}
	if got.MaturityYears != 3 {
		t.Errorf("maturity should be untouched, got %v", got.MaturityYears)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	l := NewMemoryLedger()
	err := l.Update(context.Background(), "no-such-id", Patch{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- Remove / Clear ---

func TestRemove_DeletesAndReindexes(t *testing.T) {
	l := NewMemoryLedger()
	id1 := addMod(t, l, model.Modification{Kind: model.KindAdd, Label: "a"})
	id2 := addMod(t, l, model.Modification{Kind: model.KindAdd, Label: "b"})
	id3 := addMod(t, l, model.Modification{Kind: model.KindAdd, Label: "c"})

	if err := l.Remove(context.Background(), id2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	mods, _ := l.List(context.Background())
	if len(mods) != 2 || mods[0].ID != id1 || mods[1].ID != id3 {
		t.Errorf("unexpected ledger contents after remove: %+v", mods)
	}

	// The survivor after the removed position must still be addressable.
	if _, err := l.Get(context.Background(), id3); err != nil {
		t.Errorf("Get(%s) after reindex failed: %v", id3, err)
	}
}

func TestRemove_NotFound(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Remove(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClear_EmptiesLedger(t *testing.T) {
	l := NewMemoryLedger()
	addMod(t, l, model.Modification{Kind: model.KindAdd})
	addMod(t, l, model.Modification{Kind: model.KindRemove})

	if err := l.Clear(context.Background()); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	mods, _ := l.List(context.Background())
	if len(mods) != 0 {
		t.Errorf("expected empty ledger, got %d entries", len(mods))
	}
}

// --- CountByKind / Version ---

func TestCountByKind(t *testing.T) {
	l := NewMemoryLedger()
	addMod(t, l, model.Modification{Kind: model.KindAdd})
	addMod(t, l, model.Modification{Kind: model.KindAdd})
	addMod(t, l, model.Modification{Kind: model.KindRemove})

	n, err := l.CountByKind(context.Background(), model.KindAdd)
	if err != nil {
		t.Fatalf("CountByKind failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 adds, got %d", n)
	}
	n, _ = l.CountByKind(context.Background(), model.KindBehavioural)
	if n != 0 {
		t.Errorf("expected 0 behavioural, got %d", n)
	}
}

func TestVersion_BumpsOnEveryMutation(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	v0, _ := l.Version(ctx)

	id := addMod(t, l, model.Modification{Kind: model.KindAdd})
	v1, _ := l.Version(ctx)
	if v1 <= v0 {
		t.Errorf("Add should bump version: %d -> %d", v0, v1)
	}

	label := "patched"
	l.Update(ctx, id, Patch{Label: &label})
	v2, _ := l.Version(ctx)
	if v2 <= v1 {
		t.Errorf("Update should bump version: %d -> %d", v1, v2)
	}

	l.Remove(ctx, id)
	v3, _ := l.Version(ctx)
	if v3 <= v2 {
		t.Errorf("Remove should bump version: %d -> %d", v2, v3)
	}

	l.Clear(ctx)
	v4, _ := l.Version(ctx)
	if v4 <= v3 {
		t.Errorf("Clear should bump version: %d -> %d", v3, v4)
	}
}

func TestVersion_UnchangedByReads(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	addMod(t, l, model.Modification{Kind: model.KindAdd})

	v1, _ := l.Version(ctx)
	l.List(ctx)
	l.CountByKind(ctx, model.KindAdd)
	v2, _ := l.Version(ctx)
	if v1 != v2 {
		t.Errorf("reads must not bump version: %d -> %d", v1, v2)
	}
}
