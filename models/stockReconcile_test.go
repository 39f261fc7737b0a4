package models

import "testing"

func TestFindDrift(t *testing.T) {
	items := []*InventoryItem{
		{ID: 1, Code: "SCF-1", TotalQuantity: 100, RentedQuantity: 40},
		{ID: 2, Code: "SCF-2", TotalQuantity: 50, RentedQuantity: 0},
		{ID: 3, Code: "JCK-1", TotalQuantity: 0},
		{ID: 4, Code: "JCK-2", TotalQuantity: 5},
	}
	sums := map[int]ledgerSum{
		1: {ItemId: 1, Total: 100, Rented: 40},
		2: {ItemId: 2, Total: 48, Rented: 2},
	}
	drift := findDrift(items, sums)
	if len(drift) != 2 {
		t.Fatalf("want 2 drifted items, got %d", len(drift))
	}
	if d := drift[0]; d.ItemId != 2 || d.LedgerTotal != 48 || d.LedgerRented != 2 || d.TotalQuantity != 50 {
		t.Fatalf("unexpected drift for item 2: %+v", d)
	}
	if d := drift[1]; d.ItemId != 4 || d.LedgerTotal != 0 || d.Fixed {
		t.Fatalf("item without movements should drift to zero: %+v", d)
	}
}
