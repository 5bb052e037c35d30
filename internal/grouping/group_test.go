package grouping

import (
	"encoding/json"
	"testing"

	"kilnline/internal/domain"
)

func TestGroupNormalisesMixedOrderIDs(t *testing.T) {
	var items []domain.OrderItem
	raw := `[
		{"id": 1, "orderId": 10, "serialNumber": "SW-100"},
		{"id": 2, "orderId": "10", "serialNumber": "SW-100"},
		{"id": 3, "orderId": "11"},
		{"id": 1, "orderId": " 10 "}
	]`
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	g := Group(items)
	if g.Len() != 2 {
		t.Fatalf("expected 2 orders, got %d", g.Len())
	}
	ten := g.Items(10)
	if len(ten) != 2 {
		t.Fatalf("order 10 should hold items 1 and 2, got %+v", ten)
	}
	if ten[0].ID != 1 || ten[1].ID != 2 {
		t.Fatalf("unexpected order: %+v", ten)
	}
	if ids := g.OrderIDs(); ids[0] != 10 || ids[1] != 11 {
		t.Fatalf("order ids: %v", ids)
	}
}

func TestGroupKeepsIdenticalUnitsWithDistinctIDs(t *testing.T) {
	a := domain.OrderItem{ID: 1, OrderID: 5, SerialNumber: "42", Specifications: domain.Specs{"type": "Innato A3"}}
	b := a
	b.ID = 2
	g := Group([]domain.OrderItem{a, b, a})
	got := g.Items(5)
	if len(got) != 2 {
		t.Fatalf("expected both units kept and the repeat dropped, got %d", len(got))
	}
	seen := map[int64]bool{}
	for _, it := range g.All() {
		if seen[it.ID] {
			t.Fatalf("duplicate id %d", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestIndexOrders(t *testing.T) {
	idx := IndexOrders([]domain.Order{{ID: 1, OrderNumber: "A"}, {ID: 1, OrderNumber: "B"}, {ID: 2}})
	if len(idx) != 2 || idx[1].OrderNumber != "A" {
		t.Fatalf("index: %+v", idx)
	}
}
