// Package grouping is the only place items are grouped by order. Items are
// keyed by their normalised order id and de-duplicated by item id alone:
// several physical units may share a serial number or attributes and are
// all kept.
package grouping

import (
	"kilnline/internal/domain"
)

// Groups maps order ids to their items, remembering first-seen order.
type Groups struct {
	order []int64
	items map[int64][]domain.OrderItem
}

// Group buckets items by order id, skipping repeated item ids within an order.
func Group(items []domain.OrderItem) Groups {
	g := Groups{items: make(map[int64][]domain.OrderItem)}
	seen := make(map[int64]map[int64]bool)
	for _, it := range items {
		key := int64(it.OrderID)
		ids, ok := seen[key]
		if !ok {
			ids = make(map[int64]bool)
			seen[key] = ids
			g.order = append(g.order, key)
		}
		if ids[it.ID] {
			continue
		}
		ids[it.ID] = true
		g.items[key] = append(g.items[key], it)
	}
	return g
}

// OrderIDs returns order ids in first-seen order.
func (g Groups) OrderIDs() []int64 {
	out := make([]int64, len(g.order))
	copy(out, g.order)
	return out
}

// Items returns the de-duplicated items of an order.
func (g Groups) Items(orderID int64) []domain.OrderItem {
	return g.items[orderID]
}

// All returns every retained item, grouped by order in first-seen order.
func (g Groups) All() []domain.OrderItem {
	var out []domain.OrderItem
	for _, id := range g.order {
		out = append(out, g.items[id]...)
	}
	return out
}

// Len reports the number of orders.
func (g Groups) Len() int { return len(g.order) }

// IndexOrders keys orders by id. Later duplicates are ignored.
func IndexOrders(orders []domain.Order) map[int64]domain.Order {
	out := make(map[int64]domain.Order, len(orders))
	for _, o := range orders {
		if _, ok := out[o.ID]; ok {
			continue
		}
		out[o.ID] = o
	}
	return out
}
