package attributes

import (
	"kilnline/internal/domain"
)

// Subject exposes the fields resolution reads. Items and orders both
// implement it; an item's Owner is its order, an order has no owner.
type Subject interface {
	SerialNumber() string
	Direct() domain.DirectAttributes
	Bag() domain.Specs
	Owner() Subject
}

// ItemSubject resolves an item, falling back to its owning order when set.
type ItemSubject struct {
	Item  domain.OrderItem
	Order *domain.Order
}

func (s ItemSubject) SerialNumber() string            { return s.Item.SerialNumber }
func (s ItemSubject) Direct() domain.DirectAttributes { return s.Item.Direct }
func (s ItemSubject) Bag() domain.Specs               { return s.Item.Specifications }

func (s ItemSubject) Owner() Subject {
	if s.Order == nil {
		return nil
	}
	return OrderSubject{Order: *s.Order}
}

// OrderSubject resolves an order from its own fields only.
type OrderSubject struct {
	Order domain.Order
}

func (s OrderSubject) SerialNumber() string            { return "" }
func (s OrderSubject) Direct() domain.DirectAttributes { return s.Order.Direct }
func (s OrderSubject) Bag() domain.Specs               { return s.Order.Bag() }
func (s OrderSubject) Owner() Subject                  { return nil }
