// Package filter evaluates Criteria item-first: every item is judged on its
// own resolved attributes, and orders are reconstructed from the owners of
// the matching items.
package filter

import (
	"regexp"
	"strconv"
	"strings"

	"kilnline/internal/attributes"
	"kilnline/internal/domain"
	"kilnline/internal/grouping"
	"kilnline/internal/stage"
)

// Settings are the workshop-level gates applied to every query.
type Settings struct {
	// OrderMin and OrderMax bound numeric order numbers. Zero is open.
	OrderMin int64
	OrderMax int64
	// TypeOverrides maps order numbers to the type they must be filtered as.
	TypeOverrides map[string]string
}

// Match is an item that passed every active predicate.
type Match struct {
	Item       domain.OrderItem
	Order      domain.Order
	Attributes domain.AttributeSet
}

type Engine struct {
	Resolver *attributes.Resolver
	Tracker  *stage.Tracker
	Settings Settings
}

func New(resolver *attributes.Resolver, tracker *stage.Tracker, settings Settings) *Engine {
	if tracker == nil {
		tracker = stage.New(resolver, stage.DefaultDryingDays)
	}
	overrides := make(map[string]string, len(settings.TypeOverrides))
	for k, v := range settings.TypeOverrides {
		overrides[strings.TrimSpace(k)] = strings.ToUpper(strings.TrimSpace(v))
	}
	settings.TypeOverrides = overrides
	return &Engine{Resolver: resolver, Tracker: tracker, Settings: settings}
}

// Apply returns the items matching c, grouped by order in first-seen order.
func (e *Engine) Apply(items []domain.OrderItem, orders []domain.Order, c Criteria) []domain.OrderItem {
	matches := e.Matches(items, orders, c)
	out := make([]domain.OrderItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Item)
	}
	return out
}

// Matches is Apply with the owning order and resolved attributes attached.
func (e *Engine) Matches(items []domain.OrderItem, orders []domain.Order, c Criteria) []Match {
	groups := grouping.Group(items)
	byID := grouping.IndexOrders(orders)
	var out []Match
	for _, orderID := range groups.OrderIDs() {
		order, ok := byID[orderID]
		if !ok {
			continue
		}
		if !e.orderPasses(order, c) {
			continue
		}
		for _, item := range groups.Items(orderID) {
			if m, ok := e.match(item, order, c); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

// ProjectToOrders returns the distinct owning order ids of items, in
// first-seen order.
func ProjectToOrders(items []domain.OrderItem) []int64 {
	return grouping.Group(items).OrderIDs()
}

// Orders returns the orders whose ids are in ids, in the order of ids.
func Orders(orders []domain.Order, ids []int64) []domain.Order {
	byID := grouping.IndexOrders(orders)
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

var closedStatuses = map[string]bool{
	domain.StatusCancelled: true,
	domain.StatusShipping:  true,
	domain.StatusDelivered: true,
}

func (e *Engine) orderPasses(o domain.Order, c Criteria) bool {
	if !e.inRange(o.OrderNumber) {
		return false
	}
	status := strings.ToLower(strings.TrimSpace(o.Status))
	if closedStatuses[status] {
		return false
	}
	if (o.Archived || status == domain.StatusArchived) && !c.includeArchived {
		return false
	}
	return true
}

func (e *Engine) inRange(orderNumber string) bool {
	lo, hi := e.Settings.OrderMin, e.Settings.OrderMax
	if lo == 0 && hi == 0 {
		return true
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(orderNumber), "#"), 10, 64)
	if err != nil {
		return false
	}
	if lo != 0 && n < lo {
		return false
	}
	if hi != 0 && n > hi {
		return false
	}
	return true
}

func (e *Engine) match(item domain.OrderItem, order domain.Order, c Criteria) (Match, bool) {
	if item.Archived || item.Deleted || item.Fulfillable() <= 0 {
		return Match{}, false
	}
	if c.selected != nil {
		if _, ok := c.selected[item.ID]; !ok {
			return Match{}, false
		}
	}
	attrs := e.Resolver.Resolve(attributes.ItemSubject{Item: item, Order: &order})
	if c.search != "" && !searchHit(c.search, item, order, attrs) {
		return Match{}, false
	}
	if c.itemType != "" && !e.typeMatches(c.itemType, item, order, attrs) {
		return Match{}, false
	}
	if c.tuning != "" && !attributes.TuningEqual(attrs.Type, attrs.TuningNote, c.tuning) {
		return Match{}, false
	}
	if len(c.colors) > 0 && !colorHit(c.colors, attrs.ColorCode) {
		return Match{}, false
	}
	if c.frequency != "" && attrs.Frequency != c.frequency {
		return Match{}, false
	}
	if !resellerMatches(c, order) {
		return Match{}, false
	}
	if c.stage != "" && e.Tracker.CurrentStage(stage.ItemTarget(item, &order)) != c.stage {
		return Match{}, false
	}
	return Match{Item: item, Order: order, Attributes: attrs}, true
}

func searchHit(term string, item domain.OrderItem, order domain.Order, attrs domain.AttributeSet) bool {
	fields := []string{item.SerialNumber, order.OrderNumber, order.CustomerName, order.CustomerEmail}
	if attrs.Type != domain.TypeUnknown {
		fields = append(fields, attrs.Type)
	}
	fields = append(fields, item.Specifications.Strings()...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

var largeSize = regexp.MustCompile(`(?i)\b(large|xl)\b`)

func (e *Engine) typeMatches(want string, item domain.OrderItem, order domain.Order, attrs domain.AttributeSet) bool {
	if override, ok := e.Settings.TypeOverrides[strings.TrimSpace(order.OrderNumber)]; ok {
		return override == want
	}
	if attrs.Type == want {
		return true
	}
	return want == domain.TypeDouble && isLargeSharp(item, attrs)
}

// isLargeSharp reports whether an Innato or untyped item in a sharp key
// has a large size in its bag; such items are filtered as DOUBLE.
func isLargeSharp(item domain.OrderItem, attrs domain.AttributeSet) bool {
	if attrs.Type != domain.TypeInnato && attrs.Type != domain.TypeUnknown {
		return false
	}
	n, ok := attributes.FindNote(attrs.TuningNote)
	if !ok || !n.Sharp() {
		return false
	}
	for _, v := range item.Specifications.Strings() {
		if largeSize.MatchString(v) {
			return true
		}
	}
	return false
}

func colorHit(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func resellerMatches(c Criteria, o domain.Order) bool {
	switch c.reseller {
	case ResellerAny:
		return o.IsReseller
	case ResellerDirect:
		return !o.IsReseller
	case ResellerSpecific:
		return o.IsReseller && c.resellerName != "" && strings.EqualFold(strings.TrimSpace(o.ResellerNickname), c.resellerName)
	}
	return true
}
