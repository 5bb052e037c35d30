package filter

import (
	"sort"
	"strings"
)

// ResellerKind selects orders by their reseller relationship.
type ResellerKind string

const (
	ResellerNone     ResellerKind = ""
	ResellerAny      ResellerKind = "any"
	ResellerDirect   ResellerKind = "direct"
	ResellerSpecific ResellerKind = "specific"
)

// ParseResellerKind accepts the selector names used on the command line and
// in query strings. "none" and "" both mean no constraint.
func ParseResellerKind(s string) (ResellerKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ResellerNone, true
	case "any":
		return ResellerAny, true
	case "direct":
		return ResellerDirect, true
	case "specific":
		return ResellerSpecific, true
	}
	return ResellerNone, false
}

// Criteria is an immutable set of optional predicates. The zero value matches
// every live item. With* methods return modified copies.
type Criteria struct {
	itemType        string
	tuning          string
	colors          []string
	frequency       string
	reseller        ResellerKind
	resellerName    string
	stage           string
	search          string
	selected        map[int64]struct{}
	includeArchived bool
}

func (c Criteria) WithType(t string) Criteria {
	c.itemType = strings.ToUpper(strings.TrimSpace(t))
	return c
}

func (c Criteria) WithTuning(note string) Criteria {
	c.tuning = strings.TrimSpace(note)
	return c
}

// WithColors restricts to any of codes. An empty list clears the predicate.
func (c Criteria) WithColors(codes ...string) Criteria {
	var out []string
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			out = append(out, strings.ToUpper(code))
		}
	}
	c.colors = out
	return c
}

func (c Criteria) WithFrequency(f string) Criteria {
	c.frequency = normalizeFrequency(f)
	return c
}

// WithReseller sets the reseller selector. nickname is only read for
// ResellerSpecific.
func (c Criteria) WithReseller(kind ResellerKind, nickname string) Criteria {
	c.reseller = kind
	c.resellerName = strings.TrimSpace(nickname)
	return c
}

func (c Criteria) WithStage(stage string) Criteria {
	c.stage = strings.ToLower(strings.TrimSpace(stage))
	return c
}

func (c Criteria) WithSearch(term string) Criteria {
	c.search = strings.ToLower(strings.TrimSpace(term))
	return c
}

// WithSelected restricts matches to ids. An empty selection matches nothing.
func (c Criteria) WithSelected(ids ...int64) Criteria {
	sel := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		sel[id] = struct{}{}
	}
	c.selected = sel
	return c
}

// WithoutSelected lifts the selection restriction.
func (c Criteria) WithoutSelected() Criteria {
	c.selected = nil
	return c
}

// WithArchived toggles the archived-orders mode. It only relaxes the
// order lifecycle gate.
func (c Criteria) WithArchived(include bool) Criteria {
	c.includeArchived = include
	return c
}

func (c Criteria) Type() string           { return c.itemType }
func (c Criteria) Tuning() string         { return c.tuning }
func (c Criteria) Frequency() string      { return c.frequency }
func (c Criteria) Stage() string          { return c.stage }
func (c Criteria) Search() string         { return c.search }
func (c Criteria) IncludeArchived() bool  { return c.includeArchived }
func (c Criteria) Reseller() ResellerKind { return c.reseller }
func (c Criteria) ResellerName() string   { return c.resellerName }
func (c Criteria) HasSelection() bool     { return c.selected != nil }

func (c Criteria) Colors() []string {
	out := make([]string, len(c.colors))
	copy(out, c.colors)
	return out
}

// Active lists the names of the active predicates in a stable order.
func (c Criteria) Active() []string {
	var out []string
	add := func(on bool, name string) {
		if on {
			out = append(out, name)
		}
	}
	add(c.itemType != "", "type")
	add(c.tuning != "", "tuning")
	add(len(c.colors) > 0, "color")
	add(c.frequency != "", "frequency")
	add(c.reseller != ResellerNone, "reseller")
	add(c.stage != "", "stage")
	add(c.search != "", "search")
	add(c.selected != nil, "selected")
	sort.Strings(out)
	return out
}

func normalizeFrequency(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	f = strings.TrimSuffix(f, "hz")
	return strings.TrimSpace(f)
}
