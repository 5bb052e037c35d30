// Package stage tracks production-stage completion for items and orders.
//
// Stages are toggled independently; no ordering is enforced between them.
// Two stages are derived: drying completes a fixed number of days after the
// build stage, and smoke firing completes by itself for smoke-fired finishes.
// A manual entry on a derived stage always wins over the derived value.
package stage

import (
	"fmt"
	"math"
	"time"

	"kilnline/internal/attributes"
	"kilnline/internal/color"
	"kilnline/internal/domain"
)

const (
	Ordered  = "ordered"
	Build    = "build"
	Dry      = "dry"
	Fire     = "fire"
	Smoke    = "smoke"
	Tuning   = "tuning"
	Packing  = "packing"
	Shipping = "shipping"

	// Done is reported by CurrentStage once every applicable stage is complete.
	Done = "done"
)

// Sequence is the display order of stages.
var Sequence = []string{Ordered, Build, Dry, Fire, Smoke, Tuning, Packing, Shipping}

const DefaultDryingDays = 5

// Valid reports whether name is a known stage.
func Valid(name string) bool {
	for _, s := range Sequence {
		if s == name {
			return true
		}
	}
	return false
}

// IsDerived reports whether the stage can complete without a recorded entry.
func IsDerived(name string) bool {
	return name == Dry || name == Smoke
}

var productionOnly = map[string]bool{Build: true, Dry: true, Fire: true, Smoke: true, Tuning: true}

// Target pairs a resolvable record with its stage record.
type Target struct {
	Subject attributes.Subject
	Stages  domain.StageRecord
}

func ItemTarget(item domain.OrderItem, order *domain.Order) Target {
	return Target{Subject: attributes.ItemSubject{Item: item, Order: order}, Stages: item.Stages}
}

func OrderTarget(order domain.Order) Target {
	return Target{Subject: attributes.OrderSubject{Order: order}, Stages: order.Stages}
}

type Tracker struct {
	Resolver   *attributes.Resolver
	DryingDays int
	Now        func() time.Time
}

func New(resolver *attributes.Resolver, dryingDays int) *Tracker {
	if dryingDays <= 0 {
		dryingDays = DefaultDryingDays
	}
	return &Tracker{Resolver: resolver, DryingDays: dryingDays, Now: time.Now}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) dryingPeriod() time.Duration {
	days := t.DryingDays
	if days <= 0 {
		days = DefaultDryingDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// IsComplete reports whether stage is complete for target.
func (t *Tracker) IsComplete(target Target, name string) bool {
	if m, ok := target.Stages.Get(name); ok {
		return m.Done
	}
	switch name {
	case Dry:
		start, ok := t.dryingStart(target)
		if !ok {
			return false
		}
		return !t.now().Before(start.Add(t.dryingPeriod()))
	case Smoke:
		return t.smokeFired(target)
	}
	return false
}

// DryingDaysRemaining returns the whole days left until drying completes,
// rounded up. waiting is false when no countdown applies: the build stage is
// not complete, drying has a manual entry, or the period has elapsed.
func (t *Tracker) DryingDaysRemaining(target Target) (days int, waiting bool) {
	if _, manual := target.Stages.Get(Dry); manual {
		return 0, false
	}
	start, ok := t.dryingStart(target)
	if !ok {
		return 0, false
	}
	left := start.Add(t.dryingPeriod()).Sub(t.now())
	if left <= 0 {
		return 0, false
	}
	return int(math.Ceil(left.Hours() / 24)), true
}

// DryingSince returns when drying started, if the build stage is complete.
func (t *Tracker) DryingSince(target Target) (time.Time, bool) {
	return t.dryingStart(target)
}

func (t *Tracker) dryingStart(target Target) (time.Time, bool) {
	m, ok := target.Stages.Get(Build)
	if !ok || !m.Done {
		return time.Time{}, false
	}
	if m.At.IsZero() {
		return t.now(), true
	}
	return m.At, true
}

func (t *Tracker) attributes(target Target) domain.AttributeSet {
	return t.Resolver.Resolve(target.Subject)
}

func (t *Tracker) smokeFired(target Target) bool {
	return color.IsSmokeFired(t.attributes(target).ColorCode)
}

// Applicable reports whether stage is part of target's production path.
// Card products skip the production stages; smoke firing only applies to
// smoke-fired finishes unless it was recorded manually.
func (t *Tracker) Applicable(target Target, name string) bool {
	attrs := t.attributes(target)
	if productionOnly[name] && (attrs.Type == domain.TypeCards || attrs.ColorCode == domain.CodeCards) {
		return false
	}
	if name == Smoke {
		if _, manual := target.Stages.Get(Smoke); manual {
			return true
		}
		return color.IsSmokeFired(attrs.ColorCode)
	}
	return true
}

// CurrentStage returns the first applicable stage that is not complete, or
// Done.
func (t *Tracker) CurrentStage(target Target) string {
	for _, name := range Sequence {
		if !t.Applicable(target, name) {
			continue
		}
		if !t.IsComplete(target, name) {
			return name
		}
	}
	return Done
}

// Write builds the persisted toggle for stage. Unchecking a derived stage
// pins an explicit "not done" entry so the derived value stays overridden.
func (t *Tracker) Write(name string, complete bool) (domain.StageWrite, error) {
	if !Valid(name) {
		return domain.StageWrite{}, fmt.Errorf("invalid stage %q", name)
	}
	w := domain.StageWrite{Stage: name, Complete: complete, Pin: !complete && IsDerived(name)}
	if complete {
		w.At = t.now().UTC()
	}
	return w, nil
}
