package stage

import (
	"testing"
	"time"

	"kilnline/internal/attributes"
	"kilnline/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func trackerAt(now time.Time) *Tracker {
	tr := New(attributes.New(nil), 5)
	tr.Now = func() time.Time { return now }
	return tr
}

func built(at time.Time) domain.OrderItem {
	return domain.OrderItem{
		ID:             1,
		Specifications: domain.Specs{"type": "Innato Am3", "color": "blue"},
		Stages:         domain.StageRecord{Build: {Done: true, At: at}},
	}
}

func TestDryingCountdown(t *testing.T) {
	target := ItemTarget(built(t0), nil)

	tr := trackerAt(t0.Add(5*24*time.Hour - time.Second))
	if tr.IsComplete(target, Dry) {
		t.Fatalf("drying should not be complete one second early")
	}
	days, waiting := tr.DryingDaysRemaining(target)
	if !waiting || days != 1 {
		t.Fatalf("remaining = %d,%v want 1,true", days, waiting)
	}

	tr = trackerAt(t0.Add(5 * 24 * time.Hour))
	if !tr.IsComplete(target, Dry) {
		t.Fatalf("drying should be complete at t0+5d")
	}
	if days, waiting := tr.DryingDaysRemaining(target); waiting || days != 0 {
		t.Fatalf("remaining after period = %d,%v", days, waiting)
	}
}

func TestDryingNeedsBuild(t *testing.T) {
	item := built(t0)
	item.Stages = nil
	tr := trackerAt(t0.Add(30 * 24 * time.Hour))
	target := ItemTarget(item, nil)
	if tr.IsComplete(target, Dry) {
		t.Fatalf("drying cannot complete without build")
	}
	if _, waiting := tr.DryingDaysRemaining(target); waiting {
		t.Fatalf("no countdown without build")
	}
}

func TestDryingManualOverrideWins(t *testing.T) {
	item := built(t0)
	item.Stages = item.Stages.With(Dry, domain.StageMark{})
	tr := trackerAt(t0.Add(10 * 24 * time.Hour))
	if tr.IsComplete(ItemTarget(item, nil), Dry) {
		t.Fatalf("explicit not-done mark should override the derived value")
	}
	item.Stages = domain.StageRecord{Dry: {Done: true, At: t0}}
	if !tr.IsComplete(ItemTarget(item, nil), Dry) {
		t.Fatalf("manual dry mark should complete drying without build")
	}
}

func TestDryingBuildWithoutTimestampStartsNow(t *testing.T) {
	item := built(time.Time{})
	tr := trackerAt(t0)
	days, waiting := tr.DryingDaysRemaining(ItemTarget(item, nil))
	if !waiting || days != 5 {
		t.Fatalf("remaining = %d,%v want 5,true", days, waiting)
	}
}

func TestSmokeDerivation(t *testing.T) {
	tr := trackerAt(t0)
	tests := []struct {
		name  string
		color string
		want  bool
	}{
		{name: "blue never auto-smoked", color: "Blue, with Terra and Gold Bubbles", want: false},
		{name: "smokefired blue", color: "Smokefired Blue with Red and Bronze Bubbles", want: true},
		{name: "copper", color: "Smokefired black with Terra and Copper Bubbles", want: true},
		{name: "cards", color: "exploration cards", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := domain.OrderItem{Specifications: domain.Specs{"color": tt.color}}
			if got := tr.IsComplete(ItemTarget(item, nil), Smoke); got != tt.want {
				t.Fatalf("smoke complete = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlueItemWithSmokeKeywordsInOtherFields(t *testing.T) {
	tr := New(attributes.New(serialTable{"55": {Color: "B"}}), 5)
	item := domain.OrderItem{
		SerialNumber: "55",
		Specifications: domain.Specs{
			"color":  "Smokefired black with Terra and Copper Bubbles",
			"finish": "smoked tiger",
		},
	}
	if tr.IsComplete(ItemTarget(item, nil), Smoke) {
		t.Fatalf("resolved B must never auto-complete smoke")
	}
	if tr.Applicable(ItemTarget(item, nil), Smoke) {
		t.Fatalf("smoke should not apply to a blue item")
	}
}

type serialTable map[string]domain.SerialRecord

func (s serialTable) Lookup(serial string) (domain.SerialRecord, bool) {
	rec, ok := s[serial]
	return rec, ok
}

func TestCurrentStage(t *testing.T) {
	tr := trackerAt(t0.Add(time.Hour))
	item := domain.OrderItem{
		Specifications: domain.Specs{"type": "Natey A4", "color": "Smokefired Tiger"},
		Stages: domain.StageRecord{
			Ordered: {Done: true, At: t0},
			Build:   {Done: true, At: t0},
		},
	}
	if got := tr.CurrentStage(ItemTarget(item, nil)); got != Dry {
		t.Fatalf("current = %q, want dry", got)
	}

	blue := domain.OrderItem{
		Specifications: domain.Specs{"color": "blue"},
		Stages: domain.StageRecord{
			Ordered: {Done: true}, Build: {Done: true}, Dry: {Done: true}, Fire: {Done: true},
		},
	}
	if got := tr.CurrentStage(ItemTarget(blue, nil)); got != Tuning {
		t.Fatalf("blue items skip smoke, got %q", got)
	}

	cards := domain.OrderItem{
		Specifications: domain.Specs{"type": "Exploration cards"},
		Stages:         domain.StageRecord{Ordered: {Done: true}},
	}
	if got := tr.CurrentStage(ItemTarget(cards, nil)); got != Packing {
		t.Fatalf("cards skip production, got %q", got)
	}

	cards.Stages = cards.Stages.With(Packing, domain.StageMark{Done: true}).With(Shipping, domain.StageMark{Done: true})
	if got := tr.CurrentStage(ItemTarget(cards, nil)); got != Done {
		t.Fatalf("all applicable stages complete, got %q", got)
	}
}

func TestWrite(t *testing.T) {
	tr := trackerAt(t0)
	tests := []struct {
		stage    string
		complete bool
		want     domain.StageWrite
	}{
		{stage: Build, complete: true, want: domain.StageWrite{Stage: Build, Complete: true, At: t0}},
		{stage: Build, complete: false, want: domain.StageWrite{Stage: Build}},
		{stage: Dry, complete: false, want: domain.StageWrite{Stage: Dry, Pin: true}},
		{stage: Smoke, complete: false, want: domain.StageWrite{Stage: Smoke, Pin: true}},
	}
	for _, tt := range tests {
		got, err := tr.Write(tt.stage, tt.complete)
		if err != nil {
			t.Fatalf("write %s: %v", tt.stage, err)
		}
		if got != tt.want {
			t.Fatalf("write %s/%v = %+v, want %+v", tt.stage, tt.complete, got, tt.want)
		}
	}
	if _, err := tr.Write("glazing", true); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestApplyWrite(t *testing.T) {
	rec := domain.StageRecord{Build: {Done: true, At: t0}}
	rec = rec.Apply(domain.StageWrite{Stage: Dry, Pin: true})
	if m, ok := rec.Get(Dry); !ok || m.Done {
		t.Fatalf("pinned uncheck should keep an explicit not-done mark: %+v", rec)
	}
	rec = rec.Apply(domain.StageWrite{Stage: Build})
	if _, ok := rec.Get(Build); ok {
		t.Fatalf("plain uncheck should remove the key")
	}
}
