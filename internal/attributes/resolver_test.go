package attributes

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"kilnline/internal/domain"
)

type fakeTable map[string]domain.SerialRecord

func (f fakeTable) Lookup(serial string) (domain.SerialRecord, bool) {
	rec, ok := f[serial]
	return rec, ok
}

func TestResolveFromSerialRecord(t *testing.T) {
	r := New(fakeTable{"1001": {Type: "INNATO", Tuning: "A3", Color: "B", Frequency: "440"}})
	got := r.Resolve(ItemSubject{Item: domain.OrderItem{
		SerialNumber:   "1001",
		Specifications: domain.Specs{"type": "Natey G4", "color": "Smokefired black with copper"},
	}})
	want := domain.AttributeSet{Type: "INNATO", TuningNote: "A3", ColorCode: "B", Frequency: "440"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialRecordSharesTierNormalisation(t *testing.T) {
	r := New(fakeTable{
		"1": {Type: "natey", Tuning: "G4", Color: "SB", Frequency: "432"},
		"2": {Type: "Innato", Tuning: "Am3"},
	})
	tests := []struct {
		serial string
		want   domain.AttributeSet
	}{
		{"1", domain.AttributeSet{Type: "NATEY", TuningNote: "Gm4", ColorCode: "SB", Frequency: "432"}},
		{"2", domain.AttributeSet{Type: "INNATO", TuningNote: "A3", Frequency: "440"}},
	}
	for _, tt := range tests {
		got := r.Resolve(ItemSubject{Item: domain.OrderItem{SerialNumber: tt.serial}})
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("serial %s (-want +got):\n%s", tt.serial, diff)
		}
	}
}

func TestSerialRecordColorWinsOverBag(t *testing.T) {
	r := New(fakeTable{"7": {Color: "TB"}})
	item := domain.OrderItem{
		SerialNumber:   "7",
		Direct:         domain.DirectAttributes{Color: "Blue"},
		Specifications: domain.Specs{"color": "Smokefired Blue", "type": "Innato Em3"},
	}
	order := &domain.Order{Direct: domain.DirectAttributes{Color: "C"}}
	got := r.Resolve(ItemSubject{Item: item, Order: order})
	if got.ColorCode != "TB" {
		t.Fatalf("color = %q, want record color TB", got.ColorCode)
	}
	if got.Type != domain.TypeInnato || got.TuningNote != "E3" {
		t.Fatalf("other attributes should still come from the bag: %+v", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	order := &domain.Order{
		Direct: domain.DirectAttributes{Frequency: "432"},
		Specifications: []domain.SpecField{
			{Name: "Type", Value: "ZEN flute Large"},
			{Name: "Color", Value: "Smokefired Terra and Bronze"},
		},
	}
	tests := []struct {
		name string
		item domain.OrderItem
		want domain.AttributeSet
	}{
		{
			name: "direct field beats bag",
			item: domain.OrderItem{
				Direct:         domain.DirectAttributes{ItemType: "natey", Tuning: "C#4"},
				Specifications: domain.Specs{"type": "Innato Am3"},
			},
			want: domain.AttributeSet{Type: "NATEY", TuningNote: "C#m4", ColorCode: "TB", Frequency: "432"},
		},
		{
			name: "bag beats order",
			item: domain.OrderItem{Specifications: domain.Specs{"model": "Double Innato Gm3", "finish": "blue"}},
			want: domain.AttributeSet{Type: "DOUBLE", TuningNote: "G3", ColorCode: "B", Frequency: "432"},
		},
		{
			name: "order fallback",
			item: domain.OrderItem{},
			want: domain.AttributeSet{Type: "ZEN", TuningNote: "L", ColorCode: "TB", Frequency: "432"},
		},
	}
	r := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(ItemSubject{Item: tt.item, Order: order})
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveUnknownAndDefaults(t *testing.T) {
	r := New(nil)
	got := r.Resolve(ItemSubject{Item: domain.OrderItem{Specifications: domain.Specs{"name": "Gift voucher"}}})
	want := domain.AttributeSet{Type: domain.TypeUnknown}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	got = r.Resolve(ItemSubject{Item: domain.OrderItem{Specifications: domain.Specs{"type": "Innato Bbm3"}}})
	if got.Frequency != domain.Freq440 {
		t.Fatalf("innato without frequency should default to 440, got %q", got.Frequency)
	}
	got = r.Resolve(ItemSubject{Item: domain.OrderItem{Specifications: domain.Specs{"type": "Innato Bbm3 432Hz"}}})
	if got.Frequency != domain.Freq432 {
		t.Fatalf("explicit 432 should win, got %q", got.Frequency)
	}
	got = r.Resolve(ItemSubject{Item: domain.OrderItem{Specifications: domain.Specs{"type": "OvA E2 64 Hz"}}})
	if got.Type != domain.TypeOva || got.Frequency != domain.Freq64 {
		t.Fatalf("ova: %+v", got)
	}
	got = r.Resolve(ItemSubject{Item: domain.OrderItem{Specifications: domain.Specs{"type": "ZEN", "frequency": "64"}}})
	if got.Frequency != domain.Freq64 {
		t.Fatalf("bare 64 in a frequency field should count, got %q", got.Frequency)
	}
	got = r.Resolve(ItemSubject{Item: domain.OrderItem{Specifications: domain.Specs{"type": "ZEN 64"}}})
	if got.Frequency != "" {
		t.Fatalf("bare 64 outside a frequency field should not count, got %q", got.Frequency)
	}
}

func TestResolveToleratesMalformedInput(t *testing.T) {
	r := New(fakeTable{})
	items := []domain.OrderItem{
		{},
		{SerialNumber: "   "},
		{SerialNumber: "missing", Specifications: domain.Specs{"type": 12, "tuning": []any{"A4"}, "color": nil}},
	}
	for _, it := range items {
		got := r.Resolve(ItemSubject{Item: it})
		if got.Type != domain.TypeUnknown {
			t.Fatalf("expected unknown type for %+v, got %+v", it, got)
		}
	}
	var nilResolver *Resolver
	if got := nilResolver.Resolve(ItemSubject{Item: domain.OrderItem{SerialNumber: "1"}}); got.Type != domain.TypeUnknown {
		t.Fatalf("nil resolver: %+v", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := New(fakeTable{"5": {Tuning: "Am4"}})
	s := ItemSubject{
		Item:  domain.OrderItem{SerialNumber: "5", Specifications: domain.Specs{"type": "Natey", "color": "Smoked tiger"}},
		Order: &domain.Order{Direct: domain.DirectAttributes{Frequency: "432"}},
	}
	first := r.Resolve(s)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, r.Resolve(s)); diff != "" {
			t.Fatalf("resolution changed on pass %d:\n%s", i, diff)
		}
	}
}

func TestOrderSubject(t *testing.T) {
	r := New(nil)
	got := r.Resolve(OrderSubject{Order: domain.Order{Specifications: []domain.SpecField{{Name: "title", Value: "Natey F#4"}}}})
	if got.Type != domain.TypeNatey || got.TuningNote != "F#m4" {
		t.Fatalf("order resolution: %+v", got)
	}
}
