package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestOrderKeyDecodesMixedRepresentations(t *testing.T) {
	var items []struct {
		OrderID OrderKey `json:"orderId"`
	}
	data := `[{"orderId": 42}, {"orderId": "42"}, {"orderId": " 42 "}, {"orderId": 42.0}, {"orderId": "abc"}, {"orderId": null}, {"orderId": {"x": 1}}]`
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []OrderKey{42, 42, 42, 42, 0, 0, 0}
	for i, it := range items {
		if it.OrderID != want[i] {
			t.Fatalf("item %d: got %d want %d", i, it.OrderID, want[i])
		}
	}
}

func TestSpecsToleratesNonObjects(t *testing.T) {
	for _, raw := range []string{`null`, `"free text"`, `[1,2]`, `17`} {
		var it OrderItem
		if err := json.Unmarshal([]byte(`{"id":1,"specifications":`+raw+`}`), &it); err != nil {
			t.Fatalf("%s: unexpected error %v", raw, err)
		}
		if len(it.Specifications) != 0 {
			t.Fatalf("%s: expected empty bag, got %v", raw, it.Specifications)
		}
	}
}

func TestSpecsStringFoldsKeys(t *testing.T) {
	s := Specs{"Type": "Natey A4", "model": 12}
	if v, ok := s.String("type"); !ok || v != "Natey A4" {
		t.Fatalf("got %q %v", v, ok)
	}
	if _, ok := s.String("model"); ok {
		t.Fatalf("non-string value should not be returned")
	}
}

func TestStageMarkRoundTripsLegacyShapes(t *testing.T) {
	var rec StageRecord
	data := `{"build":"2024-03-01T10:00:00Z","dry":false,"fire":true,"tuning":1709287200000,"smoke":null}`
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	build := rec["build"]
	if !build.Done || !build.At.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("build: %+v", build)
	}
	if m, ok := rec.Get("dry"); !ok || m.Done {
		t.Fatalf("dry should be an explicit not-done mark: %+v %v", m, ok)
	}
	if m := rec["fire"]; !m.Done || !m.At.IsZero() {
		t.Fatalf("fire: %+v", m)
	}
	if m := rec["tuning"]; !m.Done || m.At.IsZero() {
		t.Fatalf("tuning: %+v", m)
	}
	if m, ok := rec.Get("smoke"); !ok || m.Done {
		t.Fatalf("smoke: %+v %v", m, ok)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again StageRecord
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if !again["build"].At.Equal(build.At) || again["dry"].Done {
		t.Fatalf("round trip mismatch: %s", out)
	}
}

func TestFulfillable(t *testing.T) {
	if (OrderItem{}).Fulfillable() != 1 {
		t.Fatalf("legacy item should count as one unit")
	}
	if (OrderItem{Quantity: 2, RefundedQuantity: 2}).Fulfillable() != 0 {
		t.Fatalf("fully refunded item should have nothing to fulfil")
	}
}
