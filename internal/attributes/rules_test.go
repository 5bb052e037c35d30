package attributes

import (
	"testing"

	"kilnline/internal/domain"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "Double Innato C#3", want: domain.TypeDouble, ok: true},
		{in: "INNATO Am3", want: domain.TypeInnato, ok: true},
		{in: "natey flute", want: domain.TypeNatey, ok: true},
		{in: "ZEN flute M", want: domain.TypeZen, ok: true},
		{in: "frozen", ok: false},
		{in: "OvA E2", want: domain.TypeOva, ok: true},
		{in: "Exploration Cards", want: domain.TypeCards, ok: true},
		{in: "cardboard box", ok: false},
		{in: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DetectType(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("DetectType(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFindNote(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "Natey A4", want: "A4", ok: true},
		{in: "Innato_C#m3", want: "C#m3", ok: true},
		{in: "Bbm3", want: "Bbm3", ok: true},
		{in: "G♯m4 432Hz", want: "G#m4", ok: true},
		{in: "INNATO", ok: false},
		{in: "A44", ok: false},
		{in: "H4", ok: false},
		{in: "A7", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := FindNote(tt.in)
			if ok != tt.ok || (ok && n.String() != tt.want) {
				t.Fatalf("FindNote(%q) = %q,%v want %q,%v", tt.in, n.String(), ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCanonicalTuning(t *testing.T) {
	tests := []struct {
		typ, in, want string
	}{
		{domain.TypeNatey, "A4", "Am4"},
		{domain.TypeNatey, "Am4", "Am4"},
		{domain.TypeInnato, "Am3", "A3"},
		{domain.TypeDouble, "C#m3", "C#3"},
		{domain.TypeZen, "large", "L"},
		{domain.TypeZen, "M", "M"},
		{domain.TypeUnknown, "Am4", "Am4"},
		{domain.TypeNatey, "not a note", "not a note"},
		{domain.TypeNatey, "", ""},
	}
	for _, tt := range tests {
		if got := CanonicalTuning(tt.typ, tt.in); got != tt.want {
			t.Errorf("CanonicalTuning(%s, %q) = %q, want %q", tt.typ, tt.in, got, tt.want)
		}
	}
}

func TestTuningEqualAcrossConventions(t *testing.T) {
	if !TuningEqual(domain.TypeNatey, "A4", "Am4") {
		t.Fatalf("natey A4 should equal Am4")
	}
	if !TuningEqual(domain.TypeInnato, "Am3", "A3") {
		t.Fatalf("innato Am3 should equal A3")
	}
	if TuningEqual(domain.TypeUnknown, "Am3", "A3") {
		t.Fatalf("unknown lines compare literally")
	}
	if TuningEqual(domain.TypeNatey, "", "") {
		t.Fatalf("empty tunings never match")
	}
}

func TestDetectFrequency(t *testing.T) {
	if f, ok := DetectFrequency("Innato 432Hz", false); !ok || f != domain.Freq432 {
		t.Fatalf("432: %q %v", f, ok)
	}
	if f, ok := DetectFrequency("A=440", false); !ok || f != domain.Freq440 {
		t.Fatalf("440: %q %v", f, ok)
	}
	if _, ok := DetectFrequency("order 14402", false); ok {
		t.Fatalf("440 inside a longer number should not match")
	}
	if _, ok := DetectFrequency("64", false); ok {
		t.Fatalf("bare 64 needs an explicit field")
	}
	if f, ok := DetectFrequency("64", true); !ok || f != domain.Freq64 {
		t.Fatalf("explicit 64: %q %v", f, ok)
	}
}
