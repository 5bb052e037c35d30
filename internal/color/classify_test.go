package color

import (
	"testing"

	"kilnline/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "code passthrough", in: "SB", want: "SB"},
		{name: "code passthrough lower", in: " tb ", want: "TB"},
		{name: "literal", in: "Tiger Red", want: "T"},
		{name: "smoked black with terra and copper", in: "Smokefired black with Terra and Copper Bubbles", want: "C"},
		{name: "blue with terra and gold", in: "Blue, with Terra and Gold Bubbles", want: "B"},
		{name: "smoked blue", in: "Smokefired Blue with Red and Bronze Bubbles", want: "SB"},
		{name: "plain black", in: "Black with gold bubbles", want: "SB"},
		{name: "smoked terra bronze", in: "Smoke fired Terra with Bronze bubbles", want: "TB"},
		{name: "smoked terra and black", in: "Smoke-fired Terra and Black", want: "T"},
		{name: "smoked tiger", in: "Smoked tiger stripes", want: "T"},
		{name: "cards", in: "Exploration card set", want: domain.CodeCards},
		{name: "unclassified stays visible", in: "Forest green", want: "Forest green"},
		{name: "empty", in: "", want: ""},
		{name: "whitespace", in: "   ", want: "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRuleOrderKeepsSmokedBlueOutOfBlue(t *testing.T) {
	if Rules[0].Name != "blue-not-smoked" {
		t.Fatalf("plain blue rule must run first, got %s", Rules[0].Name)
	}
	if got := Classify("smokefired blue"); got != domain.ColorSmokeBlack {
		t.Fatalf("got %s", got)
	}
}

func TestRulesIndividually(t *testing.T) {
	cases := map[string]string{
		"blue-not-smoked":             "light blue",
		"smoked-blue-or-plain-black":  "smoked blue",
		"smoked-black-copper":         "smoked black copper",
		"smoked-terra-bronze":         "smoked terra bronze",
		"smoked-terra-black-or-tiger": "smoked tiger",
		"smoked-black":                "smoked black terra",
	}
	for _, r := range Rules {
		in, ok := cases[r.Name]
		if !ok {
			t.Fatalf("no case for rule %s", r.Name)
		}
		lower := text{s: in, smoke: hasAny(in, smokeMarkers)}
		if !r.Match(lower) {
			t.Errorf("rule %s did not match %q", r.Name, in)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	inputs := []string{"", " ", "\x00", "blue", "BLUE", "smokefired", "terra", "12345", "🔥 smoked black", "card"}
	for _, in := range inputs {
		got := Classify(in)
		if got == in || IsCode(got) || got == domain.CodeCards {
			continue
		}
		t.Fatalf("Classify(%q) returned %q which is neither a code nor the input", in, got)
	}
}

func TestIsSmokeFired(t *testing.T) {
	for _, c := range []string{"SB", "T", "TB", "C"} {
		if !IsSmokeFired(c) {
			t.Fatalf("%s should be smoke fired", c)
		}
	}
	for _, c := range []string{"B", domain.CodeCards, "", "Forest green"} {
		if IsSmokeFired(c) {
			t.Fatalf("%s should not be smoke fired", c)
		}
	}
}
