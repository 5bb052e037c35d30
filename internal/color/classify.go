// Package color maps free-text finish descriptions to the workshop's color codes.
//
// Classification is a short-circuiting cascade: fixed-code passthrough, a table
// of literal historical descriptions, an ordered keyword rule table, the
// cards/exploration marker, and finally the original text unchanged so that
// unclassified finishes stay visible.
package color

import (
	"strings"

	"kilnline/internal/domain"
)

// Codes lists the fixed finish codes.
var Codes = []string{domain.ColorBlue, domain.ColorSmokeBlack, domain.ColorTiger, domain.ColorTerraBronze, domain.ColorCopper}

var smokeFiredCodes = map[string]bool{
	domain.ColorSmokeBlack:  true,
	domain.ColorTiger:       true,
	domain.ColorTerraBronze: true,
	domain.ColorCopper:      true,
}

// IsSmokeFired reports whether code is one of the smoke-fired finish codes.
func IsSmokeFired(code string) bool {
	return smokeFiredCodes[code]
}

// IsCode reports whether s is one of the fixed finish codes.
func IsCode(s string) bool {
	for _, c := range Codes {
		if s == c {
			return true
		}
	}
	return false
}

// literals are descriptions seen verbatim in historical orders. Keys are
// lower-cased and trimmed.
var literals = map[string]string{
	"blue":                                 domain.ColorBlue,
	"blue with gold bubbles":               domain.ColorBlue,
	"smokefired black":                     domain.ColorSmokeBlack,
	"smoke fired black":                    domain.ColorSmokeBlack,
	"black":                                domain.ColorSmokeBlack,
	"tiger red":                            domain.ColorTiger,
	"smokefired tiger red":                 domain.ColorTiger,
	"smokefired terra and black":           domain.ColorTiger,
	"smokefired terra with bronze":         domain.ColorTerraBronze,
	"smokefired terra and bronze":          domain.ColorTerraBronze,
	"smokefired black and copper":          domain.ColorCopper,
	"smokefired black with copper":         domain.ColorCopper,
	"smokefired black with copper bubbles": domain.ColorCopper,
	"copper":                               domain.ColorCopper,
}

var smokeMarkers = []string{"smokefired", "smoke fired", "smoke-fired", "smoked"}

var cardMarkers = []string{"card", "exploration"}

// text is a lower-cased, trimmed description with its smoke marker
// precomputed.
type text struct {
	s     string
	smoke bool
}

func (t text) has(sub string) bool { return strings.Contains(t.s, sub) }

// Rule commits Code when Match holds. Rules run in table order.
type Rule struct {
	Name  string
	Match func(t text) bool
	Code  string
}

// Rules is the keyword cascade. Order matters: the plain-blue rule must run
// before any smoke-fired rule so smoke-fired blue is not read as plain blue.
var Rules = []Rule{
	{
		Name:  "blue-not-smoked",
		Match: func(t text) bool { return t.has("blue") && !t.smoke },
		Code:  domain.ColorBlue,
	},
	{
		Name: "smoked-blue-or-plain-black",
		Match: func(t text) bool {
			return (t.smoke && t.has("blue")) || (t.has("black") && !t.has("copper") && !t.has("terra"))
		},
		Code: domain.ColorSmokeBlack,
	},
	{
		Name:  "smoked-black-copper",
		Match: func(t text) bool { return t.smoke && t.has("black") && t.has("copper") },
		Code:  domain.ColorCopper,
	},
	{
		Name:  "smoked-terra-bronze",
		Match: func(t text) bool { return t.smoke && t.has("terra") && t.has("bronze") },
		Code:  domain.ColorTerraBronze,
	},
	{
		Name:  "smoked-terra-black-or-tiger",
		Match: func(t text) bool { return t.smoke && (t.has("terra and black") || t.has("tiger")) },
		Code:  domain.ColorTiger,
	},
	{
		Name:  "smoked-black",
		Match: func(t text) bool { return t.smoke && t.has("black") },
		Code:  domain.ColorCopper,
	},
}

// Classify returns a finish code, domain.CodeCards for card products, or the
// input unchanged when nothing matches. It never fails.
func Classify(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if upper := strings.ToUpper(trimmed); IsCode(upper) {
		return upper
	}
	lower := strings.ToLower(trimmed)
	if code, ok := literals[lower]; ok {
		return code
	}
	t := text{s: lower, smoke: hasAny(lower, smokeMarkers)}
	for _, r := range Rules {
		if r.Match(t) {
			return r.Code
		}
	}
	if hasAny(lower, cardMarkers) {
		return domain.CodeCards
	}
	return s
}

func hasAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
