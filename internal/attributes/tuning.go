package attributes

import (
	"strings"

	"kilnline/internal/domain"
)

// CanonicalTuning applies the per-line display rule to a tuning value:
// NATEY always carries the minor marker, INNATO and DOUBLE never do, and ZEN
// tunings are size codes. Values that are not notes pass through trimmed.
func CanonicalTuning(itemType, tuning string) string {
	tuning = strings.TrimSpace(tuning)
	if tuning == "" {
		return ""
	}
	switch strings.ToUpper(itemType) {
	case domain.TypeZen:
		if size, ok := FindSize(tuning); ok {
			return size
		}
		return tuning
	case domain.TypeNatey:
		if n, ok := ParseNote(tuning); ok {
			n.Minor = true
			return n.String()
		}
	case domain.TypeInnato, domain.TypeDouble:
		if n, ok := ParseNote(tuning); ok {
			n.Minor = false
			return n.String()
		}
	}
	return tuning
}

// TuningEqual compares two tuning values under the display rule of the
// item's line, so a value entered in either convention matches.
func TuningEqual(itemType, a, b string) bool {
	ca := CanonicalTuning(itemType, a)
	cb := CanonicalTuning(itemType, b)
	return ca != "" && ca == cb
}
