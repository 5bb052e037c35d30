package attributes

import (
	"regexp"
	"strings"

	"kilnline/internal/domain"
)

// TypeRule maps a keyword pattern to an instrument line.
type TypeRule struct {
	Pattern *regexp.Regexp
	Type    string
}

// TypeRules run in order; the first match wins. DOUBLE comes first because
// double instruments are usually described as "Double Innato".
var TypeRules = []TypeRule{
	{Pattern: regexp.MustCompile(`(?i)double`), Type: domain.TypeDouble},
	{Pattern: regexp.MustCompile(`(?i)innato`), Type: domain.TypeInnato},
	{Pattern: regexp.MustCompile(`(?i)natey`), Type: domain.TypeNatey},
	{Pattern: regexp.MustCompile(`(?i)\bzen\b`), Type: domain.TypeZen},
	{Pattern: regexp.MustCompile(`(?i)\bova\b`), Type: domain.TypeOva},
	{Pattern: regexp.MustCompile(`(?i)cards?\b|exploration`), Type: domain.TypeCards},
}

// DetectType returns the instrument line named in s, if any.
func DetectType(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	for _, r := range TypeRules {
		if r.Pattern.MatchString(s) {
			return r.Type, true
		}
	}
	return "", false
}

var notePattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([A-G])(#|b)?(m)?([1-6])(?:$|[^0-9])`)

var accidentals = strings.NewReplacer("♯", "#", "♭", "b")

// Note is a parsed note+octave such as C#m4.
type Note struct {
	Letter     string
	Accidental string
	Minor      bool
	Octave     string
}

func (n Note) String() string {
	m := ""
	if n.Minor {
		m = "m"
	}
	return n.Letter + n.Accidental + m + n.Octave
}

// Sharp reports whether the note carries a sharp.
func (n Note) Sharp() bool { return n.Accidental == "#" }

// FindNote extracts the first note+octave in s.
func FindNote(s string) (Note, bool) {
	m := notePattern.FindStringSubmatch(accidentals.Replace(s))
	if m == nil {
		return Note{}, false
	}
	return Note{Letter: m[1], Accidental: m[2], Minor: m[3] == "m", Octave: m[4]}, true
}

// ParseNote parses s when it is exactly a note+octave.
func ParseNote(s string) (Note, bool) {
	s = strings.TrimSpace(accidentals.Replace(s))
	n, ok := FindNote(s)
	if !ok || n.String() != s {
		return Note{}, false
	}
	return n, true
}

// Size codes used as the tuning of ZEN instruments.
const (
	SizeMedium = "M"
	SizeLarge  = "L"
)

var (
	sizeWordPattern   = regexp.MustCompile(`(?i)\b(large|medium)\b`)
	sizeLetterPattern = regexp.MustCompile(`\b([LM])\b`)
)

// FindSize extracts a ZEN size code from s.
func FindSize(s string) (string, bool) {
	if m := sizeWordPattern.FindStringSubmatch(s); m != nil {
		if strings.EqualFold(m[1], "large") {
			return SizeLarge, true
		}
		return SizeMedium, true
	}
	if m := sizeLetterPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// FrequencyRule maps a marker pattern to a reference frequency. Loose rules
// only apply to fields named for the frequency.
type FrequencyRule struct {
	Pattern   *regexp.Regexp
	Frequency string
	Loose     bool
}

var FrequencyRules = []FrequencyRule{
	{Pattern: regexp.MustCompile(`(?:^|[^0-9])432(?:$|[^0-9])`), Frequency: domain.Freq432},
	{Pattern: regexp.MustCompile(`(?:^|[^0-9])440(?:$|[^0-9])`), Frequency: domain.Freq440},
	{Pattern: regexp.MustCompile(`(?i)(?:^|[^0-9])64\s*hz`), Frequency: domain.Freq64},
	{Pattern: regexp.MustCompile(`^\s*64\s*$`), Frequency: domain.Freq64, Loose: true},
}

// DetectFrequency returns the reference frequency marked in s. explicit is
// set when s comes from a field named for the frequency.
func DetectFrequency(s string, explicit bool) (string, bool) {
	for _, r := range FrequencyRules {
		if r.Loose && !explicit {
			continue
		}
		if r.Pattern.MatchString(s) {
			return r.Frequency, true
		}
	}
	return "", false
}

// highFrequencyDefault lists the lines that default to 440 Hz when nothing
// says otherwise.
var highFrequencyDefault = map[string]bool{
	domain.TypeInnato: true,
	domain.TypeNatey:  true,
	domain.TypeDouble: true,
}

// Bag field names scanned per attribute, in priority order.
var (
	typeFields      = []string{"type", "instrument", "model", "name", "title", "product", "item"}
	tuningFields    = []string{"tuning", "note", "key", "type", "model", "name", "title"}
	sizeFields      = []string{"size", "tuning", "type", "model", "name", "title"}
	frequencyFields = []string{"frequency", "hz", "tuning", "type", "model", "name", "title"}
	colorFields     = []string{"color", "colour", "finish", "glaze"}
)

var explicitFrequencyFields = map[string]bool{"frequency": true, "hz": true}
