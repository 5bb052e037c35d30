// Package serials holds the catalogue of serial numbers with authoritative
// attributes. The table is loaded once and never mutated afterwards.
package serials

import (
	"sort"
	"strings"

	"kilnline/internal/domain"
)

// DefaultPrefixes are vendor prefixes stripped before lookup.
var DefaultPrefixes = []string{"SW-", "SW"}

// Normalize trims serial and removes the first matching prefix. Prefixes
// match case-insensitively; the rest keeps its case.
func Normalize(serial string, prefixes []string) string {
	s := strings.TrimSpace(serial)
	for _, p := range prefixes {
		if p == "" || len(s) < len(p) {
			continue
		}
		if strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimLeft(s[len(p):], "-_ ")
			break
		}
	}
	return s
}

type Table struct {
	records  map[string]domain.SerialRecord
	prefixes []string
}

// NewTable normalises the keys of records. When two raw keys normalise to
// the same key, the one that sorts last wins.
func NewTable(records map[string]domain.SerialRecord, prefixes []string) *Table {
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	raw := make([]string, 0, len(records))
	for k := range records {
		raw = append(raw, k)
	}
	sort.Strings(raw)
	t := &Table{records: make(map[string]domain.SerialRecord, len(records)), prefixes: prefixes}
	for _, k := range raw {
		rec := records[k]
		key := Normalize(k, prefixes)
		if key == "" {
			continue
		}
		rec.Type = strings.TrimSpace(rec.Type)
		rec.Tuning = strings.TrimSpace(rec.Tuning)
		rec.Color = strings.TrimSpace(rec.Color)
		rec.Frequency = strings.TrimSpace(rec.Frequency)
		t.records[key] = rec
	}
	return t
}

// Lookup returns the record for serial. A nil table never matches.
func (t *Table) Lookup(serial string) (domain.SerialRecord, bool) {
	if t == nil || len(t.records) == 0 {
		return domain.SerialRecord{}, false
	}
	key := Normalize(serial, t.prefixes)
	if key == "" {
		return domain.SerialRecord{}, false
	}
	rec, ok := t.records[key]
	return rec, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}
