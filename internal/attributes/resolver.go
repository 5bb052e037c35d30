// Package attributes resolves the canonical attribute set of an order item.
//
// Each attribute is resolved independently through a fixed precedence chain:
// the serial-number record, the record's direct field, pattern matching over
// the specifications bag, then the same two steps on the owning order. The
// first hit wins. Resolution is pure and never fails; anything it cannot
// classify degrades to the next tier or to "unknown".
package attributes

import (
	"strings"

	"kilnline/internal/color"
	"kilnline/internal/domain"
)

// SerialLookup finds the authoritative record for a serial number.
type SerialLookup interface {
	Lookup(serial string) (domain.SerialRecord, bool)
}

type Resolver struct {
	serials SerialLookup
}

// New returns a resolver backed by serials. A nil table means no serial
// number ever matches.
func New(serials SerialLookup) *Resolver {
	return &Resolver{serials: serials}
}

// Resolve returns the attribute set of s. Serial record values are taken as
// recorded except for two normalisations every tier shares: the type is
// upper-cased to match the line vocabulary, and the tuning is returned in
// the display convention of the resolved line.
func (r *Resolver) Resolve(s Subject) domain.AttributeSet {
	rec, hasRec := r.record(s)
	typ := r.resolveType(s, rec, hasRec)
	return domain.AttributeSet{
		Type:       typ,
		TuningNote: CanonicalTuning(typ, r.resolveTuning(s, typ, rec, hasRec)),
		ColorCode:  r.resolveColor(s, rec, hasRec),
		Frequency:  r.resolveFrequency(s, typ, rec, hasRec),
	}
}

func (r *Resolver) record(s Subject) (domain.SerialRecord, bool) {
	if r == nil || r.serials == nil {
		return domain.SerialRecord{}, false
	}
	serial := strings.TrimSpace(s.SerialNumber())
	if serial == "" {
		return domain.SerialRecord{}, false
	}
	return r.serials.Lookup(serial)
}

// cascade evaluates detect against the subject's direct field and bag, then
// against its owner.
func cascade(s Subject, direct func(domain.DirectAttributes) string, fields []string, detect func(value string, field string) (string, bool)) (string, bool) {
	for cur := s; cur != nil; cur = cur.Owner() {
		if v := strings.TrimSpace(direct(cur.Direct())); v != "" {
			if out, ok := detect(v, ""); ok {
				return out, true
			}
		}
		bag := cur.Bag()
		for _, f := range fields {
			v, ok := bag.String(f)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if out, ok := detect(v, f); ok {
				return out, true
			}
		}
	}
	return "", false
}

func (r *Resolver) resolveType(s Subject, rec domain.SerialRecord, hasRec bool) string {
	if hasRec && strings.TrimSpace(rec.Type) != "" {
		return strings.ToUpper(strings.TrimSpace(rec.Type))
	}
	typ, ok := cascade(s, func(d domain.DirectAttributes) string { return d.ItemType }, typeFields,
		func(v, _ string) (string, bool) { return DetectType(v) })
	if !ok {
		return domain.TypeUnknown
	}
	return typ
}

func (r *Resolver) resolveTuning(s Subject, typ string, rec domain.SerialRecord, hasRec bool) string {
	if hasRec && strings.TrimSpace(rec.Tuning) != "" {
		return rec.Tuning
	}
	direct := func(d domain.DirectAttributes) string { return d.Tuning }
	if typ == domain.TypeZen {
		size, _ := cascade(s, direct, sizeFields, func(v, _ string) (string, bool) { return FindSize(v) })
		return size
	}
	note, _ := cascade(s, direct, tuningFields, func(v, _ string) (string, bool) {
		n, ok := FindNote(v)
		if !ok {
			return "", false
		}
		return n.String(), true
	})
	return note
}

func (r *Resolver) resolveColor(s Subject, rec domain.SerialRecord, hasRec bool) string {
	if hasRec && strings.TrimSpace(rec.Color) != "" {
		return rec.Color
	}
	code, _ := cascade(s, func(d domain.DirectAttributes) string { return d.Color }, colorFields,
		func(v, _ string) (string, bool) { return color.Classify(v), true })
	return code
}

func (r *Resolver) resolveFrequency(s Subject, typ string, rec domain.SerialRecord, hasRec bool) string {
	if hasRec && strings.TrimSpace(rec.Frequency) != "" {
		return rec.Frequency
	}
	freq, ok := cascade(s, func(d domain.DirectAttributes) string { return d.Frequency }, frequencyFields,
		func(v, field string) (string, bool) {
			return DetectFrequency(v, field == "" || explicitFrequencyFields[field])
		})
	if ok {
		return freq
	}
	if highFrequencyDefault[typ] {
		return domain.Freq440
	}
	return ""
}
