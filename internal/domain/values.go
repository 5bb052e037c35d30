package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OrderKey is an order identifier normalised to int64. Source exports carry
// order ids as numbers or as numeric strings; both decode to the same key.
// Anything unparsable decodes to zero, which never matches a real order.
type OrderKey int64

func (k *OrderKey) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*k = 0
		return nil
	}
	key, _ := ParseOrderKey(raw)
	*k = key
	return nil
}

// ParseOrderKey coerces the mixed representations seen in order exports.
func ParseOrderKey(v any) (OrderKey, bool) {
	switch t := v.(type) {
	case OrderKey:
		return t, true
	case int:
		return OrderKey(t), true
	case int64:
		return OrderKey(t), true
	case int32:
		return OrderKey(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return OrderKey(int64(t)), true
	case json.Number:
		return ParseOrderKey(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return OrderKey(n), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ParseOrderKey(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

// Specs is the untyped specifications bag of an item. A bag that arrives as
// anything other than a JSON object decodes as empty.
type Specs map[string]any

func (s *Specs) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		*s = nil
		return nil
	}
	*s = m
	return nil
}

// String returns the string value stored under key, matching the key
// case-insensitively. An exact-case key wins over folded matches.
func (s Specs) String(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	if v, ok := s[key]; ok {
		str, isStr := v.(string)
		return str, isStr
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		if strings.EqualFold(k, key) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	str, isStr := s[keys[0]].(string)
	return str, isStr
}

// Strings returns every string value in the bag, ordered by key.
func (s Specs) Strings() []string {
	keys := make([]string, 0, len(s))
	for k, v := range s {
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, s[k].(string))
	}
	return out
}

// Merge returns a copy of s with patch applied. Nil values delete keys.
func (s Specs) Merge(patch map[string]any) Specs {
	out := make(Specs, len(s)+len(patch))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// StageMark is the recorded state of one stage. A zero At with Done set
// means the stage was checked without a timestamp (legacy rows).
type StageMark struct {
	Done bool
	At   time.Time
}

func (m StageMark) MarshalJSON() ([]byte, error) {
	if !m.Done {
		return []byte("false"), nil
	}
	if m.At.IsZero() {
		return []byte("true"), nil
	}
	return json.Marshal(m.At.UTC().Format(time.RFC3339))
}

func (m *StageMark) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*m = StageMark{}
		return nil
	}
	switch t := raw.(type) {
	case bool:
		*m = StageMark{Done: t}
	case string:
		*m = parseStageString(t)
	case json.Number:
		if ms, err := t.Int64(); err == nil && ms > 0 {
			*m = StageMark{Done: true, At: time.UnixMilli(ms).UTC()}
		} else {
			*m = StageMark{}
		}
	default:
		*m = StageMark{}
	}
	return nil
}

func parseStageString(s string) StageMark {
	s = strings.TrimSpace(s)
	if s == "" {
		return StageMark{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return StageMark{Done: true, At: t.UTC()}
		}
	}
	return StageMark{Done: true}
}

// StageRecord maps stage names to their recorded state. A missing key means
// the stage was never recorded.
type StageRecord map[string]StageMark

func (r StageRecord) Get(stage string) (StageMark, bool) {
	m, ok := r[stage]
	return m, ok
}

// With returns a copy of r with stage set to mark.
func (r StageRecord) With(stage string, mark StageMark) StageRecord {
	out := r.Clone()
	if out == nil {
		out = StageRecord{}
	}
	out[stage] = mark
	return out
}

// Without returns a copy of r with stage removed.
func (r StageRecord) Without(stage string) StageRecord {
	out := r.Clone()
	delete(out, stage)
	return out
}

func (r StageRecord) Clone() StageRecord {
	if r == nil {
		return nil
	}
	out := make(StageRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// StageWrite is a single stage toggle sent to the persistence layer.
// Complete records At; otherwise the key is removed, or kept as an explicit
// "not done" mark when Pin is set (derived stages, where absence would let
// the derived value reappear).
type StageWrite struct {
	Stage    string    `json:"stage"`
	Complete bool      `json:"complete"`
	At       time.Time `json:"at,omitempty"`
	Pin      bool      `json:"pin,omitempty"`
}

// Apply returns a copy of r with w applied.
func (r StageRecord) Apply(w StageWrite) StageRecord {
	switch {
	case w.Complete:
		return r.With(w.Stage, StageMark{Done: true, At: w.At})
	case w.Pin:
		return r.With(w.Stage, StageMark{})
	default:
		return r.Without(w.Stage)
	}
}
