package server

import (
	"fmt"
	"strconv"
	"strings"

	"kilnline/internal/domain"
	"kilnline/internal/engine"
	"kilnline/internal/filter"
	"kilnline/internal/prefs"
)

// filterQuery is the query-string form of filter.Criteria shared by the
// item and order listings.
type filterQuery struct {
	Type         string `query:"type" doc:"Instrument line, e.g. INNATO"`
	Tuning       string `query:"tuning" doc:"Tuning note in either naming convention"`
	Colors       string `query:"color" doc:"Comma-separated color codes"`
	Frequency    string `query:"frequency"`
	Reseller     string `query:"reseller" doc:"none, any, direct or specific"`
	ResellerName string `query:"reseller_name"`
	Stage        string `query:"stage"`
	Search       string `query:"q"`
	Selected     string `query:"selected" doc:"Comma-separated item ids; restricts results to them"`
	Archived     bool   `query:"archived"`
}

func (q filterQuery) criteria() (filter.Criteria, error) {
	c := filter.Criteria{}.
		WithType(q.Type).
		WithTuning(q.Tuning).
		WithFrequency(q.Frequency).
		WithStage(q.Stage).
		WithSearch(q.Search).
		WithArchived(q.Archived)
	if q.Colors != "" {
		c = c.WithColors(splitList(q.Colors)...)
	}
	kind, ok := filter.ParseResellerKind(q.Reseller)
	if !ok {
		return filter.Criteria{}, fmt.Errorf("invalid reseller selector %q", q.Reseller)
	}
	c = c.WithReseller(kind, q.ResellerName)
	if q.Selected != "" {
		ids, err := parseIDs(q.Selected)
		if err != nil {
			return filter.Criteria{}, err
		}
		c = c.WithSelected(ids...)
	}
	return c, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitList(raw)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid item id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type itemList struct {
	Items []engine.ItemView `json:"items"`
	Count int               `json:"count"`
}

type OrderMatchResponse struct {
	Order domain.Order      `json:"order"`
	Items []engine.ItemView `json:"items"`
}

type orderMatchList struct {
	Items []OrderMatchResponse `json:"items"`
	Count int                  `json:"count"`
}

type StageRequest struct {
	Complete bool `json:"complete"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

type SpecificationsRequest struct {
	Patch map[string]any `json:"patch" doc:"Keys to set; null deletes a key"`
}

type BoxRequest struct {
	Items []int64 `json:"items" minItems:"1"`
	Size  string  `json:"size" minLength:"1"`
}

type SettingRequest struct {
	Key   string `json:"key" minLength:"1"`
	Value string `json:"value"`
}

type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

type PeriodBody struct {
	Start  string `json:"start" format:"date"`
	End    string `json:"end" format:"date"`
	Reason string `json:"reason,omitempty"`
}

type PreferencesBody struct {
	NonWorkingPeriods []PeriodBody `json:"nonWorkingPeriods"`
	HistoryWindowDays int          `json:"historyWindowDays" minimum:"0"`
}

type EventResponse struct {
	ID         string `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ImportResponse struct {
	Orders  int `json:"orders"`
	Items   int `json:"items"`
	Orphans int `json:"orphans"`
}

func preferencesBody(p prefs.Preferences) PreferencesBody {
	out := PreferencesBody{NonWorkingPeriods: []PeriodBody{}, HistoryWindowDays: p.HistoryWindowDays}
	for _, period := range p.NonWorkingPeriods {
		out.NonWorkingPeriods = append(out.NonWorkingPeriods, PeriodBody{
			Start:  period.Start.String(),
			End:    period.End.String(),
			Reason: period.Reason,
		})
	}
	return out
}

func (b PreferencesBody) preferences() (prefs.Preferences, error) {
	out := prefs.Preferences{HistoryWindowDays: b.HistoryWindowDays}
	for _, period := range b.NonWorkingPeriods {
		start, err := prefs.ParseDate(period.Start)
		if err != nil {
			return prefs.Preferences{}, err
		}
		end, err := prefs.ParseDate(period.End)
		if err != nil {
			return prefs.Preferences{}, err
		}
		out.NonWorkingPeriods = append(out.NonWorkingPeriods, prefs.Period{Start: start, End: end, Reason: period.Reason})
	}
	return out, nil
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
