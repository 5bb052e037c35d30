// Package prefs stores per-user workshop preferences: the non-working-day
// calendar and the history window used by waiting-time reports.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in UTC, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Period is an inclusive range of non-working days.
type Period struct {
	Start  Date   `json:"start"`
	End    Date   `json:"end"`
	Reason string `json:"reason,omitempty"`
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return errors.New("period needs start and end")
	}
	if p.End.Before(p.Start.Time) {
		return fmt.Errorf("period ends %s before it starts %s", p.End, p.Start)
	}
	return nil
}

func (p Period) contains(d Date) bool {
	return !d.Before(p.Start.Time) && !d.After(p.End.Time)
}

type Preferences struct {
	NonWorkingPeriods []Period `json:"nonWorkingPeriods"`
	// HistoryWindowDays limits reports to orders created within the window.
	// Zero means no limit.
	HistoryWindowDays int `json:"historyWindowDays"`
}

// DefaultHistoryWindowDays applies when nothing has been saved.
const DefaultHistoryWindowDays = 90

func Default() Preferences {
	return Preferences{HistoryWindowDays: DefaultHistoryWindowDays}
}

func (p Preferences) Validate() error {
	if p.HistoryWindowDays < 0 {
		return errors.New("history window must not be negative")
	}
	for i, period := range p.NonWorkingPeriods {
		if err := period.Validate(); err != nil {
			return fmt.Errorf("period %d: %w", i, err)
		}
	}
	return nil
}

// InWindow reports whether created falls inside the history window ending at now.
func (p Preferences) InWindow(created, now time.Time) bool {
	if p.HistoryWindowDays <= 0 {
		return true
	}
	return !created.Before(now.AddDate(0, 0, -p.HistoryWindowDays))
}

// WaitingDays counts working days from created up to now. Days covered by
// a non-working period are skipped; the creation day itself is not counted.
func WaitingDays(created, now time.Time, periods []Period) int {
	from, to := DateOf(created), DateOf(now)
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to.Time); d = d.AddDate(0, 0, 1) {
		day := Date{Time: d}
		off := false
		for _, p := range periods {
			if p.contains(day) {
				off = true
				break
			}
		}
		if !off {
			n++
		}
	}
	return n
}

// KV is the key/value persistence the manager writes through.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

const (
	periodsKey = "non_working_periods"
	windowKey  = "history_window_days"
)

// Manager caches one user's preferences, loading them once and saving on
// every change.
type Manager struct {
	kv   KV
	user string
	log  *zap.Logger

	mu    sync.RWMutex
	prefs Preferences
}

func NewManager(kv KV, user string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if user == "" {
		user = "default"
	}
	return &Manager{kv: kv, user: user, log: log, prefs: Default()}
}

func (m *Manager) key(name string) string {
	return "prefs/" + m.user + "/" + name
}

// Load reads stored preferences. Missing keys keep their defaults.
func (m *Manager) Load(ctx context.Context) error {
	p := Default()
	raw, ok, err := m.kv.GetSetting(ctx, m.key(periodsKey))
	if err != nil {
		return fmt.Errorf("load %s: %w", periodsKey, err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.NonWorkingPeriods); err != nil {
			return fmt.Errorf("decode %s: %w", periodsKey, err)
		}
	}
	raw, ok, err = m.kv.GetSetting(ctx, m.key(windowKey))
	if err != nil {
		return fmt.Errorf("load %s: %w", windowKey, err)
	}
	if ok && raw != "" {
		days, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("decode %s: %w", windowKey, err)
		}
		p.HistoryWindowDays = days
	}
	m.mu.Lock()
	m.prefs = p
	m.mu.Unlock()
	m.log.Debug("preferences loaded", zap.String("user", m.user), zap.Int("periods", len(p.NonWorkingPeriods)))
	return nil
}

func (m *Manager) Get() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.prefs
	out.NonWorkingPeriods = append([]Period(nil), m.prefs.NonWorkingPeriods...)
	return out
}

// Update applies change to a copy, validates it, persists it and only then
// replaces the cached value.
func (m *Manager) Update(ctx context.Context, change func(*Preferences)) (Preferences, error) {
	next := m.Get()
	change(&next)
	if err := next.Validate(); err != nil {
		return Preferences{}, err
	}
	periods, err := json.Marshal(next.NonWorkingPeriods)
	if err != nil {
		return Preferences{}, err
	}
	if err := m.kv.PutSetting(ctx, m.key(periodsKey), string(periods)); err != nil {
		return Preferences{}, fmt.Errorf("save %s: %w", periodsKey, err)
	}
	if err := m.kv.PutSetting(ctx, m.key(windowKey), strconv.Itoa(next.HistoryWindowDays)); err != nil {
		return Preferences{}, fmt.Errorf("save %s: %w", windowKey, err)
	}
	m.mu.Lock()
	m.prefs = next
	m.mu.Unlock()
	return next, nil
}

func (m *Manager) AddPeriod(ctx context.Context, p Period) (Preferences, error) {
	return m.Update(ctx, func(prefs *Preferences) {
		prefs.NonWorkingPeriods = append(prefs.NonWorkingPeriods, p)
	})
}

// RemovePeriod drops the period at index i.
func (m *Manager) RemovePeriod(ctx context.Context, i int) (Preferences, error) {
	cur := m.Get()
	if i < 0 || i >= len(cur.NonWorkingPeriods) {
		return Preferences{}, fmt.Errorf("no period at index %d", i)
	}
	return m.Update(ctx, func(prefs *Preferences) {
		prefs.NonWorkingPeriods = append(prefs.NonWorkingPeriods[:i], prefs.NonWorkingPeriods[i+1:]...)
	})
}

func (m *Manager) SetHistoryWindow(ctx context.Context, days int) (Preferences, error) {
	return m.Update(ctx, func(prefs *Preferences) {
		prefs.HistoryWindowDays = days
	})
}
