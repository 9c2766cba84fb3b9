// Package quota implements per-user usage ceilings over wall-clock periods
// (minute, day, month), distinct from the rolling rate limiters in package
// ratelimit.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skylinegw/edgegateway/clock"
	"github.com/skylinegw/edgegateway/kv"
)

// Period names one of the three quota windows, in priority order.
type Period string

const (
	PeriodMinute  Period = "minute"
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Config describes one user's quota ceilings. Immutable after construction.
type Config struct {
	PerMinute int64
	Daily     int64
	Monthly   int64
}

// Usage reports the used/limit pair for one period.
type Usage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Result is returned by CheckAndIncrement.
type Result struct {
	Allowed       bool
	Minute        Usage
	Daily         Usage
	Monthly       Usage
	ExceededQuota Period // empty when Allowed
}

type state struct {
	MinuteCount int64  `json:"minute_count"`
	MinuteTs    int64  `json:"minute_ts"`
	DayCount    int64  `json:"day_count"`
	DateISO     string `json:"date_iso"`
	MonthCount  int64  `json:"month_count"`
	MonthISO    string `json:"month_iso"`
}

const ttl = 32 * 24 * time.Hour

// Manager enforces per-user quotas. A Manager is stateless aside from its
// KV store and clock; callers typically share one Manager per Config, or
// look up per-user Configs externally and pass them to CheckAndIncrement.
type Manager struct {
	store     kv.Store
	clock     clock.Clock
	keyPrefix string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the Clock used for all time math. Intended for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithKeyPrefix sets the prefix prepended to all storage keys. Default "quota".
func WithKeyPrefix(prefix string) Option {
	return func(m *Manager) { m.keyPrefix = prefix }
}

// NewManager creates a Manager backed by store.
func NewManager(store kv.Store, opts ...Option) *Manager {
	m := &Manager{store: store, clock: clock.Default, keyPrefix: "quota"}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAndIncrement evaluates userId's quota against cfg and, if all three
// periods have room, increments all three counters. Periods are evaluated
// in priority order minute, daily, monthly; the first exceeded period is
// reported as ExceededQuota and counters are not incremented on denial.
func (m *Manager) CheckAndIncrement(ctx context.Context, userId string, cfg Config) (*Result, error) {
	now := m.clock.NowMs()
	nowT := time.UnixMilli(now).UTC()
	dateISO := nowT.Format("2006-01-02")
	monthISO := nowT.Format("2006-01")
	minuteBucketMs := (now / 60000) * 60000

	key := m.keyPrefix + ":" + userId
	st, err := m.load(ctx, key)
	if err != nil {
		return nil, err
	}

	if st.MinuteTs != minuteBucketMs {
		st.MinuteCount = 0
		st.MinuteTs = minuteBucketMs
	}
	if st.DateISO != dateISO {
		st.DayCount = 0
		st.DateISO = dateISO
	}
	if st.MonthISO != monthISO {
		st.MonthCount = 0
		st.MonthISO = monthISO
	}

	result := &Result{
		Minute:  Usage{Used: st.MinuteCount, Limit: cfg.PerMinute},
		Daily:   Usage{Used: st.DayCount, Limit: cfg.Daily},
		Monthly: Usage{Used: st.MonthCount, Limit: cfg.Monthly},
	}

	switch {
	case st.MinuteCount >= cfg.PerMinute:
		result.ExceededQuota = PeriodMinute
	case st.DayCount >= cfg.Daily:
		result.ExceededQuota = PeriodDaily
	case st.MonthCount >= cfg.Monthly:
		result.ExceededQuota = PeriodMonthly
	}

	if result.ExceededQuota != "" {
		result.Allowed = false
		return result, nil
	}

	st.MinuteCount++
	st.DayCount++
	st.MonthCount++
	result.Allowed = true
	result.Minute.Used = st.MinuteCount
	result.Daily.Used = st.DayCount
	result.Monthly.Used = st.MonthCount

	if err := m.save(ctx, key, st); err != nil {
		return nil, err
	}
	return result, nil
}

// Status reports userId's current usage against cfg without incrementing
// any counter, applying the same period-rollover rules CheckAndIncrement
// uses so a stale counter from a prior period reads as zero.
func (m *Manager) Status(ctx context.Context, userId string, cfg Config) (*Result, error) {
	now := m.clock.NowMs()
	nowT := time.UnixMilli(now).UTC()
	dateISO := nowT.Format("2006-01-02")
	monthISO := nowT.Format("2006-01")
	minuteBucketMs := (now / 60000) * 60000

	st, err := m.load(ctx, m.keyPrefix+":"+userId)
	if err != nil {
		return nil, err
	}

	minuteUsed, dayUsed, monthUsed := st.MinuteCount, st.DayCount, st.MonthCount
	if st.MinuteTs != minuteBucketMs {
		minuteUsed = 0
	}
	if st.DateISO != dateISO {
		dayUsed = 0
	}
	if st.MonthISO != monthISO {
		monthUsed = 0
	}

	result := &Result{
		Minute:  Usage{Used: minuteUsed, Limit: cfg.PerMinute},
		Daily:   Usage{Used: dayUsed, Limit: cfg.Daily},
		Monthly: Usage{Used: monthUsed, Limit: cfg.Monthly},
	}
	switch {
	case minuteUsed >= cfg.PerMinute:
		result.ExceededQuota = PeriodMinute
	case dayUsed >= cfg.Daily:
		result.ExceededQuota = PeriodDaily
	case monthUsed >= cfg.Monthly:
		result.ExceededQuota = PeriodMonthly
	default:
		result.Allowed = true
	}
	return result, nil
}

func (m *Manager) load(ctx context.Context, key string) (*state, error) {
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if kv.IsNotFound(err) {
			return &state{}, nil
		}
		return nil, fmt.Errorf("quota: load %s: %w", key, err)
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return &state{}, nil
	}
	return &st, nil
}

func (m *Manager) save(ctx context.Context, key string, st *state) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("quota: save %s: %w", key, err)
	}
	return nil
}
